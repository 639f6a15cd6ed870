// Copyright 2019 Cytomine.
// This software is released under an MIT/X11 open source license.

package cytomine

import "fmt"

// Annotation is a vector geometry (WKT) attached to an image
// instance, optionally labeled with ontology terms.
type Annotation struct {
	Entity `mapstructure:",squash"`

	Location  string  `mapstructure:"location"`
	Image     int64   `mapstructure:"image"`
	Slice     int64   `mapstructure:"slice"`
	Project   int64   `mapstructure:"project"`
	User      int64   `mapstructure:"user"`
	Term      []int64 `mapstructure:"term"`
	Area      float64 `mapstructure:"area"`
	Perimeter float64 `mapstructure:"perimeter"`

	// Filename and Filenames record the local paths written by the
	// last crop dump; Filename is the first of Filenames.
	Filename  string   `mapstructure:"filename"`
	Filenames []string `mapstructure:"filenames"`
}

// NewAnnotation creates an annotation of a WKT geometry on an image.
func NewAnnotation(location string, image int64, terms ...int64) *Annotation {
	return &Annotation{Location: location, Image: image, Term: terms}
}

func (a *Annotation) Kind() string { return "annotation" }

func (a *Annotation) CallbackKeys() []string { return []string{"annotation"} }

// AnnotationCollection lists annotations.  The show* switches ask the
// server to include the matching representation blocks; Users, Images
// and Terms restrict the listing and travel as comma-joined query
// parameters.
type AnnotationCollection struct {
	Collection `mapstructure:",squash"`

	ShowWKT  bool `mapstructure:"showWKT"`
	ShowMeta bool `mapstructure:"showMeta"`
	ShowTerm bool `mapstructure:"showTerm"`
	ShowGIS  bool `mapstructure:"showGIS"`
	Reviewed bool `mapstructure:"reviewed"`
	NoTerm   bool `mapstructure:"noTerm"`

	Users  []int64 `mapstructure:"users"`
	Images []int64 `mapstructure:"images"`
	Terms  []int64 `mapstructure:"terms"`
}

func NewAnnotationCollection() *AnnotationCollection {
	col := &AnnotationCollection{}
	col.init("annotation", func() Model { return &Annotation{} }, "project", "image", "term")
	return col
}

func (c *AnnotationCollection) Annotations() []*Annotation {
	out := make([]*Annotation, len(c.data))
	for i, m := range c.data {
		out[i] = m.(*Annotation)
	}
	return out
}

// AnnotationTerm labels an annotation with one ontology term.  It is
// a keyless link resource addressed by its annotation/term pair; the
// server does not always return an identifier for it.
type AnnotationTerm struct {
	Entity `mapstructure:",squash"`

	Annotation int64 `mapstructure:"userannotation"`
	Term       int64 `mapstructure:"term"`
	User       int64 `mapstructure:"user"`
}

func NewAnnotationTerm(annotation, term int64) *AnnotationTerm {
	return &AnnotationTerm{Annotation: annotation, Term: term}
}

func (at *AnnotationTerm) Kind() string { return "annotationterm" }

func (at *AnnotationTerm) CallbackKeys() []string {
	return []string{"annotationterm", "term"}
}

func (at *AnnotationTerm) URI() (string, error) {
	if at.Annotation == 0 || at.Term == 0 {
		return "", ErrNoID
	}
	return fmt.Sprintf("annotation/%d/term/%d.json", at.Annotation, at.Term), nil
}
