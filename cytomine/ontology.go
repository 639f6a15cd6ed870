// Copyright 2019 Cytomine.
// This software is released under an MIT/X11 open source license.

package cytomine

import "fmt"

// Ontology is a hierarchical set of terms used to annotate regions.
type Ontology struct {
	Entity `mapstructure:",squash"`

	Name string `mapstructure:"name"`
	User int64  `mapstructure:"user"`
}

func NewOntology(name string) *Ontology {
	return &Ontology{Name: name}
}

func (o *Ontology) Kind() string { return "ontology" }

func (o *Ontology) CallbackKeys() []string { return []string{"ontology"} }

type OntologyCollection struct {
	Collection `mapstructure:",squash"`
}

func NewOntologyCollection() *OntologyCollection {
	col := &OntologyCollection{}
	col.init("ontology", func() Model { return &Ontology{} })
	return col
}

func (c *OntologyCollection) Ontologies() []*Ontology {
	out := make([]*Ontology, len(c.data))
	for i, m := range c.data {
		out[i] = m.(*Ontology)
	}
	return out
}

// Term is one ontology label.
type Term struct {
	Entity `mapstructure:",squash"`

	Name     string `mapstructure:"name"`
	Ontology int64  `mapstructure:"ontology"`
	Parent   int64  `mapstructure:"parent"`
	Color    string `mapstructure:"color"`
}

func NewTerm(name string, ontology int64, color string) *Term {
	return &Term{Name: name, Ontology: ontology, Color: color}
}

func (t *Term) Kind() string { return "term" }

func (t *Term) CallbackKeys() []string { return []string{"term"} }

type TermCollection struct {
	Collection `mapstructure:",squash"`
}

func NewTermCollection() *TermCollection {
	col := &TermCollection{}
	col.init("term", func() Model { return &Term{} }, "project", "ontology")
	return col
}

func (c *TermCollection) Terms() []*Term {
	out := make([]*Term, len(c.data))
	for i, m := range c.data {
		out[i] = m.(*Term)
	}
	return out
}

// RelationTerm is the parent/child link between two terms.  It is a
// keyless link resource addressed by its term pair.
type RelationTerm struct {
	Entity `mapstructure:",squash"`

	Term1 int64 `mapstructure:"term1"`
	Term2 int64 `mapstructure:"term2"`
}

func NewRelationTerm(term1, term2 int64) *RelationTerm {
	return &RelationTerm{Term1: term1, Term2: term2}
}

func (rt *RelationTerm) Kind() string { return "relationterm" }

func (rt *RelationTerm) CallbackKeys() []string {
	return []string{"relationterm", "relation"}
}

// URI addresses the link through its dual-term path.
func (rt *RelationTerm) URI() (string, error) {
	if rt.Term1 == 0 || rt.Term2 == 0 {
		return "", ErrNoID
	}
	return fmt.Sprintf("relation/parent/term1/%d/term2/%d.json", rt.Term1, rt.Term2), nil
}

func (rt *RelationTerm) saveURI() (string, error) {
	return "relation/parent/term.json", nil
}
