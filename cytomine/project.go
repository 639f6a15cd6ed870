// Copyright 2019 Cytomine.
// This software is released under an MIT/X11 open source license.

package cytomine

// Project is a workspace grouping images, users, ontologies, and
// jobs.
type Project struct {
	Entity `mapstructure:",squash"`

	Name                   string `mapstructure:"name"`
	Ontology               int64  `mapstructure:"ontology"`
	OntologyName           string `mapstructure:"ontologyName"`
	NumberOfImages         int    `mapstructure:"numberOfImages"`
	NumberOfAnnotations    int    `mapstructure:"numberOfAnnotations"`
	NumberOfJobAnnotations int    `mapstructure:"numberOfJobAnnotations"`
	IsClosed               bool   `mapstructure:"isClosed"`
	IsReadOnly             bool   `mapstructure:"isReadOnly"`
}

// NewProject creates a new project bound to an ontology.
func NewProject(name string, ontology int64) *Project {
	return &Project{Name: name, Ontology: ontology}
}

func (p *Project) Kind() string { return "project" }

func (p *Project) CallbackKeys() []string { return []string{"project"} }

// ProjectCollection lists projects, optionally filtered by user or
// ontology.
type ProjectCollection struct {
	Collection `mapstructure:",squash"`
}

func NewProjectCollection() *ProjectCollection {
	col := &ProjectCollection{}
	col.init("project", func() Model { return &Project{} }, "user", "ontology")
	return col
}

// Projects returns the typed element list.
func (c *ProjectCollection) Projects() []*Project {
	out := make([]*Project, len(c.data))
	for i, m := range c.data {
		out[i] = m.(*Project)
	}
	return out
}
