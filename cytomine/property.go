// Copyright 2019 Cytomine.
// This software is released under an MIT/X11 open source license.

package cytomine

// Property is a key/value pair attached to any parent resource.
type Property struct {
	Entity `mapstructure:",squash"`
	Domain `mapstructure:",squash"`

	Key   string `mapstructure:"key"`
	Value string `mapstructure:"value"`
}

// NewProperty attaches a key/value pair to an already persisted
// parent.
func NewProperty(parent Model, key, value string) (*Property, error) {
	p := &Property{Key: key, Value: value}
	if err := p.setParent(parent); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Property) Kind() string { return "property" }

func (p *Property) CallbackKeys() []string { return []string{"property"} }

// PropertyCollection lists the properties of one parent resource.
type PropertyCollection struct {
	Collection `mapstructure:",squash"`
	Domain     `mapstructure:",squash"`
}

func NewPropertyCollection(parent Model) (*PropertyCollection, error) {
	col := &PropertyCollection{}
	if err := col.setParent(parent); err != nil {
		return nil, err
	}
	parentKind, parentID := col.ParentKind, col.ParentID
	col.init("property", func() Model {
		return &Property{Domain: Domain{ParentKind: parentKind, ParentID: parentID}}
	})
	return col, nil
}

func (c *PropertyCollection) Properties() []*Property {
	out := make([]*Property, len(c.data))
	for i, m := range c.data {
		out[i] = m.(*Property)
	}
	return out
}

// AttachedFile is a blob attached to any parent resource.  Creation
// goes through the multipart upload path, not a JSON POST; see
// Client.UploadAttachedFile.
type AttachedFile struct {
	Entity `mapstructure:",squash"`
	Domain `mapstructure:",squash"`

	Filename string `mapstructure:"filename"`
	URL      string `mapstructure:"url"`
}

func NewAttachedFile(parent Model, filename string) (*AttachedFile, error) {
	f := &AttachedFile{Filename: filename}
	if err := f.setParent(parent); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *AttachedFile) Kind() string { return "attachedfile" }

func (f *AttachedFile) CallbackKeys() []string {
	return []string{"attachedfile", "attachedFile"}
}

// Description is the singleton rich-text description of a parent
// resource; it is addressed by its parent alone.
type Description struct {
	Entity `mapstructure:",squash"`
	Domain `mapstructure:",squash"`

	Data string `mapstructure:"data"`
}

func NewDescription(parent Model, data string) (*Description, error) {
	d := &Description{Data: data}
	if err := d.setParent(parent); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Description) Kind() string { return "description" }

func (d *Description) CallbackKeys() []string { return []string{"description"} }

func (d *Description) URI() (string, error) {
	prefix, err := d.domainPrefix()
	if err != nil {
		return "", err
	}
	return prefix + "description.json", nil
}
