// Copyright 2019 Cytomine.
// This software is released under an MIT/X11 open source license.

package cytomine

// AbstractImage is the raw uploaded image file with its pyramidal
// representation, independent of any project.
type AbstractImage struct {
	Entity `mapstructure:",squash"`

	Filename         string  `mapstructure:"filename"`
	OriginalFilename string  `mapstructure:"originalFilename"`
	Path             string  `mapstructure:"path"`
	ContentType      string  `mapstructure:"contentType"`
	Width            int     `mapstructure:"width"`
	Height           int     `mapstructure:"height"`
	Depth            int     `mapstructure:"depth"`
	Duration         int     `mapstructure:"duration"`
	Channels         int     `mapstructure:"channels"`
	Magnification    int     `mapstructure:"magnification"`
	Resolution       float64 `mapstructure:"resolution"`
}

func (img *AbstractImage) Kind() string { return "abstractimage" }

func (img *AbstractImage) CallbackKeys() []string {
	return []string{"abstractimage", "image"}
}

type AbstractImageCollection struct {
	Collection `mapstructure:",squash"`
}

func NewAbstractImageCollection() *AbstractImageCollection {
	col := &AbstractImageCollection{}
	col.init("abstractimage", func() Model { return &AbstractImage{} }, "project")
	return col
}

func (c *AbstractImageCollection) AbstractImages() []*AbstractImage {
	out := make([]*AbstractImage, len(c.data))
	for i, m := range c.data {
		out[i] = m.(*AbstractImage)
	}
	return out
}

// ImageInstance is a project-scoped view of an abstract image.
type ImageInstance struct {
	Entity `mapstructure:",squash"`

	BaseImage           int64   `mapstructure:"baseImage"`
	Project             int64   `mapstructure:"project"`
	User                int64   `mapstructure:"user"`
	Filename            string  `mapstructure:"filename"`
	InstanceFilename    string  `mapstructure:"instanceFilename"`
	OriginalFilename    string  `mapstructure:"originalFilename"`
	Width               int     `mapstructure:"width"`
	Height              int     `mapstructure:"height"`
	Depth               int     `mapstructure:"depth"`
	Magnification       int     `mapstructure:"magnification"`
	Resolution          float64 `mapstructure:"resolution"`
	NumberOfAnnotations int     `mapstructure:"numberOfAnnotations"`

	// Filenames lists the local paths written by the last dump.
	Filenames []string `mapstructure:"filenames"`
}

// NewImageInstance binds an abstract image into a project.
func NewImageInstance(baseImage, project int64) *ImageInstance {
	return &ImageInstance{BaseImage: baseImage, Project: project}
}

func (img *ImageInstance) Kind() string { return "imageinstance" }

func (img *ImageInstance) CallbackKeys() []string {
	return []string{"imageinstance", "image"}
}

type ImageInstanceCollection struct {
	Collection `mapstructure:",squash"`
}

func NewImageInstanceCollection() *ImageInstanceCollection {
	col := &ImageInstanceCollection{}
	col.init("imageinstance", func() Model { return &ImageInstance{} }, "project", "user")
	return col
}

func (c *ImageInstanceCollection) ImageInstances() []*ImageInstance {
	out := make([]*ImageInstance, len(c.data))
	for i, m := range c.data {
		out[i] = m.(*ImageInstance)
	}
	return out
}

// SliceInstance is one 2D plane (channel/Z/time) of a
// multidimensional image.
type SliceInstance struct {
	Entity `mapstructure:",squash"`

	Project   int64 `mapstructure:"project"`
	Image     int64 `mapstructure:"image"`
	BaseSlice int64 `mapstructure:"baseSlice"`
	Channel   int   `mapstructure:"channel"`
	ZStack    int   `mapstructure:"zStack"`
	Time      int   `mapstructure:"time"`
}

func (s *SliceInstance) Kind() string { return "sliceinstance" }

func (s *SliceInstance) CallbackKeys() []string {
	return []string{"sliceinstance", "slice"}
}

type SliceInstanceCollection struct {
	Collection `mapstructure:",squash"`
}

func NewSliceInstanceCollection() *SliceInstanceCollection {
	col := &SliceInstanceCollection{}
	col.init("sliceinstance", func() Model { return &SliceInstance{} }, "imageinstance")
	return col
}

func (c *SliceInstanceCollection) SliceInstances() []*SliceInstance {
	out := make([]*SliceInstance, len(c.data))
	for i, m := range c.data {
		out[i] = m.(*SliceInstance)
	}
	return out
}
