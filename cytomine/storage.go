// Copyright 2019 Cytomine.
// This software is released under an MIT/X11 open source license.

package cytomine

// Storage is a server-side blob location owned by one user.
type Storage struct {
	Entity `mapstructure:",squash"`

	Name     string `mapstructure:"name"`
	User     int64  `mapstructure:"user"`
	BasePath string `mapstructure:"basePath"`
}

func (s *Storage) Kind() string { return "storage" }

func (s *Storage) CallbackKeys() []string { return []string{"storage"} }

type StorageCollection struct {
	Collection `mapstructure:",squash"`
}

func NewStorageCollection() *StorageCollection {
	col := &StorageCollection{}
	col.init("storage", func() Model { return &Storage{} })
	return col
}

func (c *StorageCollection) Storages() []*Storage {
	out := make([]*Storage, len(c.data))
	for i, m := range c.data {
		out[i] = m.(*Storage)
	}
	return out
}

// Uploaded file statuses, as stored in UploadedFile.Status.
const (
	UploadedFileUploaded   = 0
	UploadedFileConverted  = 1
	UploadedFileDeployed   = 2
	UploadedFileError      = 3
	UploadedFileUncompress = 4
	UploadedFileToDeploy   = 5
)

// UploadedFile is the lifecycle record of one uploaded blob.  Image
// is set once the server has deployed the file as an abstract image;
// asynchronous upload callers poll for it.
type UploadedFile struct {
	Entity `mapstructure:",squash"`

	Filename         string  `mapstructure:"filename"`
	OriginalFilename string  `mapstructure:"originalFilename"`
	Path             string  `mapstructure:"path"`
	ContentType      string  `mapstructure:"contentType"`
	Size             int64   `mapstructure:"size"`
	Status           int     `mapstructure:"status"`
	Storage          int64   `mapstructure:"storage"`
	User             int64   `mapstructure:"user"`
	Parent           int64   `mapstructure:"parent"`
	Image            int64   `mapstructure:"image"`
	Projects         []int64 `mapstructure:"projects"`

	// Images and ImageInstances are filled from an upload response,
	// which reports every image created from the file.
	Images         []*AbstractImage `mapstructure:"-"`
	ImageInstances []*ImageInstance `mapstructure:"-"`
}

func (f *UploadedFile) Kind() string { return "uploadedfile" }

func (f *UploadedFile) CallbackKeys() []string {
	return []string{"uploadedfile", "uploadedFile"}
}

type UploadedFileCollection struct {
	Collection `mapstructure:",squash"`
}

func NewUploadedFileCollection() *UploadedFileCollection {
	col := &UploadedFileCollection{}
	col.init("uploadedfile", func() Model { return &UploadedFile{} })
	return col
}

func (c *UploadedFileCollection) UploadedFiles() []*UploadedFile {
	out := make([]*UploadedFile, len(c.data))
	for i, m := range c.data {
		out[i] = m.(*UploadedFile)
	}
	return out
}
