// Copyright 2019 Cytomine.
// This software is released under an MIT/X11 open source license.

package cytomine

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/cytomine/go-cytomine/parallel"
	"github.com/cytomine/go-cytomine/pattern"
)

// rasterExtensions are the formats the imaging server renders
// directly; anything else is rewritten to jpg.
var rasterExtensions = map[string]bool{
	"jpg":  true,
	"png":  true,
	"tif":  true,
	"tiff": true,
}

func splitExt(path string) (stem, ext string) {
	ext = strings.TrimPrefix(filepath.Ext(path), ".")
	return strings.TrimSuffix(path, filepath.Ext(path)), ext
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// dump resolves destPattern against the model's attributes, fetches
// the rendered image once over the wire, and fans it out to every
// resolved path.  normalizeExt maps a requested extension to the one
// actually rendered; urlFor builds the server URL for that extension.
func (c *Client) dump(m Model, destPattern string, override bool,
	normalizeExt func(string) string,
	urlFor func(ext string) (string, url.Values)) ([]string, error) {

	attrs, err := marshalModel(m)
	if err != nil {
		return nil, err
	}

	var paths []string
	ext := ""
	for _, resolved := range pattern.Resolve(destPattern, attrs) {
		stem, e := splitExt(resolved)
		e = normalizeExt(e)
		if ext == "" {
			ext = e
		}
		path := stem + "." + e
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, err
			}
		}
		paths = append(paths, path)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("destination pattern %q resolved to no path", destPattern)
	}

	uri, params := urlFor(ext)
	if err := c.session.downloadFile(uri, paths[0], override, params); err != nil {
		return nil, DumpError{URL: uri, Dest: paths[0], Err: err}
	}
	for _, path := range paths[1:] {
		if !override {
			if _, err := os.Stat(path); err == nil {
				continue
			}
		}
		if err := copyFile(paths[0], path); err != nil {
			return nil, DumpError{URL: uri, Dest: path, Err: err}
		}
	}
	return paths, nil
}

func defaultExt(ext string) string {
	if !rasterExtensions[ext] {
		return "jpg"
	}
	return ext
}

// CropOptions tune the rendering of annotation crops.
type CropOptions struct {
	// Mask requests a binary mask instead of the raw crop; Alpha
	// additionally makes the background transparent, which forces
	// the png format.
	Mask  bool
	Alpha bool

	MaxSize      int
	ZoomLevel    int
	IncreaseArea float64
	Contrast     float64
	Gamma        float64
	Colormap     int
	Inverse      bool
	BitDepth     int
}

func (o CropOptions) variant() string {
	switch {
	case o.Mask && o.Alpha:
		return "alphamask"
	case o.Mask:
		return "mask"
	default:
		return "crop"
	}
}

func (o CropOptions) params() url.Values {
	params := url.Values{}
	if o.MaxSize > 0 {
		params.Set("maxSize", strconv.Itoa(o.MaxSize))
	}
	if o.ZoomLevel > 0 {
		params.Set("zoom", strconv.Itoa(o.ZoomLevel))
	}
	if o.IncreaseArea > 0 {
		params.Set("increaseArea", strconv.FormatFloat(o.IncreaseArea, 'f', -1, 64))
	}
	if o.Contrast > 0 {
		params.Set("contrast", strconv.FormatFloat(o.Contrast, 'f', -1, 64))
	}
	if o.Gamma > 0 {
		params.Set("gamma", strconv.FormatFloat(o.Gamma, 'f', -1, 64))
	}
	if o.Colormap > 0 {
		params.Set("colormap", strconv.Itoa(o.Colormap))
	}
	if o.Inverse {
		params.Set("inverse", "true")
	}
	if o.BitDepth > 0 {
		params.Set("bits", strconv.Itoa(o.BitDepth))
	}
	return params
}

// DumpAnnotation writes the rendered crop (or mask, or alpha mask)
// of an annotation to every path destPattern resolves to.  Only the
// first path hits the network; the rest are local copies.  The
// written paths are recorded on the annotation and returned.
func (c *Client) DumpAnnotation(a *Annotation, destPattern string, override bool, opts CropOptions) ([]string, error) {
	if a.ID == 0 {
		return nil, fmt.Errorf("annotation dump: %w", ErrNoID)
	}

	normalize := defaultExt
	if opts.variant() == "alphamask" {
		// jpeg has no alpha channel
		normalize = func(ext string) string {
			ext = defaultExt(ext)
			if ext == "jpg" {
				ext = "png"
			}
			return ext
		}
	}

	paths, err := c.dump(a, destPattern, override, normalize, func(ext string) (string, url.Values) {
		return fmt.Sprintf("annotation/%d/%s.%s", a.ID, opts.variant(), ext), opts.params()
	})
	if err != nil {
		return nil, err
	}
	a.Filenames = paths
	a.Filename = paths[0]
	return paths, nil
}

// DumpAnnotations runs DumpAnnotation over a whole collection on
// workers goroutines and returns a collection holding only the
// annotations whose dump succeeded, each with Filenames filled in.
func (c *Client) DumpAnnotations(col *AnnotationCollection, destPattern string, override bool, workers int, opts CropOptions) *AnnotationCollection {
	results := parallel.Map(col.Annotations(), workers, func(a *Annotation) ([]string, error) {
		return c.DumpAnnotation(a, destPattern, override, opts)
	})

	dumped := NewAnnotationCollection()
	failed := 0
	for _, res := range results {
		if res.Err != nil {
			failed++
			c.logger.WithFields(logrus.Fields{
				"annotation": res.Item.ID,
				"err":        res.Err,
			}).Error("Could not dump annotation")
			continue
		}
		dumped.data = append(dumped.data, res.Item)
	}
	if failed > 0 {
		c.logger.WithFields(logrus.Fields{
			"failed": failed,
			"total":  col.Len(),
		}).Warnf("Dumped %d/%d annotations", col.Len()-failed, col.Len())
	}
	return dumped
}

// DumpImage writes a full-image rendition of an image instance,
// scaled down to maxSize pixels on its longest side when maxSize is
// positive.
func (c *Client) DumpImage(img *ImageInstance, destPattern string, override bool, maxSize int) ([]string, error) {
	if img.ID == 0 {
		return nil, fmt.Errorf("image dump: %w", ErrNoID)
	}
	paths, err := c.dump(img, destPattern, override, defaultExt, func(ext string) (string, url.Values) {
		params := url.Values{}
		if maxSize > 0 {
			params.Set("maxSize", strconv.Itoa(maxSize))
		}
		return fmt.Sprintf("imageinstance/%d/thumb.%s", img.ID, ext), params
	})
	if err != nil {
		return nil, err
	}
	img.Filenames = paths
	return paths, nil
}

// DumpImageWindow writes a rectangular region of an image instance.
// With mask set the server renders the annotation mask of the
// region; terms restricts that mask to the given term ids.
func (c *Client) DumpImageWindow(img *ImageInstance, x, y, w, h int, destPattern string, override bool, mask bool, terms []int64) ([]string, error) {
	if img.ID == 0 {
		return nil, fmt.Errorf("image window dump: %w", ErrNoID)
	}
	return c.dump(img, destPattern, override, defaultExt, func(ext string) (string, url.Values) {
		params := url.Values{}
		if mask {
			params.Set("mask", "true")
		}
		for _, term := range terms {
			params.Add("terms", strconv.FormatInt(term, 10))
		}
		return fmt.Sprintf("imageinstance/%d/window-%d-%d-%d-%d.%s", img.ID, x, y, w, h, ext), params
	})
}
