// Copyright 2019 Cytomine.
// This software is released under an MIT/X11 open source license.

package cytomine

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cytomine/go-cytomine/cytominetest"
)

func testAnnotation() *Annotation {
	a := &Annotation{Image: 7, Term: []int64{5, 9}}
	a.SetID(123)
	return a
}

func TestDumpAnnotationFansOut(t *testing.T) {
	server := cytominetest.New()
	defer server.Close()
	client := testClient(t, server)
	dir := t.TempDir()

	a := testAnnotation()
	paths, err := client.DumpAnnotation(a, filepath.Join(dir, "{term}/{image}_{id}.png"), true, CropOptions{})
	require.NoError(t, err)

	want := []string{
		filepath.Join(dir, "5/7_123.png"),
		filepath.Join(dir, "9/7_123.png"),
	}
	assert.ElementsMatch(t, want, paths)
	assert.Equal(t, paths, a.Filenames)
	assert.Equal(t, paths[0], a.Filename)
	for _, path := range paths {
		content, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "fake-image-bytes", string(content))
	}

	// One network download, the other file is a local copy.
	assert.Equal(t, 1, server.CropDownloads())
	requests := server.RequestsTo("/api/annotation/123/crop.png")
	assert.Len(t, requests, 1)
}

func TestDumpAnnotationRewritesExtension(t *testing.T) {
	server := cytominetest.New()
	defer server.Close()
	client := testClient(t, server)
	dir := t.TempDir()

	a := testAnnotation()
	paths, err := client.DumpAnnotation(a, filepath.Join(dir, "{id}.bmp"), true, CropOptions{})
	require.NoError(t, err)
	require.Len(t, paths, 1)
	assert.True(t, strings.HasSuffix(paths[0], "123.jpg"))
	assert.Len(t, server.RequestsTo("/api/annotation/123/crop.jpg"), 1)
}

func TestDumpAnnotationAlphaForcesPNG(t *testing.T) {
	server := cytominetest.New()
	defer server.Close()
	client := testClient(t, server)
	dir := t.TempDir()

	a := testAnnotation()
	paths, err := client.DumpAnnotation(a, filepath.Join(dir, "{id}.jpg"), true,
		CropOptions{Mask: true, Alpha: true})
	require.NoError(t, err)
	require.Len(t, paths, 1)
	assert.True(t, strings.HasSuffix(paths[0], "123.png"))
	assert.Len(t, server.RequestsTo("/api/annotation/123/alphamask.png"), 1)
}

func TestDumpAnnotationKeepsExisting(t *testing.T) {
	server := cytominetest.New()
	defer server.Close()
	client := testClient(t, server)
	dir := t.TempDir()

	existing := filepath.Join(dir, "9/7_123.png")
	require.NoError(t, os.MkdirAll(filepath.Dir(existing), 0o755))
	require.NoError(t, os.WriteFile(existing, []byte("old bytes"), 0o644))

	a := testAnnotation()
	_, err := client.DumpAnnotation(a, filepath.Join(dir, "{term}/{image}_{id}.png"), false, CropOptions{})
	require.NoError(t, err)

	content, err := os.ReadFile(existing)
	require.NoError(t, err)
	assert.Equal(t, "old bytes", string(content))
}

func TestDumpAnnotationRequiresID(t *testing.T) {
	server := cytominetest.New()
	defer server.Close()
	client := testClient(t, server)

	_, err := client.DumpAnnotation(&Annotation{}, "{id}.png", true, CropOptions{})
	assert.ErrorIs(t, err, ErrNoID)
}

func TestDumpAnnotations(t *testing.T) {
	server := cytominetest.New()
	defer server.Close()
	client := testClient(t, server)
	dir := t.TempDir()

	col := NewAnnotationCollection()
	for i := int64(1); i <= 4; i++ {
		a := &Annotation{Image: 7}
		a.SetID(i)
		require.NoError(t, col.Append(a))
	}
	// An annotation without an identifier cannot be dumped.
	require.NoError(t, col.Append(&Annotation{Image: 7}))

	dumped := client.DumpAnnotations(col, filepath.Join(dir, "{image}_{id}.png"), true, 2, CropOptions{})
	assert.Equal(t, 4, dumped.Len())
	for _, a := range dumped.Annotations() {
		require.Len(t, a.Filenames, 1)
		_, err := os.Stat(a.Filenames[0])
		assert.NoError(t, err)
	}
}

func TestDumpImage(t *testing.T) {
	server := cytominetest.New()
	defer server.Close()
	client := testClient(t, server)
	dir := t.TempDir()

	img := &ImageInstance{}
	img.SetID(55)
	paths, err := client.DumpImage(img, filepath.Join(dir, "{id}.jpg"), true, 512)
	require.NoError(t, err)
	require.Len(t, paths, 1)
	assert.Equal(t, paths, img.Filenames)

	requests := server.RequestsTo("/api/imageinstance/55/thumb.jpg")
	require.Len(t, requests, 1)
	assert.Contains(t, requests[0].Query, "maxSize=512")
}
