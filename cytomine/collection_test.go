// Copyright 2019 Cytomine.
// This software is released under an MIT/X11 open source license.

package cytomine

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cytomine/go-cytomine/cytominetest"
)

func TestCollectionURIWithFilter(t *testing.T) {
	col := NewAnnotationCollection()
	col.AddFilter("project", int64(42))
	uri, err := collectionURI(col)
	require.NoError(t, err)
	assert.Equal(t, "project/42/annotation.json", uri)
}

func TestCollectionURITooManyFilters(t *testing.T) {
	col := NewAnnotationCollection()
	col.AddFilter("project", int64(42))
	col.AddFilter("image", int64(7))
	_, err := collectionURI(col)
	assert.ErrorIs(t, err, ErrTooManyFilters)

	col.AllowMultipleFilters()
	_, err = collectionURI(col)
	assert.NoError(t, err)
}

func TestCollectionUnknownFilterBecomesParam(t *testing.T) {
	col := NewProjectCollection()
	col.AddFilter("current", true)

	uri, err := collectionURI(col)
	require.NoError(t, err)
	assert.Equal(t, "project.json", uri)

	params, err := collectionParams(col)
	require.NoError(t, err)
	assert.Equal(t, "true", params.Get("current"))
}

func TestAnnotationCollectionParams(t *testing.T) {
	col := NewAnnotationCollection()
	col.ShowWKT = true
	col.ShowTerm = true
	col.Terms = []int64{5, 9}

	params, err := collectionParams(col)
	require.NoError(t, err)
	assert.Equal(t, "true", params.Get("showWKT"))
	assert.Equal(t, "true", params.Get("showTerm"))
	assert.Equal(t, "5,9", params.Get("terms"))
	assert.Empty(t, params.Get("showGIS"))
}

func TestFetchFilteredCollection(t *testing.T) {
	server := cytominetest.New()
	defer server.Close()
	client := testClient(t, server)

	server.Seed("annotation", cytominetest.Doc{"project": int64(42), "image": int64(7)})
	server.Seed("annotation", cytominetest.Doc{"project": int64(42), "image": int64(8)})
	server.Seed("annotation", cytominetest.Doc{"project": int64(99), "image": int64(9)})

	col := NewAnnotationCollection()
	require.NoError(t, client.FetchCollectionWithFilter(col, "project", int64(42)))
	assert.Equal(t, 2, col.Len())
	assert.Equal(t, 2, col.Total())
	for _, a := range col.Annotations() {
		assert.Equal(t, int64(42), a.Project)
	}

	requests := server.RequestsTo("/api/project/42/annotation.json")
	assert.Len(t, requests, 1)
}

func TestFetchCollectionPagination(t *testing.T) {
	server := cytominetest.New()
	defer server.Close()
	client := testClient(t, server)

	for i := 0; i < 250; i++ {
		server.Seed("project", cytominetest.Doc{"name": fmt.Sprintf("p%03d", i)})
	}

	col := NewProjectCollection()
	col.Max = 100
	require.NoError(t, client.FetchCollection(col))

	assert.Equal(t, 250, col.Len())
	assert.Equal(t, 250, col.Total())
	assert.Equal(t, 3, col.TotalPages())

	var offsets []string
	for _, req := range server.RequestsTo("/api/project.json") {
		for _, pair := range strings.Split(req.Query, "&") {
			if strings.HasPrefix(pair, "offset=") {
				offsets = append(offsets, strings.TrimPrefix(pair, "offset="))
			}
		}
	}
	assert.Equal(t, []string{"0", "100", "200"}, offsets)

	// Server-side id order survives page stitching.
	projects := col.Projects()
	for i := 1; i < len(projects); i++ {
		assert.Less(t, projects[i-1].ID, projects[i].ID)
	}
}

func TestAppendWrongKind(t *testing.T) {
	col := NewProjectCollection()
	assert.ErrorIs(t, col.Append(&Annotation{}), ErrWrongKind)
	assert.NoError(t, col.Append(&Project{Name: "ok"}))
}

func TestSaveCollection(t *testing.T) {
	server := cytominetest.New()
	defer server.Close()
	client := testClient(t, server)

	col := NewProjectCollection()
	for i := 0; i < 5; i++ {
		require.NoError(t, col.Append(&Project{Name: fmt.Sprintf("p%d", i)}))
	}
	require.NoError(t, client.SaveCollection(col, 0, 1))
	assert.Equal(t, 5, server.Count("project"))
	for _, p := range col.Projects() {
		assert.NotZero(t, p.ID)
	}
}

func TestSaveCollectionPartialFailure(t *testing.T) {
	server := cytominetest.New()
	defer server.Close()
	client := testClient(t, server)

	col := NewProjectCollection()
	for i := 0; i < 37; i++ {
		require.NoError(t, col.Append(&Project{Name: fmt.Sprintf("p%02d", i)}))
	}
	// Three attempts cover the transport's retry budget, so exactly
	// the first chunk fails for good.
	server.FailNextPost("project", 3)

	err := client.SaveCollection(col, 10, 1)
	var partial PartialUploadError
	require.ErrorAs(t, err, &partial)

	assert.Equal(t, 27, partial.Created.Len())
	assert.Equal(t, 10, partial.Failed.Len())
	assert.Equal(t, 27, server.Count("project"))

	names := map[string]bool{}
	for _, m := range partial.Created.Models() {
		names[m.(*Project).Name] = true
	}
	for _, m := range partial.Failed.Models() {
		assert.False(t, names[m.(*Project).Name], "entity in both partitions")
		names[m.(*Project).Name] = true
	}
	assert.Len(t, names, 37)

	// The failed partition can be retried on its own.
	require.NoError(t, client.SaveCollection(partial.Failed, 10, 1))
	assert.Equal(t, 37, server.Count("project"))
}

func TestDomainCollectionFetch(t *testing.T) {
	server := cytominetest.New()
	defer server.Close()
	client := testClient(t, server)

	annotation := &Annotation{}
	annotation.SetID(123)
	server.Seed("property", cytominetest.Doc{
		"domainClassName": "annotation",
		"domainIdent":     int64(123),
		"key":             "area",
		"value":           "12.5",
	})
	server.Seed("property", cytominetest.Doc{
		"domainClassName": "annotation",
		"domainIdent":     int64(999),
		"key":             "other",
		"value":           "x",
	})

	col, err := NewPropertyCollection(annotation)
	require.NoError(t, err)
	require.NoError(t, client.FetchCollection(col))
	require.Equal(t, 1, col.Len())
	prop := col.Properties()[0]
	assert.Equal(t, "area", prop.Key)
	assert.Equal(t, "12.5", prop.Value)

	assert.Len(t, server.RequestsTo("/api/annotation/123/property.json"), 1)
}
