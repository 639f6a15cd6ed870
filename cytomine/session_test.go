// Copyright 2019 Cytomine.
// This software is released under an MIT/X11 open source license.

package cytomine

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cytomine/go-cytomine/cytominetest"
)

func TestRedirectionNotFollowed(t *testing.T) {
	redirecting := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "https://elsewhere.example/api/", http.StatusFound)
	}))
	defer redirecting.Close()

	server := cytominetest.New()
	defer server.Close()
	client := testClient(t, server)

	err := client.session.get(redirecting.URL+"/api/project/1.json", nil, nil)
	var redirect RedirectionError
	require.ErrorAs(t, err, &redirect)
	assert.Equal(t, http.StatusFound, redirect.Status)
	assert.Equal(t, "https://elsewhere.example/api/", redirect.Location)
}

func TestDecodeErrorMessageShapes(t *testing.T) {
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("content-type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		switch r.URL.Path {
		case "/flat":
			w.Write([]byte(`{"errors": "flat message"}`))
		case "/nested":
			w.Write([]byte(`{"errors": {"message": "nested message"}}`))
		default:
			w.Write([]byte(`not json at all`))
		}
	}))
	defer failing.Close()

	server := cytominetest.New()
	defer server.Close()
	client := testClient(t, server)

	for path, want := range map[string]string{
		"/flat":   "flat message",
		"/nested": "nested message",
		"/other":  "",
	} {
		err := client.session.get(failing.URL+path, nil, nil)
		var remote RemoteError
		require.ErrorAs(t, err, &remote, path)
		assert.Equal(t, want, remote.Message, path)
	}
}

func TestDownloadFileKeepsExisting(t *testing.T) {
	server := cytominetest.New()
	defer server.Close()
	client := testClient(t, server)

	dest := filepath.Join(t.TempDir(), "crop.png")
	require.NoError(t, os.WriteFile(dest, []byte("old bytes"), 0o644))
	before := server.CropDownloads()

	err := client.session.downloadFile("annotation/1/crop.png", dest, false, nil)
	require.NoError(t, err)

	content, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "old bytes", string(content))
	assert.Equal(t, before, server.CropDownloads())

	require.NoError(t, client.session.downloadFile("annotation/1/crop.png", dest, true, nil))
	content, err = os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "fake-image-bytes", string(content))
	assert.Equal(t, before+1, server.CropDownloads())
}

func TestUploadImage(t *testing.T) {
	server := cytominetest.New()
	defer server.Close()
	client := testClient(t, server)

	local := filepath.Join(t.TempDir(), "slide.tiff")
	require.NoError(t, os.WriteFile(local, []byte("slide bytes"), 0o644))

	storage := &Storage{}
	storage.SetID(17)
	project := &Project{}
	project.SetID(42)

	uploaded, err := client.UploadImage(local, storage, project, nil, true)
	require.NoError(t, err)
	require.NotZero(t, uploaded.ID)
	assert.Equal(t, "slide.tiff", uploaded.OriginalFilename)
	require.Len(t, uploaded.Images, 1)
	require.Len(t, uploaded.ImageInstances, 1)
	assert.Equal(t, int64(42), uploaded.ImageInstances[0].Project)

	requests := server.RequestsTo("/upload")
	require.Len(t, requests, 1)
	assert.Contains(t, requests[0].Query, "idStorage=17")
	assert.Contains(t, requests[0].Query, "idProject=42")
	assert.Contains(t, requests[0].Query, "sync=true")
}

func TestUploadImageProperties(t *testing.T) {
	server := cytominetest.New()
	defer server.Close()
	client := testClient(t, server)

	local := filepath.Join(t.TempDir(), "slide.tiff")
	require.NoError(t, os.WriteFile(local, []byte("slide bytes"), 0o644))

	storage := &Storage{}
	storage.SetID(17)
	properties := map[string]string{
		"stain":         "HE",
		"magnification": "40",
	}

	_, err := client.UploadImage(local, storage, nil, properties, false)
	require.NoError(t, err)

	requests := server.RequestsTo("/upload")
	require.Len(t, requests, 1)
	query, err := url.ParseQuery(requests[0].Query)
	require.NoError(t, err)
	assert.Equal(t, "magnification,stain", query.Get("keys"))
	assert.Equal(t, "40,HE", query.Get("values"))
}

func TestUploadImageRequiresStorage(t *testing.T) {
	server := cytominetest.New()
	defer server.Close()
	client := testClient(t, server)

	_, err := client.UploadImage("whatever.tiff", &Storage{}, nil, nil, false)
	assert.ErrorIs(t, err, ErrNoID)
}

func TestUploadAttachedFile(t *testing.T) {
	server := cytominetest.New()
	defer server.Close()
	client := testClient(t, server)

	local := filepath.Join(t.TempDir(), "notes.pdf")
	require.NoError(t, os.WriteFile(local, []byte("pdf bytes"), 0o644))

	project := &Project{}
	project.SetID(42)
	attached, err := client.UploadAttachedFile(local, project)
	require.NoError(t, err)
	assert.NotZero(t, attached.ID)
}
