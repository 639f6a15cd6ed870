// Copyright 2019 Cytomine.
// This software is released under an MIT/X11 open source license.

package cytomine

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSignGet(t *testing.T) {
	req, err := http.NewRequest("GET", "http://h/api/project/1.json", nil)
	if !assert.NoError(t, err) {
		return
	}
	req.Header.Set("date", "Tue, 01 Jan 2030 00:00:00 +0000")

	SignRequest(req, "pub", "priv")

	assert.Equal(t, "CYTOMINE pub:hgDD3xowDLH61MJXNv0pk/N7ggM=",
		req.Header.Get("authorization"))
}

func TestSignIncludesQuery(t *testing.T) {
	plain, err := http.NewRequest("GET", "http://h/api/annotation.json", nil)
	if !assert.NoError(t, err) {
		return
	}
	filtered, err := http.NewRequest("GET", "http://h/api/annotation.json?project=42", nil)
	if !assert.NoError(t, err) {
		return
	}
	date := "Tue, 01 Jan 2030 00:00:00 +0000"
	plain.Header.Set("date", date)
	filtered.Header.Set("date", date)

	SignRequest(plain, "pub", "priv")
	SignRequest(filtered, "pub", "priv")

	assert.NotEqual(t, plain.Header.Get("authorization"),
		filtered.Header.Get("authorization"))
}

func TestSignContentType(t *testing.T) {
	req, err := http.NewRequest("POST", "http://h/api/project.json", nil)
	if !assert.NoError(t, err) {
		return
	}
	req.Header.Set("date", "Tue, 01 Jan 2030 00:00:00 +0000")
	req.Header.Set("content-type", "application/json")

	SignRequest(req, "pub", "priv")
	withType := req.Header.Get("authorization")

	req.Header.Del("content-type")
	SignRequest(req, "pub", "priv")

	assert.NotEqual(t, withType, req.Header.Get("authorization"))
}
