// Copyright 2019 Cytomine.
// This software is released under an MIT/X11 open source license.

package cytomine

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingTransport struct {
	hits   int
	header http.Header
}

func (t *countingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	t.hits++
	header := http.Header{}
	for k, vs := range t.header {
		header[k] = vs
	}
	return &http.Response{
		StatusCode: http.StatusOK,
		Status:     "200 OK",
		Header:     header,
		Body:       io.NopCloser(strings.NewReader(fmt.Sprintf("hit %d", t.hits))),
		Request:    req,
	}, nil
}

func cacheRequest(t *testing.T, transport *cachingTransport, method, url string) string {
	req, err := http.NewRequest(method, url, nil)
	require.NoError(t, err)
	resp, err := transport.RoundTrip(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func TestCacheServesFreshEntries(t *testing.T) {
	inner := &countingTransport{header: http.Header{"Cache-Control": {"max-age=60"}}}
	clk := clock.NewMock()
	transport := newCachingTransport(inner, clk)

	assert.Equal(t, "hit 1", cacheRequest(t, transport, "GET", "http://h/api/project/1.json"))
	assert.Equal(t, "hit 1", cacheRequest(t, transport, "GET", "http://h/api/project/1.json"))
	assert.Equal(t, 1, inner.hits)

	// Another URL is its own entry.
	assert.Equal(t, "hit 2", cacheRequest(t, transport, "GET", "http://h/api/project/2.json"))
	assert.Equal(t, 2, inner.hits)
}

func TestCacheExpiry(t *testing.T) {
	inner := &countingTransport{header: http.Header{"Cache-Control": {"max-age=60"}}}
	clk := clock.NewMock()
	transport := newCachingTransport(inner, clk)

	cacheRequest(t, transport, "GET", "http://h/api/project/1.json")
	clk.Add(61 * time.Second)
	assert.Equal(t, "hit 2", cacheRequest(t, transport, "GET", "http://h/api/project/1.json"))
	assert.Equal(t, 2, inner.hits)
}

func TestCacheSkipsUncacheable(t *testing.T) {
	for _, control := range []string{"", "no-store", "no-cache", "private, max-age=60"} {
		inner := &countingTransport{header: http.Header{}}
		if control != "" {
			inner.header.Set("Cache-Control", control)
		}
		transport := newCachingTransport(inner, clock.NewMock())
		cacheRequest(t, transport, "GET", "http://h/api/project/1.json")
		cacheRequest(t, transport, "GET", "http://h/api/project/1.json")
		assert.Equal(t, 2, inner.hits, "Cache-Control: %q", control)
	}
}

func TestCacheInvalidatedByWrite(t *testing.T) {
	inner := &countingTransport{header: http.Header{"Cache-Control": {"max-age=60"}}}
	transport := newCachingTransport(inner, clock.NewMock())

	cacheRequest(t, transport, "GET", "http://h/api/project/1.json")
	cacheRequest(t, transport, "PUT", "http://h/api/project/1.json")
	assert.Equal(t, "hit 3", cacheRequest(t, transport, "GET", "http://h/api/project/1.json"))
}

func TestResponseLRUEvicts(t *testing.T) {
	lru := newResponseLRU(2)
	lru.Put(&cachedResponse{key: "a"})
	lru.Put(&cachedResponse{key: "b"})
	require.NotNil(t, lru.Get("a"))

	// b is now least recently used and goes first.
	lru.Put(&cachedResponse{key: "c"})
	assert.Nil(t, lru.Get("b"))
	assert.NotNil(t, lru.Get("a"))
	assert.NotNil(t, lru.Get("c"))
}
