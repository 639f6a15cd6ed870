// Copyright 2019 Cytomine.
// This software is released under an MIT/X11 open source license.

package cytomine

// This file provides the optional HTTP response cache.  It is a
// fixed-capacity LRU keyed by request URL, mounted as an
// http.RoundTripper under the session, and only ever serves
// idempotent GETs whose responses allowed caching via standard
// Cache-Control directives.

import (
	"bytes"
	"container/list"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// cacheCapacity bounds the number of responses kept in memory.
const cacheCapacity = 256

// cachedResponse is one stored GET response.
type cachedResponse struct {
	key     string
	status  int
	header  http.Header
	body    []byte
	expires time.Time
}

// responseLRU is a least-recently-used cache with a fixed capacity.
// It can be safely accessed from multiple goroutines.
type responseLRU struct {
	size      int
	lock      sync.Mutex
	evictList *list.List
	index     map[string]*list.Element
}

func newResponseLRU(size int) *responseLRU {
	return &responseLRU{
		size:      size,
		evictList: list.New(),
		index:     make(map[string]*list.Element),
	}
}

// Get retrieves a stored response, marking it most recently used.
func (lru *responseLRU) Get(key string) *cachedResponse {
	lru.lock.Lock()
	defer lru.lock.Unlock()

	if element, present := lru.index[key]; present {
		lru.evictList.MoveToBack(element)
		return element.Value.(*cachedResponse)
	}
	return nil
}

// Put adds a response to the cache, possibly evicting something.
func (lru *responseLRU) Put(item *cachedResponse) {
	lru.lock.Lock()
	defer lru.lock.Unlock()

	if element, present := lru.index[item.key]; present {
		element.Value = item
		lru.evictList.MoveToBack(element)
		return
	}

	element := lru.evictList.PushBack(item)
	lru.index[item.key] = element

	// If this caused the cache to go over size, start evicting items
	for len(lru.index) > lru.size {
		head := lru.evictList.Front()
		evicted := head.Value.(*cachedResponse)
		delete(lru.index, evicted.key)
		lru.evictList.Remove(head)
	}
}

// Remove takes a response out of the cache.  It does nothing if that
// key does not exist.
func (lru *responseLRU) Remove(key string) {
	lru.lock.Lock()
	defer lru.lock.Unlock()

	if element, present := lru.index[key]; present {
		delete(lru.index, key)
		lru.evictList.Remove(element)
	}
}

// cachingTransport serves fresh cached GET responses and stores new
// cacheable ones.  Any non-GET request invalidates the cached entry
// for its URL.
type cachingTransport struct {
	inner http.RoundTripper
	cache *responseLRU
	clock clock.Clock
}

func newCachingTransport(inner http.RoundTripper, clk clock.Clock) *cachingTransport {
	if inner == nil {
		inner = http.DefaultTransport
	}
	return &cachingTransport{
		inner: inner,
		cache: newResponseLRU(cacheCapacity),
		clock: clk,
	}
}

func (t *cachingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	key := req.URL.String()
	if req.Method != http.MethodGet {
		t.cache.Remove(key)
		return t.inner.RoundTrip(req)
	}

	if cached := t.cache.Get(key); cached != nil {
		if t.clock.Now().Before(cached.expires) {
			return cached.response(req), nil
		}
		t.cache.Remove(key)
	}

	resp, err := t.inner.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	maxAge, cacheable := responseMaxAge(resp)
	if !cacheable || resp.StatusCode != http.StatusOK {
		return resp, nil
	}

	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, err
	}
	t.cache.Put(&cachedResponse{
		key:     key,
		status:  resp.StatusCode,
		header:  resp.Header.Clone(),
		body:    body,
		expires: t.clock.Now().Add(maxAge),
	})
	resp.Body = io.NopCloser(bytes.NewReader(body))
	return resp, nil
}

// response materializes a stored entry as a fresh http.Response.
func (c *cachedResponse) response(req *http.Request) *http.Response {
	return &http.Response{
		Status:        http.StatusText(c.status),
		StatusCode:    c.status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        c.header.Clone(),
		Body:          io.NopCloser(bytes.NewReader(c.body)),
		ContentLength: int64(len(c.body)),
		Request:       req,
	}
}

// responseMaxAge extracts the freshness lifetime granted by the
// response's Cache-Control header.  Responses without an explicit
// max-age, or marked no-store or no-cache, are not cached.
func responseMaxAge(resp *http.Response) (time.Duration, bool) {
	control := resp.Header.Get("Cache-Control")
	if control == "" {
		return 0, false
	}
	var maxAge time.Duration
	found := false
	for _, directive := range strings.Split(control, ",") {
		directive = strings.TrimSpace(directive)
		switch {
		case directive == "no-store" || directive == "no-cache" || directive == "private":
			return 0, false
		case strings.HasPrefix(directive, "max-age="):
			seconds, err := strconv.Atoi(strings.TrimPrefix(directive, "max-age="))
			if err != nil || seconds <= 0 {
				return 0, false
			}
			maxAge = time.Duration(seconds) * time.Second
			found = true
		}
	}
	return maxAge, found
}
