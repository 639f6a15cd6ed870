// Copyright 2019 Cytomine.
// This software is released under an MIT/X11 open source license.

package cytomine

import (
	"errors"
	"fmt"
)

// ErrNoID is returned from operations that require a persisted entity
// when the entity has no server-assigned identifier yet.
var ErrNoID = errors.New("entity has no identifier")

// ErrNoClient is returned from the package-level convenience functions
// when Connect() has not been called.
var ErrNoClient = errors.New("no connected client; call Connect first")

// ErrInvalidParent is returned when constructing a domain-scoped
// entity or collection under a parent that has not been saved.
var ErrInvalidParent = errors.New("parent entity has no identifier")

// ErrTooManyFilters is returned when a collection has more than one
// active filter and does not allow filter combination.
var ErrTooManyFilters = errors.New("more than one active filter on collection")

// ErrWrongKind is returned when appending an entity of one kind to a
// collection of another, or concatenating collections of different
// kinds.
var ErrWrongKind = errors.New("entity kind does not match collection kind")

// ErrNotList is returned when a server response expected to contain a
// "collection" array does not.
var ErrNotList = errors.New("server response is not a collection")

// RemoteError describes a non-2xx, non-redirect response from the
// server.  The server-provided message is included when the error body
// could be decoded.
type RemoteError struct {
	Method  string
	URI     string
	Status  int
	Message string
}

func (e RemoteError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s %s: HTTP %d: %s", e.Method, e.URI, e.Status, e.Message)
	}
	return fmt.Sprintf("%s %s: HTTP %d", e.Method, e.URI, e.Status)
}

// RedirectionError is returned when the server answers 301 or 302.
// Redirects are never followed; the caller is expected to fix its
// configuration (usually an http/https or trailing-slash mismatch)
// using the target URL carried here.
type RedirectionError struct {
	Status   int
	Location string
}

func (e RedirectionError) Error() string {
	return fmt.Sprintf("request redirected (HTTP %d) to %s", e.Status, e.Location)
}

// DumpError is returned when an image dump fails to materialize its
// destination file.  It is distinct from RemoteError so that batch
// dump callers can tell a failed download from other HTTP failures.
type DumpError struct {
	URL  string
	Dest string
	Err  error
}

func (e DumpError) Error() string {
	return fmt.Sprintf("dump of %s to %s failed: %v", e.URL, e.Dest, e.Err)
}

func (e DumpError) Unwrap() error { return e.Err }

// PartialUploadError is returned from a chunked collection save when
// at least one chunk failed.  Created holds the entities whose chunks
// were accepted (with identifiers populated); Failed holds the
// entities from rejected chunks.  The two partition the original
// collection, so the caller can recover identifiers from Created and
// retry Failed independently.
type PartialUploadError struct {
	Created *Collection
	Failed  *Collection
}

func (e PartialUploadError) Error() string {
	return fmt.Sprintf("collection partially saved: %d created, %d failed",
		e.Created.Len(), e.Failed.Len())
}
