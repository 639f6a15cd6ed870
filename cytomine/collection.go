// Copyright 2019 Cytomine.
// This software is released under an MIT/X11 open source license.

package cytomine

// This file provides the collection runtime: server-side listing with
// filters and pagination, and chunked parallel bulk save.

import (
	"fmt"
	"net/url"
	"reflect"
	"strconv"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/sirupsen/logrus"

	"github.com/cytomine/go-cytomine/parallel"
)

// ModelCollection is a bounded sequence of entities of one kind.
// Concrete collections embed Collection and contribute their
// kind-specific query fields.
type ModelCollection interface {
	colBase() *Collection
}

// Collection is the base state of every collection: the element kind
// and factory, the allowed-filter whitelist, the active filters,
// pagination fields, and the element list itself.  Max is the page
// size; zero means a single request bounded by the server default.
type Collection struct {
	Max    int `mapstructure:"max"`
	Offset int `mapstructure:"offset"`

	kind           string
	factory        func() Model
	allowedFilters []string
	allowMultiple  bool

	filters map[string]interface{}

	total      int
	totalPages int
	data       []Model
}

// init binds the element kind, factory, and filter whitelist.  Typed
// collection constructors call this.
func (c *Collection) init(kind string, factory func() Model, allowedFilters ...string) {
	c.kind = kind
	c.factory = factory
	c.allowedFilters = allowedFilters
	c.filters = make(map[string]interface{})
}

func (c *Collection) colBase() *Collection { return c }

// Kind is the element kind of the collection.
func (c *Collection) Kind() string { return c.kind }

// Len is the number of locally held elements.
func (c *Collection) Len() int { return len(c.data) }

// At returns the i-th element.
func (c *Collection) At(i int) Model { return c.data[i] }

// Models returns the element list.  The slice is shared; callers
// should not reorder it while a bulk operation is in flight.
func (c *Collection) Models() []Model { return c.data }

// Total is the size of the server-side result after a fetch.
func (c *Collection) Total() int { return c.total }

// TotalPages is the number of pages the last fetch spanned.
func (c *Collection) TotalPages() int { return c.totalPages }

// Append adds an entity, which must be of the declared kind.
func (c *Collection) Append(m Model) error {
	if m.Kind() != c.kind {
		return ErrWrongKind
	}
	c.data = append(c.data, m)
	return nil
}

// Concat appends every element of other; both collections must hold
// the same kind.
func (c *Collection) Concat(other ModelCollection) error {
	ob := other.colBase()
	if ob.kind != c.kind {
		return ErrWrongKind
	}
	c.data = append(c.data, ob.data...)
	return nil
}

// AddFilter sets a server-side filter.  Keys on the allowed-filter
// whitelist become URI path segments; anything else is passed through
// as a plain query parameter.
func (c *Collection) AddFilter(key string, value interface{}) {
	c.filters[key] = value
}

// Filter returns the active value for a filter key.
func (c *Collection) Filter(key string) (interface{}, bool) {
	v, ok := c.filters[key]
	return v, ok
}

// AllowMultipleFilters lifts the default single-active-filter rule.
func (c *Collection) AllowMultipleFilters() {
	c.allowMultiple = true
}

func (c *Collection) isAllowedFilter(key string) bool {
	for _, allowed := range c.allowedFilters {
		if allowed == key {
			return true
		}
	}
	return false
}

// uri derives the listing path: {filter}/{id}/{kind}.json when an
// allowed filter is active, {kind}.json otherwise.  Unknown filter
// keys never reach the path.
func (c *Collection) uri() (string, error) {
	if len(c.filters) > 1 && !c.allowMultiple {
		return "", ErrTooManyFilters
	}
	for _, key := range c.allowedFilters {
		value, active := c.filters[key]
		if !active {
			continue
		}
		return filteredURITmpl.Expand(map[string]interface{}{
			"filter":   key,
			"filterId": formatParam(value),
			"kind":     c.kind,
		})
	}
	return collectionURITmpl.Expand(map[string]interface{}{"kind": c.kind})
}

// collectionURI derives the listing path for col, honoring a URI
// override and prepending the domain prefix for parent-scoped
// collections.
func collectionURI(col ModelCollection) (string, error) {
	if p, ok := col.(uriProvider); ok {
		return p.URI()
	}
	prefix := ""
	if d, ok := col.(domainScoped); ok {
		var err error
		prefix, err = d.domainPrefix()
		if err != nil {
			return "", err
		}
	}
	suffix, err := col.colBase().uri()
	if err != nil {
		return "", err
	}
	return prefix + suffix, nil
}

// emptyLike returns a fresh collection of the same shape with no
// elements, used to build the created/failed partitions of a partial
// upload.
func (c *Collection) emptyLike() *Collection {
	clone := &Collection{}
	clone.init(c.kind, c.factory, c.allowedFilters...)
	clone.allowMultiple = c.allowMultiple
	return clone
}

// collectionParams flattens the concrete collection's query fields
// plus any non-path filters into query parameters.  List values are
// comma-joined.
func collectionParams(col ModelCollection) (url.Values, error) {
	flat := make(map[string]interface{})
	if err := mapstructure.Decode(col, &flat); err != nil {
		return nil, err
	}
	// max and offset are owned by the pagination loop.
	delete(flat, "max")
	delete(flat, "offset")

	base := col.colBase()
	for key, value := range base.filters {
		if !base.isAllowedFilter(key) {
			flat[key] = value
		}
	}

	params := url.Values{}
	for key, value := range flat {
		if isEmptyValue(value) {
			continue
		}
		params.Set(key, formatParam(value))
	}
	return params, nil
}

// formatParam renders a query parameter value; iterables join with
// commas.
func formatParam(v interface{}) string {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		parts := make([]string, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			parts[i] = formatParam(rv.Index(i).Interface())
		}
		return strings.Join(parts, ",")
	}
	switch n := v.(type) {
	case string:
		return n
	case bool:
		return strconv.FormatBool(n)
	case float64:
		if n == float64(int64(n)) {
			return strconv.FormatInt(int64(n), 10)
		}
		return strconv.FormatFloat(n, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// populateCollection fills col from one listing response page.  The
// wire shape is {"collection": [...], "size": N}.
func (c *Client) populateCollection(col ModelCollection, payload map[string]interface{}, appendMode bool) error {
	base := col.colBase()
	raw, ok := payload["collection"].([]interface{})
	if !ok {
		return ErrNotList
	}

	items := make([]Model, 0, len(raw))
	for _, element := range raw {
		fields, ok := element.(map[string]interface{})
		if !ok {
			return ErrNotList
		}
		item := base.factory()
		if err := populate(item, fields); err != nil {
			return err
		}
		items = append(items, item)
	}
	if appendMode {
		base.data = append(base.data, items...)
	} else {
		base.data = items
	}

	base.total = asInt(payload["size"])
	if base.Max > 0 {
		base.totalPages = (base.total + base.Max - 1) / base.Max
	} else {
		base.totalPages = 1
	}
	return nil
}

// asInt converts the numeric types the JSON codec may produce.
func asInt(v interface{}) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case uint64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}

// FetchCollection retrieves the server-side listing into col.  With
// Max unset, one request is made and the server decides the bound;
// with Max set, pages are fetched from the current Offset, growing it
// by Max per page, until every page is visited.
func (c *Client) FetchCollection(col ModelCollection) error {
	base := col.colBase()
	uri, err := collectionURI(col)
	if err != nil {
		return err
	}
	params, err := collectionParams(col)
	if err != nil {
		return err
	}

	for page := 0; ; page++ {
		if base.Max > 0 {
			params.Set("max", strconv.Itoa(base.Max))
			params.Set("offset", strconv.Itoa(base.Offset))
		}
		var payload map[string]interface{}
		if err := c.session.get(uri, params, &payload); err != nil {
			return err
		}
		if err := c.populateCollection(col, payload, page > 0); err != nil {
			return err
		}
		if base.Max == 0 || page+1 >= base.totalPages {
			return nil
		}
		base.Offset += base.Max
	}
}

// FetchCollectionWithFilter is a convenience wrapper that sets one
// filter and fetches.
func (c *Client) FetchCollectionWithFilter(col ModelCollection, key string, value interface{}) error {
	col.colBase().AddFilter(key, value)
	return c.FetchCollection(col)
}

// SaveCollection persists every element of col.  The collection is
// partitioned into contiguous chunks of chunk elements, each POSTed
// as one request on up to workers goroutines.  chunk <= 0 sends a
// single request.  When any chunk fails the whole call returns a
// PartialUploadError splitting the original elements into created and
// failed partitions.
func (c *Client) SaveCollection(col ModelCollection, chunk, workers int) error {
	base := col.colBase()
	if base.Len() == 0 {
		return nil
	}
	uri, err := collectionURI(col)
	if err != nil {
		return err
	}

	results := parallel.MapChunks(base.data, chunk, workers,
		func(items []Model) (map[string]interface{}, error) {
			bodies := make([]map[string]interface{}, len(items))
			for i, m := range items {
				body, err := marshalModel(m)
				if err != nil {
					return nil, err
				}
				bodies[i] = body
			}
			var payload map[string]interface{}
			if err := c.session.post(uri, bodies, nil, &payload); err != nil {
				return nil, err
			}
			return payload, nil
		})

	created := base.emptyLike()
	failed := base.emptyLike()
	for _, res := range results {
		items := base.data[res.Range.Start:res.Range.End]
		if res.Err != nil {
			c.logger.WithFields(logrus.Fields{
				"kind":  base.kind,
				"start": res.Range.Start,
				"end":   res.Range.End,
				"err":   res.Err,
			}).Error("Collection chunk save failed")
			failed.data = append(failed.data, items...)
			continue
		}
		repopulateChunk(items, res.Value)
		created.data = append(created.data, items...)
	}

	if failed.Len() > 0 {
		return PartialUploadError{Created: created, Failed: failed}
	}
	return nil
}

// repopulateChunk assigns server state (fresh identifiers included)
// back onto a successfully posted chunk when the response echoes the
// created collection in order.
func repopulateChunk(items []Model, payload map[string]interface{}) {
	raw, ok := payload["collection"].([]interface{})
	if !ok || len(raw) != len(items) {
		return
	}
	for i, element := range raw {
		fields, ok := element.(map[string]interface{})
		if !ok {
			continue
		}
		// Best effort; a chunk that saved stays saved even if its
		// echo cannot be decoded.
		_ = populate(items[i], fields)
	}
}
