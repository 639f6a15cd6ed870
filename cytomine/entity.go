// Copyright 2019 Cytomine.
// This software is released under an MIT/X11 open source license.

package cytomine

// This file provides the entity runtime: the base behavior by which a
// domain object maps onto one remote REST resource.  Concrete kinds
// embed Entity (and Domain, when scoped under a parent resource) and
// contribute their known fields; everything the server sends beyond
// the known fields lands in a per-instance attribute bag, so new
// server fields never break deserialization.

import (
	"fmt"
	"net/url"
	"reflect"
	"strconv"
	"strings"

	"github.com/jtacoma/uritemplates"
	"github.com/mitchellh/mapstructure"
	"github.com/sirupsen/logrus"
)

// Model is one remote resource.  All concrete kinds embed Entity and
// add Kind and CallbackKeys; everything else comes for free.
type Model interface {
	// Kind is the resource kind identifier used in URIs, the
	// lowercased class name unless the kind overrides it.
	Kind() string

	// CallbackKeys lists the response keys the server may wrap
	// this resource under, tried in order.  Some endpoints emit
	// the snake-case kind, others the lowercased class name.
	CallbackKeys() []string

	GetID() int64
	SetID(int64)

	base() *Entity
}

// Entity is the common state of every remote resource: the
// server-assigned identifier, server-managed bookkeeping fields, the
// attribute bag for unknown server fields, and request-scoped query
// parameters.  An Entity with a zero ID is "new" (a POST target);
// with an ID it is persisted (GET/PUT/DELETE target).
type Entity struct {
	ID      int64  `mapstructure:"id"`
	Class   string `mapstructure:"class"`
	Created string `mapstructure:"created"`
	Updated string `mapstructure:"updated"`
	Deleted string `mapstructure:"deleted"`

	attrs  map[string]interface{}
	params url.Values
}

// GetID returns the server-assigned identifier, zero when new.
func (e *Entity) GetID() int64 { return e.ID }

// SetID sets or clears the server-assigned identifier.
func (e *Entity) SetID(id int64) { e.ID = id }

// Attr returns a server field that has no declared slot on the kind.
func (e *Entity) Attr(name string) (interface{}, bool) {
	v, ok := e.attrs[name]
	return v, ok
}

// SetAttr stores an undeclared attribute; it is sent back to the
// server on save.
func (e *Entity) SetAttr(name string, value interface{}) {
	if e.attrs == nil {
		e.attrs = make(map[string]interface{})
	}
	e.attrs[name] = value
}

// SetParam attaches a request-scoped query parameter used by every
// operation on this entity.
func (e *Entity) SetParam(key, value string) {
	if e.params == nil {
		e.params = url.Values{}
	}
	e.params.Set(key, value)
}

func (e *Entity) base() *Entity { return e }

// Domain is the parent scope of a domain-scoped resource.  Kinds that
// hang off a parent resource embed Domain next to Entity.
type Domain struct {
	ParentKind string `mapstructure:"domainClassName"`
	ParentID   int64  `mapstructure:"domainIdent"`
}

// domainScoped is implemented by embedding Domain.
type domainScoped interface {
	domainPrefix() (string, error)
}

// domainPrefix derives the URI prefix for the parent scope.  The
// annotation parent kind drops the domain/ segment; the server routes
// it without one.
func (d *Domain) domainPrefix() (string, error) {
	if d.ParentID == 0 {
		return "", ErrInvalidParent
	}
	if d.ParentKind == "annotation" {
		return fmt.Sprintf("annotation/%d/", d.ParentID), nil
	}
	return fmt.Sprintf("domain/%s/%d/", d.ParentKind, d.ParentID), nil
}

// setParent binds the domain scope to an already persisted parent.
func (d *Domain) setParent(parent Model) error {
	if parent.GetID() == 0 {
		return ErrInvalidParent
	}
	d.ParentKind = parent.Kind()
	d.ParentID = parent.GetID()
	return nil
}

// uriProvider lets a kind replace the derived resource path entirely.
// The handful of resources with bespoke URIs (annotation terms, user
// roles, relation terms) implement it.
type uriProvider interface {
	URI() (string, error)
}

// saveURIProvider lets a composite-key kind use a different path for
// creation than for lookup (e.g. user roles POST to the role-less
// user path).
type saveURIProvider interface {
	saveURI() (string, error)
}

var (
	entityURITmpl     = mustTemplate("{kind}/{id}.json")
	collectionURITmpl = mustTemplate("{kind}.json")
	filteredURITmpl   = mustTemplate("{filter}/{filterId}/{kind}.json")
)

func mustTemplate(t string) *uritemplates.UriTemplate {
	tmpl, err := uritemplates.Parse(t)
	if err != nil {
		panic(err)
	}
	return tmpl
}

// modelURI derives the resource path for m, relative to the API base:
// {kind}/{id}.json for persisted entities, {kind}.json for new ones,
// with the domain prefix prepended for scoped kinds.
func modelURI(m Model) (string, error) {
	if p, ok := m.(uriProvider); ok {
		return p.URI()
	}
	prefix := ""
	if d, ok := m.(domainScoped); ok {
		var err error
		prefix, err = d.domainPrefix()
		if err != nil {
			return "", err
		}
	}
	var (
		expanded string
		err      error
	)
	if m.GetID() != 0 {
		expanded, err = entityURITmpl.Expand(map[string]interface{}{
			"kind": m.Kind(),
			"id":   strconv.FormatInt(m.GetID(), 10),
		})
	} else {
		expanded, err = collectionURITmpl.Expand(map[string]interface{}{
			"kind": m.Kind(),
		})
	}
	if err != nil {
		return "", err
	}
	return prefix + expanded, nil
}

// populate assigns a server payload onto m.  Keys with a leading
// "id_" prefix are renamed to their bare form first (the server's
// reference fields), underscore-prefixed keys are dropped, known
// fields are decoded, and everything left over goes to the attribute
// bag.
func populate(m Model, data map[string]interface{}) error {
	clean := make(map[string]interface{}, len(data))
	for k, v := range data {
		if strings.HasPrefix(k, "_") {
			continue
		}
		k = strings.TrimPrefix(k, "id_")
		clean[k] = v
	}

	md := &mapstructure.Metadata{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           m,
		Metadata:         md,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(clean); err != nil {
		return err
	}

	e := m.base()
	if e.attrs == nil {
		e.attrs = make(map[string]interface{})
	}
	for _, k := range md.Unused {
		e.attrs[k] = clean[k]
	}
	return nil
}

// marshalModel emits the JSON form of m: every declared non-empty
// field plus the attribute bag, underscore-prefixed bag keys
// excluded.
func marshalModel(m Model) (map[string]interface{}, error) {
	out := make(map[string]interface{})
	if err := mapstructure.Decode(m, &out); err != nil {
		return nil, err
	}
	for k, v := range out {
		if isEmptyValue(v) {
			delete(out, k)
		}
	}
	for k, v := range m.base().attrs {
		if strings.HasPrefix(k, "_") {
			continue
		}
		out[k] = v
	}
	// The -1 sentinel marks keyless link resources as persisted; it
	// is not a server identifier and stays out of the body.
	if m.GetID() == -1 {
		delete(out, "id")
	}
	return out, nil
}

func isEmptyValue(v interface{}) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String:
		return rv.Len() == 0
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() == 0
	case reflect.Bool:
		return !rv.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() == 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint() == 0
	case reflect.Float32, reflect.Float64:
		return rv.Float() == 0
	case reflect.Ptr, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

// populateFromResponse locates the resource representation inside a
// response payload and populates m from it.  The representation is
// either at the top level or wrapped under one of the kind's callback
// keys; the matched key is logged for observability.
func (c *Client) populateFromResponse(m Model, payload map[string]interface{}) error {
	for _, key := range m.CallbackKeys() {
		if wrapped, ok := payload[key].(map[string]interface{}); ok {
			c.logger.WithFields(logrus.Fields{
				"kind": m.Kind(),
				"key":  key,
			}).Debug("Matched wrapped response key")
			return populate(m, wrapped)
		}
	}
	return populate(m, payload)
}

// Fetch retrieves m from the server.  The identifier must be known,
// either directly or through a composite-key URI override.
func (c *Client) Fetch(m Model) error {
	if _, ok := m.(uriProvider); !ok && m.GetID() == 0 {
		return ErrNoID
	}
	uri, err := modelURI(m)
	if err != nil {
		return err
	}
	var payload map[string]interface{}
	if err := c.session.get(uri, m.base().params, &payload); err != nil {
		return err
	}
	if err := c.populateFromResponse(m, payload); err != nil {
		return err
	}
	// Composite-key link resources are not always given an id by
	// the server; the sentinel marks them as persisted anyway.
	if _, ok := m.(uriProvider); ok && m.GetID() == 0 {
		m.SetID(-1)
	}
	return nil
}

// Save persists m: a POST to the kind's collection URI when new, a
// PUT otherwise.  Keyless links carrying the -1 sentinel count as
// persisted.  The entity is repopulated from the server response,
// assigning the fresh identifier on creation.
func (c *Client) Save(m Model) error {
	if m.GetID() != 0 {
		return c.Update(m)
	}
	var (
		uri string
		err error
	)
	if p, ok := m.(saveURIProvider); ok {
		uri, err = p.saveURI()
	} else {
		uri, err = modelURI(m)
	}
	if err != nil {
		return err
	}
	body, err := marshalModel(m)
	if err != nil {
		return err
	}
	var payload map[string]interface{}
	if err := c.session.post(uri, body, m.base().params, &payload); err != nil {
		return err
	}
	return c.populateFromResponse(m, payload)
}

// Update PUTs the full JSON form of m and repopulates it from the
// response.
func (c *Client) Update(m Model) error {
	if m.GetID() == 0 {
		return ErrNoID
	}
	uri, err := modelURI(m)
	if err != nil {
		return err
	}
	body, err := marshalModel(m)
	if err != nil {
		return err
	}
	var payload map[string]interface{}
	if err := c.session.put(uri, body, m.base().params, &payload); err != nil {
		return err
	}
	return c.populateFromResponse(m, payload)
}

// Delete removes m from the server and clears its identifier on
// success.
func (c *Client) Delete(m Model) error {
	if _, ok := m.(uriProvider); !ok && m.GetID() == 0 {
		return ErrNoID
	}
	uri, err := modelURI(m)
	if err != nil {
		return err
	}
	if err := c.session.delete(uri, m.base().params, nil); err != nil {
		return err
	}
	m.SetID(0)
	return nil
}

// Fetch retrieves m through the process-wide client.
func Fetch(m Model) error {
	c := CurrentClient()
	if c == nil {
		return ErrNoClient
	}
	return c.Fetch(m)
}

// Save persists m through the process-wide client.
func Save(m Model) error {
	c := CurrentClient()
	if c == nil {
		return ErrNoClient
	}
	return c.Save(m)
}

// Delete removes m through the process-wide client.
func Delete(m Model) error {
	c := CurrentClient()
	if c == nil {
		return ErrNoClient
	}
	return c.Delete(m)
}
