// Copyright 2019 Cytomine.
// This software is released under an MIT/X11 open source license.

package cytomine

// This file provides the HTTP session shared by all client
// operations: header construction, request signing, JSON
// encode/decode, multipart upload, and streamed download.

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"
	"github.com/ugorji/go/codec"
)

// jsonHandle is the codec for all request and response bodies.
// Nested values decoded through interface{} come back as string-keyed
// maps so the entity runtime can walk them.
var jsonHandle = func() *codec.JsonHandle {
	h := &codec.JsonHandle{}
	h.MapType = reflect.TypeOf(map[string]interface{}(nil))
	return h
}()

// session is the HTTP transport under a Client.  It is safe for use
// by multiple goroutines; the underlying connection pool serializes
// per-connection I/O while permitting concurrent requests.
type session struct {
	host       string
	protocol   string
	publicKey  string
	privateKey string

	http   *http.Client
	logger *logrus.Logger
	clock  clock.Clock
}

func newSession(host, protocol, publicKey, privateKey string, logger *logrus.Logger, clk clock.Clock, useCache bool) *session {
	rc := retryablehttp.NewClient()
	rc.Logger = nil
	rc.RetryMax = 2
	rc.RetryWaitMin = 500 * time.Millisecond
	// Redirects are reported to the caller, never followed.  Both
	// the retrying client and the standard wrapper around it handle
	// redirects, so both are told to stop.
	noRedirect := func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	rc.HTTPClient.CheckRedirect = noRedirect
	if useCache {
		rc.HTTPClient.Transport = newCachingTransport(rc.HTTPClient.Transport, clk)
	}
	hc := rc.StandardClient()
	hc.CheckRedirect = noRedirect

	return &session{
		host:       host,
		protocol:   protocol,
		publicKey:  publicKey,
		privateKey: privateKey,
		http:       hc,
		logger:     logger,
		clock:      clk,
	}
}

// baseURL is the API base; all relative URIs are resolved under it.
func (s *session) baseURL() string {
	return fmt.Sprintf("%s://%s/api/", s.protocol, s.host)
}

// absolute resolves uri against the API base unless it is already a
// full URL (upload and image-server endpoints live outside the base).
func (s *session) absolute(uri string) string {
	if hasScheme(uri) {
		return uri
	}
	return s.baseURL() + uri
}

func hasScheme(uri string) bool {
	u, err := url.Parse(uri)
	return err == nil && u.Scheme != ""
}

// newRequest builds a signed request carrying the standard Cytomine
// headers.  params, if non-nil, is merged into the query string.
func (s *session) newRequest(method, uri string, params url.Values, contentType string, body io.Reader) (*http.Request, error) {
	u, err := url.Parse(s.absolute(uri))
	if err != nil {
		return nil, err
	}
	if len(params) > 0 {
		q := u.Query()
		for k, vs := range params {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}

	req, err := http.NewRequest(method, u.String(), body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("content-type", contentType)
	}
	req.Header.Set("accept", "application/json, */*")
	req.Header.Set("X-Requested-With", "XMLHTTPRequest")
	req.Header.Set("date", s.clock.Now().UTC().Format(http.TimeFormat))
	SignRequest(req, s.publicKey, s.privateKey)
	return req, nil
}

// do sends the request, enforces the status policy, and decodes a
// JSON response into out when out is non-nil.  The response body is
// always consumed and closed.
func (s *session) do(req *http.Request, out interface{}) error {
	start := s.clock.Now()
	resp, err := s.http.Do(req)
	if err != nil {
		observeRequest(req.Method, 0, s.clock.Now().Sub(start).Seconds())
		return err
	}
	defer resp.Body.Close()
	observeRequest(req.Method, resp.StatusCode, s.clock.Now().Sub(start).Seconds())

	if err := s.checkResponse(req, resp); err != nil {
		return err
	}
	if out != nil {
		if err := codec.NewDecoder(resp.Body, jsonHandle).Decode(out); err != nil {
			s.logger.WithFields(logrus.Fields{
				"method": req.Method,
				"uri":    req.URL.String(),
				"err":    err,
			}).Debug("Could not decode JSON response body")
			return err
		}
	}
	return nil
}

// checkResponse maps the response status onto the error model: 2xx is
// success, 301/302 is a RedirectionError, anything else is a
// RemoteError carrying the decoded server message.
func (s *session) checkResponse(req *http.Request, resp *http.Response) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusMovedPermanently ||
		resp.StatusCode == http.StatusFound:
		return RedirectionError{
			Status:   resp.StatusCode,
			Location: resp.Header.Get("Location"),
		}
	}

	message := decodeErrorMessage(resp.Body)
	s.logger.WithFields(logrus.Fields{
		"method":  req.Method,
		"uri":     req.URL.String(),
		"status":  resp.StatusCode,
		"reason":  resp.Status,
		"message": message,
	}).Error("Cytomine request failed")
	return RemoteError{
		Method:  req.Method,
		URI:     req.URL.String(),
		Status:  resp.StatusCode,
		Message: message,
	}
}

// decodeErrorMessage pulls the server-side error text from an error
// body.  The server wraps it either as {"errors": "..."} or as
// {"errors": {"message": "..."}}; non-JSON bodies yield an empty
// string.
func decodeErrorMessage(body io.Reader) string {
	var payload map[string]interface{}
	if err := codec.NewDecoder(body, jsonHandle).Decode(&payload); err != nil {
		return ""
	}
	switch errs := payload["errors"].(type) {
	case string:
		return errs
	case map[string]interface{}:
		if msg, ok := errs["message"].(string); ok {
			return msg
		}
	case map[interface{}]interface{}:
		if msg, ok := errs["message"].(string); ok {
			return msg
		}
	}
	if msg, ok := payload["message"].(string); ok {
		return msg
	}
	return ""
}

// get retrieves uri and decodes the JSON response into out.
func (s *session) get(uri string, params url.Values, out interface{}) error {
	req, err := s.newRequest(http.MethodGet, uri, params, "", nil)
	if err != nil {
		return err
	}
	return s.do(req, out)
}

// jsonBody serializes in with the session codec.
func jsonBody(in interface{}) (io.Reader, error) {
	var buf bytes.Buffer
	if err := codec.NewEncoder(&buf, jsonHandle).Encode(in); err != nil {
		return nil, err
	}
	return &buf, nil
}

func (s *session) put(uri string, in interface{}, params url.Values, out interface{}) error {
	body, err := jsonBody(in)
	if err != nil {
		return err
	}
	req, err := s.newRequest(http.MethodPut, uri, params, "application/json", body)
	if err != nil {
		return err
	}
	return s.do(req, out)
}

func (s *session) post(uri string, in interface{}, params url.Values, out interface{}) error {
	body, err := jsonBody(in)
	if err != nil {
		return err
	}
	req, err := s.newRequest(http.MethodPost, uri, params, "application/json", body)
	if err != nil {
		return err
	}
	return s.do(req, out)
}

func (s *session) delete(uri string, params url.Values, out interface{}) error {
	req, err := s.newRequest(http.MethodDelete, uri, params, "", nil)
	if err != nil {
		return err
	}
	return s.do(req, out)
}

// uploadFile POSTs the file at localPath as a multipart form under
// the field "files[]", with any extra fields appended, and decodes
// the JSON response into out.
func (s *session) uploadFile(uri string, localPath string, fields map[string]string, params url.Values, out interface{}) (err error) {
	f, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := f.Close(); err == nil {
			err = closeErr
		}
	}()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("files[]", filepath.Base(localPath))
	if err != nil {
		return err
	}
	if _, err = io.Copy(part, f); err != nil {
		return err
	}
	for k, v := range fields {
		if err = writer.WriteField(k, v); err != nil {
			return err
		}
	}
	if err = writer.Close(); err != nil {
		return err
	}

	req, err := s.newRequest(http.MethodPost, uri, params, writer.FormDataContentType(), &buf)
	if err != nil {
		return err
	}
	return s.do(req, out)
}

// downloadFile streams the body of uri to destPath without buffering
// the whole payload.  When override is false and destPath already
// exists, the existing file is left untouched and no request is made.
func (s *session) downloadFile(uri string, destPath string, override bool, params url.Values) (err error) {
	if !override {
		if _, statErr := os.Stat(destPath); statErr == nil {
			return nil
		}
	}

	req, err := s.newRequest(http.MethodGet, uri, params, "", nil)
	if err != nil {
		return err
	}
	start := s.clock.Now()
	resp, err := s.http.Do(req)
	if err != nil {
		observeRequest(req.Method, 0, s.clock.Now().Sub(start).Seconds())
		return err
	}
	defer resp.Body.Close()
	observeRequest(req.Method, resp.StatusCode, s.clock.Now().Sub(start).Seconds())
	if err = s.checkResponse(req, resp); err != nil {
		return err
	}

	if err = os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return err
	}
	f, err := os.Create(destPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := f.Close(); err == nil {
			err = closeErr
		}
	}()
	_, err = io.Copy(f, resp.Body)
	return err
}

// isAlive reports whether the server answers its ping endpoint.
func (s *session) isAlive() bool {
	uri := fmt.Sprintf("%s://%s/server/ping", s.protocol, s.host)
	req, err := s.newRequest(http.MethodGet, uri, nil, "", nil)
	if err != nil {
		return false
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK
}

// waitToAcceptConnection polls isAlive every retryDelay until the
// server answers or timeout elapses.
func (s *session) waitToAcceptConnection(timeout, retryDelay time.Duration) bool {
	deadline := s.clock.Now().Add(timeout)
	for {
		if s.isAlive() {
			return true
		}
		if !s.clock.Now().Add(retryDelay).Before(deadline) {
			return false
		}
		s.clock.Sleep(retryDelay)
	}
}
