// Copyright 2019 Cytomine.
// This software is released under an MIT/X11 open source license.

// Package cytominetest runs an in-memory fake of a Cytomine server
// for client tests.  It implements the JSON REST surface the client
// exercises: ping, current user, admin session toggling, entity
// CRUD, filtered and paginated collections, crop rendering, and
// image upload.  State lives in maps and disappears with the server.
package cytominetest

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"

	"github.com/gorilla/mux"
	uuid "github.com/satori/go.uuid"
	"github.com/urfave/negroni"
)

// Doc is one stored resource representation.
type Doc map[string]interface{}

// Request records one call the server received.
type Request struct {
	Method string
	Path   string
	Query  string
}

// Server is a fake Cytomine server.
type Server struct {
	httpServer *httptest.Server

	mu       sync.Mutex
	store    map[string]map[int64]Doc
	nextID   int64
	requests []Request

	currentUser Doc
	keys        map[string]string

	verifySignatures bool
	failPost         map[string]int

	cropDownloads int
	cropBody      []byte
}

// New starts a fake server.  Close it when the test is done.
func New() *Server {
	s := &Server{
		store:    map[string]map[int64]Doc{},
		nextID:   1000,
		keys:     map[string]string{},
		failPost: map[string]int{},
		cropBody: []byte("fake-image-bytes"),
		currentUser: Doc{
			"id":       int64(1),
			"username": "admin",
			"algo":     false,
		},
	}

	r := mux.NewRouter()
	r.HandleFunc("/server/ping", s.ping).Methods("GET")
	r.HandleFunc("/api/user/current.json", s.getCurrentUser).Methods("GET")
	r.HandleFunc("/api/session/admin/open.json", s.adminSession(true)).Methods("GET")
	r.HandleFunc("/api/session/admin/close.json", s.adminSession(false)).Methods("GET")
	r.HandleFunc("/api/annotation/{annotationID:[0-9]+}/term/{termID:[0-9]+}.json", s.annotationTerm).Methods("GET", "PUT")
	r.HandleFunc("/api/annotation/{id:[0-9]+}/{variant:crop|mask|alphamask}.{ext}", s.renderCrop).Methods("GET")
	r.HandleFunc("/api/imageinstance/{id:[0-9]+}/thumb.{ext}", s.renderCrop).Methods("GET")
	r.HandleFunc("/upload", s.upload).Methods("POST")
	r.HandleFunc("/api/attachedfile.json", s.uploadAttachedFile).Methods("POST")
	r.HandleFunc("/api/domain/{parentKind}/{parentID:[0-9]+}/{kind}.json", s.listDomain).Methods("GET")
	r.HandleFunc("/api/annotation/{parentID:[0-9]+}/property.json", s.listAnnotationProperties).Methods("GET")
	r.HandleFunc("/api/{kind}/{id:[0-9]+}.json", s.getOne).Methods("GET")
	r.HandleFunc("/api/{kind}/{id:[0-9]+}.json", s.putOne).Methods("PUT")
	r.HandleFunc("/api/{kind}/{id:[0-9]+}.json", s.deleteOne).Methods("DELETE")
	r.HandleFunc("/api/{kind}.json", s.list).Methods("GET")
	r.HandleFunc("/api/{kind}.json", s.postOne).Methods("POST")
	r.HandleFunc("/api/{filter}/{filterID:[0-9]+}/{kind}.json", s.listFiltered).Methods("GET")

	n := negroni.New()
	n.UseFunc(s.record)
	n.UseHandler(r)
	s.httpServer = httptest.NewServer(n)
	return s
}

// URL returns the server's base URL, scheme included.
func (s *Server) URL() string { return s.httpServer.URL }

// Close shuts the server down.
func (s *Server) Close() { s.httpServer.Close() }

func (s *Server) record(w http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
	s.mu.Lock()
	s.requests = append(s.requests, Request{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.RawQuery,
	})
	verify := s.verifySignatures
	s.mu.Unlock()

	if verify && !s.signatureValid(r) {
		writeJSON(w, http.StatusUnauthorized, Doc{"errors": "invalid signature"})
		return
	}
	next(w, r)
}

// Requests returns every call received so far, in arrival order.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.requests))
	copy(out, s.requests)
	return out
}

// RequestsTo returns the calls whose path equals path.
func (s *Server) RequestsTo(path string) []Request {
	var out []Request
	for _, req := range s.Requests() {
		if req.Path == path {
			out = append(out, req)
		}
	}
	return out
}

// CropDownloads reports how many rendered-image requests were
// served.
func (s *Server) CropDownloads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cropDownloads
}

// AddKeyPair registers a credential pair for signature checks.
func (s *Server) AddKeyPair(publicKey, privateKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[publicKey] = privateKey
}

// VerifySignatures makes every subsequent request fail with 401
// unless its authorization header checks out against a registered
// key pair.
func (s *Server) VerifySignatures() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.verifySignatures = true
}

// FailNextPost makes the next n POSTs for kind answer 500.
func (s *Server) FailNextPost(kind string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failPost[kind] = n
}

// SetCurrentUser replaces the identity served by user/current.json.
func (s *Server) SetCurrentUser(user Doc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentUser = user
}

// Seed stores a document under kind, assigning an id when the
// document has none, and returns the id.
func (s *Server) Seed(kind string, doc Doc) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seedLocked(kind, doc)
}

func (s *Server) seedLocked(kind string, doc Doc) int64 {
	id, ok := asID(doc["id"])
	if !ok {
		s.nextID++
		id = s.nextID
		doc["id"] = id
	}
	if s.store[kind] == nil {
		s.store[kind] = map[int64]Doc{}
	}
	s.store[kind][id] = doc
	return id
}

// Get returns a copy of the stored document, or nil.
func (s *Server) Get(kind string, id int64) Doc {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.store[kind][id]
	if !ok {
		return nil
	}
	out := Doc{}
	for k, v := range doc {
		out[k] = v
	}
	return out
}

// Count returns how many documents of kind are stored.
func (s *Server) Count(kind string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.store[kind])
}

func (s *Server) signatureValid(r *http.Request) bool {
	auth := r.Header.Get("authorization")
	if !strings.HasPrefix(auth, "CYTOMINE ") {
		return false
	}
	parts := strings.SplitN(strings.TrimPrefix(auth, "CYTOMINE "), ":", 2)
	if len(parts) != 2 {
		return false
	}
	s.mu.Lock()
	privateKey, ok := s.keys[parts[0]]
	s.mu.Unlock()
	if !ok {
		return false
	}
	canonical := r.Method + "\n\n" + r.Header.Get("content-type") + "\n" +
		r.Header.Get("date") + "\n" + r.URL.RequestURI()
	mac := hmac.New(sha1.New, []byte(privateKey))
	mac.Write([]byte(canonical))
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(parts[1]))
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func asID(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	case json.Number:
		id, err := n.Int64()
		return id, err == nil
	default:
		return 0, false
	}
}

func decodeDoc(r *http.Request) (Doc, error) {
	doc := Doc{}
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *Server) ping(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Doc{"alive": true})
}

func (s *Server) getCurrentUser(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	user := Doc{}
	for k, v := range s.currentUser {
		user[k] = v
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, Doc{"user": user})
}

func (s *Server) adminSession(open bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.currentUser["adminByNow"] = open
		s.mu.Unlock()
		writeJSON(w, http.StatusOK, Doc{"status": http.StatusOK})
	}
}

func (s *Server) getOne(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id, _ := strconv.ParseInt(vars["id"], 10, 64)
	doc := s.Get(vars["kind"], id)
	if doc == nil {
		writeJSON(w, http.StatusNotFound, Doc{"errors": fmt.Sprintf("%s %d not found", vars["kind"], id)})
		return
	}
	writeJSON(w, http.StatusOK, Doc{vars["kind"]: doc})
}

func (s *Server) postOne(w http.ResponseWriter, r *http.Request) {
	kind := mux.Vars(r)["kind"]

	s.mu.Lock()
	if s.failPost[kind] > 0 {
		s.failPost[kind]--
		s.mu.Unlock()
		writeJSON(w, http.StatusInternalServerError, Doc{"errors": "injected failure"})
		return
	}
	s.mu.Unlock()

	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeJSON(w, http.StatusBadRequest, Doc{"errors": err.Error()})
		return
	}

	// Chunked collection saves POST a JSON array to the same URI.
	if len(raw) > 0 && raw[0] == '[' {
		var bodies []Doc
		if err := unmarshalNumbers(raw, &bodies); err != nil {
			writeJSON(w, http.StatusBadRequest, Doc{"errors": err.Error()})
			return
		}
		s.mu.Lock()
		for _, body := range bodies {
			delete(body, "id")
			s.seedLocked(kind, body)
		}
		s.mu.Unlock()
		writeJSON(w, http.StatusOK, Doc{"collection": bodies})
		return
	}

	body := Doc{}
	if err := unmarshalNumbers(raw, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, Doc{"errors": err.Error()})
		return
	}
	s.mu.Lock()
	delete(body, "id")
	id := s.seedLocked(kind, body)
	if kind == "job" {
		s.issueUserJobLocked(body)
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, Doc{kind: body, "id": id})
}

func unmarshalNumbers(raw json.RawMessage, out interface{}) error {
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.UseNumber()
	return dec.Decode(out)
}

// issueUserJobLocked attaches a fresh algorithmic identity with its
// own key pair to a newly created job.
func (s *Server) issueUserJobLocked(job Doc) {
	publicKey := uuid.NewV4().String()
	privateKey := uuid.NewV4().String()
	userJob := Doc{
		"username":   fmt.Sprintf("JOB[%v]", job["id"]),
		"publicKey":  publicKey,
		"privateKey": privateKey,
		"job":        job["id"],
		"algo":       true,
	}
	job["userJob"] = s.seedLocked("userJob", userJob)
	s.keys[publicKey] = privateKey
}

func (s *Server) putOne(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	kind := vars["kind"]
	id, _ := strconv.ParseInt(vars["id"], 10, 64)

	body, err := decodeDoc(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Doc{"errors": err.Error()})
		return
	}

	s.mu.Lock()
	doc, ok := s.store[kind][id]
	if !ok {
		s.mu.Unlock()
		writeJSON(w, http.StatusNotFound, Doc{"errors": fmt.Sprintf("%s %d not found", kind, id)})
		return
	}
	for k, v := range body {
		if k == "id" {
			continue
		}
		doc[k] = v
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, Doc{kind: doc})
}

// annotationTerm serves the keyless annotation/term link.  The real
// server addresses it by its pair and omits the id from responses.
func (s *Server) annotationTerm(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	annotation, _ := strconv.ParseInt(vars["annotationID"], 10, 64)
	term, _ := strconv.ParseInt(vars["termID"], 10, 64)
	doc := Doc{"userannotation": annotation, "term": term}
	if r.Method == http.MethodPut {
		body, err := decodeDoc(r)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, Doc{"errors": err.Error()})
			return
		}
		for k, v := range body {
			if k == "id" {
				continue
			}
			doc[k] = v
		}
	}
	writeJSON(w, http.StatusOK, Doc{"annotationterm": doc})
}

func (s *Server) deleteOne(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	kind := vars["kind"]
	id, _ := strconv.ParseInt(vars["id"], 10, 64)

	s.mu.Lock()
	_, ok := s.store[kind][id]
	delete(s.store[kind], id)
	s.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, Doc{"errors": fmt.Sprintf("%s %d not found", kind, id)})
		return
	}
	writeJSON(w, http.StatusOK, Doc{"status": http.StatusOK})
}

func (s *Server) list(w http.ResponseWriter, r *http.Request) {
	s.serveCollection(w, r, mux.Vars(r)["kind"], nil)
}

func (s *Server) listFiltered(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	filterID, _ := strconv.ParseInt(vars["filterID"], 10, 64)
	s.serveCollection(w, r, vars["kind"], func(doc Doc) bool {
		id, ok := asID(doc[vars["filter"]])
		return ok && id == filterID
	})
}

func (s *Server) listDomain(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	parentID, _ := strconv.ParseInt(vars["parentID"], 10, 64)
	parentKind := vars["parentKind"]
	s.serveCollection(w, r, vars["kind"], func(doc Doc) bool {
		id, ok := asID(doc["domainIdent"])
		kind, _ := doc["domainClassName"].(string)
		return ok && id == parentID && kind == parentKind
	})
}

func (s *Server) listAnnotationProperties(w http.ResponseWriter, r *http.Request) {
	parentID, _ := strconv.ParseInt(mux.Vars(r)["parentID"], 10, 64)
	s.serveCollection(w, r, "property", func(doc Doc) bool {
		id, ok := asID(doc["domainIdent"])
		return ok && id == parentID
	})
}

func (s *Server) serveCollection(w http.ResponseWriter, r *http.Request, kind string, match func(Doc) bool) {
	s.mu.Lock()
	var docs []Doc
	for _, doc := range s.store[kind] {
		if match == nil || match(doc) {
			docs = append(docs, doc)
		}
	}
	s.mu.Unlock()

	sortByID(docs)
	total := len(docs)
	if max, err := strconv.Atoi(r.URL.Query().Get("max")); err == nil && max > 0 {
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		if offset > total {
			offset = total
		}
		end := offset + max
		if end > total {
			end = total
		}
		docs = docs[offset:end]
	}
	if docs == nil {
		docs = []Doc{}
	}
	writeJSON(w, http.StatusOK, Doc{"collection": docs, "size": total})
}

func sortByID(docs []Doc) {
	for i := 1; i < len(docs); i++ {
		for j := i; j > 0; j-- {
			a, _ := asID(docs[j-1]["id"])
			b, _ := asID(docs[j]["id"])
			if a <= b {
				break
			}
			docs[j-1], docs[j] = docs[j], docs[j-1]
		}
	}
}

func (s *Server) renderCrop(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.cropDownloads++
	body := s.cropBody
	s.mu.Unlock()
	w.Header().Set("content-type", "image/"+mux.Vars(r)["ext"])
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

func (s *Server) uploadAttachedFile(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeJSON(w, http.StatusBadRequest, Doc{"errors": err.Error()})
		return
	}
	files := r.MultipartForm.File["files[]"]
	if len(files) == 0 {
		writeJSON(w, http.StatusBadRequest, Doc{"errors": "no files[] part"})
		return
	}
	domainIdent, _ := strconv.ParseInt(r.FormValue("domainIdent"), 10, 64)
	doc := Doc{
		"filename":        files[0].Filename,
		"domainClassName": r.FormValue("domainClassName"),
		"domainIdent":     domainIdent,
	}
	s.Seed("attachedfile", doc)
	writeJSON(w, http.StatusOK, Doc{"attachedfile": doc})
}

func (s *Server) upload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeJSON(w, http.StatusBadRequest, Doc{"errors": err.Error()})
		return
	}
	files := r.MultipartForm.File["files[]"]
	if len(files) == 0 {
		writeJSON(w, http.StatusBadRequest, Doc{"errors": "no files[] part"})
		return
	}

	storageID, _ := strconv.ParseInt(r.URL.Query().Get("idStorage"), 10, 64)
	s.mu.Lock()
	uploaded := Doc{
		"originalFilename": files[0].Filename,
		"filename":         files[0].Filename,
		"storage":          storageID,
		"status":           int64(2),
	}
	s.seedLocked("uploadedfile", uploaded)
	image := Doc{"filename": files[0].Filename, "width": int64(100), "height": int64(100)}
	imageID := s.seedLocked("abstractimage", image)
	uploaded["image"] = imageID
	var instances []Doc
	if projectID, err := strconv.ParseInt(r.URL.Query().Get("idProject"), 10, 64); err == nil {
		instance := Doc{"baseImage": imageID, "project": projectID}
		s.seedLocked("imageinstance", instance)
		instances = append(instances, instance)
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, []Doc{{
		"status":       int64(200),
		"uploadedFile": uploaded,
		"images": []Doc{{
			"image":          image,
			"imageInstances": instances,
		}},
	}})
}
