// Package testserver is an in-memory JSON:API server for tests. It keeps
// resources per type, understands include, sparse fieldsets, filter, sort and
// page parameters, and records every request it receives.
package testserver

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"sync"

	"github.com/elnormous/contenttype"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/conduit-lang/jsonapi-store/pkg/jsonapi"
	"github.com/conduit-lang/jsonapi-store/pkg/query"
)

var (
	jsonAPIMediaType  = contenttype.NewMediaType(jsonapi.MediaType)
	jsonAPIMediaTypes = []contenttype.MediaType{jsonAPIMediaType}
)

// Request is one recorded request
type Request struct {
	Method string
	Path   string
	Query  string
	Header http.Header
	Body   []byte
}

type failure struct {
	status int
	errs   []*jsonapi.Error
}

// Server is an http.Handler serving /{type} and /{type}/{id}
type Server struct {
	mu        sync.Mutex
	resources map[string]map[string]*jsonapi.Resource
	order     map[string][]string
	requests  []Request
	failures  []failure
	mux       chi.Router
}

// New creates an empty server
func New() *Server {
	s := &Server{
		resources: make(map[string]map[string]*jsonapi.Resource),
		order:     make(map[string][]string),
	}

	r := chi.NewRouter()
	r.Use(s.record, s.negotiate, s.injectFailures)
	r.Get("/{type}", s.list)
	r.Post("/{type}", s.create)
	r.Patch("/{type}", s.updateMany)
	r.Delete("/{type}", s.removeMany)
	r.Get("/{type}/{id}", s.show)
	r.Patch("/{type}/{id}", s.update)
	r.Delete("/{type}/{id}", s.remove)
	s.mux = r

	return s
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Seed stores resources as if they had been created
func (s *Server) Seed(resources ...*jsonapi.Resource) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, res := range resources {
		s.put(res)
	}
}

// Resource returns a stored resource
func (s *Server) Resource(typ, id string) (*jsonapi.Resource, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, ok := s.resources[typ][id]
	return res, ok
}

// Count returns the number of stored resources of a type
func (s *Server) Count(typ string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.resources[typ])
}

// Requests returns the recorded requests in arrival order
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([]Request, len(s.requests))
	copy(result, s.requests)
	return result
}

// FailNext makes the next request answer with status and the given errors.
// Without errors the response has no body.
func (s *Server) FailNext(status int, errs ...*jsonapi.Error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, failure{status: status, errs: errs})
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeErrors(w, http.StatusBadRequest, jsonapi.NewError(http.StatusBadRequest, err.Error()))
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		s.mu.Lock()
		s.requests = append(s.requests, Request{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.RawQuery,
			Header: r.Header.Clone(),
			Body:   body,
		})
		s.mu.Unlock()

		next.ServeHTTP(w, r)
	})
}

func (s *Server) negotiate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, _, err := contenttype.GetAcceptableMediaType(r, jsonAPIMediaTypes); err != nil {
			writeErrors(w, http.StatusNotAcceptable, jsonapi.NewError(http.StatusNotAcceptable, "accept must allow "+jsonapi.MediaType))
			return
		}
		if r.ContentLength > 0 {
			ctype, err := contenttype.GetMediaType(r)
			if err != nil || !ctype.Matches(jsonAPIMediaType) {
				writeErrors(w, http.StatusUnsupportedMediaType, jsonapi.NewError(http.StatusUnsupportedMediaType, "content-type must be "+jsonapi.MediaType))
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) injectFailures(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		var f *failure
		if len(s.failures) > 0 {
			f = &s.failures[0]
			s.failures = s.failures[1:]
		}
		s.mu.Unlock()

		if f == nil {
			next.ServeHTTP(w, r)
			return
		}
		if len(f.errs) == 0 {
			w.WriteHeader(f.status)
			return
		}
		writeErrors(w, f.status, f.errs...)
	})
}

func (s *Server) list(w http.ResponseWriter, r *http.Request) {
	typ := chi.URLParam(r, "type")

	s.mu.Lock()
	items := make([]*jsonapi.Resource, 0, len(s.order[typ]))
	for _, id := range s.order[typ] {
		items = append(items, s.resources[typ][id])
	}
	s.mu.Unlock()

	items = filterResources(items, query.ParseFilter(r))
	sortResources(items, query.ParseSortFields(r))

	total := len(items)
	items = paginate(items, query.ParsePage(r))

	doc := &jsonapi.Document{
		Data: jsonapi.Collection(s.present(items, r)),
		Meta: map[string]any{"total": total},
	}
	doc.Included = s.included(items, r)
	writeDocument(w, http.StatusOK, doc)
}

func (s *Server) show(w http.ResponseWriter, r *http.Request) {
	typ, id := chi.URLParam(r, "type"), chi.URLParam(r, "id")

	res, ok := s.Resource(typ, id)
	if !ok {
		writeNotFound(w, typ, id)
		return
	}

	items := []*jsonapi.Resource{res}
	doc := &jsonapi.Document{Data: jsonapi.Single(s.present(items, r)[0])}
	doc.Included = s.included(items, r)
	writeDocument(w, http.StatusOK, doc)
}

func (s *Server) create(w http.ResponseWriter, r *http.Request) {
	typ := chi.URLParam(r, "type")

	doc, ok := readDocument(w, r)
	if !ok {
		return
	}
	if doc.Data == nil || doc.Data.IsMany() || doc.Data.One == nil {
		writeErrors(w, http.StatusBadRequest, jsonapi.NewError(http.StatusBadRequest, "expected a single resource"))
		return
	}

	res := doc.Data.One
	if res.Type != typ {
		writeErrors(w, http.StatusConflict, jsonapi.NewError(http.StatusConflict, fmt.Sprintf("type %q does not match endpoint %q", res.Type, typ)))
		return
	}
	if res.ID == "" {
		res.ID = uuid.NewString()
	}

	s.mu.Lock()
	if _, exists := s.resources[typ][res.ID]; exists {
		s.mu.Unlock()
		writeErrors(w, http.StatusConflict, jsonapi.NewError(http.StatusConflict, "resource already exists"))
		return
	}
	s.put(res)
	s.mu.Unlock()

	writeDocument(w, http.StatusCreated, &jsonapi.Document{Data: jsonapi.Single(res)})
}

func (s *Server) update(w http.ResponseWriter, r *http.Request) {
	typ, id := chi.URLParam(r, "type"), chi.URLParam(r, "id")

	doc, ok := readDocument(w, r)
	if !ok {
		return
	}
	if doc.Data == nil || doc.Data.IsMany() || doc.Data.One == nil {
		writeErrors(w, http.StatusBadRequest, jsonapi.NewError(http.StatusBadRequest, "expected a single resource"))
		return
	}

	merged, ok := s.merge(typ, id, doc.Data.One)
	if !ok {
		writeNotFound(w, typ, id)
		return
	}
	writeDocument(w, http.StatusOK, &jsonapi.Document{Data: jsonapi.Single(merged)})
}

func (s *Server) updateMany(w http.ResponseWriter, r *http.Request) {
	typ := chi.URLParam(r, "type")

	doc, ok := readDocument(w, r)
	if !ok {
		return
	}
	if doc.Data == nil || !doc.Data.IsMany() {
		writeErrors(w, http.StatusBadRequest, jsonapi.NewError(http.StatusBadRequest, "expected a resource collection"))
		return
	}

	updated := make([]*jsonapi.Resource, 0, len(doc.Data.Many))
	for _, res := range doc.Data.Many {
		merged, ok := s.merge(typ, res.ID, res)
		if !ok {
			writeNotFound(w, typ, res.ID)
			return
		}
		updated = append(updated, merged)
	}
	writeDocument(w, http.StatusOK, &jsonapi.Document{Data: jsonapi.Collection(updated)})
}

func (s *Server) remove(w http.ResponseWriter, r *http.Request) {
	typ, id := chi.URLParam(r, "type"), chi.URLParam(r, "id")

	if !s.delete(typ, id) {
		writeNotFound(w, typ, id)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) removeMany(w http.ResponseWriter, r *http.Request) {
	typ := chi.URLParam(r, "type")

	doc, ok := readDocument(w, r)
	if !ok {
		return
	}
	for _, res := range doc.Data.Resources() {
		s.delete(typ, res.ID)
	}
	w.WriteHeader(http.StatusNoContent)
}

// put stores res; callers hold the lock
func (s *Server) put(res *jsonapi.Resource) {
	if s.resources[res.Type] == nil {
		s.resources[res.Type] = make(map[string]*jsonapi.Resource)
	}
	if _, exists := s.resources[res.Type][res.ID]; !exists {
		s.order[res.Type] = append(s.order[res.Type], res.ID)
	}
	s.resources[res.Type][res.ID] = res
}

func (s *Server) merge(typ, id string, patch *jsonapi.Resource) (*jsonapi.Resource, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.resources[typ][id]
	if !ok {
		return nil, false
	}

	merged := *current
	merged.Attributes = make(map[string]any, len(current.Attributes)+len(patch.Attributes))
	for k, v := range current.Attributes {
		merged.Attributes[k] = v
	}
	for k, v := range patch.Attributes {
		merged.Attributes[k] = v
	}
	merged.Relationships = make(map[string]*jsonapi.Relationship, len(current.Relationships)+len(patch.Relationships))
	for k, v := range current.Relationships {
		merged.Relationships[k] = v
	}
	for k, v := range patch.Relationships {
		merged.Relationships[k] = v
	}

	s.resources[typ][id] = &merged
	return &merged, true
}

func (s *Server) delete(typ, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.resources[typ][id]; !ok {
		return false
	}
	delete(s.resources[typ], id)
	for i, existing := range s.order[typ] {
		if existing == id {
			s.order[typ] = append(s.order[typ][:i], s.order[typ][i+1:]...)
			break
		}
	}
	return true
}

// present applies sparse fieldsets
func (s *Server) present(items []*jsonapi.Resource, r *http.Request) []*jsonapi.Resource {
	fields := query.ParseFields(r)
	if len(fields) == 0 {
		return items
	}

	result := make([]*jsonapi.Resource, len(items))
	for i, res := range items {
		result[i] = sparse(res, fields)
	}
	return result
}

// included resolves one level of the include parameter from stored resources
func (s *Server) included(items []*jsonapi.Resource, r *http.Request) []*jsonapi.Resource {
	include := query.ParseInclude(r)
	if len(include) == 0 {
		return nil
	}
	fields := query.ParseFields(r)

	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]bool)
	var result []*jsonapi.Resource
	for _, res := range items {
		for _, name := range include {
			rel, ok := res.Relationships[name]
			if !ok || rel == nil {
				continue
			}
			for _, linkage := range rel.Data.Resources() {
				key := linkage.Type + "/" + linkage.ID
				target, ok := s.resources[linkage.Type][linkage.ID]
				if !ok || seen[key] {
					continue
				}
				seen[key] = true
				result = append(result, sparse(target, fields))
			}
		}
	}
	return result
}

func sparse(res *jsonapi.Resource, fields map[string][]string) *jsonapi.Resource {
	allowed, ok := fields[res.Type]
	if !ok {
		return res
	}

	copied := *res
	copied.Attributes = make(map[string]any)
	copied.Relationships = nil
	for _, name := range allowed {
		if v, ok := res.Attributes[name]; ok {
			copied.Attributes[name] = v
		}
		if rel, ok := res.Relationships[name]; ok {
			if copied.Relationships == nil {
				copied.Relationships = make(map[string]*jsonapi.Relationship)
			}
			copied.Relationships[name] = rel
		}
	}
	return &copied
}

func filterResources(items []*jsonapi.Resource, filter map[string]string) []*jsonapi.Resource {
	if len(filter) == 0 {
		return items
	}

	result := make([]*jsonapi.Resource, 0, len(items))
	for _, res := range items {
		match := true
		for key, want := range filter {
			if key == "id" {
				match = match && res.ID == want
				continue
			}
			v, ok := res.Attributes[key]
			match = match && ok && fmt.Sprint(v) == want
		}
		if match {
			result = append(result, res)
		}
	}
	return result
}

func sortResources(items []*jsonapi.Resource, fields []query.SortField) {
	if len(fields) == 0 {
		return
	}

	sort.SliceStable(items, func(i, j int) bool {
		for _, f := range fields {
			c := compare(items[i].Attributes[f.Field], items[j].Attributes[f.Field])
			if c == 0 {
				continue
			}
			if f.Descending {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}

func compare(a, b interface{}) int {
	fa, aNum := a.(float64)
	fb, bNum := b.(float64)
	if aNum && bNum {
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	}

	sa, sb := fmt.Sprint(a), fmt.Sprint(b)
	switch {
	case sa < sb:
		return -1
	case sa > sb:
		return 1
	}
	return 0
}

func paginate(items []*jsonapi.Resource, page map[string]string) []*jsonapi.Resource {
	size, err := strconv.Atoi(page["size"])
	if err != nil || size <= 0 {
		return items
	}
	number, err := strconv.Atoi(page["number"])
	if err != nil || number < 1 {
		number = 1
	}

	start := (number - 1) * size
	if start >= len(items) {
		return []*jsonapi.Resource{}
	}
	end := start + size
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

func readDocument(w http.ResponseWriter, r *http.Request) (*jsonapi.Document, bool) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeErrors(w, http.StatusBadRequest, jsonapi.NewError(http.StatusBadRequest, err.Error()))
		return nil, false
	}

	doc, err := jsonapi.Parse(body)
	if err != nil {
		e := jsonapi.NewError(http.StatusBadRequest, "malformed document")
		e.Detail = err.Error()
		writeErrors(w, http.StatusBadRequest, e)
		return nil, false
	}
	return doc, true
}

func writeNotFound(w http.ResponseWriter, typ, id string) {
	e := jsonapi.NewError(http.StatusNotFound, "Not Found")
	e.Detail = fmt.Sprintf("%s %q does not exist", typ, id)
	e.Source = &jsonapi.ErrorSource{Parameter: "id"}
	writeErrors(w, http.StatusNotFound, e)
}

func writeErrors(w http.ResponseWriter, status int, errs ...*jsonapi.Error) {
	writeDocument(w, status, jsonapi.ErrorDocument(errs...))
}

func writeDocument(w http.ResponseWriter, status int, doc *jsonapi.Document) {
	data, err := json.Marshal(doc)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", jsonapi.MediaType)
	w.WriteHeader(status)
	_, _ = w.Write(data)
}
