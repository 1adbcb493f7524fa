// Package registry implements the exact-match URI-to-handler table of
// §4.G: a read-write-locked map from URI to a per-method handler
// table, generalized from the teacher's ServeMux{mu sync.RWMutex; m
// map[string]muxEntry} shape (which matches by longest prefix) down to
// simple exact-URI lookup with six method slots instead of one
// Handler per pattern.
//
// Handlers are stored as opaque interface{} values: the registry
// itself has no notion of what a "handler" looks like, so it carries
// no dependency on the connection/dispatch machinery, the way mux/ in
// the teacher tree is independent of conn.go.
package registry

import (
	"errors"
	"sync"
)

const NumMethods = 6

// MethodIndex returns the slot of method in the six-entry method
// table, or -1 if method isn't one of the six recognized verbs.
func MethodIndex(method string) int {
	switch method {
	case "GET":
		return 0
	case "PUT":
		return 1
	case "POST":
		return 2
	case "DELETE":
		return 3
	case "PATCH":
		return 4
	case "HEAD":
		return 5
	default:
		return -1
	}
}

// Endpoint is a (URI, six-method handler table, opaque user data)
// tuple, per §3's data model.
type Endpoint struct {
	URI      string
	Handlers [NumMethods]interface{}
	UserData interface{}
}

// ErrAlreadyRegistered is returned by Register when uri already has an
// Endpoint.
var ErrAlreadyRegistered = errors.New("registry: uri already registered")

// Registry is the endpoint table. The zero value is ready to use.
type Registry struct {
	mu        sync.RWMutex
	endpoints map[string]*Endpoint
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{endpoints: make(map[string]*Endpoint)}
}

// Register adds uri with the given method table and user data. It
// fails with ErrAlreadyRegistered if uri is already present — callers
// must Unregister first.
func (r *Registry) Register(uri string, handlers [NumMethods]interface{}, userData interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.endpoints == nil {
		r.endpoints = make(map[string]*Endpoint)
	}
	if _, exists := r.endpoints[uri]; exists {
		return ErrAlreadyRegistered
	}
	r.endpoints[uri] = &Endpoint{URI: uri, Handlers: handlers, UserData: userData}
	return nil
}

// Unregister removes uri. It is idempotent on an absent uri: removing
// something that was never there still returns nil, per §4.G.
func (r *Registry) Unregister(uri string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.endpoints, uri)
	return nil
}

// Lookup returns the Endpoint registered for uri, or nil if none is.
func (r *Registry) Lookup(uri string) *Endpoint {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.endpoints[uri]
}

// LookupMethod returns (handler, registered, methodAllowed) for a
// uri/method pair:
//   - registered is false when the URI itself has no Endpoint (caller
//     should respond 404 / NOT_REGISTERED).
//   - methodAllowed is false when the URI exists but has no handler
//     for this method (caller should respond 405 / METHOD_NOT_ALLOWED).
func (r *Registry) LookupMethod(uri, method string) (handler interface{}, registered, methodAllowed bool) {
	idx := MethodIndex(method)
	r.mu.RLock()
	defer r.mu.RUnlock()
	ep, ok := r.endpoints[uri]
	if !ok {
		return nil, false, false
	}
	if idx < 0 || ep.Handlers[idx] == nil {
		return nil, true, false
	}
	return ep.Handlers[idx], true, true
}

// Len reports the number of registered endpoints, mostly useful for
// tests and metrics.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.endpoints)
}
