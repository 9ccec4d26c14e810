package httpadapter

import (
	"net/http"
	"sync"
)

// Global registers an interceptor for every resource type
const Global = "*"

// RequestInterceptor may modify an outgoing request. Returning an error aborts
// the exchange.
type RequestInterceptor func(req *http.Request) error

// ResponseInterceptor sees every response before its body is decoded
type ResponseInterceptor func(resp *http.Response) error

// ErrorInterceptor may replace the error of a failed exchange. A nil return
// keeps the current error.
type ErrorInterceptor func(req *http.Request, err error) error

// Interceptors holds hooks keyed by Global or a resource type. For each
// exchange the global hooks run first, then the hooks of the resource type,
// each group in registration order.
type Interceptors struct {
	mu       sync.RWMutex
	request  map[string][]RequestInterceptor
	response map[string][]ResponseInterceptor
	errors   map[string][]ErrorInterceptor
}

// NewInterceptors creates an empty set
func NewInterceptors() *Interceptors {
	return &Interceptors{
		request:  make(map[string][]RequestInterceptor),
		response: make(map[string][]ResponseInterceptor),
		errors:   make(map[string][]ErrorInterceptor),
	}
}

// OnRequest adds request interceptors for key
func (i *Interceptors) OnRequest(key string, fns ...RequestInterceptor) *Interceptors {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.request[key] = append(i.request[key], fns...)
	return i
}

// OnResponse adds response interceptors for key
func (i *Interceptors) OnResponse(key string, fns ...ResponseInterceptor) *Interceptors {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.response[key] = append(i.response[key], fns...)
	return i
}

// OnError adds error interceptors for key
func (i *Interceptors) OnError(key string, fns ...ErrorInterceptor) *Interceptors {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.errors[key] = append(i.errors[key], fns...)
	return i
}

func (i *Interceptors) applyRequest(typ string, req *http.Request) error {
	for _, fn := range lookup(i, i.request, typ) {
		if err := fn(req); err != nil {
			return err
		}
	}
	return nil
}

func (i *Interceptors) applyResponse(typ string, resp *http.Response) error {
	for _, fn := range lookup(i, i.response, typ) {
		if err := fn(resp); err != nil {
			return err
		}
	}
	return nil
}

func (i *Interceptors) applyError(typ string, req *http.Request, err error) error {
	for _, fn := range lookup(i, i.errors, typ) {
		if replaced := fn(req, err); replaced != nil {
			err = replaced
		}
	}
	return err
}

// lookup copies the global hooks followed by the type hooks
func lookup[F any](i *Interceptors, hooks map[string][]F, typ string) []F {
	i.mu.RLock()
	defer i.mu.RUnlock()

	result := make([]F, 0, len(hooks[Global])+len(hooks[typ]))
	result = append(result, hooks[Global]...)
	if typ != Global {
		result = append(result, hooks[typ]...)
	}
	return result
}
