// Package httpadapter implements store.Transport over HTTP.
package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/elnormous/contenttype"
	"go.uber.org/zap"

	"github.com/conduit-lang/jsonapi-store/pkg/jsonapi"
	"github.com/conduit-lang/jsonapi-store/pkg/query"
	"github.com/conduit-lang/jsonapi-store/pkg/schema"
	"github.com/conduit-lang/jsonapi-store/pkg/store"
)

var (
	// ErrUnexpectedMediaType is returned when a response body is not JSON:API
	ErrUnexpectedMediaType = errors.New("unexpected response media type")

	// ErrMalformedResponse is returned when a response body cannot be decoded
	ErrMalformedResponse = errors.New("malformed response document")
)

var (
	jsonAPIMediaType = contenttype.NewMediaType(jsonapi.MediaType)
	jsonMediaType    = contenttype.NewMediaType("application/json")
)

// Adapter sends store requests to a JSON:API server
type Adapter struct {
	urls         URLBuilder
	client       *http.Client
	headers      http.Header
	interceptors *Interceptors
	logger       *zap.Logger
}

var _ store.Transport = (*Adapter)(nil)

// Option configures an Adapter
type Option func(*Adapter)

// WithHTTPClient replaces http.DefaultClient
func WithHTTPClient(client *http.Client) Option {
	return func(a *Adapter) {
		a.client = client
	}
}

// WithLogger sets the logger used for exchange logs
func WithLogger(logger *zap.Logger) Option {
	return func(a *Adapter) {
		a.logger = logger
	}
}

// WithHeader adds a header to every request
func WithHeader(key, value string) Option {
	return func(a *Adapter) {
		a.headers.Add(key, value)
	}
}

// WithInterceptors installs a shared interceptor set
func WithInterceptors(interceptors *Interceptors) Option {
	return func(a *Adapter) {
		a.interceptors = interceptors
	}
}

// New creates an adapter for the server at baseURL
func New(baseURL string, opts ...Option) *Adapter {
	a := &Adapter{
		urls:         URLBuilder{BaseURL: baseURL},
		client:       http.DefaultClient,
		headers:      make(http.Header),
		interceptors: NewInterceptors(),
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// URLs returns the URL builder
func (a *Adapter) URLs() URLBuilder {
	return a.urls
}

// Interceptors returns the interceptor set, ready for registration
func (a *Adapter) Interceptors() *Interceptors {
	return a.interceptors
}

// FetchOne issues GET on the resource URL
func (a *Adapter) FetchOne(ctx context.Context, metadata *schema.ModelMetadata, id string, params *query.Params) (*jsonapi.Document, error) {
	return a.do(ctx, http.MethodGet, metadata, a.urls.ResourceURL(metadata, id), params, nil)
}

// FetchList issues GET on the collection URL
func (a *Adapter) FetchList(ctx context.Context, metadata *schema.ModelMetadata, params *query.Params) (*jsonapi.Document, error) {
	return a.do(ctx, http.MethodGet, metadata, a.urls.ResourceListURL(metadata), params, nil)
}

// Create issues POST on the collection URL
func (a *Adapter) Create(ctx context.Context, metadata *schema.ModelMetadata, payload *jsonapi.Document, params *query.Params) (*jsonapi.Document, error) {
	return a.do(ctx, http.MethodPost, metadata, a.urls.ResourceListURL(metadata), params, payload)
}

// Update issues PATCH on the resource URL, or on the collection URL for batches
func (a *Adapter) Update(ctx context.Context, metadata *schema.ModelMetadata, id string, payload *jsonapi.Document, params *query.Params) (*jsonapi.Document, error) {
	return a.do(ctx, http.MethodPatch, metadata, a.target(metadata, id), params, payload)
}

// Remove issues DELETE on the resource URL, or on the collection URL with an
// identifier payload for batches
func (a *Adapter) Remove(ctx context.Context, metadata *schema.ModelMetadata, id string, payload *jsonapi.Document, params *query.Params) (*jsonapi.Document, error) {
	return a.do(ctx, http.MethodDelete, metadata, a.target(metadata, id), params, payload)
}

func (a *Adapter) target(metadata *schema.ModelMetadata, id string) string {
	if id == "" {
		return a.urls.ResourceListURL(metadata)
	}
	return a.urls.ResourceURL(metadata, id)
}

func (a *Adapter) do(
	ctx context.Context,
	method string,
	metadata *schema.ModelMetadata,
	rawURL string,
	params *query.Params,
	payload *jsonapi.Document,
) (*jsonapi.Document, error) {
	req, err := a.newRequest(ctx, method, rawURL, params, payload)
	if err != nil {
		return nil, &store.TransportError{Err: fmt.Errorf("%w: %v", store.ErrInvalidRequest, err)}
	}

	if err := a.interceptors.applyRequest(metadata.Type, req); err != nil {
		return nil, a.fail(metadata, req, &store.TransportError{Err: fmt.Errorf("%w: %v", store.ErrInvalidRequest, err)})
	}

	start := time.Now()
	resp, err := a.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		a.logger.Debug("http request failed",
			zap.String("method", method),
			zap.String("url", req.URL.String()),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err))
		return nil, a.fail(metadata, req, &store.TransportError{Err: err})
	}
	defer resp.Body.Close()

	a.logger.Debug("http exchange",
		zap.String("method", method),
		zap.String("url", req.URL.String()),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)))

	if err := a.interceptors.applyResponse(metadata.Type, resp); err != nil {
		return nil, a.fail(metadata, req, &store.TransportError{StatusCode: resp.StatusCode, Err: err})
	}

	doc, err := decodeResponse(resp)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, a.fail(metadata, req, err)
	}
	return doc, nil
}

func (a *Adapter) newRequest(ctx context.Context, method, rawURL string, params *query.Params, payload *jsonapi.Document) (*http.Request, error) {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(encoded)
	}

	if encoded := params.Encode(); encoded != "" {
		rawURL += "?" + encoded
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", jsonapi.MediaType)
	req.Header.Set("Accept", jsonapi.MediaType)
	for key, values := range a.headers {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	return req, nil
}

func (a *Adapter) fail(metadata *schema.ModelMetadata, req *http.Request, err error) error {
	return a.interceptors.applyError(metadata.Type, req, err)
}

// decodeResponse reads the body of resp. Error statuses become a
// *store.TransportError carrying the server's error document when there is one.
func decodeResponse(resp *http.Response) (*jsonapi.Document, error) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &store.TransportError{StatusCode: resp.StatusCode, Err: err}
	}

	failed := resp.StatusCode >= http.StatusBadRequest

	if len(bytes.TrimSpace(body)) == 0 {
		if failed {
			return nil, &store.TransportError{StatusCode: resp.StatusCode, Err: errors.New(http.StatusText(resp.StatusCode))}
		}
		return nil, nil
	}

	mediaType := contenttype.NewMediaType(resp.Header.Get("Content-Type"))
	if !mediaType.Matches(jsonAPIMediaType) && !mediaType.Matches(jsonMediaType) {
		return nil, &store.TransportError{
			StatusCode: statusFor(resp.StatusCode, failed),
			Err:        fmt.Errorf("%w: %q", ErrUnexpectedMediaType, resp.Header.Get("Content-Type")),
		}
	}

	doc, err := jsonapi.Parse(body)
	if err != nil {
		return nil, &store.TransportError{
			StatusCode: statusFor(resp.StatusCode, failed),
			Err:        fmt.Errorf("%w: %v", ErrMalformedResponse, err),
		}
	}

	if failed {
		te := &store.TransportError{StatusCode: resp.StatusCode, Document: doc}
		if !doc.HasErrors() {
			te.Document = nil
			te.Err = errors.New(http.StatusText(resp.StatusCode))
		}
		return nil, te
	}
	return doc, nil
}

// statusFor keeps error statuses and reports unusable 2xx bodies as 502
func statusFor(status int, failed bool) int {
	if failed {
		return status
	}
	return http.StatusBadGateway
}
