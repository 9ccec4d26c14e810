package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/conduit-lang/jsonapi-store/pkg/jsonapi"
	"github.com/conduit-lang/jsonapi-store/pkg/query"
	"github.com/conduit-lang/jsonapi-store/pkg/schema"
)

// Transport issues JSON:API requests for a model. A nil document with a nil
// error means the server answered without a body.
type Transport interface {
	FetchOne(ctx context.Context, metadata *schema.ModelMetadata, id string, params *query.Params) (*jsonapi.Document, error)
	FetchList(ctx context.Context, metadata *schema.ModelMetadata, params *query.Params) (*jsonapi.Document, error)
	Create(ctx context.Context, metadata *schema.ModelMetadata, payload *jsonapi.Document, params *query.Params) (*jsonapi.Document, error)
	// Update targets the resource URL when id is set and the collection URL for batches
	Update(ctx context.Context, metadata *schema.ModelMetadata, id string, payload *jsonapi.Document, params *query.Params) (*jsonapi.Document, error)
	// Remove targets the resource URL when id is set; batches send an identifier payload to the collection URL
	Remove(ctx context.Context, metadata *schema.ModelMetadata, id string, payload *jsonapi.Document, params *query.Params) (*jsonapi.Document, error)
}

// ErrInvalidRequest marks failures to build a request; they normalize to status 400
var ErrInvalidRequest = errors.New("invalid request")

// TransportError is returned by transports for failed exchanges. Document is
// set when the server answered with a JSON:API error document.
type TransportError struct {
	StatusCode int
	Document   *jsonapi.Document
	Err        error
}

// Error implements the error interface
func (e *TransportError) Error() string {
	switch {
	case e.Document.HasErrors():
		return fmt.Sprintf("transport error %d: %s", e.StatusCode, e.Document.Errors[0].Error())
	case e.Err != nil:
		if e.StatusCode == 0 {
			return "transport error: " + e.Err.Error()
		}
		return fmt.Sprintf("transport error %d: %s", e.StatusCode, e.Err.Error())
	default:
		return fmt.Sprintf("transport error %d", e.StatusCode)
	}
}

// Unwrap returns the underlying error
func (e *TransportError) Unwrap() error {
	return e.Err
}

// errorDocument turns any transport failure into a document carrying errors.
// Server error documents pass through; everything else becomes one synthetic
// error with a generated id.
func errorDocument(err error) *jsonapi.Document {
	var te *TransportError
	if errors.As(err, &te) {
		if te.Document.HasErrors() {
			return te.Document
		}
		status := te.StatusCode
		if status == 0 && errors.Is(err, ErrInvalidRequest) {
			status = 400
		}
		cause := te.Err
		if cause == nil {
			cause = err
		}
		return jsonapi.ErrorDocument(jsonapi.NewTransportError(status, cause))
	}

	if errors.Is(err, ErrInvalidRequest) {
		return jsonapi.ErrorDocument(jsonapi.NewTransportError(400, err))
	}
	return jsonapi.ErrorDocument(jsonapi.NewTransportError(500, err))
}
