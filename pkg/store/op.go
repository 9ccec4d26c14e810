package store

import (
	"context"

	"github.com/conduit-lang/jsonapi-store/pkg/serializer"
)

// Op is a deferred store operation. Nothing is sent until Run is called, and
// each call issues a new request.
type Op struct {
	name string
	run  func(ctx context.Context) (*serializer.Document, error)
}

// Name returns the operation kind, e.g. "find" or "save"
func (o *Op) Name() string {
	return o.name
}

// Run executes the operation. Failures reported by the server come back as a
// document with errors; the error return is reserved for configuration
// mistakes, malformed responses and cancellation.
func (o *Op) Run(ctx context.Context) (*serializer.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return o.run(ctx)
}

// Result is the outcome of an operation started with Go
type Result struct {
	Document *serializer.Document
	Err      error
}

// Go runs the operation in its own goroutine. The channel receives exactly
// one result and is then closed.
func (o *Op) Go(ctx context.Context) <-chan Result {
	out := make(chan Result, 1)
	go func() {
		defer close(out)
		doc, err := o.Run(ctx)
		out <- Result{Document: doc, Err: err}
	}()
	return out
}
