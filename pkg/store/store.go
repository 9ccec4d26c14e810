// Package store orchestrates JSON:API requests: it serializes model instances,
// hands payloads to a Transport and maps every response, success or failure,
// back into a deserialized document.
package store

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"

	"go.uber.org/zap"

	"github.com/conduit-lang/jsonapi-store/pkg/jsonapi"
	"github.com/conduit-lang/jsonapi-store/pkg/model"
	"github.com/conduit-lang/jsonapi-store/pkg/query"
	"github.com/conduit-lang/jsonapi-store/pkg/schema"
	"github.com/conduit-lang/jsonapi-store/pkg/serializer"
	"github.com/conduit-lang/jsonapi-store/pkg/tracking"
)

// MixedBatchTitle is the error title returned when one save mixes new and
// persisted instances
const MixedBatchTitle = "You cannot create and update resources in the same time"

// ErrNothingToSave is returned when Save or Remove receive no instances
var ErrNothingToSave = errors.New("no resources given")

// Store is the entry point for fetching and persisting models
type Store struct {
	transport  Transport
	registry   *schema.Registry
	serializer *serializer.DocumentSerializer
	logger     *zap.Logger
}

// Option configures a Store
type Option func(*Store)

// WithRegistry selects the registry used to resolve models; schema.Default otherwise
func WithRegistry(registry *schema.Registry) Option {
	return func(s *Store) {
		s.registry = registry
	}
}

// WithLogger sets the logger; the store is silent otherwise
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New creates a store on top of a transport
func New(transport Transport, opts ...Option) *Store {
	s := &Store{
		transport: transport,
		registry:  schema.Default,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.registry == nil {
		s.registry = schema.Default
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	s.serializer = serializer.NewDocumentSerializer(s.registry)
	return s
}

// Registry returns the registry the store resolves models from
func (s *Store) Registry() *schema.Registry {
	return s.registry
}

// Serializer returns the document serializer bound to the store's registry
func (s *Store) Serializer() *serializer.DocumentSerializer {
	return s.serializer
}

// Find fetches one resource by id
func (s *Store) Find(modelID, id string, params *query.Params) *Op {
	return s.newOp("find", modelID, func(ctx context.Context) (*serializer.Document, error) {
		metadata, err := s.registry.Lookup(modelID)
		if err != nil {
			return nil, err
		}
		doc, err := s.transport.FetchOne(ctx, metadata, id, params)
		return s.complete(ctx, metadata, doc, err, nil)
	})
}

// FindAll fetches the collection of a model
func (s *Store) FindAll(modelID string, params *query.Params) *Op {
	return s.newOp("find_all", modelID, func(ctx context.Context) (*serializer.Document, error) {
		metadata, err := s.registry.Lookup(modelID)
		if err != nil {
			return nil, err
		}
		doc, err := s.transport.FetchList(ctx, metadata, params)
		return s.complete(ctx, metadata, doc, err, nil)
	})
}

// Save creates new instances and updates persisted ones. v is a resource or a
// slice of resources of one model; a slice must be all new or all persisted.
// Saved instances are flushed once the server accepts them.
func (s *Store) Save(v interface{}, params *query.Params) *Op {
	return s.newOp("save", describe(v), func(ctx context.Context) (*serializer.Document, error) {
		items, single, err := resources(v)
		if err != nil {
			return nil, err
		}
		metadata, err := s.registry.MetadataOf(items[0])
		if err != nil {
			return nil, err
		}

		created, updated := 0, 0
		for _, item := range items {
			if model.IsNew(item) {
				created++
			} else {
				updated++
			}
		}
		if created > 0 && updated > 0 {
			s.logger.Warn("rejected mixed batch",
				zap.String("model", metadata.ID),
				zap.Int("new", created),
				zap.Int("persisted", updated))
			return serializer.NewErrorDocument(jsonapi.NewError(400, MixedBatchTitle)), nil
		}

		payload, err := s.serializer.Serialize(v)
		if err != nil {
			return nil, err
		}

		var doc *jsonapi.Document
		switch {
		case created > 0:
			doc, err = s.transport.Create(ctx, metadata, payload, params)
		case single:
			doc, err = s.transport.Update(ctx, metadata, items[0].GetID(), payload, params)
		default:
			doc, err = s.transport.Update(ctx, metadata, "", payload, params)
		}

		return s.complete(ctx, metadata, doc, err, func(result *serializer.Document) {
			if single && items[0].GetID() == "" {
				if saved := result.One(); saved != nil {
					items[0].SetID(saved.GetID())
				}
			}
			for _, item := range items {
				tracking.Flush(item, true)
			}
		})
	})
}

// Remove deletes one resource, or a batch by sending their identifiers
func (s *Store) Remove(v interface{}, params *query.Params) *Op {
	return s.newOp("remove", describe(v), func(ctx context.Context) (*serializer.Document, error) {
		items, single, err := resources(v)
		if err != nil {
			return nil, err
		}
		metadata, err := s.registry.MetadataOf(items[0])
		if err != nil {
			return nil, err
		}

		var doc *jsonapi.Document
		if single {
			doc, err = s.transport.Remove(ctx, metadata, items[0].GetID(), nil, params)
		} else {
			payload, serr := s.serializer.SerializeAsID(v)
			if serr != nil {
				return nil, serr
			}
			doc, err = s.transport.Remove(ctx, metadata, "", payload, params)
		}
		return s.complete(ctx, metadata, doc, err, nil)
	})
}

// complete maps a transport outcome to a deserialized document. onSuccess
// runs only when the response carries no errors.
func (s *Store) complete(
	ctx context.Context,
	metadata *schema.ModelMetadata,
	doc *jsonapi.Document,
	err error,
	onSuccess func(*serializer.Document),
) (*serializer.Document, error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}

	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		s.logger.Debug("transport failed",
			zap.String("model", metadata.ID),
			zap.Error(err))
		doc = errorDocument(err)
	}

	result, derr := s.serializer.DeserializeAs(doc, metadata)
	if derr != nil {
		return nil, fmt.Errorf("deserialize %s response: %w", metadata.ID, derr)
	}

	if onSuccess != nil && !result.HasErrors() {
		onSuccess(result)
	}
	return result, nil
}

func (s *Store) newOp(name, target string, run func(context.Context) (*serializer.Document, error)) *Op {
	return &Op{
		name: name,
		run: func(ctx context.Context) (*serializer.Document, error) {
			start := time.Now()
			result, err := run(ctx)

			fields := []zap.Field{
				zap.String("op", name),
				zap.String("target", target),
				zap.Duration("duration", time.Since(start)),
			}
			switch {
			case err != nil:
				s.logger.Debug("store operation failed", append(fields, zap.Error(err))...)
			case result.HasErrors():
				s.logger.Debug("store operation returned errors", append(fields, zap.Int("errors", len(result.Errors)))...)
			default:
				s.logger.Debug("store operation completed", fields...)
			}
			return result, err
		},
	}
}

// resources flattens v into instances and reports whether v was a single one
func resources(v interface{}) ([]model.Resource, bool, error) {
	if v == nil {
		return nil, false, ErrNothingToSave
	}
	if r, ok := v.(model.Resource); ok {
		if reflect.ValueOf(r).Kind() == reflect.Ptr && reflect.ValueOf(r).IsNil() {
			return nil, false, ErrNothingToSave
		}
		return []model.Resource{r}, true, nil
	}

	val := reflect.ValueOf(v)
	if val.Kind() != reflect.Slice && val.Kind() != reflect.Array {
		return nil, false, fmt.Errorf("%w: %T", serializer.ErrNotResource, v)
	}

	items := make([]model.Resource, 0, val.Len())
	for i := 0; i < val.Len(); i++ {
		elem := val.Index(i)
		if elem.Kind() == reflect.Interface && elem.IsNil() {
			continue
		}
		r, ok := elem.Interface().(model.Resource)
		if !ok {
			return nil, false, fmt.Errorf("%w: %s", serializer.ErrNotResource, elem.Type())
		}
		items = append(items, r)
	}
	if len(items) == 0 {
		return nil, false, ErrNothingToSave
	}
	return items, false, nil
}

func describe(v interface{}) string {
	if v == nil {
		return "<nil>"
	}
	return reflect.TypeOf(v).String()
}
