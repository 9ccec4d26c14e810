package serializer

import (
	"fmt"
	"reflect"

	"github.com/conduit-lang/jsonapi-store/pkg/jsonapi"
	"github.com/conduit-lang/jsonapi-store/pkg/model"
	"github.com/conduit-lang/jsonapi-store/pkg/schema"
)

// Document is a deserialized JSON:API document holding model instances
type Document struct {
	Errors []*jsonapi.Error
	Meta   map[string]any
	Links  map[string]any

	one     model.Resource
	many    []model.Resource
	isMany  bool
	hasData bool
}

// NewDocument wraps a single resource
func NewDocument(r model.Resource) *Document {
	return &Document{one: r, hasData: true}
}

// NewCollectionDocument wraps a list of resources
func NewCollectionDocument(rs []model.Resource) *Document {
	if rs == nil {
		rs = []model.Resource{}
	}
	return &Document{many: rs, isMany: true, hasData: true}
}

// NewErrorDocument wraps a list of errors
func NewErrorDocument(errs ...*jsonapi.Error) *Document {
	return &Document{Errors: errs}
}

// HasErrors reports whether the document carries at least one error
func (d *Document) HasErrors() bool {
	return d != nil && len(d.Errors) > 0
}

// HasData reports whether the document carried primary data, even null or empty
func (d *Document) HasData() bool {
	return d != nil && d.hasData
}

// IsMany reports whether the primary data is a collection
func (d *Document) IsMany() bool {
	return d != nil && d.isMany
}

// One returns the single primary resource, or the first one of a collection
func (d *Document) One() model.Resource {
	if d == nil {
		return nil
	}
	if d.isMany {
		if len(d.many) == 0 {
			return nil
		}
		return d.many[0]
	}
	return d.one
}

// Many returns the primary resources as a list regardless of shape
func (d *Document) Many() []model.Resource {
	if d == nil {
		return nil
	}
	if d.isMany {
		return d.many
	}
	if d.one == nil {
		return nil
	}
	return []model.Resource{d.one}
}

// Data returns the primary data as model.Resource, []model.Resource or nil
func (d *Document) Data() interface{} {
	if d == nil || !d.hasData {
		return nil
	}
	if d.isMany {
		return d.many
	}
	return d.one
}

// As returns the single primary resource as T
func As[T model.Resource](d *Document) (T, bool) {
	v, ok := d.One().(T)
	return v, ok
}

// AsSlice returns the primary resources of type T
func AsSlice[T model.Resource](d *Document) []T {
	items := d.Many()
	result := make([]T, 0, len(items))
	for _, item := range items {
		if v, ok := item.(T); ok {
			result = append(result, v)
		}
	}
	return result
}

// DocumentSerializer converts between instances and top-level documents
type DocumentSerializer struct {
	resources *ResourceSerializer
}

// NewDocumentSerializer creates a document serializer. A nil registry selects schema.Default.
func NewDocumentSerializer(registry *schema.Registry) *DocumentSerializer {
	return &DocumentSerializer{resources: NewResourceSerializer(registry)}
}

// Resources returns the underlying resource serializer
func (s *DocumentSerializer) Resources() *ResourceSerializer {
	return s.resources
}

// Serialize wraps one resource or a slice of resources into a document,
// keeping the single-or-collection shape
func (s *DocumentSerializer) Serialize(v interface{}) (*jsonapi.Document, error) {
	return s.serialize(v, func(r model.Resource) (*jsonapi.Resource, error) {
		return s.resources.Serialize(r)
	})
}

// SerializeAsID wraps the identifiers of one resource or a slice of resources
// into a document
func (s *DocumentSerializer) SerializeAsID(v interface{}) (*jsonapi.Document, error) {
	return s.serialize(v, func(r model.Resource) (*jsonapi.Resource, error) {
		id, err := s.resources.SerializeAsID(r)
		if err != nil || id == nil {
			return nil, err
		}
		return id.Resource(), nil
	})
}

func (s *DocumentSerializer) serialize(v interface{}, fn func(model.Resource) (*jsonapi.Resource, error)) (*jsonapi.Document, error) {
	if r, ok := v.(model.Resource); ok {
		res, err := fn(r)
		if err != nil {
			return nil, err
		}
		return &jsonapi.Document{Data: jsonapi.Single(res)}, nil
	}

	if v == nil || reflect.TypeOf(v).Kind() != reflect.Slice {
		return nil, fmt.Errorf("%w: %T", ErrNotResource, v)
	}

	items, err := toResources(v)
	if err != nil {
		return nil, err
	}

	data := make([]*jsonapi.Resource, 0, len(items))
	for _, item := range items {
		if isNil(item) {
			continue
		}
		res, err := fn(item)
		if err != nil {
			return nil, err
		}
		data = append(data, res)
	}

	return &jsonapi.Document{Data: jsonapi.Collection(data)}, nil
}

// Deserialize converts a wire document into model instances of the given
// model id. A nil document yields a nil result.
func (s *DocumentSerializer) Deserialize(doc *jsonapi.Document, modelID string) (*Document, error) {
	if doc == nil {
		return nil, nil
	}

	metadata, err := s.resources.registry.Lookup(modelID)
	if err != nil {
		return nil, err
	}
	return s.DeserializeAs(doc, metadata)
}

// DeserializeAs is Deserialize with resolved metadata
func (s *DocumentSerializer) DeserializeAs(doc *jsonapi.Document, metadata *schema.ModelMetadata) (*Document, error) {
	if doc == nil {
		return nil, nil
	}

	result := &Document{
		Errors: doc.Errors,
		Meta:   doc.Meta,
		Links:  doc.Links,
	}

	if doc.Data == nil {
		return result, nil
	}

	ctx := NewDeserializationContext(doc.Included)
	ctx.Link(doc.Data.Resources()...)
	result.hasData = true

	if doc.Data.IsMany() {
		result.isMany = true
		result.many = make([]model.Resource, 0, len(doc.Data.Many))
		for _, res := range doc.Data.Many {
			r, err := s.resources.Deserialize(res, metadata, ctx)
			if err != nil {
				return nil, err
			}
			if r != nil {
				result.many = append(result.many, r)
			}
		}
		return result, nil
	}

	r, err := s.resources.Deserialize(doc.Data.One, metadata, ctx)
	if err != nil {
		return nil, err
	}
	result.one = r

	return result, nil
}
