// Package serializer converts model instances to JSON:API resources and
// documents and back, using the metadata registry and the tracked state of
// each instance to decide what goes on the wire.
package serializer

import (
	"fmt"
	"reflect"

	"github.com/conduit-lang/jsonapi-store/internal/convert"
	"github.com/conduit-lang/jsonapi-store/pkg/jsonapi"
	"github.com/conduit-lang/jsonapi-store/pkg/model"
	"github.com/conduit-lang/jsonapi-store/pkg/schema"
	"github.com/conduit-lang/jsonapi-store/pkg/tracking"
)

var resourceType = reflect.TypeOf((*model.Resource)(nil)).Elem()

// ResourceSerializer converts single resources
type ResourceSerializer struct {
	registry *schema.Registry
}

// NewResourceSerializer creates a resource serializer. A nil registry selects schema.Default.
func NewResourceSerializer(registry *schema.Registry) *ResourceSerializer {
	if registry == nil {
		registry = schema.Default
	}
	return &ResourceSerializer{registry: registry}
}

// Registry returns the registry the serializer resolves metadata from
func (s *ResourceSerializer) Registry() *schema.Registry {
	return s.registry
}

// Serialize converts an instance into a resource object. Attributes are
// emitted when the instance is new, when they changed, or when they hold the
// discriminator. Relationships are emitted when the instance is new or they
// changed.
func (s *ResourceSerializer) Serialize(r model.Resource) (*jsonapi.Resource, error) {
	return s.SerializeWithContext(r, NewSerializationContext())
}

// SerializeWithContext is Serialize with an explicit cycle guard
func (s *ResourceSerializer) SerializeWithContext(r model.Resource, ctx *SerializationContext) (*jsonapi.Resource, error) {
	if isNil(r) {
		return nil, ErrNotResource
	}

	metadata, err := s.registry.MetadataOf(r)
	if err != nil {
		return nil, err
	}

	ctx.Visit(r)

	payload := &jsonapi.Resource{
		Type: metadata.Type,
		ID:   r.GetID(),
	}

	attributes, err := s.serializeAttributes(r, metadata)
	if err != nil {
		return nil, err
	}
	if len(attributes) > 0 {
		payload.Attributes = attributes
	}

	relationships, err := s.serializeRelationships(r, metadata, ctx)
	if err != nil {
		return nil, err
	}
	if len(relationships) > 0 {
		payload.Relationships = relationships
	}

	return payload, nil
}

// SerializeAsID converts an instance into its {type, id} identifier. A nil
// instance yields nil.
func (s *ResourceSerializer) SerializeAsID(r model.Resource) (*jsonapi.ResourceIdentifier, error) {
	if isNil(r) {
		return nil, nil
	}

	metadata, err := s.registry.MetadataOf(r)
	if err != nil {
		return nil, err
	}

	return &jsonapi.ResourceIdentifier{Type: metadata.Type, ID: r.GetID()}, nil
}

func (s *ResourceSerializer) serializeAttributes(r model.Resource, metadata *schema.ModelMetadata) (map[string]any, error) {
	isNew := tracking.IsNew(r)
	attributes := make(map[string]any)

	for _, attr := range metadata.Attributes() {
		if !isNew && attr.Property != metadata.DiscriminatorField && !tracking.IsChanged(r, attr.Property) {
			continue
		}

		value, err := serializeAttribute(attr, tracking.Get(r, attr.Property))
		if err != nil {
			return nil, fmt.Errorf("attribute %s of %s: %w", attr.Property, metadata.ID, err)
		}
		attributes[attr.WireName()] = value
	}

	return attributes, nil
}

func serializeAttribute(attr *schema.AttributeMetadata, value interface{}) (interface{}, error) {
	if value == nil || attr.Serializer == nil {
		return value, nil
	}
	return attr.Serializer.Serialize(value)
}

func (s *ResourceSerializer) serializeRelationships(
	r model.Resource,
	metadata *schema.ModelMetadata,
	ctx *SerializationContext,
) (map[string]*jsonapi.Relationship, error) {
	isNew := tracking.IsNew(r)
	relationships := make(map[string]*jsonapi.Relationship)

	for _, rel := range metadata.Relationships() {
		if !isNew && !tracking.IsChanged(r, rel.Property) {
			continue
		}

		target, err := s.registry.Resolve(rel.Resource)
		if err != nil {
			return nil, fmt.Errorf("relationship %s of %s: %w", rel.Property, metadata.ID, err)
		}

		value := tracking.Get(r, rel.Property)

		var relationship *jsonapi.Relationship
		if rel.IsArray {
			relationship, err = s.serializeHasMany(value, target, ctx)
		} else {
			relationship, err = s.serializeHasOne(value, target, ctx)
		}
		if err != nil {
			return nil, fmt.Errorf("relationship %s of %s: %w", rel.Property, metadata.ID, err)
		}

		relationships[rel.WireName()] = relationship
	}

	return relationships, nil
}

func (s *ResourceSerializer) serializeHasMany(value interface{}, target *schema.ModelMetadata, ctx *SerializationContext) (*jsonapi.Relationship, error) {
	items, err := toResources(value)
	if err != nil {
		return nil, err
	}

	data := make([]*jsonapi.Resource, 0, len(items))
	for _, item := range items {
		if isNil(item) {
			continue
		}
		res, err := s.serializeRelationshipItem(item, target, ctx)
		if err != nil {
			return nil, err
		}
		data = append(data, res)
	}

	return &jsonapi.Relationship{Data: jsonapi.Collection(data)}, nil
}

func (s *ResourceSerializer) serializeHasOne(value interface{}, target *schema.ModelMetadata, ctx *SerializationContext) (*jsonapi.Relationship, error) {
	if value == nil || isNilValue(value) {
		return &jsonapi.Relationship{Data: jsonapi.Single(nil)}, nil
	}

	item, ok := value.(model.Resource)
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrNotResource, value)
	}

	res, err := s.serializeRelationshipItem(item, target, ctx)
	if err != nil {
		return nil, err
	}
	return &jsonapi.Relationship{Data: jsonapi.Single(res)}, nil
}

// serializeRelationshipItem embeds new or dirty targets and references the
// rest by identifier
func (s *ResourceSerializer) serializeRelationshipItem(item model.Resource, target *schema.ModelMetadata, ctx *SerializationContext) (*jsonapi.Resource, error) {
	metadata, err := s.registry.MetadataOf(item)
	if err != nil {
		metadata = target
	}

	embed := tracking.IsNew(item) || tracking.HasChanges(item)
	if !embed || ctx.Emitted(item) {
		return &jsonapi.Resource{Type: metadata.Type, ID: item.GetID()}, nil
	}

	return s.SerializeWithContext(item, ctx)
}

// Deserialize builds an instance of the given model from a resource object,
// resolving relationships through ctx. The returned instance is flushed. An
// instance already built for the same (type, id) in ctx is returned as is.
func (s *ResourceSerializer) Deserialize(data *jsonapi.Resource, metadata *schema.ModelMetadata, ctx *DeserializationContext) (model.Resource, error) {
	if data == nil {
		return nil, nil
	}

	typ := data.Type
	if typ == "" {
		typ = metadata.Type
	}
	if existing, ok := ctx.Resource(typ, data.ID); ok && data.ID != "" {
		return existing, nil
	}

	if concrete, err := s.discriminate(data, metadata); err != nil {
		return nil, err
	} else if concrete != nil {
		return s.Deserialize(data, concrete, ctx)
	}

	inst, err := metadata.NewInstance()
	if err != nil {
		return nil, err
	}
	r, ok := inst.(model.Resource)
	if !ok || isNil(r) {
		return nil, fmt.Errorf("%w: factory of %s returned %T", ErrNotResource, metadata.ID, inst)
	}

	r.SetID(data.ID)

	ctx.AddResource(metadata.Type, data.ID, r)
	if data.Type != "" && data.Type != metadata.Type {
		ctx.AddResource(data.Type, data.ID, r)
	}

	if err := s.deserializeAttributes(r, data.Attributes, metadata); err != nil {
		return nil, err
	}

	if err := s.deserializeRelationships(r, data.Relationships, metadata, ctx); err != nil {
		return nil, err
	}

	tracking.Flush(r, true)

	return r, nil
}

// discriminate returns the concrete model selected by the discriminator, or
// nil when the model itself should be used
func (s *ResourceSerializer) discriminate(data *jsonapi.Resource, metadata *schema.ModelMetadata) (*schema.ModelMetadata, error) {
	if metadata.DiscriminatorField == "" || len(metadata.DiscriminatorMap) == 0 {
		return nil, nil
	}

	attr := metadata.Attribute(metadata.DiscriminatorField)
	if attr == nil {
		return nil, nil
	}

	raw, present := data.Attributes[attr.WireName()]
	if !present {
		return nil, nil
	}

	value, err := deserializeAttribute(attr, raw)
	if err != nil {
		return nil, fmt.Errorf("discriminator of %s: %w", metadata.ID, err)
	}

	tag, ok := value.(string)
	if !ok || tag == "" {
		return nil, nil
	}

	targetID, ok := metadata.DiscriminatorMap[tag]
	if !ok || targetID == metadata.ID {
		return nil, nil
	}

	return s.registry.Lookup(targetID)
}

func (s *ResourceSerializer) deserializeAttributes(r model.Resource, data map[string]any, metadata *schema.ModelMetadata) error {
	for _, attr := range metadata.Attributes() {
		raw, present := data[attr.WireName()]
		if !present {
			continue
		}

		value, err := deserializeAttribute(attr, raw)
		if err != nil {
			return fmt.Errorf("attribute %s of %s: %w", attr.Property, metadata.ID, err)
		}
		tracking.Set(r, attr.Property, value)
	}
	return nil
}

func deserializeAttribute(attr *schema.AttributeMetadata, raw interface{}) (interface{}, error) {
	if attr.Serializer != nil {
		return attr.Serializer.Deserialize(raw)
	}
	if attr.Type != nil {
		return convert.Coerce(raw, attr.Type)
	}
	return raw, nil
}

func (s *ResourceSerializer) deserializeRelationships(
	r model.Resource,
	data map[string]*jsonapi.Relationship,
	metadata *schema.ModelMetadata,
	ctx *DeserializationContext,
) error {
	for _, rel := range metadata.Relationships() {
		relationship, present := data[rel.WireName()]
		if !present || relationship == nil {
			continue
		}

		target, err := s.registry.Resolve(rel.Resource)
		if err != nil {
			return fmt.Errorf("relationship %s of %s: %w", rel.Property, metadata.ID, err)
		}

		if rel.IsArray {
			items, err := s.deserializeRelationshipItems(relationship.Data, target, ctx)
			if err != nil {
				return err
			}
			tracking.Set(r, rel.Property, typedSlice(items, target.GoType()))
			continue
		}

		var one *jsonapi.Resource
		if relationship.Data != nil && !relationship.Data.IsMany() {
			one = relationship.Data.One
		}

		item, err := s.resolveRelationshipItem(one, target, ctx)
		if err != nil {
			return err
		}
		if item == nil {
			tracking.Set(r, rel.Property, nil)
		} else {
			tracking.Set(r, rel.Property, item)
		}
	}
	return nil
}

func (s *ResourceSerializer) deserializeRelationshipItems(data *jsonapi.PrimaryData, target *schema.ModelMetadata, ctx *DeserializationContext) ([]model.Resource, error) {
	parsed := []model.Resource{}
	if !data.IsMany() {
		return parsed, nil
	}

	for _, item := range data.Many {
		resolved, err := s.resolveRelationshipItem(item, target, ctx)
		if err != nil {
			return nil, err
		}
		if resolved != nil {
			parsed = append(parsed, resolved)
		}
	}
	return parsed, nil
}

// resolveRelationshipItem looks the identifier up in the context first, then
// in the included index, and finally deserializes the linkage object itself
// as a stub. Identifiers without a type or id resolve to nil.
func (s *ResourceSerializer) resolveRelationshipItem(item *jsonapi.Resource, target *schema.ModelMetadata, ctx *DeserializationContext) (model.Resource, error) {
	if item == nil || item.Type == "" || item.ID == "" {
		return nil, nil
	}

	if existing, ok := ctx.Resource(item.Type, item.ID); ok {
		return existing, nil
	}

	source := item
	if linked, ok := ctx.LinkedData(item.Type, item.ID); ok {
		source = linked
	}

	if _, err := s.Deserialize(source, target, ctx); err != nil {
		return nil, err
	}

	resolved, ok := ctx.Resource(item.Type, item.ID)
	if !ok {
		return nil, fmt.Errorf("%w with type '%s' and ID '%s'", ErrContextMissingResource, item.Type, item.ID)
	}
	return resolved, nil
}

// typedSlice stores to-many values as []T when every element is a T, and as
// []model.Resource otherwise (e.g. mixed polymorphic members)
func typedSlice(items []model.Resource, elem reflect.Type) interface{} {
	if elem == nil {
		return items
	}
	for _, item := range items {
		if !reflect.TypeOf(item).AssignableTo(elem) {
			return items
		}
	}

	slice := reflect.MakeSlice(reflect.SliceOf(elem), len(items), len(items))
	for i, item := range items {
		slice.Index(i).Set(reflect.ValueOf(item))
	}
	return slice.Interface()
}

// toResources flattens a resource or a slice of resources
func toResources(value interface{}) ([]model.Resource, error) {
	if value == nil {
		return nil, nil
	}
	if r, ok := value.(model.Resource); ok {
		return []model.Resource{r}, nil
	}

	val := reflect.ValueOf(value)
	if val.Kind() != reflect.Slice && val.Kind() != reflect.Array {
		return nil, fmt.Errorf("%w: %T", ErrNotResource, value)
	}

	items := make([]model.Resource, 0, val.Len())
	for i := 0; i < val.Len(); i++ {
		elem := val.Index(i)
		if elem.Kind() == reflect.Interface && elem.IsNil() {
			items = append(items, nil)
			continue
		}
		if !elem.Type().Implements(resourceType) && !(elem.Kind() == reflect.Interface && elem.Elem().Type().Implements(resourceType)) {
			return nil, fmt.Errorf("%w: %s", ErrNotResource, elem.Type())
		}
		items = append(items, elem.Interface().(model.Resource))
	}
	return items, nil
}

func isNil(r model.Resource) bool {
	return r == nil || isNilValue(r)
}

func isNilValue(v interface{}) bool {
	val := reflect.ValueOf(v)
	switch val.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice:
		return val.IsNil()
	}
	return false
}
