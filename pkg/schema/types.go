// Package schema provides the model metadata registry: for every model it records
// the JSON:API resource type, the URL path, the tracked attributes and relationships,
// and the discriminator used for polymorphic deserialization.
package schema

import (
	"fmt"
	"reflect"
	"time"
)

// ValueSerializer transforms an attribute value between its model and wire forms
type ValueSerializer interface {
	Serialize(value interface{}) (interface{}, error)
	Deserialize(value interface{}) (interface{}, error)
}

// SerializerFuncs adapts a pair of functions to ValueSerializer. A nil function
// passes the value through unchanged.
type SerializerFuncs struct {
	Encode func(interface{}) (interface{}, error)
	Decode func(interface{}) (interface{}, error)
}

// Serialize implements ValueSerializer
func (f SerializerFuncs) Serialize(value interface{}) (interface{}, error) {
	if f.Encode == nil {
		return value, nil
	}
	return f.Encode(value)
}

// Deserialize implements ValueSerializer
func (f SerializerFuncs) Deserialize(value interface{}) (interface{}, error) {
	if f.Decode == nil {
		return value, nil
	}
	return f.Decode(value)
}

// TimeSerializer encodes time.Time attributes as strings in the given layout
type TimeSerializer struct {
	Layout string
}

// Serialize implements ValueSerializer
func (s TimeSerializer) Serialize(value interface{}) (interface{}, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case time.Time:
		return v.Format(s.layout()), nil
	case *time.Time:
		if v == nil {
			return nil, nil
		}
		return v.Format(s.layout()), nil
	default:
		return nil, fmt.Errorf("time serializer: unsupported value %T", value)
	}
}

// Deserialize implements ValueSerializer
func (s TimeSerializer) Deserialize(value interface{}) (interface{}, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case string:
		return time.Parse(s.layout(), v)
	case time.Time:
		return v, nil
	default:
		return nil, fmt.Errorf("time serializer: unsupported value %T", value)
	}
}

func (s TimeSerializer) layout() string {
	if s.Layout == "" {
		return time.RFC3339
	}
	return s.Layout
}

// TypeRef points at a model either by registered id or by Go type. Symbolic
// references are resolved lazily, so models may refer to each other before
// both are registered.
type TypeRef struct {
	id     string
	goType reflect.Type
}

// Ref references a model by its registered id
func Ref(id string) TypeRef {
	return TypeRef{id: id}
}

// RefOf references a model by the Go type its factory returns, e.g. RefOf[*User]()
func RefOf[T any]() TypeRef {
	return TypeRef{goType: reflect.TypeOf((*T)(nil)).Elem()}
}

// IsZero reports whether the reference is unset
func (t TypeRef) IsZero() bool {
	return t.id == "" && t.goType == nil
}

// String returns a readable form of the reference
func (t TypeRef) String() string {
	if t.goType != nil {
		return t.goType.String()
	}
	return t.id
}

// ModelConfig configures a model at registration time
type ModelConfig struct {
	// Type is the JSON:API resource type; inherited from Extends when empty
	Type string
	// Path overrides the default "/" + Type URL segment
	Path string
	// Extends names a registered parent model whose metadata is copied first
	Extends string
	// DiscriminatorField is the attribute property holding the sub-type tag
	DiscriminatorField string
	// DiscriminatorMap maps tag values to registered model ids
	DiscriminatorMap map[string]string
	// New allocates an empty instance of the model
	New func() interface{}
}

// AttributeConfig configures a tracked attribute
type AttributeConfig struct {
	// Field is the wire name; defaults to the property name
	Field string
	// Serializer transforms values between model and wire forms
	Serializer ValueSerializer
	// Type coerces wire values into this Go type when no Serializer is set
	Type reflect.Type
}

// RelationshipConfig configures a tracked relationship
type RelationshipConfig struct {
	// Field is the wire name; defaults to the property name
	Field string
	// IsArray marks a to-many relationship
	IsArray bool
	// Resource is the target model
	Resource TypeRef
}

// AttributeMetadata describes one tracked attribute
type AttributeMetadata struct {
	Property   string
	Field      string
	Serializer ValueSerializer
	Type       reflect.Type
}

// WireName returns the wire field name
func (a *AttributeMetadata) WireName() string {
	if a.Field != "" {
		return a.Field
	}
	return a.Property
}

// RelationshipMetadata describes one tracked relationship
type RelationshipMetadata struct {
	Property string
	Field    string
	IsArray  bool
	Resource TypeRef
}

// WireName returns the wire field name
func (r *RelationshipMetadata) WireName() string {
	if r.Field != "" {
		return r.Field
	}
	return r.Property
}

// ModelMetadata is the registered description of one model
type ModelMetadata struct {
	ID                 string
	Type               string
	Path               string
	Extends            string
	DiscriminatorField string
	DiscriminatorMap   map[string]string

	newFunc       func() interface{}
	goType        reflect.Type
	attributes    []*AttributeMetadata
	relationships []*RelationshipMetadata
}

// Attributes returns a copy of the attribute list
func (m *ModelMetadata) Attributes() []*AttributeMetadata {
	result := make([]*AttributeMetadata, len(m.attributes))
	copy(result, m.attributes)
	return result
}

// Attribute returns the attribute declared for a property, or nil
func (m *ModelMetadata) Attribute(property string) *AttributeMetadata {
	for _, attr := range m.attributes {
		if attr.Property == property {
			return attr
		}
	}
	return nil
}

// Relationships returns a copy of the relationship list
func (m *ModelMetadata) Relationships() []*RelationshipMetadata {
	result := make([]*RelationshipMetadata, len(m.relationships))
	copy(result, m.relationships)
	return result
}

// Relationship returns the relationship declared for a property, or nil
func (m *ModelMetadata) Relationship(property string) *RelationshipMetadata {
	for _, rel := range m.relationships {
		if rel.Property == property {
			return rel
		}
	}
	return nil
}

// ResourcePath returns the URL path segment for the model
func (m *ModelMetadata) ResourcePath() string {
	if m.Path != "" {
		return m.Path
	}
	return "/" + m.Type
}

// GoType returns the runtime type produced by the model factory
func (m *ModelMetadata) GoType() reflect.Type {
	return m.goType
}

// HasFactory reports whether instances can be allocated
func (m *ModelMetadata) HasFactory() bool {
	return m.newFunc != nil
}

// NewInstance allocates an empty instance of the model
func (m *ModelMetadata) NewInstance() (interface{}, error) {
	if m.newFunc == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoFactory, m.ID)
	}
	return m.newFunc(), nil
}

// addAttribute appends an attribute or replaces the one with the same property
func (m *ModelMetadata) addAttribute(attr *AttributeMetadata) {
	for i, existing := range m.attributes {
		if existing.Property == attr.Property {
			m.attributes[i] = attr
			return
		}
	}
	m.attributes = append(m.attributes, attr)
}

// addRelationship appends a relationship or replaces the one with the same property
func (m *ModelMetadata) addRelationship(rel *RelationshipMetadata) {
	for i, existing := range m.relationships {
		if existing.Property == rel.Property {
			m.relationships[i] = rel
			return
		}
	}
	m.relationships = append(m.relationships, rel)
}

// inherit fills in parent declarations for properties this model does not declare
func (m *ModelMetadata) inherit(parent *ModelMetadata) {
	if m.Type == "" {
		m.Type = parent.Type
	}
	if m.Path == "" {
		m.Path = parent.Path
	}
	if m.DiscriminatorField == "" {
		m.DiscriminatorField = parent.DiscriminatorField
	}
	for _, attr := range parent.attributes {
		if m.Attribute(attr.Property) == nil {
			m.attributes = append(m.attributes, attr)
		}
	}
	for _, rel := range parent.relationships {
		if m.Relationship(rel.Property) == nil {
			m.relationships = append(m.relationships, rel)
		}
	}
}

func (m *ModelMetadata) clone() *ModelMetadata {
	cp := *m
	cp.attributes = m.Attributes()
	cp.relationships = m.Relationships()
	if m.DiscriminatorMap != nil {
		cp.DiscriminatorMap = make(map[string]string, len(m.DiscriminatorMap))
		for k, v := range m.DiscriminatorMap {
			cp.DiscriminatorMap[k] = v
		}
	}
	return &cp
}
