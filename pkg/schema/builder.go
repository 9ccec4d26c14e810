package schema

import (
	"errors"
	"fmt"
	"reflect"
)

// Builder declares a model and its fields in one pass. Errors are collected
// and reported together by Register.
type Builder struct {
	registry *Registry
	id       string
	config   ModelConfig
	attrs    []builderAttr
	rels     []builderRel
	errors   []error
}

type builderAttr struct {
	property string
	config   AttributeConfig
}

type builderRel struct {
	property string
	config   RelationshipConfig
}

// NewBuilder starts the declaration of model id on the given registry
func NewBuilder(registry *Registry, id string, config ModelConfig) *Builder {
	return &Builder{
		registry: registry,
		id:       id,
		config:   config,
	}
}

// Attr declares an attribute whose wire name equals the property name
func (b *Builder) Attr(property string) *Builder {
	return b.Attribute(property, AttributeConfig{})
}

// Attribute declares an attribute with explicit configuration
func (b *Builder) Attribute(property string, config AttributeConfig) *Builder {
	if property == "" {
		b.errors = append(b.errors, fmt.Errorf("model %s: empty attribute name", b.id))
		return b
	}
	b.attrs = append(b.attrs, builderAttr{property: property, config: config})
	return b
}

// TypedAttr declares an attribute coerced to the Go type of sample
func (b *Builder) TypedAttr(property string, sample interface{}) *Builder {
	return b.Attribute(property, AttributeConfig{Type: reflect.TypeOf(sample)})
}

// HasOne declares a to-one relationship
func (b *Builder) HasOne(property string, target TypeRef) *Builder {
	return b.Relationship(property, RelationshipConfig{Resource: target})
}

// HasMany declares a to-many relationship
func (b *Builder) HasMany(property string, target TypeRef) *Builder {
	return b.Relationship(property, RelationshipConfig{Resource: target, IsArray: true})
}

// Relationship declares a relationship with explicit configuration
func (b *Builder) Relationship(property string, config RelationshipConfig) *Builder {
	if property == "" {
		b.errors = append(b.errors, fmt.Errorf("model %s: empty relationship name", b.id))
		return b
	}
	if config.Resource.IsZero() {
		b.errors = append(b.errors, fmt.Errorf("%w: %s.%s", ErrInvalidTypeRef, b.id, property))
		return b
	}
	b.rels = append(b.rels, builderRel{property: property, config: config})
	return b
}

// Register writes the declaration to the registry. Fields are declared before
// the model itself, matching the order field annotations run in. On failure
// the registry entry is left as it was before the call.
func (b *Builder) Register() (*ModelMetadata, error) {
	if len(b.errors) > 0 {
		return nil, errors.Join(b.errors...)
	}

	previous, existed := b.registry.snapshot(b.id)
	metadata, err := b.register()
	if err != nil {
		b.registry.restore(b.id, previous, existed)
		return nil, err
	}
	return metadata, nil
}

func (b *Builder) register() (*ModelMetadata, error) {
	for _, attr := range b.attrs {
		if err := b.registry.RegisterAttribute(b.id, attr.property, attr.config); err != nil {
			return nil, err
		}
	}
	for _, rel := range b.rels {
		if err := b.registry.RegisterRelationship(b.id, rel.property, rel.config); err != nil {
			return nil, err
		}
	}

	return b.registry.RegisterModel(b.id, b.config)
}

// MustRegister is like Register but panics on error
func (b *Builder) MustRegister() *ModelMetadata {
	metadata, err := b.Register()
	if err != nil {
		panic(err)
	}
	return metadata
}

// GetErrors returns the errors collected so far
func (b *Builder) GetErrors() []error {
	return b.errors
}
