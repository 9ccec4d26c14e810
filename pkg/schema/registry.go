package schema

import (
	"fmt"
	"reflect"
	"sort"
	"sync"
)

// Registry manages the metadata of all models. It doubles as the type
// registry that resolves model ids used by discriminators and forward
// relationship references.
type Registry struct {
	models   map[string]*ModelMetadata
	byGoType map[reflect.Type]string
	mu       sync.RWMutex
}

// NewRegistry creates a new, empty registry
func NewRegistry() *Registry {
	return &Registry{
		models:   make(map[string]*ModelMetadata),
		byGoType: make(map[reflect.Type]string),
	}
}

// RegisterModel declares a model or updates an existing declaration. When
// config.Extends names a registered model, the parent's type, path,
// discriminator field, attributes and relationships are copied first; the
// model's own declarations win on property collisions.
func (r *Registry) RegisterModel(id string, config ModelConfig) (*ModelMetadata, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := r.entry(id).clone()

	if config.Extends != "" {
		parent, ok := r.models[config.Extends]
		if !ok {
			return nil, fmt.Errorf("%w: %s (parent of %s)", ErrUnregisteredModel, config.Extends, id)
		}
		next.Extends = config.Extends
		next.inherit(parent)
	}

	if config.Type != "" {
		next.Type = config.Type
	}
	if config.Path != "" {
		next.Path = config.Path
	}
	if config.DiscriminatorField != "" {
		next.DiscriminatorField = config.DiscriminatorField
	}
	if config.DiscriminatorMap != nil {
		next.DiscriminatorMap = make(map[string]string, len(config.DiscriminatorMap))
		for tag, target := range config.DiscriminatorMap {
			next.DiscriminatorMap[tag] = target
		}
	}

	if next.Type == "" {
		return nil, fmt.Errorf("%w: %s", ErrMissingType, id)
	}

	if config.New != nil {
		goType := reflect.TypeOf(config.New())
		if owner, exists := r.byGoType[goType]; exists && owner != id {
			return nil, fmt.Errorf("%w: %s is used by %s", ErrDuplicateGoType, goType, owner)
		}
		if next.goType != nil && next.goType != goType {
			delete(r.byGoType, next.goType)
		}
		next.newFunc = config.New
		next.goType = goType
		r.byGoType[goType] = id
	}

	r.models[id] = next
	return next, nil
}

// RegisterAttribute declares a tracked attribute, creating the model entry if needed
func (r *Registry) RegisterAttribute(id, property string, config AttributeConfig) error {
	if property == "" {
		return fmt.Errorf("attribute of %s has no property name", id)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	next := r.entry(id).clone()
	next.addAttribute(&AttributeMetadata{
		Property:   property,
		Field:      config.Field,
		Serializer: config.Serializer,
		Type:       config.Type,
	})
	r.models[id] = next
	return nil
}

// RegisterRelationship declares a tracked relationship, creating the model entry if needed
func (r *Registry) RegisterRelationship(id, property string, config RelationshipConfig) error {
	if property == "" {
		return fmt.Errorf("relationship of %s has no property name", id)
	}
	if config.Resource.IsZero() {
		return fmt.Errorf("%w: %s.%s", ErrInvalidTypeRef, id, property)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	next := r.entry(id).clone()
	next.addRelationship(&RelationshipMetadata{
		Property: property,
		Field:    config.Field,
		IsArray:  config.IsArray,
		Resource: config.Resource,
	})
	r.models[id] = next
	return nil
}

// entry returns the current metadata for id or a fresh one; callers hold the lock
func (r *Registry) entry(id string) *ModelMetadata {
	if existing, ok := r.models[id]; ok {
		return existing
	}
	return &ModelMetadata{ID: id}
}

// snapshot returns the entry for id. Entries are replaced on write, never
// modified in place, so the snapshot stays valid.
func (r *Registry) snapshot(id string) (*ModelMetadata, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.models[id]
	return m, ok
}

// restore puts back an entry taken with snapshot
func (r *Registry) restore(id string, m *ModelMetadata, existed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existed {
		r.models[id] = m
		return
	}
	delete(r.models, id)
}

// Get retrieves model metadata by id
func (r *Registry) Get(id string) (*ModelMetadata, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	metadata, exists := r.models[id]
	return metadata, exists
}

// Lookup retrieves model metadata by id, failing for unknown ids
func (r *Registry) Lookup(id string) (*ModelMetadata, error) {
	metadata, ok := r.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnregisteredModel, id)
	}
	return metadata, nil
}

// Resolve resolves a type reference to model metadata
func (r *Registry) Resolve(ref TypeRef) (*ModelMetadata, error) {
	if ref.IsZero() {
		return nil, ErrInvalidTypeRef
	}
	if ref.goType != nil {
		return r.lookupGoType(ref.goType)
	}
	return r.Lookup(ref.id)
}

// MetadataOf resolves metadata from an instance, or from the first element of a slice
func (r *Registry) MetadataOf(v interface{}) (*ModelMetadata, error) {
	if v == nil {
		return nil, fmt.Errorf("%w: <nil>", ErrUnregisteredModel)
	}

	val := reflect.ValueOf(v)
	if val.Kind() == reflect.Slice || val.Kind() == reflect.Array {
		if val.Len() == 0 {
			return nil, ErrEmptyCollection
		}
		first := val.Index(0)
		if first.Kind() == reflect.Interface {
			if first.IsNil() {
				return nil, fmt.Errorf("%w: <nil>", ErrUnregisteredModel)
			}
			first = first.Elem()
		}
		return r.lookupGoType(first.Type())
	}

	return r.lookupGoType(val.Type())
}

func (r *Registry) lookupGoType(goType reflect.Type) (*ModelMetadata, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byGoType[goType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnregisteredModel, goType)
	}
	return r.models[id], nil
}

// List returns the registered model ids in sorted order
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.models))
	for id := range r.models {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// All returns a copy of all registered metadata keyed by model id
func (r *Registry) All() map[string]*ModelMetadata {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[string]*ModelMetadata, len(r.models))
	for k, v := range r.models {
		result[k] = v
	}
	return result
}

// Count returns the number of registered models
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.models)
}

// Exists checks if a model id is registered
func (r *Registry) Exists(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.models[id]
	return exists
}

// Clear removes all registered models (useful for testing)
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.models = make(map[string]*ModelMetadata)
	r.byGoType = make(map[reflect.Type]string)
}

// ValidateAll checks that every model resolves to a resource type, that every
// relationship and discriminator target is registered, and that discriminator
// fields are declared attributes.
func (r *Registry) ValidateAll() error {
	graph := NewRelationshipGraph(r)
	if err := graph.Validate(); err != nil {
		return fmt.Errorf("relationship validation failed: %w", err)
	}

	for _, id := range r.List() {
		metadata, _ := r.Get(id)
		if metadata.Type == "" {
			return fmt.Errorf("%w: %s", ErrMissingType, id)
		}
		if metadata.DiscriminatorField != "" && metadata.Attribute(metadata.DiscriminatorField) == nil {
			return fmt.Errorf("%w: %s.%s", ErrUnknownDiscriminator, id, metadata.DiscriminatorField)
		}
		for tag, target := range metadata.DiscriminatorMap {
			if _, err := r.Lookup(target); err != nil {
				return fmt.Errorf("discriminator %q of %s: %w", tag, id, err)
			}
		}
	}

	return nil
}
