package serializer

import (
	"github.com/conduit-lang/jsonapi-store/pkg/jsonapi"
	"github.com/conduit-lang/jsonapi-store/pkg/model"
)

type resourceKey struct {
	typ string
	id  string
}

// SerializationContext records the resources already emitted during one
// serialize call. A resource met a second time is emitted as an identifier.
type SerializationContext struct {
	emitted map[model.Resource]bool
}

// NewSerializationContext creates an empty serialization context
func NewSerializationContext() *SerializationContext {
	return &SerializationContext{emitted: make(map[model.Resource]bool)}
}

// Visit marks a resource as emitted and reports whether it was not emitted before
func (c *SerializationContext) Visit(r model.Resource) bool {
	if c.emitted[r] {
		return false
	}
	c.emitted[r] = true
	return true
}

// Emitted reports whether the resource has been emitted in this context
func (c *SerializationContext) Emitted(r model.Resource) bool {
	return c.emitted[r]
}

// DeserializationContext indexes the primary and included resources of one
// document and caches the instances built from it, so every (type, id) pair
// maps to exactly one instance.
type DeserializationContext struct {
	resources map[resourceKey]model.Resource
	included  map[resourceKey]*jsonapi.Resource
}

// NewDeserializationContext creates a context seeded with a document's included resources
func NewDeserializationContext(included []*jsonapi.Resource) *DeserializationContext {
	ctx := &DeserializationContext{
		resources: make(map[resourceKey]model.Resource),
		included:  make(map[resourceKey]*jsonapi.Resource, len(included)),
	}
	ctx.Link(included...)
	return ctx
}

// Link adds raw resources to the linked index. A later resource replaces an
// earlier one with the same (type, id).
func (c *DeserializationContext) Link(resources ...*jsonapi.Resource) {
	for _, res := range resources {
		if res == nil || res.Type == "" || res.ID == "" {
			continue
		}
		c.included[resourceKey{res.Type, res.ID}] = res
	}
}

// AddResource registers an instance under (type, id). Resources without an id
// are not registered.
func (c *DeserializationContext) AddResource(typ, id string, r model.Resource) {
	if id == "" {
		return
	}
	c.resources[resourceKey{typ, id}] = r
}

// HasResource reports whether an instance is registered under (type, id)
func (c *DeserializationContext) HasResource(typ, id string) bool {
	_, ok := c.resources[resourceKey{typ, id}]
	return ok
}

// Resource returns the instance registered under (type, id)
func (c *DeserializationContext) Resource(typ, id string) (model.Resource, bool) {
	r, ok := c.resources[resourceKey{typ, id}]
	return r, ok
}

// HasLinkedData reports whether the linked index holds (type, id)
func (c *DeserializationContext) HasLinkedData(typ, id string) bool {
	_, ok := c.included[resourceKey{typ, id}]
	return ok
}

// LinkedData returns the raw linked resource for (type, id)
func (c *DeserializationContext) LinkedData(typ, id string) (*jsonapi.Resource, bool) {
	res, ok := c.included[resourceKey{typ, id}]
	return res, ok
}

// Len returns the number of registered instances
func (c *DeserializationContext) Len() int {
	return len(c.resources)
}
