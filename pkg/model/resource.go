// Package model provides the base type embedded by all resource models and
// typed accessors for their tracked fields.
//
// A model is a struct embedding Base whose tracked fields are read and written
// through Get and Set:
//
//	type User struct {
//		model.Base
//	}
//
//	func (u *User) Name() string     { return model.Get[string](u, "name") }
//	func (u *User) SetName(v string) { model.Set(u, "name", v) }
package model

import (
	"reflect"
	"sync/atomic"

	"github.com/conduit-lang/jsonapi-store/internal/convert"
	"github.com/conduit-lang/jsonapi-store/pkg/tracking"
)

// Resource is implemented by every model
type Resource interface {
	tracking.Trackable
	GetID() string
	SetID(id string)
}

// Base carries the resource id and the instance tracking state
type Base struct {
	ID    string
	state atomic.Pointer[tracking.State]
}

// GetID returns the resource id
func (b *Base) GetID() string {
	return b.ID
}

// SetID sets the resource id
func (b *Base) SetID(id string) {
	b.ID = id
}

// TrackingState returns the instance state, allocating it on first use
func (b *Base) TrackingState() *tracking.State {
	if s := b.state.Load(); s != nil {
		return s
	}
	b.state.CompareAndSwap(nil, tracking.NewState())
	return b.state.Load()
}

// Get returns a tracked field converted to T. Unset fields and values that
// cannot be converted yield the zero value.
func Get[T any](r Resource, field string) T {
	v, _ := convert.To[T](tracking.Get(r, field))
	return v
}

// GetMany returns a to-many relationship as []T, skipping elements of other types
func GetMany[T any](r Resource, field string) []T {
	value := tracking.Get(r, field)
	if value == nil {
		return nil
	}
	if typed, ok := value.([]T); ok {
		return typed
	}

	val := reflect.ValueOf(value)
	if val.Kind() != reflect.Slice {
		return nil
	}

	result := make([]T, 0, val.Len())
	for i := 0; i < val.Len(); i++ {
		if item, ok := val.Index(i).Interface().(T); ok {
			result = append(result, item)
		}
	}
	return result
}

// Set writes a tracked field
func Set(r Resource, field string, value interface{}) {
	tracking.Set(r, field, value)
}

// IsNew reports whether the resource has never been persisted
func IsNew(r Resource) bool {
	return tracking.IsNew(r)
}

// HasChanges reports whether the resource differs from its last flushed state
func HasChanges(r Resource) bool {
	return tracking.HasChanges(r)
}
