package model

import (
	"reflect"
)

// Clone returns a deep copy of a resource: the id and every tracked field are
// copied, and related resources are cloned in turn. Each resource in a cyclic
// graph is cloned once. Clones keep the new flag of their source and start
// without pending changes.
func Clone[T Resource](src T) T {
	cloned, _ := cloneResource(src, make(map[Resource]Resource)).(T)
	return cloned
}

func cloneResource(src Resource, seen map[Resource]Resource) Resource {
	if src == nil {
		return src
	}
	val := reflect.ValueOf(src)
	if val.Kind() != reflect.Ptr || val.IsNil() {
		return src
	}
	if existing, ok := seen[src]; ok {
		return existing
	}

	dst, ok := reflect.New(val.Type().Elem()).Interface().(Resource)
	if !ok {
		return src
	}
	seen[src] = dst

	dst.SetID(src.GetID())

	srcState := src.TrackingState()
	dstState := dst.TrackingState()
	for _, field := range srcState.Fields() {
		value, _ := srcState.Value(field)
		dstState.SetFieldValue(field, cloneValue(value, seen))
	}

	wasNew := srcState.IsNew()
	dstState.Flush(false)
	dstState.SetNew(wasNew)

	return dst
}

func cloneValue(value interface{}, seen map[Resource]Resource) interface{} {
	if r, ok := value.(Resource); ok {
		return cloneResource(r, seen)
	}

	val := reflect.ValueOf(value)
	if !val.IsValid() || val.Kind() != reflect.Slice || val.IsNil() {
		return value
	}

	cp := reflect.MakeSlice(val.Type(), val.Len(), val.Len())
	for i := 0; i < val.Len(); i++ {
		item := val.Index(i)
		if r, ok := item.Interface().(Resource); ok {
			item = reflect.ValueOf(cloneResource(r, seen))
		}
		if item.IsValid() {
			cp.Index(i).Set(item)
		}
	}
	return cp.Interface()
}
