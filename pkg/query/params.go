// Package query encodes JSON:API query parameters (include, sparse fieldsets,
// filters, sorting, pagination) and parses them back on the server side.
package query

import (
	"fmt"
	"net/url"
	"reflect"
	"sort"
	"strings"
)

// Params describes the query of one request. Filter, Page and Extra may hold
// nested maps, which are encoded in bracket notation.
type Params struct {
	Include []string
	Fields  map[string][]string
	Filter  map[string]any
	Sort    []string
	Page    map[string]any
	Extra   map[string]any
}

// Values encodes the params. A nil receiver yields empty values.
func (p *Params) Values() url.Values {
	values := url.Values{}
	if p == nil {
		return values
	}

	if len(p.Include) > 0 {
		values.Set("include", strings.Join(p.Include, ","))
	}
	for typ, fields := range p.Fields {
		values.Set("fields["+typ+"]", strings.Join(fields, ","))
	}
	if len(p.Filter) > 0 {
		encodeInto(values, "filter", p.Filter)
	}
	if len(p.Sort) > 0 {
		values.Set("sort", strings.Join(p.Sort, ","))
	}
	if len(p.Page) > 0 {
		encodeInto(values, "page", p.Page)
	}
	if len(p.Extra) > 0 {
		encodeInto(values, "", p.Extra)
	}

	return values
}

// Encode returns the URL-encoded query string, sorted by key
func (p *Params) Encode() string {
	return p.Values().Encode()
}

// Encode converts an arbitrary nested map into query values: slices are
// joined with commas and nested maps use bracket notation, so
// {"filter": {"status": ["a", "b"]}} becomes filter[status]=a,b.
func Encode(data map[string]any) url.Values {
	values := url.Values{}
	encodeInto(values, "", data)
	return values
}

func encodeInto(values url.Values, prefix string, data interface{}) {
	val := reflect.ValueOf(data)
	if !val.IsValid() {
		return
	}

	for val.Kind() == reflect.Interface || val.Kind() == reflect.Ptr {
		if val.IsNil() {
			return
		}
		val = val.Elem()
	}

	switch val.Kind() {
	case reflect.Map:
		keys := make([]string, 0, val.Len())
		byName := make(map[string]reflect.Value, val.Len())
		for _, key := range val.MapKeys() {
			name := fmt.Sprint(key.Interface())
			keys = append(keys, name)
			byName[name] = val.MapIndex(key)
		}
		sort.Strings(keys)

		for _, name := range keys {
			param := name
			if prefix != "" {
				param = prefix + "[" + name + "]"
			}
			encodeInto(values, param, byName[name].Interface())
		}

	case reflect.Slice, reflect.Array:
		parts := make([]string, 0, val.Len())
		for i := 0; i < val.Len(); i++ {
			parts = append(parts, fmt.Sprint(val.Index(i).Interface()))
		}
		values.Add(prefix, strings.Join(parts, ","))

	default:
		if prefix != "" {
			values.Add(prefix, fmt.Sprint(val.Interface()))
		}
	}
}
