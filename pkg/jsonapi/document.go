// Package jsonapi defines the wire-level JSON:API document types exchanged with a server.
package jsonapi

import (
	"bytes"
	"encoding/json"
)

const (
	// MediaType is the official JSON:API media type
	MediaType = "application/vnd.api+json"
)

// Document is a top-level JSON:API document
type Document struct {
	Data     *PrimaryData   `json:"data,omitempty"`
	Errors   []*Error       `json:"errors,omitempty"`
	Included []*Resource    `json:"included,omitempty"`
	Meta     map[string]any `json:"meta,omitempty"`
	Links    map[string]any `json:"links,omitempty"`
}

// HasErrors reports whether the document carries at least one error
func (d *Document) HasErrors() bool {
	return d != nil && len(d.Errors) > 0
}

// Resource is a JSON:API resource object. A resource with only Type and ID set
// marshals exactly like a resource identifier object.
type Resource struct {
	ID            string                   `json:"id,omitempty"`
	Type          string                   `json:"type"`
	Attributes    map[string]any           `json:"attributes,omitempty"`
	Relationships map[string]*Relationship `json:"relationships,omitempty"`
	Meta          map[string]any           `json:"meta,omitempty"`
	Links         map[string]any           `json:"links,omitempty"`
}

// Identifier returns the {type, id} pair of the resource
func (r *Resource) Identifier() ResourceIdentifier {
	return ResourceIdentifier{Type: r.Type, ID: r.ID}
}

// ResourceIdentifier references a resource without embedding its data
type ResourceIdentifier struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// Valid reports whether both type and id are present
func (ri ResourceIdentifier) Valid() bool {
	return ri.Type != "" && ri.ID != ""
}

// Resource converts the identifier into a bare resource object
func (ri ResourceIdentifier) Resource() *Resource {
	return &Resource{Type: ri.Type, ID: ri.ID}
}

// Relationship is a JSON:API relationship object. Linkage entries may be
// identifiers or fully embedded resources.
type Relationship struct {
	Data  *PrimaryData   `json:"data"`
	Links map[string]any `json:"links,omitempty"`
	Meta  map[string]any `json:"meta,omitempty"`
}

// PrimaryData holds either a single (possibly null) resource or a collection.
// The shape survives a marshal/unmarshal round trip.
type PrimaryData struct {
	One  *Resource
	Many []*Resource
	many bool
}

// Single wraps one resource; a nil resource marshals as null
func Single(r *Resource) *PrimaryData {
	return &PrimaryData{One: r}
}

// Collection wraps a list of resources; a nil list marshals as []
func Collection(rs []*Resource) *PrimaryData {
	if rs == nil {
		rs = []*Resource{}
	}
	return &PrimaryData{Many: rs, many: true}
}

// IsMany reports whether the data is a collection
func (d *PrimaryData) IsMany() bool {
	return d != nil && d.many
}

// Resources returns the data as a list regardless of shape
func (d *PrimaryData) Resources() []*Resource {
	if d == nil {
		return nil
	}
	if d.many {
		return d.Many
	}
	if d.One == nil {
		return nil
	}
	return []*Resource{d.One}
}

// MarshalJSON implements json.Marshaler
func (d *PrimaryData) MarshalJSON() ([]byte, error) {
	if d == nil {
		return []byte("null"), nil
	}
	if d.many {
		if d.Many == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(d.Many)
	}
	if d.One == nil {
		return []byte("null"), nil
	}
	return json.Marshal(d.One)
}

// UnmarshalJSON implements json.Unmarshaler
func (d *PrimaryData) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var many []*Resource
		if err := json.Unmarshal(trimmed, &many); err != nil {
			return err
		}
		if many == nil {
			many = []*Resource{}
		}
		*d = PrimaryData{Many: many, many: true}
		return nil
	}

	if bytes.Equal(trimmed, []byte("null")) {
		*d = PrimaryData{}
		return nil
	}

	var one Resource
	if err := json.Unmarshal(trimmed, &one); err != nil {
		return err
	}
	*d = PrimaryData{One: &one}
	return nil
}

// Parse decodes a JSON:API document. An empty or "null" body yields a nil document.
func Parse(body []byte) (*Document, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	var doc Document
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}
