package commands

import (
	"sort"

	"github.com/conduit-lang/jsonapi-store/pkg/jsonapi"
	"github.com/conduit-lang/jsonapi-store/pkg/model"
	"github.com/conduit-lang/jsonapi-store/pkg/schema"
	"github.com/conduit-lang/jsonapi-store/pkg/serializer"
)

// Record is a schema-less model. The CLI does not know the server's models in
// advance, so it declares one from the attributes found in each response.
type Record struct{ model.Base }

// catalog is a registry holding a single Record model
type catalog struct {
	registry *schema.Registry
	metadata *schema.ModelMetadata
}

// newCatalog declares the model typ. Every attribute key of a matching
// resource in docs becomes a declared attribute.
func newCatalog(typ, path string, docs ...*jsonapi.Document) (*catalog, error) {
	registry := schema.NewRegistry()
	builder := schema.NewBuilder(registry, typ, schema.ModelConfig{
		Type: typ,
		Path: path,
		New:  func() interface{} { return &Record{} },
	})

	for _, name := range attributeNames(typ, docs) {
		builder.Attr(name)
	}

	metadata, err := builder.Register()
	if err != nil {
		return nil, err
	}
	return &catalog{registry: registry, metadata: metadata}, nil
}

// decode deserializes a wire document into records
func (c *catalog) decode(doc *jsonapi.Document) (*serializer.Document, error) {
	return serializer.NewDocumentSerializer(c.registry).DeserializeAs(doc, c.metadata)
}

// persisted returns records for existing ids, ready to be removed
func (c *catalog) persisted(ids ...string) []*Record {
	records := make([]*Record, 0, len(ids))
	for _, id := range ids {
		r := &Record{}
		r.SetID(id)
		r.TrackingState().Flush(false)
		records = append(records, r)
	}
	return records
}

func attributeNames(typ string, docs []*jsonapi.Document) []string {
	seen := make(map[string]bool)
	for _, doc := range docs {
		if doc == nil {
			continue
		}
		for _, res := range doc.Data.Resources() {
			if res == nil || res.Type != typ {
				continue
			}
			for name := range res.Attributes {
				seen[name] = true
			}
		}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
