package httpadapter

import (
	"net/url"
	"strings"

	"github.com/conduit-lang/jsonapi-store/pkg/schema"
)

// URLBuilder derives endpoint URLs from model metadata
type URLBuilder struct {
	BaseURL string
}

// ResourceListURL returns the collection URL: the model path when set,
// "/" + type otherwise, appended to the base URL
func (b URLBuilder) ResourceListURL(metadata *schema.ModelMetadata) string {
	return strings.TrimSuffix(b.BaseURL, "/") + metadata.ResourcePath()
}

// ResourceURL returns the URL of a single resource
func (b URLBuilder) ResourceURL(metadata *schema.ModelMetadata, id string) string {
	return b.ResourceListURL(metadata) + "/" + url.PathEscape(id)
}
