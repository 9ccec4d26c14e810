package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/conduit-lang/jsonapi-store/internal/cli/ui"
	"github.com/conduit-lang/jsonapi-store/pkg/jsonapi"
	"github.com/conduit-lang/jsonapi-store/pkg/store"
	"github.com/conduit-lang/jsonapi-store/pkg/tracking"
)

// maxCellWidth truncates long attribute values in list output
const maxCellWidth = 40

// documentError carries the errors a server answered with
type documentError struct {
	action string
	errs   []*jsonapi.Error
}

func (e *documentError) Error() string {
	titles := make([]string, 0, len(e.errs))
	for _, err := range e.errs {
		titles = append(titles, err.Error())
	}
	return fmt.Sprintf("%s: %s", e.action, strings.Join(titles, "; "))
}

// fetchError turns a transport failure into a documentError when the server
// sent an error document
func fetchError(typ, id string, err error) error {
	action := "fetch " + typ + quoteID(id)

	var te *store.TransportError
	if errors.As(err, &te) && te.Document.HasErrors() {
		return &documentError{action: action, errs: te.Document.Errors}
	}
	return fmt.Errorf("%s: %w", action, err)
}

// writeError prints err, rendering server error documents in full
func writeError(w io.Writer, err error) bool {
	var de *documentError
	if !errors.As(err, &de) {
		return false
	}
	fmt.Fprintf(w, "%s failed\n", de.action)
	ui.WriteErrors(w, de.errs)
	return true
}

func printRaw(w io.Writer, docs ...*jsonapi.Document) error {
	for _, doc := range docs {
		if doc == nil {
			continue
		}
		encoded, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(w, string(encoded))
	}
	return nil
}

// printRecords renders every primary resource as a key-value block
func printRecords(w io.Writer, typ, path string, docs ...*jsonapi.Document) error {
	c, err := newCatalog(typ, path, docs...)
	if err != nil {
		return err
	}

	for _, doc := range docs {
		result, err := c.decode(doc)
		if err != nil {
			return err
		}
		wire := indexResources(doc)

		for _, record := range result.Many() {
			ui.Header(w, fmt.Sprintf("%s %s", typ, record.GetID()))
			table := ui.NewKeyValueTable(w)
			for _, attr := range c.metadata.Attributes() {
				table.AddRow(attr.Property, formatValue(tracking.Get(record, attr.Property)))
			}
			if res, ok := wire[record.GetID()]; ok {
				for _, name := range sortedKeys(res.Relationships) {
					table.AddRow(name, formatLinkage(res.Relationships[name]))
				}
			}
			table.Render()
			fmt.Fprintln(w)
		}

		if included := len(doc.Included); included > 0 {
			fmt.Fprintf(w, "(%d included resources, use --raw to show them)\n", included)
		}
	}
	return nil
}

// printTable renders the primary collection as one row per resource
func printTable(w io.Writer, typ, path string, doc *jsonapi.Document) error {
	c, err := newCatalog(typ, path, doc)
	if err != nil {
		return err
	}
	result, err := c.decode(doc)
	if err != nil {
		return err
	}

	attributes := c.metadata.Attributes()
	headers := []string{"ID"}
	for _, attr := range attributes {
		headers = append(headers, strings.ToUpper(attr.Property))
	}

	table := ui.NewTable(w, maxCellWidth, headers...)
	for _, record := range result.Many() {
		row := []string{record.GetID()}
		for _, attr := range attributes {
			row = append(row, formatValue(tracking.Get(record, attr.Property)))
		}
		table.AddRow(row...)
	}
	table.Render()

	summary := fmt.Sprintf("%d %s", table.Len(), typ)
	if total, ok := doc.Meta["total"]; ok {
		summary += fmt.Sprintf(" (total %v)", total)
	}
	fmt.Fprintln(w, summary)
	return nil
}

func indexResources(doc *jsonapi.Document) map[string]*jsonapi.Resource {
	index := make(map[string]*jsonapi.Resource)
	if doc == nil {
		return index
	}
	for _, res := range doc.Data.Resources() {
		if res != nil {
			index[res.ID] = res
		}
	}
	return index
}

func formatValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return "-"
	case string:
		return val
	case map[string]interface{}, []interface{}:
		encoded, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(encoded)
	default:
		return fmt.Sprint(val)
	}
}

func formatLinkage(rel *jsonapi.Relationship) string {
	if rel == nil || rel.Data == nil {
		return "-"
	}
	items := rel.Data.Resources()
	parts := make([]string, 0, len(items))
	for _, item := range items {
		parts = append(parts, item.Type+":"+item.ID)
	}
	if rel.Data.IsMany() {
		return "[" + strings.Join(parts, ", ") + "]"
	}
	if len(parts) == 0 {
		return "-"
	}
	return parts[0]
}

func sortedKeys(m map[string]*jsonapi.Relationship) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
