package query

import (
	"net/http"
	"regexp"
	"strings"
)

// fieldsPattern matches query parameters like fields[typename]
var fieldsPattern = regexp.MustCompile(`^fields\[([^\]]+)\]$`)

// filterPattern matches query parameters like filter[key]
var filterPattern = regexp.MustCompile(`^filter\[([^\]]+)\]$`)

// pagePattern matches query parameters like page[number]
var pagePattern = regexp.MustCompile(`^page\[([^\]]+)\]$`)

// ParseInclude parses the include query parameter into a slice of relationship names.
// Example: ?include=author,comments returns ["author", "comments"]
func ParseInclude(r *http.Request) []string {
	return splitList(r.URL.Query().Get("include"))
}

// ParseFields parses the fields query parameters into a map of resource types to field names.
// Example: ?fields[users]=name,email&fields[posts]=title
// Returns: {"users": ["name", "email"], "posts": ["title"]}
func ParseFields(r *http.Request) map[string][]string {
	result := make(map[string][]string)

	for key, values := range r.URL.Query() {
		matches := fieldsPattern.FindStringSubmatch(key)
		if len(matches) != 2 {
			continue
		}

		if len(values) == 0 {
			result[matches[1]] = []string{}
			continue
		}
		result[matches[1]] = splitList(values[0])
	}

	return result
}

// ParseFilter parses the filter query parameters into a map of filter keys to values.
// Only single-level keys are read; filter[author][name] is ignored.
// Example: ?filter[status]=published&filter[author_id]=123
func ParseFilter(r *http.Request) map[string]string {
	return parseBracketed(r, filterPattern)
}

// ParsePage parses the page query parameters
// Example: ?page[number]=2&page[size]=10 returns {"number": "2", "size": "10"}
func ParsePage(r *http.Request) map[string]string {
	return parseBracketed(r, pagePattern)
}

// ParseSort parses the sort query parameter into a slice of sort fields.
// The "-" prefix indicates descending sort order.
func ParseSort(r *http.Request) []string {
	return splitList(r.URL.Query().Get("sort"))
}

// SortField is one parsed sort criterion
type SortField struct {
	Field      string
	Descending bool
}

// ParseSortFields parses the sort parameter into fields with their direction
func ParseSortFields(r *http.Request) []SortField {
	sorts := ParseSort(r)
	result := make([]SortField, 0, len(sorts))
	for _, s := range sorts {
		if strings.HasPrefix(s, "-") {
			result = append(result, SortField{Field: s[1:], Descending: true})
			continue
		}
		result = append(result, SortField{Field: s})
	}
	return result
}

func parseBracketed(r *http.Request, pattern *regexp.Regexp) map[string]string {
	result := make(map[string]string)

	for key, values := range r.URL.Query() {
		matches := pattern.FindStringSubmatch(key)
		if len(matches) != 2 {
			continue
		}
		if len(values) > 0 {
			result[matches[1]] = values[0]
		}
	}

	return result
}

func splitList(raw string) []string {
	if raw == "" {
		return []string{}
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
