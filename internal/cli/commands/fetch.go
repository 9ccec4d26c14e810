package commands

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/conduit-lang/jsonapi-store/pkg/jsonapi"
	"github.com/conduit-lang/jsonapi-store/pkg/query"
	"github.com/conduit-lang/jsonapi-store/pkg/schema"
)

// maxConcurrentFetches bounds the parallel requests issued by get
const maxConcurrentFetches = 4

// queryFlags are the query options shared by get and list
type queryFlags struct {
	include []string
	fields  []string
	sort    []string
	filter  []string
	path    string
	raw     bool
}

func (f *queryFlags) register(cmd *cobra.Command, withListOptions bool) {
	flags := cmd.Flags()
	flags.StringSliceVar(&f.include, "include", nil, "relationship paths to include, e.g. author,comments.author")
	flags.StringArrayVar(&f.fields, "fields", nil, "sparse fieldset as type=a,b (repeatable)")
	flags.StringVar(&f.path, "path", "", "collection path when it differs from /<type>")
	flags.BoolVar(&f.raw, "raw", false, "print the response document as JSON")
	if withListOptions {
		flags.StringSliceVar(&f.sort, "sort", nil, "sort fields, prefix with - for descending")
		flags.StringArrayVar(&f.filter, "filter", nil, "filter as key=value, nested keys with dots: author.name=ann (repeatable)")
	}
}

// params converts the flags into query parameters
func (f *queryFlags) params() (*query.Params, error) {
	params := &query.Params{
		Include: f.include,
		Sort:    f.sort,
	}

	for _, raw := range f.fields {
		typ, list, ok := strings.Cut(raw, "=")
		if !ok || typ == "" {
			return nil, fmt.Errorf("invalid --fields %q, expected type=a,b", raw)
		}
		if params.Fields == nil {
			params.Fields = make(map[string][]string)
		}
		params.Fields[typ] = splitComma(list)
	}

	for _, raw := range f.filter {
		key, value, ok := strings.Cut(raw, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --filter %q, expected key=value", raw)
		}
		if params.Filter == nil {
			params.Filter = make(map[string]any)
		}
		setNested(params.Filter, strings.Split(key, "."), value)
	}

	return params, nil
}

func newGetCommand(root *rootOptions) *cobra.Command {
	flags := &queryFlags{}

	cmd := &cobra.Command{
		Use:   "get <type> <id>...",
		Short: "Fetch resources by id",
		Long: `Fetch one or more resources by id. Several ids are fetched concurrently;
the command fails if any of them cannot be fetched.`,
		Example: `  jsonapi get users 1
  jsonapi get users 1 2 3 --include office --fields users=name,email`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := root.open()
			if err != nil {
				return err
			}
			defer s.logger.Sync() //nolint:errcheck

			params, err := flags.params()
			if err != nil {
				return err
			}

			typ, ids := args[0], args[1:]
			metadata := &schema.ModelMetadata{ID: typ, Type: typ, Path: flags.path}

			docs := make([]*jsonapi.Document, len(ids))
			g, ctx := errgroup.WithContext(cmd.Context())
			g.SetLimit(maxConcurrentFetches)
			for i, id := range ids {
				i, id := i, id
				g.Go(func() error {
					doc, err := s.adapter.FetchOne(ctx, metadata, id, params)
					if err != nil {
						return fetchError(typ, id, err)
					}
					docs[i] = doc
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}

			s.logger.Debug("fetched resources", zap.String("type", typ), zap.Int("count", len(ids)))

			if flags.raw {
				return printRaw(cmd.OutOrStdout(), docs...)
			}
			return printRecords(cmd.OutOrStdout(), typ, flags.path, docs...)
		},
	}

	flags.register(cmd, false)
	return cmd
}

func newListCommand(root *rootOptions) *cobra.Command {
	flags := &queryFlags{}
	var pageSize, pageNumber int

	cmd := &cobra.Command{
		Use:   "list <type>",
		Short: "List the resources of a type",
		Example: `  jsonapi list posts --sort -created_at --filter status=published
  jsonapi list posts --page-size 10 --page-number 2 --raw`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := root.open()
			if err != nil {
				return err
			}
			defer s.logger.Sync() //nolint:errcheck

			params, err := flags.params()
			if err != nil {
				return err
			}
			if pageSize > 0 {
				params.Page = map[string]any{"size": pageSize}
				if pageNumber > 0 {
					params.Page["number"] = pageNumber
				}
			}

			typ := args[0]
			metadata := &schema.ModelMetadata{ID: typ, Type: typ, Path: flags.path}

			doc, err := s.adapter.FetchList(cmd.Context(), metadata, params)
			if err != nil {
				return fetchError(typ, "", err)
			}

			if flags.raw {
				return printRaw(cmd.OutOrStdout(), doc)
			}
			return printTable(cmd.OutOrStdout(), typ, flags.path, doc)
		},
	}

	flags.register(cmd, true)
	cmd.Flags().IntVar(&pageSize, "page-size", 0, "page size (page[size])")
	cmd.Flags().IntVar(&pageNumber, "page-number", 0, "page number (page[number]), requires --page-size")
	return cmd
}

func splitComma(raw string) []string {
	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			result = append(result, p)
		}
	}
	return result
}

// setNested stores value under a dotted key path, so author.name=ann
// becomes {"author": {"name": "ann"}}
func setNested(target map[string]any, path []string, value string) {
	for _, key := range path[:len(path)-1] {
		next, ok := target[key].(map[string]any)
		if !ok {
			next = make(map[string]any)
			target[key] = next
		}
		target = next
	}
	target[path[len(path)-1]] = value
}

func quoteID(id string) string {
	if id == "" {
		return ""
	}
	return " " + strconv.Quote(id)
}
