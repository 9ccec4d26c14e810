package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conduit-lang/jsonapi-store/internal/cli/ui"
	"github.com/conduit-lang/jsonapi-store/pkg/serializer"
	"github.com/conduit-lang/jsonapi-store/pkg/store"
)

func newDeleteCommand(root *rootOptions) *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "delete <type> <id>...",
		Short: "Delete resources",
		Long: `Delete one resource by id, or several at once. Several ids are sent as a
single DELETE on the collection with their identifiers as payload.`,
		Example: `  jsonapi delete users 7
  jsonapi delete users 7 8 9`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := root.open()
			if err != nil {
				return err
			}
			defer s.logger.Sync() //nolint:errcheck

			typ, ids := args[0], args[1:]
			c, err := newCatalog(typ, path)
			if err != nil {
				return err
			}

			st := store.New(s.adapter, store.WithRegistry(c.registry), store.WithLogger(s.logger.Named("store")))

			records := c.persisted(ids...)
			var op *store.Op
			if len(records) == 1 {
				op = st.Remove(records[0], nil)
			} else {
				op = st.Remove(records, nil)
			}

			doc, err := op.Run(cmd.Context())
			if err != nil {
				return err
			}
			if err := removeError(typ, ids, doc); err != nil {
				return err
			}

			ui.WriteSuccess(cmd.OutOrStdout(), "deleted %d %s", len(ids), typ)
			return nil
		},
	}

	cmd.Flags().StringVar(&path, "path", "", "collection path when it differs from /<type>")
	return cmd
}

func removeError(typ string, ids []string, doc *serializer.Document) error {
	if !doc.HasErrors() {
		return nil
	}
	action := fmt.Sprintf("delete %s %v", typ, ids)
	if len(ids) == 1 {
		action = "delete " + typ + quoteID(ids[0])
	}
	return &documentError{action: action, errs: doc.Errors}
}
