package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

func newMetaCommand(app *app) *cobra.Command {
	metaCmd := &cobra.Command{
		Use:   "meta",
		Short: "Inspect and edit collection metadata",
	}

	metaCmd.AddCommand(newMetaListCommand(app))
	metaCmd.AddCommand(newMetaSetCommand(app))
	metaCmd.AddCommand(newMetaDeleteCommand(app))

	return metaCmd
}

func newMetaListCommand(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List metadata entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := app.loadStore(true)
			if err != nil {
				return err
			}
			if app.out.json {
				return app.out.result(store.Metadata(), nil)
			}
			meta := store.Metadata()
			rows := make([][]string, 0, len(meta))
			for _, k := range store.MetadataKeys() {
				v := meta[k]
				if v == nil {
					rows = append(rows, []string{k, "null"})
					continue
				}
				rows = append(rows, []string{k, formatValue(v)})
			}
			return app.out.table([]string{"Key", "Value"}, rows, nil)
		},
	}
}

func newMetaSetCommand(app *app) *cobra.Command {
	var raw bool

	cmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a metadata entry",
		Long: `Set a metadata entry. Values that look like booleans, integers, decimals or
null are stored as such; --string keeps the value as text.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := app.loadStore(false)
			if err != nil {
				return err
			}
			var value any = args[1]
			if !raw {
				value = parseScalar(args[1])
			}
			if err := store.SetMetadata(args[0], value); err != nil {
				return err
			}
			if err := app.saveStore(store, nil); err != nil {
				return err
			}
			app.out.infof("Set %s\n", args[0])
			return nil
		},
	}

	cmd.Flags().BoolVar(&raw, "string", false, "Store the value as text")
	return cmd
}

func newMetaDeleteCommand(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <key>",
		Short: "Delete a metadata entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := app.loadStore(true)
			if err != nil {
				return err
			}
			if err := store.DeleteMetadata(args[0]); err != nil {
				return err
			}
			if err := app.saveStore(store, nil); err != nil {
				return err
			}
			return app.out.result(map[string]string{"deleted": args[0]}, func(w io.Writer) {
				fmt.Fprintf(w, "Deleted %s\n", args[0])
			})
		},
	}
}
