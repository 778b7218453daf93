package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ryanm101/spielpendium/internal/apperr"
	"github.com/ryanm101/spielpendium/internal/bgg"
	"github.com/ryanm101/spielpendium/internal/record"
	"github.com/ryanm101/spielpendium/internal/schema"
)

func newListCommand(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the games in the collection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := app.loadStore(true)
			if err != nil {
				return err
			}
			records := store.Records()
			if app.out.json {
				return app.out.result(viewRecords(records), nil)
			}
			if len(records) == 0 {
				app.out.infof("Collection is empty\n")
				return nil
			}
			return app.out.table(summaryHeaders, summaryRows(records), summaryAligns)
		},
	}
}

func newShowCommand(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show every field of one game",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := app.loadStore(true)
			if err != nil {
				return err
			}
			r := store.Get(args[0])
			if r == nil {
				return apperr.NotFoundError("game", args[0])
			}
			if app.out.json {
				return app.out.result(viewRecord(r), nil)
			}
			return app.out.table([]string{"Field", "Value"}, detailRows(r), nil)
		},
	}
}

func newSearchCommand(app *app) *cobra.Command {
	var remote, exact, force bool

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the collection, or the catalog with --catalog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if remote {
				return searchCatalog(cmd, app, args[0], exact, force)
			}
			store, _, err := app.loadStore(true)
			if err != nil {
				return err
			}
			hits := store.Search(args[0])
			if app.out.json {
				return app.out.result(viewRecords(hits), nil)
			}
			if len(hits) == 0 {
				app.out.infof("No games match %q\n", args[0])
				return nil
			}
			return app.out.table(summaryHeaders, summaryRows(hits), summaryAligns)
		},
	}

	cmd.Flags().BoolVar(&remote, "catalog", false, "Search the catalog instead of the collection")
	cmd.Flags().BoolVar(&exact, "exact", false, "Only exact name matches (with --catalog)")
	cmd.Flags().BoolVar(&force, "force", false, "Bypass the response cache (with --catalog)")
	return cmd
}

func searchCatalog(cmd *cobra.Command, app *app, query string, exact, force bool) error {
	client, err := app.catalog(cmd.Context(), true)
	if err != nil {
		return err
	}
	doc, err := client.Search(cmd.Context(), query, exact)
	if err != nil {
		return err
	}
	hits, err := bgg.SearchResults(doc)
	if err != nil {
		return err
	}
	if app.out.json {
		return app.out.result(hits, nil)
	}
	if len(hits) == 0 {
		app.out.infof("No catalog entries match %q\n", query)
		return nil
	}
	rows := make([][]string, len(hits))
	for i, h := range hits {
		rows[i] = []string{h.ID, h.Name, h.Year}
	}
	return app.out.table([]string{"ID", "Name", "Year"}, rows, []columnAlignment{alignRight, alignLeft, alignRight})
}

func newSetCommand(app *app) *cobra.Command {
	var clearValue bool

	cmd := &cobra.Command{
		Use:   "set <id> <field> [value]",
		Short: "Change one field of a game",
		Long: `Change one field of a game.

Mapping fields (version, publisher, related_games) take comma separated
id=name pairs. The image field takes the path of a PNG, JPEG or GIF file.
Use --clear to remove a value.`,
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, field := args[0], args[1]
			if !clearValue && len(args) != 3 {
				return fmt.Errorf("set %s: a value or --clear is required", field)
			}
			store, tracker, err := app.loadStore(true)
			if err != nil {
				return err
			}

			var value any
			if !clearValue {
				value, err = fieldValue(app, field, args[2])
				if err != nil {
					return err
				}
			}
			if err := store.Update(id, field, value); err != nil {
				return err
			}
			if err := app.saveStore(store, tracker); err != nil {
				return err
			}
			app.out.infof("Updated %s of %s\n", field, store.Get(id))
			return nil
		},
	}

	cmd.Flags().BoolVar(&clearValue, "clear", false, "Remove the field value")
	return cmd
}

// fieldValue converts a command line argument into the value Update expects.
func fieldValue(app *app, field, arg string) (any, error) {
	f, ok := schema.Lookup(field)
	if !ok {
		return arg, nil
	}
	switch f.Kind {
	case schema.KindImage:
		data, err := os.ReadFile(arg) // #nosec G304
		if err != nil {
			return nil, fmt.Errorf("read image: %w", err)
		}
		img, err := record.DecodeImage(data)
		if err != nil {
			return nil, err
		}
		return img.Fit(app.cfg.Import.ImageSize), nil
	case schema.KindMapping:
		return parseMapping(arg)
	default:
		return arg, nil
	}
}

func newRemoveCommand(app *app) *cobra.Command {
	return &cobra.Command{
		Use:     "remove <id>...",
		Aliases: []string{"rm"},
		Short:   "Remove games from the collection",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, tracker, err := app.loadStore(true)
			if err != nil {
				return err
			}
			removed := make([]string, 0, len(args))
			for _, id := range args {
				if err := store.Remove(id); err != nil {
					return err
				}
				removed = append(removed, id)
			}
			if err := app.saveStore(store, tracker); err != nil {
				return err
			}
			return app.out.result(map[string]any{"removed": removed, "records": store.Len()}, func(w io.Writer) {
				fmt.Fprintf(w, "Removed %d game(s), %d left\n", len(removed), store.Len())
			})
		},
	}
}
