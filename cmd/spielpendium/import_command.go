package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/ryanm101/spielpendium/internal/bgg"
	"github.com/ryanm101/spielpendium/internal/tracing"
)

const (
	metaUser       = "bgg_user"
	metaLastImport = "last_import"
)

type importSummary struct {
	BatchID  string        `json:"batch_id"`
	User     string        `json:"user,omitempty"`
	Archive  string        `json:"archive"`
	Added    int           `json:"added"`
	Replaced int           `json:"replaced"`
	Skipped  []bgg.Skipped `json:"skipped"`
	Records  int           `json:"records"`
	Duration string        `json:"duration"`
}

func newImportCommand(app *app) *cobra.Command {
	var (
		filters   map[string]int
		ids       []string
		force     bool
		noCache   bool
		policy    string
		workers   int
		imageSize int
	)

	cmd := &cobra.Command{
		Use:   "import [user]",
		Short: "Import games from a catalog user collection or by id",
		Long: `Import games from the BoardGameGeek catalog into the collection archive.

With a user name every game in that user's catalog collection is imported;
--filter narrows the collection (for example --filter own=1,prevowned=0).
With --ids only the listed games are imported. Games already in the
collection are replaced with the fresh catalog data.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var user string
			if len(args) == 1 {
				user = args[0]
			}
			if (user == "") == (len(ids) == 0) {
				return errors.New("import: give either a user name or --ids")
			}

			opts := app.cfg.ImportOptions()
			opts.Filters = bgg.Filters(filters)
			opts.Force = force
			if cmd.Flags().Changed("policy") {
				p, err := bgg.ParseImagePolicy(policy)
				if err != nil {
					return err
				}
				opts.Policy = p
			}
			if cmd.Flags().Changed("workers") {
				opts.Workers = workers
			}
			if cmd.Flags().Changed("image-size") {
				opts.ImageSize = imageSize
			}

			store, _, err := app.loadStore(false)
			if err != nil {
				return err
			}
			client, err := app.catalog(cmd.Context(), !noCache)
			if err != nil {
				return err
			}
			importer := bgg.NewImporter(client, bgg.WithImporterLogger(app.logger))

			start := time.Now()
			var res *bgg.ImportResult
			if user != "" {
				app.out.infof("Importing collection of %s...\n", user)
				res, err = importer.ImportUser(cmd.Context(), user, opts)
			} else {
				app.out.infof("Importing %d game(s)...\n", len(ids))
				res, err = importer.ImportItems(cmd.Context(), ids, opts)
			}
			if err != nil {
				return err
			}

			added, replaced, err := store.Upsert(res.Records...)
			if err != nil {
				return err
			}
			if user != "" {
				if err := store.SetMetadata(metaUser, user); err != nil {
					return err
				}
			}
			if err := store.SetMetadata(metaLastImport, res.BatchID); err != nil {
				return err
			}
			if err := app.saveStore(store, nil); err != nil {
				return err
			}

			app.logger.Info("collection updated", append(tracing.LogAttrs(cmd.Context()),
				"batch", res.BatchID, "added", added, "replaced", replaced, "skipped", len(res.Skipped))...)

			summary := importSummary{
				BatchID:  res.BatchID,
				User:     user,
				Archive:  app.archivePath(),
				Added:    added,
				Replaced: replaced,
				Skipped:  res.Skipped,
				Records:  store.Len(),
				Duration: time.Since(start).Round(time.Millisecond).String(),
			}
			return app.out.result(summary, func(w io.Writer) {
				printImportSummary(w, summary)
			})
		},
	}

	flags := cmd.Flags()
	flags.StringToIntVar(&filters, "filter", nil, "Collection filters, e.g. own=1,wishlist=0")
	flags.StringSliceVar(&ids, "ids", nil, "Import these catalog ids instead of a user collection")
	flags.BoolVar(&force, "force", false, "Bypass the response cache")
	flags.BoolVar(&noCache, "no-cache", false, "Do not read or write the response cache")
	flags.StringVar(&policy, "policy", "", "Image failure policy: abort, placeholder or skip")
	flags.IntVar(&workers, "workers", 0, "Image download workers (0 = number of CPUs)")
	flags.IntVar(&imageSize, "image-size", 0, "Longest image side in pixels")
	return cmd
}

func printImportSummary(w io.Writer, s importSummary) {
	fmt.Fprintf(w, "Import %s finished in %s\n", s.BatchID, s.Duration)
	fmt.Fprintf(w, "  Added:    %d\n", s.Added)
	fmt.Fprintf(w, "  Replaced: %d\n", s.Replaced)
	fmt.Fprintf(w, "  Skipped:  %d\n", len(s.Skipped))
	for _, sk := range s.Skipped {
		label := sk.ID
		if sk.Name != "" {
			label = fmt.Sprintf("%s (%s)", sk.Name, sk.ID)
		}
		fmt.Fprintf(w, "    - %s: %s\n", label, sk.Reason)
	}
	fmt.Fprintf(w, "Collection %s now holds %d game(s)\n", s.Archive, s.Records)
}
