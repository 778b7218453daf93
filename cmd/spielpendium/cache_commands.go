package main

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newCacheCommand(app *app) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and manage the catalog response cache",
	}

	cacheCmd.AddCommand(newCacheStatsCommand(app))
	cacheCmd.AddCommand(newCacheClearCommand(app))

	return cacheCmd
}

func newCacheStatsCommand(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show response cache usage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cache, err := app.openCache(cmd.Context())
			if err != nil {
				return err
			}
			stats, err := cache.CacheStats(cmd.Context())
			if err != nil {
				return err
			}
			result := map[string]any{
				"path":    cache.Path(),
				"entries": stats.Entries,
				"bytes":   stats.Bytes,
			}
			if !stats.Oldest.IsZero() {
				result["oldest"] = stats.Oldest.UTC().Format(time.RFC3339)
				result["newest"] = stats.Newest.UTC().Format(time.RFC3339)
			}
			return app.out.result(result, func(w io.Writer) {
				fmt.Fprintf(w, "Cache:   %s\n", cache.Path())
				fmt.Fprintf(w, "Entries: %d\n", stats.Entries)
				fmt.Fprintf(w, "Size:    %s\n", humanize.Bytes(uint64(stats.Bytes)))
				if stats.Entries > 0 {
					fmt.Fprintf(w, "Oldest:  %s\n", humanize.Time(stats.Oldest))
					fmt.Fprintf(w, "Newest:  %s\n", humanize.Time(stats.Newest))
				}
			})
		},
	}
}

func newCacheClearCommand(app *app) *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove cached catalog responses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cache, err := app.openCache(cmd.Context())
			if err != nil {
				return err
			}
			n, err := cache.ClearCache(cmd.Context(), olderThan)
			if err != nil {
				return err
			}
			return app.out.result(map[string]int64{"removed": n}, func(w io.Writer) {
				fmt.Fprintf(w, "Removed %d cached response(s)\n", n)
			})
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "Only remove entries older than this (e.g. 72h)")
	return cmd
}
