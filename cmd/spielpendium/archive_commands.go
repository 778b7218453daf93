package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ryanm101/spielpendium/internal/apperr"
	"github.com/ryanm101/spielpendium/internal/archive"
	"github.com/ryanm101/spielpendium/internal/fileutil"
)

type verifyResult struct {
	Path      string `json:"path"`
	Version   string `json:"version"`
	CreatedAt string `json:"creation_date"`
	Records   int    `json:"records"`
	Metadata  int    `json:"metadata_entries"`
}

func newVerifyCommand(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "verify [archive]",
		Short: "Check that an archive decodes cleanly",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := app.archivePath()
			if len(args) == 1 {
				path = args[0]
			}
			info, err := app.codec().Inspect(path)
			if err != nil {
				return err
			}
			res := verifyResult{
				Path:      path,
				Version:   info.Version,
				CreatedAt: info.CreatedAt,
				Records:   info.Records,
				Metadata:  info.Metadata,
			}
			return app.out.result(res, func(w io.Writer) {
				fmt.Fprintf(w, "%s: OK\n", path)
				fmt.Fprintf(w, "  Version:  %s\n", orUnknown(res.Version))
				fmt.Fprintf(w, "  Created:  %s\n", orUnknown(res.CreatedAt))
				fmt.Fprintf(w, "  Games:    %d\n", res.Records)
				fmt.Fprintf(w, "  Metadata: %d\n", res.Metadata)
			})
		},
	}
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

func newBackupCommand(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "backup <destination>",
		Short: "Copy the collection archive to a timestamped backup",
		Long: `Copy the collection archive. When destination is a directory the copy is
named after the archive with a timestamp. The copy is verified after writing.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src := app.archivePath()
			if _, err := os.Stat(src); err != nil {
				if os.IsNotExist(err) {
					return apperr.NotFoundError("archive", src)
				}
				return err
			}

			dest, err := backupPath(args[0], src, time.Now())
			if err != nil {
				return err
			}
			unlock, err := fileutil.Lock(src)
			if err != nil {
				return err
			}
			err = fileutil.CopyFile(src, dest)
			_ = unlock()
			if err != nil {
				return fmt.Errorf("copy archive: %w", err)
			}
			info, err := app.codec().Inspect(dest)
			if err != nil {
				return fmt.Errorf("verify backup: %w", err)
			}

			result := map[string]any{
				"source":      src,
				"destination": dest,
				"records":     info.Records,
			}
			return app.out.result(result, func(w io.Writer) {
				fmt.Fprintf(w, "Backup created: %s\n", dest)
				fmt.Fprintf(w, "  Games: %d\n", info.Records)
			})
		},
	}
}

// backupPath resolves the backup destination. Directories (existing, or
// named with a trailing separator) receive a timestamped file name.
func backupPath(dest, src string, now time.Time) (string, error) {
	isDir := strings.HasSuffix(dest, string(os.PathSeparator))
	if st, err := os.Stat(dest); err == nil && st.IsDir() {
		isDir = true
	}
	if !isDir {
		if !strings.HasSuffix(dest, archive.Extension) {
			return "", apperr.Invalid("backup", dest, fmt.Errorf("destination must end in %s", archive.Extension))
		}
		return dest, nil
	}
	if err := os.MkdirAll(dest, 0o755); err != nil { // #nosec G301
		return "", fmt.Errorf("create backup directory: %w", err)
	}
	base := strings.TrimSuffix(filepath.Base(src), archive.Extension)
	name := fmt.Sprintf("%s-%s%s", base, now.Format("20060102-150405"), archive.Extension)
	return filepath.Join(dest, name), nil
}
