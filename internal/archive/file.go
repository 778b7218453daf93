package archive

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/ryanm101/spielpendium/internal/apperr"
	"github.com/ryanm101/spielpendium/internal/fileutil"
	"github.com/ryanm101/spielpendium/internal/metrics"
	"github.com/ryanm101/spielpendium/internal/record"
)

// ReadFile loads an archive from disk.
func (c *Codec) ReadFile(path string) (record.Collection, error) {
	col, _, err := c.readFile("read", path)
	return col, err
}

// Inspect fully decodes the archive at path and describes it. The decoded
// records are released before returning.
func (c *Codec) Inspect(path string) (Info, error) {
	col, info, err := c.readFile("inspect", path)
	for _, r := range col.Records {
		r.Release()
	}
	return info, err
}

func (c *Codec) readFile(op, path string) (col record.Collection, info Info, err error) {
	start := time.Now()
	defer func() { metrics.ObserveArchive(op, outcome(err), start) }()

	fi, statErr := os.Stat(path)
	if statErr != nil {
		if errors.Is(statErr, fs.ErrNotExist) {
			return col, info, &apperr.ArchiveError{Op: op, Path: path, Kind: apperr.ErrNotFound, Err: statErr}
		}
		return col, info, fmt.Errorf("%s '%s': %w", op, path, statErr)
	}
	if !strings.HasSuffix(path, Extension) {
		c.logger.Warn("rejected archive with wrong extension", "path", path)
		return col, info, &apperr.ArchiveError{Op: op, Path: path, Kind: apperr.ErrCorruptArchive,
			Err: fmt.Errorf("file name does not end in %s", Extension)}
	}

	if fi.IsDir() {
		return col, info, &apperr.ArchiveError{Op: op, Path: path, Kind: apperr.ErrCorruptArchive,
			Err: errors.New("path is a directory")}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return col, info, fmt.Errorf("%s '%s': %w", op, path, err)
		}
		return col, info, &apperr.ArchiveError{Op: op, Path: path, Kind: apperr.ErrCorruptArchive, Err: err}
	}
	col, info, err = c.decode(data)
	if err != nil {
		return record.Collection{}, Info{}, withPath(err, path)
	}

	metrics.RecordsTotal.Set(float64(len(col.Records)))
	c.logger.Info("loaded archive", "path", path, "records", len(col.Records))
	return col, info, nil
}

// WriteFile encodes col and replaces the file at path atomically. Concurrent
// writers to the same path are serialized with an advisory lock.
func (c *Codec) WriteFile(path string, col record.Collection) (err error) {
	const op = "write"
	start := time.Now()
	defer func() { metrics.ObserveArchive(op, outcome(err), start) }()

	if !strings.HasSuffix(path, Extension) {
		return apperr.Invalid(op, "", fmt.Errorf("archive path %q must end in %s", path, Extension))
	}

	data, err := c.Encode(col)
	if err != nil {
		return err
	}

	unlock, err := fileutil.Lock(path)
	if err != nil {
		return err
	}
	defer func() {
		if uerr := unlock(); uerr != nil && err == nil {
			err = fmt.Errorf("unlock %s: %w", path, uerr)
		}
	}()

	if err := fileutil.WriteFileAtomic(path, data, 0o644); err != nil {
		return err
	}

	metrics.RecordsTotal.Set(float64(len(col.Records)))
	c.logger.Info("saved archive", "path", path, "records", len(col.Records), "bytes", len(data))
	return nil
}
