// Package apperr defines the failure kinds shared by the archive codec, the
// collection store and the catalog importer.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the externally visible failure kinds.
var (
	ErrNotFound         = errors.New("not found")
	ErrCorruptArchive   = errors.New("corrupt archive")
	ErrValidation       = errors.New("validation failed")
	ErrTimeout          = errors.New("timed out waiting for catalog")
	ErrTransientNetwork = errors.New("transient network error")
)

// ArchiveError provides context for archive read/write failures.
// Kind is one of the sentinels; Err carries the specific cause.
type ArchiveError struct {
	Op    string // "encode", "decode", "read", "write"
	Path  string // archive path if known
	Entry string // offending entry inside the container
	Kind  error
	Err   error
}

func (e *ArchiveError) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if e.Path != "" {
		fmt.Fprintf(&b, " '%s'", e.Path)
	}
	fmt.Fprintf(&b, ": %v", e.Kind)
	if e.Entry != "" {
		fmt.Fprintf(&b, " (%s)", e.Entry)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *ArchiveError) Is(target error) bool {
	return target == e.Kind
}

func (e *ArchiveError) Unwrap() error {
	return e.Err
}

// Corrupt returns a CorruptArchive error naming the offending entry.
func Corrupt(op, entry string, cause error) *ArchiveError {
	return &ArchiveError{Op: op, Entry: entry, Kind: ErrCorruptArchive, Err: cause}
}

// ValidationError reports a record, update or metadata value that does not
// fit the schema or the identifier invariant.
type ValidationError struct {
	Op     string
	Key    string   // record identifier if applicable
	Fields []string // offending field names
	Err    error
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if e.Key != "" {
		fmt.Fprintf(&b, " '%s'", e.Key)
	}
	b.WriteString(": ")
	b.WriteString(ErrValidation.Error())
	if len(e.Fields) > 0 {
		fmt.Fprintf(&b, " [%s]", strings.Join(e.Fields, ", "))
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Invalid builds a ValidationError.
func Invalid(op, key string, cause error, fields ...string) *ValidationError {
	return &ValidationError{Op: op, Key: key, Fields: fields, Err: cause}
}

// FetchError describes a failed catalog request.
type FetchError struct {
	URL      string
	Attempts int
	Kind     error // ErrTimeout or ErrTransientNetwork
	Err      error
}

func (e *FetchError) Error() string {
	msg := fmt.Sprintf("fetch %s: %v", e.URL, e.Kind)
	if e.Attempts > 1 {
		msg += fmt.Sprintf(" after %d attempts", e.Attempts)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FetchError) Is(target error) bool {
	return target == e.Kind
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// NotFoundError returns a NotFound error for the given item.
func NotFoundError(itemType, name string) error {
	return fmt.Errorf("find %s '%s': %w", itemType, name, ErrNotFound)
}

// Kind returns a short name for the failure kind of err, or "error" when
// err is not one of the known kinds.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrCorruptArchive):
		return "corrupt_archive"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrTransientNetwork):
		return "transient_network"
	default:
		return "error"
	}
}
