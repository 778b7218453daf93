package apperr

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestArchiveError_Error(t *testing.T) {
	err := &ArchiveError{
		Op:    "decode",
		Path:  "games.splz",
		Entry: "images/13.png",
		Kind:  ErrCorruptArchive,
		Err:   io.ErrUnexpectedEOF,
	}

	assert.Contains(t, err.Error(), "decode")
	assert.Contains(t, err.Error(), "games.splz")
	assert.Contains(t, err.Error(), "images/13.png")
	assert.Contains(t, err.Error(), "corrupt archive")
}

func TestArchiveError_IsKindAndUnwrapsCause(t *testing.T) {
	err := Corrupt("decode", "data.json", io.ErrUnexpectedEOF)

	assert.ErrorIs(t, err, ErrCorruptArchive)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestArchiveError_WrappedStillMatches(t *testing.T) {
	err := fmt.Errorf("load: %w", Corrupt("decode", "data.json", nil))

	var archiveErr *ArchiveError
	assert.True(t, errors.As(err, &archiveErr))
	assert.Equal(t, "data.json", archiveErr.Entry)
	assert.ErrorIs(t, err, ErrCorruptArchive)
}

func TestValidationError_Error(t *testing.T) {
	err := Invalid("append", "174430", nil, "colour", "weight")

	assert.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, err.Error(), "append")
	assert.Contains(t, err.Error(), "174430")
	assert.Contains(t, err.Error(), "colour, weight")
}

func TestFetchError(t *testing.T) {
	err := &FetchError{URL: "https://example.test/x", Attempts: 3, Kind: ErrTimeout}

	assert.ErrorIs(t, err, ErrTimeout)
	assert.NotErrorIs(t, err, ErrTransientNetwork)
	assert.Contains(t, err.Error(), "after 3 attempts")
}

func TestKind(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{"nil", nil, ""},
		{"not found", NotFoundError("record", "1"), "not_found"},
		{"corrupt", Corrupt("decode", "data.json", nil), "corrupt_archive"},
		{"validation", Invalid("update", "1", nil, "x"), "validation"},
		{"timeout", &FetchError{Kind: ErrTimeout}, "timeout"},
		{"transient", &FetchError{Kind: ErrTransientNetwork}, "transient_network"},
		{"other", io.EOF, "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Kind(tt.err))
		})
	}
}
