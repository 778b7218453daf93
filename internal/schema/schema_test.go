package schema

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFields_Order(t *testing.T) {
	f := Fields()
	require.Len(t, f, 20)
	assert.Equal(t, KeyField, f[0].Name)
	assert.Equal(t, ImageField, f[1].Name)
	assert.Equal(t, Name, f[2].Name)
	assert.Equal(t, RelatedGames, f[len(f)-1].Name)

	// Returned slice is a copy.
	f[0].Name = "mutated"
	assert.Equal(t, KeyField, Fields()[0].Name)
}

func TestValueFields_ExcludesKeyAndImage(t *testing.T) {
	for _, f := range ValueFields() {
		assert.NotEqual(t, KeyField, f.Name)
		assert.NotEqual(t, ImageField, f.Name)
	}
	assert.Len(t, ValueFields(), 18)
}

func TestConforms(t *testing.T) {
	tests := []struct {
		name     string
		names    []string
		expected bool
	}{
		{"empty", nil, true},
		{"all known", []string{KeyField, Name, Rating}, true},
		{"subset is fine", []string{Author}, true},
		{"unknown rejected", []string{Name, "colour"}, false},
		{"header is not a name", []string{"BGG Id"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Conforms(tt.names))
		})
	}
}

func TestUnknown(t *testing.T) {
	assert.Equal(t, []string{"colour", "weight"}, Unknown([]string{"colour", Name, "weight"}))
	assert.Nil(t, Unknown([]string{Name}))
}

func TestValidID(t *testing.T) {
	assert.True(t, ValidID("13"))
	assert.False(t, ValidID(""))
	assert.False(t, ValidID("13a"))
	assert.False(t, ValidID("-1"))
}

func TestLookup(t *testing.T) {
	f, ok := Lookup(Complexity)
	require.True(t, ok)
	assert.Equal(t, KindDecimal, f.Kind)
	assert.Equal(t, "Complexity", f.Header)

	_, ok = Lookup("nope")
	assert.False(t, ok)
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		field    string
		value    any
		expected any
		wantErr  bool
	}{
		{"nil is absent", Name, nil, nil, false},
		{"text", Name, "Catan", "Catan", false},
		{"text rejects int", Name, 3, nil, true},
		{"int from int", MinPlayers, 3, int64(3), false},
		{"int from string", MinPlayers, " 4 ", int64(4), false},
		{"int from whole float", MinPlayers, 4.0, int64(4), false},
		{"int rejects fraction", MinPlayers, 4.5, nil, true},
		{"int rejects float out of range", MinPlayers, 1e19, nil, true},
		{"int rejects negative float out of range", MinPlayers, -1e19, nil, true},
		{"int rejects infinity", MinPlayers, math.Inf(1), nil, true},
		{"int from json number", MinPlayers, json.Number("5"), int64(5), false},
		{"decimal from float", Rating, 7.5, 7.5, false},
		{"decimal from int", Rating, 7, 7.0, false},
		{"decimal from string", Rating, "7.25", 7.25, false},
		{"decimal rejects NaN", Rating, math.NaN(), nil, true},
		{"mapping", Publisher, map[string]string{"1": "KOSMOS"}, map[string]string{"1": "KOSMOS"}, false},
		{"mapping from any", Publisher, map[string]any{"1": "KOSMOS"}, map[string]string{"1": "KOSMOS"}, false},
		{"mapping rejects non-string", Publisher, map[string]any{"1": 2}, nil, true},
		{"identifier is not a value field", KeyField, "1", nil, true},
		{"image is not a value field", ImageField, nil, nil, true},
		{"unknown field", "colour", "red", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.field, tt.value)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestNormalize_MappingIsCopied(t *testing.T) {
	src := map[string]string{"1": "a"}
	got, err := Normalize(Version, src)
	require.NoError(t, err)

	src["1"] = "b"
	assert.Equal(t, "a", got.(map[string]string)["1"])
}
