package adapters

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractCategory(t *testing.T) {
	cases := map[string]string{
		"shopping_cart-123":       "shopping_cart",
		"shopping_cart-a-b-c":     "shopping_cart",
		"shopping_cart":           "shopping_cart",
		"-123":                    "",
		"":                        "",
		"shopping_cart-":          "shopping_cart",
		"Cart-550e8400-e29b-41d4": "Cart",
	}
	for streamID, want := range cases {
		assert.Equal(t, want, ExtractCategory(streamID), streamID)
	}
}

func TestTypedErrors(t *testing.T) {
	conflict := NewConcurrencyError("shopping_cart-1", 5, 3)
	assert.Equal(t, `fold: concurrency conflict on stream "shopping_cart-1": expected version 5, got 3`, conflict.Error())
	assert.ErrorIs(t, conflict, ErrConcurrencyConflict)
	assert.NotErrorIs(t, conflict, ErrStreamNotFound)
	assert.Equal(t, ErrConcurrencyConflict, errors.Unwrap(conflict))

	missing := NewStreamNotFoundError("shopping_cart-1")
	assert.Equal(t, `fold: stream "shopping_cart-1" not found`, missing.Error())
	assert.ErrorIs(t, missing, ErrStreamNotFound)
	assert.NotErrorIs(t, missing, ErrConcurrencyConflict)

	var target *StreamNotFoundError
	require.ErrorAs(t, error(missing), &target)
	assert.Equal(t, "shopping_cart-1", target.StreamID)
}

func TestCheckVersion(t *testing.T) {
	tests := []struct {
		name     string
		expected int64
		current  int64
		exists   bool
		want     error
	}{
		{"any version on a new stream", AnyVersion, 0, false, nil},
		{"any version on an existing stream", AnyVersion, 7, true, nil},
		{"no stream when absent", NoStream, 0, false, nil},
		{"no stream when present", NoStream, 5, true, ErrConcurrencyConflict},
		{"stream exists when present", StreamExists, 3, true, nil},
		{"stream exists when absent", StreamExists, 0, false, ErrStreamNotFound},
		{"matching version", 4, 4, true, nil},
		{"stale version", 3, 4, true, ErrConcurrencyConflict},
		{"version ahead of stream", 9, 4, true, ErrConcurrencyConflict},
		{"negative version", -7, 4, true, ErrInvalidVersion},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckVersion("shopping_cart-1", tt.expected, tt.current, tt.exists)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}

	t.Run("conflict carries both versions", func(t *testing.T) {
		var conflict *ConcurrencyError
		require.ErrorAs(t, CheckVersion("shopping_cart-1", 2, 5, true), &conflict)
		assert.Equal(t, int64(2), conflict.ExpectedVersion)
		assert.Equal(t, int64(5), conflict.ActualVersion)
	})
}

func TestValidateAppend(t *testing.T) {
	records := []EventRecord{{Type: "shopping-cart-opened", Data: []byte(`{}`)}}

	assert.NoError(t, ValidateAppend("shopping_cart-1", records))
	assert.ErrorIs(t, ValidateAppend("", records), ErrEmptyStreamID)
	assert.ErrorIs(t, ValidateAppend("shopping_cart-1", nil), ErrNoEvents)
	assert.ErrorIs(t, ValidateAppend("", nil), ErrEmptyStreamID)
}

func TestDefaultLimit(t *testing.T) {
	assert.Equal(t, DefaultPageSize, DefaultLimit(0, DefaultPageSize))
	assert.Equal(t, DefaultPageSize, DefaultLimit(-3, DefaultPageSize))
	assert.Equal(t, 10, DefaultLimit(10, DefaultPageSize))
}
