package fold

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersion(t *testing.T) {
	assert.Equal(t, "0.1.0", Version())
}

func TestBuildStreamID(t *testing.T) {
	tests := []struct {
		name     string
		category string
		id       string
		want     string
	}{
		{"cart", "shopping_cart", "123", "shopping_cart-123"},
		{"UUID ID", "shopping_cart", "550e8400-e29b-41d4-a716-446655440000", "shopping_cart-550e8400-e29b-41d4-a716-446655440000"},
		{"empty category", "", "123", "-123"},
		{"empty ID", "shopping_cart", "", "shopping_cart-"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BuildStreamID(tt.category, tt.id))
		})
	}
}

func TestStreamID(t *testing.T) {
	t.Run("String matches BuildStreamID", func(t *testing.T) {
		assert.Equal(t, "shopping_cart-1", NewStreamID("shopping_cart", "1").String())
	})

	t.Run("ParseStreamID keeps hyphens in the ID", func(t *testing.T) {
		sid, err := ParseStreamID("shopping_cart-550e8400-e29b")

		require.NoError(t, err)
		assert.Equal(t, "shopping_cart", sid.Category)
		assert.Equal(t, "550e8400-e29b", sid.ID)
	})

	t.Run("ParseStreamID rejects malformed input", func(t *testing.T) {
		for _, s := range []string{"", "nohyphen", "-123", "shopping_cart-"} {
			_, err := ParseStreamID(s)
			assert.Error(t, err, s)
		}
	})
}

func TestVersionConstants(t *testing.T) {
	assert.Equal(t, int64(-1), AnyVersion)
	assert.Equal(t, int64(0), NoStream)
	assert.Equal(t, int64(-2), StreamExists)
}

func TestMetadata(t *testing.T) {
	t.Run("builders return copies", func(t *testing.T) {
		base := Metadata{}.WithCustom("a", "1")
		derived := base.WithCustom("b", "2").WithUserID("u").WithCorrelationID("c")

		assert.Len(t, base.Custom, 1)
		assert.Equal(t, map[string]string{"a": "1", "b": "2"}, derived.Custom)
		assert.Equal(t, "u", derived.UserID)
		assert.Equal(t, "c", derived.CorrelationID)
	})

	t.Run("IsEmpty", func(t *testing.T) {
		assert.True(t, Metadata{}.IsEmpty())
		assert.False(t, Metadata{}.WithUserID("u").IsEmpty())
	})
}
