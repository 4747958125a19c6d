package redis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type feedEntry struct {
	ItemID   string    `json:"item_id"`
	Bidder   string    `json:"bidder"`
	Amount   int64     `json:"amount"`
	PlacedAt time.Time `json:"placed_at"`
}

func TestDefaultParseToMessage(t *testing.T) {
	t.Run("wraps payload in a data field", func(t *testing.T) {
		input := feedEntry{
			ItemID:   "4e1243bd-22c6-4b90-96e3-7a3450e4f0c5",
			Bidder:   "sohrab",
			Amount:   2_100_000,
			PlacedAt: time.Date(2026, 3, 1, 18, 30, 0, 0, time.UTC),
		}

		result, err := DefaultParseToMessage(input)
		assert.NoError(t, err)
		assert.Contains(t, result, "data")
		assert.NotEmpty(t, result["data"])
	})

	t.Run("pointer type error", func(t *testing.T) {
		_, err := DefaultParseToMessage(&feedEntry{Bidder: "golnar"})
		assert.ErrorIs(t, err, ErrPointerType)
	})

	t.Run("nil pointer", func(t *testing.T) {
		var input *feedEntry
		_, err := DefaultParseToMessage(input)
		assert.ErrorIs(t, err, ErrPointerType)
	})
}

func TestDefaultParseFromMessage(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		input := feedEntry{
			ItemID:   "4e1243bd-22c6-4b90-96e3-7a3450e4f0c5",
			Bidder:   "sohrab",
			Amount:   2_100_000,
			PlacedAt: time.Date(2026, 3, 1, 18, 30, 0, 0, time.UTC),
		}

		message, err := DefaultParseToMessage(input)
		require.NoError(t, err)

		result, err := DefaultParseFromMessage[feedEntry](message)
		require.NoError(t, err)
		assert.Equal(t, input.ItemID, result.ItemID)
		assert.Equal(t, input.Bidder, result.Bidder)
		assert.Equal(t, input.Amount, result.Amount)
		assert.True(t, input.PlacedAt.UTC().Equal(result.PlacedAt.UTC()),
			"time mismatch: expected %v, got %v", input.PlacedAt, result.PlacedAt)
	})

	t.Run("empty map yields zero value", func(t *testing.T) {
		result, err := DefaultParseFromMessage[feedEntry](map[string]any{})
		assert.NoError(t, err)
		assert.Empty(t, result.ItemID)
		assert.Zero(t, result.Amount)
	})

	t.Run("pointer type error", func(t *testing.T) {
		input := map[string]any{"data": "some base64 data"}

		_, err := DefaultParseFromMessage[*feedEntry](input)
		assert.ErrorIs(t, err, ErrPointerType)
	})

	t.Run("invalid base64", func(t *testing.T) {
		input := map[string]any{
			"data": "invalid base64",
		}

		_, err := DefaultParseFromMessage[feedEntry](input)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "base64 decode error")
	})

	t.Run("missing data field", func(t *testing.T) {
		input := map[string]any{
			"wrong_field": "some data",
		}

		_, err := DefaultParseFromMessage[feedEntry](input)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "data field not found")
	})

	t.Run("invalid data type", func(t *testing.T) {
		input := map[string]any{
			"data": 123,
		}

		_, err := DefaultParseFromMessage[feedEntry](input)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "invalid type")
	})
}
