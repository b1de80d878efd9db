package persistence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/fittogether/internal/domain"
)

func TestCursorRoundTrip(t *testing.T) {
	c := &domain.Cursor{CreatedAt: time.Date(2024, 3, 1, 12, 0, 0, 123, time.UTC), ID: "w-1"}
	token := EncodeCursor(c)
	require.NotEmpty(t, token)

	decoded, err := DecodeCursor(token)
	require.NoError(t, err)
	assert.True(t, decoded.CreatedAt.Equal(c.CreatedAt))
	assert.Equal(t, "w-1", decoded.ID)
}

func TestDecodeCursorBlank(t *testing.T) {
	c, err := DecodeCursor("  ")
	require.NoError(t, err)
	assert.Nil(t, c)
	assert.Empty(t, EncodeCursor(nil))
}

func TestDecodeCursorRejectsGarbage(t *testing.T) {
	for _, token := range []string{"%%%", "bm8tc2VwYXJhdG9y", "bm90LWEtdGltZXxpZA"} {
		_, err := DecodeCursor(token)
		assert.ErrorIs(t, err, ErrInvalidCursor, token)
	}
}

func TestBefore(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	c := &domain.Cursor{CreatedAt: at, ID: "m"}

	assert.True(t, Before(nil, at, "z"))
	assert.True(t, Before(c, at.Add(-time.Second), "z"))
	assert.True(t, Before(c, at, "a"))
	assert.False(t, Before(c, at, "m"))
	assert.False(t, Before(c, at, "z"))
	assert.False(t, Before(c, at.Add(time.Second), "a"))
}
