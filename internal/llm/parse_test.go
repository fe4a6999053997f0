package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseJSON(t *testing.T) {
	type payload struct {
		Queries []string `json:"queries"`
	}

	t.Run("plain", func(t *testing.T) {
		got, err := ParseJSON[payload](`  {"queries": ["a", "b"]}  `)
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, got.Queries)
	})

	t.Run("fenced", func(t *testing.T) {
		got, err := ParseJSON[payload]("Here you go:\n```json\n{\"queries\": [\"c\"]}\n```\nDone.")
		require.NoError(t, err)
		assert.Equal(t, []string{"c"}, got.Queries)
	})

	t.Run("fence without language", func(t *testing.T) {
		got, err := ParseJSON[[]string]("```\n[\"x\", \"y\"]\n```")
		require.NoError(t, err)
		assert.Equal(t, []string{"x", "y"}, got)
	})

	t.Run("malformed", func(t *testing.T) {
		got, err := ParseJSON[payload]("not json at all")
		assert.ErrorIs(t, err, ErrMalformedOutput)
		assert.Nil(t, got.Queries)
	})

	t.Run("malformed fence", func(t *testing.T) {
		_, err := ParseJSON[payload]("```json\n{\"queries\": [\n```")
		assert.ErrorIs(t, err, ErrMalformedOutput)
	})
}
