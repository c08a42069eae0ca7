package retrieval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildPrompt(t *testing.T) {
	t.Run("Grounded", func(t *testing.T) {
		ctx := AssembledContext{Text: "Mitochondria produce ATP.", ChunksUsed: 1}
		p, err := BuildPrompt("What do mitochondria do?", ctx, FallbackDecline)
		require.NoError(t, err)
		assert.True(t, p.Grounded)
		assert.Contains(t, p.User, "Mitochondria produce ATP.")
		assert.Contains(t, p.User, "Question: What do mitochondria do?")
		assert.Contains(t, p.System, "only the excerpts")
	})

	t.Run("No Context General", func(t *testing.T) {
		p, err := BuildPrompt("What is entropy?", AssembledContext{NoContext: true}, FallbackGeneral)
		require.NoError(t, err)
		assert.False(t, p.Grounded)
		assert.Equal(t, "What is entropy?", p.User)
		assert.Contains(t, p.System, "not based on their materials")
	})

	t.Run("No Context Decline", func(t *testing.T) {
		_, err := BuildPrompt("What is entropy?", AssembledContext{NoContext: true}, FallbackDecline)
		assert.ErrorIs(t, err, ErrNoContext)
	})
}

func TestParseFallbackPolicy(t *testing.T) {
	p, err := ParseFallbackPolicy(" Decline ")
	assert.NoError(t, err)
	assert.Equal(t, FallbackDecline, p)

	p, err = ParseFallbackPolicy("")
	assert.NoError(t, err)
	assert.Equal(t, FallbackGeneral, p)

	_, err = ParseFallbackPolicy("guess")
	assert.Error(t, err)
}
