package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsValidEntity(t *testing.T) {
	t.Run("Rejects short names", func(t *testing.T) {
		assert.False(t, isValidEntity("A"))
		assert.False(t, isValidEntity(""))
	})

	t.Run("Rejects punctuation-only names", func(t *testing.T) {
		assert.False(t, isValidEntity("--"))
		assert.False(t, isValidEntity("123"))
	})

	t.Run("Rejects tokenization artifacts", func(t *testing.T) {
		assert.False(t, isValidEntity("##ing"))
	})

	t.Run("Accepts plausible entity names", func(t *testing.T) {
		assert.True(t, isValidEntity("Alice"))
		assert.True(t, isValidEntity("New York"))
	})
}

func TestNormalizeEntityType(t *testing.T) {
	t.Run("Strips BIO prefixes", func(t *testing.T) {
		assert.Equal(t, "PER", normalizeEntityType("B-PER"))
		assert.Equal(t, "ORG", normalizeEntityType("I-ORG"))
	})

	t.Run("Leaves unprefixed labels untouched", func(t *testing.T) {
		assert.Equal(t, "MISC", normalizeEntityType("MISC"))
	})
}

func TestUUIDFromSeed(t *testing.T) {
	t.Run("Deterministic for the same key", func(t *testing.T) {
		assert.Equal(t, uuidFromSeed("alice|per"), uuidFromSeed("alice|per"))
	})

	t.Run("Differs across keys", func(t *testing.T) {
		assert.NotEqual(t, uuidFromSeed("alice|per"), uuidFromSeed("bob|per"))
	})
}
