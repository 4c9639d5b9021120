package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigStore_TypedAccessors(t *testing.T) {
	s := NewConfigStore(map[string]any{
		"chunking.size":        int64(800),
		"search.threshold":     0.65,
		"embedding.provider":   "hashing",
		"async.enabled":        true,
		"eventbus.topics":      []any{"a", 1, "b"},
		"processors.stopwords": []string{"acme"},
	})

	assert.Equal(t, 800, s.GetInt("chunking.size"))
	assert.InDelta(t, 0.65, s.GetFloat("search.threshold"), 1e-9)
	assert.Equal(t, float64(800), s.GetFloat("chunking.size"))
	assert.Equal(t, "hashing", s.GetString("embedding.provider"))
	assert.True(t, s.GetBool("async.enabled"))
	assert.Equal(t, []string{"a", "b"}, s.GetStringSlice("eventbus.topics"))
	assert.Equal(t, []string{"acme"}, s.GetStringSlice("processors.stopwords"))
}

func TestConfigStore_MissingAndMistyped(t *testing.T) {
	s := NewConfigStore(map[string]any{"n": "not a number"})

	assert.Equal(t, 0, s.GetInt("n"))
	assert.Equal(t, 0.0, s.GetFloat("missing"))
	assert.Equal(t, "", s.GetString("missing"))
	assert.False(t, s.GetBool("n"))
	assert.Nil(t, s.GetStringSlice("n"))

	_, ok := s.Get("missing")
	assert.False(t, ok)
}

func TestConfigStore_SetAndKeys(t *testing.T) {
	s := NewConfigStore()

	require.NoError(t, s.Set("redis.port", 6379))
	require.NoError(t, s.Set("redis.host", "localhost"))
	require.NoError(t, s.Set("chunking.size", 500))

	assert.Equal(t, []string{"chunking.size", "redis.host", "redis.port"}, s.Keys())
	require.NoError(t, s.Delete("redis.host"))
	assert.Equal(t, []string{"chunking.size", "redis.port"}, s.Keys())
	assert.NoError(t, s.Save())
	assert.NoError(t, s.Load())
	assert.Equal(t, ":memory:", s.Path())
}
