package file

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfigStore_Success(t *testing.T) {
	tmpDir := t.TempDir()

	store, err := NewConfigStore(tmpDir)

	require.NoError(t, err)
	require.NotNil(t, store)
	assert.Equal(t, filepath.Join(tmpDir, "config.toml"), store.Path())
}

func TestNewConfigStore_WithNestedDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")

	store, err := NewConfigStore(dir)

	require.NoError(t, err)
	require.NoError(t, store.Set("k", "v"))
	_, err = os.Stat(filepath.Join(dir, "config.toml"))
	assert.NoError(t, err)
}

func TestConfigStore_Getters(t *testing.T) {
	store, err := NewConfigStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Set("chunking.size", 500))
	require.NoError(t, store.Set("search.threshold", 0.7))
	require.NoError(t, store.Set("cache.enabled", true))
	require.NoError(t, store.Set("vector.backend", "qdrant"))
	require.NoError(t, store.Set("pipeline.order", []string{"metadata", "chunker"}))

	assert.Equal(t, 500, store.GetInt("chunking.size"))
	assert.InDelta(t, 0.7, store.GetFloat("search.threshold"), 1e-9)
	assert.Equal(t, 500.0, store.GetFloat("chunking.size"))
	assert.True(t, store.GetBool("cache.enabled"))
	assert.Equal(t, "qdrant", store.GetString("vector.backend"))
	assert.Equal(t, []string{"metadata", "chunker"}, store.GetStringSlice("pipeline.order"))
}

func TestConfigStore_WrongTypesReturnZero(t *testing.T) {
	store, err := NewConfigStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.Set("flag", true))

	assert.Equal(t, "", store.GetString("flag"))
	assert.Equal(t, 0, store.GetInt("flag"))
	assert.Zero(t, store.GetFloat("flag"))
	assert.Nil(t, store.GetStringSlice("flag"))
	assert.False(t, store.GetBool("missing"))

	_, ok := store.Get("missing")
	assert.False(t, ok)
}

func TestConfigStore_StringValuesAreParsed(t *testing.T) {
	store, err := NewConfigStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.Set("n", "42"))
	require.NoError(t, store.Set("f", "0.25"))
	require.NoError(t, store.Set("b", "true"))

	assert.Equal(t, 42, store.GetInt("n"))
	assert.InDelta(t, 0.25, store.GetFloat("f"), 1e-9)
	assert.True(t, store.GetBool("b"))
}

func TestConfigStore_PersistenceTOML(t *testing.T) {
	dir := t.TempDir()
	store, err := NewConfigStore(dir)
	require.NoError(t, err)

	require.NoError(t, store.Set("redis.host", "localhost"))
	require.NoError(t, store.Set("redis.port", 6379))
	require.NoError(t, store.Set("collection_prefix", "rag"))

	raw, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	assert.Contains(t, string(raw), "[redis]")

	reloaded, err := NewConfigStore(dir)
	require.NoError(t, err)
	assert.Equal(t, "localhost", reloaded.GetString("redis.host"))
	assert.Equal(t, 6379, reloaded.GetInt("redis.port"))
	assert.Equal(t, []string{"collection_prefix", "redis.host", "redis.port"}, reloaded.Keys())
}

func TestConfigStore_Delete(t *testing.T) {
	dir := t.TempDir()
	store, err := NewConfigStore(dir)
	require.NoError(t, err)

	require.NoError(t, store.Set("chunking.size", 800))
	require.NoError(t, store.Set("chunking.overlap", 80))
	require.NoError(t, store.Delete("chunking.size"))
	require.NoError(t, store.Delete("never.set"))

	reloaded, err := NewConfigStore(dir)
	require.NoError(t, err)
	_, ok := reloaded.Get("chunking.size")
	assert.False(t, ok)
	assert.Equal(t, 80, reloaded.GetInt("chunking.overlap"))
}

func TestConfigStore_PersistenceYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ragengine.yaml")
	store, err := OpenConfigStore(path)
	require.NoError(t, err)

	require.NoError(t, store.Set("qdrant.host", "vectors"))
	require.NoError(t, store.Set("qdrant.port", 6334))
	require.NoError(t, store.Set("events.topics", []string{"a", "b"}))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "qdrant:")

	reloaded, err := OpenConfigStore(path)
	require.NoError(t, err)
	assert.Equal(t, "vectors", reloaded.GetString("qdrant.host"))
	assert.Equal(t, 6334, reloaded.GetInt("qdrant.port"))
	assert.Equal(t, []string{"a", "b"}, reloaded.GetStringSlice("events.topics"))
}

func TestConfigStore_LoadHandWrittenYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	content := "chunking:\n  size: 800\n  overlap: 80\nsearch:\n  threshold: 0.75\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	store, err := OpenConfigStore(path)

	require.NoError(t, err)
	assert.Equal(t, 800, store.GetInt("chunking.size"))
	assert.Equal(t, 80, store.GetInt("chunking.overlap"))
	assert.InDelta(t, 0.75, store.GetFloat("search.threshold"), 1e-9)
}

func TestConfigStore_ConflictingKeys(t *testing.T) {
	store, err := NewConfigStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.Set("redis", "on"))

	err = store.Set("redis.host", "localhost")

	assert.Error(t, err)
}

func TestConfigStore_EmptyKey(t *testing.T) {
	store, err := NewConfigStore(t.TempDir())
	require.NoError(t, err)

	assert.Error(t, store.Set("", "x"))
}

func TestConfigStore_FilePermissions(t *testing.T) {
	store, err := NewConfigStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.Set("k", "v"))

	info, err := os.Stat(store.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestConfigStore_EmptyFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), nil, 0600))

	store, err := NewConfigStore(dir)

	require.NoError(t, err)
	assert.Empty(t, store.Keys())
}

func TestConfigStore_LoadCorruptedFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte("not = [valid"), 0600))

	_, err := NewConfigStore(dir)

	assert.Error(t, err)
}

func TestConfigStore_LoadDiscardsUnsavedChanges(t *testing.T) {
	dir := t.TempDir()
	store, err := NewConfigStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.Set("k", "saved"))

	other, err := NewConfigStore(dir)
	require.NoError(t, err)
	require.NoError(t, other.Set("k", "changed"))

	require.NoError(t, store.Load())
	assert.Equal(t, "changed", store.GetString("k"))
}

func TestConfigStore_Concurrency(t *testing.T) {
	store, err := NewConfigStore(t.TempDir())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			_ = store.Set("counter", n)
		}(i)
		go func() {
			defer wg.Done()
			_ = store.GetInt("counter")
		}()
	}
	wg.Wait()

	_, ok := store.Get("counter")
	assert.True(t, ok)
}

func TestUnflattenMap(t *testing.T) {
	nested, err := unflattenMap(map[string]any{"a.b.c": 1, "a.d": "x", "e": true})

	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"a": map[string]any{"b": map[string]any{"c": 1}, "d": "x"},
		"e": true,
	}, nested)
	assert.Equal(t, map[string]any{"a.b.c": 1, "a.d": "x", "e": true}, flattenMap(nested, ""))
}
