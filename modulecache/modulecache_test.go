package modulecache

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func writeProgram(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("push_int 1\nhalt\n"), 0o644))
	return name
}

func TestFileLoaderResolvesRelativeToBaseDir(t *testing.T) {
	dir := t.TempDir()
	rel := writeProgram(t, dir, "mod.ttvm")

	loader := FileLoader{BaseDir: dir}
	prog, err := loader.Load(rel)
	require.NoError(t, err)
	require.Len(t, prog.Instructions, 2)
}

func TestFileLoaderMissingFile(t *testing.T) {
	loader := FileLoader{BaseDir: t.TempDir()}
	_, err := loader.Load("missing.ttvm")
	require.Error(t, err)
}

func TestRedisCacheFallsBackToInnerWhenUnreachable(t *testing.T) {
	dir := t.TempDir()
	rel := writeProgram(t, dir, "mod.ttvm")

	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"}) // nothing listens here
	cache := NewRedisCache(FileLoader{BaseDir: dir}, client)

	prog, err := cache.Load(rel)
	require.NoError(t, err)
	require.Len(t, prog.Instructions, 2)
}

func TestRedisCachePropagatesInnerLoadError(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	cache := NewRedisCache(FileLoader{BaseDir: t.TempDir()}, client)

	_, err := cache.Load("missing.ttvm")
	require.Error(t, err)
}
