// Package modulecache supplies vmcore.ModuleLoader implementations: a
// plain filesystem loader (the default, matching the teacher's
// always-local-file approach to loading programs) and an optional
// Redis-backed cache in front of it for deployments that import the
// same module across many short-lived VM instances.
package modulecache

import (
	"context"
	"path/filepath"

	"github.com/redis/go-redis/v9"

	"tinytotvm/bytecode"
)

// FileLoader loads modules from disk relative to BaseDir, dispatching
// on extension via bytecode.LoadFile.
type FileLoader struct {
	BaseDir string
}

func (f FileLoader) Load(path string) (*bytecode.Program, error) {
	return bytecode.LoadFile(filepath.Join(f.BaseDir, path))
}

// RedisCache wraps another loader with a Redis-backed cache of each
// module's encoded binary form, keyed by import path. Absent a
// reachable Redis instance this degrades to calling Inner directly --
// caching is an optimization, never a dependency for correctness.
type RedisCache struct {
	Inner  FileLoader
	Client *redis.Client
	Prefix string
}

func NewRedisCache(inner FileLoader, client *redis.Client) *RedisCache {
	return &RedisCache{Inner: inner, Client: client, Prefix: "ttvm:module:"}
}

func (c *RedisCache) Load(path string) (*bytecode.Program, error) {
	ctx := context.Background()
	key := c.Prefix + path

	if cached, err := c.Client.Get(ctx, key).Bytes(); err == nil {
		if prog, decodeErr := bytecode.DecodeBinary(cached); decodeErr == nil {
			return prog, nil
		}
	}

	prog, err := c.Inner.Load(path)
	if err != nil {
		return nil, err
	}

	if encoded, encErr := bytecode.EncodeBinary(prog); encErr == nil {
		c.Client.Set(ctx, key, encoded, 0)
	}

	return prog, nil
}
