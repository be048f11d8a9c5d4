package cache

import (
	"fmt"
	"time"
)

// Backend names accepted by Open.
const (
	BackendInMemory  = "in_memory"
	BackendSQLite    = "sqlite"
	BackendMemcached = "memcached"
	BackendRedis     = "redis"
)

// Options selects and configures a store backend.
type Options struct {
	Backend string

	SQLitePath string

	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Retention is the backend-side lifetime for memcached and redis values.
	Retention time.Duration
}

// Open builds the backend named by opts.Backend.
func Open(opts Options) (Backend, error) {
	switch opts.Backend {
	case BackendInMemory, "":
		return NewInMemoryStore(), nil
	case BackendSQLite:
		return OpenSQLiteStore(opts.SQLitePath)
	case BackendMemcached:
		return NewMemcachedStore(opts.MemcachedAddrs, opts.MemcachedTimeout, opts.MemcachedMaxIdleConns, opts.Retention), nil
	case BackendRedis:
		return NewRedisStore(opts.RedisAddr, opts.RedisPassword, opts.RedisDB, opts.Retention), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", opts.Backend)
	}
}
