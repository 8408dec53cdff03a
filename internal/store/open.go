package store

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const (
	DriverMemory = "memory"
	DriverRedis  = "redis"
	DriverSQLite = "sqlite"
)

type Options struct {
	Driver     string
	RedisAddr  string
	SQLitePath string
}

// Open selects a backend. An empty driver picks redis when an address is
// configured and memory otherwise.
func Open(ctx context.Context, opts Options) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(opts.Driver))
	if driver == "" {
		driver = DriverMemory
		if opts.RedisAddr != "" {
			driver = DriverRedis
		}
	}
	switch driver {
	case DriverMemory:
		return NewMemoryStore(), nil
	case DriverRedis:
		if opts.RedisAddr == "" {
			return nil, fmt.Errorf("redis store requires an address")
		}
		rs, err := NewRedisStore(opts.RedisAddr)
		if err != nil {
			return nil, err
		}
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := rs.Ping(pingCtx); err != nil {
			_ = rs.Close()
			return nil, fmt.Errorf("connect redis failed: %w", err)
		}
		return rs, nil
	case DriverSQLite:
		return OpenSQLite(opts.SQLitePath)
	default:
		return nil, fmt.Errorf("unknown store driver %q", opts.Driver)
	}
}
