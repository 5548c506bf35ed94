package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dandpb/jung-edu-app-sub012/pkg/persistence"
	"github.com/dandpb/jung-edu-app-sub012/pkg/persistence/file"
	"github.com/dandpb/jung-edu-app-sub012/pkg/persistence/memory"
	"github.com/dandpb/jung-edu-app-sub012/pkg/persistence/postgresql"
	"github.com/dandpb/jung-edu-app-sub012/pkg/persistence/redis"
)

// NewPersistence creates the persistence backend for the given URL.
// postgres:// URLs get the SQL store with migrations applied on startup,
// "memory" keeps everything in process, and anything else is treated as a
// directory path for the file store.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) persistence.Persistence {
	switch {
	case databaseURL == "memory":
		return memory.NewPersistence()
	case strings.HasPrefix(databaseURL, "postgres://"),
		strings.HasPrefix(databaseURL, "postgresql://"):
		persist, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			panic(fmt.Errorf("failed to create PostgreSQL persistence: %w", err))
		}

		return persist
	default:
		return file.NewPersistence(strings.TrimPrefix(databaseURL, "file://"))
	}
}

// NewLockRepository creates the execution lock repository. An empty URL
// shares the PostgreSQL persistence when available and falls back to
// process-local locks; redis:// URLs get their own client so locks survive
// independently of the store.
func NewLockRepository(lockURL string, persist persistence.Persistence) persistence.LockRepository {
	if lockURL == "" {
		if pg, ok := persist.(*postgresql.Persistence); ok {
			return pg.LockRepository()
		}

		return memory.NewLockRepository()
	}

	switch {
	case lockURL == "memory":
		return memory.NewLockRepository()
	case strings.HasPrefix(lockURL, "redis://"),
		strings.HasPrefix(lockURL, "rediss://"):
		locks, err := redis.NewLockRepository(lockURL)
		if err != nil {
			panic(fmt.Errorf("failed to create Redis lock repository: %w", err))
		}

		return locks
	default:
		panic("unsupported lock provider: " + lockURL)
	}
}
