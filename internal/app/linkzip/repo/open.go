package repo

import (
	"context"
	"fmt"
	"log/slog"

	"linkzip.local/internal/app/linkzip"
	"linkzip.local/internal/platform/config"
	"linkzip.local/internal/platform/db"
	"linkzip.local/internal/platform/migrate"
)

// Store 短链和黑名单共用一个后端
type Store interface {
	linkzip.LinkStore
	linkzip.PhishStore
}

// Open 按 DB_TYPE 打开存储，返回的 close 必须调用。
func Open(ctx context.Context, cfg config.Config) (Store, func(), error) {
	switch cfg.DBType {
	case config.DBTypeInMemory:
		slog.Warn("using in-memory store, data is lost on restart")
		return NewMemoryStore(), func() {}, nil
	case config.DBTypePostgres:
		pool, err := db.New(ctx, cfg.DBDSN)
		if err != nil {
			return nil, nil, err
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("ping postgres: %w", err)
		}
		if cfg.MigrateOnStart {
			res, err := migrate.Up(ctx, pool, migrate.Options{})
			if err != nil {
				pool.Close()
				return nil, nil, err
			}
			slog.Info("migrations applied", "source", res.Source, "applied", res.AppliedFiles, "skipped", len(res.SkippedFiles))
		}
		return NewPostgresStore(pool), pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown DB_TYPE %q", cfg.DBType)
	}
}
