package app

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/scriptrunner-backend/internal/data/db"
	"github.com/yungbote/scriptrunner-backend/internal/platform/logger"
)

type Clients struct {
	Redis goredis.UniversalClient
	DB    *db.Service
}

func wireClients(log *logger.Logger, cfg Config) (Clients, error) {
	log.Info("Wiring clients...")

	// Redis. An unreachable server is not fatal: the tracker degrades to its
	// in-process fallback until the primary answers again.
	rdb := goredis.NewUniversalClient(&goredis.UniversalOptions{
		Addrs:        cfg.RedisAddrs(),
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Warn("Redis unreachable at startup, batch state starts in fallback mode", "addr", cfg.Redis.Addr, "error", err)
	}

	// Database
	dbs, err := db.NewService(log, db.Config{PostgresDSN: cfg.PostgresDSN, SQLitePath: cfg.SQLitePath})
	if err != nil {
		_ = rdb.Close()
		return Clients{}, fmt.Errorf("init database: %w", err)
	}
	if err := dbs.AutoMigrateAll(); err != nil {
		_ = dbs.Close()
		_ = rdb.Close()
		return Clients{}, err
	}

	return Clients{Redis: rdb, DB: dbs}, nil
}

func (c Clients) Close() {
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
	if c.DB != nil {
		_ = c.DB.Close()
	}
}
