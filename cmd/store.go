package cmd

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/srikanta2006/smart-parking/internal/config"
	"github.com/srikanta2006/smart-parking/internal/db"
	"github.com/srikanta2006/smart-parking/internal/firestoredb"
	"github.com/srikanta2006/smart-parking/internal/migrate"
	"github.com/srikanta2006/smart-parking/internal/redisstore"
	"github.com/srikanta2006/smart-parking/internal/slots"
)

// openStore builds the slot store selected by STORE_DRIVER. The returned
// close func releases the underlying connection and is never nil.
func openStore(ctx context.Context, cfg config.Config, migrateUp bool) (slots.Store, func(), error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		d, err := db.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if err := d.Ping(ctx); err != nil {
			d.Close()
			return nil, nil, fmt.Errorf("db ping: %w", err)
		}
		if migrateUp {
			if err := migrate.Up(ctx, d); err != nil {
				d.Close()
				return nil, nil, err
			}
		}
		return slots.NewRepo(d), d.Close, nil

	case config.DriverRedis:
		rdb := newRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, nil, fmt.Errorf("redis ping: %w", err)
		}
		return redisstore.New(rdb, redisstore.WithPrefix(cfg.RedisPrefix)), func() { _ = rdb.Close() }, nil

	case config.DriverFirestore:
		fs, err := firestoredb.Open(ctx, cfg.FirestoreProjectID, cfg.FirestoreCredentialsFile, cfg.FirestoreCollection)
		if err != nil {
			return nil, nil, err
		}
		return fs, func() { _ = fs.Close() }, nil

	case config.DriverMemory:
		return slots.NewMemoryStore(), func() {}, nil
	}
	return nil, nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}

func newRedisClient(addr, password string, dbIndex int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       dbIndex,
	})
}
