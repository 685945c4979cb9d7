package db

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"server-rewards-app/config"
)

// OpenRedis connects the quota cache. A failed ping is returned to the caller,
// which may choose to run without the cache.
func OpenRedis(cfg config.RedisConfig) (*redis.Client, error) {
	cli := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  500 * time.Millisecond,
		WriteTimeout: 500 * time.Millisecond,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := cli.Ping(ctx).Err(); err != nil {
		cli.Close()
		return nil, errors.Wrapf(err, "ping redis %s", cfg.Addr)
	}
	log.Infof("conn redis %s success", cfg.Addr)
	return cli, nil
}
