package infrastructure

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// connectRedis opens the client used for webhook event dedup and fails fast
// if Redis is not reachable at boot.
func connectRedis(addr string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}

	return rdb, nil
}
