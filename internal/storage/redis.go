package storage

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// Rdb backs the matchmaking pools; nothing else in the core touches
// redis.
var Rdb *redis.Client

func InitRedis(addr, password string, db int) error {
	Rdb = redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return Rdb.Ping(context.Background()).Err()
}
