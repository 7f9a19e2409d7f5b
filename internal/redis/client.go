package redis

import (
	"fmt"

	"github.com/redis/go-redis/v9"
)

type Config struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// NewClient creates a Redis client. Hooks such as the circuit breaker are
// installed in the order given.
func NewClient(cfg Config, hooks ...redis.Hook) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	for _, h := range hooks {
		client.AddHook(h)
	}
	return client
}
