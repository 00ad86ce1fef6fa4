package redis_client

import (
	"context"
	"fmt"
	"time"

	redis "github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/leeforge/mediaedit/config"
	"github.com/leeforge/mediaedit/logging"
)

const pingTimeout = 5 * time.Second

// NewRedis connects and pings. The client only carries event notifications.
func NewRedis(ctx context.Context, cnf config.RedisConfig, logger logging.Logger) (*redis.Client, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cnf.Addr(),
		Password: cnf.Password,
		DB:       cnf.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	pong, err := client.Ping(pingCtx).Result()
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s failed: %w", cnf.Addr(), err)
	}

	logger.Info("redis connected",
		zap.String("pong", pong),
		zap.String("redis", redisConfigLogFields(cnf)))
	return client, nil
}

func redisConfigLogFields(cnf config.RedisConfig) string {
	return fmt.Sprintf("addr=%s db=%d password=%s", cnf.Addr(), cnf.DB, redactedPassword(cnf.Password))
}

func redactedPassword(password string) string {
	if password == "" {
		return "<empty>"
	}
	return "[REDACTED]"
}
