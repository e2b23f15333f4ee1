package repo

import (
	"context"
	"time"

	"bj-service/internal/config"
	"bj-service/pkg/logger"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const redisPingTimeout = 3 * time.Second

var RDB *redis.Client

func InitRedis() {
	conf := config.GlobalConfig.Redis
	client, err := NewRedis(context.Background(), conf)
	if err != nil {
		logger.Log.Fatal("Failed to connect to Redis",
			zap.String("addr", conf.Addr),
			zap.Error(err),
		)
	}
	RDB = client
}

// NewRedis opens a client and pings it once. Table snapshots, the seat queue
// and the login throttle share this client.
func NewRedis(ctx context.Context, conf config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     conf.Addr,
		Password: conf.Password,
		DB:       conf.DB,
		PoolSize: conf.PoolSize,
	})

	ctx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}
