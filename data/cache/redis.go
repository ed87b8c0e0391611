package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hyopark/stock_master_bridge/config"
	"github.com/hyopark/stock_master_bridge/internal/model"
	"github.com/hyopark/stock_master_bridge/utils"
	"github.com/redis/go-redis/v9"
)

const statsKey = "security_master:stats"

type RedisCache struct {
	redis *redis.Client
	cfg   *config.Config
}

func NewRedisCache(redisClient *redis.Client, cfg *config.Config) *RedisCache {
	return &RedisCache{redis: redisClient, cfg: cfg}
}

func (r *RedisCache) SetStats(ctx context.Context, stats model.Stats) error {
	rqID := utils.GetRequestIDFromCtx(ctx)
	slog.Debug("SetStats start", slog.String("rqID", rqID))

	statsJson, err := json.Marshal(stats)
	if err != nil {
		slog.Error("can't marshal stats in SetStats", slog.String("rqID", rqID), slog.String("err", err.Error()))
		return errors.New("can't marshal stats")
	}

	_, err = r.redis.Set(ctx, statsKey, statsJson, r.cfg.Redis.StatsExpiration).Result()
	if err != nil {
		slog.Error("failed on redis.Set", slog.String("rqID", rqID), slog.String("err", err.Error()))
		return err
	}

	slog.Debug("SetStats completed", slog.String("rqID", rqID))

	return nil
}

func (r *RedisCache) GetStats(ctx context.Context) (model.Stats, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	slog.Debug("GetStats start", slog.String("rqID", rqID))

	res, err := r.redis.Get(ctx, statsKey).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			slog.Error("failed on redis.Get", slog.String("rqID", rqID), slog.String("err", err.Error()))
		}
		return model.Stats{}, err
	}

	stats := model.Stats{}
	err = json.Unmarshal([]byte(res), &stats)
	if err != nil {
		slog.Error("can't unmarshal stats in GetStats", slog.String("rqID", rqID), slog.String("err", err.Error()))
		return model.Stats{}, errors.New("can't unmarshal stats")
	}

	slog.Debug("GetStats finished", slog.String("rqID", rqID))

	return stats, nil
}

func (r *RedisCache) FlushStats(ctx context.Context) error {
	rqID := utils.GetRequestIDFromCtx(ctx)
	slog.Debug("FlushStats start", slog.String("rqID", rqID))

	_, err := r.redis.Del(ctx, statsKey).Result()
	if err != nil {
		slog.Error("failed on redis.Del", slog.String("rqID", rqID), slog.String("err", err.Error()))
		return err
	}

	slog.Debug("FlushStats completed", slog.String("rqID", rqID))

	return nil
}
