package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/maai-ai/featurizer/pkg/common/logger"
	"github.com/maai-ai/featurizer/pkg/common/models"
)

var ErrNotCached = errors.New("no cached features for encounter")

// OnlineCache keeps the latest hourly feature row per encounter in Redis so
// the serving path never touches Postgres.
type OnlineCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewOnlineCache(client *redis.Client, ttl time.Duration) *OnlineCache {
	return &OnlineCache{client: client, ttl: ttl}
}

func cacheKey(encounterID string) string {
	return fmt.Sprintf("features:latest:%s", encounterID)
}

// PutLatest caches the most recent row of every encounter in the matrix.
func (c *OnlineCache) PutLatest(ctx context.Context, matrix models.Matrix) error {
	for _, series := range matrix {
		if len(series.Records) == 0 {
			continue
		}
		last := series.Records[len(series.Records)-1]
		if err := c.Put(ctx, last); err != nil {
			return err
		}
	}
	logger.WithField("encounters", len(matrix)).Debug("Online cache refreshed")
	return nil
}

func (c *OnlineCache) Put(ctx context.Context, rec *models.HourlyRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding feature row: %w", err)
	}
	return c.client.Set(ctx, cacheKey(rec.EncounterID), data, c.ttl).Err()
}

func (c *OnlineCache) Get(ctx context.Context, encounterID string) (*models.HourlyRecord, error) {
	data, err := c.client.Get(ctx, cacheKey(encounterID)).Result()
	if err == redis.Nil {
		return nil, ErrNotCached
	}
	if err != nil {
		return nil, err
	}
	var rec models.HourlyRecord
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, fmt.Errorf("decoding cached feature row: %w", err)
	}
	return &rec, nil
}
