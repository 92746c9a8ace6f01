package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/journeyconnect/internal/model"
)

const (
	// snapshotKey は掲載スナップショットを保持するキー。
	snapshotKey = "journeyconnect:listings:snapshot"
	// snapshotTTL はスナップショットの有効期限。
	// 同期が止まった場合に古いスナップショットを永久に配らないための保険ではなく、
	// リモート権威ポリシー上キャッシュは常に再構築可能なための運用上の期限。
	snapshotTTL = 24 * time.Hour
)

// RedisCache はRedisを使用したListingCache実装。
// 複数プロセスでAPIサーバーとワーカーを分けて動かす構成で、
// 両者が同じスナップショットを共有するために使用する。
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache はRedis接続を生成し疎通確認を行う。
// redisURLは redis://host:port/db 形式のURLを指定する。
func NewRedisCache(redisURL string) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("Redis URLのパースに失敗しました: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("Redisへの疎通確認に失敗しました: %w", err)
	}

	return &RedisCache{client: client}, nil
}

// Load は保存済みのスナップショットを返す。キー不在は空スナップショットとして扱う。
func (c *RedisCache) Load(ctx context.Context) ([]model.Listing, error) {
	data, err := c.client.Get(ctx, snapshotKey).Bytes()
	if err == redis.Nil {
		return []model.Listing{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("スナップショットの読み取りに失敗しました: %w", err)
	}

	var listings []model.Listing
	if err := json.Unmarshal(data, &listings); err != nil {
		return nil, fmt.Errorf("スナップショットのデコードに失敗しました: %w", err)
	}
	return listings, nil
}

// Save はスナップショット全体をJSONとして置き換える。
func (c *RedisCache) Save(ctx context.Context, listings []model.Listing) error {
	data, err := json.Marshal(listings)
	if err != nil {
		return fmt.Errorf("スナップショットのエンコードに失敗しました: %w", err)
	}
	if err := c.client.Set(ctx, snapshotKey, data, snapshotTTL).Err(); err != nil {
		return fmt.Errorf("スナップショットの保存に失敗しました: %w", err)
	}
	return nil
}

// Clear はスナップショットを破棄する。
func (c *RedisCache) Clear(ctx context.Context) error {
	if err := c.client.Del(ctx, snapshotKey).Err(); err != nil {
		return fmt.Errorf("スナップショットの破棄に失敗しました: %w", err)
	}
	return nil
}

// Health はRedisの疎通を確認する。
func (c *RedisCache) Health(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close は接続を閉じる。
func (c *RedisCache) Close() error {
	return c.client.Close()
}
