package repository

import (
	"context"
	"sync"

	"github.com/hitoshi/journeyconnect/internal/model"
)

// MemoryCache はインメモリのListingCache実装。
// 単一プロセス運用およびテストで使用する。スナップショットは
// 単一の可変スロットとして保持し、全体置換のみを行う。
type MemoryCache struct {
	mu       sync.RWMutex
	listings []model.Listing
}

// NewMemoryCache はMemoryCacheの新しいインスタンスを生成する。
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{}
}

// Load は保存済みスナップショットのコピーを返す。
func (c *MemoryCache) Load(ctx context.Context) ([]model.Listing, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]model.Listing, len(c.listings))
	copy(out, c.listings)
	return out, nil
}

// Save はスナップショット全体を置き換える。
func (c *MemoryCache) Save(ctx context.Context, listings []model.Listing) error {
	snapshot := make([]model.Listing, len(listings))
	copy(snapshot, listings)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.listings = snapshot
	return nil
}

// Clear はスナップショットを破棄する。
func (c *MemoryCache) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listings = nil
	return nil
}
