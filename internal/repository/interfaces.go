// Package repository は掲載スナップショットの永続化ポートを定義する。
// キャッシュはリモートの鏡であり、スナップショット全体の読み書きのみを行う。
// 部分更新のパスは存在しない（リモート権威ポリシーのため）。
package repository

import (
	"context"

	"github.com/hitoshi/journeyconnect/internal/model"
)

// ListingCache は掲載スナップショットのキャッシュポート。
// 同期ストアに注入され、テストではインメモリ実装に差し替える。
type ListingCache interface {
	// Load は保存済みのスナップショットを返す。未保存の場合は空スライスを返す。
	Load(ctx context.Context) ([]model.Listing, error)

	// Save はスナップショット全体を置き換える。
	Save(ctx context.Context, listings []model.Listing) error

	// Clear はスナップショットを破棄する。
	Clear(ctx context.Context) error
}

// HealthChecker はキャッシュバックエンドの疎通確認インターフェース。
// インメモリ実装のように確認が不要な場合は実装しなくてよい。
type HealthChecker interface {
	Health(ctx context.Context) error
}
