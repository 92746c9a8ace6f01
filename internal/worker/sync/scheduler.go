// Package sync は掲載キャッシュのバックグラウンド再同期を提供する。
package sync

import (
	"context"
	"log/slog"
	"time"

	"github.com/hitoshi/journeyconnect/internal/model"
)

// ListingSyncer は1回の再同期を実行するインターフェース。
// store.Storeの部分集合として定義する。
type ListingSyncer interface {
	List(ctx context.Context) ([]model.Listing, error)
}

// Scheduler は一定間隔でリモートの掲載一覧をキャッシュへ再ミラーする。
// リモート不達時のフォールバックが古くなりすぎないよう、
// リクエスト駆動の同期とは独立に動かす。
type Scheduler struct {
	syncer ListingSyncer
	logger *slog.Logger
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
func NewScheduler(syncer ListingSyncer, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		syncer: syncer,
		logger: logger,
	}
}

// Start は指定間隔のティッカーでスケジューラを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("同期スケジューラを開始しました",
		slog.Duration("interval", interval),
	)

	// 起動直後に1回実行
	s.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("同期スケジューラを停止しました")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce は再同期を1回実行する。
// 失敗はストア側でフォールバック処理済みのためログのみ残す。
func (s *Scheduler) RunOnce(ctx context.Context) {
	start := time.Now()

	listings, err := s.syncer.List(ctx)
	if err != nil {
		s.logger.Error("掲載の再同期に失敗しました",
			slog.String("error", err.Error()),
		)
		return
	}

	s.logger.Info("掲載の再同期が完了しました",
		slog.Int("listing_count", len(listings)),
		slog.Duration("elapsed", time.Since(start)),
	)
}
