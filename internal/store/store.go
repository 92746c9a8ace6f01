// Package store は掲載のリモート同期ストアを提供する。
// リモートのシートコラボレータを唯一の権威とし、ローカルキャッシュは
// リモート不達時のフォールバックとしてのみ機能する二状態ポリシーを実装する。
package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/hitoshi/journeyconnect/internal/model"
	"github.com/hitoshi/journeyconnect/internal/normalize"
	"github.com/hitoshi/journeyconnect/internal/repository"
)

// RemoteListingAPI はシートコラボレータに要求する操作のインターフェース。
type RemoteListingAPI interface {
	// ListRecords は掲載一覧を生レコードのまま返す。
	ListRecords(ctx context.Context) ([]map[string]any, error)
	// Add は掲載をリモートへ追加する。
	Add(ctx context.Context, listing *model.Listing) error
	// Delete は指定IDの掲載をリモートから削除する。
	Delete(ctx context.Context, id string) error
}

// SyncRecorder は同期結果とコラボレータ呼び出しのメトリクス記録インターフェース。
type SyncRecorder interface {
	RecordSyncSuccess(count int)
	RecordSyncFallback()
	RecordStaleDiscard()
	RecordCollaboratorCall(collaborator string, success bool)
}

// Store は「現在の全掲載」の単一の情報源。
// List/Add/Delete/GetByIDを公開し、リモート不達時はキャッシュへ
// フォールバックする。すべての読み出しは乗車日が当日以降の掲載のみを返す。
type Store struct {
	remote     RemoteListingAPI
	cache      repository.ListingCache
	normalizer *normalize.Normalizer
	loc        *time.Location
	logger     *slog.Logger
	recorder   SyncRecorder

	// seq は発行済みの最新同期トークン。リモート応答の完了順が呼び出し順と
	// 一致しない場合に、古い応答がキャッシュを上書きするのを防ぐ。
	seq atomic.Uint64
}

// New はStoreの新しいインスタンスを生成する。
// recorderはnilでもよい（メトリクス記録なしで動作する）。
func New(
	remote RemoteListingAPI,
	cache repository.ListingCache,
	normalizer *normalize.Normalizer,
	loc *time.Location,
	logger *slog.Logger,
	recorder SyncRecorder,
) *Store {
	return &Store{
		remote:     remote,
		cache:      cache,
		normalizer: normalizer,
		loc:        loc,
		logger:     logger,
		recorder:   recorder,
	}
}

// today は正準タイムゾーンにおける今日の日付をYYYY-MM-DDで返す。
func (s *Store) today() string {
	return time.Now().In(s.loc).Format("2006-01-02")
}

// List は全掲載を取得する。
// リモート応答が得られた場合（空配列を含む）はそれを権威とみなし、
// 正規化・当日以降フィルタを適用した結果でキャッシュ全体を置き換えて返す。
// リモート不達の場合は既存キャッシュを当日以降でフィルタして返す。
// 部分マージは行わない。
func (s *Store) List(ctx context.Context) ([]model.Listing, error) {
	token := s.seq.Add(1)
	today := s.today()

	records, err := s.remote.ListRecords(ctx)
	if s.recorder != nil {
		s.recorder.RecordCollaboratorCall("sheet", err == nil)
	}
	if err != nil {
		s.logger.Warn("リモート掲載一覧の取得に失敗したためキャッシュへフォールバックします",
			slog.String("error", err.Error()),
		)
		if s.recorder != nil {
			s.recorder.RecordSyncFallback()
		}
		return s.loadCached(ctx, today)
	}

	listings := s.normalizeAll(records, today)

	// リモート権威: 空の応答でもキャッシュ全体を置き換える。
	// ただし非空キャッシュを空応答で消す場合は観測可能にしておく。
	if token == s.seq.Load() {
		if len(listings) == 0 {
			if cached, cacheErr := s.cache.Load(ctx); cacheErr == nil && len(cached) > 0 {
				s.logger.Warn("空のリモート応答により非空キャッシュを置き換えます",
					slog.Int("cached_count", len(cached)),
				)
			}
		}
		if err := s.cache.Save(ctx, listings); err != nil {
			s.logger.Error("キャッシュの書き込みに失敗しました",
				slog.String("error", err.Error()),
			)
		}
	} else {
		// より新しい同期が発行済み: この応答でキャッシュを上書きしない
		s.logger.Info("古い同期応答のためキャッシュ更新を破棄します",
			slog.Uint64("token", token),
			slog.Uint64("latest", s.seq.Load()),
		)
		if s.recorder != nil {
			s.recorder.RecordStaleDiscard()
		}
	}

	if s.recorder != nil {
		s.recorder.RecordSyncSuccess(len(listings))
	}

	return listings, nil
}

// normalizeAll は生レコード群を正規化し、当日以降の掲載のみを返す。
func (s *Store) normalizeAll(records []map[string]any, today string) []model.Listing {
	listings := make([]model.Listing, 0, len(records))
	for i, record := range records {
		l, ok := s.normalizer.Record(record, i)
		if !ok {
			continue
		}

		// 所要時間のバックフィル: リモート側テンプレートの既定値が
		// 混入している場合は発着時刻から再計算する
		if normalize.IsDefaultDuration(l.Duration) {
			l.Duration = normalize.CalculateDuration(l.DepartureTime, l.ArrivalTime)
		}

		// 乗車日が過去の掲載はキャッシュにも結果にも残さない（ハードフィルタ）
		if l.Date < today {
			continue
		}

		listings = append(listings, *l)
	}
	return listings
}

// loadCached はキャッシュから当日以降の掲載を読み出す。
func (s *Store) loadCached(ctx context.Context, today string) ([]model.Listing, error) {
	cached, err := s.cache.Load(ctx)
	if err != nil {
		s.logger.Error("キャッシュの読み取りに失敗しました",
			slog.String("error", err.Error()),
		)
		return []model.Listing{}, nil
	}

	active := make([]model.Listing, 0, len(cached))
	for _, l := range cached {
		if l.Date >= today {
			active = append(active, l)
		}
	}
	return active, nil
}

// Add は掲載をリモートへ追加する。バリデーションは呼び出し元の責務。
// 成功時はサーバー側の導出フィールドを即時反映するため再同期を行う
// （楽観的なローカル追記ではない）。
func (s *Store) Add(ctx context.Context, listing *model.Listing) error {
	err := s.remote.Add(ctx, listing)
	if s.recorder != nil {
		s.recorder.RecordCollaboratorCall("sheet", err == nil)
	}
	if err != nil {
		return fmt.Errorf("掲載の追加に失敗しました: %w", err)
	}

	if _, err := s.List(ctx); err != nil {
		// 追加自体は成功している。再同期失敗は次回のListで回復する。
		s.logger.Warn("追加後の再同期に失敗しました",
			slog.String("listing_id", listing.ID),
			slog.String("error", err.Error()),
		)
	}
	return nil
}

// Delete は指定IDの掲載をリモートから削除し、成功時に再同期する。
func (s *Store) Delete(ctx context.Context, id string) error {
	err := s.remote.Delete(ctx, id)
	if s.recorder != nil {
		s.recorder.RecordCollaboratorCall("sheet", err == nil)
	}
	if err != nil {
		return fmt.Errorf("掲載の削除に失敗しました: %w", err)
	}

	if _, err := s.List(ctx); err != nil {
		s.logger.Warn("削除後の再同期に失敗しました",
			slog.String("listing_id", id),
			slog.String("error", err.Error()),
		)
	}
	return nil
}

// GetByID は指定IDの掲載を返す。独立したリモート呼び出しではなく、
// 常にList経由で取得してから絞り込む。見つからない場合はnilを返す。
func (s *Store) GetByID(ctx context.Context, id string) (*model.Listing, error) {
	listings, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range listings {
		if listings[i].ID == id {
			return &listings[i], nil
		}
	}
	return nil, nil
}
