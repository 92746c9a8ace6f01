package discovery

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/journeyconnect/internal/ai"
	"github.com/hitoshi/journeyconnect/internal/model"
)

// defaultDebounce はルート分類を起動するまでの入力静穏時間。
const defaultDebounce = time.Second

// RouteClassifier はルート地理コラボレータへの問い合わせインターフェース。
type RouteClassifier interface {
	AnalyzeRoute(ctx context.Context, from, to string, listings []ai.RouteListing) (*model.RouteMatches, error)
}

// Analyzer はルート分類をデバウンス付きで非同期実行し、
// 最新の分類結果を保持する。
// 新しいスケジュールは実行中の分類を無効化する（last-submitted-wins）。
// 実行中の呼び出しへキャンセルは送らず、応答到着時に世代番号の照合で
// 適用可否だけを判断する。
type Analyzer struct {
	classifier RouteClassifier
	delay      time.Duration
	logger     *slog.Logger

	mu      sync.Mutex
	timer   *time.Timer
	gen     uint64
	current *model.RouteMatches
}

// NewAnalyzer はAnalyzerの新しいインスタンスを生成する。
// delayが0以下の場合は既定のデバウンス時間を使う。
func NewAnalyzer(classifier RouteClassifier, delay time.Duration, logger *slog.Logger) *Analyzer {
	if delay <= 0 {
		delay = defaultDebounce
	}
	return &Analyzer{
		classifier: classifier,
		delay:      delay,
		logger:     logger,
	}
}

// Schedule はルート分類をデバウンス付きで予約する。
// デバウンス期間内の再呼び出しは前の予約を取り消し、世代番号を進めて
// 実行中の分類結果を到着時に破棄させる。
func (a *Analyzer) Schedule(from, to string, listings []model.Listing) {
	simplified := make([]ai.RouteListing, 0, len(listings))
	for _, l := range listings {
		simplified = append(simplified, ai.RouteListing{
			ID:          l.ID,
			TrainNumber: l.TrainNumber,
			From:        l.FromStation,
			To:          l.ToStation,
		})
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.gen++
	gen := a.gen
	if a.timer != nil {
		a.timer.Stop()
	}
	a.timer = time.AfterFunc(a.delay, func() {
		a.run(gen, from, to, simplified)
	})
}

// run は分類を実行し、世代が最新のままなら結果を適用する。
func (a *Analyzer) run(gen uint64, from, to string, listings []ai.RouteListing) {
	routes, err := a.classifier.AnalyzeRoute(context.Background(), from, to, listings)

	a.mu.Lock()
	defer a.mu.Unlock()

	if gen != a.gen {
		// より新しい予約が存在する: この結果は破棄する
		a.logger.Info("古いルート分類結果を破棄します",
			slog.Uint64("generation", gen),
			slog.Uint64("latest", a.gen),
		)
		return
	}

	if err != nil {
		// コラボレータ失敗は空集合へ縮退させ、パイプラインを止めない
		a.logger.Warn("ルート分類に失敗したため空集合へ縮退します",
			slog.String("from", from),
			slog.String("to", to),
			slog.String("error", err.Error()),
		)
		a.current = &model.RouteMatches{}
		return
	}

	a.current = routes
}

// Current は最新の分類結果を返す。未分類の場合はnil。
func (a *Analyzer) Current() *model.RouteMatches {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}

// Reset はルート入力が解除されたときに分類状態を破棄する。
func (a *Analyzer) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.gen++
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	a.current = nil
}
