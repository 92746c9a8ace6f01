// Package transport は外部コラボレータ呼び出し用の
// リトライ・タイムアウト付きHTTPトランスポートを提供する。
package transport

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const (
	// defaultMaxRetries は既定の最大リトライ回数。
	defaultMaxRetries = 3
	// defaultBaseDelay は線形バックオフの基準遅延。
	defaultBaseDelay = 1 * time.Second
	// defaultTimeout は1試行あたりのタイムアウト。
	defaultTimeout = 30 * time.Second
)

// Policy はリトライ戦略の設定を保持する。
type Policy struct {
	MaxRetries int           // 最大リトライ回数（初回試行は含まない）
	BaseDelay  time.Duration // 線形バックオフの基準遅延
	Timeout    time.Duration // 1試行あたりのタイムアウト
}

// DefaultPolicy は既定のリトライ戦略を返す。
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries: defaultMaxRetries,
		BaseDelay:  defaultBaseDelay,
		Timeout:    defaultTimeout,
	}
}

// RequestBuilder は試行ごとに新しいリクエストを構築する関数。
// リクエストボディは一度しか読めないため、リトライのたびに作り直す。
type RequestBuilder func(ctx context.Context) (*http.Request, error)

// Client は単一の外部呼び出しを有限リトライでラップするクライアント。
// 成功の定義は「レスポンスを受信したこと」であり、ステータスコードの
// 論理的な成否には関知しない。ペイロードの解釈は呼び出し元の責務。
type Client struct {
	httpClient *http.Client
	policy     Policy
	logger     *slog.Logger
}

// NewClient はClientの新しいインスタンスを生成する。
// httpClientにはsecurity.URLGuardServiceが生成したSSRF防止付き
// クライアントを渡すことを想定している。
func NewClient(httpClient *http.Client, policy Policy, logger *slog.Logger) *Client {
	if policy.MaxRetries < 0 {
		policy.MaxRetries = 0
	}
	if policy.BaseDelay <= 0 {
		policy.BaseDelay = defaultBaseDelay
	}
	if policy.Timeout <= 0 {
		policy.Timeout = defaultTimeout
	}
	return &Client{
		httpClient: httpClient,
		policy:     policy,
		logger:     logger,
	}
}

// Do はリクエストを実行し、失敗時は線形バックオフでリトライする。
// n回目のリトライ前の待機は BaseDelay × n。リトライを使い切った場合は
// 最後のエラーを呼び出し元へ伝播する。タイムアウトは試行ごとの
// コンテキストキャンセルとして適用され、リトライ管理とは独立している。
func (c *Client) Do(ctx context.Context, build RequestBuilder) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= c.policy.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(attempt) * c.policy.BaseDelay
			c.logger.Info("リトライを待機します",
				slog.Int("attempt", attempt),
				slog.Int("max_retries", c.policy.MaxRetries),
				slog.Duration("delay", delay),
			)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		resp, err := c.doOnce(ctx, build)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		c.logger.Warn("外部リクエストに失敗しました",
			slog.Int("attempt", attempt+1),
			slog.String("error", err.Error()),
		)

		// 呼び出し元のコンテキストが打ち切られた場合はリトライしない
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("リトライ上限（%d回）に達しました: %w", c.policy.MaxRetries, lastErr)
}

// doOnce は1試行分のリクエストを実行する。
// 試行ごとのタイムアウトはコンテキストのキャンセルで強制する。
func (c *Client) doOnce(ctx context.Context, build RequestBuilder) (*http.Response, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.policy.Timeout)

	req, err := build(attemptCtx)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("リクエスト構築に失敗: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		cancel()
		return nil, err
	}

	// レスポンスボディの読み取り完了までキャンセルを遅延させる
	resp.Body = &cancelReadCloser{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

// cancelReadCloser はボディのClose時にコンテキストキャンセルを呼ぶラッパー。
type cancelReadCloser struct {
	io.ReadCloser
	cancel context.CancelFunc
}

// Close はボディを閉じ、試行コンテキストをキャンセルする。
func (c *cancelReadCloser) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}
