// Package ai は意味一致検索・ルート分類・列車情報照会の
// AIバックエンドコラボレータのクライアントを提供する。
// 各操作のリクエスト/レスポンス契約のみに依存し、バックエンド内部の
// 振る舞いには関知しない。
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/hitoshi/journeyconnect/internal/model"
	"github.com/hitoshi/journeyconnect/internal/transport"
)

// maxResponseSize はレスポンスボディの最大読み取りサイズ（1MB）。
const maxResponseSize = 1 * 1024 * 1024

// RouteListing はルート分類に渡す簡約化した掲載。
// 分類に必要な経路情報のみを送り、ペイロードを小さく保つ。
type RouteListing struct {
	ID          string `json:"id"`
	TrainNumber string `json:"trainNumber"`
	From        string `json:"from"`
	To          string `json:"to"`
}

// TrainInfo は列車時刻表照会の結果。
type TrainInfo struct {
	TrainName     string `json:"trainName"`
	FromStation   string `json:"fromStation"`
	ToStation     string `json:"toStation"`
	DepartureTime string `json:"departureTime"`
	ArrivalTime   string `json:"arrivalTime"`
}

// ParsedListing は自由文から抽出した掲載の下書き。
// 抽出できなかったフィールドは空のまま返る。
type ParsedListing struct {
	TrainNumber   string  `json:"trainNumber"`
	TrainName     string  `json:"trainName"`
	FromStation   string  `json:"fromStation"`
	ToStation     string  `json:"toStation"`
	Date          string  `json:"date"`
	ClassType     string  `json:"classType"`
	Type          string  `json:"type"`
	Price         float64 `json:"price"`
	DepartureTime string  `json:"departureTime"`
}

// TrainTimings は区間指定の発着時刻照会の結果。
type TrainTimings struct {
	DepartureTime string `json:"departureTime"`
	ArrivalTime   string `json:"arrivalTime"`
}

// Client はAIバックエンドのクライアント。
type Client struct {
	baseURL   string
	transport *transport.Client
	logger    *slog.Logger
}

// NewClient はClientの新しいインスタンスを生成する。
// baseURLは末尾スラッシュなしのベースURLを指定する。
func NewClient(baseURL string, tc *transport.Client, logger *slog.Logger) *Client {
	return &Client{
		baseURL:   baseURL,
		transport: tc,
		logger:    logger,
	}
}

// post は指定エンドポイントへJSONをPOSTし、2xx応答のボディをoutへデコードする。
func (c *Client) post(ctx context.Context, endpoint string, payload any, out any) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("リクエストのエンコードに失敗: %w", err)
	}

	reqURL := c.baseURL + "/api/" + endpoint

	resp, err := c.transport.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(encoded))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", "JourneyConnect/1.0")
		return req, nil
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("レスポンスの読み取りに失敗: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errBody struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(raw, &errBody)
		return fmt.Errorf("AIバックエンドがエラーを返しました (%d): %s", resp.StatusCode, errBody.Error)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("レスポンスのパースに失敗: %w", err)
	}
	return nil
}

// FindMatches は自由文クエリに意味的に一致する掲載IDを返す。
// 駅名の同義語やタイプミスはバックエンド側で吸収される。
// 掲載IDの任意の部分集合が返り、空の結果も正常。
func (c *Client) FindMatches(ctx context.Context, query string, listings []model.Listing) ([]string, error) {
	if query == "" {
		return []string{}, nil
	}

	var res struct {
		MatchedIDs []string `json:"matchedIds"`
	}
	err := c.post(ctx, "find-matches", map[string]any{
		"query":   query,
		"tickets": listings,
	}, &res)
	if err != nil {
		return nil, err
	}
	if res.MatchedIDs == nil {
		return []string{}, nil
	}
	return res.MatchedIDs, nil
}

// AnalyzeRoute は出発地・目的地に対する各掲載の一致強度を分類する。
// どちらの集合にも含まれないIDは「一致なし」を意味する。
func (c *Client) AnalyzeRoute(ctx context.Context, from, to string, listings []RouteListing) (*model.RouteMatches, error) {
	if from == "" || to == "" {
		return &model.RouteMatches{Exact: []string{}, Partial: []string{}}, nil
	}

	var res model.RouteMatches
	err := c.post(ctx, "analyze-route", map[string]any{
		"from":    from,
		"to":      to,
		"tickets": listings,
	}, &res)
	if err != nil {
		return nil, err
	}
	if res.Exact == nil {
		res.Exact = []string{}
	}
	if res.Partial == nil {
		res.Partial = []string{}
	}
	return &res, nil
}

// LookupTrain は列車番号から時刻表情報を照会する。
// 見つからない場合は (nil, nil) を返す。
func (c *Client) LookupTrain(ctx context.Context, trainNumber string) (*TrainInfo, error) {
	if len(trainNumber) != 5 {
		return nil, nil
	}

	var res TrainInfo
	if err := c.post(ctx, "lookup-train", map[string]any{"trainNumber": trainNumber}, &res); err != nil {
		return nil, err
	}
	if res.TrainName == "" {
		return nil, nil
	}
	return &res, nil
}

// ParseListing は自由文から掲載の下書きを抽出する。
// 5文字未満の入力は解析対象としない。
func (c *Client) ParseListing(ctx context.Context, text string) (*ParsedListing, error) {
	if len(text) < 5 {
		return nil, nil
	}

	var res ParsedListing
	if err := c.post(ctx, "parse-ticket", map[string]any{"text": text}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// GetTrainTimings は列車番号と区間から発着時刻を照会する。
func (c *Client) GetTrainTimings(ctx context.Context, trainNumber, from, to string) (*TrainTimings, error) {
	if trainNumber == "" || from == "" || to == "" {
		return nil, nil
	}

	var res TrainTimings
	err := c.post(ctx, "get-train-timings", map[string]any{
		"trainNumber": trainNumber,
		"from":        from,
		"to":          to,
	}, &res)
	if err != nil {
		return nil, err
	}
	return &res, nil
}
