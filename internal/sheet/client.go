// Package sheet はスプレッドシート型の掲載ストアコラボレータのクライアントを提供する。
// list / add / delete / login / health の各操作をJSON-POSTで呼び出す。
// ワイヤ上のフィールド名は正準名と一致する保証がないため、listの結果は
// 生レコードのまま返し、正規化はnormalizeパッケージが行う。
package sheet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/hitoshi/journeyconnect/internal/model"
	"github.com/hitoshi/journeyconnect/internal/transport"
)

const (
	// maxResponseSize はレスポンスボディの最大読み取りサイズ（5MB）。
	maxResponseSize = 5 * 1024 * 1024

	actionListListings  = "getTickets"
	actionAddListing    = "addTicket"
	actionDeleteListing = "deleteTicket"
	actionLogin         = "login"
	actionHealth        = "health"
)

// Client はシートコラボレータのクライアント。
// スクリプトエンドポイントは action フィールドで操作を多重化する。
type Client struct {
	scriptURL string
	transport *transport.Client
	logger    *slog.Logger
}

// NewClient はClientの新しいインスタンスを生成する。
func NewClient(scriptURL string, tc *transport.Client, logger *slog.Logger) *Client {
	return &Client{
		scriptURL: scriptURL,
		transport: tc,
		logger:    logger,
	}
}

// ackResponse は書き込み系操作の応答。
type ackResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// loginResponse はlogin操作の応答。
type loginResponse struct {
	Success bool `json:"success"`
	User    *struct {
		Name        string `json:"name"`
		PhoneNumber string `json:"phoneNumber"`
		Role        string `json:"role"`
	} `json:"user"`
}

// call は指定アクションをJSON-POSTで呼び出し、生のレスポンスボディを返す。
// アクションはボディとクエリ文字列の両方に載せる（スクリプト側の互換仕様）。
func (c *Client) call(ctx context.Context, action string, payload map[string]any) ([]byte, error) {
	body := map[string]any{"action": action}
	for k, v := range payload {
		body[k] = v
	}
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("リクエストボディのエンコードに失敗: %w", err)
	}

	reqURL, err := url.Parse(c.scriptURL)
	if err != nil {
		return nil, fmt.Errorf("スクリプトURLのパースに失敗: %w", err)
	}
	q := reqURL.Query()
	q.Set("action", action)
	reqURL.RawQuery = q.Encode()

	resp, err := c.transport.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL.String(), bytes.NewReader(encoded))
		if err != nil {
			return nil, err
		}
		// スクリプト側はプリフライト回避のためtext/plainボディを期待する
		req.Header.Set("Content-Type", "text/plain;charset=utf-8")
		req.Header.Set("User-Agent", "JourneyConnect/1.0")
		return req, nil
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("レスポンスの読み取りに失敗: %w", err)
	}
	return raw, nil
}

// get はスクリプトエンドポイントへ単純なGETを1回発行する。
// POSTの掲載一覧取得が {success:false} を返した場合のフォールバック専用。
func (c *Client) get(ctx context.Context) ([]byte, error) {
	resp, err := c.transport.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.scriptURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", "JourneyConnect/1.0")
		return req, nil
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	return io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
}

// ListRecords は掲載一覧を生レコードのまま取得する。
// 応答は次の3形態を許容する:
//   - 素の配列
//   - {success: true, data: [...]}
//   - {tickets: [...]}
//
// POSTが {success:false} を返した場合は1回だけGETへフォールバックする。
func (c *Client) ListRecords(ctx context.Context) ([]map[string]any, error) {
	raw, err := c.call(ctx, actionListListings, nil)
	if err != nil {
		return nil, err
	}

	records, retryWithGet, err := parseListResponse(raw)
	if err != nil {
		return nil, err
	}
	if retryWithGet {
		c.logger.Info("掲載一覧POSTが失敗応答を返したためGETへフォールバックします")
		raw, err = c.get(ctx)
		if err != nil {
			return nil, err
		}
		records, _, err = parseListResponse(raw)
		if err != nil {
			return nil, err
		}
	}

	return records, nil
}

// parseListResponse は掲載一覧応答の3形態をパースする。
// {success:false} の場合は retryWithGet=true を返す。
func parseListResponse(raw []byte) (records []map[string]any, retryWithGet bool, err error) {
	// 形態1: 素の配列
	var asArray []map[string]any
	if err := json.Unmarshal(raw, &asArray); err == nil {
		return asArray, false, nil
	}

	// 形態2/3: オブジェクトラッパー
	var asObject struct {
		Success *bool            `json:"success"`
		Data    []map[string]any `json:"data"`
		Tickets []map[string]any `json:"tickets"`
	}
	if err := json.Unmarshal(raw, &asObject); err != nil {
		return nil, false, fmt.Errorf("掲載一覧応答のパースに失敗: %w", err)
	}

	if asObject.Success != nil && !*asObject.Success {
		return nil, true, nil
	}
	if asObject.Data != nil {
		return asObject.Data, false, nil
	}
	if asObject.Tickets != nil {
		return asObject.Tickets, false, nil
	}

	return nil, false, fmt.Errorf("掲載一覧応答が未知の形態です")
}

// Add は掲載をシートへ追加する。
func (c *Client) Add(ctx context.Context, listing *model.Listing) error {
	raw, err := c.call(ctx, actionAddListing, map[string]any{"ticket": listing})
	if err != nil {
		return err
	}

	var ack ackResponse
	if err := json.Unmarshal(raw, &ack); err != nil {
		return fmt.Errorf("追加応答のパースに失敗: %w", err)
	}
	if !ack.Success {
		return fmt.Errorf("掲載の追加が拒否されました: %s", ack.Error)
	}
	return nil
}

// Delete は指定IDの掲載をシートから削除する。
func (c *Client) Delete(ctx context.Context, id string) error {
	raw, err := c.call(ctx, actionDeleteListing, map[string]any{"id": id})
	if err != nil {
		return err
	}

	var ack ackResponse
	if err := json.Unmarshal(raw, &ack); err != nil {
		return fmt.Errorf("削除応答のパースに失敗: %w", err)
	}
	if !ack.Success {
		return fmt.Errorf("掲載の削除が拒否されました: %s", ack.Error)
	}
	return nil
}

// Login は電話番号とPINをシート側の認証コラボレータで検証する。
// 認証失敗（資格情報不一致）の場合は (nil, nil) を返す。
func (c *Client) Login(ctx context.Context, phone, pin string) (*model.User, error) {
	raw, err := c.call(ctx, actionLogin, map[string]any{"phone": phone, "pin": pin})
	if err != nil {
		return nil, err
	}

	var res loginResponse
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("ログイン応答のパースに失敗: %w", err)
	}
	if !res.Success || res.User == nil {
		return nil, nil
	}

	role := model.RoleUser
	if res.User.Role == string(model.RoleAdmin) {
		role = model.RoleAdmin
	}

	return &model.User{
		ID:          "sheet_" + res.User.PhoneNumber,
		Name:        res.User.Name,
		PhoneNumber: res.User.PhoneNumber,
		Role:        role,
	}, nil
}

// Health はシートコラボレータの疎通を確認する。
func (c *Client) Health(ctx context.Context) error {
	raw, err := c.call(ctx, actionHealth, nil)
	if err != nil {
		return err
	}

	var ack ackResponse
	// healthは素のOK応答を返す実装もあるため、パース失敗は疎通成功とみなす
	if err := json.Unmarshal(raw, &ack); err != nil {
		return nil
	}
	if ack.Error != "" {
		return fmt.Errorf("シートコラボレータが異常を報告しました: %s", ack.Error)
	}
	return nil
}
