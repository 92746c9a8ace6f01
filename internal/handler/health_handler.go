package handler

import (
	"context"
	"encoding/json"
	"net/http"
)

// HealthChecker は依存コンポーネントの疎通確認インターフェース。
type HealthChecker interface {
	Health(ctx context.Context) error
}

// HealthHandler はヘルスチェックエンドポイントのHTTPハンドラー。
// シートコラボレータとキャッシュバックエンドの疎通を確認する。
type HealthHandler struct {
	sheet HealthChecker
	cache HealthChecker
}

// NewHealthHandler はHealthHandlerを生成する。
// cacheはインメモリバックエンドの場合nilでよい（常に正常とみなす）。
func NewHealthHandler(sheet, cache HealthChecker) *HealthHandler {
	return &HealthHandler{sheet: sheet, cache: cache}
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// Check はヘルスチェックを実行する。
// GET /health
// いずれかの依存が疎通不可の場合は503を返す。
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status: "ok",
		Checks: map[string]string{},
	}

	if h.sheet != nil {
		if err := h.sheet.Health(r.Context()); err != nil {
			resp.Status = "degraded"
			resp.Checks["sheet"] = err.Error()
		} else {
			resp.Checks["sheet"] = "ok"
		}
	}

	if h.cache != nil {
		if err := h.cache.Health(r.Context()); err != nil {
			resp.Status = "degraded"
			resp.Checks["cache"] = err.Error()
		} else {
			resp.Checks["cache"] = "ok"
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if resp.Status != "ok" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(resp)
}
