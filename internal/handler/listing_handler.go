// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/journeyconnect/internal/discovery"
	"github.com/hitoshi/journeyconnect/internal/middleware"
	"github.com/hitoshi/journeyconnect/internal/model"
)

// ListingStoreInterface は掲載ハンドラーが必要とするストアのインターフェース。
type ListingStoreInterface interface {
	List(ctx context.Context) ([]model.Listing, error)
	GetByID(ctx context.Context, id string) (*model.Listing, error)
}

// ListingServiceInterface は掲載の公開・削除フローのインターフェース。
type ListingServiceInterface interface {
	Publish(ctx context.Context, listing *model.Listing, user *model.User) (*model.Listing, error)
	FindSimilar(ctx context.Context, request *model.Listing) ([]model.Listing, error)
	Delete(ctx context.Context, id string, user *model.User) error
}

// RouteAnalyzerInterface はルート分類の予約・解除と結果参照のインターフェース。
type RouteAnalyzerInterface interface {
	Schedule(from, to string, listings []model.Listing)
	Current() *model.RouteMatches
	Reset()
}

// DiscoveryRecorder はディスカバリ検索のレイテンシ記録インターフェース。
type DiscoveryRecorder interface {
	RecordDiscoveryLatency(duration time.Duration)
}

// ListingHandler は掲載のディスカバリと公開・削除のHTTPハンドラー。
type ListingHandler struct {
	store    ListingStoreInterface
	service  ListingServiceInterface
	analyzer RouteAnalyzerInterface
	recorder DiscoveryRecorder
}

// NewListingHandler はListingHandlerを生成する。
// recorderはnilでもよい（メトリクス記録なしで動作する）。
func NewListingHandler(store ListingStoreInterface, service ListingServiceInterface, analyzer RouteAnalyzerInterface, recorder DiscoveryRecorder) *ListingHandler {
	return &ListingHandler{
		store:    store,
		service:  service,
		analyzer: analyzer,
		recorder: recorder,
	}
}

// listingResult はルート一致分類を付与した掲載レスポンス。
type listingResult struct {
	model.Listing
	RouteMatch string `json:"routeMatch,omitempty"`
}

// publishRequest は掲載公開リクエストのボディ。
// Confirmが真のとき、類似掲載の確認を済ませたものとして公開する。
type publishRequest struct {
	model.Listing
	Confirm bool `json:"confirm"`
}

// similarResponse は類似掲載が見つかったときの確認要求レスポンス。
type similarResponse struct {
	RequiresConfirmation bool            `json:"requiresConfirmation"`
	Similar              []model.Listing `json:"similar"`
}

// apiErrorResponse は統一エラーフォーマットのレスポンス。
type apiErrorResponse struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// Search はディスカバリ検索を処理する。
// GET /api/listings?q=&semantic_ids=&from=&to=&match=&type=&classes=&date=&mine=&sort=
func (h *ListingHandler) Search(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.UserFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	listings, err := h.store.List(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	criteria := parseCriteria(r, user.ID)

	// 出発・到着の両方が指定されたらルート分類を非同期で予約し、
	// このリクエストには現時点の分類結果を使う。どちらかが外れたら
	// 前回ペアの分類が次の検索に残らないよう状態を破棄する
	if criteria.FromStation != "" && criteria.ToStation != "" {
		h.analyzer.Schedule(criteria.FromStation, criteria.ToStation, listings)
		criteria.Routes = h.analyzer.Current()
	} else {
		h.analyzer.Reset()
	}

	start := time.Now()
	results := discovery.Apply(listings, criteria)
	if h.recorder != nil {
		h.recorder.RecordDiscoveryLatency(time.Since(start))
	}

	out := make([]listingResult, 0, len(results))
	for _, l := range results {
		out = append(out, listingResult{
			Listing:    l,
			RouteMatch: string(discovery.MatchType(l.ID, criteria.Routes)),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}

// parseCriteria はクエリパラメータから絞り込み条件を構築する。
func parseCriteria(r *http.Request, viewerID string) discovery.Criteria {
	q := r.URL.Query()

	c := discovery.Criteria{
		Query:       q.Get("q"),
		FromStation: q.Get("from"),
		ToStation:   q.Get("to"),
		Type:        model.ListingType(q.Get("type")),
		Date:        q.Get("date"),
		MineOnly:    q.Get("mine") == "true",
		ViewerID:    viewerID,
		Strength:    model.MatchStrength(q.Get("match")),
		Sort:        model.SortKey(q.Get("sort")),
	}

	// semantic_idsはパラメータの有無で「未実行」と「一致なし」を区別する
	if q.Has("semantic_ids") {
		raw := q.Get("semantic_ids")
		ids := []string{}
		if raw != "" {
			ids = strings.Split(raw, ",")
		}
		c.SemanticIDs = ids
	}

	if raw := q.Get("classes"); raw != "" {
		for _, cl := range strings.Split(raw, ",") {
			c.Classes = append(c.Classes, model.TrainClass(cl))
		}
	}

	return c
}

// Publish は掲載の公開を処理する。
// POST /api/listings
// REQUEST掲載で類似のOFFERが見つかり、confirmが偽の場合は
// 409で類似一覧を返し、呼び出し元に確認を求める。
func (h *ListingHandler) Publish(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.UserFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	var req publishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     model.ErrCodeInvalidRequest,
			Message:  "リクエストボディの解析に失敗しました。",
			Category: "validation",
			Action:   "正しいJSON形式でリクエストしてください。",
		})
		return
	}

	if !req.Confirm {
		similar, err := h.service.FindSimilar(r.Context(), &req.Listing)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		if len(similar) > 0 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusConflict)
			json.NewEncoder(w).Encode(similarResponse{
				RequiresConfirmation: true,
				Similar:              similar,
			})
			return
		}
	}

	published, err := h.service.Publish(r.Context(), &req.Listing, user)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(published)
}

// Get は掲載詳細を取得する。
// GET /api/listings/:id
func (h *ListingHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	listing, err := h.store.GetByID(r.Context(), id)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if listing == nil {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewListingNotFoundError(id))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(listing)
}

// Delete は掲載の削除を処理する。所有者本人または管理者のみ。
// DELETE /api/listings/:id
func (h *ListingHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.UserFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	id := chi.URLParam(r, "id")
	if err := h.service.Delete(r.Context(), id, user); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// --- ヘルパー関数 ---

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(apiErrorResponse{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		writeAPIErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	writeAPIErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeInvalidTrainNumber,
		model.ErrCodeMissingDate,
		model.ErrCodeInvalidPrice,
		model.ErrCodeCommentTooLong,
		model.ErrCodeInvalidRequest:
		return http.StatusBadRequest
	case model.ErrCodeListingNotFound, model.ErrCodeTrainNotFound:
		return http.StatusNotFound
	case model.ErrCodeForbidden:
		return http.StatusForbidden
	case model.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case model.ErrCodeSheetUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
