package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/hitoshi/journeyconnect/internal/model"
)

// SemanticSearcher は意味検索コラボレータのインターフェース。
type SemanticSearcher interface {
	FindMatches(ctx context.Context, query string, listings []model.Listing) ([]string, error)
}

// SearchHandler は明示的な意味検索の送信を処理するHTTPハンドラー。
// キーストロークごとではなく、ユーザーの送信操作でのみ呼ばれる。
type SearchHandler struct {
	store    ListingStoreInterface
	searcher SemanticSearcher
}

// NewSearchHandler はSearchHandlerを生成する。
func NewSearchHandler(store ListingStoreInterface, searcher SemanticSearcher) *SearchHandler {
	return &SearchHandler{
		store:    store,
		searcher: searcher,
	}
}

// semanticSearchRequest は意味検索リクエストのボディ。
type semanticSearchRequest struct {
	Query string `json:"query"`
}

// semanticSearchResponse は意味検索の結果。
// MatchedIDsがnullの場合は検索が縮退した（失敗した）ことを表し、
// 空配列は検索が成功して一致がなかったことを表す。
type semanticSearchResponse struct {
	MatchedIDs []string `json:"matchedIds"`
}

// Search は意味検索を処理する。
// POST /api/search
// コラボレータの失敗はエラーにせず、matchedIds: null へ縮退する。
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req semanticSearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     model.ErrCodeInvalidRequest,
			Message:  "リクエストボディの解析に失敗しました。",
			Category: "validation",
			Action:   "正しいJSON形式でリクエストしてください。",
		})
		return
	}

	listings, err := h.store.List(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	ids, err := h.searcher.FindMatches(r.Context(), req.Query, listings)
	if err != nil {
		slog.Warn("意味検索に失敗したため縮退します",
			slog.String("error", err.Error()),
		)
		ids = nil
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(semanticSearchResponse{MatchedIDs: ids})
}
