package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/journeyconnect/internal/ai"
	"github.com/hitoshi/journeyconnect/internal/model"
)

// TrainInfoService は公開フローが使う列車情報コラボレータのインターフェース。
type TrainInfoService interface {
	LookupTrain(ctx context.Context, trainNumber string) (*ai.TrainInfo, error)
	GetTrainTimings(ctx context.Context, trainNumber, from, to string) (*ai.TrainTimings, error)
	ParseListing(ctx context.Context, text string) (*ai.ParsedListing, error)
}

// TrainHandler は列車時刻表の照会と自由文解析のHTTPハンドラー。
type TrainHandler struct {
	service TrainInfoService
}

// NewTrainHandler はTrainHandlerを生成する。
func NewTrainHandler(service TrainInfoService) *TrainHandler {
	return &TrainHandler{service: service}
}

// parseListingRequest は自由文解析リクエストのボディ。
type parseListingRequest struct {
	Text string `json:"text"`
}

// Lookup は列車番号から時刻表情報を照会する。
// GET /api/trains/:number
// 区間を絞る場合は ?from=&to= を指定する。
func (h *TrainHandler) Lookup(w http.ResponseWriter, r *http.Request) {
	trainNumber := chi.URLParam(r, "number")

	info, err := h.service.LookupTrain(r.Context(), trainNumber)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if info == nil {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewTrainNotFoundError(trainNumber))
		return
	}

	// 区間指定があれば区間の発着時刻で上書きする
	from := r.URL.Query().Get("from")
	to := r.URL.Query().Get("to")
	if from != "" && to != "" {
		timings, err := h.service.GetTrainTimings(r.Context(), trainNumber, from, to)
		if err == nil && timings != nil {
			info.DepartureTime = timings.DepartureTime
			info.ArrivalTime = timings.ArrivalTime
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(info)
}

// Parse は自由文から掲載の下書きを抽出する。
// POST /api/parse
// 抽出できない場合はnullを返す。
func (h *TrainHandler) Parse(w http.ResponseWriter, r *http.Request) {
	var req parseListingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     model.ErrCodeInvalidRequest,
			Message:  "リクエストボディの解析に失敗しました。",
			Category: "validation",
			Action:   "正しいJSON形式でリクエストしてください。",
		})
		return
	}

	parsed, err := h.service.ParseListing(r.Context(), req.Text)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(parsed)
}
