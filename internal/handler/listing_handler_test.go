package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/journeyconnect/internal/middleware"
	"github.com/hitoshi/journeyconnect/internal/model"
)

// --- モック定義 ---

// mockListingStore はListingStoreInterfaceのモック実装。
type mockListingStore struct {
	listFn    func(ctx context.Context) ([]model.Listing, error)
	getByIDFn func(ctx context.Context, id string) (*model.Listing, error)
}

func (m *mockListingStore) List(ctx context.Context) ([]model.Listing, error) {
	if m.listFn != nil {
		return m.listFn(ctx)
	}
	return nil, nil
}

func (m *mockListingStore) GetByID(ctx context.Context, id string) (*model.Listing, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, nil
}

// mockListingService はListingServiceInterfaceのモック実装。
type mockListingService struct {
	publishFn     func(ctx context.Context, listing *model.Listing, user *model.User) (*model.Listing, error)
	findSimilarFn func(ctx context.Context, request *model.Listing) ([]model.Listing, error)
	deleteFn      func(ctx context.Context, id string, user *model.User) error
}

func (m *mockListingService) Publish(ctx context.Context, listing *model.Listing, user *model.User) (*model.Listing, error) {
	if m.publishFn != nil {
		return m.publishFn(ctx, listing, user)
	}
	return listing, nil
}

func (m *mockListingService) FindSimilar(ctx context.Context, request *model.Listing) ([]model.Listing, error) {
	if m.findSimilarFn != nil {
		return m.findSimilarFn(ctx, request)
	}
	return nil, nil
}

func (m *mockListingService) Delete(ctx context.Context, id string, user *model.User) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id, user)
	}
	return nil
}

// mockRouteAnalyzer はRouteAnalyzerInterfaceのモック実装。
type mockRouteAnalyzer struct {
	scheduled bool
	from, to  string
	current   *model.RouteMatches
	resetted  bool
}

func (m *mockRouteAnalyzer) Schedule(from, to string, listings []model.Listing) {
	m.scheduled = true
	m.from = from
	m.to = to
}

func (m *mockRouteAnalyzer) Current() *model.RouteMatches {
	return m.current
}

func (m *mockRouteAnalyzer) Reset() {
	m.resetted = true
	m.current = nil
}

// --- テストヘルパー ---

// withUser はテスト用にリクエストコンテキストにユーザーを注入するヘルパー。
func withUser(r *http.Request, userID string) *http.Request {
	ctx := middleware.ContextWithUser(r.Context(), &model.User{ID: userID, Name: "テスト太郎"})
	return r.WithContext(ctx)
}

// withChiURLParam はテスト用にchiのURLパラメータを注入するヘルパー。
func withChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	ctx := context.WithValue(r.Context(), chi.RouteCtxKey, rctx)
	return r.WithContext(ctx)
}

func sampleOffer(id, date string, price float64) model.Listing {
	return model.Listing{
		ID:          id,
		UserID:      "seller-1",
		Type:        model.ListingTypeOffer,
		TrainName:   "Rajdhani Express",
		TrainNumber: "12951",
		FromStation: "Mumbai Central",
		ToStation:   "New Delhi",
		Date:        date,
		ClassType:   model.TrainClass3A,
		Price:       price,
		Status:      model.ListingStatusOpen,
	}
}

// --- GET /api/listings テスト ---

func TestListingHandler_Search_Success(t *testing.T) {
	store := &mockListingStore{
		listFn: func(ctx context.Context) ([]model.Listing, error) {
			return []model.Listing{
				sampleOffer("l1", "2099-01-01", 1500),
				sampleOffer("l2", "2099-01-02", 900),
			}, nil
		},
	}
	analyzer := &mockRouteAnalyzer{}
	h := NewListingHandler(store, &mockListingService{}, analyzer, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/listings", nil)
	req = withUser(req, "user-123")
	w := httptest.NewRecorder()

	h.Search(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var results []listingResult
	if err := json.NewDecoder(w.Body).Decode(&results); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(results) != 2 {
		t.Errorf("len(results) = %d, want 2", len(results))
	}
	if analyzer.scheduled {
		t.Error("analyzer should not be scheduled without from/to params")
	}
}

func TestListingHandler_Search_SchedulesRouteAnalysisWhenRouteGiven(t *testing.T) {
	store := &mockListingStore{
		listFn: func(ctx context.Context) ([]model.Listing, error) {
			return []model.Listing{sampleOffer("l1", "2099-01-01", 1500)}, nil
		},
	}
	analyzer := &mockRouteAnalyzer{
		current: &model.RouteMatches{Exact: []string{"l1"}},
	}
	h := NewListingHandler(store, &mockListingService{}, analyzer, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/listings?from=Mumbai&to=Delhi", nil)
	req = withUser(req, "user-123")
	w := httptest.NewRecorder()

	h.Search(w, req)

	if !analyzer.scheduled {
		t.Error("analyzer.Schedule should be called when from/to are given")
	}
	if analyzer.from != "Mumbai" || analyzer.to != "Delhi" {
		t.Errorf("analyzer got (%q, %q), want (Mumbai, Delhi)", analyzer.from, analyzer.to)
	}

	var results []listingResult
	if err := json.NewDecoder(w.Body).Decode(&results); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("len(results) = %d, want 1", len(results))
	}
	if results[0].RouteMatch != "EXACT" {
		t.Errorf("routeMatch = %q, want EXACT", results[0].RouteMatch)
	}
}

func TestListingHandler_Search_ResetsAnalyzerWhenRouteCleared(t *testing.T) {
	store := &mockListingStore{
		listFn: func(ctx context.Context) ([]model.Listing, error) {
			return []model.Listing{sampleOffer("l1", "2099-01-01", 1500)}, nil
		},
	}
	// 前回のルートペアの分類結果が残っている状態
	analyzer := &mockRouteAnalyzer{
		current: &model.RouteMatches{Exact: []string{"l1"}},
	}
	h := NewListingHandler(store, &mockListingService{}, analyzer, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/listings?from=Mumbai", nil)
	req = withUser(req, "user-123")
	w := httptest.NewRecorder()

	h.Search(w, req)

	if !analyzer.resetted {
		t.Error("analyzer.Reset should be called when either route input is cleared")
	}
	if analyzer.scheduled {
		t.Error("analyzer.Schedule should not be called with only one route input")
	}

	var results []listingResult
	if err := json.NewDecoder(w.Body).Decode(&results); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	// 破棄後は前回ペアの分類が一致表示に使われない
	for _, res := range results {
		if res.RouteMatch != "" {
			t.Errorf("routeMatch = %q, want empty after reset", res.RouteMatch)
		}
	}
}

func TestListingHandler_Search_SortByPriceAsc(t *testing.T) {
	store := &mockListingStore{
		listFn: func(ctx context.Context) ([]model.Listing, error) {
			return []model.Listing{
				sampleOffer("l1", "2099-01-01", 1500),
				sampleOffer("l2", "2099-01-02", 900),
			}, nil
		},
	}
	h := NewListingHandler(store, &mockListingService{}, &mockRouteAnalyzer{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/listings?sort=PRICE_ASC", nil)
	req = withUser(req, "user-123")
	w := httptest.NewRecorder()

	h.Search(w, req)

	var results []listingResult
	if err := json.NewDecoder(w.Body).Decode(&results); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(results) != 2 || results[0].ID != "l2" {
		t.Errorf("unexpected order: got %+v", results)
	}
}

func TestListingHandler_Search_Unauthenticated(t *testing.T) {
	h := NewListingHandler(&mockListingStore{}, &mockListingService{}, &mockRouteAnalyzer{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/listings", nil)
	w := httptest.NewRecorder()

	h.Search(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestListingHandler_Search_SheetUnavailable(t *testing.T) {
	store := &mockListingStore{
		listFn: func(ctx context.Context) ([]model.Listing, error) {
			return nil, model.NewSheetUnavailableError("list")
		},
	}
	h := NewListingHandler(store, &mockListingService{}, &mockRouteAnalyzer{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/listings", nil)
	req = withUser(req, "user-123")
	w := httptest.NewRecorder()

	h.Search(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
}

// --- parseCriteria テスト ---

func TestParseCriteria_SemanticIDsAbsentVsEmpty(t *testing.T) {
	// パラメータなし → nil（意味検索は未実行）
	req := httptest.NewRequest(http.MethodGet, "/api/listings", nil)
	c := parseCriteria(req, "user-123")
	if c.SemanticIDs != nil {
		t.Errorf("SemanticIDs = %v, want nil", c.SemanticIDs)
	}

	// 空のパラメータ → 空スライス（一致なし）
	req = httptest.NewRequest(http.MethodGet, "/api/listings?semantic_ids=", nil)
	c = parseCriteria(req, "user-123")
	if c.SemanticIDs == nil || len(c.SemanticIDs) != 0 {
		t.Errorf("SemanticIDs = %v, want empty slice", c.SemanticIDs)
	}

	// 値あり
	req = httptest.NewRequest(http.MethodGet, "/api/listings?semantic_ids=a,b", nil)
	c = parseCriteria(req, "user-123")
	if len(c.SemanticIDs) != 2 {
		t.Errorf("len(SemanticIDs) = %d, want 2", len(c.SemanticIDs))
	}
}

func TestParseCriteria_Classes(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/listings?classes=3A,SL&mine=true", nil)
	c := parseCriteria(req, "user-123")

	if len(c.Classes) != 2 || c.Classes[0] != model.TrainClass3A || c.Classes[1] != model.TrainClassSL {
		t.Errorf("Classes = %v, want [3A SL]", c.Classes)
	}
	if !c.MineOnly {
		t.Error("MineOnly should be true")
	}
	if c.ViewerID != "user-123" {
		t.Errorf("ViewerID = %q, want user-123", c.ViewerID)
	}
}

// --- POST /api/listings テスト ---

func TestListingHandler_Publish_Success(t *testing.T) {
	svc := &mockListingService{
		publishFn: func(ctx context.Context, listing *model.Listing, user *model.User) (*model.Listing, error) {
			if user.ID != "user-123" {
				t.Errorf("user.ID = %q, want user-123", user.ID)
			}
			out := *listing
			out.ID = "new-id"
			out.Status = model.ListingStatusOpen
			return &out, nil
		},
	}
	h := NewListingHandler(&mockListingStore{}, svc, &mockRouteAnalyzer{}, nil)

	body := `{"type": "OFFER", "trainNumber": "12951", "date": "2099-01-01", "price": 1500}`
	req := httptest.NewRequest(http.MethodPost, "/api/listings", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	req = withUser(req, "user-123")
	w := httptest.NewRecorder()

	h.Publish(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusCreated, w.Body.String())
	}

	var created model.Listing
	if err := json.NewDecoder(w.Body).Decode(&created); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if created.ID != "new-id" {
		t.Errorf("ID = %q, want new-id", created.ID)
	}
}

func TestListingHandler_Publish_SimilarRequiresConfirmation(t *testing.T) {
	similar := sampleOffer("offer-1", "2099-01-01", 1200)
	svc := &mockListingService{
		findSimilarFn: func(ctx context.Context, request *model.Listing) ([]model.Listing, error) {
			return []model.Listing{similar}, nil
		},
		publishFn: func(ctx context.Context, listing *model.Listing, user *model.User) (*model.Listing, error) {
			t.Error("Publish should not be called before confirmation")
			return nil, nil
		},
	}
	h := NewListingHandler(&mockListingStore{}, svc, &mockRouteAnalyzer{}, nil)

	body := `{"type": "REQUEST", "trainNumber": "12951", "date": "2099-01-01", "price": 1500}`
	req := httptest.NewRequest(http.MethodPost, "/api/listings", bytes.NewBufferString(body))
	req = withUser(req, "user-123")
	w := httptest.NewRecorder()

	h.Publish(w, req)

	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusConflict)
	}

	var resp similarResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !resp.RequiresConfirmation {
		t.Error("requiresConfirmation should be true")
	}
	if len(resp.Similar) != 1 || resp.Similar[0].ID != "offer-1" {
		t.Errorf("similar = %+v, want [offer-1]", resp.Similar)
	}
}

func TestListingHandler_Publish_ConfirmedSkipsSimilarCheck(t *testing.T) {
	svc := &mockListingService{
		findSimilarFn: func(ctx context.Context, request *model.Listing) ([]model.Listing, error) {
			t.Error("FindSimilar should not be called when confirm is true")
			return nil, nil
		},
		publishFn: func(ctx context.Context, listing *model.Listing, user *model.User) (*model.Listing, error) {
			out := *listing
			out.ID = "new-id"
			return &out, nil
		},
	}
	h := NewListingHandler(&mockListingStore{}, svc, &mockRouteAnalyzer{}, nil)

	body := `{"type": "REQUEST", "trainNumber": "12951", "date": "2099-01-01", "price": 1500, "confirm": true}`
	req := httptest.NewRequest(http.MethodPost, "/api/listings", bytes.NewBufferString(body))
	req = withUser(req, "user-123")
	w := httptest.NewRecorder()

	h.Publish(w, req)

	if w.Code != http.StatusCreated {
		t.Errorf("status = %d, want %d", w.Code, http.StatusCreated)
	}
}

func TestListingHandler_Publish_ValidationError(t *testing.T) {
	svc := &mockListingService{
		publishFn: func(ctx context.Context, listing *model.Listing, user *model.User) (*model.Listing, error) {
			return nil, model.NewInvalidTrainNumberError(listing.TrainNumber)
		},
	}
	h := NewListingHandler(&mockListingStore{}, svc, &mockRouteAnalyzer{}, nil)

	body := `{"type": "OFFER", "trainNumber": "abc", "date": "2099-01-01", "price": 1500}`
	req := httptest.NewRequest(http.MethodPost, "/api/listings", bytes.NewBufferString(body))
	req = withUser(req, "user-123")
	w := httptest.NewRecorder()

	h.Publish(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}

	var resp apiErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Code != model.ErrCodeInvalidTrainNumber {
		t.Errorf("code = %q, want %q", resp.Code, model.ErrCodeInvalidTrainNumber)
	}
}

func TestListingHandler_Publish_InvalidJSON(t *testing.T) {
	h := NewListingHandler(&mockListingStore{}, &mockListingService{}, &mockRouteAnalyzer{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/listings", bytes.NewBufferString("{invalid"))
	req = withUser(req, "user-123")
	w := httptest.NewRecorder()

	h.Publish(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

// --- GET /api/listings/{id} テスト ---

func TestListingHandler_Get_Success(t *testing.T) {
	listing := sampleOffer("l1", "2099-01-01", 1500)
	store := &mockListingStore{
		getByIDFn: func(ctx context.Context, id string) (*model.Listing, error) {
			if id != "l1" {
				t.Errorf("id = %q, want l1", id)
			}
			return &listing, nil
		},
	}
	h := NewListingHandler(store, &mockListingService{}, &mockRouteAnalyzer{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/listings/l1", nil)
	req = withChiURLParam(req, "id", "l1")
	w := httptest.NewRecorder()

	h.Get(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestListingHandler_Get_NotFound(t *testing.T) {
	h := NewListingHandler(&mockListingStore{}, &mockListingService{}, &mockRouteAnalyzer{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/listings/missing", nil)
	req = withChiURLParam(req, "id", "missing")
	w := httptest.NewRecorder()

	h.Get(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

// --- DELETE /api/listings/{id} テスト ---

func TestListingHandler_Delete_Success(t *testing.T) {
	svc := &mockListingService{
		deleteFn: func(ctx context.Context, id string, user *model.User) error {
			if id != "l1" {
				t.Errorf("id = %q, want l1", id)
			}
			return nil
		},
	}
	h := NewListingHandler(&mockListingStore{}, svc, &mockRouteAnalyzer{}, nil)

	req := httptest.NewRequest(http.MethodDelete, "/api/listings/l1", nil)
	req = withChiURLParam(req, "id", "l1")
	req = withUser(req, "user-123")
	w := httptest.NewRecorder()

	h.Delete(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNoContent)
	}
}

func TestListingHandler_Delete_Forbidden(t *testing.T) {
	svc := &mockListingService{
		deleteFn: func(ctx context.Context, id string, user *model.User) error {
			return model.NewForbiddenError()
		},
	}
	h := NewListingHandler(&mockListingStore{}, svc, &mockRouteAnalyzer{}, nil)

	req := httptest.NewRequest(http.MethodDelete, "/api/listings/l1", nil)
	req = withChiURLParam(req, "id", "l1")
	req = withUser(req, "other-user")
	w := httptest.NewRecorder()

	h.Delete(w, req)

	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", w.Code, http.StatusForbidden)
	}
}
