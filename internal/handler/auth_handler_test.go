package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/journeyconnect/internal/model"
)

// mockAuthService はAuthServiceInterfaceのモック実装。
type mockAuthService struct {
	loginFn       func(ctx context.Context, phone, pin string) (*model.Session, error)
	logoutFn      func(ctx context.Context, sessionID string)
	findSessionFn func(ctx context.Context, id string) (*model.Session, error)
}

func (m *mockAuthService) Login(ctx context.Context, phone, pin string) (*model.Session, error) {
	if m.loginFn != nil {
		return m.loginFn(ctx, phone, pin)
	}
	return nil, nil
}

func (m *mockAuthService) Logout(ctx context.Context, sessionID string) {
	if m.logoutFn != nil {
		m.logoutFn(ctx, sessionID)
	}
}

func (m *mockAuthService) FindSession(ctx context.Context, id string) (*model.Session, error) {
	if m.findSessionFn != nil {
		return m.findSessionFn(ctx, id)
	}
	return nil, nil
}

func sampleSession() *model.Session {
	return &model.Session{
		ID:     "session-abc",
		UserID: "user-123",
		User: model.User{
			ID:   "user-123",
			Name: "テスト太郎",
			Role: model.RoleUser,
		},
	}
}

func TestAuthHandler_Login_Success(t *testing.T) {
	svc := &mockAuthService{
		loginFn: func(ctx context.Context, phone, pin string) (*model.Session, error) {
			if phone != "9876543210" || pin != "1234" {
				t.Errorf("credentials = (%q, %q)", phone, pin)
			}
			return sampleSession(), nil
		},
	}
	h := NewAuthHandler(svc, true, "example.com")

	body := `{"phoneNumber": "9876543210", "pin": "1234"}`
	req := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewBufferString(body))
	w := httptest.NewRecorder()

	h.Login(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
	}

	// セッションクッキーの属性を確認
	cookies := w.Result().Cookies()
	var sessionCookie *http.Cookie
	for _, c := range cookies {
		if c.Name == sessionCookieName {
			sessionCookie = c
		}
	}
	if sessionCookie == nil {
		t.Fatal("session cookie not set")
	}
	if sessionCookie.Value != "session-abc" {
		t.Errorf("cookie value = %q, want session-abc", sessionCookie.Value)
	}
	if !sessionCookie.HttpOnly {
		t.Error("cookie should be HttpOnly")
	}
	if !sessionCookie.Secure {
		t.Error("cookie should be Secure")
	}

	var user model.User
	if err := json.NewDecoder(w.Body).Decode(&user); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if user.ID != "user-123" {
		t.Errorf("user.ID = %q, want user-123", user.ID)
	}
}

func TestAuthHandler_Login_InvalidCredentials(t *testing.T) {
	svc := &mockAuthService{
		loginFn: func(ctx context.Context, phone, pin string) (*model.Session, error) {
			return nil, nil
		},
	}
	h := NewAuthHandler(svc, false, "")

	body := `{"phoneNumber": "9876543210", "pin": "wrong"}`
	req := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewBufferString(body))
	w := httptest.NewRecorder()

	h.Login(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestAuthHandler_Login_CollaboratorError(t *testing.T) {
	svc := &mockAuthService{
		loginFn: func(ctx context.Context, phone, pin string) (*model.Session, error) {
			return nil, errors.New("sheet timeout")
		},
	}
	h := NewAuthHandler(svc, false, "")

	body := `{"phoneNumber": "9876543210", "pin": "1234"}`
	req := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewBufferString(body))
	w := httptest.NewRecorder()

	h.Login(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
}

func TestAuthHandler_Logout_DeletesSessionAndExpiresCookie(t *testing.T) {
	var deletedID string
	svc := &mockAuthService{
		logoutFn: func(ctx context.Context, sessionID string) {
			deletedID = sessionID
		},
	}
	h := NewAuthHandler(svc, false, "")

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: "session-abc"})
	w := httptest.NewRecorder()

	h.Logout(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if deletedID != "session-abc" {
		t.Errorf("deleted session = %q, want session-abc", deletedID)
	}

	cookies := w.Result().Cookies()
	if len(cookies) != 1 || cookies[0].MaxAge != -1 {
		t.Errorf("expected expired session cookie, got %+v", cookies)
	}
}

func TestAuthHandler_Logout_WithoutCookie(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{}, false, "")

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	w := httptest.NewRecorder()

	h.Logout(w, req)

	// クッキーなしでも204を返す
	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNoContent)
	}
}

func TestAuthHandler_Me_Success(t *testing.T) {
	svc := &mockAuthService{
		findSessionFn: func(ctx context.Context, id string) (*model.Session, error) {
			if id != "session-abc" {
				t.Errorf("session id = %q, want session-abc", id)
			}
			return sampleSession(), nil
		},
	}
	h := NewAuthHandler(svc, false, "")

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: "session-abc"})
	w := httptest.NewRecorder()

	h.Me(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var user model.User
	if err := json.NewDecoder(w.Body).Decode(&user); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if user.Name != "テスト太郎" {
		t.Errorf("user.Name = %q", user.Name)
	}
}

func TestAuthHandler_Me_NoCookie(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{}, false, "")

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	w := httptest.NewRecorder()

	h.Me(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestAuthHandler_Me_UnknownSession(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{}, false, "")

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: "expired"})
	w := httptest.NewRecorder()

	h.Me(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}
