// Package auth はシートコラボレータを認証基盤とするログインと
// セッション管理を提供する。
package auth

import (
	"context"
	"fmt"

	"github.com/hitoshi/journeyconnect/internal/model"
)

// Authenticator は電話番号とPINによる認証のインターフェース。
// 認証失敗時は(nil, nil)を返し、通信失敗時のみエラーを返す。
type Authenticator interface {
	Login(ctx context.Context, phone, pin string) (*model.User, error)
}

// Service はログイン・ログアウトとセッション照会を提供する。
type Service struct {
	authenticator Authenticator
	sessions      *SessionStore
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(authenticator Authenticator, sessions *SessionStore) *Service {
	return &Service{
		authenticator: authenticator,
		sessions:      sessions,
	}
}

// Login は認証を行い、成功時に新しいセッションを発行する。
// 認証情報が不正な場合は(nil, nil)を返す。
func (s *Service) Login(ctx context.Context, phone, pin string) (*model.Session, error) {
	user, err := s.authenticator.Login(ctx, phone, pin)
	if err != nil {
		return nil, fmt.Errorf("ログインに失敗しました: %w", err)
	}
	if user == nil {
		return nil, nil
	}
	return s.sessions.Create(user), nil
}

// Logout は指定セッションを破棄する。存在しないセッションIDは無視する。
func (s *Service) Logout(ctx context.Context, sessionID string) {
	s.sessions.Delete(sessionID)
}

// FindSession はセッションIDからセッションを返す。見つからない場合はnil。
func (s *Service) FindSession(ctx context.Context, id string) (*model.Session, error) {
	return s.sessions.FindByID(ctx, id)
}
