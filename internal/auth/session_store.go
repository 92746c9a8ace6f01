package auth

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/hitoshi/journeyconnect/internal/model"
)

// SessionStore はプロセス内セッションの保管庫。
// セッションはプロセス再起動で消える。永続化はしない。
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*model.Session
}

// NewSessionStore はSessionStoreの新しいインスタンスを生成する。
func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*model.Session),
	}
}

// Create は新しいセッションを発行して保存する。
func (s *SessionStore) Create(user *model.User) *model.Session {
	session := &model.Session{
		ID:     uuid.New().String(),
		UserID: user.ID,
		User:   *user,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = session
	return session
}

// FindByID は指定IDのセッションを返す。見つからない場合は(nil, nil)。
func (s *SessionStore) FindByID(ctx context.Context, id string) (*model.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[id]
	if !ok {
		return nil, nil
	}
	copied := *session
	return &copied, nil
}

// Delete は指定IDのセッションを破棄する。
func (s *SessionStore) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}
