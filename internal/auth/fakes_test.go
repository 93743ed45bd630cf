package auth

import (
	"context"
	"sync"
	"time"

	"github.com/safwat-fathi/almuetasim-api/internal/model"
	"github.com/safwat-fathi/almuetasim-api/internal/repository"
)

// --- インメモリ実装 ---

type memUserRepo struct {
	mu     sync.Mutex
	nextID int64
	users  map[int64]*model.User
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{users: make(map[int64]*model.User)}
}

func (r *memUserRepo) FindByEmail(_ context.Context, email string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email && u.DeletedAt == nil {
			c := *u
			return &c, nil
		}
	}
	return nil, nil
}

func (r *memUserRepo) FindByID(_ context.Context, id int64) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok || u.DeletedAt != nil {
		return nil, nil
	}
	c := *u
	return &c, nil
}

func (r *memUserRepo) Create(_ context.Context, user *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == user.Email && u.DeletedAt == nil {
			return repository.ErrEmailTaken
		}
	}
	r.nextID++
	now := time.Now()
	user.ID = r.nextID
	user.CreatedAt = now
	user.UpdatedAt = now
	c := *user
	r.users[user.ID] = &c
	return nil
}

func (r *memUserRepo) SoftDeleteByID(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok {
		now := time.Now()
		u.DeletedAt = &now
	}
	return nil
}

type memSessionRepo struct {
	mu       sync.Mutex
	nextID   int64
	sessions map[string]*model.Session
	now      func() time.Time
}

func newMemSessionRepo(now func() time.Time) *memSessionRepo {
	return &memSessionRepo{sessions: make(map[string]*model.Session), now: now}
}

func (r *memSessionRepo) Create(_ context.Context, userID int64, token string, expiresAt time.Time) (*model.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[token]; ok {
		return nil, repository.ErrSessionConflict
	}
	return r.insertLocked(userID, token, expiresAt), nil
}

func (r *memSessionRepo) insertLocked(userID int64, token string, expiresAt time.Time) *model.Session {
	r.nextID++
	now := r.now()
	s := &model.Session{
		ID:           r.nextID,
		UserID:       userID,
		RefreshToken: token,
		ExpiresAt:    expiresAt,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	r.sessions[token] = s
	c := *s
	return &c
}

func (r *memSessionRepo) FindByToken(_ context.Context, token string) (*model.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[token]
	if !ok || !s.ExpiresAt.After(r.now()) {
		return nil, nil
	}
	c := *s
	return &c, nil
}

func (r *memSessionRepo) Touch(_ context.Context, token string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[token]; ok {
		s.LastUsedAt = &at
		s.UpdatedAt = at
	}
	return nil
}

func (r *memSessionRepo) DeleteByToken(_ context.Context, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, token)
	return nil
}

func (r *memSessionRepo) DeleteByUserID(_ context.Context, userID int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for tok, s := range r.sessions {
		if s.UserID == userID {
			delete(r.sessions, tok)
			n++
		}
	}
	return n, nil
}

func (r *memSessionRepo) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for tok, s := range r.sessions {
		if s.ExpiresAt.Before(now) {
			delete(r.sessions, tok)
			n++
		}
	}
	return n, nil
}

func (r *memSessionRepo) Rotate(_ context.Context, oldToken, newToken string, expiresAt time.Time) (*model.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	old, ok := r.sessions[oldToken]
	if !ok || !old.ExpiresAt.After(r.now()) {
		return nil, repository.ErrSessionNotFound
	}
	if _, dup := r.sessions[newToken]; dup {
		return nil, repository.ErrSessionConflict
	}
	delete(r.sessions, oldToken)
	return r.insertLocked(old.UserID, newToken, expiresAt), nil
}

func (r *memSessionRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

var (
	_ repository.UserRepository    = (*memUserRepo)(nil)
	_ repository.SessionRepository = (*memSessionRepo)(nil)
)

// --- モック定義 ---

type mockUserRepo struct {
	findByEmailFn func(ctx context.Context, email string) (*model.User, error)
	findByIDFn    func(ctx context.Context, id int64) (*model.User, error)
	createFn      func(ctx context.Context, user *model.User) error
}

func (m *mockUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	if m.findByEmailFn != nil {
		return m.findByEmailFn(ctx, email)
	}
	return nil, nil
}

func (m *mockUserRepo) FindByID(ctx context.Context, id int64) (*model.User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockUserRepo) Create(ctx context.Context, user *model.User) error {
	if m.createFn != nil {
		return m.createFn(ctx, user)
	}
	user.ID = 1
	return nil
}

func (m *mockUserRepo) SoftDeleteByID(_ context.Context, _ int64) error {
	return nil
}

type mockSessionRepo struct {
	createFn      func(ctx context.Context, userID int64, token string, expiresAt time.Time) (*model.Session, error)
	findByTokenFn func(ctx context.Context, token string) (*model.Session, error)
	touchFn       func(ctx context.Context, token string, at time.Time) error
	deleteFn      func(ctx context.Context, token string) error
	rotateFn      func(ctx context.Context, oldToken, newToken string, expiresAt time.Time) (*model.Session, error)
}

func (m *mockSessionRepo) Create(ctx context.Context, userID int64, token string, expiresAt time.Time) (*model.Session, error) {
	if m.createFn != nil {
		return m.createFn(ctx, userID, token, expiresAt)
	}
	return &model.Session{ID: 1, UserID: userID, RefreshToken: token, ExpiresAt: expiresAt}, nil
}

func (m *mockSessionRepo) FindByToken(ctx context.Context, token string) (*model.Session, error) {
	if m.findByTokenFn != nil {
		return m.findByTokenFn(ctx, token)
	}
	return nil, nil
}

func (m *mockSessionRepo) Touch(ctx context.Context, token string, at time.Time) error {
	if m.touchFn != nil {
		return m.touchFn(ctx, token, at)
	}
	return nil
}

func (m *mockSessionRepo) DeleteByToken(ctx context.Context, token string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, token)
	}
	return nil
}

func (m *mockSessionRepo) DeleteByUserID(_ context.Context, _ int64) (int64, error) {
	return 0, nil
}

func (m *mockSessionRepo) DeleteExpired(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}

func (m *mockSessionRepo) Rotate(ctx context.Context, oldToken, newToken string, expiresAt time.Time) (*model.Session, error) {
	if m.rotateFn != nil {
		return m.rotateFn(ctx, oldToken, newToken, expiresAt)
	}
	return &model.Session{ID: 2, RefreshToken: newToken, ExpiresAt: expiresAt}, nil
}

type mockTokenIssuer struct {
	issuePairFn func(userID int64, email string) (model.TokenPair, error)
	calls       int
}

func (m *mockTokenIssuer) IssuePair(userID int64, email string) (model.TokenPair, error) {
	m.calls++
	if m.issuePairFn != nil {
		return m.issuePairFn(userID, email)
	}
	return model.TokenPair{AccessToken: "access", RefreshToken: "refresh"}, nil
}

type recordingMetrics struct {
	mu       sync.Mutex
	outcomes []string
}

func (m *recordingMetrics) RecordAuthOutcome(operation, result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, operation+":"+result)
}

func (m *recordingMetrics) last() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.outcomes) == 0 {
		return ""
	}
	return m.outcomes[len(m.outcomes)-1]
}
