// AngelaMos | 2026
// service_test.go

package auth

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promptstudio/api/internal/core"
)

type memSessions struct {
	mu   sync.Mutex
	rows map[string]*Session
}

func newMemSessions() *memSessions {
	return &memSessions{rows: make(map[string]*Session)}
}

func (m *memSessions) Create(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.CreatedAt = time.Now()
	cp := *s
	m.rows[s.ID] = &cp
	return nil
}

func (m *memSessions) GetByHash(_ context.Context, hash string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.rows {
		if s.TokenHash == hash {
			cp := *s
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("get session: %w", core.ErrNotFound)
}

func (m *memSessions) Rotate(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.rows[id]
	if !ok || s.RotatedAt != nil || s.RevokedAt != nil {
		return fmt.Errorf("rotate session: %w", core.ErrConflict)
	}
	s.RotatedAt = &at
	return nil
}

func (m *memSessions) revokeWhere(match func(*Session) bool) int {
	now := time.Now()
	n := 0
	for _, s := range m.rows {
		if s.RevokedAt == nil && match(s) {
			s.RevokedAt = &now
			n++
		}
	}
	return n
}

func (m *memSessions) Revoke(_ context.Context, userID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.revokeWhere(func(s *Session) bool { return s.ID == id && s.UserID == userID }) == 0 {
		return fmt.Errorf("revoke session: %w", core.ErrNotFound)
	}
	return nil
}

func (m *memSessions) RevokeByHash(_ context.Context, userID, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revokeWhere(func(s *Session) bool { return s.TokenHash == hash && s.UserID == userID })
	return nil
}

func (m *memSessions) RevokeFamily(_ context.Context, familyID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revokeWhere(func(s *Session) bool { return s.FamilyID == familyID })
	return nil
}

func (m *memSessions) RevokeAll(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revokeWhere(func(s *Session) bool { return s.UserID == userID })
	return nil
}

func (m *memSessions) ListActive(_ context.Context, userID string, now time.Time) ([]Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Session
	for _, s := range m.rows {
		if s.UserID == userID && !s.Rotated() && !s.Revoked() && !s.Expired(now) {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (m *memSessions) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, s := range m.rows {
		if s.ExpiresAt.Before(before) {
			delete(m.rows, id)
			n++
		}
	}
	return n, nil
}

type memUsers struct {
	mu    sync.Mutex
	users map[string]*UserInfo
}

func (m *memUsers) find(match func(*UserInfo) bool) (*UserInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if match(u) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("get user: %w", core.ErrNotFound)
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (*UserInfo, error) {
	return m.find(func(u *UserInfo) bool { return u.Email == strings.ToLower(email) })
}

func (m *memUsers) GetByID(_ context.Context, id string) (*UserInfo, error) {
	return m.find(func(u *UserInfo) bool { return u.ID == id })
}

func (m *memUsers) Create(_ context.Context, email, hash, name string) (*UserInfo, error) {
	if _, err := m.GetByEmail(context.Background(), email); err == nil {
		return nil, fmt.Errorf("create user: %w", core.ErrDuplicateKey)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u := &UserInfo{
		ID:           uuid.New().String(),
		Email:        strings.ToLower(email),
		Name:         name,
		PasswordHash: hash,
		Plan:         "free",
		CreatedAt:    time.Now(),
	}
	m.users[u.ID] = u
	cp := *u
	return &cp, nil
}

func (m *memUsers) IncrementTokenVersion(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[id].TokenVersion++
	return nil
}

func (m *memUsers) UpdatePassword(_ context.Context, id, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[id].PasswordHash = hash
	return nil
}

type memBlacklist struct {
	mu  sync.Mutex
	ids map[string]time.Duration
}

func (b *memBlacklist) Add(_ context.Context, id string, ttl time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ids[id] = ttl
	return nil
}

func (b *memBlacklist) Contains(_ context.Context, id string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.ids[id]
	return ok, nil
}

type authFixture struct {
	svc       *Service
	sessions  *memSessions
	users     *memUsers
	blacklist *memBlacklist
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()

	f := &authFixture{
		sessions:  newMemSessions(),
		users:     &memUsers{users: make(map[string]*UserInfo)},
		blacklist: &memBlacklist{ids: make(map[string]time.Duration)},
	}

	jwtManager := newTestManager(t, 15*time.Minute)
	jwtManager.config.RefreshTokenExpire = 7 * 24 * time.Hour

	f.svc = NewService(f.sessions, jwtManager, f.users, f.blacklist)
	return f
}

var testClient = Client{UserAgent: "go-test", IPAddress: "127.0.0.1"}

func (f *authFixture) register(t *testing.T) *AuthResponse {
	t.Helper()
	resp, err := f.svc.Register(context.Background(), RegisterRequest{
		Email:    "Ada@Example.com",
		Password: "analytical-engine",
		Name:     "Ada",
	}, testClient)
	require.NoError(t, err)
	return resp
}

func TestRegisterAndLogin(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	reg := f.register(t)
	assert.Equal(t, "ada@example.com", reg.User.Email)
	assert.Equal(t, "free", reg.User.Plan)
	assert.Equal(t, "Bearer", reg.Tokens.TokenType)
	assert.Equal(t, 900, reg.Tokens.ExpiresIn)

	login, err := f.svc.Login(ctx, LoginRequest{
		Email:    "ada@example.com",
		Password: "analytical-engine",
	}, testClient)
	require.NoError(t, err)
	assert.Equal(t, reg.User.ID, login.User.ID)
	assert.NotEqual(t, reg.Tokens.RefreshToken, login.Tokens.RefreshToken)

	sessions, err := f.svc.Sessions(ctx, reg.User.ID)
	require.NoError(t, err)
	assert.Len(t, sessions, 2)
	assert.Equal(t, "go-test", sessions[0].UserAgent)
}

func TestLoginFailures(t *testing.T) {
	f := newAuthFixture(t)
	f.register(t)
	ctx := context.Background()

	_, err := f.svc.Login(ctx, LoginRequest{Email: "ada@example.com", Password: "wrong-password"}, testClient)
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = f.svc.Login(ctx, LoginRequest{Email: "nobody@example.com", Password: "whatever1"}, testClient)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	f := newAuthFixture(t)
	f.register(t)

	_, err := f.svc.Register(context.Background(), RegisterRequest{
		Email:    "ada@example.com",
		Password: "another-pass",
		Name:     "Imposter",
	}, testClient)
	assert.ErrorIs(t, err, ErrEmailExists)
}

func TestRefreshRotatesAndDetectsReuse(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	reg := f.register(t)

	rotated, err := f.svc.Refresh(ctx, reg.Tokens.RefreshToken, testClient)
	require.NoError(t, err)
	assert.NotEqual(t, reg.Tokens.RefreshToken, rotated.Tokens.RefreshToken)

	_, err = f.svc.Refresh(ctx, reg.Tokens.RefreshToken, testClient)
	assert.ErrorIs(t, err, ErrTokenReuse)

	_, err = f.svc.Refresh(ctx, rotated.Tokens.RefreshToken, testClient)
	assert.ErrorIs(t, err, core.ErrTokenRevoked)
}

func TestRefreshUnknownAndExpired(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	reg := f.register(t)

	_, err := f.svc.Refresh(ctx, "not-a-real-token", testClient)
	assert.ErrorIs(t, err, core.ErrTokenInvalid)

	f.svc.now = func() time.Time { return time.Now().Add(8 * 24 * time.Hour) }
	_, err = f.svc.Refresh(ctx, reg.Tokens.RefreshToken, testClient)
	assert.ErrorIs(t, err, core.ErrTokenExpired)
}

func TestConcurrentRefreshHasOneWinner(t *testing.T) {
	f := newAuthFixture(t)
	reg := f.register(t)

	const callers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
		reused  int
	)
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Refresh(context.Background(), reg.Tokens.RefreshToken, testClient)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				success++
			case assert.ErrorIs(t, err, ErrTokenReuse):
				reused++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, success)
	assert.Equal(t, callers-1, reused)
}

func TestLogoutBlacklistsAccessToken(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	reg := f.register(t)

	claims, err := f.svc.VerifyAccessToken(ctx, reg.Tokens.AccessToken)
	require.NoError(t, err)

	require.NoError(t, f.svc.Logout(ctx, reg.User.ID, reg.Tokens.RefreshToken, claims))

	_, err = f.svc.VerifyAccessToken(ctx, reg.Tokens.AccessToken)
	assert.ErrorIs(t, err, core.ErrTokenRevoked)

	_, err = f.svc.Refresh(ctx, reg.Tokens.RefreshToken, testClient)
	assert.ErrorIs(t, err, core.ErrTokenRevoked)
}

func TestLogoutAllInvalidatesOutstandingAccessTokens(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	reg := f.register(t)

	require.NoError(t, f.svc.LogoutAll(ctx, reg.User.ID))

	_, err := f.svc.VerifyAccessToken(ctx, reg.Tokens.AccessToken)
	assert.ErrorIs(t, err, core.ErrTokenRevoked)

	sessions, err := f.svc.Sessions(ctx, reg.User.ID)
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestChangePassword(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	reg := f.register(t)

	err := f.svc.ChangePassword(ctx, reg.User.ID, ChangePasswordRequest{
		CurrentPassword: "not-my-password",
		NewPassword:     "difference-engine",
	})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	require.NoError(t, f.svc.ChangePassword(ctx, reg.User.ID, ChangePasswordRequest{
		CurrentPassword: "analytical-engine",
		NewPassword:     "difference-engine",
	}))

	_, err = f.svc.Login(ctx, LoginRequest{Email: "ada@example.com", Password: "difference-engine"}, testClient)
	assert.NoError(t, err)

	_, err = f.svc.VerifyAccessToken(ctx, reg.Tokens.AccessToken)
	assert.ErrorIs(t, err, core.ErrTokenRevoked)
}

func TestRevokeSessionOfAnotherUser(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	reg := f.register(t)

	sessions, err := f.svc.Sessions(ctx, reg.User.ID)
	require.NoError(t, err)
	require.Len(t, sessions, 1)

	assert.ErrorIs(t, f.svc.RevokeSession(ctx, "someone-else", sessions[0].ID), core.ErrNotFound)
	assert.NoError(t, f.svc.RevokeSession(ctx, reg.User.ID, sessions[0].ID))
}

func TestCleanupExpiredTokens(t *testing.T) {
	f := newAuthFixture(t)
	f.register(t)

	n, err := f.svc.CleanupExpiredTokens(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	f.svc.now = func() time.Time { return time.Now().Add(9 * 24 * time.Hour) }
	n, err = f.svc.CleanupExpiredTokens(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
