// AngelaMos | 2026
// service.go

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/promptstudio/api/internal/core"
	"github.com/promptstudio/api/internal/middleware"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTokenReuse         = errors.New("token reuse detected")
	ErrEmailExists        = errors.New("email already exists")
)

const (
	refreshTokenBytes = 32
	sessionRetention  = 24 * time.Hour
)

// UserInfo is the slice of an account that authentication needs. IsAdmin
// already accounts for the configured allow-list.
type UserInfo struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string
	Plan         string
	IsAdmin      bool
	TokenVersion int
	CreatedAt    time.Time
}

type UserProvider interface {
	GetByEmail(ctx context.Context, email string) (*UserInfo, error)
	GetByID(ctx context.Context, id string) (*UserInfo, error)
	Create(ctx context.Context, email, passwordHash, name string) (*UserInfo, error)
	IncrementTokenVersion(ctx context.Context, userID string) error
	UpdatePassword(ctx context.Context, userID, passwordHash string) error
}

type Service struct {
	sessions  Repository
	jwt       *JWTManager
	users     UserProvider
	blacklist Blacklist
	now       func() time.Time
}

// NewService wires authentication. A nil blacklist disables per-token
// revocation; logout-all still works through token versions.
func NewService(
	sessions Repository,
	jwt *JWTManager,
	users UserProvider,
	blacklist Blacklist,
) *Service {
	if blacklist == nil {
		blacklist = nopBlacklist{}
	}

	return &Service{
		sessions:  sessions,
		jwt:       jwt,
		users:     users,
		blacklist: blacklist,
		now:       time.Now,
	}
}

func (s *Service) Register(
	ctx context.Context,
	req RegisterRequest,
	client Client,
) (*AuthResponse, error) {
	hash, err := core.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.users.Create(ctx, req.Email, hash, req.Name)
	if err != nil {
		if errors.Is(err, core.ErrDuplicateKey) {
			return nil, ErrEmailExists
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	slog.InfoContext(ctx, "user registered", "user_id", user.ID)

	return s.issue(ctx, user, client, "")
}

func (s *Service) Login(
	ctx context.Context,
	req LoginRequest,
	client Client,
) (*AuthResponse, error) {
	user, err := s.users.GetByEmail(ctx, req.Email)
	if err != nil && !errors.Is(err, core.ErrNotFound) {
		return nil, fmt.Errorf("get user: %w", err)
	}

	var stored string
	if user != nil {
		stored = user.PasswordHash
	}

	ok, rehash, err := core.CheckPasswordConstantTime(req.Password, stored)
	if err != nil {
		return nil, fmt.Errorf("check password: %w", err)
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}

	if rehash != "" {
		if err := s.users.UpdatePassword(ctx, user.ID, rehash); err != nil {
			slog.WarnContext(ctx, "password rehash not stored",
				"user_id", user.ID,
				"error", err,
			)
		}
	}

	return s.issue(ctx, user, client, "")
}

// Refresh trades a refresh token for a new pair. Only the first caller to
// present a token wins; any later presentation revokes its family.
func (s *Service) Refresh(
	ctx context.Context,
	refreshToken string,
	client Client,
) (*AuthResponse, error) {
	session, err := s.sessions.GetByHash(ctx, core.HashToken(refreshToken))
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, fmt.Errorf("refresh: %w", core.ErrTokenInvalid)
		}
		return nil, fmt.Errorf("refresh: %w", err)
	}

	now := s.now()
	switch {
	case session.Rotated():
		return nil, s.reuseDetected(ctx, session)
	case session.Revoked():
		return nil, fmt.Errorf("refresh: %w", core.ErrTokenRevoked)
	case session.Expired(now):
		return nil, fmt.Errorf("refresh: %w", core.ErrTokenExpired)
	}

	if err := s.sessions.Rotate(ctx, session.ID, now); err != nil {
		if errors.Is(err, core.ErrConflict) {
			return nil, s.reuseDetected(ctx, session)
		}
		return nil, fmt.Errorf("refresh: %w", err)
	}

	user, err := s.users.GetByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, fmt.Errorf("refresh: %w", core.ErrTokenInvalid)
		}
		return nil, fmt.Errorf("refresh: %w", err)
	}

	return s.issue(ctx, user, client, session.FamilyID)
}

func (s *Service) reuseDetected(ctx context.Context, session *Session) error {
	slog.WarnContext(ctx, "refresh token reuse, revoking family",
		"user_id", session.UserID,
		"family_id", session.FamilyID,
	)
	if err := s.sessions.RevokeFamily(ctx, session.FamilyID); err != nil {
		slog.ErrorContext(ctx, "revoke session family failed",
			"family_id", session.FamilyID,
			"error", err,
		)
	}
	return ErrTokenReuse
}

// Logout ends the session behind refreshToken and blacklists the access
// token that made the request. Unknown tokens are ignored.
func (s *Service) Logout(
	ctx context.Context,
	userID, refreshToken string,
	access *middleware.AccessTokenClaims,
) error {
	if err := s.sessions.RevokeByHash(ctx, userID, core.HashToken(refreshToken)); err != nil {
		return fmt.Errorf("logout: %w", err)
	}

	if access == nil || access.TokenID == "" {
		return nil
	}

	ttl := access.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return nil
	}

	if err := s.blacklist.Add(ctx, access.TokenID, ttl); err != nil {
		slog.WarnContext(ctx, "access token not blacklisted",
			"user_id", userID,
			"error", err,
		)
	}

	return nil
}

// LogoutAll revokes every session and bumps the token version so that
// outstanding access tokens fail verification.
func (s *Service) LogoutAll(ctx context.Context, userID string) error {
	if err := s.sessions.RevokeAll(ctx, userID); err != nil {
		return fmt.Errorf("logout all: %w", err)
	}

	if err := s.users.IncrementTokenVersion(ctx, userID); err != nil {
		return fmt.Errorf("logout all: %w", err)
	}

	return nil
}

func (s *Service) Sessions(ctx context.Context, userID string) ([]SessionResponse, error) {
	sessions, err := s.sessions.ListActive(ctx, userID, s.now())
	if err != nil {
		return nil, err
	}
	return toSessionResponses(sessions), nil
}

// RevokeSession reports core.ErrNotFound for sessions owned by someone else.
func (s *Service) RevokeSession(ctx context.Context, userID, sessionID string) error {
	return s.sessions.Revoke(ctx, userID, sessionID)
}

func (s *Service) ChangePassword(
	ctx context.Context,
	userID string,
	req ChangePasswordRequest,
) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("change password: %w", err)
	}

	ok, _, err := core.CheckPassword(req.CurrentPassword, user.PasswordHash)
	if err != nil {
		return fmt.Errorf("change password: %w", err)
	}
	if !ok {
		return ErrInvalidCredentials
	}

	hash, err := core.HashPassword(req.NewPassword)
	if err != nil {
		return fmt.Errorf("change password: %w", err)
	}

	if err := s.users.UpdatePassword(ctx, userID, hash); err != nil {
		return fmt.Errorf("change password: %w", err)
	}

	return s.LogoutAll(ctx, userID)
}

func (s *Service) CurrentUser(ctx context.Context, userID string) (*UserResponse, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	resp := toUserResponse(user)
	return &resp, nil
}

// VerifyAccessToken checks the signature, then rejects tokens blacklisted
// on logout or issued before the user's last logout-all. A failing
// blacklist store is logged and skipped.
func (s *Service) VerifyAccessToken(
	ctx context.Context,
	token string,
) (*middleware.AccessTokenClaims, error) {
	claims, err := s.jwt.VerifyAccessToken(ctx, token)
	if err != nil {
		return nil, err
	}

	if claims.TokenID != "" {
		revoked, err := s.blacklist.Contains(ctx, claims.TokenID)
		switch {
		case err != nil:
			slog.WarnContext(ctx, "token blacklist unavailable", "error", err)
		case revoked:
			return nil, fmt.Errorf("verify token: %w", core.ErrTokenRevoked)
		}
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, fmt.Errorf("verify token: %w", core.ErrTokenInvalid)
		}
		return nil, fmt.Errorf("verify token: %w", err)
	}

	if claims.TokenVersion < user.TokenVersion {
		return nil, fmt.Errorf("verify token: %w", core.ErrTokenRevoked)
	}

	return claims, nil
}

// CleanupExpiredTokens purges sessions that expired more than a day ago.
func (s *Service) CleanupExpiredTokens(ctx context.Context) (int64, error) {
	return s.sessions.DeleteExpired(ctx, s.now().Add(-sessionRetention))
}

func (s *Service) issue(
	ctx context.Context,
	user *UserInfo,
	client Client,
	familyID string,
) (*AuthResponse, error) {
	access, err := s.jwt.CreateAccessToken(AccessTokenClaims{
		UserID:       user.ID,
		Plan:         user.Plan,
		TokenVersion: user.TokenVersion,
	})
	if err != nil {
		return nil, fmt.Errorf("issue tokens: %w", err)
	}

	refresh, err := core.NewOpaqueToken(refreshTokenBytes)
	if err != nil {
		return nil, fmt.Errorf("issue tokens: %w", err)
	}

	if familyID == "" {
		familyID = uuid.New().String()
	}

	session := &Session{
		ID:        uuid.New().String(),
		UserID:    user.ID,
		TokenHash: core.HashToken(refresh),
		FamilyID:  familyID,
		UserAgent: client.UserAgent,
		IPAddress: client.IPAddress,
		ExpiresAt: s.now().Add(s.jwt.RefreshTokenTTL()),
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("issue tokens: %w", err)
	}

	return &AuthResponse{
		User: toUserResponse(user),
		Tokens: TokenResponse{
			AccessToken:  access.Token,
			RefreshToken: refresh,
			TokenType:    "Bearer",
			ExpiresIn:    int(s.jwt.AccessTokenTTL() / time.Second),
			ExpiresAt:    access.ExpiresAt,
		},
	}, nil
}
