// AngelaMos | 2026
// service.go

package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/promptstudio/api/internal/auth"
	"github.com/promptstudio/api/internal/config"
	"github.com/promptstudio/api/internal/core"
	"github.com/promptstudio/api/internal/subscription"
)

const reserveAttempts = 2

type Service struct {
	repo      Repository
	admins    config.AdminConfig
	freeLimit int
	now       func() time.Time
}

func NewService(
	repo Repository,
	admins config.AdminConfig,
	freeLimit int,
) *Service {
	if freeLimit <= 0 {
		freeLimit = subscription.DefaultFreeLimit
	}
	return &Service{
		repo:      repo,
		admins:    admins,
		freeLimit: freeLimit,
		now:       time.Now,
	}
}

func (s *Service) GetByID(
	ctx context.Context,
	id string,
) (*auth.UserInfo, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	return s.toUserInfo(user), nil
}

func (s *Service) GetByEmail(
	ctx context.Context,
	email string,
) (*auth.UserInfo, error) {
	user, err := s.repo.GetByEmail(ctx, strings.ToLower(email))
	if err != nil {
		return nil, err
	}

	return s.toUserInfo(user), nil
}

// Create registers an account on the free plan.
func (s *Service) Create(
	ctx context.Context,
	email, passwordHash, name string,
) (*auth.UserInfo, error) {
	user := &User{
		ID:           uuid.New().String(),
		Email:        strings.ToLower(strings.TrimSpace(email)),
		PasswordHash: passwordHash,
		Name:         name,
		Subscription: subscription.Free(s.freeLimit),
	}

	if err := s.repo.Create(ctx, user); err != nil {
		return nil, err
	}

	return s.toUserInfo(user), nil
}

func (s *Service) IncrementTokenVersion(
	ctx context.Context,
	userID string,
) error {
	return s.repo.IncrementTokenVersion(ctx, userID)
}

func (s *Service) UpdatePassword(
	ctx context.Context,
	userID, passwordHash string,
) error {
	return s.repo.UpdatePassword(ctx, userID, passwordHash)
}

func (s *Service) GetUser(ctx context.Context, id string) (*User, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) UpdateUser(
	ctx context.Context,
	id string,
	req UpdateUserRequest,
) (*User, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		user.Name = *req.Name
	}

	if err := s.repo.Update(ctx, user); err != nil {
		return nil, err
	}

	return user, nil
}

func (s *Service) SetAdmin(
	ctx context.Context,
	id string,
	isAdmin bool,
) (*User, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	user.IsAdmin = isAdmin

	if err := s.repo.Update(ctx, user); err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "admin flag changed",
		"user_id", id,
		"is_admin", isAdmin,
	)

	return user, nil
}

// OverrideSubscription grants a plan without a payment. Usage restarts at
// zero exactly as it does for an approved payment.
func (s *Service) OverrideSubscription(
	ctx context.Context,
	id string,
	req OverrideSubscriptionRequest,
) (*User, error) {
	sub := subscription.Activate(req.Plan, req.BillingCycle, "", s.now())

	if err := s.repo.ActivateSubscription(ctx, id, sub); err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "subscription overridden",
		"user_id", id,
		"plan", sub.Plan,
		"billing_cycle", sub.BillingCycle,
	)

	return s.repo.GetByID(ctx, id)
}

func (s *Service) DeleteUser(ctx context.Context, id string) error {
	return s.repo.SoftDelete(ctx, id)
}

func (s *Service) ListUsers(
	ctx context.Context,
	params ListUsersParams,
) ([]User, int, error) {
	return s.repo.List(ctx, params)
}

func (s *Service) GetMe(ctx context.Context, userID string) (*User, error) {
	if userID == "" {
		return nil, fmt.Errorf("get me: %w", core.ErrUnauthorized)
	}

	return s.repo.GetByID(ctx, userID)
}

func (s *Service) UpdateMe(
	ctx context.Context,
	userID string,
	req UpdateUserRequest,
) (*User, error) {
	if userID == "" {
		return nil, fmt.Errorf("update me: %w", core.ErrUnauthorized)
	}

	return s.UpdateUser(ctx, userID, req)
}

func (s *Service) DeleteMe(ctx context.Context, userID string) error {
	if userID == "" {
		return fmt.Errorf("delete me: %w", core.ErrUnauthorized)
	}

	return s.repo.SoftDelete(ctx, userID)
}

func (s *Service) Usage(
	ctx context.Context,
	userID string,
) (*UsageResponse, error) {
	user, err := s.GetMe(ctx, userID)
	if err != nil {
		return nil, err
	}

	usage := ToUsageResponse(user.Subscription)
	return &usage, nil
}

// Reserve charges n prompts against the user's allowance if the gate allows
// it. The check and the increment happen in one statement, so concurrent
// requests cannot both pass at the last remaining prompt.
func (s *Service) Reserve(
	ctx context.Context,
	userID string,
	n int,
) (*subscription.Subscription, error) {
	if err := subscription.ValidateUnits(n); err != nil {
		return nil, err
	}

	for attempt := 0; attempt < reserveAttempts; attempt++ {
		sub, err := s.repo.ReservePrompts(ctx, userID, n)
		if err == nil {
			return sub, nil
		}
		if !errors.Is(err, core.ErrLimitReached) {
			return nil, err
		}

		user, err := s.repo.GetByID(ctx, userID)
		if err != nil {
			return nil, err
		}

		if decision := subscription.Check(user.Subscription, n); !decision.Allowed {
			return nil, decision.Err()
		}
	}

	return nil, core.LimitReachedError(subscription.ReasonMonthlyLimit)
}

// Release gives back prompts reserved for a generation that failed. The
// refund is skipped when the subscription was re-activated after reserved
// was taken, since the new counter never included those units.
func (s *Service) Release(
	ctx context.Context,
	userID string,
	n int,
	reserved *subscription.Subscription,
) error {
	var activatedAt *time.Time
	if reserved != nil {
		activatedAt = reserved.ActivatedAt
	}

	err := s.repo.ReleasePrompts(ctx, userID, n, activatedAt)
	if err == nil {
		return nil
	}
	if !errors.Is(err, core.ErrConflict) {
		return fmt.Errorf("release prompts: %w", err)
	}

	if _, err := s.repo.GetByID(ctx, userID); err != nil {
		return fmt.Errorf("release prompts: %w", err)
	}

	slog.InfoContext(ctx, "release skipped, subscription changed",
		"user_id", userID,
		"units", n,
	)
	return nil
}

// ExpireSubscriptions downgrades every paid, non-lifetime subscription whose
// expiry has passed.
func (s *Service) ExpireSubscriptions(ctx context.Context) (int64, error) {
	return s.repo.ExpireSubscriptions(ctx, s.now(), s.freeLimit)
}

// IsAdmin reports whether the account is an administrator, either by flag
// or by the configured allow-list.
func (s *Service) IsAdmin(u *User) bool {
	return u.IsAdmin || s.admins.IsAdminEmail(u.Email)
}

// ResolveAdmin returns the admin's email, or ErrForbidden when the user is
// not an administrator.
func (s *Service) ResolveAdmin(
	ctx context.Context,
	userID string,
) (string, error) {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return "", fmt.Errorf("resolve admin: %w", core.ErrUnauthorized)
		}
		return "", err
	}

	if !s.IsAdmin(user) {
		return "", fmt.Errorf("resolve admin: %w", core.ErrForbidden)
	}

	return user.Email, nil
}

func (s *Service) CanDeleteUser(
	ctx context.Context,
	requesterID, targetID string,
) error {
	if requesterID == targetID {
		return nil
	}

	requester, err := s.repo.GetByID(ctx, requesterID)
	if err != nil {
		return err
	}

	if !s.IsAdmin(requester) {
		return fmt.Errorf("delete user: %w", core.ErrForbidden)
	}

	target, err := s.repo.GetByID(ctx, targetID)
	if err != nil {
		return err
	}

	if s.IsAdmin(target) {
		return fmt.Errorf("cannot delete admin users: %w", core.ErrForbidden)
	}

	return nil
}

func (s *Service) toUserInfo(u *User) *auth.UserInfo {
	return &auth.UserInfo{
		ID:           u.ID,
		Email:        u.Email,
		Name:         u.Name,
		PasswordHash: u.PasswordHash,
		Plan:         u.Plan,
		IsAdmin:      s.IsAdmin(u),
		TokenVersion: u.TokenVersion,
		CreatedAt:    u.CreatedAt,
	}
}

var _ auth.UserProvider = (*Service)(nil)
