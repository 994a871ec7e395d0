// AngelaMos | 2026
// repository.go

package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/promptstudio/api/internal/core"
	"github.com/promptstudio/api/internal/subscription"
)

const userColumns = `
		id, email, password_hash, name, is_admin, token_version,
		plan, subscription_status, prompts_used, prompts_limit, billing_cycle,
		activated_at, expires_at, payment_reference,
		created_at, updated_at, deleted_at`

const subscriptionColumns = `
		plan, subscription_status, prompts_used, prompts_limit, billing_cycle,
		activated_at, expires_at, payment_reference`

type Repository interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	Update(ctx context.Context, user *User) error
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	IncrementTokenVersion(ctx context.Context, id string) error
	SoftDelete(ctx context.Context, id string) error
	List(ctx context.Context, params ListUsersParams) ([]User, int, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)

	// ReservePrompts adds n to prompts_used only if the gate would allow it,
	// in a single statement. It returns ErrLimitReached when no row qualified,
	// which also covers a missing user; callers reload to tell them apart.
	ReservePrompts(
		ctx context.Context,
		id string,
		n int,
	) (*subscription.Subscription, error)
	// ReleasePrompts hands back n units only while the subscription is still
	// the one activated at activatedAt. It returns ErrConflict otherwise.
	ReleasePrompts(
		ctx context.Context,
		id string,
		n int,
		activatedAt *time.Time,
	) error
	ActivateSubscription(
		ctx context.Context,
		id string,
		sub subscription.Subscription,
	) error
	ExpireSubscriptions(
		ctx context.Context,
		now time.Time,
		freeLimit int,
	) (int64, error)
}

type repository struct {
	db core.DBTX
}

func NewRepository(db core.DBTX) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, user *User) error {
	query := `
		INSERT INTO users (
			id, email, password_hash, name, is_admin,
			plan, subscription_status, prompts_used, prompts_limit, billing_cycle
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at, token_version`

	err := r.db.QueryRowxContext(ctx, query,
		user.ID,
		user.Email,
		user.PasswordHash,
		user.Name,
		user.IsAdmin,
		user.Plan,
		user.Status,
		user.PromptsUsed,
		user.PromptsLimit,
		user.BillingCycle,
	).Scan(&user.CreatedAt, &user.UpdatedAt, &user.TokenVersion)
	if err != nil {
		if isDuplicateKeyError(err) {
			return fmt.Errorf("create user: %w", core.ErrDuplicateKey)
		}
		return fmt.Errorf("create user: %w", err)
	}

	return nil
}

func (r *repository) GetByID(ctx context.Context, id string) (*User, error) {
	query := `SELECT ` + userColumns + `
		FROM users
		WHERE id = $1 AND deleted_at IS NULL`

	var user User
	err := r.db.GetContext(ctx, &user, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get user: %w", core.ErrNotFound)
	}
	if err != nil {
		if isInvalidTextError(err) {
			return nil, fmt.Errorf("get user: %w", core.ErrNotFound)
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	return &user, nil
}

func (r *repository) GetByEmail(
	ctx context.Context,
	email string,
) (*User, error) {
	query := `SELECT ` + userColumns + `
		FROM users
		WHERE email = $1 AND deleted_at IS NULL`

	var user User
	err := r.db.GetContext(ctx, &user, query, email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get user by email: %w", core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", err)
	}

	return &user, nil
}

func (r *repository) Update(ctx context.Context, user *User) error {
	query := `
		UPDATE users
		SET name = $2, is_admin = $3, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING updated_at`

	err := r.db.GetContext(ctx, &user.UpdatedAt, query,
		user.ID,
		user.Name,
		user.IsAdmin,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("update user: %w", core.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}

	return nil
}

func (r *repository) UpdatePassword(
	ctx context.Context,
	id, passwordHash string,
) error {
	query := `
		UPDATE users
		SET password_hash = $2, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`

	return r.execOne(ctx, "update password", query, id, passwordHash)
}

func (r *repository) IncrementTokenVersion(
	ctx context.Context,
	id string,
) error {
	query := `
		UPDATE users
		SET token_version = token_version + 1, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`

	return r.execOne(ctx, "increment token version", query, id)
}

func (r *repository) SoftDelete(ctx context.Context, id string) error {
	query := `
		UPDATE users
		SET deleted_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`

	return r.execOne(ctx, "delete user", query, id)
}

func (r *repository) List(
	ctx context.Context,
	params ListUsersParams,
) ([]User, int, error) {
	params.Normalize()

	var conditions []string
	var args []any
	argIdx := 1

	conditions = append(conditions, "deleted_at IS NULL")

	if params.Search != "" {
		conditions = append(conditions, fmt.Sprintf(
			"(email ILIKE $%d OR name ILIKE $%d)", argIdx, argIdx))
		args = append(args, "%"+escapeLike(params.Search)+"%")
		argIdx++
	}

	if params.Plan != "" {
		conditions = append(conditions, fmt.Sprintf("plan = $%d", argIdx))
		args = append(args, params.Plan)
		argIdx++
	}

	whereClause := strings.Join(conditions, " AND ")

	countQuery := fmt.Sprintf(
		"SELECT COUNT(*) FROM users WHERE %s",
		whereClause,
	)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM users
		WHERE %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`,
		userColumns, whereClause, argIdx, argIdx+1)

	args = append(args, params.PageSize, params.Offset())

	var users []User
	if err := r.db.SelectContext(ctx, &users, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}

	return users, total, nil
}

func (r *repository) ExistsByEmail(
	ctx context.Context,
	email string,
) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM users WHERE email = $1 AND deleted_at IS NULL)`

	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, email); err != nil {
		return false, fmt.Errorf("check email exists: %w", err)
	}

	return exists, nil
}

func (r *repository) ReservePrompts(
	ctx context.Context,
	id string,
	n int,
) (*subscription.Subscription, error) {
	query := `
		UPDATE users
		SET prompts_used = prompts_used + $2, updated_at = NOW()
		WHERE id = $1
			AND deleted_at IS NULL
			AND (plan = $3 OR prompts_used < prompts_limit)
		RETURNING` + subscriptionColumns

	var sub subscription.Subscription
	err := r.db.GetContext(ctx, &sub, query, id, n, subscription.PlanLifetime)
	if errors.Is(err, sql.ErrNoRows) || isInvalidTextError(err) {
		return nil, fmt.Errorf("reserve prompts: %w", core.ErrLimitReached)
	}
	if err != nil {
		return nil, fmt.Errorf("reserve prompts: %w", err)
	}

	return &sub, nil
}

func (r *repository) ReleasePrompts(
	ctx context.Context,
	id string,
	n int,
	activatedAt *time.Time,
) error {
	query := `
		UPDATE users
		SET prompts_used = GREATEST(prompts_used - $2, 0), updated_at = NOW()
		WHERE id = $1
			AND deleted_at IS NULL
			AND activated_at IS NOT DISTINCT FROM $3`

	err := r.execOne(ctx, "release prompts", query, id, n, activatedAt)
	if errors.Is(err, core.ErrNotFound) {
		return fmt.Errorf("release prompts: %w", core.ErrConflict)
	}
	return err
}

func (r *repository) ActivateSubscription(
	ctx context.Context,
	id string,
	sub subscription.Subscription,
) error {
	query := `
		UPDATE users
		SET plan = $2,
			subscription_status = $3,
			prompts_used = $4,
			prompts_limit = $5,
			billing_cycle = $6,
			activated_at = $7,
			expires_at = $8,
			payment_reference = $9,
			updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`

	result, err := r.db.ExecContext(ctx, query,
		id,
		sub.Plan,
		sub.Status,
		sub.PromptsUsed,
		sub.PromptsLimit,
		sub.BillingCycle,
		sub.ActivatedAt,
		sub.ExpiresAt,
		sub.PaymentReference,
	)
	if err != nil {
		if isInvalidTextError(err) {
			return fmt.Errorf("activate subscription: %w", core.ErrNotFound)
		}
		return fmt.Errorf("activate subscription: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("activate subscription: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("activate subscription: %w", core.ErrNotFound)
	}

	return nil
}

func (r *repository) ExpireSubscriptions(
	ctx context.Context,
	now time.Time,
	freeLimit int,
) (int64, error) {
	query := `
		UPDATE users
		SET subscription_status = $2,
			plan = $3,
			prompts_limit = $4,
			updated_at = NOW()
		WHERE deleted_at IS NULL
			AND subscription_status = $5
			AND plan NOT IN ($3, $6)
			AND expires_at IS NOT NULL
			AND expires_at < $1`

	result, err := r.db.ExecContext(ctx, query,
		now,
		subscription.StatusExpired,
		subscription.PlanFree,
		freeLimit,
		subscription.StatusActive,
		subscription.PlanLifetime,
	)
	if err != nil {
		return 0, fmt.Errorf("expire subscriptions: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("expire subscriptions: %w", err)
	}

	return rows, nil
}

func (r *repository) execOne(
	ctx context.Context,
	op, query string,
	args ...any,
) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if rows == 0 {
		return fmt.Errorf("%s: %w", op, core.ErrNotFound)
	}

	return nil
}

func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// isInvalidTextError catches malformed uuid input, which Postgres rejects
// before the WHERE clause runs.
func isInvalidTextError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "22P02"
	}
	return false
}

func escapeLike(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "%", "\\%")
	s = strings.ReplaceAll(s, "_", "\\_")
	return s
}
