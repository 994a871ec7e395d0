// AngelaMos | 2026
// repository.go

package payment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/promptstudio/api/internal/core"
)

const paymentColumns = `
		id, user_id, plan, amount, currency, billing_cycle, payment_method,
		sender_number, transaction_id, status, submitted_at,
		verified_at, verified_by, admin_notes`

type Repository interface {
	Create(ctx context.Context, p *ManualPayment) error
	GetByID(ctx context.Context, id string) (*ManualPayment, error)
	ExistsByTransactionID(ctx context.Context, transactionID string) (bool, error)
	List(ctx context.Context, params ListParams) ([]ManualPayment, int, error)

	// MarkApproved and MarkRejected only move a pending row. ErrConflict
	// means the row was not pending at the time of the write.
	MarkApproved(ctx context.Context, id, verifiedBy string, at time.Time) error
	MarkRejected(
		ctx context.Context,
		id, verifiedBy, reason string,
		at time.Time,
	) error
}

type repository struct {
	db core.DBTX
}

func NewRepository(db core.DBTX) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, p *ManualPayment) error {
	query := `
		INSERT INTO manual_payments (
			id, user_id, plan, amount, currency, billing_cycle,
			payment_method, sender_number, transaction_id, status, submitted_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := r.db.ExecContext(ctx, query,
		p.ID,
		p.UserID,
		p.Plan,
		p.Amount,
		p.Currency,
		p.BillingCycle,
		p.PaymentMethod,
		p.SenderNumber,
		p.TransactionID,
		p.Status,
		p.SubmittedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return fmt.Errorf("create manual payment: %w", core.ErrDuplicateKey)
		}
		return fmt.Errorf("create manual payment: %w", err)
	}

	return nil
}

func (r *repository) GetByID(
	ctx context.Context,
	id string,
) (*ManualPayment, error) {
	query := `SELECT ` + paymentColumns + `
		FROM manual_payments
		WHERE id = $1`

	var p ManualPayment
	err := r.db.GetContext(ctx, &p, query, id)
	if errors.Is(err, sql.ErrNoRows) || isInvalidTextError(err) {
		return nil, fmt.Errorf("get manual payment: %w", core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get manual payment: %w", err)
	}

	return &p, nil
}

func (r *repository) ExistsByTransactionID(
	ctx context.Context,
	transactionID string,
) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM manual_payments WHERE transaction_id = $1)`

	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, transactionID); err != nil {
		return false, fmt.Errorf("check transaction id: %w", err)
	}

	return exists, nil
}

func (r *repository) List(
	ctx context.Context,
	params ListParams,
) ([]ManualPayment, int, error) {
	params.Normalize()

	conditions := []string{"TRUE"}
	var args []any
	argIdx := 1

	if params.UserID != "" {
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", argIdx))
		args = append(args, params.UserID)
		argIdx++
	}

	if params.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, params.Status)
		argIdx++
	}

	whereClause := strings.Join(conditions, " AND ")

	var total int
	countQuery := "SELECT COUNT(*) FROM manual_payments WHERE " + whereClause
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count manual payments: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM manual_payments
		WHERE %s
		ORDER BY submitted_at DESC
		LIMIT $%d OFFSET $%d`,
		paymentColumns, whereClause, argIdx, argIdx+1)

	args = append(args, params.PageSize, params.Offset())

	var payments []ManualPayment
	if err := r.db.SelectContext(ctx, &payments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list manual payments: %w", err)
	}

	return payments, total, nil
}

func (r *repository) MarkApproved(
	ctx context.Context,
	id, verifiedBy string,
	at time.Time,
) error {
	query := `
		UPDATE manual_payments
		SET status = $2, verified_at = $3, verified_by = $4
		WHERE id = $1 AND status = $5`

	return r.transition(ctx, "approve manual payment", query,
		id, StatusApproved, at, verifiedBy, StatusPending)
}

func (r *repository) MarkRejected(
	ctx context.Context,
	id, verifiedBy, reason string,
	at time.Time,
) error {
	query := `
		UPDATE manual_payments
		SET status = $2, verified_at = $3, verified_by = $4, admin_notes = $5
		WHERE id = $1 AND status = $6`

	return r.transition(ctx, "reject manual payment", query,
		id, StatusRejected, at, verifiedBy, reason, StatusPending)
}

func (r *repository) transition(
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
		return fmt.Errorf("%s: %w", op, core.ErrConflict)
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

func isInvalidTextError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "22P02"
	}
	return false
}
