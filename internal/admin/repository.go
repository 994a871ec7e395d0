// AngelaMos | 2026
// repository.go

package admin

import (
	"context"
	"fmt"
	"time"

	"github.com/promptstudio/api/internal/core"
)

type Repository interface {
	Overview(ctx context.Context, since time.Time) (*Overview, error)
}

type repository struct {
	db core.DBTX
}

func NewRepository(db core.DBTX) Repository {
	return &repository{db: db}
}

type countRow struct {
	Key   string `db:"key"`
	Count int64  `db:"count"`
}

func (r *repository) Overview(
	ctx context.Context,
	since time.Time,
) (*Overview, error) {
	out := &Overview{
		UsersByPlan:      make(map[string]int64),
		PaymentsByStatus: make(map[string]int64),
	}

	var plans []countRow
	plansQuery := `
		SELECT plan AS key, COUNT(*) AS count
		FROM users
		WHERE deleted_at IS NULL
		GROUP BY plan`
	if err := r.db.SelectContext(ctx, &plans, plansQuery); err != nil {
		return nil, fmt.Errorf("count users by plan: %w", err)
	}
	for _, row := range plans {
		out.UsersByPlan[row.Key] = row.Count
		out.TotalUsers += row.Count
	}

	var statuses []countRow
	statusQuery := `
		SELECT status AS key, COUNT(*) AS count
		FROM manual_payments
		GROUP BY status`
	if err := r.db.SelectContext(ctx, &statuses, statusQuery); err != nil {
		return nil, fmt.Errorf("count payments by status: %w", err)
	}
	for _, row := range statuses {
		out.PaymentsByStatus[row.Key] = row.Count
	}

	promptsQuery := `
		SELECT COALESCE(SUM(units), 0)
		FROM prompts
		WHERE created_at >= $1`
	if err := r.db.GetContext(ctx, &out.UnitsSince, promptsQuery, since); err != nil {
		return nil, fmt.Errorf("sum prompt units: %w", err)
	}
	out.Since = since

	return out, nil
}
