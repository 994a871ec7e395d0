// AngelaMos | 2026
// repository.go

package generation

import (
	"context"
	"fmt"
	"strings"

	"github.com/promptstudio/api/internal/core"
)

type Repository interface {
	Create(ctx context.Context, p *Prompt) error
	ListByUser(
		ctx context.Context,
		userID string,
		params ListParams,
	) ([]Prompt, int, error)
}

type repository struct {
	db core.DBTX
}

func NewRepository(db core.DBTX) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, p *Prompt) error {
	query := `
		INSERT INTO prompts (id, user_id, kind, input, output, units)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`

	err := r.db.QueryRowxContext(ctx, query,
		p.ID,
		p.UserID,
		p.Kind,
		p.Input,
		p.Output,
		p.Units,
	).Scan(&p.CreatedAt)
	if err != nil {
		return fmt.Errorf("create prompt: %w", err)
	}

	return nil
}

func (r *repository) ListByUser(
	ctx context.Context,
	userID string,
	params ListParams,
) ([]Prompt, int, error) {
	params.Normalize()

	conditions := []string{"user_id = $1"}
	args := []any{userID}
	argIdx := 2

	if params.Kind != "" {
		conditions = append(conditions, fmt.Sprintf("kind = $%d", argIdx))
		args = append(args, params.Kind)
		argIdx++
	}

	whereClause := strings.Join(conditions, " AND ")

	var total int
	countQuery := "SELECT COUNT(*) FROM prompts WHERE " + whereClause
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count prompts: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT id, user_id, kind, input, output, units, created_at
		FROM prompts
		WHERE %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`,
		whereClause, argIdx, argIdx+1)

	args = append(args, params.PageSize, params.Offset())

	var prompts []Prompt
	if err := r.db.SelectContext(ctx, &prompts, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list prompts: %w", err)
	}

	return prompts, total, nil
}
