package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"server/internal/domain"
)

// PromptOverrideRepositoryPG implements domain.PromptOverrideRepository on a
// single-row document table. The version column duplicates the document
// version so replacements can use an optimistic conditional write instead of
// a lock.
type PromptOverrideRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewPromptOverrideRepository creates a new override repository backed by
// PostgreSQL.
func NewPromptOverrideRepository(pool *pgxpool.Pool) *PromptOverrideRepositoryPG {
	return &PromptOverrideRepositoryPG{pool: pool}
}

// Get loads the override document. With no stored row the result is the
// empty version-1 set: no overrides, no history.
func (r *PromptOverrideRepositoryPG) Get(ctx context.Context) (*domain.PromptOverrideSet, error) {
	query := `
SELECT document
FROM prompt_overrides
WHERE id = 1;
`
	var raw []byte
	if err := r.pool.QueryRow(ctx, query).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &domain.PromptOverrideSet{
				Version: 1,
				Prompts: map[domain.Intensity]string{},
			}, nil
		}
		return nil, err
	}

	var set domain.PromptOverrideSet
	if err := json.Unmarshal(raw, &set); err != nil {
		return nil, fmt.Errorf("decode override document: %w", err)
	}
	if set.Prompts == nil {
		set.Prompts = map[domain.Intensity]string{}
	}
	if set.Version == 0 {
		set.Version = 1
	}
	return &set, nil
}

// Replace persists the document only if the stored version still equals
// expectedVersion. A concurrent revision that won the race surfaces as
// domain.ErrVersionConflict.
func (r *PromptOverrideRepositoryPG) Replace(ctx context.Context, expectedVersion int, set *domain.PromptOverrideSet) error {
	raw, err := json.Marshal(set)
	if err != nil {
		return fmt.Errorf("encode override document: %w", err)
	}

	query := `
INSERT INTO prompt_overrides (id, version, document, updated_at)
VALUES (1, $1, $2, NOW())
ON CONFLICT (id) DO UPDATE
SET version = EXCLUDED.version,
    document = EXCLUDED.document,
    updated_at = NOW()
WHERE prompt_overrides.version = $3;
`
	tag, err := r.pool.Exec(ctx, query, set.Version, raw, expectedVersion)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrVersionConflict
	}
	return nil
}
