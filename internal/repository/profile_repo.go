package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fetchquest/backend/internal/ledger"
	"github.com/fetchquest/backend/internal/models"
)

// ProfileRepo reads and replaces the reward profile document held on each
// users row.
type ProfileRepo struct {
	pool *pgxpool.Pool
}

func NewProfileRepo(pool *pgxpool.Pool) *ProfileRepo {
	return &ProfileRepo{pool: pool}
}

var _ ledger.ProfileStore = (*ProfileRepo)(nil)

func (r *ProfileRepo) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	var doc []byte
	err := r.pool.QueryRow(ctx, `SELECT doc FROM users WHERE id = $1`, userID).Scan(&doc)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ledger.ErrProfileNotFound
		}
		return nil, err
	}
	var p models.Profile
	if err := json.Unmarshal(doc, &p); err != nil {
		return nil, fmt.Errorf("decode profile %s: %w", userID, err)
	}
	return &p, nil
}

func (r *ProfileRepo) ReplaceProfile(ctx context.Context, p *models.Profile) error {
	doc, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode profile %s: %w", p.ID, err)
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE users SET doc = $2, updated_at = now() WHERE id = $1
	`, p.ID, doc)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrProfileNotFound
	}
	return nil
}
