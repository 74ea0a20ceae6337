package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fetchquest/backend/internal/ledger"
	"github.com/fetchquest/backend/internal/models"
)

type CreditRepo struct {
	pool *pgxpool.Pool
}

func NewCreditRepo(pool *pgxpool.Pool) *CreditRepo {
	return &CreditRepo{pool: pool}
}

var _ ledger.History = (*CreditRepo)(nil)

func (r *CreditRepo) CreateEntry(ctx context.Context, c *models.CreditEntry) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO credit_history (id, user_id, entry_type, amount_cents, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, c.ID, c.UserID, c.EntryType, int64(c.Amount), c.CreatedAt).Scan(&c.CreatedAt)
}

func (r *CreditRepo) ListByUserID(ctx context.Context, userID string) ([]*models.CreditEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, entry_type, amount_cents, created_at
		FROM credit_history WHERE user_id = $1 ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.CreditEntry
	for rows.Next() {
		var c models.CreditEntry
		var amount int64
		if err := rows.Scan(&c.ID, &c.UserID, &c.EntryType, &amount, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.Amount = models.Cents(amount)
		list = append(list, &c)
	}
	return list, rows.Err()
}
