package auth

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fetchquest/backend/internal/models"
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ Store = (*Repository)(nil)

// Create inserts a user row holding the initial reward profile document.
func (r *Repository) Create(ctx context.Context, p *models.Profile, passwordHash string) error {
	doc, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return r.pool.QueryRow(ctx, `
		INSERT INTO users (id, email, password_hash, doc)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`, p.ID, p.Email, passwordHash, doc).Scan(&p.CreatedAt)
}

// GetCredentials returns the user id and password hash for login. Returns
// empty strings if the email is unknown.
func (r *Repository) GetCredentials(ctx context.Context, email string) (string, string, error) {
	var id, passwordHash string
	row := r.pool.QueryRow(ctx, `SELECT id, password_hash FROM users WHERE email = $1`, email)
	if err := row.Scan(&id, &passwordHash); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", "", nil
		}
		return "", "", err
	}
	return id, passwordHash, nil
}
