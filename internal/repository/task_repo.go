package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fetchquest/backend/internal/models"
	"github.com/fetchquest/backend/internal/tasks"
)

// TaskRepo stores quests as whole JSON documents keyed by id. The status,
// requester and version columns mirror the document for filtering and
// compare-and-swap.
type TaskRepo struct {
	pool *pgxpool.Pool
}

func NewTaskRepo(pool *pgxpool.Pool) *TaskRepo {
	return &TaskRepo{pool: pool}
}

var _ tasks.Store = (*TaskRepo)(nil)

func (r *TaskRepo) Get(ctx context.Context, id string) (*models.Task, error) {
	var doc []byte
	err := r.pool.QueryRow(ctx, `SELECT doc FROM tasks WHERE id = $1`, id).Scan(&doc)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, tasks.ErrNotFound
		}
		return nil, err
	}
	return decodeTask(doc)
}

func (r *TaskRepo) List(ctx context.Context) ([]*models.Task, error) {
	rows, err := r.pool.Query(ctx, `SELECT doc FROM tasks ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Task
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		t, err := decodeTask(doc)
		if err != nil {
			return nil, err
		}
		list = append(list, t)
	}
	return list, rows.Err()
}

// Put inserts the document when expectedVersion is 0 and otherwise replaces
// it only if the stored version still equals expectedVersion.
func (r *TaskRepo) Put(ctx context.Context, t *models.Task, expectedVersion int64) error {
	doc, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode task %s: %w", t.ID, err)
	}
	if expectedVersion == 0 {
		tag, err := r.pool.Exec(ctx, `
			INSERT INTO tasks (id, requester_id, status, version, doc, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO NOTHING
		`, t.ID, t.RequesterID, string(t.Status), t.Version, doc, t.CreatedAt)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return tasks.ErrConflict
		}
		return nil
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE tasks SET status = $2, version = $3, doc = $4, updated_at = now()
		WHERE id = $1 AND version = $5
	`, t.ID, string(t.Status), t.Version, doc, expectedVersion)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return tasks.ErrConflict
	}
	return nil
}

func (r *TaskRepo) Delete(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, "DELETE FROM tasks WHERE id = $1", id)
	return err
}

// CountCreatedSince returns how many quests requesterID posted at or after since.
func (r *TaskRepo) CountCreatedSince(ctx context.Context, requesterID string, since time.Time) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM tasks WHERE requester_id = $1 AND created_at >= $2
	`, requesterID, since).Scan(&n)
	return n, err
}

func decodeTask(doc []byte) (*models.Task, error) {
	var t models.Task
	if err := json.Unmarshal(doc, &t); err != nil {
		return nil, fmt.Errorf("decode task: %w", err)
	}
	return &t, nil
}
