// Package archive persists sealed past sessions to PostgreSQL as a
// write-behind copy. The in-memory store remains the authority; archive
// failures are logged, never surfaced to clients.
package archive

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/classpulse/backend/internal/models"
)

// Repository handles past-session archival.
type Repository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewRepository creates an archive repository.
func NewRepository(pool *pgxpool.Pool, logger *zap.Logger) *Repository {
	return &Repository{pool: pool, logger: logger}
}

// Save inserts a sealed session. The question snapshots travel as one JSONB
// document since they are immutable and only ever read back whole.
func (r *Repository) Save(ctx context.Context, ps models.PastSession) error {
	questions, err := json.Marshal(ps.Questions)
	if err != nil {
		return fmt.Errorf("marshal question snapshots: %w", err)
	}
	const query = `INSERT INTO past_sessions (id, teacher_id, title, started_at, ended_at, questions)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING`
	if _, err := r.pool.Exec(ctx, query, ps.ID, ps.TeacherID, ps.Title, ps.StartedAt, ps.EndedAt, questions); err != nil {
		return fmt.Errorf("insert past session: %w", err)
	}
	return nil
}

// List returns archived sessions, most recent first. teacherID filters when
// non-empty.
func (r *Repository) List(ctx context.Context, teacherID string) ([]models.PastSession, error) {
	const base = `SELECT id, teacher_id, title, started_at, ended_at, questions
		FROM past_sessions`
	query := base + ` ORDER BY ended_at DESC`
	args := []interface{}{}
	if teacherID != "" {
		query = base + ` WHERE teacher_id = $1 ORDER BY ended_at DESC`
		args = append(args, teacherID)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query past sessions: %w", err)
	}
	defer rows.Close()

	var out []models.PastSession
	for rows.Next() {
		var (
			ps        models.PastSession
			questions []byte
		)
		if err := rows.Scan(&ps.ID, &ps.TeacherID, &ps.Title, &ps.StartedAt, &ps.EndedAt, &questions); err != nil {
			return nil, fmt.Errorf("scan past session: %w", err)
		}
		if err := json.Unmarshal(questions, &ps.Questions); err != nil {
			r.logger.Warn("corrupt question snapshots in archive",
				zap.String("session_id", ps.ID), zap.Error(err))
			ps.Questions = nil
		}
		out = append(out, ps)
	}
	return out, rows.Err()
}
