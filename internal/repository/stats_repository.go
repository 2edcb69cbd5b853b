package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// StatsRepository aggregates dashboard counters across tables.
type StatsRepository struct {
	db *sqlx.DB
}

// NewStatsRepository creates a new instance of StatsRepository.
func NewStatsRepository(db *sqlx.DB) *StatsRepository {
	return &StatsRepository{db: db}
}

// CountUsers returns the number of active accounts.
func (r *StatsRepository) CountUsers(ctx context.Context) (int, error) {
	return r.count(ctx, "SELECT COUNT(*) FROM users WHERE active = TRUE")
}

// CountMaterials returns the number of materials.
func (r *StatsRepository) CountMaterials(ctx context.Context) (int, error) {
	return r.count(ctx, "SELECT COUNT(*) FROM materials")
}

// CountConversations returns the number of chat threads.
func (r *StatsRepository) CountConversations(ctx context.Context) (int, error) {
	return r.count(ctx, "SELECT COUNT(*) FROM conversations")
}

// CountQuizzes returns the number of generated quizzes.
func (r *StatsRepository) CountQuizzes(ctx context.Context) (int, error) {
	return r.count(ctx, "SELECT COUNT(*) FROM quizzes")
}

func (r *StatsRepository) count(ctx context.Context, query string) (int, error) {
	var n int
	if err := r.db.GetContext(ctx, &n, query); err != nil {
		return 0, fmt.Errorf("stats count: %w", err)
	}
	return n, nil
}
