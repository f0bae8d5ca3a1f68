package postgres

import (
	"context"
	"time"

	"finwatch/internal/core"
)

const goalColumns = `id, user_id, title, category, target_cents, deadline, created_at`

func scanGoal(r rowScanner) (core.Goal, error) {
	var (
		g     core.Goal
		cents int64
	)
	if err := r.Scan(&g.ID, &g.UserID, &g.Title, &g.Category, &cents, &g.Deadline, &g.CreatedAt); err != nil {
		return core.Goal{}, err
	}
	g.Target = core.FromCents(cents)
	g.Deadline = g.Deadline.UTC()
	g.CreatedAt = g.CreatedAt.UTC()
	return g, nil
}

func (s *Store) CreateGoal(ctx context.Context, g core.Goal) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO goals (id, user_id, title, category, target_cents, deadline, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		g.ID, g.UserID, g.Title, g.Category, core.ToCents(g.Target), g.Deadline.UTC(), g.CreatedAt.UTC())
	return core.Persistence("create goal", err)
}

func (s *Store) UpdateGoal(ctx context.Context, g core.Goal) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE goals SET title = $1, category = $2, target_cents = $3, deadline = $4
		WHERE id = $5 AND user_id = $6`,
		g.Title, g.Category, core.ToCents(g.Target), g.Deadline.UTC(), g.ID, g.UserID)
	if err != nil {
		return core.Persistence("update goal", err)
	}
	return expectOne(res, "update goal")
}

func (s *Store) DeleteGoal(ctx context.Context, userID, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM goals WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return core.Persistence("delete goal", err)
	}
	return expectOne(res, "delete goal")
}

func (s *Store) GetGoal(ctx context.Context, userID, id string) (core.Goal, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+goalColumns+` FROM goals WHERE id = $1 AND user_id = $2`, id, userID)
	g, err := scanGoal(row)
	if err != nil {
		return core.Goal{}, core.Persistence("get goal", notFound(err))
	}
	return g, nil
}

func (s *Store) ListGoals(ctx context.Context, userID string, since time.Time) ([]core.Goal, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+goalColumns+` FROM goals WHERE user_id = $1 AND deadline >= $2 ORDER BY deadline, id`,
		userID, since.UTC())
	if err != nil {
		return nil, core.Persistence("list goals", err)
	}
	defer rows.Close()

	var out []core.Goal
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			return nil, core.Persistence("scan goal", err)
		}
		out = append(out, g)
	}
	return out, core.Persistence("list goals", rows.Err())
}
