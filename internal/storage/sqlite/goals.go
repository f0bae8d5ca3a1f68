package sqlite

import (
	"context"
	"time"

	"finwatch/internal/core"
)

const goalColumns = `id, user_id, title, category, target_cents, deadline, created_at`

func scanGoal(r rowScanner) (core.Goal, error) {
	var (
		g                 core.Goal
		cents             int64
		deadline, created int64
	)
	if err := r.Scan(&g.ID, &g.UserID, &g.Title, &g.Category, &cents, &deadline, &created); err != nil {
		return core.Goal{}, err
	}
	g.Target = core.FromCents(cents)
	g.Deadline = fromNanos(deadline)
	g.CreatedAt = fromNanos(created)
	return g, nil
}

func (s *Store) CreateGoal(ctx context.Context, g core.Goal) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO goals (id, user_id, title, category, target_cents, deadline, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		g.ID, g.UserID, g.Title, g.Category, core.ToCents(g.Target), toNanos(g.Deadline), toNanos(g.CreatedAt))
	return core.Persistence("create goal", err)
}

func (s *Store) UpdateGoal(ctx context.Context, g core.Goal) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE goals SET title = ?, category = ?, target_cents = ?, deadline = ?
		WHERE id = ? AND user_id = ?`,
		g.Title, g.Category, core.ToCents(g.Target), toNanos(g.Deadline), g.ID, g.UserID)
	if err != nil {
		return core.Persistence("update goal", err)
	}
	return expectOne(res, "update goal")
}

func (s *Store) DeleteGoal(ctx context.Context, userID, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM goals WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return core.Persistence("delete goal", err)
	}
	return expectOne(res, "delete goal")
}

func (s *Store) GetGoal(ctx context.Context, userID, id string) (core.Goal, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+goalColumns+` FROM goals WHERE id = ? AND user_id = ?`, id, userID)
	g, err := scanGoal(row)
	if err != nil {
		return core.Goal{}, core.Persistence("get goal", notFound(err))
	}
	return g, nil
}

func (s *Store) ListGoals(ctx context.Context, userID string, since time.Time) ([]core.Goal, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+goalColumns+` FROM goals WHERE user_id = ? AND deadline >= ? ORDER BY deadline, id`,
		userID, toNanos(since))
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
