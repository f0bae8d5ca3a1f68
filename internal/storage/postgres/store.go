// Package postgres is a Store backed by PostgreSQL through lib/pq, for
// deployments that run more than one process against the same ledger.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"finwatch/internal/core"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

const uniqueViolation = "23505"

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	slog.InfoContext(ctx, "Postgres store ready")
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return core.ErrNotFound
	}
	return err
}

const entryColumns = `id, user_id, category, amount_cents, description, occurred_at, dedup_key, source, recorded_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(r rowScanner) (core.LedgerEntry, error) {
	var (
		e      core.LedgerEntry
		cents  int64
		source string
	)
	if err := r.Scan(&e.ID, &e.UserID, &e.Category, &cents, &e.Description, &e.OccurredAt, &e.DedupKey, &source, &e.RecordedAt); err != nil {
		return core.LedgerEntry{}, err
	}
	e.Amount = core.FromCents(cents)
	e.OccurredAt = e.OccurredAt.UTC()
	e.RecordedAt = e.RecordedAt.UTC()
	e.Source = core.EntrySource(source)
	return e, nil
}

func (s *Store) InsertIfAbsent(ctx context.Context, e core.LedgerEntry) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO ledger_entries (`+entryColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (user_id, dedup_key) DO NOTHING`,
		e.ID, e.UserID, e.Category, core.ToCents(e.Amount), e.Description,
		e.OccurredAt.UTC(), e.DedupKey, string(e.Source), e.RecordedAt.UTC())
	if err != nil {
		return false, core.Persistence("insert entry", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, core.Persistence("insert entry", err)
	}
	return n == 1, nil
}

func (s *Store) GetEntry(ctx context.Context, userID, id string) (core.LedgerEntry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM ledger_entries WHERE id = $1 AND user_id = $2`, id, userID)
	e, err := scanEntry(row)
	if err != nil {
		return core.LedgerEntry{}, core.Persistence("get entry", notFound(err))
	}
	return e, nil
}

func (s *Store) UpdateEntry(ctx context.Context, e core.LedgerEntry) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE ledger_entries SET category = $1, amount_cents = $2, description = $3
		WHERE id = $4 AND user_id = $5`,
		e.Category, core.ToCents(e.Amount), e.Description, e.ID, e.UserID)
	if err != nil {
		return core.Persistence("update entry", err)
	}
	return expectOne(res, "update entry")
}

func (s *Store) ListEntries(ctx context.Context, userID string, from, to time.Time) ([]core.LedgerEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+entryColumns+` FROM ledger_entries
		WHERE user_id = $1 AND occurred_at >= $2 AND occurred_at < $3
		ORDER BY occurred_at DESC, recorded_at DESC`,
		userID, from.UTC(), to.UTC())
	if err != nil {
		return nil, core.Persistence("list entries", err)
	}
	defer rows.Close()

	var out []core.LedgerEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, core.Persistence("scan entry", err)
		}
		out = append(out, e)
	}
	return out, core.Persistence("list entries", rows.Err())
}

func (s *Store) sumCents(ctx context.Context, op, query string, args ...any) (decimal.Decimal, error) {
	var cents int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&cents); err != nil {
		return decimal.Zero, core.Persistence(op, err)
	}
	return core.FromCents(cents), nil
}

func (s *Store) SumByCategory(ctx context.Context, userID, category string, from, to time.Time) (decimal.Decimal, error) {
	return s.sumCents(ctx, "sum by category", `
		SELECT COALESCE(SUM(amount_cents), 0) FROM ledger_entries
		WHERE user_id = $1 AND lower(trim(category)) = lower(trim($2))
		  AND occurred_at >= $3 AND occurred_at < $4`,
		userID, category, from.UTC(), to.UTC())
}

func (s *Store) SumSince(ctx context.Context, userID string, from, until, recordedBefore time.Time) (decimal.Decimal, error) {
	return s.sumCents(ctx, "sum since", `
		SELECT COALESCE(SUM(amount_cents), 0) FROM ledger_entries
		WHERE user_id = $1 AND occurred_at >= $2 AND occurred_at <= $3 AND recorded_at <= $4`,
		userID, from.UTC(), until.UTC(), recordedBefore.UTC())
}

func (s *Store) CategoryTotals(ctx context.Context, userID string, from, to time.Time) ([]core.CategoryAmount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT MIN(category), SUM(amount_cents) AS total FROM ledger_entries
		WHERE user_id = $1 AND occurred_at >= $2 AND occurred_at < $3
		GROUP BY lower(trim(category))
		ORDER BY total DESC, 1`,
		userID, from.UTC(), to.UTC())
	if err != nil {
		return nil, core.Persistence("category totals", err)
	}
	defer rows.Close()

	var out []core.CategoryAmount
	for rows.Next() {
		var (
			c     core.CategoryAmount
			cents int64
		)
		if err := rows.Scan(&c.Category, &cents); err != nil {
			return nil, core.Persistence("scan category total", err)
		}
		c.Amount = core.FromCents(cents)
		out = append(out, c)
	}
	return out, core.Persistence("category totals", rows.Err())
}

func (s *Store) MonthlyTotals(ctx context.Context, userID string) ([]core.MonthAmount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT to_char(occurred_at AT TIME ZONE 'UTC', 'YYYY-MM') AS period, SUM(amount_cents)
		FROM ledger_entries
		WHERE user_id = $1
		GROUP BY period
		ORDER BY period`, userID)
	if err != nil {
		return nil, core.Persistence("monthly totals", err)
	}
	defer rows.Close()

	var out []core.MonthAmount
	for rows.Next() {
		var (
			key   string
			cents int64
		)
		if err := rows.Scan(&key, &cents); err != nil {
			return nil, core.Persistence("scan monthly total", err)
		}
		p, err := core.ParsePeriod(key)
		if err != nil {
			return nil, core.Persistence("monthly totals", err)
		}
		out = append(out, core.MonthAmount{Period: p, Amount: core.FromCents(cents)})
	}
	return out, core.Persistence("monthly totals", rows.Err())
}

func (s *Store) ListUsers(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id FROM ledger_entries
		UNION
		SELECT user_id FROM budgets
		ORDER BY 1`)
	if err != nil {
		return nil, core.Persistence("list users", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, core.Persistence("scan user", err)
		}
		out = append(out, u)
	}
	return out, core.Persistence("list users", rows.Err())
}

const budgetColumns = `id, user_id, category, limit_cents, notified, notified_period, created_at`

func scanBudget(r rowScanner) (core.Budget, error) {
	var (
		b      core.Budget
		cents  int64
		period string
	)
	if err := r.Scan(&b.ID, &b.UserID, &b.Category, &cents, &b.NotifiedForCurrentPeriod, &period, &b.CreatedAt); err != nil {
		return core.Budget{}, err
	}
	p, err := core.ParsePeriod(period)
	if err != nil {
		return core.Budget{}, err
	}
	b.Limit = core.FromCents(cents)
	b.NotifiedPeriod = p
	b.CreatedAt = b.CreatedAt.UTC()
	return b, nil
}

func (s *Store) CreateBudget(ctx context.Context, b core.Budget) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO budgets (id, user_id, category, limit_cents, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		b.ID, b.UserID, b.Category, core.ToCents(b.Limit), b.CreatedAt.UTC())
	if isUniqueViolation(err) {
		return core.ErrDuplicateBudget
	}
	return core.Persistence("create budget", err)
}

func (s *Store) UpdateBudget(ctx context.Context, b core.Budget) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE budgets SET category = $1, limit_cents = $2
		WHERE id = $3 AND user_id = $4`,
		b.Category, core.ToCents(b.Limit), b.ID, b.UserID)
	if isUniqueViolation(err) {
		return core.ErrDuplicateBudget
	}
	if err != nil {
		return core.Persistence("update budget", err)
	}
	return expectOne(res, "update budget")
}

func (s *Store) DeleteBudget(ctx context.Context, userID, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM budgets WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return core.Persistence("delete budget", err)
	}
	return expectOne(res, "delete budget")
}

func (s *Store) GetBudget(ctx context.Context, userID, id string) (core.Budget, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+budgetColumns+` FROM budgets WHERE id = $1 AND user_id = $2`, id, userID)
	b, err := scanBudget(row)
	if err != nil {
		return core.Budget{}, core.Persistence("get budget", notFound(err))
	}
	return b, nil
}

func (s *Store) ListBudgets(ctx context.Context, userID string) ([]core.Budget, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+budgetColumns+` FROM budgets WHERE user_id = $1 ORDER BY lower(trim(category))`, userID)
	if err != nil {
		return nil, core.Persistence("list budgets", err)
	}
	defer rows.Close()

	var out []core.Budget
	for rows.Next() {
		b, err := scanBudget(rows)
		if err != nil {
			return nil, core.Persistence("scan budget", err)
		}
		out = append(out, b)
	}
	return out, core.Persistence("list budgets", rows.Err())
}

func (s *Store) SetNotifiedFlag(ctx context.Context, budgetID string, p core.Period, notified bool) (bool, error) {
	var (
		res sql.Result
		err error
	)
	if notified {
		res, err = s.db.ExecContext(ctx, `
			UPDATE budgets SET notified = TRUE, notified_period = $1
			WHERE id = $2 AND NOT (notified AND notified_period = $1)`,
			p.Key(), budgetID)
	} else {
		res, err = s.db.ExecContext(ctx, `
			UPDATE budgets SET notified = FALSE, notified_period = ''
			WHERE id = $1 AND notified AND notified_period = $2`,
			budgetID, p.Key())
	}
	if err != nil {
		return false, core.Persistence("set notified flag", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, core.Persistence("set notified flag", err)
	}
	if n == 1 {
		return true, nil
	}

	var exists int
	err = s.db.QueryRowContext(ctx, `SELECT 1 FROM budgets WHERE id = $1`, budgetID).Scan(&exists)
	if err != nil {
		return false, core.Persistence("set notified flag", notFound(err))
	}
	return false, nil
}

func (s *Store) ResetStaleFlags(ctx context.Context, current core.Period) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE budgets SET notified = FALSE, notified_period = ''
		WHERE notified AND notified_period <> $1`, current.Key())
	if err != nil {
		return 0, core.Persistence("reset stale flags", err)
	}
	n, err := res.RowsAffected()
	return n, core.Persistence("reset stale flags", err)
}

func (s *Store) InsertNotification(ctx context.Context, n core.Notification) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (id, user_id, kind, message, created_at, is_read)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		n.ID, n.UserID, string(n.Kind), n.Message, n.CreatedAt.UTC(), n.IsRead)
	return core.Persistence("insert notification", err)
}

func (s *Store) ListNotifications(ctx context.Context, userID string, unreadOnly bool) ([]core.Notification, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, kind, message, created_at, is_read FROM notifications
		WHERE user_id = $1 AND (NOT $2 OR NOT is_read)
		ORDER BY created_at DESC`, userID, unreadOnly)
	if err != nil {
		return nil, core.Persistence("list notifications", err)
	}
	defer rows.Close()

	var out []core.Notification
	for rows.Next() {
		var (
			n    core.Notification
			kind string
		)
		if err := rows.Scan(&n.ID, &n.UserID, &kind, &n.Message, &n.CreatedAt, &n.IsRead); err != nil {
			return nil, core.Persistence("scan notification", err)
		}
		n.Kind = core.NotificationKind(kind)
		n.CreatedAt = n.CreatedAt.UTC()
		out = append(out, n)
	}
	return out, core.Persistence("list notifications", rows.Err())
}

func (s *Store) MarkRead(ctx context.Context, userID, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET is_read = TRUE WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return core.Persistence("mark read", err)
	}
	return expectOne(res, "mark read")
}

func expectOne(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return core.Persistence(op, err)
	}
	if n == 0 {
		return core.ErrNotFound
	}
	return nil
}
