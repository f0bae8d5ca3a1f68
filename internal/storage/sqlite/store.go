// Package sqlite is the default durable Store, backed by modernc.org/sqlite.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"finwatch/internal/core"

	"github.com/shopspring/decimal"
	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// A single writer keeps conditional updates and inserts free of SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	slog.Info("SQLite store ready", "db_path", dbPath)
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func toNanos(t time.Time) int64 { return t.UTC().UnixNano() }

func fromNanos(n int64) time.Time { return time.Unix(0, n).UTC() }

func isUniqueViolation(err error) bool {
	var se *msqlite.Error
	return errors.As(err, &se) && se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
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
		e                  core.LedgerEntry
		cents              int64
		occurred, recorded int64
		source             string
	)
	if err := r.Scan(&e.ID, &e.UserID, &e.Category, &cents, &e.Description, &occurred, &e.DedupKey, &source, &recorded); err != nil {
		return core.LedgerEntry{}, err
	}
	e.Amount = core.FromCents(cents)
	e.OccurredAt = fromNanos(occurred)
	e.RecordedAt = fromNanos(recorded)
	e.Source = core.EntrySource(source)
	return e, nil
}

func (s *Store) InsertIfAbsent(ctx context.Context, e core.LedgerEntry) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO ledger_entries (`+entryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, dedup_key) DO NOTHING`,
		e.ID, e.UserID, e.Category, core.ToCents(e.Amount), e.Description,
		toNanos(e.OccurredAt), e.DedupKey, string(e.Source), toNanos(e.RecordedAt))
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
		`SELECT `+entryColumns+` FROM ledger_entries WHERE id = ? AND user_id = ?`, id, userID)
	e, err := scanEntry(row)
	if err != nil {
		return core.LedgerEntry{}, core.Persistence("get entry", notFound(err))
	}
	return e, nil
}

func (s *Store) UpdateEntry(ctx context.Context, e core.LedgerEntry) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE ledger_entries SET category = ?, amount_cents = ?, description = ?
		WHERE id = ? AND user_id = ?`,
		e.Category, core.ToCents(e.Amount), e.Description, e.ID, e.UserID)
	if err != nil {
		return core.Persistence("update entry", err)
	}
	return expectOne(res, "update entry")
}

func (s *Store) ListEntries(ctx context.Context, userID string, from, to time.Time) ([]core.LedgerEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+entryColumns+` FROM ledger_entries
		WHERE user_id = ? AND occurred_at >= ? AND occurred_at < ?
		ORDER BY occurred_at DESC, recorded_at DESC`,
		userID, toNanos(from), toNanos(to))
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
		WHERE user_id = ? AND lower(trim(category)) = lower(trim(?))
		  AND occurred_at >= ? AND occurred_at < ?`,
		userID, category, toNanos(from), toNanos(to))
}

func (s *Store) SumSince(ctx context.Context, userID string, from, until, recordedBefore time.Time) (decimal.Decimal, error) {
	return s.sumCents(ctx, "sum since", `
		SELECT COALESCE(SUM(amount_cents), 0) FROM ledger_entries
		WHERE user_id = ? AND occurred_at >= ? AND occurred_at <= ? AND recorded_at <= ?`,
		userID, toNanos(from), toNanos(until), toNanos(recordedBefore))
}

func (s *Store) CategoryTotals(ctx context.Context, userID string, from, to time.Time) ([]core.CategoryAmount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT MIN(category), SUM(amount_cents) AS total FROM ledger_entries
		WHERE user_id = ? AND occurred_at >= ? AND occurred_at < ?
		GROUP BY lower(trim(category))
		ORDER BY total DESC, 1`,
		userID, toNanos(from), toNanos(to))
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
		SELECT strftime('%Y-%m', occurred_at / 1000000000, 'unixepoch') AS period, SUM(amount_cents)
		FROM ledger_entries
		WHERE user_id = ?
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
		b        core.Budget
		cents    int64
		notified int64
		period   string
		created  int64
	)
	if err := r.Scan(&b.ID, &b.UserID, &b.Category, &cents, &notified, &period, &created); err != nil {
		return core.Budget{}, err
	}
	p, err := core.ParsePeriod(period)
	if err != nil {
		return core.Budget{}, err
	}
	b.Limit = core.FromCents(cents)
	b.NotifiedForCurrentPeriod = notified == 1
	b.NotifiedPeriod = p
	b.CreatedAt = fromNanos(created)
	return b, nil
}

func (s *Store) CreateBudget(ctx context.Context, b core.Budget) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO budgets (id, user_id, category, limit_cents, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		b.ID, b.UserID, b.Category, core.ToCents(b.Limit), toNanos(b.CreatedAt))
	if isUniqueViolation(err) {
		return core.ErrDuplicateBudget
	}
	return core.Persistence("create budget", err)
}

func (s *Store) UpdateBudget(ctx context.Context, b core.Budget) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE budgets SET category = ?, limit_cents = ?
		WHERE id = ? AND user_id = ?`,
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
	res, err := s.db.ExecContext(ctx, `DELETE FROM budgets WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return core.Persistence("delete budget", err)
	}
	return expectOne(res, "delete budget")
}

func (s *Store) GetBudget(ctx context.Context, userID, id string) (core.Budget, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+budgetColumns+` FROM budgets WHERE id = ? AND user_id = ?`, id, userID)
	b, err := scanBudget(row)
	if err != nil {
		return core.Budget{}, core.Persistence("get budget", notFound(err))
	}
	return b, nil
}

func (s *Store) ListBudgets(ctx context.Context, userID string) ([]core.Budget, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+budgetColumns+` FROM budgets WHERE user_id = ? ORDER BY lower(trim(category))`, userID)
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
			UPDATE budgets SET notified = 1, notified_period = ?
			WHERE id = ? AND NOT (notified = 1 AND notified_period = ?)`,
			p.Key(), budgetID, p.Key())
	} else {
		res, err = s.db.ExecContext(ctx, `
			UPDATE budgets SET notified = 0, notified_period = ''
			WHERE id = ? AND notified = 1 AND notified_period = ?`,
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
	err = s.db.QueryRowContext(ctx, `SELECT 1 FROM budgets WHERE id = ?`, budgetID).Scan(&exists)
	if err != nil {
		return false, core.Persistence("set notified flag", notFound(err))
	}
	return false, nil
}

func (s *Store) ResetStaleFlags(ctx context.Context, current core.Period) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE budgets SET notified = 0, notified_period = ''
		WHERE notified = 1 AND notified_period <> ?`, current.Key())
	if err != nil {
		return 0, core.Persistence("reset stale flags", err)
	}
	n, err := res.RowsAffected()
	return n, core.Persistence("reset stale flags", err)
}

func (s *Store) InsertNotification(ctx context.Context, n core.Notification) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (id, user_id, kind, message, created_at, is_read)
		VALUES (?, ?, ?, ?, ?, ?)`,
		n.ID, n.UserID, string(n.Kind), n.Message, toNanos(n.CreatedAt), boolInt(n.IsRead))
	return core.Persistence("insert notification", err)
}

func (s *Store) ListNotifications(ctx context.Context, userID string, unreadOnly bool) ([]core.Notification, error) {
	query := `SELECT id, user_id, kind, message, created_at, is_read FROM notifications WHERE user_id = ?`
	if unreadOnly {
		query += ` AND is_read = 0`
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, core.Persistence("list notifications", err)
	}
	defer rows.Close()

	var out []core.Notification
	for rows.Next() {
		var (
			n       core.Notification
			kind    string
			created int64
			read    int64
		)
		if err := rows.Scan(&n.ID, &n.UserID, &kind, &n.Message, &created, &read); err != nil {
			return nil, core.Persistence("scan notification", err)
		}
		n.Kind = core.NotificationKind(kind)
		n.CreatedAt = fromNanos(created)
		n.IsRead = read == 1
		out = append(out, n)
	}
	return out, core.Persistence("list notifications", rows.Err())
}

func (s *Store) MarkRead(ctx context.Context, userID, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET is_read = 1 WHERE id = ? AND user_id = ?`, id, userID)
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

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
