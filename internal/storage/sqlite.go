package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"memobot/internal/intent"
	logx "memobot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (ReminderStore, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) CreateReminder(ctx context.Context, n NewReminder) (Reminder, error) {
	rec := n.Recurrence
	if rec == "" {
		rec = intent.None
	}
	r := Reminder{
		ID:          uuid.NewString(),
		UserID:      n.UserID,
		Channel:     n.Channel,
		Task:        n.Task,
		ScheduledAt: n.ScheduledAt.UTC(),
		Recurrence:  rec,
		Status:      StatusPending,
		CreatedAt:   time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reminders(id, user_id, channel, task, scheduled_at, recurrence, status, created_at)
		 VALUES(?,?,?,?,?,?,?,?)`,
		r.ID, r.UserID, r.Channel, r.Task, r.ScheduledAt.UnixMilli(), string(r.Recurrence),
		string(r.Status), r.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return Reminder{}, fmt.Errorf("create reminder: %w", err)
	}
	return r, nil
}

const reminderColumns = `id, user_id, channel, task, scheduled_at, recurrence, status, failure_reason, created_at, completed_at`

func (s *sqliteStore) GetReminder(ctx context.Context, id string) (Reminder, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+reminderColumns+` FROM reminders WHERE id = ?`, id)
	r, err := scanReminder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Reminder{}, ErrNotFound
	}
	return r, err
}

func (s *sqliteStore) ListPending(ctx context.Context, userID int64) ([]Reminder, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+reminderColumns+` FROM reminders
		 WHERE user_id = ? AND status = ? ORDER BY scheduled_at`, userID, string(StatusPending))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectReminders(rows)
}

func (s *sqliteStore) PendingBefore(ctx context.Context, cutoff time.Time) ([]Reminder, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+reminderColumns+` FROM reminders
		 WHERE status = ? AND scheduled_at <= ? ORDER BY scheduled_at`,
		string(StatusPending), cutoff.UnixMilli())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectReminders(rows)
}

// Transition performs the conditional read-check-write as one UPDATE so the
// no-op guard has no window between read and write.
func (s *sqliteStore) Transition(ctx context.Context, id string, from, to Status, reason string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE reminders SET status = ?, failure_reason = ?, completed_at = ?
		 WHERE id = ? AND status = ?`,
		string(to), nullStr(reason), completedAt(to), id, string(from))
	if err != nil {
		return false, fmt.Errorf("transition reminder: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *sqliteStore) SetStatus(ctx context.Context, id string, to Status, reason string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE reminders SET status = ?, failure_reason = ?, completed_at = ? WHERE id = ?`,
		string(to), nullStr(reason), completedAt(to), id)
	if err != nil {
		return fmt.Errorf("set status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *sqliteStore) Reschedule(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE reminders SET scheduled_at = ?, status = ?, failure_reason = NULL, completed_at = NULL
		 WHERE id = ?`,
		at.UnixMilli(), string(StatusPending), id)
	if err != nil {
		return fmt.Errorf("reschedule reminder: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *sqliteStore) UserTimezone(ctx context.Context, userID int64) (string, error) {
	var tz string
	err := s.db.QueryRowContext(ctx,
		`SELECT timezone FROM user_settings WHERE user_id = ?`, userID).Scan(&tz)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return tz, err
}

func (s *sqliteStore) SetUserTimezone(ctx context.Context, userID int64, tz string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_settings(user_id, timezone) VALUES(?,?)
		 ON CONFLICT(user_id) DO UPDATE SET timezone=excluded.timezone`,
		userID, tz)
	return err
}

func (s *sqliteStore) EraseUser(ctx context.Context, userID int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM reminders WHERE user_id = ?`, userID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM user_settings WHERE user_id = ?`, userID)
	return err
}

// ---- row helpers ----

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReminder(row rowScanner) (Reminder, error) {
	var (
		r           Reminder
		scheduledAt int64
		createdAt   int64
		recurrence  string
		status      string
		reason      sql.NullString
		completed   sql.NullInt64
	)
	err := row.Scan(&r.ID, &r.UserID, &r.Channel, &r.Task, &scheduledAt,
		&recurrence, &status, &reason, &createdAt, &completed)
	if err != nil {
		return Reminder{}, err
	}
	r.ScheduledAt = time.UnixMilli(scheduledAt).UTC()
	r.CreatedAt = time.UnixMilli(createdAt).UTC()
	r.Recurrence = intent.Recurrence(recurrence)
	r.Status = Status(status)
	r.FailureReason = reason.String
	if completed.Valid {
		r.CompletedAt = time.UnixMilli(completed.Int64).UTC()
	}
	return r, nil
}

func collectReminders(rows *sql.Rows) ([]Reminder, error) {
	var out []Reminder
	for rows.Next() {
		r, err := scanReminder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func completedAt(to Status) any {
	if to.Terminal() {
		return time.Now().UnixMilli()
	}
	return nil
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
