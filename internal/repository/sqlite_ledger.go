package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"

	"slack-ai-bridge/internal/domain"
	"slack-ai-bridge/internal/logger"
	"slack-ai-bridge/internal/repository/migrations"

	_ "modernc.org/sqlite" //revive:disable:blank-imports
)

// SQLiteLedger is the event ledger used by the local serve mode. The same
// conditional-write rules as DynamoLedger are enforced in SQL.
type SQLiteLedger struct {
	db  *sqlx.DB
	now func() time.Time
}

// OpenSQLiteLedger connects to the database at path and applies migrations.
func OpenSQLiteLedger(path string) (*SQLiteLedger, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("repository: sqlite path must not be empty")
	}
	db, err := sqlx.Connect("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("repository: connect sqlite: %w", err)
	}
	// single writer; also keeps ":memory:" on one connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyMigrations(db.DB); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("close sqlite after migration failure", "error", closeErr)
		}
		return nil, err
	}
	return &SQLiteLedger{db: db, now: time.Now}, nil
}

func applyMigrations(db *sql.DB) error {
	src, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("repository: migration source: %w", err)
	}
	drv, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("repository: migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", drv)
	if err != nil {
		return fmt.Errorf("repository: migrate instance: %w", err)
	}
	// m.Close would close db as well
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("repository: apply migrations: %w", err)
	}
	return nil
}

func (l *SQLiteLedger) Close() error {
	return l.db.Close()
}

func (l *SQLiteLedger) Claim(ctx context.Context, rec domain.EventRecord) (bool, error) {
	if rec.EventID == "" {
		return false, domain.NewError(domain.ErrLedgerUnavailable, "missing_event_id", nil)
	}
	if rec.CreatedAt == 0 {
		rec.CreatedAt = l.now().UnixMilli()
	}
	rec.Status = domain.StatusProcessing
	rec.AIResponse = nil

	res, err := l.db.NamedExecContext(ctx, `
		INSERT INTO event_records (event_id, status, user_id, channel_id, thread_id, user_message, created_at)
		VALUES (:event_id, :status, :user_id, :channel_id, :thread_id, :user_message, :created_at)
		ON CONFLICT(event_id) DO NOTHING`, rec)
	if err != nil {
		return false, domain.NewError(domain.ErrLedgerUnavailable, "sqlite_insert", fmt.Errorf("repository: Claim: %w", err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, domain.NewError(domain.ErrLedgerUnavailable, "sqlite_rows_affected", fmt.Errorf("repository: Claim: %w", err))
	}
	return n == 1, nil
}

func (l *SQLiteLedger) Complete(ctx context.Context, eventID, response string) error {
	res, err := l.db.ExecContext(ctx, `
		UPDATE event_records
		SET status = ?, ai_response = ?, completed_at = ?
		WHERE event_id = ? AND status = ?`,
		domain.StatusCompleted, response, l.now().UnixMilli(), eventID, domain.StatusProcessing)
	if err != nil {
		return domain.NewError(domain.ErrLedgerUnavailable, "sqlite_update", fmt.Errorf("repository: Complete: %w", err))
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		logger.FromContext(ctx).Warn("ledger record not in processing state, completion skipped",
			slog.String("event_id", eventID))
	}
	return nil
}

func (l *SQLiteLedger) Get(ctx context.Context, eventID string) (domain.EventRecord, bool, error) {
	var rec domain.EventRecord
	err := l.db.GetContext(ctx, &rec, `
		SELECT event_id, status, user_id, channel_id, thread_id, user_message, ai_response, created_at
		FROM event_records WHERE event_id = ?`, eventID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.EventRecord{}, false, nil
	}
	if err != nil {
		return domain.EventRecord{}, false, domain.NewError(domain.ErrLedgerUnavailable, "sqlite_select", fmt.Errorf("repository: Get: %w", err))
	}
	return rec, true, nil
}
