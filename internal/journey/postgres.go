package journey

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratepostgres "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"
)

//go:embed migrations/*.sql
var migrations embed.FS

// PostgresLedger records every award as a row in journey_events.
type PostgresLedger struct {
	db     *sql.DB
	userID string
	loc    *time.Location
	now    func() time.Time
}

var _ Journey = (*PostgresLedger)(nil)

func NewPostgresLedger(connectionString, userID string, loc *time.Location) (*PostgresLedger, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &PostgresLedger{db: db, userID: userID, loc: loc, now: time.Now}, nil
}

// Migrate applies the embedded schema.
func (l *PostgresLedger) Migrate() error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("failed to read migrations: %w", err)
	}
	d, err := migratepostgres.WithInstance(l.db, &migratepostgres.Config{
		MigrationsTable: "journey_schema_migrations",
	})
	if err != nil {
		return fmt.Errorf("failed to prepare migrations: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", d)
	if err != nil {
		return fmt.Errorf("failed to prepare migrations: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to migrate journey schema: %w", err)
	}
	return nil
}

func (l *PostgresLedger) today() string {
	return dayOf(l.now(), l.loc).Format(dayLayout)
}

func (l *PostgresLedger) AddSessionCompletion(ctx context.Context) (int, error) {
	day := l.today()

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := insertEvent(ctx, tx, l.userID, EventKindSession, PointsPerSession, day); err != nil {
		return 0, err
	}

	var count int
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM journey_events
		WHERE user_id = $1 AND day = $2 AND kind = $3
	`, l.userID, day, EventKindSession).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count sessions: %w", err)
	}

	earned := PointsPerSession
	if count == BonusSessionCount {
		if err := insertEvent(ctx, tx, l.userID, EventKindBonus, BonusPoints, day); err != nil {
			return 0, err
		}
		earned += BonusPoints
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit session award: %w", err)
	}
	return earned, nil
}

func (l *PostgresLedger) AddTaskCompletion(ctx context.Context) (int, error) {
	if err := insertEvent(ctx, l.db, l.userID, EventKindTask, PointsPerTask, l.today()); err != nil {
		return 0, err
	}
	return PointsPerTask, nil
}

func (l *PostgresLedger) Summary(ctx context.Context) (Summary, error) {
	today := l.today()

	var total, todayPoints, sessions, tasks int
	err := l.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(points), 0),
			COALESCE(SUM(CASE WHEN day = $2 THEN points ELSE 0 END), 0),
			COUNT(*) FILTER (WHERE kind = 'session'),
			COUNT(*) FILTER (WHERE kind = 'task')
		FROM journey_events
		WHERE user_id = $1
	`, l.userID, today).Scan(&total, &todayPoints, &sessions, &tasks)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to summarize journey: %w", err)
	}

	rows, err := l.db.QueryContext(ctx, `
		SELECT DISTINCT to_char(day, 'YYYY-MM-DD') AS d
		FROM journey_events
		WHERE user_id = $1 AND kind = 'session'
		ORDER BY d DESC
		LIMIT 366
	`, l.userID)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to read active days: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var days []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return Summary{}, err
		}
		days = append(days, d)
	}
	if err := rows.Err(); err != nil {
		return Summary{}, err
	}

	return newSummary(total, todayPoints, sessions, tasks, streak(days, dayOf(l.now(), l.loc))), nil
}

func (l *PostgresLedger) Close() error {
	return l.db.Close()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertEvent(ctx context.Context, db execer, userID, kind string, points int, day string) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO journey_events (user_id, kind, points, day)
		VALUES ($1, $2, $3, $4)
	`, userID, kind, points, day)
	if err != nil {
		return fmt.Errorf("failed to record %s award: %w", kind, err)
	}
	return nil
}
