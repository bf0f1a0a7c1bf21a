package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/dtroode/puricare-client/internal/database"
)

// Open connects to PostgreSQL through the pgx database/sql driver and
// brings the schema up to date.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	if err := database.Migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return db, nil
}

// pgxListener receives notifications on a dedicated connection; LISTEN is
// session-scoped, so it can't go through the database/sql pool.
type pgxListener struct {
	dsn  string
	conn *pgx.Conn
}

// NewListener creates a Listener for dsn.
func NewListener(dsn string) Listener {
	return &pgxListener{dsn: dsn}
}

func (l *pgxListener) Listen(ctx context.Context, channel string) error {
	conn, err := pgx.Connect(ctx, l.dsn)
	if err != nil {
		return fmt.Errorf("failed to connect listener: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{channel}.Sanitize()); err != nil {
		conn.Close(ctx)
		return fmt.Errorf("failed to listen on %s: %w", channel, err)
	}
	l.conn = conn
	return nil
}

func (l *pgxListener) WaitForNotification(ctx context.Context) (string, error) {
	n, err := l.conn.WaitForNotification(ctx)
	if err != nil {
		return "", err
	}
	return n.Payload, nil
}

func (l *pgxListener) Close(ctx context.Context) error {
	if l.conn == nil {
		return nil
	}
	return l.conn.Close(ctx)
}
