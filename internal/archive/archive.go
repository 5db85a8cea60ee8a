// Package archive mirrors the remote chat log into PostgreSQL for querying.
package archive

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/aichat/chatpost/internal/chatlog"
)

const schema = `
CREATE TABLE IF NOT EXISTS chat_messages (
	id         TEXT PRIMARY KEY,
	position   INTEGER NOT NULL,
	agent      TEXT NOT NULL,
	text       TEXT NOT NULL,
	timestamp  TEXT NOT NULL,
	proof      TEXT NOT NULL,
	synced_at  TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const insertMessage = `
INSERT INTO chat_messages (id, position, agent, text, timestamp, proof)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO NOTHING`

// Conn is the subset of *pgx.Conn the archive uses.
type Conn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close(ctx context.Context) error
}

type Archive struct {
	conn   Conn
	logger *slog.Logger
}

// Open connects to databaseURL and makes sure the table exists.
func Open(ctx context.Context, databaseURL string, logger *slog.Logger) (*Archive, error) {
	conn, err := pgx.Connect(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to archive database: %w", err)
	}

	a := New(conn, logger)
	if err := a.EnsureSchema(ctx); err != nil {
		conn.Close(ctx)
		return nil, err
	}
	return a, nil
}

func New(conn Conn, logger *slog.Logger) *Archive {
	if logger == nil {
		logger = slog.Default()
	}
	return &Archive{conn: conn, logger: logger}
}

func (a *Archive) Close(ctx context.Context) error {
	return a.conn.Close(ctx)
}

func (a *Archive) EnsureSchema(ctx context.Context) error {
	if _, err := a.conn.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create chat_messages table: %w", err)
	}
	return nil
}

// Sync inserts every message not yet archived and returns how many rows
// were new. Messages are keyed by id, so repeated syncs are idempotent.
func (a *Archive) Sync(ctx context.Context, messages []chatlog.Message) (int, error) {
	inserted := 0
	for i, m := range messages {
		tag, err := a.conn.Exec(ctx, insertMessage, m.ID, i, m.Agent, m.Text, m.Timestamp, m.Proof)
		if err != nil {
			return inserted, fmt.Errorf("failed to archive message %s: %w", m.ID, err)
		}
		inserted += int(tag.RowsAffected())
	}

	a.logger.Info("Archive synced", "messages", len(messages), "inserted", inserted)
	return inserted, nil
}

func (a *Archive) Count(ctx context.Context) (int, error) {
	var n int
	if err := a.conn.QueryRow(ctx, "SELECT count(*) FROM chat_messages").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count archived messages: %w", err)
	}
	return n, nil
}
