package journal

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Execer runs a statement. *pgxpool.Pool and *pgx.Conn satisfy it.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// CreateTableSQL returns the DDL for the journal table.
func CreateTableSQL(table string) string {
	name := pgx.Identifier{table}.Sanitize()
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id          BIGSERIAL PRIMARY KEY,
	session_id  UUID NOT NULL,
	conn_id     UUID,
	seq         BIGINT NOT NULL,
	kind        TEXT NOT NULL,
	msg_type    TEXT,
	payload     BYTEA,
	close_code  INTEGER,
	close_text  TEXT,
	remote      BOOLEAN,
	error       TEXT,
	state       TEXT,
	at          TIMESTAMPTZ NOT NULL,
	UNIQUE (session_id, seq)
)`, name)
}

// EnsureSchema creates the journal table if it does not exist.
func EnsureSchema(ctx context.Context, db Execer, table string) error {
	if _, err := db.Exec(ctx, CreateTableSQL(table)); err != nil {
		return fmt.Errorf("create journal table %s: %w", table, err)
	}
	return nil
}
