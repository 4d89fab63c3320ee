package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/roach88/syncq/internal/querysql"
)

const (
	postgresDocumentsTableName = "syncq_documents"
	postgresOperationTimeout   = 5 * time.Second
)

type sqlOpenFunc func(driverName, dsn string) (*sql.DB, error)

// PostgresStore is the server document store backend. Documents are kept
// in a jsonb column; Commit locks each touched row with SELECT ... FOR UPDATE.
type PostgresStore struct {
	sqlBackend
	tableName string
}

// OpenPostgres connects to dsn and creates the documents table if needed.
func OpenPostgres(dsn string) (*PostgresStore, error) {
	return openPostgres(dsn, postgresDocumentsTableName, sql.Open)
}

func openPostgres(dsn, tableName string, openDB sqlOpenFunc) (*PostgresStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("postgres: empty dsn")
	}
	db, err := openDB("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), postgresOperationTimeout)
	defer cancel()

	table := postgresQuoteIdentifier(tableName)
	ddl := []string{
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				collection TEXT NOT NULL,
				id TEXT NOT NULL,
				data JSONB NOT NULL,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				PRIMARY KEY (collection, id)
			)`, table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (collection, (data->>'userId'), (data->>'status'))`,
			postgresQuoteIdentifier(tableName+"_user_status"), table),
	}
	for _, stmt := range ddl {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("postgres: ensure schema: %w", err)
		}
	}

	compiler := querysql.NewCompiler(querysql.Postgres)
	compiler.Table = table
	return &PostgresStore{
		sqlBackend: sqlBackend{
			db:       db,
			compiler: compiler,
			stmts: sqlStatements{
				get:       fmt.Sprintf("SELECT data FROM %s WHERE collection = $1 AND id = $2", table),
				getLocked: fmt.Sprintf("SELECT data FROM %s WHERE collection = $1 AND id = $2 FOR UPDATE", table),
				upsert: fmt.Sprintf(`
					INSERT INTO %s (collection, id, data, updated_at)
					VALUES ($1, $2, $3::jsonb, NOW())
					ON CONFLICT (collection, id)
					DO UPDATE SET data = EXCLUDED.data, updated_at = NOW()`, table),
				delete: fmt.Sprintf("DELETE FROM %s WHERE collection = $1 AND id = $2", table),
			},
		},
		tableName: tableName,
	}, nil
}

func postgresQuoteIdentifier(identifier string) string {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return "\"\""
	}
	return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`
}
