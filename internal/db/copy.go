// Package db holds the pgx pool contract and COPY helpers for the PostGIS sink.
package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// CopyFrom bulk-inserts rows into table with the COPY protocol.
func CopyFrom(ctx context.Context, pool Pool, table string, columns []string, rows [][]any) (int64, error) {
	return copyRows(ctx, pool, pgx.Identifier{table}, columns, rows)
}

// CopyFromSchema bulk-inserts rows into schema.table with the COPY protocol.
func CopyFromSchema(ctx context.Context, pool Pool, schema, table string, columns []string, rows [][]any) (int64, error) {
	return copyRows(ctx, pool, pgx.Identifier{schema, table}, columns, rows)
}

func copyRows(ctx context.Context, pool Pool, ident pgx.Identifier, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	n, err := pool.CopyFrom(ctx, ident, columns, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, eris.Wrapf(err, "db: COPY INTO %s", ident.Sanitize())
	}
	if n != int64(len(rows)) {
		return n, eris.Errorf("db: COPY INTO %s wrote %d of %d rows", ident.Sanitize(), n, len(rows))
	}
	return n, nil
}
