package labels

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/ewkb"
	"go.uber.org/zap"

	"github.com/sells-group/landcover-cli/internal/db"
)

// postgisColumns are the COPY target columns, in row order.
var postgisColumns = []string{"category", "code", "source", "geom"}

// EnsurePostGISTable creates schema.table if it does not exist.
func EnsurePostGISTable(ctx context.Context, pool db.Pool, schema, table string, srid int) error {
	stmts := []string{
		fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", pgx.Identifier{schema}.Sanitize()),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id       BIGSERIAL PRIMARY KEY,
	category TEXT NOT NULL,
	code     INTEGER NOT NULL,
	source   TEXT,
	geom     geometry(Geometry, %d) NOT NULL
)`, pgx.Identifier{schema, table}.Sanitize(), srid),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s USING GIST (geom)",
			pgx.Identifier{"idx_" + table + "_geom"}.Sanitize(), pgx.Identifier{schema, table}.Sanitize()),
	}
	for _, s := range stmts {
		if _, err := pool.Exec(ctx, s); err != nil {
			return eris.Wrapf(err, "labels: prepare %s.%s", schema, table)
		}
	}
	return nil
}

// ExportPostGIS creates the target table if needed and COPYs every feature
// into it as EWKB.
func ExportPostGIS(ctx context.Context, pool db.Pool, schema, table string, coll *Collection) (int64, error) {
	if err := EnsurePostGISTable(ctx, pool, schema, table, coll.SRID()); err != nil {
		return 0, err
	}

	rows := make([][]any, 0, coll.Len())
	for i := 0; i < coll.Len(); i++ {
		f := coll.At(i)
		g := withSRID(f.Geometry, coll.SRID())
		data, err := ewkb.Marshal(g, ewkb.NDR)
		if err != nil {
			return 0, eris.Wrapf(err, "labels: encode feature %d", i)
		}
		rows = append(rows, []any{f.Category, f.Code, f.Source, data})
	}

	n, err := db.CopyFromSchema(ctx, pool, schema, table, postgisColumns, rows)
	if err != nil {
		return n, err
	}
	zap.L().Info("labels: exported to postgis",
		zap.String("table", schema+"."+table),
		zap.Int64("rows", n),
	)
	return n, nil
}
