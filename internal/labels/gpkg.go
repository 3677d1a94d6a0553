package labels

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkb"
	_ "modernc.org/sqlite"

	"github.com/sells-group/landcover-cli/internal/geo"
)

// DefaultLayer is the feature table written to GeoPackages.
const DefaultLayer = "labels"

// gpkgApplicationID is "GPKG" as a big-endian int32.
const gpkgApplicationID = 0x47504B47

const gpkgSchema = `
CREATE TABLE gpkg_spatial_ref_sys (
	srs_name                 TEXT NOT NULL,
	srs_id                   INTEGER PRIMARY KEY,
	organization             TEXT NOT NULL,
	organization_coordsys_id INTEGER NOT NULL,
	definition               TEXT NOT NULL,
	description              TEXT
);
CREATE TABLE gpkg_contents (
	table_name  TEXT NOT NULL PRIMARY KEY,
	data_type   TEXT NOT NULL,
	identifier  TEXT UNIQUE,
	description TEXT DEFAULT '',
	last_change DATETIME NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
	min_x       DOUBLE,
	min_y       DOUBLE,
	max_x       DOUBLE,
	max_y       DOUBLE,
	srs_id      INTEGER REFERENCES gpkg_spatial_ref_sys(srs_id)
);
CREATE TABLE gpkg_geometry_columns (
	table_name         TEXT NOT NULL REFERENCES gpkg_contents(table_name),
	column_name        TEXT NOT NULL,
	geometry_type_name TEXT NOT NULL,
	srs_id             INTEGER NOT NULL REFERENCES gpkg_spatial_ref_sys(srs_id),
	z                  TINYINT NOT NULL,
	m                  TINYINT NOT NULL,
	PRIMARY KEY (table_name, column_name)
);
INSERT INTO gpkg_spatial_ref_sys VALUES
	('Undefined cartesian SRS', -1, 'NONE', -1, 'undefined', NULL),
	('Undefined geographic SRS', 0, 'NONE', 0, 'undefined', NULL);
`

// WriteGPKG writes coll as a GeoPackage feature table named layer.
func WriteGPKG(ctx context.Context, path, layer string, coll *Collection) (err error) {
	if layer == "" {
		layer = DefaultLayer
	}
	bounds, err := geo.TotalBounds(collectionGeoms(coll)...)
	if err != nil {
		return eris.Wrap(err, "labels: gpkg extent")
	}

	tmp := filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+".tmp")
	_ = os.Remove(tmp)
	db, err := sql.Open("sqlite", tmp)
	if err != nil {
		return eris.Wrap(err, "labels: open gpkg")
	}
	defer func() {
		_ = db.Close()
		if err != nil {
			_ = os.Remove(tmp)
		}
	}()

	for _, pragma := range []string{
		fmt.Sprintf("PRAGMA application_id=%d", gpkgApplicationID),
		"PRAGMA user_version=10300",
	} {
		if _, err = db.ExecContext(ctx, pragma); err != nil {
			return eris.Wrapf(err, "labels: exec %s", pragma)
		}
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "labels: begin gpkg")
	}
	defer func() { _ = tx.Rollback() }()

	if _, err = tx.ExecContext(ctx, gpkgSchema); err != nil {
		return eris.Wrap(err, "labels: gpkg schema")
	}

	if err = insertSRS(ctx, tx, coll.SRID()); err != nil {
		return err
	}

	quoted := quoteIdent(layer)
	create := fmt.Sprintf(`CREATE TABLE %s (
	fid      INTEGER PRIMARY KEY AUTOINCREMENT,
	geom     GEOMETRY,
	category TEXT NOT NULL,
	code     INTEGER NOT NULL,
	source   TEXT
)`, quoted)
	if _, err = tx.ExecContext(ctx, create); err != nil {
		return eris.Wrapf(err, "labels: create gpkg table %s", layer)
	}
	if _, err = tx.ExecContext(ctx,
		`INSERT INTO gpkg_contents (table_name, data_type, identifier, last_change, min_x, min_y, max_x, max_y, srs_id)
		 VALUES (?, 'features', ?, ?, ?, ?, ?, ?, ?)`,
		layer, layer, time.Now().UTC().Format("2006-01-02T15:04:05.000Z"),
		bounds.MinX, bounds.MinY, bounds.MaxX, bounds.MaxY, coll.SRID(),
	); err != nil {
		return eris.Wrap(err, "labels: register gpkg contents")
	}
	if _, err = tx.ExecContext(ctx,
		`INSERT INTO gpkg_geometry_columns VALUES (?, 'geom', 'GEOMETRY', ?, 0, 0)`,
		layer, coll.SRID(),
	); err != nil {
		return eris.Wrap(err, "labels: register gpkg geometry column")
	}

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`INSERT INTO %s (geom, category, code, source) VALUES (?, ?, ?, ?)`, quoted))
	if err != nil {
		return eris.Wrap(err, "labels: prepare gpkg insert")
	}
	defer func() { _ = stmt.Close() }()

	for i := 0; i < coll.Len(); i++ {
		f := coll.At(i)
		blob, encErr := EncodeGPKGGeometry(f.Geometry, coll.SRID())
		if encErr != nil {
			err = eris.Wrapf(encErr, "labels: feature %d", i)
			return err
		}
		if _, err = stmt.ExecContext(ctx, blob, f.Category, f.Code, f.Source); err != nil {
			return eris.Wrapf(err, "labels: insert feature %d", i)
		}
	}

	if err = tx.Commit(); err != nil {
		return eris.Wrap(err, "labels: commit gpkg")
	}
	if err = db.Close(); err != nil {
		return eris.Wrap(err, "labels: close gpkg")
	}
	if err = os.Rename(tmp, path); err != nil {
		return eris.Wrapf(err, "labels: rename into %s", path)
	}
	return nil
}

func insertSRS(ctx context.Context, tx *sql.Tx, srid int) error {
	if srid <= 0 {
		return nil
	}
	def, prjErr := geo.PRJ(srid)
	if prjErr != nil {
		def = "undefined"
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO gpkg_spatial_ref_sys VALUES (?, ?, 'EPSG', ?, ?, NULL)`,
		fmt.Sprintf("EPSG:%d", srid), srid, srid, def,
	)
	return eris.Wrapf(err, "labels: register EPSG:%d", srid)
}

func collectionGeoms(coll *Collection) []geom.T {
	out := make([]geom.T, coll.Len())
	for i := range out {
		out[i] = coll.At(i).Geometry
	}
	return out
}

// EncodeGPKGGeometry prefixes the WKB of g with a little-endian GeoPackage
// header carrying srid and the xy envelope.
func EncodeGPKGGeometry(g geom.T, srid int) ([]byte, error) {
	body, err := wkb.Marshal(g, wkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "labels: encode wkb")
	}

	var buf bytes.Buffer
	buf.WriteString("GP")
	buf.WriteByte(0)

	flags := byte(0x01) // little endian
	var envelope []float64
	if g.Empty() {
		flags |= 0x10
	} else {
		b := geom.NewBounds(geom.XY).Extend(g)
		flags |= 1 << 1
		envelope = []float64{b.Min(0), b.Max(0), b.Min(1), b.Max(1)}
	}
	buf.WriteByte(flags)
	_ = binary.Write(&buf, binary.LittleEndian, int32(srid))
	_ = binary.Write(&buf, binary.LittleEndian, envelope)
	buf.Write(body)
	return buf.Bytes(), nil
}

// DecodeGPKGGeometry parses a GeoPackage geometry blob.
func DecodeGPKGGeometry(blob []byte) (geom.T, int, error) {
	if len(blob) < 8 || blob[0] != 'G' || blob[1] != 'P' {
		return nil, 0, eris.New("labels: not a gpkg geometry")
	}
	flags := blob[3]
	var order binary.ByteOrder = binary.BigEndian
	if flags&0x01 == 1 {
		order = binary.LittleEndian
	}
	srid := int(int32(order.Uint32(blob[4:8])))

	envelopeSize := map[byte]int{0: 0, 1: 32, 2: 48, 3: 48, 4: 64}
	size, ok := envelopeSize[(flags>>1)&0x07]
	if !ok || len(blob) < 8+size {
		return nil, 0, eris.Errorf("labels: bad gpkg envelope flags %#x", flags)
	}
	g, err := wkb.Unmarshal(blob[8+size:])
	if err != nil {
		return nil, 0, eris.Wrap(err, "labels: decode wkb")
	}
	return setSRID(g, srid), srid, nil
}

// ReadGPKG reads a GeoPackage feature table. An empty layer selects the
// first features table listed in gpkg_contents.
func ReadGPKG(ctx context.Context, path, layer string, opts ReadOptions) (*Source, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, eris.Wrapf(err, "labels: open %s", path)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrapf(err, "labels: open %s", path)
	}
	defer func() { _ = db.Close() }()

	if layer == "" {
		err = db.QueryRowContext(ctx,
			`SELECT table_name FROM gpkg_contents WHERE data_type = 'features' ORDER BY table_name LIMIT 1`,
		).Scan(&layer)
		if err != nil {
			return nil, eris.Wrapf(err, "labels: find feature table in %s", path)
		}
	}

	var geomCol string
	var srid int
	err = db.QueryRowContext(ctx,
		`SELECT column_name, srs_id FROM gpkg_geometry_columns WHERE table_name = ?`, layer,
	).Scan(&geomCol, &srid)
	if err != nil {
		return nil, eris.Wrapf(err, "labels: geometry column of %s", layer)
	}
	if opts.SRID != 0 {
		srid = opts.SRID
	}

	rows, err := db.QueryContext(ctx, "SELECT * FROM "+quoteIdent(layer))
	if err != nil {
		return nil, eris.Wrapf(err, "labels: query %s", layer)
	}
	defer func() { _ = rows.Close() }()

	cols, err := rows.Columns()
	if err != nil {
		return nil, eris.Wrap(err, "labels: gpkg columns")
	}
	src := &Source{Name: filepath.Base(path), SRID: srid, CategoryField: opts.categoryField()}
	for _, c := range cols {
		if c != geomCol {
			src.Fields = append(src.Fields, c)
		}
	}

	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, eris.Wrap(err, "labels: scan gpkg row")
		}
		rec := Record{Attributes: make(map[string]string, len(cols)-1)}
		for i, c := range cols {
			if c == geomCol {
				blob, ok := vals[i].([]byte)
				if !ok {
					return nil, eris.Errorf("labels: %s.%s is %T, want blob", layer, c, vals[i])
				}
				g, _, err := DecodeGPKGGeometry(blob)
				if err != nil {
					return nil, err
				}
				rec.Geometry = setSRID(g, srid)
				continue
			}
			rec.Attributes[c] = sqlString(vals[i])
		}
		src.Records = append(src.Records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "labels: iterate gpkg rows")
	}
	return src, nil
}

// quoteIdent quotes a SQL identifier, doubling embedded quotes.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func sqlString(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(v)
	case string:
		return v
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case time.Time:
		return v.Format(time.RFC3339)
	}
	return fmt.Sprint(v)
}
