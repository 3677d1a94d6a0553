package table

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/landcover-cli/internal/fetcher"
)

// ReadCSV reads a headed CSV stream into a table.
func ReadCSV(ctx context.Context, r io.Reader) (*Table, error) {
	headerCh := make(chan []string, 1)
	rowCh, errCh := fetcher.StreamCSV(ctx, r, fetcher.CSVOptions{
		HasHeader: true,
		HeaderCh:  headerCh,
		TrimSpace: true,
	})

	var rows [][]string
	for row := range rowCh {
		rows = append(rows, row)
	}
	if err := <-errCh; err != nil {
		return nil, eris.Wrap(err, "table: read csv")
	}

	select {
	case header := <-headerCh:
		return New(header, rows)
	default:
		return nil, eris.New("table: csv has no header row")
	}
}

// ReadXLSX reads a sheet whose first row is the header. An empty sheet name
// selects the first sheet.
func ReadXLSX(path, sheet string) (*Table, error) {
	rows, err := fetcher.ReadXLSX(path, fetcher.XLSXOptions{SheetName: sheet})
	if err != nil {
		return nil, eris.Wrapf(err, "table: read xlsx %s", path)
	}
	if len(rows) == 0 {
		return nil, eris.Errorf("table: %s has no header row", path)
	}

	header := rows[0]
	body := make([][]string, 0, len(rows)-1)
	for _, r := range rows[1:] {
		// xlsx drops trailing empty cells
		for len(r) < len(header) {
			r = append(r, "")
		}
		body = append(body, r[:len(header)])
	}
	return New(header, body)
}

// ReadFile picks a reader from the file extension. The literal name "sample"
// returns the built-in table.
func ReadFile(ctx context.Context, path string) (*Table, error) {
	if path == "" || path == "sample" {
		return Sample(), nil
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return ReadXLSX(path, "")
	case ".csv", ".txt":
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrapf(err, "table: open %s", path)
		}
		defer f.Close() //nolint:errcheck
		return ReadCSV(ctx, f)
	default:
		return nil, eris.Errorf("table: unsupported file type %q", filepath.Ext(path))
	}
}
