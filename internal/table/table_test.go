package table

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
)

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name    string
		columns []string
		rows    [][]string
		wantErr string
	}{
		{name: "no columns", wantErr: "no columns"},
		{name: "duplicate", columns: []string{"a", "a"}, wantErr: `duplicate column "a"`},
		{name: "ragged row", columns: []string{"a", "b"}, rows: [][]string{{"1"}}, wantErr: "row 0 has 1 cells"},
		{name: "ok", columns: []string{"a"}, rows: [][]string{{"1"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.columns, tt.rows)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestColumn_Invalid(t *testing.T) {
	tbl := Sample()
	_, err := tbl.Column("nonexistent_col")
	require.Error(t, err)

	var ice *InvalidColumnError
	require.True(t, errors.As(err, &ice))
	assert.Equal(t, "nonexistent_col", ice.Column)
	assert.Equal(t, []string{"Country", "Region", "Staple Food", "Preferred Cuisine", "Climate"}, ice.Available)
	assert.Contains(t, err.Error(), "Preferred Cuisine")
}

func TestNew_DoesNotAlias(t *testing.T) {
	rows := [][]string{{"x"}}
	tbl, err := New([]string{"a"}, rows)
	require.NoError(t, err)
	rows[0][0] = "changed"

	col, err := tbl.Column("a")
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, col)
}

func TestSelect(t *testing.T) {
	tbl := Sample()
	sub, err := tbl.Select("Climate", "Country")
	require.NoError(t, err)
	assert.Equal(t, []string{"Climate", "Country"}, sub.Columns())
	assert.Equal(t, []string{"Temperate", "Japan"}, sub.Row(0))
	assert.Equal(t, 12, sub.Len())

	_, err = tbl.Select("nope")
	require.Error(t, err)
}

func TestFromRecords(t *testing.T) {
	tbl, err := FromRecords([]map[string]string{
		{"b": "1", "a": "x"},
		{"a": "y", "b": "2"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, tbl.Columns())
	assert.Equal(t, []string{"y", "2"}, tbl.Row(1))

	_, err = FromRecords([]map[string]string{{"a": "1"}, {"b": "2"}})
	require.Error(t, err)

	_, err = FromRecords(nil)
	require.Error(t, err)
}

func TestReadCSV(t *testing.T) {
	in := "alcohol,malic_acid,target\n14.23, 1.71,0\n13.2,1.78,0\n12.37,0.94,1\n"
	tbl, err := ReadCSV(context.Background(), strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, []string{"alcohol", "malic_acid", "target"}, tbl.Columns())
	assert.Equal(t, 3, tbl.Len())
	assert.Equal(t, []string{"14.23", "1.71", "0"}, tbl.Row(0))
}

func TestReadCSV_Empty(t *testing.T) {
	_, err := ReadCSV(context.Background(), strings.NewReader(""))
	require.Error(t, err)
}

func TestReadXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.xlsx")
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Sheet1")
	require.NoError(t, err)
	for _, r := range [][]string{{"Country", "Climate"}, {"Japan", "Temperate"}, {"USA", "Arid"}} {
		row := sheet.AddRow()
		for _, v := range r {
			row.AddCell().SetString(v)
		}
	}
	require.NoError(t, f.Save(path))

	tbl, err := ReadXLSX(path, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"Country", "Climate"}, tbl.Columns())
	assert.Equal(t, 2, tbl.Len())
	col, err := tbl.Column("Climate")
	require.NoError(t, err)
	assert.Equal(t, []string{"Temperate", "Arid"}, col)
}

func TestReadFile(t *testing.T) {
	tbl, err := ReadFile(context.Background(), "sample")
	require.NoError(t, err)
	assert.Equal(t, 12, tbl.Len())

	path := filepath.Join(t.TempDir(), "d.csv")
	require.NoError(t, os.WriteFile(path, []byte("a,b\n1,2\n"), 0o644))
	tbl, err = ReadFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 1, tbl.Len())

	_, err = ReadFile(context.Background(), "data.parquet")
	require.Error(t, err)
}
