package fetcher

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// ExtractZIP unpacks every file in zipPath into destDir and returns the
// extracted paths in archive order.
func ExtractZIP(zipPath, destDir string) ([]string, error) {
	return ExtractZIPMatching(zipPath, destDir, nil)
}

// ExtractZIPMatching unpacks the files whose extension (case-insensitive) is
// in exts. A nil exts extracts everything. Shapefile archives are unpacked
// with exts {".shp", ".shx", ".dbf", ".prj", ".cpg"}.
func ExtractZIPMatching(zipPath, destDir string, exts []string) ([]string, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, eris.Wrap(err, "zip: open archive")
	}
	defer r.Close() //nolint:errcheck

	want := make(map[string]bool, len(exts))
	for _, e := range exts {
		want[strings.ToLower(e)] = true
	}

	var extracted []string
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if len(want) > 0 && !want[strings.ToLower(filepath.Ext(f.Name))] {
			continue
		}
		p, err := extractEntry(f, destDir)
		if err != nil {
			return extracted, err
		}
		extracted = append(extracted, p)
	}
	return extracted, nil
}

// ShapefileExts lists the sidecar extensions a shapefile reader needs.
var ShapefileExts = []string{".shp", ".shx", ".dbf", ".prj", ".cpg"}

func extractEntry(f *zip.File, destDir string) (string, error) {
	destPath := filepath.Join(destDir, f.Name)
	if !strings.HasPrefix(filepath.Clean(destPath), filepath.Clean(destDir)+string(os.PathSeparator)) {
		return "", eris.Errorf("zip: illegal path %q (zip slip attempt)", f.Name)
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return "", eris.Wrap(err, "zip: create parent directory")
	}

	rc, err := f.Open()
	if err != nil {
		return "", eris.Wrap(err, "zip: open entry")
	}
	defer rc.Close() //nolint:errcheck

	out, err := os.Create(destPath)
	if err != nil {
		return "", eris.Wrap(err, "zip: create file")
	}
	if _, err := io.Copy(out, rc); err != nil {
		_ = out.Close()
		return "", eris.Wrap(err, "zip: write file")
	}
	return destPath, eris.Wrap(out.Close(), "zip: close file")
}
