// Package fetcher downloads imagery and label archives over HTTP and FTP,
// unpacks ZIP archives and streams tabular files.
package fetcher

import (
	"context"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Fetcher downloads a remote resource.
type Fetcher interface {
	// Download returns the body of rawURL. The caller closes it.
	Download(ctx context.Context, rawURL string) (io.ReadCloser, error)
}

// Router dispatches a URL to the fetcher registered for its scheme.
type Router struct {
	HTTP Fetcher
	FTP  Fetcher
}

// For returns the fetcher for rawURL's scheme.
func (r Router) For(rawURL string) (Fetcher, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, eris.Wrap(err, "fetch: parse url")
	}
	switch u.Scheme {
	case "http", "https":
		if r.HTTP != nil {
			return r.HTTP, nil
		}
	case "ftp":
		if r.FTP != nil {
			return r.FTP, nil
		}
	}
	return nil, eris.Errorf("fetch: no fetcher for scheme %q", u.Scheme)
}

// DownloadToFile writes the body of rawURL to dest and returns the bytes
// written. A partial file is removed on failure.
func DownloadToFile(ctx context.Context, f Fetcher, rawURL, dest string) (int64, error) {
	body, err := f.Download(ctx, rawURL)
	if err != nil {
		return 0, err
	}
	defer body.Close() //nolint:errcheck

	tmp := dest + ".part"
	out, err := os.Create(tmp)
	if err != nil {
		return 0, eris.Wrap(err, "fetch: create file")
	}

	n, err := io.Copy(out, body)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return n, eris.Wrap(err, "fetch: write file")
	}
	if err := os.Rename(tmp, dest); err != nil {
		_ = os.Remove(tmp)
		return n, eris.Wrap(err, "fetch: rename file")
	}
	return n, nil
}

// MirrorOptions configures Mirror.
type MirrorOptions struct {
	Dir         string
	Concurrency int
	Extract     bool // unpack .zip downloads into Dir
	// ExtractExts limits extraction to these extensions, e.g. ShapefileExts.
	// Nil extracts every member.
	ExtractExts []string
}

// Mirror downloads every URL into opts.Dir concurrently and returns the local
// paths, in URL order. Extracted archive members replace the archive path.
func Mirror(ctx context.Context, r Router, urls []string, opts MirrorOptions) ([]string, error) {
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, eris.Wrap(err, "fetch: create output dir")
	}
	limit := opts.Concurrency
	if limit <= 0 {
		limit = 4
	}

	names, err := destNames(urls)
	if err != nil {
		return nil, err
	}

	results := make([][]string, len(urls))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i, raw := range urls {
		g.Go(func() error {
			f, err := r.For(raw)
			if err != nil {
				return err
			}
			dest := filepath.Join(opts.Dir, names[i])
			n, err := DownloadToFile(gctx, f, raw, dest)
			if err != nil {
				return eris.Wrapf(err, "fetch: %s", raw)
			}
			zap.L().Info("fetch: downloaded",
				zap.String("url", raw),
				zap.String("path", dest),
				zap.Int64("bytes", n),
			)

			if opts.Extract && strings.EqualFold(filepath.Ext(dest), ".zip") {
				files, err := ExtractZIPMatching(dest, opts.Dir, opts.ExtractExts)
				if err != nil {
					return err
				}
				results[i] = files
				return nil
			}
			results[i] = []string{dest}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []string
	for _, r := range results {
		out = append(out, r...)
	}
	return out, nil
}

// destNames picks a local file name per URL. URLs sharing a base name are
// named after their host and path instead; the same URL twice is an error.
func destNames(urls []string) ([]string, error) {
	names := make([]string, len(urls))
	count := make(map[string]int, len(urls))
	for i, raw := range urls {
		names[i] = baseName(raw)
		count[names[i]]++
	}
	seen := make(map[string]string, len(urls))
	for i, raw := range urls {
		if count[names[i]] > 1 {
			names[i] = qualifiedName(raw)
		}
		if prev, dup := seen[names[i]]; dup {
			return nil, eris.Errorf("fetch: %s and %s map to the same file %s", prev, raw, names[i])
		}
		seen[names[i]] = raw
	}
	return names, nil
}

// qualifiedName flattens host and path into one file name.
func qualifiedName(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "download"
	}
	p := strings.Trim(path.Clean("/"+u.Path), "/")
	name := strings.Trim(u.Hostname()+"_"+strings.ReplaceAll(p, "/", "_"), "_")
	if name == "" {
		return "download"
	}
	return name
}

func baseName(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || path.Base(u.Path) == "/" || path.Base(u.Path) == "." {
		return "download"
	}
	return path.Base(u.Path)
}
