package fetcher

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/landcover-cli/internal/resilience"
)

func fastRetry() resilience.RetryConfig {
	return resilience.RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
	}
}

func TestHTTPFetcher_Download(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte("band data"))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(HTTPOptions{UserAgent: "test-agent", Retry: fastRetry(), RatePerHost: 100})
	body, err := f.Download(context.Background(), srv.URL+"/LC08_SR_B4.TIF")
	require.NoError(t, err)
	defer body.Close() //nolint:errcheck

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "band data", string(data))
}

func TestHTTPFetcher_RetriesTransientStatus(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(HTTPOptions{Retry: fastRetry(), RatePerHost: 100})
	body, err := f.Download(context.Background(), srv.URL)
	require.NoError(t, err)
	_ = body.Close()
	assert.Equal(t, int32(3), calls.Load())
}

func TestHTTPFetcher_NoRetryOnNotFound(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := NewHTTPFetcher(HTTPOptions{Retry: fastRetry(), RatePerHost: 100})
	_, err := f.Download(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 404")
	assert.Equal(t, int32(1), calls.Load())
}

func TestHTTPFetcher_LimiterPerHost(t *testing.T) {
	f := NewHTTPFetcher(HTTPOptions{})
	a := f.limiterFor("a.example.com")
	assert.Same(t, a, f.limiterFor("a.example.com"))
	assert.NotSame(t, a, f.limiterFor("b.example.com"))
}

func TestDownloadToFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("hello"))
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "out.bin")
	f := NewHTTPFetcher(HTTPOptions{Retry: fastRetry(), RatePerHost: 100})
	n, err := DownloadToFile(context.Background(), f, srv.URL, dest)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
	assert.NoFileExists(t, dest+".part")
}

func TestRouter_For(t *testing.T) {
	h := NewHTTPFetcher(HTTPOptions{})
	ftp := NewFTPFetcher(FTPOptions{})
	r := Router{HTTP: h, FTP: ftp}

	got, err := r.For("https://example.com/a.zip")
	require.NoError(t, err)
	assert.Same(t, h, got)

	got, err = r.For("ftp://example.com/a.zip")
	require.NoError(t, err)
	assert.Same(t, ftp, got)

	_, err = r.For("s3://bucket/key")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `scheme "s3"`)
}

func TestMirror(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(r.URL.Path))
	}))
	defer srv.Close()

	dir := t.TempDir()
	r := Router{HTTP: NewHTTPFetcher(HTTPOptions{Retry: fastRetry(), RatePerHost: 100})}
	paths, err := Mirror(context.Background(), r, []string{srv.URL + "/b1.tif", srv.URL + "/b2.tif"}, MirrorOptions{Dir: dir, Concurrency: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "b1.tif"), filepath.Join(dir, "b2.tif")}, paths)

	data, err := os.ReadFile(paths[1])
	require.NoError(t, err)
	assert.Equal(t, "/b2.tif", string(data))
}

func TestMirror_SameBaseName(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(r.URL.Path))
	}))
	defer srv.Close()

	dir := t.TempDir()
	r := Router{HTTP: NewHTTPFetcher(HTTPOptions{Retry: fastRetry(), RatePerHost: 100})}
	urls := []string{srv.URL + "/scene1/labels.geojson", srv.URL + "/scene2/labels.geojson"}
	paths, err := Mirror(context.Background(), r, urls, MirrorOptions{Dir: dir, Concurrency: 2})
	require.NoError(t, err)
	require.Len(t, paths, 2)
	assert.NotEqual(t, paths[0], paths[1])

	for i, want := range []string{"/scene1/labels.geojson", "/scene2/labels.geojson"} {
		data, err := os.ReadFile(paths[i])
		require.NoError(t, err)
		assert.Equal(t, want, string(data))
	}

	_, err = Mirror(context.Background(), r, []string{urls[0], urls[0]}, MirrorOptions{Dir: dir})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "same file")
}

func TestDestNames(t *testing.T) {
	tests := []struct {
		name string
		urls []string
		want []string
	}{
		{"distinct", []string{"https://a.org/x/b1.tif", "https://a.org/x/b2.tif"}, []string{"b1.tif", "b2.tif"}},
		{"shared base", []string{"https://a.org/s1/l.zip", "ftp://b.org/s2/l.zip", "https://a.org/m.tif"},
			[]string{"a.org_s1_l.zip", "b.org_s2_l.zip", "m.tif"}},
		{"no path", []string{"https://a.org/"}, []string{"download"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := destNames(tt.urls)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := destNames([]string{"https://a.org/l.zip", "https://a.org/l.zip"})
	assert.Error(t, err)
}

func TestMirror_ExtractShapefile(t *testing.T) {
	zp := writeZIP(t, map[string]string{"f.shp": "shp", "f.dbf": "dbf", "f.qmd": "style", "readme.txt": "hi"},
		[]string{"f.shp", "f.dbf", "f.qmd", "readme.txt"})
	body, err := os.ReadFile(zp)
	require.NoError(t, err)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	dir := t.TempDir()
	r := Router{HTTP: NewHTTPFetcher(HTTPOptions{Retry: fastRetry(), RatePerHost: 100})}
	paths, err := Mirror(context.Background(), r, []string{srv.URL + "/fields.zip"}, MirrorOptions{
		Dir: dir, Extract: true, ExtractExts: ShapefileExts,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "f.shp"), filepath.Join(dir, "f.dbf")}, paths)
}
