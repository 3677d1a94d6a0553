package raster

import (
	"bytes"
	"context"
	"encoding/binary"
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/tiff"

	"github.com/sells-group/landcover-cli/internal/geo"
)

const (
	testOriginX = 500000.0
	testOriginY = 4000000.0
	testPixel   = 30.0
	testEPSG    = 32634
)

type tag struct {
	id, typ uint16
	count   uint32
	data    []byte
}

// buildGeoTIFF writes an uncompressed 8-bit grayscale little-endian GeoTIFF
// with pixel value i at index i.
func buildGeoTIFF(t *testing.T, w, h int, epsg uint16) []byte {
	t.Helper()
	le := binary.LittleEndian
	short := func(vs ...uint16) []byte {
		b := make([]byte, 2*len(vs))
		for i, v := range vs {
			le.PutUint16(b[i*2:], v)
		}
		return b
	}
	long := func(v uint32) []byte {
		b := make([]byte, 4)
		le.PutUint32(b, v)
		return b
	}
	double := func(vs ...float64) []byte {
		var buf bytes.Buffer
		require.NoError(t, binary.Write(&buf, le, vs))
		return buf.Bytes()
	}

	pix := make([]byte, w*h)
	for i := range pix {
		pix[i] = byte(i)
	}
	tags := []tag{
		{256, typeShort, 1, short(uint16(w))},
		{257, typeShort, 1, short(uint16(h))},
		{258, typeShort, 1, short(8)},
		{259, typeShort, 1, short(1)},
		{262, typeShort, 1, short(1)},
		{273, 4, 1, nil}, // strip offset, patched below
		{277, typeShort, 1, short(1)},
		{278, typeShort, 1, short(uint16(h))},
		{279, 4, 1, long(uint32(len(pix)))},
		{tagModelPixelScale, typeDouble, 3, double(testPixel, testPixel, 0)},
		{tagModelTiepoint, typeDouble, 6, double(0, 0, 0, testOriginX, testOriginY, 0)},
		{tagGeoKeyDirectory, typeShort, 12, short(1, 1, 0, 2, 1024, 0, 1, 1, keyProjectedCSType, 0, 1, epsg)},
	}

	dataStart := 8 + 2 + len(tags)*12 + 4
	var extra bytes.Buffer
	extra.Write(pix)
	tags[5].data = long(uint32(dataStart))
	offsets := make([]uint32, len(tags))
	for i, tg := range tags {
		if len(tg.data) > 4 {
			offsets[i] = uint32(dataStart + extra.Len())
			extra.Write(tg.data)
		}
	}

	var out bytes.Buffer
	out.WriteString("II")
	out.Write(short(42))
	out.Write(long(8))
	out.Write(short(uint16(len(tags))))
	for i, tg := range tags {
		out.Write(short(tg.id, tg.typ))
		out.Write(long(tg.count))
		if len(tg.data) > 4 {
			out.Write(long(offsets[i]))
			continue
		}
		cell := make([]byte, 4)
		copy(cell, tg.data)
		out.Write(cell)
	}
	out.Write(long(0))
	out.Write(extra.Bytes())
	return out.Bytes()
}

func writeBand(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, buildGeoTIFF(t, 10, 8, testEPSG), 0o644))
	return path
}

func testBBox() geo.BBox {
	return geo.BBox{MinX: 500065, MinY: 3999860, MaxX: 500155, MaxY: 3999950, SRID: testEPSG}
}

func TestOpen(t *testing.T) {
	r, err := Open(writeBand(t, t.TempDir(), "band.TIF"))
	require.NoError(t, err)

	w, h := r.Size()
	assert.Equal(t, 10, w)
	assert.Equal(t, 8, h)
	assert.Equal(t, testEPSG, r.EPSG)
	assert.Equal(t, GeoTransform{OriginX: testOriginX, OriginY: testOriginY, PixelWidth: testPixel, PixelHeight: testPixel}, r.Transform)
	assert.Equal(t, geo.BBox{MinX: 500000, MinY: 3999760, MaxX: 500300, MaxY: 4000000, SRID: testEPSG}, r.Bounds())

	gray, ok := r.Image.(*image.Gray)
	require.True(t, ok)
	assert.Equal(t, uint8(13), gray.GrayAt(3, 1).Y)
}

func TestOpen_NotGeoTIFF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plain.tif")
	var buf bytes.Buffer
	require.NoError(t, tiff.Encode(&buf, image.NewGray(image.Rect(0, 0, 4, 4)), nil))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	_, err := Open(path)
	assert.ErrorIs(t, err, ErrNotGeoTIFF)
}

func TestOpen_Errors(t *testing.T) {
	dir := t.TempDir()
	junk := filepath.Join(dir, "junk.tif")
	require.NoError(t, os.WriteFile(junk, []byte("not a tiff at all"), 0o644))

	_, err := Open(junk)
	assert.ErrorContains(t, err, "not a TIFF")
	_, err = Open(filepath.Join(dir, "missing.tif"))
	assert.Error(t, err)
}

func TestWindow(t *testing.T) {
	r, err := Open(writeBand(t, t.TempDir(), "band.TIF"))
	require.NoError(t, err)

	tests := []struct {
		name string
		bbox geo.BBox
		want image.Rectangle
	}{
		{"interior", testBBox(), image.Rect(2, 1, 6, 5)},
		{"pixel aligned", geo.BBox{MinX: 500030, MinY: 3999910, MaxX: 500090, MaxY: 3999970, SRID: testEPSG}, image.Rect(1, 1, 3, 3)},
		{"covers raster", geo.BBox{MinX: 0, MinY: 0, MaxX: 1e7, MaxY: 1e7, SRID: testEPSG}, image.Rect(0, 0, 10, 8)},
		{"unknown srid", geo.BBox{MinX: 499000, MinY: 3999990, MaxX: 500010, MaxY: 4001000}, image.Rect(0, 0, 1, 1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			win, err := r.Window(tt.bbox)
			require.NoError(t, err)
			assert.Equal(t, tt.want, win)
		})
	}
}

func TestWindow_Errors(t *testing.T) {
	r, err := Open(writeBand(t, t.TempDir(), "band.TIF"))
	require.NoError(t, err)

	_, err = r.Window(geo.BBox{MinX: 0, MinY: 0, MaxX: 10, MaxY: 10, SRID: testEPSG})
	assert.ErrorIs(t, err, ErrNoOverlap)

	// Entirely outside on each side.
	for name, b := range map[string]geo.BBox{
		"west":  {MinX: 499000, MinY: 3999800, MaxX: 499900, MaxY: 3999900, SRID: testEPSG},
		"east":  {MinX: 501000, MinY: 3999800, MaxX: 501100, MaxY: 3999900, SRID: testEPSG},
		"north": {MinX: 500010, MinY: 4000100, MaxX: 500100, MaxY: 4000200, SRID: testEPSG},
		"south": {MinX: 500010, MinY: 3990000, MaxX: 500100, MaxY: 3990100, SRID: testEPSG},
	} {
		win, err := r.Window(b)
		assert.ErrorIs(t, err, ErrNoOverlap, name)
		assert.True(t, win.Empty(), name)
	}

	// Touching the right edge only.
	_, err = r.Window(geo.BBox{MinX: 500300, MinY: 3999800, MaxX: 500400, MaxY: 3999900, SRID: testEPSG})
	assert.ErrorIs(t, err, ErrNoOverlap)

	_, err = r.Window(geo.BBox{MinX: 20, MinY: 35, MaxX: 21, MaxY: 36, SRID: geo.WGS84})
	assert.ErrorIs(t, err, geo.ErrSRIDMismatch)
}

func TestClip(t *testing.T) {
	r, err := Open(writeBand(t, t.TempDir(), "band.TIF"))
	require.NoError(t, err)

	c, err := Clip(r, testBBox())
	require.NoError(t, err)
	w, h := c.Size()
	assert.Equal(t, 4, w)
	assert.Equal(t, 4, h)
	assert.Equal(t, testEPSG, c.EPSG)
	assert.Equal(t, GeoTransform{OriginX: 500060, OriginY: 3999970, PixelWidth: testPixel, PixelHeight: testPixel}, c.Transform)

	gray, ok := c.Image.(*image.Gray)
	require.True(t, ok)
	assert.Equal(t, image.Rect(0, 0, 4, 4), gray.Bounds())
	for row := 0; row < 4; row++ {
		for col := 0; col < 4; col++ {
			assert.Equal(t, uint8((row+1)*10+col+2), gray.GrayAt(col, row).Y)
		}
	}
}

func TestWrite(t *testing.T) {
	dir := t.TempDir()
	r, err := Open(writeBand(t, dir, "band.TIF"))
	require.NoError(t, err)
	c, err := Clip(r, testBBox())
	require.NoError(t, err)

	out := filepath.Join(dir, "out", "band.tif")
	require.NoError(t, os.MkdirAll(filepath.Dir(out), 0o755))
	require.NoError(t, Write(out, c))

	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close() //nolint:errcheck
	img, err := tiff.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, c.Image, img)

	tfw, err := os.ReadFile(filepath.Join(dir, "out", "band.tfw"))
	require.NoError(t, err)
	assert.Equal(t, "30.0000000000\n0.0000000000\n0.0000000000\n-30.0000000000\n500075.0000000000\n3999955.0000000000\n", string(tfw))

	prj, err := os.ReadFile(filepath.Join(dir, "out", "band.prj"))
	require.NoError(t, err)
	assert.Contains(t, string(prj), "UTM_Zone_34N")

	entries, err := os.ReadDir(filepath.Join(dir, "out"))
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestClipAll(t *testing.T) {
	dir := t.TempDir()
	paths := []string{
		writeBand(t, dir, "LC08_SR_B4.TIF"),
		writeBand(t, dir, "LC08_SR_B5.TIF"),
		writeBand(t, dir, "LC08_SR_B6.TIF"),
	}
	outDir := filepath.Join(dir, "clipped")

	out, err := ClipAll(context.Background(), paths, testBBox(), outDir, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(outDir, "LC08_SR_B4.tif"),
		filepath.Join(outDir, "LC08_SR_B5.tif"),
		filepath.Join(outDir, "LC08_SR_B6.tif"),
	}, out)
	for _, p := range out {
		assert.FileExists(t, p)
	}
}

func TestClipAll_Errors(t *testing.T) {
	dir := t.TempDir()
	band := writeBand(t, dir, "B1.TIF")

	_, err := ClipAll(context.Background(), []string{band},
		geo.BBox{MinX: 0, MinY: 0, MaxX: 10, MaxY: 10, SRID: testEPSG}, filepath.Join(dir, "out"), 1)
	assert.ErrorIs(t, err, ErrNoOverlap)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = ClipAll(ctx, []string{band}, testBBox(), filepath.Join(dir, "out"), 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEPSGFromKeys(t *testing.T) {
	tests := []struct {
		name string
		keys []uint16
		want int
	}{
		{"projected", []uint16{1, 1, 0, 1, keyProjectedCSType, 0, 1, 32736}, 32736},
		{"geographic", []uint16{1, 1, 0, 1, keyGeographicType, 0, 1, 4326}, 4326},
		{"user defined", []uint16{1, 1, 0, 2, keyProjectedCSType, 0, 1, userDefined, keyGeographicType, 0, 1, 4326}, 4326},
		{"stored elsewhere", []uint16{1, 1, 0, 1, keyProjectedCSType, 34736, 1, 0}, 0},
		{"empty", nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, epsgFromKeys(tt.keys))
		})
	}
}

func TestOutputName(t *testing.T) {
	assert.Equal(t, "LC08_SR_B4.tif", OutputName("/data/LC08_SR_B4.TIF"))
	assert.Equal(t, "band.tif", OutputName("band.tif"))
}
