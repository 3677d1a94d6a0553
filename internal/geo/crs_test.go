package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProjectionFor(t *testing.T) {
	for _, code := range []int{WGS84, WebMercator, 32601, 32634, 32660, 32701, 32760} {
		_, err := ProjectionFor(code)
		assert.NoError(t, err, "EPSG:%d", code)
	}
	for _, code := range []int{0, 2154, 32600, 32661, 32700, 32761} {
		_, err := ProjectionFor(code)
		assert.ErrorIs(t, err, ErrUnsupportedEPSG, "EPSG:%d", code)
	}
}

func TestUTMZoneEPSG(t *testing.T) {
	assert.Equal(t, 32634, UTMZoneEPSG(20.5, 41.3))
	assert.Equal(t, 32734, UTMZoneEPSG(20.5, -1))
	assert.Equal(t, 32601, UTMZoneEPSG(-180, 10))
	assert.Equal(t, 32660, UTMZoneEPSG(180, 10))
	assert.Equal(t, 32631, UTMZoneEPSG(0, 0))
}

func TestWebMercator_KnownPoint(t *testing.T) {
	tr, err := NewTransformer(WGS84, WebMercator)
	require.NoError(t, err)

	x, y := tr.Apply(0, 0)
	assert.InDelta(t, 0, x, 1e-6)
	assert.InDelta(t, 0, y, 1e-6)

	x, _ = tr.Apply(180, 0)
	assert.InDelta(t, 20037508.342789244, x, 1e-3)
}

func TestUTM_KnownPoint(t *testing.T) {
	tr, err := NewTransformer(WGS84, 32631)
	require.NoError(t, err)

	// The central meridian of zone 31 on the equator maps to the false easting.
	x, y := tr.Apply(3, 0)
	assert.InDelta(t, 500000, x, 1e-3)
	assert.InDelta(t, 0, y, 1e-3)

	// Northing grows by roughly 110.5 km per degree near the equator.
	_, y = tr.Apply(3, 1)
	assert.InDelta(t, 110530.16, y, 0.01)
}

func TestTransformer_RoundTrip(t *testing.T) {
	points := [][2]float64{
		{20.1, 41.2},
		{-73.98, 40.75},
		{151.2, -33.87},
		{0.01, 0.01},
	}
	for _, epsg := range []int{WebMercator, 32634, 32618, 32756} {
		fwd, err := NewTransformer(WGS84, epsg)
		require.NoError(t, err)
		inv, err := NewTransformer(epsg, WGS84)
		require.NoError(t, err)

		for _, p := range points {
			if epsg > 32600 && UTMZoneEPSG(p[0], p[1]) != epsg {
				continue
			}
			x, y := fwd.Apply(p[0], p[1])
			lon, lat := inv.Apply(x, y)
			assert.InDelta(t, p[0], lon, 1e-6, "EPSG:%d lon", epsg)
			assert.InDelta(t, p[1], lat, 1e-6, "EPSG:%d lat", epsg)
		}
	}
}

func TestTransformer_SameCode(t *testing.T) {
	tr, err := NewTransformer(32634, 32634)
	require.NoError(t, err)
	x, y := tr.Apply(123.4, 567.8)
	assert.Equal(t, 123.4, x)
	assert.Equal(t, 567.8, y)
}
