package geo

import (
	"errors"
	"math"

	"github.com/rotisserie/eris"
)

// Supported EPSG codes.
const (
	WGS84        = 4326
	WebMercator  = 3857
	utmNorthBase = 32600
	utmSouthBase = 32700
)

var (
	// ErrUnsupportedEPSG is returned for CRS codes outside the supported set.
	ErrUnsupportedEPSG = errors.New("geo: unsupported EPSG code")
	// ErrSRIDMismatch is returned when geometries in different CRSs meet.
	ErrSRIDMismatch = errors.New("geo: SRID mismatch")
)

// Projection converts between geographic WGS84 degrees and a projected CRS.
type Projection interface {
	Forward(lon, lat float64) (x, y float64)
	Inverse(x, y float64) (lon, lat float64)
}

// ProjectionFor returns the projection for an EPSG code: 4326, 3857 or a
// WGS84 UTM zone (32601-32660 north, 32701-32760 south).
func ProjectionFor(epsg int) (Projection, error) {
	switch {
	case epsg == WGS84:
		return identity{}, nil
	case epsg == WebMercator:
		return webMercator{}, nil
	case epsg > utmNorthBase && epsg <= utmNorthBase+60:
		return newUTM(epsg-utmNorthBase, false), nil
	case epsg > utmSouthBase && epsg <= utmSouthBase+60:
		return newUTM(epsg-utmSouthBase, true), nil
	}
	return nil, eris.Wrapf(ErrUnsupportedEPSG, "geo: EPSG:%d", epsg)
}

// UTMZoneEPSG returns the EPSG code of the UTM zone containing (lon, lat).
func UTMZoneEPSG(lon, lat float64) int {
	zone := int(math.Floor((lon+180)/6)) + 1
	zone = min(max(zone, 1), 60)
	if lat < 0 {
		return utmSouthBase + zone
	}
	return utmNorthBase + zone
}

// Transformer converts coordinates between two EPSG codes.
type Transformer struct {
	From, To int
	src, dst Projection
}

// NewTransformer builds a transformer from one EPSG code to another.
func NewTransformer(from, to int) (*Transformer, error) {
	src, err := ProjectionFor(from)
	if err != nil {
		return nil, err
	}
	dst, err := ProjectionFor(to)
	if err != nil {
		return nil, err
	}
	return &Transformer{From: from, To: to, src: src, dst: dst}, nil
}

// Apply converts one coordinate pair.
func (t *Transformer) Apply(x, y float64) (float64, float64) {
	if t.From == t.To {
		return x, y
	}
	lon, lat := t.src.Inverse(x, y)
	return t.dst.Forward(lon, lat)
}

type identity struct{}

func (identity) Forward(lon, lat float64) (float64, float64) { return lon, lat }
func (identity) Inverse(x, y float64) (float64, float64) { return x, y }

const earthRadius = 6378137.0

// maxMercatorLat clips latitudes the spherical mercator cannot represent.
const maxMercatorLat = 85.05112878

type webMercator struct{}

func (webMercator) Forward(lon, lat float64) (float64, float64) {
	lat = math.Max(-maxMercatorLat, math.Min(maxMercatorLat, lat))
	x := earthRadius * lon * math.Pi / 180
	y := earthRadius * math.Log(math.Tan(math.Pi/4+lat*math.Pi/360))
	return x, y
}

func (webMercator) Inverse(x, y float64) (float64, float64) {
	lon := x / earthRadius * 180 / math.Pi
	lat := (2*math.Atan(math.Exp(y/earthRadius)) - math.Pi/2) * 180 / math.Pi
	return lon, lat
}

// utm is transverse mercator on the WGS84 ellipsoid using the Krüger
// n-series to third order (sub-millimetre inside a zone).
type utm struct {
	lon0   float64 // central meridian, radians
	north0 float64 // false northing
	k0A    float64
	e      float64
	alpha  [3]float64
	beta   [3]float64
	delta  [3]float64
}

func newUTM(zone int, south bool) utm {
	const (
		a = 6378137.0
		f = 1 / 298.257223563
	)
	n := f / (2 - f)
	n2, n3 := n*n, n*n*n
	u := utm{
		lon0: float64(zone*6-183) * math.Pi / 180,
		k0A:  0.9996 * a / (1 + n) * (1 + n2/4 + n2*n2/64),
		e:    2 * math.Sqrt(n) / (1 + n),
		alpha: [3]float64{
			n/2 - 2*n2/3 + 5*n3/16,
			13*n2/48 - 3*n3/5,
			61 * n3 / 240,
		},
		beta: [3]float64{
			n/2 - 2*n2/3 + 37*n3/96,
			n2/48 + n3/15,
			17 * n3 / 480,
		},
		delta: [3]float64{
			2*n - 2*n2/3 - 2*n3,
			7*n2/3 - 8*n3/5,
			56 * n3 / 15,
		},
	}
	if south {
		u.north0 = 10000000
	}
	return u
}

const falseEasting = 500000.0

func (u utm) Forward(lon, lat float64) (float64, float64) {
	phi := lat * math.Pi / 180
	dl := lon*math.Pi/180 - u.lon0

	sinPhi := math.Sin(phi)
	t := math.Sinh(math.Atanh(sinPhi) - u.e*math.Atanh(u.e*sinPhi))
	xi := math.Atan2(t, math.Cos(dl))
	eta := math.Atanh(math.Sin(dl) / math.Sqrt(1+t*t))

	e, nn := eta, xi
	for j, a := range u.alpha {
		k := 2 * float64(j+1)
		e += a * math.Cos(k*xi) * math.Sinh(k*eta)
		nn += a * math.Sin(k*xi) * math.Cosh(k*eta)
	}
	return falseEasting + u.k0A*e, u.north0 + u.k0A*nn
}

func (u utm) Inverse(x, y float64) (float64, float64) {
	xi := (y - u.north0) / u.k0A
	eta := (x - falseEasting) / u.k0A

	xiP, etaP := xi, eta
	for j, b := range u.beta {
		k := 2 * float64(j+1)
		xiP -= b * math.Sin(k*xi) * math.Cosh(k*eta)
		etaP -= b * math.Cos(k*xi) * math.Sinh(k*eta)
	}

	chi := math.Asin(math.Sin(xiP) / math.Cosh(etaP))
	phi := chi
	for j, d := range u.delta {
		phi += d * math.Sin(2*float64(j+1)*chi)
	}
	lam := u.lon0 + math.Atan2(math.Sinh(etaP), math.Cos(xiP))
	return lam * 180 / math.Pi, phi * 180 / math.Pi
}
