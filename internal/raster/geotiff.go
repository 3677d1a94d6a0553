// Package raster clips GeoTIFF imagery to a bounding box and writes the
// window back out as a TIFF with a world file.
package raster

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"os"

	"github.com/rotisserie/eris"
)

// GeoTIFF tag ids and the GeoKeys we read from the key directory.
const (
	tagModelPixelScale = 33550
	tagModelTiepoint   = 33922
	tagGeoKeyDirectory = 34735

	keyGeographicType  = 2048
	keyProjectedCSType = 3072
	userDefined        = 32767

	typeShort  = 3
	typeDouble = 12
)

var (
	// ErrNotGeoTIFF is returned for a TIFF without pixel scale and tiepoint
	// tags.
	ErrNotGeoTIFF = errors.New("raster: not a GeoTIFF")
	// ErrNoOverlap is returned when a bbox misses the raster entirely.
	ErrNoOverlap = errors.New("raster: bbox does not overlap raster")
)

// GeoTransform maps pixel (col, row) to model coordinates, north up:
// x = OriginX + col*PixelWidth, y = OriginY - row*PixelHeight.
type GeoTransform struct {
	OriginX     float64
	OriginY     float64
	PixelWidth  float64
	PixelHeight float64
}

// Pixel returns the model coordinate of a pixel corner.
func (t GeoTransform) Pixel(col, row float64) (float64, float64) {
	return t.OriginX + col*t.PixelWidth, t.OriginY - row*t.PixelHeight
}

// georef is what the first IFD carries about placement.
type georef struct {
	transform GeoTransform
	epsg      int
}

type ifdEntry struct {
	typ    uint16
	count  uint32
	offset uint32
	inline []byte
}

// readGeoref parses the first IFD of a TIFF for the GeoTIFF tags.
func readGeoref(data []byte) (georef, error) {
	if len(data) < 8 {
		return georef{}, eris.New("raster: truncated TIFF header")
	}
	var order binary.ByteOrder
	switch string(data[:2]) {
	case "II":
		order = binary.LittleEndian
	case "MM":
		order = binary.BigEndian
	default:
		return georef{}, eris.New("raster: not a TIFF")
	}
	if order.Uint16(data[2:4]) != 42 {
		return georef{}, eris.New("raster: BigTIFF and non-TIFF files are not supported")
	}
	ifd := int(order.Uint32(data[4:8]))
	if ifd+2 > len(data) {
		return georef{}, eris.New("raster: IFD offset past end of file")
	}
	n := int(order.Uint16(data[ifd : ifd+2]))
	if ifd+2+n*12 > len(data) {
		return georef{}, eris.New("raster: truncated IFD")
	}

	entries := make(map[uint16]ifdEntry, n)
	for i := 0; i < n; i++ {
		e := data[ifd+2+i*12 : ifd+14+i*12]
		entries[order.Uint16(e[0:2])] = ifdEntry{
			typ:    order.Uint16(e[2:4]),
			count:  order.Uint32(e[4:8]),
			offset: order.Uint32(e[8:12]),
			inline: e[8:12],
		}
	}

	scale, err := doubles(data, order, entries, tagModelPixelScale)
	if err != nil {
		return georef{}, err
	}
	tie, err := doubles(data, order, entries, tagModelTiepoint)
	if err != nil {
		return georef{}, err
	}
	if len(scale) < 2 || len(tie) < 6 {
		return georef{}, ErrNotGeoTIFF
	}
	if scale[0] <= 0 || scale[1] <= 0 {
		return georef{}, eris.Errorf("raster: pixel scale (%g, %g) must be positive", scale[0], scale[1])
	}

	ref := georef{transform: GeoTransform{
		OriginX:     tie[3] - tie[0]*scale[0],
		OriginY:     tie[4] + tie[1]*scale[1],
		PixelWidth:  scale[0],
		PixelHeight: scale[1],
	}}
	keys, err := shorts(data, order, entries, tagGeoKeyDirectory)
	if err != nil {
		return georef{}, err
	}
	ref.epsg = epsgFromKeys(keys)
	return ref, nil
}

// epsgFromKeys returns the projected CS code, else the geographic one, else
// 0. Only inline (location 0) key values are read; user-defined codes are
// skipped.
func epsgFromKeys(keys []uint16) int {
	if len(keys) < 4 {
		return 0
	}
	geographic := 0
	numKeys := int(keys[3])
	for i := 0; i < numKeys && 4+i*4+3 < len(keys); i++ {
		k := keys[4+i*4 : 8+i*4]
		if k[1] != 0 {
			continue
		}
		if k[3] == 0 || k[3] == userDefined {
			continue
		}
		switch k[0] {
		case keyProjectedCSType:
			return int(k[3])
		case keyGeographicType:
			geographic = int(k[3])
		}
	}
	return geographic
}

func value(data []byte, e ifdEntry, size int) ([]byte, error) {
	total := int(e.count) * size
	if total <= 4 {
		return e.inline[:total], nil
	}
	start := int(e.offset)
	if start < 0 || start+total > len(data) {
		return nil, eris.New("raster: tag value past end of file")
	}
	return data[start : start+total], nil
}

func doubles(data []byte, order binary.ByteOrder, entries map[uint16]ifdEntry, tag uint16) ([]float64, error) {
	e, ok := entries[tag]
	if !ok {
		return nil, nil
	}
	if e.typ != typeDouble {
		return nil, eris.Errorf("raster: tag %d has type %d, want DOUBLE", tag, e.typ)
	}
	raw, err := value(data, e, 8)
	if err != nil {
		return nil, err
	}
	out := make([]float64, e.count)
	for i := range out {
		out[i] = math.Float64frombits(order.Uint64(raw[i*8:]))
	}
	return out, nil
}

func shorts(data []byte, order binary.ByteOrder, entries map[uint16]ifdEntry, tag uint16) ([]uint16, error) {
	e, ok := entries[tag]
	if !ok {
		return nil, nil
	}
	if e.typ != typeShort {
		return nil, eris.Errorf("raster: tag %d has type %d, want SHORT", tag, e.typ)
	}
	raw, err := value(data, e, 2)
	if err != nil {
		return nil, err
	}
	out := make([]uint16, e.count)
	for i := range out {
		out[i] = order.Uint16(raw[i*2:])
	}
	return out, nil
}

// readFile loads a whole raster; band files are read once for both the
// tags and the pixels.
func readFile(path string) (*bytes.Reader, []byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "raster: read %s", path)
	}
	return bytes.NewReader(data), data, nil
}
