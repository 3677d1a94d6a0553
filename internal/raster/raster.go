package raster

import (
	"context"
	"fmt"
	"image"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/image/draw"
	"golang.org/x/image/tiff"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/landcover-cli/internal/geo"
)

// Raster is a decoded band with its placement.
type Raster struct {
	Image     image.Image
	Transform GeoTransform
	// EPSG is 0 when the GeoKey directory names no code.
	EPSG int
}

// Open decodes a GeoTIFF.
func Open(path string) (*Raster, error) {
	r, data, err := readFile(path)
	if err != nil {
		return nil, err
	}
	ref, err := readGeoref(data)
	if err != nil {
		return nil, eris.Wrapf(err, "raster: %s", path)
	}
	img, err := tiff.Decode(r)
	if err != nil {
		return nil, eris.Wrapf(err, "raster: decode %s", path)
	}
	return &Raster{Image: img, Transform: ref.transform, EPSG: ref.epsg}, nil
}

// Size returns the width and height in pixels.
func (r *Raster) Size() (int, int) {
	b := r.Image.Bounds()
	return b.Dx(), b.Dy()
}

// Bounds returns the model-space extent.
func (r *Raster) Bounds() geo.BBox {
	w, h := r.Size()
	minX, maxY := r.Transform.Pixel(0, 0)
	maxX, minY := r.Transform.Pixel(float64(w), float64(h))
	return geo.BBox{MinX: minX, MinY: minY, MaxX: maxX, MaxY: maxY, SRID: r.EPSG}
}

// Window returns the pixel rectangle covering bbox, clamped to the raster.
// Partially covered edge pixels are included.
func (r *Raster) Window(bbox geo.BBox) (image.Rectangle, error) {
	if bbox.SRID != 0 && r.EPSG != 0 && bbox.SRID != r.EPSG {
		return image.Rectangle{}, eris.Wrapf(geo.ErrSRIDMismatch, "raster: bbox EPSG:%d, raster EPSG:%d", bbox.SRID, r.EPSG)
	}
	t := r.Transform
	w, h := r.Size()
	// Snap values within a hair of a pixel edge onto it.
	const eps = 1e-9
	col0 := int(math.Floor((bbox.MinX-t.OriginX)/t.PixelWidth + eps))
	col1 := int(math.Ceil((bbox.MaxX-t.OriginX)/t.PixelWidth - eps))
	row0 := int(math.Floor((t.OriginY-bbox.MaxY)/t.PixelHeight + eps))
	row1 := int(math.Ceil((t.OriginY-bbox.MinY)/t.PixelHeight - eps))

	// image.Rect would swap inverted corners, so test the clamped edges first.
	x0, y0, x1, y1 := max(col0, 0), max(row0, 0), min(col1, w), min(row1, h)
	if x0 >= x1 || y0 >= y1 {
		return image.Rectangle{}, eris.Wrapf(ErrNoOverlap, "raster: bbox %s, raster %s", bbox, r.Bounds())
	}
	return image.Rect(x0, y0, x1, y1), nil
}

// Clip returns a new raster holding the window of r that intersects bbox.
// The bbox must be in the raster's CRS.
func Clip(r *Raster, bbox geo.BBox) (*Raster, error) {
	win, err := r.Window(bbox)
	if err != nil {
		return nil, err
	}
	origin := r.Image.Bounds().Min
	src := win.Add(origin)

	dst := newLike(r.Image, image.Rect(0, 0, win.Dx(), win.Dy()))
	draw.Copy(dst, image.Point{}, r.Image, src, draw.Src, nil)

	x, y := r.Transform.Pixel(float64(win.Min.X), float64(win.Min.Y))
	return &Raster{
		Image: dst,
		Transform: GeoTransform{
			OriginX:     x,
			OriginY:     y,
			PixelWidth:  r.Transform.PixelWidth,
			PixelHeight: r.Transform.PixelHeight,
		},
		EPSG: r.EPSG,
	}, nil
}

// newLike allocates an image with the same pixel model as m.
func newLike(m image.Image, rect image.Rectangle) draw.Image {
	switch m := m.(type) {
	case *image.Gray:
		return image.NewGray(rect)
	case *image.Gray16:
		return image.NewGray16(rect)
	case *image.NRGBA:
		return image.NewNRGBA(rect)
	case *image.NRGBA64:
		return image.NewNRGBA64(rect)
	case *image.RGBA64:
		return image.NewRGBA64(rect)
	case *image.Paletted:
		return image.NewPaletted(rect, m.Palette)
	default:
		return image.NewRGBA(rect)
	}
}

// Write stores r as a deflate-compressed TIFF and writes the world file
// (.tfw) and, when the EPSG is known, a .prj next to it. Files are renamed
// into place only after every one was written.
func Write(path string, r *Raster) error {
	dir := filepath.Dir(path)
	staged := make(map[string]string, 3)
	defer func() {
		for tmp := range staged {
			os.Remove(tmp) //nolint:errcheck
		}
	}()

	stage := func(dest string, write func(*os.File) error) error {
		f, err := os.CreateTemp(dir, "."+filepath.Base(dest)+"-*")
		if err != nil {
			return eris.Wrap(err, "raster: create temp file")
		}
		staged[f.Name()] = dest
		if err := write(f); err != nil {
			f.Close() //nolint:errcheck
			return err
		}
		return eris.Wrap(f.Close(), "raster: close temp file")
	}

	if err := stage(path, func(f *os.File) error {
		return eris.Wrap(tiff.Encode(f, r.Image, &tiff.Options{Compression: tiff.Deflate, Predictor: true}), "raster: encode TIFF")
	}); err != nil {
		return err
	}
	if err := stage(sidecar(path, ".tfw"), func(f *os.File) error {
		_, err := f.WriteString(WorldFile(r.Transform))
		return eris.Wrap(err, "raster: write world file")
	}); err != nil {
		return err
	}
	if r.EPSG != 0 {
		if wkt, err := geo.PRJ(r.EPSG); err == nil {
			if err := stage(sidecar(path, ".prj"), func(f *os.File) error {
				_, err := f.WriteString(wkt)
				return eris.Wrap(err, "raster: write prj")
			}); err != nil {
				return err
			}
		}
	}

	for tmp, dest := range staged {
		if err := os.Rename(tmp, dest); err != nil {
			return eris.Wrapf(err, "raster: rename %s", dest)
		}
		delete(staged, tmp)
	}
	return nil
}

// WorldFile renders the six-line ESRI world file, which references pixel
// centres.
func WorldFile(t GeoTransform) string {
	return fmt.Sprintf("%.10f\n0.0000000000\n0.0000000000\n%.10f\n%.10f\n%.10f\n",
		t.PixelWidth, -t.PixelHeight,
		t.OriginX+t.PixelWidth/2, t.OriginY-t.PixelHeight/2)
}

func sidecar(path, ext string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ext
}

// OutputName returns the clipped file name for a band: the same base name
// with a lower-case extension.
func OutputName(path string) string {
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	return strings.TrimSuffix(base, ext) + strings.ToLower(ext)
}

// ClipAll clips every band to bbox and writes the windows into outDir,
// reprojecting the bbox to each band's EPSG. It returns the written paths
// in input order.
func ClipAll(ctx context.Context, paths []string, bbox geo.BBox, outDir string, concurrency int) ([]string, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, eris.Wrap(err, "raster: create output dir")
	}
	if concurrency <= 0 {
		concurrency = 4
	}

	out := make([]string, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, path := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			r, err := Open(path)
			if err != nil {
				return err
			}
			window := bbox
			if r.EPSG != 0 && bbox.SRID != 0 && bbox.SRID != r.EPSG {
				if window, err = bbox.Reproject(r.EPSG); err != nil {
					return eris.Wrapf(err, "raster: %s", path)
				}
			}
			clipped, err := Clip(r, window)
			if err != nil {
				return eris.Wrapf(err, "raster: clip %s", path)
			}
			dest := filepath.Join(outDir, OutputName(path))
			if err := Write(dest, clipped); err != nil {
				return err
			}
			w, h := clipped.Size()
			zap.L().Info("raster: clipped",
				zap.String("band", path),
				zap.String("out", dest),
				zap.Int("width", w),
				zap.Int("height", h),
			)
			out[i] = dest
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
