package visualize

import (
	"image/color"
	"io"

	"github.com/rotisserie/eris"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// Rendering constants mirror the usual decision-boundary figure: a
// translucent class fill, thin black boundaries and small annotated points.
const (
	fillAlpha     = 0.3
	boundaryWidth = 0.5
	pointRadius   = 3
	labelSize     = 9
)

// Scene is everything drawn on one figure.
type Scene struct {
	Surface *Surface
	// X and Y are the (jittered) point positions.
	X, Y []float64
	// Codes are the encoded targets used to colour the points.
	Codes []int
	// Labels annotate each point.
	Labels   []string
	NClasses int
	XLabel   string
	YLabel   string
	Title    string
}

// rainbow returns n evenly spaced hues from blue to red. Rainbow needs at
// least two colours; a single class uses the first.
func rainbow(n int, alpha float64) palette.Palette {
	return palette.Rainbow(max(n, 2), palette.Blue, palette.Red, 1, 1, alpha)
}

// newHeatMap fills the surface with the same hues the points use. Class k
// maps to palette entry k when the range is [-0.5, m-0.5] for an m-colour
// palette, so the range follows the palette size rather than n.
func newHeatMap(s *Surface, n int) *plotter.HeatMap {
	pal := rainbow(n, fillAlpha)
	heat := plotter.NewHeatMap(s, pal)
	heat.Min, heat.Max = -0.5, float64(len(pal.Colors()))-0.5
	return heat
}

// Build assembles the plot for a scene.
func Build(s *Scene) (*plot.Plot, error) {
	if s.Surface == nil {
		return nil, eris.New("visualize: scene has no surface")
	}
	if len(s.X) != len(s.Y) || len(s.X) != len(s.Codes) || len(s.X) != len(s.Labels) {
		return nil, eris.New("visualize: scene point slices differ in length")
	}
	n := max(s.NClasses, 1)

	p := plot.New()
	p.Title.Text = s.Title
	p.X.Label.Text = s.XLabel
	p.Y.Label.Text = s.YLabel

	p.Add(newHeatMap(s.Surface, n))

	if classes := s.Surface.Classes(); len(classes) > 1 {
		levels := make([]float64, 0, len(classes)-1)
		for i := 1; i < len(classes); i++ {
			levels = append(levels, float64(classes[i-1]+classes[i])/2)
		}
		boundary := plotter.NewContour(s.Surface, levels, nil)
		boundary.LineStyles = []draw.LineStyle{{Color: color.Black, Width: vg.Points(boundaryWidth)}}
		p.Add(boundary)
	}

	if len(s.X) == 0 {
		return p, nil
	}
	pts := make(plotter.XYs, len(s.X))
	for i := range pts {
		pts[i] = plotter.XY{X: s.X[i], Y: s.Y[i]}
	}
	scatter, err := plotter.NewScatter(pts)
	if err != nil {
		return nil, eris.Wrap(err, "visualize: scatter")
	}
	colors := rainbow(n, 1).Colors()
	scatter.GlyphStyleFunc = func(i int) draw.GlyphStyle {
		c := s.Codes[i]
		if c < 0 || c >= len(colors) {
			c = 0
		}
		return draw.GlyphStyle{Color: colors[c], Radius: vg.Points(pointRadius), Shape: draw.CircleGlyph{}}
	}
	p.Add(scatter)

	annotations, err := plotter.NewLabels(plotter.XYLabels{XYs: pts, Labels: s.Labels})
	if err != nil {
		return nil, eris.Wrap(err, "visualize: labels")
	}
	for i := range annotations.TextStyle {
		annotations.TextStyle[i].Font.Size = vg.Points(labelSize)
		annotations.TextStyle[i].XAlign = draw.XRight
	}
	p.Add(annotations)
	return p, nil
}

// Render draws the scene in the given format ("png", "svg", "pdf", ...)
// and writes it to w.
func Render(w io.Writer, s *Scene, width, height vg.Length, format string) error {
	p, err := Build(s)
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(width, height, format)
	if err != nil {
		return eris.Wrapf(err, "visualize: %s canvas", format)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return eris.Wrap(err, "visualize: write image")
	}
	return nil
}
