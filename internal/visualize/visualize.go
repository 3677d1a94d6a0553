// Package visualize fits a classifier on two ordinal-encoded columns of a
// table and draws its decision surface under the jittered training points.
package visualize

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gonum.org/v1/plot/vg"

	"github.com/sells-group/landcover-cli/internal/classify"
	"github.com/sells-group/landcover-cli/internal/encode"
	"github.com/sells-group/landcover-cli/internal/table"
)

// Defaults for zero-valued options.
const (
	DefaultJitter   = 0.2
	DefaultGridSize = 200
	DefaultWidth    = 8 * vg.Inch
	DefaultHeight   = 6 * vg.Inch
	DefaultFormat   = "png"
)

// Options configures one visualization.
type Options struct {
	Kind     classify.Kind
	FeatureX string
	FeatureY string
	Target   string
	Params   classify.Params

	// Jitter scales the normal noise added to plotted points. Zero disables
	// it; use DefaultOptions for the usual 0.2.
	Jitter   float64
	GridSize int
	// Rand drives the jitter. Nil means a time-seeded source.
	Rand *rand.Rand

	// Output receives the image when OutputPath is empty.
	Output     io.Writer
	OutputPath string
	// Format overrides the image format; by default it follows the
	// OutputPath extension, falling back to png.
	Format        string
	Width, Height vg.Length

	// Stdout receives the accuracy line. Nil discards it.
	Stdout io.Writer
}

// DefaultOptions returns the decision tree over Staple Food and Climate
// predicting Country, which fits the built-in sample table.
func DefaultOptions() Options {
	return Options{
		Kind:     classify.DecisionTree,
		FeatureX: "Staple Food",
		FeatureY: "Climate",
		Target:   "Country",
		Params:   classify.DefaultParams(),
		Jitter:   DefaultJitter,
		GridSize: DefaultGridSize,
		Width:    DefaultWidth,
		Height:   DefaultHeight,
	}
}

// Result is what a visualization produced besides the image.
type Result struct {
	Kind    classify.Kind
	Score   float64
	Classes []string
	Surface *Surface
}

// FormatScore renders a score the way the accuracy line prints it: the
// shortest representation, with a trailing ".0" for whole numbers.
func FormatScore(score float64) string {
	s := strconv.FormatFloat(score, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eEnN") {
		s += ".0"
	}
	return s
}

// Visualize validates the options against the table, fits the model, renders
// the figure and prints "Accuracy: <score>". Nothing is written when
// validation fails.
func Visualize(ctx context.Context, tbl *table.Table, opts Options) (*Result, error) {
	model, err := classify.New(opts.Kind, opts.Params)
	if err != nil {
		return nil, err
	}
	if tbl == nil {
		return nil, eris.New("visualize: nil table")
	}
	xs, err := tbl.Column(opts.FeatureX)
	if err != nil {
		return nil, err
	}
	ys, err := tbl.Column(opts.FeatureY)
	if err != nil {
		return nil, err
	}
	targets, err := tbl.Column(opts.Target)
	if err != nil {
		return nil, err
	}
	if tbl.Len() == 0 {
		return nil, eris.New("visualize: table has no rows")
	}
	format, err := resolveFormat(opts)
	if err != nil {
		return nil, err
	}
	if opts.OutputPath == "" && opts.Output == nil {
		return nil, eris.New("visualize: no output path or writer")
	}

	_, xCodes := encode.FitTransform(xs)
	_, yCodes := encode.FitTransform(ys)
	targetEnc, tCodes := encode.FitTransform(targets)

	X := make([][]float64, len(xCodes))
	for i := range X {
		X[i] = []float64{float64(xCodes[i]), float64(yCodes[i])}
	}
	if err := model.Fit(X, tCodes); err != nil {
		return nil, eris.Wrapf(err, "visualize: fit %s", opts.Kind)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	score := classify.Score(model, X, tCodes)

	gridSize := opts.GridSize
	if gridSize <= 0 {
		gridSize = DefaultGridSize
	}
	surface := ComputeSurface(model,
		float64(slices.Min(xCodes)), float64(slices.Max(xCodes)),
		float64(slices.Min(yCodes)), float64(slices.Max(yCodes)),
		gridSize)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	labels, err := targetEnc.Inverse(tCodes)
	if err != nil {
		return nil, eris.Wrap(err, "visualize: decode targets")
	}
	scene := &Scene{
		Surface:  surface,
		X:        Jitter(xCodes, opts.Jitter, rng),
		Y:        Jitter(yCodes, opts.Jitter, rng),
		Codes:    tCodes,
		Labels:   labels,
		NClasses: targetEnc.Len(),
		XLabel:   opts.FeatureX,
		YLabel:   opts.FeatureY,
		Title:    string(opts.Kind),
	}

	width, height := opts.Width, opts.Height
	if width <= 0 {
		width = DefaultWidth
	}
	if height <= 0 {
		height = DefaultHeight
	}
	var buf bytes.Buffer
	if err := Render(&buf, scene, width, height, format); err != nil {
		return nil, err
	}
	if err := emit(opts, buf.Bytes()); err != nil {
		return nil, err
	}

	if opts.Stdout != nil {
		fmt.Fprintf(opts.Stdout, "Accuracy: %s\n", FormatScore(score))
	}
	zap.L().Info("visualize: rendered",
		zap.String("model", string(opts.Kind)),
		zap.String("x", opts.FeatureX),
		zap.String("y", opts.FeatureY),
		zap.Int("rows", tbl.Len()),
		zap.Float64("score", score),
	)

	return &Result{
		Kind:    opts.Kind,
		Score:   score,
		Classes: targetEnc.Classes(),
		Surface: surface,
	}, nil
}

var formats = []string{"eps", "jpg", "jpeg", "pdf", "png", "svg", "tex", "tif", "tiff"}

func resolveFormat(opts Options) (string, error) {
	format := strings.ToLower(opts.Format)
	if format == "" && opts.OutputPath != "" {
		format = strings.TrimPrefix(strings.ToLower(filepath.Ext(opts.OutputPath)), ".")
	}
	if format == "" {
		format = DefaultFormat
	}
	if !slices.Contains(formats, format) {
		return "", eris.Errorf("visualize: unsupported image format %q, choose one of [%s]", format, strings.Join(formats, ", "))
	}
	return format, nil
}

// emit writes the rendered image to the writer, or to OutputPath through a
// temporary file renamed into place.
func emit(opts Options, img []byte) error {
	if opts.OutputPath == "" {
		if _, err := opts.Output.Write(img); err != nil {
			return eris.Wrap(err, "visualize: write output")
		}
		return nil
	}

	dir := filepath.Dir(opts.OutputPath)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(opts.OutputPath)+"-*")
	if err != nil {
		return eris.Wrap(err, "visualize: create output")
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck
	if _, err := tmp.Write(img); err != nil {
		tmp.Close() //nolint:errcheck
		return eris.Wrap(err, "visualize: write output")
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrap(err, "visualize: close output")
	}
	if err := os.Rename(tmp.Name(), opts.OutputPath); err != nil {
		return eris.Wrap(err, "visualize: rename output")
	}
	return nil
}
