// Package downsampling selects the frequency points at which residuals are
// stored and resamples residuals between grids.
package downsampling

import (
	"strings"

	"gonum.org/v1/gonum/interp"

	"github.com/YuminosukeSato/gwsurrogate/pkg/errors"
)

// Interpolator is the spline family used for selection and resampling.
// The same kind must be used for both.
type Interpolator int

const (
	// NotAKnot is a cubic spline with not-a-knot end conditions.
	NotAKnot Interpolator = iota
	// Natural is a cubic spline with zero second derivative at the ends.
	Natural
	// Akima is the Akima local cubic.
	Akima
	// FritschButland is a monotone piecewise cubic.
	FritschButland
)

func (k Interpolator) String() string {
	switch k {
	case NotAKnot:
		return "not-a-knot"
	case Natural:
		return "natural"
	case Akima:
		return "akima"
	case FritschButland:
		return "fritsch-butland"
	default:
		return "unknown"
	}
}

// ParseInterpolator parses the configuration name of an interpolator.
func ParseInterpolator(name string) (Interpolator, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "not-a-knot", "notaknot":
		return NotAKnot, nil
	case "natural":
		return Natural, nil
	case "akima":
		return Akima, nil
	case "fritsch-butland", "fritschbutland":
		return FritschButland, nil
	}
	return NotAKnot, errors.NewNotSupportedError("interpolator", name)
}

// MinPoints is the smallest number of knots every interpolator accepts.
const MinPoints = 3

type fittableSpline interface {
	interp.Fitter
	interp.DerivativePredictor
}

func (k Interpolator) newSpline() (fittableSpline, error) {
	switch k {
	case NotAKnot:
		return &interp.NotAKnotCubic{}, nil
	case Natural:
		return &interp.NaturalCubic{}, nil
	case Akima:
		return &interp.AkimaSpline{}, nil
	case FritschButland:
		return &interp.FritschButland{}, nil
	}
	return nil, errors.NewNotSupportedError("interpolator", int(k))
}

// Spline is a fitted interpolant that extrapolates linearly beyond its
// first and last knot, using the end value and end derivative.
type Spline struct {
	s fittableSpline

	x0, x1   float64
	y0, y1   float64
	dy0, dy1 float64
}

// NewSpline fits a spline of the given kind through (x, y). x must be
// strictly increasing.
func NewSpline(kind Interpolator, x, y []float64) (sp *Spline, err error) {
	defer errors.Recover(&err, "downsampling.NewSpline")

	if len(x) != len(y) {
		return nil, errors.NewDimensionError("downsampling.NewSpline", len(x), len(y), 1)
	}
	if len(x) < MinPoints {
		return nil, errors.NewValueError("downsampling.NewSpline", "at least three knots are required")
	}
	s, err := kind.newSpline()
	if err != nil {
		return nil, err
	}
	if err := s.Fit(x, y); err != nil {
		return nil, errors.Wrapf(err, "%s spline fit failed", kind)
	}
	last := len(x) - 1
	return &Spline{
		s:   s,
		x0:  x[0],
		x1:  x[last],
		y0:  s.Predict(x[0]),
		y1:  s.Predict(x[last]),
		dy0: s.PredictDerivative(x[0]),
		dy1: s.PredictDerivative(x[last]),
	}, nil
}

// At evaluates the spline at t.
func (sp *Spline) At(t float64) float64 {
	switch {
	case t < sp.x0:
		return sp.y0 + sp.dy0*(t-sp.x0)
	case t > sp.x1:
		return sp.y1 + sp.dy1*(t-sp.x1)
	}
	return sp.s.Predict(t)
}

// Resample interpolates values known on source onto target.
func Resample(source, target, values []float64, kind Interpolator) ([]float64, error) {
	sp, err := NewSpline(kind, source, values)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(target))
	for i, t := range target {
		out[i] = sp.At(t)
	}
	return out, nil
}
