// Package sipfit fits SIP distortion polynomials to a cleaned match
// list, refining a linear WCS into a distortion-corrected one. It is
// the default DistortionFitter; the solve loop only depends on the
// interface, so alternative fitters can substitute.
package sipfit

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/skyfit/internal/astrom"
)

// ErrTooFewMatches is returned when the match list cannot constrain
// even the lowest-order polynomial.
var ErrTooFewMatches = errors.New("sipfit: too few matches for a distortion fit")

// reverseGridSize is the sampling density (per axis) used to fit the
// reverse polynomials against the forward model.
const reverseGridSize = 12

// Fitter fits SIP polynomials by linear least squares on the match
// residuals. The zero value is ready to use.
type Fitter struct{}

// NewFitter returns a ready-to-use Fitter.
func NewFitter() *Fitter {
	return &Fitter{}
}

// Fit computes a SIP-corrected WCS from a cleaned match list and the
// linear solution it was matched under. Orders from 2 upward are tried
// until the RMS residual scatter drops to maxScatterArcsec; if no order
// up to maxOrder reaches that, the order with the smallest scatter is
// returned. Orders the match list cannot constrain are skipped; if even
// order 2 is unconstrained, ErrTooFewMatches is returned.
func (f *Fitter) Fit(matches []astrom.Match, linear *astrom.TanWCS, maxScatterArcsec float64, maxOrder int) (*astrom.FitResult, error) {
	if len(matches) == 0 {
		return nil, astrom.ErrNoMatches
	}
	if linear == nil {
		return nil, errors.New("sipfit: linear WCS is required")
	}
	if maxOrder < 2 {
		return nil, fmt.Errorf("sipfit: max order must be at least 2, got %d", maxOrder)
	}

	var best *astrom.FitResult
	for order := 2; order <= maxOrder; order++ {
		if len(matches) < len(sipExponents(order, 2)) {
			break // higher orders are even less constrained
		}
		wcs, err := fitOrder(matches, linear, order)
		if err != nil {
			return nil, err
		}
		scatter := rmsScatterArcsec(matches, wcs)
		if best == nil || scatter < best.ScatterArcsec {
			best = &astrom.FitResult{WCS: wcs, Order: order, ScatterArcsec: scatter}
		}
		if scatter <= maxScatterArcsec {
			break
		}
	}

	if best == nil {
		return nil, fmt.Errorf("%w: %d matches cannot constrain an order-2 fit", ErrTooFewMatches, len(matches))
	}
	return best, nil
}

// fitOrder solves for the forward polynomials A and B at a fixed order,
// then fits the reverse polynomials AP and BP against the forward model.
func fitOrder(matches []astrom.Match, linear *astrom.TanWCS, order int) (*astrom.SipWCS, error) {
	exps := sipExponents(order, 2)
	n := len(matches)

	// A(u,v) must carry each source from its observed pixel to the
	// pixel the linear WCS predicts for its catalog star, and likewise
	// B for the y axis.
	design := mat.NewDense(n, len(exps), nil)
	rhs := mat.NewDense(n, 2, nil)
	for i, m := range matches {
		u := m.Src.X - linear.CRPix1
		v := m.Src.Y - linear.CRPix2
		for j, e := range exps {
			design.Set(i, j, math.Pow(u, float64(e[0]))*math.Pow(v, float64(e[1])))
		}
		lx, ly := linear.SkyToPixel(m.Ref.RA, m.Ref.Dec)
		rhs.Set(i, 0, lx-m.Src.X)
		rhs.Set(i, 1, ly-m.Src.Y)
	}

	var qr mat.QR
	qr.Factorize(design)
	var sol mat.Dense
	if err := qr.SolveTo(&sol, false, rhs); err != nil {
		return nil, fmt.Errorf("sipfit: forward solve failed at order %d: %w", order, err)
	}

	a := polyFromColumn(&sol, 0, exps, order)
	b := polyFromColumn(&sol, 1, exps, order)

	ap, bp, err := fitReverse(matches, linear, a, b, order)
	if err != nil {
		return nil, err
	}

	return &astrom.SipWCS{Tan: *linear, A: a, B: b, AP: ap, BP: bp}, nil
}

// fitReverse fits the reverse polynomials on a pixel grid spanning the
// matched field: for grid offsets (u, v) pushed forward to (u', v'),
// AP and BP must carry (u', v') back to (u, v). The reverse fit
// includes linear terms, which absorb the local slope of the forward
// correction.
func fitReverse(matches []astrom.Match, linear *astrom.TanWCS, a, b astrom.Poly2D, order int) (astrom.Poly2D, astrom.Poly2D, error) {
	minU, minV := math.Inf(1), math.Inf(1)
	maxU, maxV := math.Inf(-1), math.Inf(-1)
	for _, m := range matches {
		u := m.Src.X - linear.CRPix1
		v := m.Src.Y - linear.CRPix2
		minU = math.Min(minU, u)
		minV = math.Min(minV, v)
		maxU = math.Max(maxU, u)
		maxV = math.Max(maxV, v)
	}

	exps := sipExponents(order, 1)
	n := reverseGridSize * reverseGridSize
	design := mat.NewDense(n, len(exps), nil)
	rhs := mat.NewDense(n, 2, nil)

	row := 0
	for i := 0; i < reverseGridSize; i++ {
		for j := 0; j < reverseGridSize; j++ {
			u := minU + (maxU-minU)*float64(i)/float64(reverseGridSize-1)
			v := minV + (maxV-minV)*float64(j)/float64(reverseGridSize-1)
			uc := u + a.Eval(u, v)
			vc := v + b.Eval(u, v)
			for k, e := range exps {
				design.Set(row, k, math.Pow(uc, float64(e[0]))*math.Pow(vc, float64(e[1])))
			}
			rhs.Set(row, 0, u-uc)
			rhs.Set(row, 1, v-vc)
			row++
		}
	}

	var qr mat.QR
	qr.Factorize(design)
	var sol mat.Dense
	if err := qr.SolveTo(&sol, false, rhs); err != nil {
		return astrom.Poly2D{}, astrom.Poly2D{}, fmt.Errorf("sipfit: reverse solve failed at order %d: %w", order, err)
	}

	ap := polyFromColumn(&sol, 0, exps, order)
	bp := polyFromColumn(&sol, 1, exps, order)
	return ap, bp, nil
}

// sipExponents lists the (p, q) exponent pairs with
// minDegree <= p+q <= order, in a fixed deterministic order. Forward
// polynomials start at degree 2 (lower degrees are absorbed by CRPIX
// and the CD matrix); reverse polynomials start at degree 1.
func sipExponents(order, minDegree int) [][2]int {
	var exps [][2]int
	for p := 0; p <= order; p++ {
		for q := 0; p+q <= order; q++ {
			if p+q < minDegree {
				continue
			}
			exps = append(exps, [2]int{p, q})
		}
	}
	return exps
}

// polyFromColumn packs one least-squares solution column into a Poly2D.
func polyFromColumn(sol *mat.Dense, col int, exps [][2]int, order int) astrom.Poly2D {
	coeffs := make([][]float64, order+1)
	for i := range coeffs {
		coeffs[i] = make([]float64, order+1)
	}
	for j, e := range exps {
		coeffs[e[0]][e[1]] = sol.At(j, col)
	}
	return astrom.Poly2D{Order: order, Coeffs: coeffs}
}

// rmsScatterArcsec measures the fit quality: the RMS angular residual
// between each catalog position and its source pushed through wcs.
func rmsScatterArcsec(matches []astrom.Match, wcs astrom.WCS) float64 {
	sum := 0.0
	for _, m := range matches {
		ra, dec := wcs.PixelToSky(m.Src.X, m.Src.Y)
		d := astrom.SeparationArcsec(ra, dec, m.Ref.RA, m.Ref.Dec)
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(matches)))
}
