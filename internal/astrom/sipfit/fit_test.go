package sipfit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/skyfit/internal/astrom"
)

// distortedField builds a synthetic match list from a known quadratic
// distortion: sources on a pixel grid, catalog stars at the sky
// positions the distorted WCS assigns them.
func distortedField(t *testing.T) ([]astrom.Match, *astrom.TanWCS, *astrom.SipWCS) {
	t.Helper()

	tan := &astrom.TanWCS{
		CRVal1: 36.930640,
		CRVal2: -4.939560,
		CRPix1: 1000,
		CRPix2: 1000,
		CD:     [4]float64{-5.17e-05, 0, 0, 5.17e-05},
	}
	truth := &astrom.SipWCS{
		Tan: *tan,
		A: astrom.Poly2D{Order: 2, Coeffs: [][]float64{
			{0, 0, -5e-7}, {0, 0}, {1e-6},
		}},
		B: astrom.Poly2D{Order: 2, Coeffs: [][]float64{
			{0, 0, 0}, {0, 8e-7}, {0},
		}},
		AP: astrom.Poly2D{Order: 2},
		BP: astrom.Poly2D{Order: 2},
	}

	var matches []astrom.Match
	id := int64(0)
	for x := 150.0; x <= 1850; x += 280 {
		for y := 150.0; y <= 1850; y += 280 {
			id++
			ra, dec := truth.PixelToSky(x, y)
			matches = append(matches, astrom.Match{
				Ref: astrom.CatalogStar{ID: id, RA: ra, Dec: dec, Mag: 15},
				Src: astrom.Source{ID: 1000 + id, X: x, Y: y, Flux: 500},
			})
		}
	}
	return matches, tan, truth
}

func TestFitRecoversQuadraticDistortion(t *testing.T) {
	matches, tan, _ := distortedField(t)

	res, err := NewFitter().Fit(matches, tan, 0.01, 4)
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.Equal(t, 2, res.Order, "quadratic truth should be captured at order 2")
	assert.Less(t, res.ScatterArcsec, 0.01)

	// The fitted WCS must carry each source to its catalog position.
	for _, m := range matches {
		ra, dec := res.WCS.PixelToSky(m.Src.X, m.Src.Y)
		sep := astrom.SeparationArcsec(ra, dec, m.Ref.RA, m.Ref.Dec)
		assert.Less(t, sep, 0.01, "source %d residual", m.Src.ID)
	}
}

func TestFitReverseTransformRoundTrips(t *testing.T) {
	matches, tan, _ := distortedField(t)

	res, err := NewFitter().Fit(matches, tan, 0.01, 4)
	require.NoError(t, err)

	sip, ok := res.WCS.(*astrom.SipWCS)
	require.True(t, ok, "fitter should produce a SIP WCS")

	for _, m := range matches {
		x, y := sip.SkyToPixel(m.Ref.RA, m.Ref.Dec)
		assert.InDelta(t, m.Src.X, x, 0.02, "source %d x", m.Src.ID)
		assert.InDelta(t, m.Src.Y, y, 0.02, "source %d y", m.Src.ID)
	}
}

func TestFitStopsAtMaxOrder(t *testing.T) {
	matches, tan, _ := distortedField(t)

	// An unreachable scatter target forces the fitter through every
	// order; the best result must still come back rather than an error.
	res, err := NewFitter().Fit(matches, tan, 1e-15, 3)
	require.NoError(t, err)
	assert.LessOrEqual(t, res.Order, 3)
	assert.GreaterOrEqual(t, res.ScatterArcsec, 0.0)
}

func TestFitTooFewMatches(t *testing.T) {
	matches, tan, _ := distortedField(t)

	_, err := NewFitter().Fit(matches[:2], tan, 0.01, 4)
	assert.ErrorIs(t, err, ErrTooFewMatches)
}

func TestFitPreconditions(t *testing.T) {
	matches, tan, _ := distortedField(t)

	_, err := NewFitter().Fit(nil, tan, 0.01, 4)
	assert.ErrorIs(t, err, astrom.ErrNoMatches)

	_, err = NewFitter().Fit(matches, nil, 0.01, 4)
	assert.Error(t, err)

	_, err = NewFitter().Fit(matches, tan, 0.01, 1)
	assert.Error(t, err)
}
