package astrom

import (
	"math"
	"testing"
)

// flatWCS is a test transform with a pixel scale of one arcsecond per
// pixel about the origin: pixel (x, y) maps to RA=x/3600, Dec=y/3600
// degrees. Near the origin, angular separations in arcseconds are then
// numerically equal to pixel distances.
type flatWCS struct{}

func (flatWCS) PixelToSky(x, y float64) (float64, float64) {
	return x / 3600.0, y / 3600.0
}

func (flatWCS) SkyToPixel(ra, dec float64) (float64, float64) {
	return ra * 3600.0, dec * 3600.0
}

// testTanWCS returns a TAN WCS matching a real CFHT test field.
func testTanWCS() *TanWCS {
	return &TanWCS{
		CRVal1: 36.930640,
		CRVal2: -4.939560,
		CRPix1: 792.4,
		CRPix2: 560.7,
		CD:     [4]float64{-5.17e-05, 0.0, 0.0, 5.17e-05},
	}
}

func TestTanWCSReferencePixel(t *testing.T) {
	w := testTanWCS()
	ra, dec := w.PixelToSky(w.CRPix1, w.CRPix2)
	if math.Abs(ra-w.CRVal1) > 1e-9 || math.Abs(dec-w.CRVal2) > 1e-9 {
		t.Errorf("reference pixel maps to (%v, %v), want CRVAL (%v, %v)", ra, dec, w.CRVal1, w.CRVal2)
	}
}

func TestTanWCSRoundTrip(t *testing.T) {
	w := testTanWCS()
	pixels := [][2]float64{
		{792.4, 560.7},
		{0, 0},
		{1500, 1100},
		{100.25, 987.5},
	}
	for _, p := range pixels {
		ra, dec := w.PixelToSky(p[0], p[1])
		x, y := w.SkyToPixel(ra, dec)
		if math.Abs(x-p[0]) > 1e-6 || math.Abs(y-p[1]) > 1e-6 {
			t.Errorf("round trip (%v, %v) -> (%v, %v)", p[0], p[1], x, y)
		}
	}
}

func TestTanWCSPixelScale(t *testing.T) {
	w := testTanWCS()
	// |CD| diagonal of 5.17e-5 deg/px is 0.18612 arcsec/px.
	want := 5.17e-05 * 3600.0
	if got := w.PixelScale(); math.Abs(got-want) > 1e-9 {
		t.Errorf("PixelScale = %v, want %v", got, want)
	}
}

func TestSipWCSReducesToTanWithZeroTerms(t *testing.T) {
	tan := testTanWCS()
	sip := &SipWCS{Tan: *tan, A: Poly2D{Order: 2}, B: Poly2D{Order: 2},
		AP: Poly2D{Order: 2}, BP: Poly2D{Order: 2}}

	for _, p := range [][2]float64{{100, 200}, {792.4, 560.7}, {1400, 900}} {
		ra1, dec1 := tan.PixelToSky(p[0], p[1])
		ra2, dec2 := sip.PixelToSky(p[0], p[1])
		if math.Abs(ra1-ra2) > 1e-12 || math.Abs(dec1-dec2) > 1e-12 {
			t.Errorf("zero-term SIP disagrees with TAN at (%v, %v)", p[0], p[1])
		}
	}
}

func TestSipWCSAppliesForwardDistortion(t *testing.T) {
	tan := testTanWCS()
	// Pure quadratic term in x: A[2][0] shifts u by 1e-5*u^2 pixels.
	sip := &SipWCS{
		Tan: *tan,
		A:   Poly2D{Order: 2, Coeffs: [][]float64{{0, 0, 0}, {0, 0, 0}, {1e-5}}},
		B:   Poly2D{Order: 2},
		AP:  Poly2D{Order: 2},
		BP:  Poly2D{Order: 2},
	}

	x, y := 992.4, 560.7 // u = 200, v = 0
	raSip, decSip := sip.PixelToSky(x, y)
	// Same as the TAN solution for a pixel shifted by 1e-5*200^2 = 0.4 px.
	raTan, decTan := tan.PixelToSky(x+0.4, y)
	if math.Abs(raSip-raTan) > 1e-10 || math.Abs(decSip-decTan) > 1e-10 {
		t.Errorf("SIP forward = (%v, %v), want TAN at shifted pixel (%v, %v)",
			raSip, decSip, raTan, decTan)
	}
	if sip.Order() != 2 {
		t.Errorf("Order = %d, want 2", sip.Order())
	}
}

func TestSeparation(t *testing.T) {
	tests := []struct {
		name                 string
		ra1, dec1, ra2, dec2 float64
		wantDeg              float64
		tol                  float64
	}{
		{"coincident", 10, 20, 10, 20, 0, 1e-12},
		{"one degree in dec", 0, 0, 0, 1, 1, 1e-9},
		{"one degree in ra at equator", 40, 0, 41, 0, 1, 1e-9},
		{"ra narrows with dec", 40, 60, 41, 60, 0.5, 1e-4},
		{"wraparound", 359.5, 0, 0.5, 0, 1, 1e-9},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Separation(tc.ra1, tc.dec1, tc.ra2, tc.dec2)
			if math.Abs(got-tc.wantDeg) > tc.tol {
				t.Errorf("Separation = %v, want %v (±%v)", got, tc.wantDeg, tc.tol)
			}
		})
	}
}

func TestSeparationArcsec(t *testing.T) {
	got := SeparationArcsec(0, 0, 0, 1.0/3600.0)
	if math.Abs(got-1.0) > 1e-9 {
		t.Errorf("SeparationArcsec = %v, want 1.0", got)
	}
}

func TestPoly2DEval(t *testing.T) {
	// p(u,v) = 2 + 3u + 4v + 5uv
	p := Poly2D{Order: 2, Coeffs: [][]float64{{2, 4}, {3, 5}}}
	got := p.Eval(2, 3)
	want := 2.0 + 3*2 + 4*3 + 5*2*3
	if got != want {
		t.Errorf("Eval(2,3) = %v, want %v", got, want)
	}
}
