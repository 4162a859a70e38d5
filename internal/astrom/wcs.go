package astrom

import (
	"math"

	"github.com/banshee-data/skyfit/internal/units"
)

// WCS maps image pixel coordinates to celestial coordinates and back.
// Implementations are immutable; the solve loop replaces a WCS rather
// than mutating one in place.
type WCS interface {
	// PixelToSky converts a pixel position to (RA, Dec) in degrees.
	PixelToSky(x, y float64) (raDeg, decDeg float64)
	// SkyToPixel converts (RA, Dec) in degrees to a pixel position.
	SkyToPixel(raDeg, decDeg float64) (x, y float64)
}

// TanWCS is a linear (gnomonic, "RA---TAN"/"DEC--TAN") world coordinate
// system in the FITS convention: CRVAL is the sky position of the
// reference pixel CRPIX, and CD rotates/scales pixel offsets into
// degrees of intermediate world coordinates.
type TanWCS struct {
	CRVal1 float64    // Reference RA (degrees)
	CRVal2 float64    // Reference Dec (degrees)
	CRPix1 float64    // Reference pixel X
	CRPix2 float64    // Reference pixel Y
	CD     [4]float64 // Row-major CD matrix (degrees/pixel): cd11, cd12, cd21, cd22
}

// PixelToSky converts a pixel position to (RA, Dec) in degrees using
// the gnomonic deprojection about CRVAL.
func (w *TanWCS) PixelToSky(x, y float64) (float64, float64) {
	u := x - w.CRPix1
	v := y - w.CRPix2
	xi := w.CD[0]*u + w.CD[1]*v
	eta := w.CD[2]*u + w.CD[3]*v
	return deprojectTan(xi, eta, w.CRVal1, w.CRVal2)
}

// SkyToPixel converts (RA, Dec) in degrees to a pixel position.
func (w *TanWCS) SkyToPixel(raDeg, decDeg float64) (float64, float64) {
	xi, eta := projectTan(raDeg, decDeg, w.CRVal1, w.CRVal2)
	u, v := w.invertCD(xi, eta)
	return u + w.CRPix1, v + w.CRPix2
}

// PixelScale returns the mean pixel scale in arcseconds per pixel,
// derived from the CD matrix determinant.
func (w *TanWCS) PixelScale() float64 {
	det := w.CD[0]*w.CD[3] - w.CD[1]*w.CD[2]
	return units.DegToArcsec(math.Sqrt(math.Abs(det)))
}

// invertCD applies the inverse CD matrix to intermediate world
// coordinates, yielding pixel offsets from CRPIX.
func (w *TanWCS) invertCD(xi, eta float64) (u, v float64) {
	det := w.CD[0]*w.CD[3] - w.CD[1]*w.CD[2]
	u = (w.CD[3]*xi - w.CD[1]*eta) / det
	v = (w.CD[0]*eta - w.CD[2]*xi) / det
	return u, v
}

// projectTan computes gnomonic intermediate world coordinates (xi, eta)
// in degrees for a sky position about the tangent point (ra0, dec0).
func projectTan(raDeg, decDeg, ra0Deg, dec0Deg float64) (xi, eta float64) {
	ra := units.DegToRad(raDeg)
	dec := units.DegToRad(decDeg)
	ra0 := units.DegToRad(ra0Deg)
	dec0 := units.DegToRad(dec0Deg)

	sinDec, cosDec := math.Sincos(dec)
	sinDec0, cosDec0 := math.Sincos(dec0)
	cosDRA := math.Cos(ra - ra0)

	den := sinDec*sinDec0 + cosDec*cosDec0*cosDRA
	xi = units.RadToDeg(cosDec * math.Sin(ra-ra0) / den)
	eta = units.RadToDeg((sinDec*cosDec0 - cosDec*sinDec0*cosDRA) / den)
	return xi, eta
}

// deprojectTan inverts projectTan: intermediate world coordinates
// (degrees) about the tangent point back to (RA, Dec) in degrees.
func deprojectTan(xiDeg, etaDeg, ra0Deg, dec0Deg float64) (raDeg, decDeg float64) {
	xi := units.DegToRad(xiDeg)
	eta := units.DegToRad(etaDeg)
	ra0 := units.DegToRad(ra0Deg)
	dec0 := units.DegToRad(dec0Deg)

	sinDec0, cosDec0 := math.Sincos(dec0)
	den := cosDec0 - eta*sinDec0

	ra := ra0 + math.Atan2(xi, den)
	dec := math.Atan2(sinDec0+eta*cosDec0, math.Hypot(xi, den))
	return units.WrapRA(units.RadToDeg(ra)), units.RadToDeg(dec)
}

// Poly2D is a two-dimensional polynomial sum over coefficients
// Coeffs[p][q] * u^p * v^q for p+q <= Order. Coefficient rows may be
// shorter than Order+1; missing entries are zero.
type Poly2D struct {
	Order  int
	Coeffs [][]float64
}

// Eval evaluates the polynomial at (u, v).
func (p Poly2D) Eval(u, v float64) float64 {
	sum := 0.0
	for i := 0; i < len(p.Coeffs) && i <= p.Order; i++ {
		for j := 0; j < len(p.Coeffs[i]) && i+j <= p.Order; j++ {
			if p.Coeffs[i][j] == 0 {
				continue
			}
			sum += p.Coeffs[i][j] * math.Pow(u, float64(i)) * math.Pow(v, float64(j))
		}
	}
	return sum
}

// SipWCS is a TAN WCS with Simple Imaging Polynomial distortion terms.
// A and B correct pixel offsets before the CD matrix is applied
// (forward direction); AP and BP correct intermediate pixel offsets
// after the inverse CD matrix (reverse direction).
type SipWCS struct {
	Tan TanWCS
	A   Poly2D // Forward correction, x axis
	B   Poly2D // Forward correction, y axis
	AP  Poly2D // Reverse correction, x axis
	BP  Poly2D // Reverse correction, y axis
}

// Order returns the polynomial order of the forward distortion terms.
func (w *SipWCS) Order() int {
	return w.A.Order
}

// PixelToSky converts a pixel position to (RA, Dec) in degrees,
// applying the forward distortion polynomials before the linear part.
func (w *SipWCS) PixelToSky(x, y float64) (float64, float64) {
	u := x - w.Tan.CRPix1
	v := y - w.Tan.CRPix2
	du := w.A.Eval(u, v)
	dv := w.B.Eval(u, v)
	uc := u + du
	vc := v + dv
	xi := w.Tan.CD[0]*uc + w.Tan.CD[1]*vc
	eta := w.Tan.CD[2]*uc + w.Tan.CD[3]*vc
	return deprojectTan(xi, eta, w.Tan.CRVal1, w.Tan.CRVal2)
}

// SkyToPixel converts (RA, Dec) in degrees to a pixel position using
// the reverse distortion polynomials. The reverse polynomials are an
// approximate inverse of the forward ones, as in the SIP convention.
func (w *SipWCS) SkyToPixel(raDeg, decDeg float64) (float64, float64) {
	xi, eta := projectTan(raDeg, decDeg, w.Tan.CRVal1, w.Tan.CRVal2)
	uc, vc := w.Tan.invertCD(xi, eta)
	u := uc + w.AP.Eval(uc, vc)
	v := vc + w.BP.Eval(uc, vc)
	return u + w.Tan.CRPix1, v + w.Tan.CRPix2
}

// Separation returns the great-circle angular separation between two
// sky positions, in degrees. Uses the haversine form, which is stable
// for small separations.
func Separation(ra1Deg, dec1Deg, ra2Deg, dec2Deg float64) float64 {
	ra1 := units.DegToRad(ra1Deg)
	dec1 := units.DegToRad(dec1Deg)
	ra2 := units.DegToRad(ra2Deg)
	dec2 := units.DegToRad(dec2Deg)

	sinDRA := math.Sin((ra2 - ra1) / 2)
	sinDDec := math.Sin((dec2 - dec1) / 2)
	h := sinDDec*sinDDec + math.Cos(dec1)*math.Cos(dec2)*sinDRA*sinDRA
	return units.RadToDeg(2 * math.Asin(math.Min(1, math.Sqrt(h))))
}

// SeparationArcsec is Separation expressed in arcseconds.
func SeparationArcsec(ra1Deg, dec1Deg, ra2Deg, dec2Deg float64) float64 {
	return units.DegToArcsec(Separation(ra1Deg, dec1Deg, ra2Deg, dec2Deg))
}
