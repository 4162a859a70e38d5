// Package units provides shared constants and conversions for angular units
package units

import (
	"fmt"
	"math"
)

// Arcseconds per degree. Catalog search radii and match tolerances are
// expressed in arcseconds; WCS coordinates are in degrees.
const ArcsecPerDeg = 3600.0

// DegToRad converts degrees to radians
func DegToRad(deg float64) float64 {
	return deg * math.Pi / 180.0
}

// RadToDeg converts radians to degrees
func RadToDeg(rad float64) float64 {
	return rad * 180.0 / math.Pi
}

// DegToArcsec converts degrees to arcseconds
func DegToArcsec(deg float64) float64 {
	return deg * ArcsecPerDeg
}

// ArcsecToDeg converts arcseconds to degrees
func ArcsecToDeg(arcsec float64) float64 {
	return arcsec / ArcsecPerDeg
}

// WrapRA normalises a right ascension into [0, 360) degrees
func WrapRA(raDeg float64) float64 {
	ra := math.Mod(raDeg, 360.0)
	if ra < 0 {
		ra += 360.0
	}
	return ra
}

// FormatRA formats a right ascension (degrees) as sexagesimal HH:MM:SS.SSS
func FormatRA(raDeg float64) string {
	hours := WrapRA(raDeg) / 15.0
	h := int(hours)
	minutes := (hours - float64(h)) * 60.0
	m := int(minutes)
	s := (minutes - float64(m)) * 60.0
	return fmt.Sprintf("%02d:%02d:%06.3f", h, m, s)
}

// FormatDec formats a declination (degrees) as sexagesimal ±DD:MM:SS.SS
func FormatDec(decDeg float64) string {
	sign := "+"
	if decDeg < 0 {
		sign = "-"
		decDeg = -decDeg
	}
	d := int(decDeg)
	minutes := (decDeg - float64(d)) * 60.0
	m := int(minutes)
	s := (minutes - float64(m)) * 60.0
	return fmt.Sprintf("%s%02d:%02d:%05.2f", sign, d, m, s)
}
