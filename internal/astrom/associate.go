package astrom

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrNoCatalog is returned when an empty catalog point set is
	// supplied where a non-empty one is required.
	ErrNoCatalog = errors.New("astrom: catalog point set is empty")
	// ErrNoSources is returned when an empty source point set is
	// supplied where a non-empty one is required.
	ErrNoSources = errors.New("astrom: source point set is empty")
)

// Associate pairs detected sources with catalog stars. Every source is
// mapped through wcs into sky coordinates; for each source, the nearest
// catalog star not already paired is selected, and the pair is accepted
// only if the great-circle separation is at most tolArcsec.
//
// The assignment is greedy one-to-one: each source and each catalog
// star appears in at most one match, and a catalog star consumed by an
// earlier source is excluded for later sources even when the later
// source is nearer. Ties are broken by lowest distance, then by catalog
// insertion order. Downstream residual statistics depend on this exact
// policy; do not substitute an optimal bipartite matching.
//
// Both point sets must be non-empty and tolArcsec must be positive;
// violations are errors, not empty results.
func Associate(catalog []CatalogStar, sources []Source, wcs WCS, tolArcsec float64) ([]Match, error) {
	if len(catalog) == 0 {
		return nil, ErrNoCatalog
	}
	if len(sources) == 0 {
		return nil, ErrNoSources
	}
	if tolArcsec <= 0 {
		return nil, fmt.Errorf("astrom: match tolerance must be positive, got %g", tolArcsec)
	}

	// Project every source once.
	srcRA := make([]float64, len(sources))
	srcDec := make([]float64, len(sources))
	for i, src := range sources {
		srcRA[i], srcDec[i] = wcs.PixelToSky(src.X, src.Y)
	}

	refUsed := make([]bool, len(catalog))
	var matches []Match

	for si, src := range sources {
		best := -1
		bestDist := math.Inf(1)

		for ci, ref := range catalog {
			if refUsed[ci] {
				continue
			}
			d := SeparationArcsec(srcRA[si], srcDec[si], ref.RA, ref.Dec)
			// Strict less keeps the earlier catalog star on equal distance.
			if d < bestDist {
				bestDist = d
				best = ci
			}
		}

		if best >= 0 && bestDist <= tolArcsec {
			refUsed[best] = true
			matches = append(matches, Match{
				Ref:      catalog[best],
				Src:      src,
				Distance: bestDist,
			})
		}
	}

	return matches, nil
}
