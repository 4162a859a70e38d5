package astrom

import (
	"errors"
	"fmt"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// ErrNoMatches is returned when an empty match list is supplied where a
// non-empty one is required.
var ErrNoMatches = errors.New("astrom: no matches provided")

// minCleanMatches is the smallest surviving set the cleaner will
// produce. When a clipping pass would shrink the set below this floor,
// the pass is discarded and the previous set returned; callers decide
// whether such a small set is usable.
const minCleanMatches = 3

// Clean removes outliers from a match list by iterative sigma clipping.
// Residual separations are recomputed under wcs each pass; any match
// whose residual exceeds median + nsigma*stddev is dropped, and the
// pass repeats on the survivors until a pass removes nothing. The clip
// is centred on the median rather than the mean: a single gross outlier
// inflates the mean enough to shield itself from a mean-centred cut,
// while the median stays with the inliers.
//
// The result is never larger than the input, and re-running Clean on
// its own output with the same nsigma returns it unchanged.
func Clean(matches []Match, wcs WCS, nsigma float64) ([]Match, error) {
	if len(matches) == 0 {
		return nil, ErrNoMatches
	}
	if nsigma <= 0 {
		return nil, fmt.Errorf("astrom: clipping threshold must be positive, got %g", nsigma)
	}

	cur := matches
	for {
		residuals := make([]float64, len(cur))
		for i, m := range cur {
			ra, dec := wcs.PixelToSky(m.Src.X, m.Src.Y)
			residuals[i] = SeparationArcsec(ra, dec, m.Ref.RA, m.Ref.Dec)
		}

		sorted := make([]float64, len(residuals))
		copy(sorted, residuals)
		sort.Float64s(sorted)
		median := stat.Quantile(0.5, stat.Empirical, sorted, nil)
		_, stddev := stat.MeanStdDev(residuals, nil)
		threshold := median + nsigma*stddev

		keep := make([]Match, 0, len(cur))
		for i, m := range cur {
			if residuals[i] <= threshold {
				keep = append(keep, m)
			}
		}

		if len(keep) == len(cur) {
			// Converged: nothing removed this pass.
			return cur, nil
		}
		if len(keep) < minCleanMatches {
			// Clipping would drop below the floor; keep the last set
			// that met it rather than returning an empty list.
			return cur, nil
		}
		cur = keep
	}
}
