package astrom

import (
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strconv"
)

// LoadSourcesCSV reads a detected-source table from a CSV file with
// columns id,x,y,flux. A header row is skipped when the first field is
// not numeric.
func LoadSourcesCSV(path string) ([]Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open source list: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = 4
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read source list: %w", err)
	}

	var sources []Source
	for i, rec := range records {
		id, err := strconv.ParseInt(rec[0], 10, 64)
		if err != nil {
			if i == 0 {
				continue // header row
			}
			return nil, fmt.Errorf("source list line %d: bad id %q", i+1, rec[0])
		}
		x, err := strconv.ParseFloat(rec[1], 64)
		if err != nil {
			return nil, fmt.Errorf("source list line %d: bad x %q", i+1, rec[1])
		}
		y, err := strconv.ParseFloat(rec[2], 64)
		if err != nil {
			return nil, fmt.Errorf("source list line %d: bad y %q", i+1, rec[2])
		}
		flux, err := strconv.ParseFloat(rec[3], 64)
		if err != nil {
			return nil, fmt.Errorf("source list line %d: bad flux %q", i+1, rec[3])
		}
		sources = append(sources, Source{ID: id, X: x, Y: y, Flux: flux})
	}

	if len(sources) == 0 {
		return nil, ErrNoSources
	}
	return sources, nil
}

// LoadCatalogCSV reads a reference star table from a CSV file with
// columns id,ra,dec,mag (degrees). A header row is skipped when the
// first field is not numeric.
func LoadCatalogCSV(path string) ([]CatalogStar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog list: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = 4
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read catalog list: %w", err)
	}

	var stars []CatalogStar
	for i, rec := range records {
		id, err := strconv.ParseInt(rec[0], 10, 64)
		if err != nil {
			if i == 0 {
				continue // header row
			}
			return nil, fmt.Errorf("catalog list line %d: bad id %q", i+1, rec[0])
		}
		ra, err := strconv.ParseFloat(rec[1], 64)
		if err != nil {
			return nil, fmt.Errorf("catalog list line %d: bad ra %q", i+1, rec[1])
		}
		dec, err := strconv.ParseFloat(rec[2], 64)
		if err != nil {
			return nil, fmt.Errorf("catalog list line %d: bad dec %q", i+1, rec[2])
		}
		mag, err := strconv.ParseFloat(rec[3], 64)
		if err != nil {
			return nil, fmt.Errorf("catalog list line %d: bad mag %q", i+1, rec[3])
		}
		stars = append(stars, CatalogStar{ID: id, RA: ra, Dec: dec, Mag: mag})
	}

	if len(stars) == 0 {
		return nil, ErrNoCatalog
	}
	return stars, nil
}

// BrightestN returns the n highest-flux sources, in descending flux
// order. The input is not modified. If n exceeds the input length the
// whole list is returned.
func BrightestN(sources []Source, n int) []Source {
	sorted := make([]Source, len(sources))
	copy(sorted, sources)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Flux > sorted[j].Flux
	})
	if n > len(sorted) {
		n = len(sorted)
	}
	return sorted[:n]
}
