package astrom

// Catalog-side and source-side column prefixes for denormalized match
// tables. The two namespaces are disjoint so catalog and source records
// can share field names without collision.
const (
	RefFieldPrefix = "ref_"
	SrcFieldPrefix = "src_"
	// DistanceColumn holds the match separation in arcseconds.
	DistanceColumn = "distance"
)

// MatchTable is a flat, self-contained record set with one row per
// match: every catalog field (prefixed ref_), every source field
// (prefixed src_), and the match distance. Rows preserve match order.
// Meta carries out-of-band attributes; it is not a per-row field.
type MatchTable struct {
	Columns []string
	Rows    [][]float64
	Meta    map[string]string
}

// Denormalize flattens a match list into a MatchTable for storage or
// inspection. Normally matches are recorded as a join table of
// (catalog ID, source ID) pairs; the denormalized form repeats every
// field of both records so no separate catalog read is needed.
//
// The match list must be non-empty: the combined schema is derived from
// the records themselves, so an empty list is a caller error. If meta
// is non-nil it is attached to the table; callers may also attach
// metadata after construction.
func Denormalize(matches []Match, meta map[string]string) (*MatchTable, error) {
	if len(matches) == 0 {
		return nil, ErrNoMatches
	}

	refNames := matches[0].Ref.FieldNames()
	srcNames := matches[0].Src.FieldNames()

	columns := make([]string, 0, len(refNames)+len(srcNames)+1)
	for _, name := range refNames {
		columns = append(columns, RefFieldPrefix+name)
	}
	for _, name := range srcNames {
		columns = append(columns, SrcFieldPrefix+name)
	}
	columns = append(columns, DistanceColumn)

	rows := make([][]float64, 0, len(matches))
	for _, m := range matches {
		row := make([]float64, 0, len(columns))
		row = append(row, m.Ref.FieldValues()...)
		row = append(row, m.Src.FieldValues()...)
		row = append(row, m.Distance)
		rows = append(rows, row)
	}

	return &MatchTable{Columns: columns, Rows: rows, Meta: meta}, nil
}
