package astrom

// Source represents a detected point source in an image, with pixel
// coordinates from the detection stage.
type Source struct {
	ID   int64
	X    float64 // Pixel column (1-based, FITS convention)
	Y    float64 // Pixel row (1-based, FITS convention)
	Flux float64 // Instrumental flux (arbitrary units)
}

// CatalogStar represents a reference star from the astrometric catalog.
type CatalogStar struct {
	ID  int64
	RA  float64 // Right ascension (degrees, ICRS)
	Dec float64 // Declination (degrees, ICRS)
	Mag float64 // Catalog magnitude
}

// Match pairs a catalog star with a detected source believed to be the
// same object. Distance is the angular separation (arcseconds) implied
// by the transform that produced the match; matches are transient and
// recomputed whenever the transform changes.
type Match struct {
	Ref      CatalogStar
	Src      Source
	Distance float64
}

// FieldRecord exposes a record's scalar fields in a stable order so the
// denormalizer can build a combined schema. FieldNames and FieldValues
// must return the same length in the same order.
type FieldRecord interface {
	FieldNames() []string
	FieldValues() []float64
}

// FieldNames returns the source record's field names in schema order.
func (s Source) FieldNames() []string {
	return []string{"id", "x", "y", "flux"}
}

// FieldValues returns the source record's values in schema order.
func (s Source) FieldValues() []float64 {
	return []float64{float64(s.ID), s.X, s.Y, s.Flux}
}

// FieldNames returns the catalog record's field names in schema order.
func (c CatalogStar) FieldNames() []string {
	return []string{"id", "ra", "dec", "mag"}
}

// FieldValues returns the catalog record's values in schema order.
func (c CatalogStar) FieldValues() []float64 {
	return []float64{float64(c.ID), c.RA, c.Dec, c.Mag}
}
