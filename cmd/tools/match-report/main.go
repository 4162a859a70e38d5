// Command match-report renders diagnostic plots for a persisted solve
// run: an interactive HTML residual map (go-echarts) and a static PNG
// of residual size against catalog magnitude (gonum/plot).
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/skyfit/internal/astrom"
	"github.com/banshee-data/skyfit/internal/catalog"
	"github.com/banshee-data/skyfit/internal/security"
)

var (
	dbPath    = flag.String("db", "skyfit.db", "Catalog and run database")
	runID     = flag.String("run", "", "Run id to report (newest when empty)")
	outputDir = flag.String("out", "reports", "Output directory")
	listRuns  = flag.Bool("list", false, "List persisted runs and exit")
)

func main() {
	flag.Parse()

	db, err := catalog.Open(*dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	store := catalog.NewMatchStore(db.DB)

	if *listRuns {
		printRuns(store)
		return
	}

	id := *runID
	if id == "" {
		runs, err := store.ListRuns()
		if err != nil {
			log.Fatalf("Failed to list runs: %v", err)
		}
		if len(runs) == 0 {
			log.Fatal("No runs recorded yet")
		}
		id = runs[0].RunID
	}

	table, err := store.LoadRun(id)
	if err != nil {
		log.Fatalf("Failed to load run %s: %v", id, err)
	}

	if err := os.MkdirAll(*outputDir, 0755); err != nil {
		log.Fatalf("Failed to create output dir: %v", err)
	}

	// Run ids land in filenames, so sanitize before building paths.
	safeID := security.SanitizeFilename(id)

	htmlFile := filepath.Join(*outputDir, fmt.Sprintf("residuals_%s.html", safeID))
	pngFile := filepath.Join(*outputDir, fmt.Sprintf("residuals_mag_%s.png", safeID))
	for _, f := range []string{htmlFile, pngFile} {
		if err := security.ValidatePathWithinDirectory(f, *outputDir); err != nil {
			log.Fatalf("Refusing output path: %v", err)
		}
	}

	if err := renderResidualMap(table, id, htmlFile); err != nil {
		log.Fatalf("Failed to render residual map: %v", err)
	}
	log.Printf("Wrote %s", htmlFile)

	if err := renderMagnitudePlot(table, id, pngFile); err != nil {
		log.Fatalf("Failed to render magnitude plot: %v", err)
	}
	log.Printf("Wrote %s", pngFile)
}

func printRuns(store *catalog.MatchStore) {
	runs, err := store.ListRuns()
	if err != nil {
		log.Fatalf("Failed to list runs: %v", err)
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded.")
		return
	}
	for _, r := range runs {
		state := "refined"
		if r.Degraded {
			state = "degraded"
		}
		fmt.Printf("%s  %s  %4d matches  %s\n", r.RunID, r.CreatedAt, r.MatchCount, state)
	}
}

// colIndex finds a column in the table schema.
func colIndex(table *astrom.MatchTable, name string) (int, error) {
	for i, col := range table.Columns {
		if col == name {
			return i, nil
		}
	}
	return 0, fmt.Errorf("table has no %q column", name)
}

// renderResidualMap writes an HTML scatter of source pixel positions
// coloured by match residual.
func renderResidualMap(table *astrom.MatchTable, id, path string) error {
	xi, err := colIndex(table, astrom.SrcFieldPrefix+"x")
	if err != nil {
		return err
	}
	yi, err := colIndex(table, astrom.SrcFieldPrefix+"y")
	if err != nil {
		return err
	}
	di, err := colIndex(table, astrom.DistanceColumn)
	if err != nil {
		return err
	}

	data := make([]opts.ScatterData, 0, len(table.Rows))
	maxDist := 0.0
	for _, row := range table.Rows {
		if row[di] > maxDist {
			maxDist = row[di]
		}
		data = append(data, opts.ScatterData{Value: []interface{}{row[xi], row[yi], row[di]}})
	}
	if maxDist == 0 {
		maxDist = 1
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Astrometric Residuals", Theme: "dark", Width: "900px", Height: "900px"}),
		charts.WithTitleOpts(opts.Title{Title: "Astrometric Residuals", Subtitle: fmt.Sprintf("run=%s matches=%d", id, len(data))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "X (px)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Y (px)", NameLocation: "middle", NameGap: 30}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        float32(maxDist),
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: []string{"#440154", "#31688e", "#35b779", "#fde725"}},
		}),
	)
	scatter.AddSeries("residual (arcsec)", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 5}))

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()
	return scatter.Render(f)
}

// renderMagnitudePlot writes a PNG scatter of residual against catalog
// magnitude. Systematic growth toward faint magnitudes points at
// centroiding noise rather than a bad transform.
func renderMagnitudePlot(table *astrom.MatchTable, id, path string) error {
	mi, err := colIndex(table, astrom.RefFieldPrefix+"mag")
	if err != nil {
		return err
	}
	di, err := colIndex(table, astrom.DistanceColumn)
	if err != nil {
		return err
	}

	pts := make(plotter.XYs, 0, len(table.Rows))
	for _, row := range table.Rows {
		pts = append(pts, plotter.XY{X: row[mi], Y: row[di]})
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Residual vs magnitude (run %s)", id)
	p.X.Label.Text = "Catalog magnitude"
	p.Y.Label.Text = "Residual (arcsec)"

	sc, err := plotter.NewScatter(pts)
	if err != nil {
		return fmt.Errorf("build scatter: %w", err)
	}
	sc.GlyphStyle.Radius = vg.Points(2)
	p.Add(sc)
	p.Add(plotter.NewGrid())

	if err := p.Save(8*vg.Inch, 6*vg.Inch, path); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}
