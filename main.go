// Command skyfit refines an image's world coordinate solution against
// a reference star catalog. It loads detected sources from CSV, runs
// the match-clean-fit loop (optionally seeded by a blind solve from a
// network solver), and records the surviving matches in sqlite.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/banshee-data/skyfit/internal/astrom"
	"github.com/banshee-data/skyfit/internal/astrom/netsolve"
	"github.com/banshee-data/skyfit/internal/astrom/sipfit"
	"github.com/banshee-data/skyfit/internal/catalog"
	"github.com/banshee-data/skyfit/internal/config"
	"github.com/banshee-data/skyfit/internal/units"
	"github.com/banshee-data/skyfit/internal/version"
)

var (
	sourcesPath = flag.String("sources", "", "Detected source CSV (id,x,y,flux)")
	dbPath      = flag.String("db", "skyfit.db", "Catalog and run database")
	configPath  = flag.String("config", "", "Solver policy JSON (built-in defaults when empty)")
	solverURL   = flag.String("solver", "http://localhost:8080", "Blind solver base URL")
	guessPath   = flag.String("guess", "", "Initial WCS guess JSON (blind solve when empty)")
	forceBlind  = flag.Bool("blind", false, "Blind-solve even when a guess is supplied")
	catalogCSV  = flag.String("load-catalog", "", "Load a reference star CSV (id,ra,dec,mag) and exit")
	showVersion = flag.Bool("version", false, "Print version information and exit")
)

// wcsFile is the JSON shape of a -guess file.
type wcsFile struct {
	CRVal1 float64    `json:"crval1"`
	CRVal2 float64    `json:"crval2"`
	CRPix1 float64    `json:"crpix1"`
	CRPix2 float64    `json:"crpix2"`
	CD     [4]float64 `json:"cd"`
}

func loadGuess(path string) (*astrom.TanWCS, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read WCS guess: %w", err)
	}
	var w wcsFile
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("parse WCS guess: %w", err)
	}
	return &astrom.TanWCS{
		CRVal1: w.CRVal1, CRVal2: w.CRVal2,
		CRPix1: w.CRPix1, CRPix2: w.CRPix2,
		CD: w.CD,
	}, nil
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("skyfit %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
		return
	}

	db, err := catalog.Open(*dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	if err := db.MigrateUp(); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	if *catalogCSV != "" {
		loadReferenceStars(db, *catalogCSV)
		return
	}

	if *sourcesPath == "" {
		flag.Usage()
		log.Fatal("A -sources CSV is required")
	}

	var cfg *config.SolverConfig
	if *configPath != "" {
		cfg, err = config.LoadSolverConfig(*configPath)
		if err != nil {
			log.Fatalf("Failed to load solver config: %v", err)
		}
	} else {
		cfg = config.MustLoadDefaultConfig()
	}

	sources, err := astrom.LoadSourcesCSV(*sourcesPath)
	if err != nil {
		log.Fatalf("Failed to load sources: %v", err)
	}
	log.Printf("Loaded %d sources from %s", len(sources), *sourcesPath)

	var guess *astrom.TanWCS
	if *guessPath != "" {
		guess, err = loadGuess(*guessPath)
		if err != nil {
			log.Fatalf("Failed to load WCS guess: %v", err)
		}
	}

	params := astrom.SolverParamsFromConfig(cfg)
	if *forceBlind {
		params.ForceBlindSolve = true
	}

	solver := astrom.NewSolver(
		netsolve.NewClient(*solverURL, nil),
		sipfit.NewFitter(),
		catalog.NewStarStore(db.DB),
		params,
	)

	result, err := solver.Run(sources, guess)
	if err != nil {
		log.Fatalf("Solve failed: %v", err)
	}

	report(db, result)
	if result.Degraded {
		// Exit 2 separates "solved but degraded" from hard failures (1).
		db.Close()
		os.Exit(2)
	}
}

func loadReferenceStars(db *catalog.DB, path string) {
	stars, err := astrom.LoadCatalogCSV(path)
	if err != nil {
		log.Fatalf("Failed to load catalog CSV: %v", err)
	}
	store := catalog.NewStarStore(db.DB)
	if err := store.InsertStars(stars); err != nil {
		log.Fatalf("Failed to insert catalog stars: %v", err)
	}
	n, err := store.Count()
	if err != nil {
		log.Fatalf("Failed to count catalog stars: %v", err)
	}
	log.Printf("Loaded %d stars from %s (%d total in catalog)", len(stars), path, n)
}

// report prints the outcome and persists the match table for a refined
// run. A degraded run keeps its input transform and records nothing.
func report(db *catalog.DB, result *astrom.Result) {
	if result.Degraded {
		if result.WCS == nil {
			log.Printf("Run %s: no solution found and no input WCS to fall back on", result.RunID)
		} else {
			log.Printf("Run %s: degraded, keeping input WCS", result.RunID)
		}
		return
	}

	meta := map[string]string{
		"source_file": *sourcesPath,
	}
	if result.FitOrder > 0 {
		meta["fit_order"] = fmt.Sprintf("%d", result.FitOrder)
		meta["scatter_arcsec"] = fmt.Sprintf("%.6f", result.ScatterArcsec)
	}

	table, err := astrom.Denormalize(result.Matches, meta)
	if err != nil {
		log.Fatalf("Failed to denormalize matches: %v", err)
	}
	store := catalog.NewMatchStore(db.DB)
	if err := store.SaveRun(result.RunID, false, table); err != nil {
		log.Fatalf("Failed to save run: %v", err)
	}

	if tan, ok := result.WCS.(*astrom.TanWCS); ok {
		log.Printf("Run %s: refined linear WCS, reference point %s %s",
			result.RunID, units.FormatRA(tan.CRVal1), units.FormatDec(tan.CRVal2))
	} else if sip, ok := result.WCS.(*astrom.SipWCS); ok {
		log.Printf("Run %s: refined order-%d SIP WCS, reference point %s %s, scatter %.3f arcsec",
			result.RunID, result.FitOrder,
			units.FormatRA(sip.Tan.CRVal1), units.FormatDec(sip.Tan.CRVal2),
			result.ScatterArcsec)
	}
	log.Printf("Run %s: %d matches recorded", result.RunID, len(table.Rows))
}
