package astrom

import (
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/banshee-data/skyfit/internal/config"
	"github.com/banshee-data/skyfit/internal/monitoring"
	"github.com/banshee-data/skyfit/internal/units"
)

// BlindSolveOptions configures one blind-solve request.
type BlindSolveOptions struct {
	AllowDistortion bool    // Let the solver model field distortion
	MatchThreshold  float64 // Confidence (log odds) required to accept a solution
	NumBrightStars  int     // Only the N brightest sources are used
}

// BlindSolver finds a linear WCS from star-pattern matching alone,
// without an initial guess. "No solution" (ok=false) is a normal
// outcome, not an error; errors are reserved for transport or protocol
// failures.
type BlindSolver interface {
	Solve(sources []Source, opts BlindSolveOptions) (wcs *TanWCS, ok bool, err error)
}

// FitResult is a refined WCS plus a summary of the fit that produced it.
type FitResult struct {
	WCS           WCS
	Order         int     // Polynomial order used
	ScatterArcsec float64 // RMS residual scatter of the fit
}

// DistortionFitter converts a cleaned match list and a linear WCS into
// a distortion-corrected WCS.
type DistortionFitter interface {
	Fit(matches []Match, linear *TanWCS, maxScatterArcsec float64, maxOrder int) (*FitResult, error)
}

// CatalogSource supplies reference stars near a sky position.
type CatalogSource interface {
	FetchNearby(raDeg, decDeg, radiusArcsec float64) ([]CatalogStar, error)
}

// SolverParams holds the resolved policy values for a Solver.
type SolverParams struct {
	ForceBlindSolve     bool    // Blind-solve even when an input WCS is supplied
	AllowDistortion     bool    // Passed through to the blind solver
	MatchThreshold      float64 // Passed through to the blind solver
	NumBrightStars      int     // Passed through to the blind solver
	MatchDistanceArcsec float64 // Association tolerance
	CleaningSigma       float64 // Sigma-clipping threshold
	CalculateSip        bool    // Fit SIP terms after cleaning
	MaxScatterArcsec    float64 // Acceptable fit scatter
	MaxSipOrder         int     // Highest SIP order to try
}

// SolverParamsFromConfig builds SolverParams from a loaded SolverConfig.
func SolverParamsFromConfig(cfg *config.SolverConfig) SolverParams {
	return SolverParams{
		ForceBlindSolve:     cfg.GetBlindSolve(),
		AllowDistortion:     cfg.GetAllowDistortion(),
		MatchThreshold:      cfg.GetMatchThreshold(),
		NumBrightStars:      cfg.GetNumBrightStars(),
		MatchDistanceArcsec: cfg.GetMatchDistanceArcsec(),
		CleaningSigma:       cfg.GetCleaningSigma(),
		CalculateSip:        cfg.GetCalculateSip(),
		MaxScatterArcsec:    cfg.GetMaxScatterArcsec(),
		MaxSipOrder:         cfg.GetMaxSipOrder(),
	}
}

// Result is the outcome of one solve run. Callers must branch on three
// cases: a refined WCS with matches (Degraded false), a degraded
// fallback (Degraded true: Matches nil, WCS is the original input and
// may be nil), or an error returned alongside a nil Result.
type Result struct {
	RunID         string
	Matches       []Match
	WCS           WCS
	Degraded      bool
	FitOrder      int     // 0 when no SIP fit was performed
	ScatterArcsec float64 // Fit scatter; 0 when no SIP fit was performed
}

// Solver drives the match-clean-fit loop for one image at a time. The
// collaborators are narrow interfaces so deterministic stand-ins can
// substitute for the real blind solver and fitter in tests.
//
// A Solver holds no per-run state; independent runs may execute
// concurrently on separate Solver values (or the same value, provided
// the collaborators themselves are safe for concurrent use).
type Solver struct {
	Blind   BlindSolver
	Fitter  DistortionFitter
	Catalog CatalogSource
	Params  SolverParams
}

// NewSolver creates a Solver with the given collaborators and policy.
func NewSolver(blind BlindSolver, fitter DistortionFitter, catalog CatalogSource, params SolverParams) *Solver {
	return &Solver{Blind: blind, Fitter: fitter, Catalog: catalog, Params: params}
}

// solveState enumerates the orchestration state machine. Transitions
// are decided in Solver.step; Done and Fallback are terminal.
type solveState int

const (
	stateStart solveState = iota
	stateBlindSolve
	stateCatalogFetch
	stateAssociate
	stateClean
	stateFit
	stateDone
	stateFallback
)

func (s solveState) String() string {
	switch s {
	case stateStart:
		return "start"
	case stateBlindSolve:
		return "blind-solve"
	case stateCatalogFetch:
		return "catalog-fetch"
	case stateAssociate:
		return "associate"
	case stateClean:
		return "clean"
	case stateFit:
		return "fit"
	case stateDone:
		return "done"
	case stateFallback:
		return "fallback"
	}
	return fmt.Sprintf("solveState(%d)", int(s))
}

// solveRun carries the working state of a single run between steps.
// It is owned exclusively by one Run call.
type solveRun struct {
	id      string
	sources []Source
	guess   *TanWCS
	linear  *TanWCS
	catalog []CatalogStar
	cleaned []Match
	fit     *FitResult
}

// Run executes one solve: decide blind-solve vs refine, fetch a local
// catalog subset, associate, clean, and fit. guess may be nil (forces a
// blind solve). The run is a single pass with no internal retries;
// expected degraded outcomes (no blind solution, no surviving matches)
// produce a Degraded Result, while precondition violations and
// collaborator failures return an error.
func (s *Solver) Run(sources []Source, guess *TanWCS) (*Result, error) {
	if len(sources) == 0 {
		return nil, ErrNoSources
	}

	run := &solveRun{
		id:      uuid.New().String(),
		sources: sources,
		guess:   guess,
	}

	st := stateStart
	for {
		switch st {
		case stateDone:
			return s.finish(run), nil
		case stateFallback:
			return s.fallback(run), nil
		default:
			next, err := s.step(st, run)
			if err != nil {
				return nil, err
			}
			st = next
		}
	}
}

// step performs the work of one non-terminal state and returns the next
// state. Keeping the transitions in one place makes the state machine
// testable without threading the decision logic through early returns.
func (s *Solver) step(st solveState, run *solveRun) (solveState, error) {
	switch st {
	case stateStart:
		if run.guess == nil || s.Params.ForceBlindSolve {
			if run.guess == nil {
				monitoring.Logf("astrom: no input WCS for run %s, doing blind solve", run.id)
			}
			return stateBlindSolve, nil
		}
		run.linear = run.guess
		return stateCatalogFetch, nil

	case stateBlindSolve:
		wcs, ok, err := s.Blind.Solve(run.sources, BlindSolveOptions{
			AllowDistortion: s.Params.AllowDistortion,
			MatchThreshold:  s.Params.MatchThreshold,
			NumBrightStars:  s.Params.NumBrightStars,
		})
		if err != nil {
			return 0, fmt.Errorf("blind solve: %w", err)
		}
		if !ok {
			monitoring.Logf("astrom: no blind solution found for run %s, using input WCS", run.id)
			return stateFallback, nil
		}
		run.linear = wcs
		return stateCatalogFetch, nil

	case stateCatalogFetch:
		// Twice the characteristic field size gives margin for edge
		// effects and inaccuracy in the linear solution.
		radius := 2 * fieldSizeArcsec(run.sources, run.linear)
		ra, dec := fieldCentre(run.sources, run.linear)
		stars, err := s.Catalog.FetchNearby(ra, dec, radius)
		if err != nil {
			return 0, fmt.Errorf("catalog fetch: %w", err)
		}
		run.catalog = stars
		return stateAssociate, nil

	case stateAssociate:
		if len(run.catalog) == 0 {
			// The field can genuinely sit outside catalog coverage.
			monitoring.Logf("astrom: no catalog stars near field for run %s, using input WCS", run.id)
			return stateFallback, nil
		}
		matches, err := Associate(run.catalog, run.sources, run.linear, s.Params.MatchDistanceArcsec)
		if err != nil {
			return 0, err
		}
		if len(matches) == 0 {
			monitoring.Logf("astrom: no matches between sources and catalog for run %s, using input WCS", run.id)
			return stateFallback, nil
		}
		monitoring.Logf("astrom: %d of %d sources match catalogue stars for run %s",
			len(matches), len(run.sources), run.id)
		run.cleaned = matches
		return stateClean, nil

	case stateClean:
		cleaned, err := Clean(run.cleaned, run.linear, s.Params.CleaningSigma)
		if err != nil {
			return 0, err
		}
		if len(cleaned) == 0 {
			monitoring.Logf("astrom: all matches rejected during cleaning for run %s, using input WCS", run.id)
			return stateFallback, nil
		}
		run.cleaned = cleaned
		if !s.Params.CalculateSip {
			return stateDone, nil
		}
		return stateFit, nil

	case stateFit:
		fit, err := s.Fitter.Fit(run.cleaned, run.linear, s.Params.MaxScatterArcsec, s.Params.MaxSipOrder)
		if err != nil {
			// Collaborator failure: propagated unchanged.
			return 0, err
		}
		monitoring.Logf("astrom: using order-%d SIP polynomial for run %s, scatter %.3g arcsec",
			fit.Order, run.id, fit.ScatterArcsec)
		run.fit = fit
		return stateDone, nil
	}

	return 0, fmt.Errorf("astrom: invalid solve state %v", st)
}

// finish builds the Done result: the cleaned match list and the refined
// transform (linear when no SIP fit was requested).
func (s *Solver) finish(run *solveRun) *Result {
	res := &Result{
		RunID:   run.id,
		Matches: run.cleaned,
		WCS:     run.linear,
	}
	if run.fit != nil {
		res.WCS = run.fit.WCS
		res.FitOrder = run.fit.Order
		res.ScatterArcsec = run.fit.ScatterArcsec
	}
	return res
}

// fallback builds the degraded result: no matches, and the original
// input transform, which may itself be nil when the run started without
// a guess. That "nothing to return" case stays a degraded outcome, not
// an error.
func (s *Solver) fallback(run *solveRun) *Result {
	var wcs WCS
	if run.guess != nil {
		wcs = run.guess
	}
	return &Result{
		RunID:    run.id,
		WCS:      wcs,
		Degraded: true,
	}
}

// fieldSizeArcsec estimates the characteristic angular size of the
// imaged field: the source-pixel bounding-box diagonal mapped through
// wcs, in arcseconds.
func fieldSizeArcsec(sources []Source, wcs WCS) float64 {
	minX, minY, maxX, maxY := sourceBounds(sources)
	llRA, llDec := wcs.PixelToSky(minX, minY)
	urRA, urDec := wcs.PixelToSky(maxX, maxY)

	deltaRA := urRA - llRA
	deltaDec := urDec - llDec
	return units.DegToArcsec(math.Hypot(deltaRA, deltaDec))
}

// fieldCentre returns the sky position of the source bounding-box
// centre under wcs.
func fieldCentre(sources []Source, wcs WCS) (raDeg, decDeg float64) {
	minX, minY, maxX, maxY := sourceBounds(sources)
	return wcs.PixelToSky((minX+maxX)/2, (minY+maxY)/2)
}

// sourceBounds returns the pixel bounding box of a source list.
func sourceBounds(sources []Source) (minX, minY, maxX, maxY float64) {
	minX, minY = sources[0].X, sources[0].Y
	maxX, maxY = minX, minY
	for _, src := range sources[1:] {
		minX = math.Min(minX, src.X)
		minY = math.Min(minY, src.Y)
		maxX = math.Max(maxX, src.X)
		maxY = math.Max(maxY, src.Y)
	}
	return minX, minY, maxX, maxY
}
