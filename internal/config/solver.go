package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultConfigPath is the path to the canonical solver defaults file.
// This is the single source of truth for all default solver values.
const DefaultConfigPath = "config/solver.defaults.json"

// SolverConfig represents the policy parameters for one astrometric
// solve: when to blind-solve, how to match against the catalog, how to
// clean the match list, and how far to push the distortion fit. Fields
// are pointers so a partial JSON file only overrides what it names.
type SolverConfig struct {
	// Blind solver params
	BlindSolve      *bool    `json:"blind_solve,omitempty"`      // Force a blind solve even with an input WCS
	AllowDistortion *bool    `json:"allow_distortion,omitempty"` // Let the blind solver model distortion
	MatchThreshold  *float64 `json:"match_threshold,omitempty"`  // Blind-solve confidence threshold (log odds)
	NumBrightStars  *int     `json:"num_bright_stars,omitempty"` // Brightest sources sent to the blind solver

	// Catalog matching params
	MatchDistanceArcsec *float64 `json:"match_distance_arcsec,omitempty"` // Association tolerance
	CleaningSigma       *float64 `json:"cleaning_sigma,omitempty"`        // Sigma-clipping threshold

	// Distortion fit params
	CalculateSip     *bool    `json:"calculate_sip,omitempty"`      // Fit SIP terms after matching
	MaxScatterArcsec *float64 `json:"max_scatter_arcsec,omitempty"` // Acceptable fit residual scatter
	MaxSipOrder      *int     `json:"max_sip_order,omitempty"`      // Highest SIP polynomial order to try
}

// EmptySolverConfig returns a SolverConfig with all fields set to nil.
// Use LoadSolverConfig to load actual values from the defaults file.
func EmptySolverConfig() *SolverConfig {
	return &SolverConfig{}
}

// LoadSolverConfig loads a SolverConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under
// the max file size. Fields omitted from the JSON file retain their
// default values, so partial configs are safe.
func LoadSolverConfig(path string) (*SolverConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse JSON into empty config. The Get* methods provide fallback
	// defaults for any fields not specified in the JSON.
	cfg := EmptySolverConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical solver defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *SolverConfig {
	// Try paths from current dir up to repo root
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,       // from internal/config/
		"../../../" + DefaultConfigPath,    // from internal/astrom/sipfit/
		"../../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadSolverConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *SolverConfig) Validate() error {
	if c.MatchDistanceArcsec != nil {
		if *c.MatchDistanceArcsec <= 0 {
			return fmt.Errorf("match_distance_arcsec must be positive, got %f", *c.MatchDistanceArcsec)
		}
	}

	if c.CleaningSigma != nil {
		if *c.CleaningSigma <= 0 {
			return fmt.Errorf("cleaning_sigma must be positive, got %f", *c.CleaningSigma)
		}
	}

	if c.NumBrightStars != nil {
		if *c.NumBrightStars < 1 {
			return fmt.Errorf("num_bright_stars must be at least 1, got %d", *c.NumBrightStars)
		}
	}

	if c.MaxScatterArcsec != nil {
		if *c.MaxScatterArcsec <= 0 {
			return fmt.Errorf("max_scatter_arcsec must be positive, got %f", *c.MaxScatterArcsec)
		}
	}

	if c.MaxSipOrder != nil {
		if *c.MaxSipOrder < 2 {
			return fmt.Errorf("max_sip_order must be at least 2, got %d", *c.MaxSipOrder)
		}
	}

	return nil
}

// GetBlindSolve returns the blind_solve value or the default.
func (c *SolverConfig) GetBlindSolve() bool {
	if c.BlindSolve == nil {
		return false // default: only blind-solve without an input WCS
	}
	return *c.BlindSolve
}

// GetAllowDistortion returns the allow_distortion value or the default.
func (c *SolverConfig) GetAllowDistortion() bool {
	if c.AllowDistortion == nil {
		return true
	}
	return *c.AllowDistortion
}

// GetMatchThreshold returns the match_threshold value or the default.
func (c *SolverConfig) GetMatchThreshold() float64 {
	if c.MatchThreshold == nil {
		return 30.0 // default log-odds acceptance threshold
	}
	return *c.MatchThreshold
}

// GetNumBrightStars returns the num_bright_stars value or the default.
func (c *SolverConfig) GetNumBrightStars() int {
	if c.NumBrightStars == nil {
		return 50
	}
	return *c.NumBrightStars
}

// GetMatchDistanceArcsec returns the match_distance_arcsec value or the default.
func (c *SolverConfig) GetMatchDistanceArcsec() float64 {
	if c.MatchDistanceArcsec == nil {
		return 1.0
	}
	return *c.MatchDistanceArcsec
}

// GetCleaningSigma returns the cleaning_sigma value or the default.
func (c *SolverConfig) GetCleaningSigma() float64 {
	if c.CleaningSigma == nil {
		return 3.0
	}
	return *c.CleaningSigma
}

// GetCalculateSip returns the calculate_sip value or the default.
func (c *SolverConfig) GetCalculateSip() bool {
	if c.CalculateSip == nil {
		return true
	}
	return *c.CalculateSip
}

// GetMaxScatterArcsec returns the max_scatter_arcsec value or the default.
func (c *SolverConfig) GetMaxScatterArcsec() float64 {
	if c.MaxScatterArcsec == nil {
		return 0.1
	}
	return *c.MaxScatterArcsec
}

// GetMaxSipOrder returns the max_sip_order value or the default.
func (c *SolverConfig) GetMaxSipOrder() int {
	if c.MaxSipOrder == nil {
		return 4
	}
	return *c.MaxSipOrder
}
