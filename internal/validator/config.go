package validator

import "fmt"

// Config holds the validation thresholds.
type Config struct {
	// MaxOverlap is the IoU above which two components overlap.
	MaxOverlap float64 `json:"max_overlap" koanf:"max_overlap"`
	// MinSpacing is the smallest acceptable gap when the instruction asks for spacing.
	MinSpacing float64 `json:"min_spacing" koanf:"min_spacing"`
	// SpacingWarnDeviation and SpacingErrorDeviation are relative
	// deviations from the expected gap.
	SpacingWarnDeviation  float64 `json:"spacing_warn_deviation" koanf:"spacing_warn_deviation"`
	SpacingErrorDeviation float64 `json:"spacing_error_deviation" koanf:"spacing_error_deviation"`
	MaxSizeRatio          float64 `json:"max_size_ratio" koanf:"max_size_ratio"`
	PairSizeRatio         float64 `json:"pair_size_ratio" koanf:"pair_size_ratio"`
	// PairXOverlap is how much two members of a pair may share on the x axis.
	PairXOverlap float64 `json:"pair_x_overlap" koanf:"pair_x_overlap"`
	MinArea      float64 `json:"min_area" koanf:"min_area"`
	MaxArea      float64 `json:"max_area" koanf:"max_area"`
	// LineThickness is the box side below which a component is measured as
	// a line (span squared) instead of by area.
	LineThickness  float64 `json:"line_thickness" koanf:"line_thickness"`
	ErrorPenalty   float64 `json:"error_penalty" koanf:"error_penalty"`
	WarningPenalty float64 `json:"warning_penalty" koanf:"warning_penalty"`
	ValidThreshold float64 `json:"valid_threshold" koanf:"valid_threshold"`
	// PhraseFile optionally points at a TOML spacing phrase table.
	PhraseFile string `json:"phrase_file" koanf:"phrase_file"`
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() *Config {
	return &Config{
		MaxOverlap:            0.10,
		MinSpacing:            0.05,
		SpacingWarnDeviation:  0.5,
		SpacingErrorDeviation: 1.0,
		MaxSizeRatio:          100,
		PairSizeRatio:         2,
		PairXOverlap:          0.01,
		MinArea:               0.005,
		MaxArea:               0.8,
		LineThickness:         0.01,
		ErrorPenalty:          0.3,
		WarningPenalty:        0.1,
		ValidThreshold:        0.7,
	}
}

// Validate checks the thresholds are usable.
func (c *Config) Validate() error {
	if c.MaxOverlap <= 0 || c.MaxOverlap >= 1 {
		return fmt.Errorf("%w: max_overlap must be in (0,1)", ErrInvalidConfig)
	}
	if c.MinSpacing < 0 {
		return fmt.Errorf("%w: min_spacing must be >= 0", ErrInvalidConfig)
	}
	if c.SpacingWarnDeviation <= 0 || c.SpacingErrorDeviation < c.SpacingWarnDeviation {
		return fmt.Errorf("%w: spacing deviations must satisfy 0 < warn <= error", ErrInvalidConfig)
	}
	if c.MaxSizeRatio <= 1 || c.PairSizeRatio <= 1 {
		return fmt.Errorf("%w: size ratios must exceed 1", ErrInvalidConfig)
	}
	if c.MinArea < 0 || c.MaxArea <= c.MinArea || c.MaxArea > 1 {
		return fmt.Errorf("%w: need 0 <= min_area < max_area <= 1", ErrInvalidConfig)
	}
	if c.ErrorPenalty < 0 || c.WarningPenalty < 0 {
		return fmt.Errorf("%w: penalties must be >= 0", ErrInvalidConfig)
	}
	if c.ValidThreshold < 0 || c.ValidThreshold > 1 {
		return fmt.Errorf("%w: valid_threshold must be in [0,1]", ErrInvalidConfig)
	}
	return nil
}
