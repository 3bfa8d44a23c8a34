package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/joshharrison/chainloom/internal/chain"
	"github.com/joshharrison/chainloom/internal/logging"
)

// ValidationError is a single invalid setting.
type ValidationError struct {
	Field   string // config key, e.g. "zones.green_max"
	Value   any
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors collects every invalid setting found.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d validation errors:\n", len(e))
	for i, err := range e {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, err.Error())
	}
	return sb.String()
}

// ValidSizingMethods lists the accepted analysis.sizing_method values.
func ValidSizingMethods() []string {
	return []string{string(chain.RootSumSquare), string(chain.HalfChain)}
}

// Validate returns every validation failure in c.
func (c *Config) Validate() []ValidationError {
	var errs []ValidationError

	if !c.Storage.InMemory && c.Storage.Path == "" {
		errs = append(errs, ValidationError{"storage.path", c.Storage.Path, "required unless storage.in_memory is set"})
	}
	if c.Storage.GCIntervalMinutes < 0 {
		errs = append(errs, ValidationError{"storage.gc_interval_minutes", c.Storage.GCIntervalMinutes, "must not be negative"})
	}

	if !slices.Contains(ValidSizingMethods(), c.Analysis.SizingMethod) {
		errs = append(errs, ValidationError{"analysis.sizing_method", c.Analysis.SizingMethod,
			"must be one of " + strings.Join(ValidSizingMethods(), ", ")})
	}
	if c.Analysis.DurationFraction < 0 || c.Analysis.DurationFraction > 1 {
		errs = append(errs, ValidationError{"analysis.duration_fraction", c.Analysis.DurationFraction, "must be between 0 and 1"})
	}
	if c.Analysis.MaxLevelingIterations < 1 {
		errs = append(errs, ValidationError{"analysis.max_leveling_iterations", c.Analysis.MaxLevelingIterations, "must be at least 1"})
	}

	if c.Zones.GreenMax < 0 {
		errs = append(errs, ValidationError{"zones.green_max", c.Zones.GreenMax, "must not be negative"})
	}
	if c.Zones.YellowMax < c.Zones.GreenMax {
		errs = append(errs, ValidationError{"zones.yellow_max", c.Zones.YellowMax, "must be at least zones.green_max"})
	}

	if _, ok := logging.ParseLevel(c.Logging.Level); !ok {
		errs = append(errs, ValidationError{"logging.level", c.Logging.Level, "must be one of debug, info, warn, error"})
	}

	if c.Snapshot.Path == "" {
		errs = append(errs, ValidationError{"snapshot.path", c.Snapshot.Path, "required"})
	}

	return errs
}
