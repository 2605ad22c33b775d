// Package worker implements the Extraction Worker: claim a batch from the
// Work Queue, run each job through the guard/filter/extract/enrich/validate/
// persist pipeline, and write the outcome back (spec §4.10).
package worker

import (
	"regexp"
	"time"

	"github.com/tutordex/core/internal/enrich"
	"github.com/tutordex/core/internal/filters"
)

// Config is the Worker's tunable surface, translated at the cmd/ entrypoint
// from config.Config (time.Duration instead of *Seconds floats, compiled
// regexps instead of pattern strings) so this package stays free of the
// config package's env-parsing concerns.
type Config struct {
	PipelineVersion string
	WorkerCount     int
	ClaimBatchSize  int
	IdleSleep       time.Duration
	StaleAfter      time.Duration
	MaxAttempts     int
	BackoffBase     time.Duration
	BackoffMax      time.Duration

	Oneshot bool
	MaxJobs int

	UseNormalizedTextForLLM    bool
	EnableDeterministicSignals bool
	UseDeterministicTime       bool
	EnablePostalCodeEstimated  bool
	HardValidateMode           enrich.HardValidateMode

	EnableBroadcast bool
	EnableDMs       bool

	CompilationThresholds filters.CompilationThresholds
	AssignmentCodePattern *regexp.Regexp
	IdentifierPattern     *regexp.Regexp
}

func (c Config) workerCount() int {
	if c.WorkerCount < 1 {
		return 4
	}
	return c.WorkerCount
}

func (c Config) claimBatchSize() int {
	if c.ClaimBatchSize < 1 {
		return 20
	}
	return c.ClaimBatchSize
}

func (c Config) idleSleep() time.Duration {
	if c.IdleSleep <= 0 {
		return 2 * time.Second
	}
	return c.IdleSleep
}

func (c Config) staleAfter() time.Duration {
	if c.StaleAfter <= 0 {
		return 10 * time.Minute
	}
	return c.StaleAfter
}

func (c Config) maxAttempts() int {
	if c.MaxAttempts < 1 {
		return 3
	}
	return c.MaxAttempts
}
