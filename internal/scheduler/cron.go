package scheduler

import (
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Registrar registers coarse background tasks against a cron runner. The
// stale-check task plugs in here; tests bypass it and invoke tasks directly.
type Registrar struct {
	cron   *cron.Cron
	logger zerolog.Logger
}

// NewRegistrar constructs a Registrar with seconds-granularity specs.
func NewRegistrar(logger zerolog.Logger) *Registrar {
	return &Registrar{
		cron:   cron.New(cron.WithSeconds()),
		logger: logger.With().Str("component", "registrar").Logger(),
	}
}

// Register schedules task under the given cron spec.
func (r *Registrar) Register(spec string, task func()) error {
	if _, err := r.cron.AddFunc(spec, task); err != nil {
		return fmt.Errorf("register task %q: %w", spec, err)
	}
	r.logger.Debug().Str("spec", spec).Msg("background task registered")
	return nil
}

// Start launches the cron runner in its own goroutine.
func (r *Registrar) Start() {
	r.cron.Start()
	r.logger.Info().Msg("background registrar started")
}

// Stop halts the cron runner, waiting for running jobs.
func (r *Registrar) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
	r.logger.Info().Msg("background registrar stopped")
}
