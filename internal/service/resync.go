package service

import (
	"context"
	"fmt"
	"time"

	"battle-tracker/internal/config"
	"battle-tracker/internal/constants"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog"
)

type reloader interface {
	Reload(ctx context.Context) error
}

// Resync periodically pulls the remote copy so contributions from other
// squad members show up without a local mutation.
type Resync struct {
	sched    gocron.Scheduler
	target   reloader
	interval time.Duration
	started  bool
	logger   zerolog.Logger
}

func NewResync(cfg *config.Config, coordinator *SyncCoordinator, logger zerolog.Logger) (*Resync, error) {
	return newResync(cfg.ResyncInterval, coordinator, logger)
}

func newResync(interval time.Duration, target reloader, logger zerolog.Logger) (*Resync, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}
	return &Resync{
		sched:    sched,
		target:   target,
		interval: interval,
		logger:   logger.With().Str("component", "resync").Logger(),
	}, nil
}

func (r *Resync) Start() error {
	if r.interval <= 0 {
		r.logger.Info().Msg("periodic resync disabled")
		return nil
	}
	_, err := r.sched.NewJob(
		gocron.DurationJob(r.interval),
		gocron.NewTask(r.run),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule resync: %w", err)
	}
	r.sched.Start()
	r.started = true
	r.logger.Info().Dur("interval", r.interval).Msg("periodic resync started")
	return nil
}

func (r *Resync) run() {
	ctx, cancel := context.WithTimeout(context.Background(), constants.RequestTimeout)
	defer cancel()
	if err := r.target.Reload(ctx); err != nil {
		r.logger.Warn().Err(err).Msg("periodic resync failed")
	}
}

func (r *Resync) Stop() error {
	if !r.started {
		return nil
	}
	return r.sched.Shutdown()
}
