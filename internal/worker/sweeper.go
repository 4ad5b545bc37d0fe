package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/adhocore/gronx"

	"github.com/leadfoundry/zapagent/internal/config"
	"github.com/leadfoundry/zapagent/internal/pipeline"
	"github.com/leadfoundry/zapagent/internal/store"
)

const tickInterval = 30 * time.Second

// Sweeper fires due follow-ups on a cron schedule. Each due follow-up
// re-enters the pipeline's response path, which claims it and handles
// paused conversations by cancelling.
type Sweeper struct {
	cfg    config.FollowUpsConfig
	stores *store.Stores
	pipe   *pipeline.Pipeline
	log    *slog.Logger
	gron   *gronx.Gronx
}

func NewSweeper(cfg *config.Config, stores *store.Stores, pipe *pipeline.Pipeline, log *slog.Logger) *Sweeper {
	if log == nil {
		log = slog.Default()
	}
	return &Sweeper{
		cfg:    cfg.FollowUps,
		stores: stores,
		pipe:   pipe,
		log:    log,
		gron:   gronx.New(),
	}
}

// Run ticks until the context is cancelled, sweeping whenever the
// configured cron expression is due.
func (s *Sweeper) Run(ctx context.Context) error {
	schedule := s.cfg.SweepSchedule
	if schedule == "" {
		schedule = "* * * * *"
	}

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	var lastSweep time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			due, err := s.gron.IsDue(schedule, now)
			if err != nil {
				s.log.Error("invalid sweep schedule", "schedule", schedule, "error", err)
				return err
			}
			if !due {
				continue
			}
			// The tick is finer than the cron grain; fire once per minute.
			minute := now.Truncate(time.Minute)
			if minute.Equal(lastSweep) {
				continue
			}
			lastSweep = minute
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	batch := s.cfg.BatchSize
	if batch <= 0 {
		batch = 20
	}
	due, err := s.stores.FollowUps.Due(ctx, time.Now().UTC(), batch)
	if err != nil {
		s.log.Error("follow-up sweep query failed", "error", err)
		return
	}
	if len(due) == 0 {
		return
	}

	s.log.Info("firing follow-ups", "count", len(due))
	for _, fu := range due {
		if ctx.Err() != nil {
			return
		}
		if err := s.pipe.RunFollowUp(ctx, fu); err != nil {
			s.log.Error("follow-up run failed", "follow_up", fu.ID, "error", err)
		}
	}
}
