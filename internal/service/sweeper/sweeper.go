// Package sweeper periodically removes expired refresh tokens.
// The blacklist needs no sweeping, redis evicts its keys on TTL natively.
package sweeper

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/mpetrenko/authgate/internal/logger"
	"github.com/mpetrenko/authgate/internal/repository"
)

const DefaultSchedule = "@hourly"

type Sweeper struct {
	cron        *cron.Cron
	refreshRepo repository.RefreshTokenRepo
	logger      logger.Logger
}

func New(refreshRepo repository.RefreshTokenRepo, l logger.Logger) *Sweeper {
	if l == nil {
		l = logger.NewNoOpLogger()
	}

	return &Sweeper{
		cron:        cron.New(),
		refreshRepo: refreshRepo,
		logger:      l,
	}
}

// Start schedules the sweep, schedule is a cron expression or '@every ...'
// The sweep is a single bounded delete so overlapping runs are harmless
func (s *Sweeper) Start(schedule string) error {
	if schedule == "" {
		schedule = DefaultSchedule
	}

	_, err := s.cron.AddFunc(schedule, func() {
		if _, err := s.Sweep(context.Background()); err != nil {
			s.logger.Error("refresh token sweep failed", "error", err.Error())
		}
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info("refresh token sweeper started", "schedule", schedule)
	return nil
}

// Stop cancels the schedule and waits for a running sweep to finish
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}

// Sweep deletes all refresh tokens that expired by now
func (s *Sweeper) Sweep(ctx context.Context) (int64, error) {
	count, err := s.refreshRepo.DeleteExpired(ctx, time.Now())
	if err != nil {
		return 0, err
	}

	if count > 0 {
		s.logger.Info("expired refresh tokens removed", "count", count)
	}

	return count, nil
}
