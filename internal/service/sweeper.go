package service

import (
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/DmitryTakmakov/mailout-service/internal/metrics"
	"github.com/DmitryTakmakov/mailout-service/internal/repository"
)

// Sweeper gives stranded deliveries a terminal state. A delivery whose last
// client-error outcome arrived too close to the deadline stays pending or
// retry forever on the event path alone; once its mailout window has closed
// the sweep marks it failed.
type Sweeper struct {
	Deliveries repository.DeliveryRepositoryInterface
	Log        zerolog.Logger
	Now        func() time.Time
}

// Sweep fails every non-terminal delivery whose mailout has finished.
func (s *Sweeper) Sweep() {
	n, err := s.Deliveries.ExpireOverdue(s.Now())
	if err != nil {
		s.Log.Error().Err(err).Msg("deadline sweep failed")
		return
	}
	if n > 0 {
		metrics.Deliveries.WithLabelValues("expired").Add(float64(n))
		s.Log.Info().Int64("deliveries", n).Msg("overdue deliveries failed")
	}
}

// Register schedules the sweep once a minute on the given cron runner.
func (s *Sweeper) Register(c *cron.Cron) error {
	_, err := c.AddFunc("* * * * *", s.Sweep)
	return err
}
