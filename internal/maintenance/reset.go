// Package maintenance runs the daily housekeeping jobs on a cron schedule.
package maintenance

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

type CounterStore interface {
	ResetDailyCounters(ctx context.Context) (int64, error)
}

type Scheduler struct {
	store   CounterStore
	log     *zap.Logger
	c       *cron.Cron
	loc     *time.Location
	Timeout time.Duration
}

// New schedules the instance counter reset. schedule is a standard five-field
// cron expression evaluated in loc.
func New(schedule string, loc *time.Location, store CounterStore, log *zap.Logger) (*Scheduler, error) {
	if loc == nil {
		loc = time.Local
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	s := &Scheduler{
		store:   store,
		log:     log,
		c:       cron.New(cron.WithParser(parser), cron.WithLocation(loc)),
		loc:     loc,
		Timeout: 30 * time.Second,
	}

	if _, err := s.c.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.Timeout)
		defer cancel()
		s.ResetCounters(ctx)
	}); err != nil {
		return nil, fmt.Errorf("invalid reset schedule %q: %w", schedule, err)
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.c.Start()
}

// Stop waits for a running reset to finish or ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.c.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

func (s *Scheduler) Next() time.Time {
	entries := s.c.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Schedule.Next(time.Now().In(s.loc))
}

func (s *Scheduler) ResetCounters(ctx context.Context) {
	n, err := s.store.ResetDailyCounters(ctx)
	if err != nil {
		s.log.Error("daily counter reset failed", zap.Error(err))
		return
	}
	s.log.Info("daily instance counters reset", zap.Int64("instances", n))
}
