package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-workflow/internal/config"
	"github.com/spec-kit/ticket-workflow/internal/repository"
)

const slaLockKey int64 = 7_310_002

// SLASweeper records violations for every open ticket past its threshold.
type SLASweeper interface {
	RecordSLAViolations(ctx context.Context) (int, error)
}

// SLAMonitor runs the SLA sweep on a cron schedule. Only the node holding the
// advisory lock sweeps.
type SLAMonitor struct {
	cron    *cron.Cron
	sweeper SLASweeper
	locker  repository.Locker
	logger  *zap.Logger
	timeout time.Duration
}

// NewSLAMonitor parses the schedule in the configured timezone.
func NewSLAMonitor(cfg config.SLAConfig, sweeper SLASweeper, locker repository.Locker, logger *zap.Logger) (*SLAMonitor, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	loc := time.UTC
	if cfg.Timezone != "" {
		l, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			return nil, fmt.Errorf("invalid SLA timezone %q: %w", cfg.Timezone, err)
		}
		loc = l
	}
	schedule := cfg.SweepSchedule
	if schedule == "" {
		schedule = "*/5 * * * *"
	}

	c := cron.New(cron.WithLocation(loc), cron.WithParser(cron.NewParser(cron.Minute|cron.Hour|cron.Dom|cron.Month|cron.Dow)))
	m := &SLAMonitor{cron: c, sweeper: sweeper, locker: locker, logger: logger, timeout: 2 * time.Minute}
	if _, err := c.AddFunc(schedule, m.tick); err != nil {
		return nil, fmt.Errorf("invalid SLA sweep schedule %q: %w", schedule, err)
	}
	return m, nil
}

func (m *SLAMonitor) Start() { m.cron.Start() }

// Stop waits for a running sweep to finish.
func (m *SLAMonitor) Stop() {
	<-m.cron.Stop().Done()
}

func (m *SLAMonitor) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()
	if _, err := m.Sweep(ctx); err != nil {
		m.logger.Error("sla sweep failed", zap.Error(err))
	}
}

// Sweep runs one pass if the lock is free and returns the number of new
// violations recorded.
func (m *SLAMonitor) Sweep(ctx context.Context) (int, error) {
	if m.locker != nil {
		release, ok, err := m.locker.TryLock(ctx, slaLockKey)
		if err != nil {
			return 0, fmt.Errorf("sla lock: %w", err)
		}
		if !ok {
			m.logger.Debug("sla sweep already running elsewhere")
			return 0, nil
		}
		defer release()
	}

	n, err := m.sweeper.RecordSLAViolations(ctx)
	if err != nil {
		return n, err
	}
	if n > 0 {
		m.logger.Info("sla violations recorded", zap.Int("count", n))
	}
	return n, nil
}
