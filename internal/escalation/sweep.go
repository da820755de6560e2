package escalation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/hive-services/backend/internal/apperrors"
	"github.com/hive-services/backend/internal/db"
	"github.com/hive-services/backend/internal/models"
	"github.com/hive-services/backend/internal/notify"
)

// Transitions is the part of the transition engine the sweep drives.
type Transitions interface {
	AutoEscalate(ctx context.Context, id string, expected models.Status) error
	MarkAlerted(ctx context.Context, id string, expected models.Status, tier models.Tier) error
}

type SweepConfig struct {
	Enabled bool
	Spec    string
}

type SweepResult struct {
	Scanned        int `json:"scanned"`
	Escalated      int `json:"escalated"`
	CriticalAlerts int `json:"critical_alerts"`
	Skipped        int `json:"skipped"`
	Failed         int `json:"failed"`
}

// Sweeper turns threshold crossings into at most one transition and one
// notification per tier.
type Sweeper struct {
	cfg      SweepConfig
	repo     db.Repository
	engine   Transitions
	notifier notify.Notifier
	logger   zerolog.Logger
	now      func() time.Time

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

func NewSweeper(cfg SweepConfig, repo db.Repository, engine Transitions, notifier notify.Notifier, logger zerolog.Logger, now func() time.Time) *Sweeper {
	if cfg.Spec == "" {
		cfg.Spec = "@every 1m"
	}
	if now == nil {
		now = time.Now
	}
	return &Sweeper{cfg: cfg, repo: repo, engine: engine, notifier: notifier, logger: logger, now: now}
}

func (s *Sweeper) StartWithContext(ctx context.Context) error {
	if s == nil || !s.cfg.Enabled {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	log := cronLogger{logger: s.logger}
	c := cron.New(cron.WithLocation(time.UTC), cron.WithLogger(log), cron.WithChain(cron.Recover(log), cron.SkipIfStillRunning(log)))
	_, err := c.AddFunc(s.cfg.Spec, func() {
		if ctx.Err() != nil {
			return
		}
		res, err := s.RunOnce(ctx, s.now())
		if err != nil {
			s.logger.Error().Err(err).Msg("escalation sweep failed")
			return
		}
		if res.Escalated > 0 || res.CriticalAlerts > 0 || res.Failed > 0 {
			s.logger.Info().Int("scanned", res.Scanned).Int("escalated", res.Escalated).
				Int("critical_alerts", res.CriticalAlerts).Int("failed", res.Failed).Msg("escalation sweep")
		}
	})
	if err != nil {
		return fmt.Errorf("escalation sweep spec %q: %w", s.cfg.Spec, err)
	}
	c.Start()
	s.cron = c
	s.running = true
	return nil
}

// StopWithContext stops scheduling and waits for a running sweep, or for ctx.
func (s *Sweeper) StopWithContext(ctx context.Context) error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.running = false
	s.mu.Unlock()
	if c == nil {
		return nil
	}
	select {
	case <-c.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce evaluates every request awaiting a response as of now.
func (s *Sweeper) RunOnce(ctx context.Context, now time.Time) (SweepResult, error) {
	var res SweepResult
	items, _, err := s.repo.ListRequests(ctx, db.RequestFilter{
		Statuses: []models.Status{models.StatusPending, models.StatusUrgent},
	})
	if err != nil {
		return res, fmt.Errorf("list awaiting requests: %w", err)
	}

	for _, r := range items {
		res.Scanned++
		tier := Tier(r.SubmittedAt, now)
		status := r.Status

		if status == models.StatusPending && tier.Rank() >= models.TierUrgent.Rank() {
			err := s.engine.AutoEscalate(ctx, r.ID, models.StatusPending)
			switch {
			case errors.Is(err, apperrors.ErrConcurrentModification):
				res.Skipped++
				continue
			case err != nil:
				res.Failed++
				s.logger.Warn().Err(err).Str("request_id", r.ID).Msg("auto escalation failed")
				continue
			}
			res.Escalated++
			status = models.StatusUrgent
		}

		if tier == models.TierCritical && r.AlertedTier.Rank() < models.TierCritical.Rank() {
			err := s.engine.MarkAlerted(ctx, r.ID, status, models.TierCritical)
			switch {
			case errors.Is(err, apperrors.ErrConcurrentModification):
				res.Skipped++
				continue
			case err != nil:
				res.Failed++
				s.logger.Warn().Err(err).Str("request_id", r.ID).Msg("critical alert bookkeeping failed")
				continue
			}
			res.CriticalAlerts++
			s.alertCritical(r, now)
		}
	}
	return res, nil
}

func (s *Sweeper) alertCritical(r models.ServiceRequest, now time.Time) {
	if s.notifier == nil {
		return
	}
	h, m := Elapsed(r.SubmittedAt, now)
	msg := fmt.Sprintf("Request %s from %s (%s) has waited %dh%02dm without a response", r.ID, r.ClientName, r.ClientArea, h, m)
	manager := r.AssignedManagerID
	if manager == "" {
		manager = notify.Broadcast
	}
	s.notifier.Enqueue(notify.Notification{RecipientRole: models.RoleAdmin, RecipientID: notify.Broadcast, Message: msg, RequestID: r.ID})
	s.notifier.Enqueue(notify.Notification{RecipientRole: models.RoleManager, RecipientID: manager, Message: msg, RequestID: r.ID})
}

// cronLogger routes cron's own messages to zerolog.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
