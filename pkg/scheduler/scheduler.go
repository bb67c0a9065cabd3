// Package scheduler fires workflows on the cron expressions of their schedule triggers.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/flowforge/flowforge/pkg/models"
	"github.com/flowforge/flowforge/pkg/services"
	"github.com/robfig/cron/v3"
)

// DefaultReloadInterval is how often Run picks up added, changed and removed triggers.
const DefaultReloadInterval = time.Minute

// Dispatcher queues executions. *services.Dispatcher satisfies it.
type Dispatcher interface {
	Trigger(ctx context.Context, req services.TriggerRequest) (*models.Execution, error)
}

// Store lists schedule triggers.
type Store interface {
	ScheduleTriggers(ctx context.Context) ([]*models.ScheduleTrigger, error)
}

type entry struct {
	id   cron.EntryID
	expr string
}

type Scheduler struct {
	store      Store
	dispatcher Dispatcher
	logger     *slog.Logger
	cron       *cron.Cron
	now        func() time.Time

	mutex   sync.Mutex
	entries map[string]entry // keyed by trigger id
	ctx     context.Context
}

func New(logger *slog.Logger, store Store, dispatcher Dispatcher) *Scheduler {
	logger = logger.With("module", "scheduler")
	cronLog := cronLogger{logger: logger}

	return &Scheduler{
		store:      store,
		dispatcher: dispatcher,
		logger:     logger,
		cron: cron.New(
			cron.WithLogger(cronLog),
			cron.WithChain(cron.SkipIfStillRunning(cronLog), cron.Recover(cronLog)),
		),
		now:     time.Now,
		entries: make(map[string]entry),
		ctx:     context.Background(),
	}
}

// Run loads the triggers, starts the cron loop and reloads every interval until ctx is
// cancelled. Running jobs are awaited before it returns.
func (s *Scheduler) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultReloadInterval
	}

	if err := s.Start(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.Stop()

			return nil
		case <-ticker.C:
			if err := s.Reload(ctx); err != nil {
				s.logger.ErrorContext(ctx, "Failed to reload schedule triggers", "error", err)
			}
		}
	}
}

// Start loads the triggers and starts firing them. Dispatches use ctx.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mutex.Lock()
	s.ctx = ctx
	s.mutex.Unlock()

	if err := s.Reload(ctx); err != nil {
		return err
	}

	s.cron.Start()
	s.logger.InfoContext(ctx, "Scheduler started", "entries", len(s.Entries()))

	return nil
}

// Stop halts the cron loop and waits for running dispatches.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("Scheduler stopped")
}

// Reload syncs cron entries with the stored triggers: new and changed triggers are
// (re)registered, disabled and deleted ones removed. Invalid expressions are logged and
// skipped.
func (s *Scheduler) Reload(ctx context.Context) error {
	triggers, err := s.store.ScheduleTriggers(ctx)
	if err != nil {
		return fmt.Errorf("load schedule triggers: %w", err)
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	wanted := make(map[string]bool, len(triggers))

	for _, trigger := range triggers {
		if !trigger.Enabled {
			continue
		}

		wanted[trigger.ID] = true

		current, exists := s.entries[trigger.ID]
		if exists && current.expr == trigger.CronExpr {
			continue
		}

		if exists {
			s.cron.Remove(current.id)
			delete(s.entries, trigger.ID)
		}

		logger := s.logger.With("trigger_id", trigger.ID, "workflow_id", trigger.WorkflowID, "cron", trigger.CronExpr)

		if _, err := cron.ParseStandard(trigger.CronExpr); err != nil {
			logger.ErrorContext(ctx, "Invalid cron expression, trigger skipped", "error", err)

			continue
		}

		t := *trigger

		id, err := s.cron.AddFunc(t.CronExpr, func() { s.Fire(s.runContext(), &t) })
		if err != nil {
			logger.ErrorContext(ctx, "Failed to add cron job", "error", err)

			continue
		}

		s.entries[t.ID] = entry{id: id, expr: t.CronExpr}
		logger.InfoContext(ctx, "Schedule trigger registered", "entry_id", id)
	}

	for triggerID, current := range s.entries {
		if !wanted[triggerID] {
			s.cron.Remove(current.id)
			delete(s.entries, triggerID)
			s.logger.InfoContext(ctx, "Schedule trigger removed", "trigger_id", triggerID)
		}
	}

	return nil
}

// Entries returns the registered cron expression of every scheduled trigger.
func (s *Scheduler) Entries() map[string]string {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	out := make(map[string]string, len(s.entries))
	for triggerID, e := range s.entries {
		out[triggerID] = e.expr
	}

	return out
}

// Fire queues one execution for trigger.
func (s *Scheduler) Fire(ctx context.Context, trigger *models.ScheduleTrigger) {
	logger := s.logger.With("trigger_id", trigger.ID, "workflow_id", trigger.WorkflowID)

	execution, err := s.dispatcher.Trigger(ctx, services.TriggerRequest{
		WorkflowID:  trigger.WorkflowID,
		TriggeredBy: models.TriggerSourceCron,
		TriggerID:   trigger.ID,
		TriggerData: map[string]any{
			"timestamp":  s.now().UTC().Format(time.RFC3339),
			"cron":       trigger.CronExpr,
			"trigger_id": trigger.ID,
		},
	})
	if err != nil {
		logger.ErrorContext(ctx, "Scheduled execution not queued", "error", err)

		return
	}

	logger.InfoContext(ctx, "Scheduled execution queued", "execution_id", execution.ID)
}

func (s *Scheduler) runContext() context.Context {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.ctx
}

// cronLogger routes the cron library's logging to slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
