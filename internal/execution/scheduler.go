package execution

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"iris/internal/constants"
	"iris/internal/logger"
	"iris/internal/rule"
)

const scheduleRefreshInterval = time.Minute

// Scheduler runs batch executions for rules carrying a cron schedule. The
// rule list is re-synced periodically so lifecycle mutations take effect
// without a restart.
type Scheduler struct {
	cron   *cron.Cron
	rules  rule.Service
	runner *Runner
	logger logger.Logger

	mu      sync.Mutex
	entries map[string]scheduledEntry
	done    chan struct{}
	wg      sync.WaitGroup
}

type scheduledEntry struct {
	id       cron.EntryID
	schedule string
}

func NewScheduler(rules rule.Service, runner *Runner, log logger.Logger) *Scheduler {
	return &Scheduler{
		cron:    cron.New(),
		rules:   rules,
		runner:  runner,
		logger:  log,
		entries: make(map[string]scheduledEntry),
		done:    make(chan struct{}),
	}
}

func (s *Scheduler) Start(ctx context.Context) {
	s.sync(ctx)
	s.cron.Start()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(scheduleRefreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.sync(ctx)
			case <-s.done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (s *Scheduler) Stop() {
	close(s.done)
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(constants.ShutdownTimeout):
	}
	s.wg.Wait()
}

// sync reconciles cron entries with the currently enabled scheduled rules.
func (s *Scheduler) sync(ctx context.Context) {
	enabled := true
	resp, err := s.rules.ListRules(ctx, rule.ListFilter{
		Enabled:  &enabled,
		PageSize: constants.MaxPageSize,
	})
	if err != nil {
		s.logger.WarnwCtx(ctx, "Scheduler rule sync failed", "error", err)
		return
	}

	seen := make(map[string]bool, len(resp.Items))
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range resp.Items {
		if r.Schedule == "" {
			continue
		}
		seen[r.ID] = true

		existing, ok := s.entries[r.ID]
		if ok && existing.schedule == r.Schedule {
			continue
		}
		if ok {
			s.cron.Remove(existing.id)
		}

		ruleID := r.ID
		entryID, err := s.cron.AddFunc(r.Schedule, func() {
			s.run(ruleID)
		})
		if err != nil {
			s.logger.WarnwCtx(ctx, "Invalid rule schedule",
				"error", err,
				"rule_id", r.ID,
				"schedule", r.Schedule,
			)
			continue
		}
		s.entries[r.ID] = scheduledEntry{id: entryID, schedule: r.Schedule}
	}

	for id, entry := range s.entries {
		if !seen[id] {
			s.cron.Remove(entry.id)
			delete(s.entries, id)
		}
	}
}

func (s *Scheduler) run(ruleID string) {
	ctx := context.Background()
	log, err := s.runner.Execute(ctx, ruleID, TriggerSchedule, constants.ExecutedBySystem)
	if err != nil {
		s.logger.ErrorwCtx(ctx, "Scheduled execution failed",
			"error", err,
			"rule_id", ruleID,
		)
		return
	}
	s.logger.InfowCtx(ctx, "Scheduled execution finished",
		"rule_id", ruleID,
		"status", string(log.Status),
		"matched_customers", log.MatchedCustomers,
		"triggered_actions", log.TriggeredActions,
	)
}
