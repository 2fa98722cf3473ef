// Package scheduler runs periodic account refreshes.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"feedsync/internal/model"
	"feedsync/internal/storage"
)

// Runner performs one full refresh of an account.
type Runner interface {
	RefreshAll(ctx context.Context, account *model.Account) error
}

// Scheduler refreshes every account whose refresh interval has elapsed.
type Scheduler struct {
	store    storage.Storage
	runner   Runner
	log      *slog.Logger
	interval time.Duration
	tick     time.Duration
}

// New creates a Scheduler that refreshes each account every interval.
func New(store storage.Storage, runner Runner, log *slog.Logger, interval time.Duration) *Scheduler {
	return &Scheduler{
		store:    store,
		runner:   runner,
		log:      log,
		interval: interval,
		tick:     1 * time.Minute,
	}
}

// SetTickInterval overrides the default 1-minute check interval.
func (s *Scheduler) SetTickInterval(d time.Duration) {
	s.tick = d
}

// Run starts the scheduler loop, blocking until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	s.refreshDue(ctx)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.refreshDue(ctx)
		}
	}
}

func (s *Scheduler) refreshDue(ctx context.Context) {
	accounts, err := s.store.ListAccounts(ctx)
	if err != nil {
		s.log.Error("list accounts", "error", err)
		return
	}

	now := time.Now()
	for i := range accounts {
		if ctx.Err() != nil {
			return
		}
		account := accounts[i]
		if !s.due(&account, now) {
			continue
		}
		if err := s.runner.RefreshAll(ctx, &account); err != nil {
			s.log.Error("refresh account", "account", account.Name, "error", err)
		}
	}
}

func (s *Scheduler) due(account *model.Account, now time.Time) bool {
	if account.LastRefreshAt == nil {
		return true
	}
	return now.Sub(*account.LastRefreshAt) >= s.interval
}
