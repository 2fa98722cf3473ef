// Package orchestrator sequences a full account refresh: container sync,
// feed downloads, outbound status push, and remote status pull.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"feedsync/internal/model"
	"feedsync/internal/notify"
	"feedsync/internal/reconcile"
	"feedsync/internal/storage"
)

// Caller is the remote service boundary: listing the account's containers
// and status sets and pushing local status changes. Implementations wrap a
// concrete wire protocol and return reconcile.ErrAuthentication (wrapped or
// bare) when the service rejects the credentials.
type Caller interface {
	Subscriptions(ctx context.Context) ([]model.Subscription, error)
	Groupings(ctx context.Context) ([]model.Grouping, error)
	UnreadArticleIDs(ctx context.Context) ([]string, error)
	StarredArticleIDs(ctx context.Context) ([]string, error)
	PushStatuses(ctx context.Context, key model.StatusKey, flag bool, articleIDs []string) error
}

// Orchestrator runs account refreshes.
type Orchestrator struct {
	store     storage.Storage
	caller    Caller
	refresher *Refresher
	center    *notify.Center
	logger    *slog.Logger

	containers *reconcile.ContainerReconciler
	statuses   *reconcile.StatusReconciler
	pusher     *reconcile.StatusPusher
}

// New creates an Orchestrator.
func New(store storage.Storage, caller Caller, refresher *Refresher, center *notify.Center, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		store:      store,
		caller:     caller,
		refresher:  refresher,
		center:     center,
		logger:     logger,
		containers: reconcile.NewContainerReconciler(store, center, logger),
		statuses:   reconcile.NewStatusReconciler(store, center, logger),
		pusher:     reconcile.NewStatusPusher(store, logger),
	}
}

// RefreshAll runs the refresh phases in order: sync containers, download
// feeds, push local status changes, pull remote status sets. A failed phase
// is recorded and the remaining phases still run, except after an
// authentication failure or cancellation. The account's last-refreshed time
// is updated once per attempt, success or not.
func (o *Orchestrator) RefreshAll(ctx context.Context, account *model.Account) error {
	start := time.Now()
	o.logger.Info("refresh started", "account", account.Name)

	phases := []struct {
		name string
		run  func(context.Context) error
	}{
		{"sync containers", func(ctx context.Context) error { return o.syncContainers(ctx, account.ID) }},
		{"refresh feeds", func(ctx context.Context) error { return o.refreshFeeds(ctx, account.ID) }},
		{"push statuses", func(ctx context.Context) error { return o.pusher.Push(ctx, o.caller) }},
		{"pull statuses", o.pullStatuses},
	}

	var errs error
	for _, phase := range phases {
		err := phase.run(ctx)
		if err == nil {
			continue
		}
		errs = multierr.Append(errs, fmt.Errorf("%s: %w", phase.name, err))
		if errors.Is(err, reconcile.ErrAuthentication) {
			o.logger.Error("authentication rejected, aborting refresh", "account", account.Name)
			break
		}
		if ctx.Err() != nil {
			break
		}
		o.logger.Warn("refresh phase failed", "account", account.Name, "phase", phase.name, "error", err)
	}

	refreshedAt := time.Now()
	if err := o.store.UpdateAccountRefreshedAt(context.WithoutCancel(ctx), account.ID, refreshedAt); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("update refreshed at: %w", err))
	}
	account.LastRefreshAt = &refreshedAt

	o.logger.Info("refresh finished", "account", account.Name, "duration", time.Since(start))
	return errs
}

// MarkArticles records a user-originated status change: the local flags
// flip and the outbound deltas join the durable queue in one transaction,
// to be pushed on the next refresh.
func (o *Orchestrator) MarkArticles(ctx context.Context, articleIDs []string, key model.StatusKey, flag bool) error {
	if len(articleIDs) == 0 {
		return nil
	}
	if err := o.store.MarkArticles(ctx, articleIDs, key, flag); err != nil {
		return fmt.Errorf("mark articles: %w", err)
	}
	o.center.Post(notify.StatusesChanged)
	return nil
}

func (o *Orchestrator) syncContainers(ctx context.Context, accountID int64) error {
	var snapshot model.ContainerSnapshot

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		subs, err := o.caller.Subscriptions(gctx)
		if err != nil {
			return fmt.Errorf("list subscriptions: %w", err)
		}
		snapshot.Subscriptions = subs
		return nil
	})
	g.Go(func() error {
		groupings, err := o.caller.Groupings(gctx)
		if err != nil {
			return fmt.Errorf("list groupings: %w", err)
		}
		snapshot.Groupings = groupings
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	o.center.BeginBatch()
	defer o.center.EndBatch()
	return o.containers.Reconcile(ctx, accountID, snapshot)
}

func (o *Orchestrator) refreshFeeds(ctx context.Context, accountID int64) error {
	feeds, err := o.store.ListFeeds(ctx, accountID)
	if err != nil {
		return fmt.Errorf("list feeds: %w", err)
	}
	if len(feeds) == 0 {
		return nil
	}

	o.center.BeginBatch()
	defer o.center.EndBatch()
	return o.refresher.Refresh(ctx, feeds)
}

func (o *Orchestrator) pullStatuses(ctx context.Context) error {
	var unreadIDs, starredIDs []string

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ids, err := o.caller.UnreadArticleIDs(gctx)
		if err != nil {
			return fmt.Errorf("list unread: %w", err)
		}
		unreadIDs = ids
		return nil
	})
	g.Go(func() error {
		ids, err := o.caller.StarredArticleIDs(gctx)
		if err != nil {
			return fmt.Errorf("list starred: %w", err)
		}
		starredIDs = ids
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	o.center.BeginBatch()
	defer o.center.EndBatch()
	return multierr.Combine(
		o.statuses.Pull(ctx, model.StatusRead, false, unreadIDs),
		o.statuses.Pull(ctx, model.StatusStarred, true, starredIDs),
	)
}
