package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/multierr"

	"feedsync/internal/model"
	"feedsync/internal/storage"
)

// ErrAuthentication marks a remote call rejected for bad credentials. It is
// never retried and aborts the remaining sync phases.
var ErrAuthentication = errors.New("authentication failed")

// pushChunkSize caps the number of article IDs per remote call.
const pushChunkSize = 1000

// StatusSender sends one batch of status changes to the remote service.
type StatusSender interface {
	PushStatuses(ctx context.Context, key model.StatusKey, flag bool, articleIDs []string) error
}

// StatusPusher drains the durable outbound status queue. Entries leave the
// queue only after the remote call succeeds; failed batches go back into
// the pending pool for the next sync.
type StatusPusher struct {
	store      storage.Storage
	logger     *slog.Logger
	maxRetries uint64
	retryBase  time.Duration
}

// NewStatusPusher creates a StatusPusher.
func NewStatusPusher(store storage.Storage, logger *slog.Logger) *StatusPusher {
	return &StatusPusher{
		store:      store,
		logger:     logger,
		maxRetries: 2,
		retryBase:  time.Second,
	}
}

// Push selects all pending statuses, groups them by key and flag, and sends
// each group to the service in chunks. A transient failure is retried with
// fibonacci backoff; a batch that still fails is reset for a later sync and
// reported in the returned error, which aggregates all batch failures.
func (p *StatusPusher) Push(ctx context.Context, sender StatusSender) error {
	statuses, err := p.store.SelectSyncStatusesForProcessing(ctx)
	if err != nil {
		return fmt.Errorf("select sync statuses: %w", err)
	}
	if len(statuses) == 0 {
		return nil
	}

	groups := make(map[pushGroup][]string)
	for _, st := range statuses {
		g := pushGroup{key: st.Key, flag: st.Flag}
		groups[g] = append(groups[g], st.ArticleID)
	}

	var errs error
	for g, ids := range groups {
		for start := 0; start < len(ids); start += pushChunkSize {
			end := start + pushChunkSize
			if end > len(ids) {
				end = len(ids)
			}
			chunk := ids[start:end]

			if err := p.pushChunk(ctx, sender, g, chunk); err != nil {
				if resetErr := p.store.ResetSelectedSyncStatuses(ctx, chunk, g.key); resetErr != nil {
					errs = multierr.Append(errs, fmt.Errorf("reset statuses: %w", resetErr))
				}
				errs = multierr.Append(errs, fmt.Errorf("push %s=%t: %w", g.key, g.flag, err))
				if errors.Is(err, ErrAuthentication) {
					return errs
				}
				continue
			}

			if err := p.store.DeleteSelectedSyncStatuses(ctx, chunk, g.key); err != nil {
				errs = multierr.Append(errs, fmt.Errorf("delete statuses: %w", err))
				continue
			}
			p.logger.Info("statuses pushed",
				"key", string(g.key), "flag", g.flag, "count", len(chunk))
		}
	}
	return errs
}

func (p *StatusPusher) pushChunk(ctx context.Context, sender StatusSender, g pushGroup, ids []string) error {
	backoff := retry.WithMaxRetries(p.maxRetries, retry.NewFibonacci(p.retryBase))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := sender.PushStatuses(ctx, g.key, g.flag, ids)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrAuthentication) {
			return err
		}
		return retry.RetryableError(err)
	})
}

type pushGroup struct {
	key  model.StatusKey
	flag bool
}
