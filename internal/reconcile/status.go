package reconcile

import (
	"context"
	"fmt"
	"log/slog"

	"feedsync/internal/model"
	"feedsync/internal/notify"
	"feedsync/internal/storage"
)

// StatusReconciler folds the remote service's per-article flags into local
// statuses by set difference, leaving articles with a pending outbound
// change untouched so local intent wins until it has been pushed.
type StatusReconciler struct {
	store  storage.Storage
	center *notify.Center
	logger *slog.Logger
}

// NewStatusReconciler creates a StatusReconciler.
func NewStatusReconciler(store storage.Storage, center *notify.Center, logger *slog.Logger) *StatusReconciler {
	return &StatusReconciler{store: store, center: center, logger: logger}
}

// Pull reconciles the flag for key against remoteIDs, the full list of
// remote articles whose flag equals value. The unread sync passes the
// remote unread IDs with value=false; the starred sync passes the remote
// starred IDs with value=true. IDs in remoteIDs but not flagged that way
// locally are set to value; IDs flagged that way locally but absent from
// remoteIDs are flipped. IDs with a queued outbound change for key are
// excluded from both directions so local intent wins until it is pushed.
// Statuses for articles that have not been downloaded yet are stored
// standalone and inherited when the article arrives.
func (r *StatusReconciler) Pull(ctx context.Context, key model.StatusKey, value bool, remoteIDs []string) error {
	pending, err := r.store.PendingSyncStatusArticleIDs(ctx, key)
	if err != nil {
		return fmt.Errorf("pending sync statuses: %w", err)
	}
	local, err := r.store.ArticleIDsWithFlag(ctx, key, value)
	if err != nil {
		return fmt.Errorf("local flagged ids: %w", err)
	}

	remote := make(map[string]bool, len(remoteIDs))
	var toSet []string
	for _, id := range remoteIDs {
		remote[id] = true
		if !local[id] && !pending[id] {
			toSet = append(toSet, id)
		}
	}
	var toFlip []string
	for id := range local {
		if !remote[id] && !pending[id] {
			toFlip = append(toFlip, id)
		}
	}

	if len(toSet) == 0 && len(toFlip) == 0 {
		return nil
	}

	if err := r.store.MarkArticleIDs(ctx, toSet, key, value); err != nil {
		return fmt.Errorf("set %s=%t: %w", key, value, err)
	}
	if err := r.store.MarkArticleIDs(ctx, toFlip, key, !value); err != nil {
		return fmt.Errorf("set %s=%t: %w", key, !value, err)
	}

	if len(toSet) > 0 {
		articles, err := r.store.FetchArticlesByIDs(ctx, toSet)
		if err != nil {
			return fmt.Errorf("fetch flagged articles: %w", err)
		}
		if missing := len(toSet) - len(articles); missing > 0 {
			r.logger.Debug("statuses stored ahead of their articles",
				"key", string(key), "count", missing)
		}
	}

	r.center.Post(notify.StatusesChanged)
	r.logger.Info("statuses reconciled",
		"key", string(key), "value", value, "set", len(toSet), "flipped", len(toFlip))
	return nil
}
