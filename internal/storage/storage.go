// Package storage defines the persistence interface and its implementations.
package storage

import (
	"context"
	"time"

	"feedsync/internal/model"
)

// Storage is the interface for all persistence operations. Statuses and
// pending sync statuses are keyed by article external ID so that a status
// can be stored before its article has been downloaded.
type Storage interface {
	CreateAccount(ctx context.Context, account *model.Account) error
	ListAccounts(ctx context.Context) ([]model.Account, error)
	UpdateAccountRefreshedAt(ctx context.Context, accountID int64, t time.Time) error

	ListFolders(ctx context.Context, accountID int64) ([]model.Folder, error)
	ListFeeds(ctx context.Context, accountID int64) ([]model.Feed, error)
	ListMemberships(ctx context.Context, accountID int64) ([]model.Membership, error)

	// ApplyContainerChanges applies a reconciliation batch in one
	// transaction; observers never see a partially reconciled state.
	ApplyContainerChanges(ctx context.Context, accountID int64, changes *model.ContainerChanges) error

	// UpdateFeedFetchInfo persists the conditional-GET metadata, content
	// hash, cache-control info, and last-checked time from feed.
	UpdateFeedFetchInfo(ctx context.Context, feed *model.Feed) error

	// UpsertArticles stores entries for a feed and makes sure each has a
	// status row, preserving any status that arrived before the article.
	// Returns the number of newly created articles.
	UpsertArticles(ctx context.Context, feedID int64, entries []model.Entry) (int, error)
	FetchArticlesByIDs(ctx context.Context, articleIDs []string) ([]model.Article, error)

	ArticleIDsWithFlag(ctx context.Context, key model.StatusKey, flag bool) (map[string]bool, error)

	// MarkArticleIDs records a service-originated flag change: only the
	// status rows move. MarkArticles records a user-originated change: the
	// status rows move and the matching outbound deltas are queued in the
	// same transaction, so a change the user sees is never lost before it
	// reaches the service.
	MarkArticleIDs(ctx context.Context, articleIDs []string, key model.StatusKey, flag bool) error
	MarkArticles(ctx context.Context, articleIDs []string, key model.StatusKey, flag bool) error

	EnqueueSyncStatuses(ctx context.Context, statuses []model.SyncStatus) error
	SelectSyncStatusesForProcessing(ctx context.Context) ([]model.SyncStatus, error)
	DeleteSelectedSyncStatuses(ctx context.Context, articleIDs []string, key model.StatusKey) error
	ResetSelectedSyncStatuses(ctx context.Context, articleIDs []string, key model.StatusKey) error
	PendingSyncStatusArticleIDs(ctx context.Context, key model.StatusKey) (map[string]bool, error)

	Close() error
}
