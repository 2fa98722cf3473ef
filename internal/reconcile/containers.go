// Package reconcile computes and applies the deltas between local state and
// a remote service's view of an account: its folders, feeds, folder
// memberships, and per-article statuses.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"

	"feedsync/internal/model"
	"feedsync/internal/notify"
	"feedsync/internal/storage"
)

// ContainerReconciler brings local folders, feeds, and memberships in line
// with a remote snapshot. The remote side is authoritative: anything local
// the snapshot does not mention is removed.
type ContainerReconciler struct {
	store  storage.Storage
	center *notify.Center
	logger *slog.Logger
}

// NewContainerReconciler creates a ContainerReconciler.
func NewContainerReconciler(store storage.Storage, center *notify.Center, logger *slog.Logger) *ContainerReconciler {
	return &ContainerReconciler{store: store, center: center, logger: logger}
}

// Reconcile applies the snapshot in three passes (folders, then feeds, then
// memberships), computed as one change batch and applied in one transaction.
// Running it twice against the same snapshot is a no-op the second time.
func (r *ContainerReconciler) Reconcile(ctx context.Context, accountID int64, snapshot model.ContainerSnapshot) error {
	folders, err := r.store.ListFolders(ctx, accountID)
	if err != nil {
		return fmt.Errorf("list folders: %w", err)
	}
	feeds, err := r.store.ListFeeds(ctx, accountID)
	if err != nil {
		return fmt.Errorf("list feeds: %w", err)
	}
	memberships, err := r.store.ListMemberships(ctx, accountID)
	if err != nil {
		return fmt.Errorf("list memberships: %w", err)
	}

	changes := r.computeChanges(folders, feeds, memberships, snapshot)
	if changes.IsEmpty() {
		return nil
	}

	if err := r.store.ApplyContainerChanges(ctx, accountID, changes); err != nil {
		return fmt.Errorf("apply container changes: %w", err)
	}

	r.center.Post(notify.ContainerChanged)
	r.logger.Info("containers reconciled",
		"account_id", accountID,
		"folders_created", len(changes.CreateFolders),
		"folders_deleted", len(changes.DeleteFolderIDs),
		"feeds_created", len(changes.CreateFeeds),
		"feeds_deleted", len(changes.DeleteFeedIDs),
		"feeds_updated", len(changes.UpdateFeeds),
		"memberships_added", len(changes.AddMemberships),
		"memberships_removed", len(changes.RemoveMemberships),
	)
	return nil
}

func (r *ContainerReconciler) computeChanges(
	folders []model.Folder,
	feeds []model.Feed,
	memberships []model.Membership,
	snapshot model.ContainerSnapshot,
) *model.ContainerChanges {
	changes := &model.ContainerChanges{}

	// Pass 1: folders, matched by name.
	remoteGroupings := make(map[string]model.Grouping, len(snapshot.Groupings))
	for _, g := range snapshot.Groupings {
		remoteGroupings[g.Name] = g
	}
	localFolders := make(map[string]model.Folder, len(folders))
	deletedFolderIDs := make(map[int64]bool)
	for _, f := range folders {
		localFolders[f.Name] = f
		if _, ok := remoteGroupings[f.Name]; !ok {
			changes.DeleteFolderIDs = append(changes.DeleteFolderIDs, f.ID)
			deletedFolderIDs[f.ID] = true
		}
	}
	for _, g := range snapshot.Groupings {
		if _, ok := localFolders[g.Name]; !ok {
			changes.CreateFolders = append(changes.CreateFolders, model.Folder{
				ExternalID: g.ExternalID,
				Name:       g.Name,
			})
		}
	}

	// Pass 2: feeds, matched by the remote service's subscription ID.
	remoteSubs := make(map[string]model.Subscription, len(snapshot.Subscriptions))
	for _, sub := range snapshot.Subscriptions {
		remoteSubs[sub.ID] = sub
	}
	localFeeds := make(map[string]model.Feed, len(feeds))
	deletedFeedIDs := make(map[int64]bool)
	for _, f := range feeds {
		localFeeds[f.ExternalID] = f
		sub, ok := remoteSubs[f.ExternalID]
		if !ok {
			changes.DeleteFeedIDs = append(changes.DeleteFeedIDs, f.ID)
			deletedFeedIDs[f.ID] = true
			continue
		}
		if f.Title != sub.Title || f.HomePageURL != sub.HomePageURL || f.URL != sub.URL {
			f.Title = sub.Title
			f.HomePageURL = sub.HomePageURL
			f.URL = sub.URL
			changes.UpdateFeeds = append(changes.UpdateFeeds, f)
		}
	}
	for _, sub := range snapshot.Subscriptions {
		if _, ok := localFeeds[sub.ID]; !ok {
			changes.CreateFeeds = append(changes.CreateFeeds, model.Feed{
				ExternalID:  sub.ID,
				URL:         sub.URL,
				Title:       sub.Title,
				HomePageURL: sub.HomePageURL,
			})
		}
	}

	// Pass 3: memberships, as (folder name, feed external ID) pairs so a
	// pair can reference a folder or feed created in this same batch.
	desired := make(map[membershipKey]model.MembershipChange)
	for _, g := range snapshot.Groupings {
		for _, memberID := range g.MemberIDs {
			if _, ok := remoteSubs[memberID]; !ok {
				r.logger.Warn("grouping references unknown subscription, skipping",
					"grouping", g.Name, "subscription_id", memberID)
				continue
			}
			key := membershipKey{folderName: g.Name, feedExternalID: memberID}
			desired[key] = model.MembershipChange{
				FolderName:     g.Name,
				FeedExternalID: memberID,
			}
		}
	}

	folderNamesByID := make(map[int64]string, len(folders))
	for _, f := range folders {
		folderNamesByID[f.ID] = f.Name
	}
	feedExternalIDsByID := make(map[int64]string, len(feeds))
	for _, f := range feeds {
		feedExternalIDsByID[f.ID] = f.ExternalID
	}

	existing := make(map[membershipKey]bool, len(memberships))
	for _, m := range memberships {
		key := membershipKey{
			folderName:     folderNamesByID[m.FolderID],
			feedExternalID: feedExternalIDsByID[m.FeedID],
		}
		existing[key] = true
		if _, ok := desired[key]; ok {
			continue
		}
		// Rows under a deleted folder or feed go away with their parent.
		if deletedFolderIDs[m.FolderID] || deletedFeedIDs[m.FeedID] {
			continue
		}
		changes.RemoveMemberships = append(changes.RemoveMemberships, model.MembershipChange{
			FolderName:     key.folderName,
			FeedExternalID: key.feedExternalID,
		})
	}
	for key, change := range desired {
		if !existing[key] {
			changes.AddMemberships = append(changes.AddMemberships, change)
		}
	}

	return changes
}

type membershipKey struct {
	folderName     string
	feedExternalID string
}
