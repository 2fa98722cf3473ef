package main

import (
	"context"

	"feedsync/internal/model"
	"feedsync/internal/storage"
)

// localCaller serves a standalone account with no remote sync service. It
// reflects the store's own state back to the orchestrator, so the container
// and status phases reconcile to no changes and only the feed downloads do
// real work. Pushed statuses are acknowledged immediately: the local store
// is their final destination.
type localCaller struct {
	store     storage.Storage
	accountID int64
}

func (c *localCaller) Subscriptions(ctx context.Context) ([]model.Subscription, error) {
	feeds, err := c.store.ListFeeds(ctx, c.accountID)
	if err != nil {
		return nil, err
	}
	subs := make([]model.Subscription, len(feeds))
	for i, f := range feeds {
		subs[i] = model.Subscription{
			ID:          f.ExternalID,
			URL:         f.URL,
			Title:       f.Title,
			HomePageURL: f.HomePageURL,
		}
	}
	return subs, nil
}

func (c *localCaller) Groupings(ctx context.Context) ([]model.Grouping, error) {
	folders, err := c.store.ListFolders(ctx, c.accountID)
	if err != nil {
		return nil, err
	}
	feeds, err := c.store.ListFeeds(ctx, c.accountID)
	if err != nil {
		return nil, err
	}
	memberships, err := c.store.ListMemberships(ctx, c.accountID)
	if err != nil {
		return nil, err
	}

	feedExternalIDs := make(map[int64]string, len(feeds))
	for _, f := range feeds {
		feedExternalIDs[f.ID] = f.ExternalID
	}
	members := make(map[int64][]string)
	for _, m := range memberships {
		if id, ok := feedExternalIDs[m.FeedID]; ok {
			members[m.FolderID] = append(members[m.FolderID], id)
		}
	}

	groupings := make([]model.Grouping, len(folders))
	for i, f := range folders {
		groupings[i] = model.Grouping{
			ExternalID: f.ExternalID,
			Name:       f.Name,
			MemberIDs:  members[f.ID],
		}
	}
	return groupings, nil
}

func (c *localCaller) UnreadArticleIDs(ctx context.Context) ([]string, error) {
	return c.flaggedIDs(ctx, model.StatusRead, false)
}

func (c *localCaller) StarredArticleIDs(ctx context.Context) ([]string, error) {
	return c.flaggedIDs(ctx, model.StatusStarred, true)
}

func (c *localCaller) PushStatuses(context.Context, model.StatusKey, bool, []string) error {
	return nil
}

func (c *localCaller) flaggedIDs(ctx context.Context, key model.StatusKey, value bool) ([]string, error) {
	set, err := c.store.ArticleIDsWithFlag(ctx, key, value)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	return ids, nil
}
