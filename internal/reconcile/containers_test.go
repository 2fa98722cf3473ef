package reconcile

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"feedsync/internal/model"
	"feedsync/internal/notify"
	"feedsync/internal/storage"
)

func newTestStore(t *testing.T) storage.Storage {
	t.Helper()
	s, err := storage.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newTestAccount(t *testing.T, s storage.Storage) *model.Account {
	t.Helper()
	account := &model.Account{ExternalID: "acct-1", Name: "Main"}
	if err := s.CreateAccount(context.Background(), account); err != nil {
		t.Fatalf("create account: %v", err)
	}
	return account
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestReconcileCreatesContainersFromSnapshot(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	account := newTestAccount(t, store)
	center := notify.NewCenter()

	events := 0
	center.Subscribe(func(e notify.Event) {
		if e == notify.ContainerChanged {
			events++
		}
	})

	snapshot := model.ContainerSnapshot{
		Subscriptions: []model.Subscription{
			{ID: "sub-1", URL: "https://a.example/feed.xml", Title: "Feed A", HomePageURL: "https://a.example"},
			{ID: "sub-2", URL: "https://b.example/feed.xml", Title: "Feed B"},
		},
		Groupings: []model.Grouping{
			{ExternalID: "tag-tech", Name: "Tech", MemberIDs: []string{"sub-1", "sub-2"}},
		},
	}

	r := NewContainerReconciler(store, center, discardLogger())
	if err := r.Reconcile(ctx, account.ID, snapshot); err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	folders, err := store.ListFolders(ctx, account.ID)
	if err != nil {
		t.Fatalf("list folders: %v", err)
	}
	if len(folders) != 1 || folders[0].Name != "Tech" {
		t.Fatalf("want folder Tech, got %+v", folders)
	}
	feeds, err := store.ListFeeds(ctx, account.ID)
	if err != nil {
		t.Fatalf("list feeds: %v", err)
	}
	if len(feeds) != 2 {
		t.Fatalf("want 2 feeds, got %d", len(feeds))
	}
	memberships, err := store.ListMemberships(ctx, account.ID)
	if err != nil {
		t.Fatalf("list memberships: %v", err)
	}
	if len(memberships) != 2 {
		t.Fatalf("want 2 memberships, got %d", len(memberships))
	}
	if events != 1 {
		t.Errorf("want 1 container-changed event, got %d", events)
	}

	// Reconciling the same snapshot again changes nothing.
	if err := r.Reconcile(ctx, account.ID, snapshot); err != nil {
		t.Fatalf("second reconcile: %v", err)
	}
	if events != 1 {
		t.Errorf("idempotent reconcile posted an event, got %d", events)
	}
}

func TestReconcileDeletedFolderKeepsItsFeeds(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	account := newTestAccount(t, store)
	center := notify.NewCenter()
	r := NewContainerReconciler(store, center, discardLogger())

	withFolder := model.ContainerSnapshot{
		Subscriptions: []model.Subscription{
			{ID: "sub-1", URL: "https://a.example/feed.xml", Title: "Feed A"},
			{ID: "sub-2", URL: "https://b.example/feed.xml", Title: "Feed B"},
		},
		Groupings: []model.Grouping{
			{ExternalID: "tag-tech", Name: "Tech", MemberIDs: []string{"sub-1", "sub-2"}},
		},
	}
	if err := r.Reconcile(ctx, account.ID, withFolder); err != nil {
		t.Fatalf("initial reconcile: %v", err)
	}

	// The folder disappears remotely; its feeds survive as top-level feeds.
	withoutFolder := model.ContainerSnapshot{Subscriptions: withFolder.Subscriptions}
	if err := r.Reconcile(ctx, account.ID, withoutFolder); err != nil {
		t.Fatalf("reconcile without folder: %v", err)
	}

	folders, err := store.ListFolders(ctx, account.ID)
	if err != nil {
		t.Fatalf("list folders: %v", err)
	}
	if len(folders) != 0 {
		t.Errorf("want 0 folders, got %+v", folders)
	}
	feeds, err := store.ListFeeds(ctx, account.ID)
	if err != nil {
		t.Fatalf("list feeds: %v", err)
	}
	if len(feeds) != 2 {
		t.Errorf("want 2 feeds after folder removal, got %d", len(feeds))
	}
	memberships, err := store.ListMemberships(ctx, account.ID)
	if err != nil {
		t.Fatalf("list memberships: %v", err)
	}
	if len(memberships) != 0 {
		t.Errorf("want 0 memberships after folder removal, got %d", len(memberships))
	}

	// The folder comes back: the same feeds are reattached, not duplicated.
	if err := r.Reconcile(ctx, account.ID, withFolder); err != nil {
		t.Fatalf("reconcile with folder again: %v", err)
	}
	feeds, err = store.ListFeeds(ctx, account.ID)
	if err != nil {
		t.Fatalf("list feeds: %v", err)
	}
	if len(feeds) != 2 {
		t.Errorf("feeds duplicated on reattach, got %d", len(feeds))
	}
	memberships, err = store.ListMemberships(ctx, account.ID)
	if err != nil {
		t.Fatalf("list memberships: %v", err)
	}
	if len(memberships) != 2 {
		t.Errorf("want 2 memberships on reattach, got %d", len(memberships))
	}
}

func TestReconcileRemovesUnsubscribedFeeds(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	account := newTestAccount(t, store)
	r := NewContainerReconciler(store, notify.NewCenter(), discardLogger())

	both := model.ContainerSnapshot{
		Subscriptions: []model.Subscription{
			{ID: "sub-1", URL: "https://a.example/feed.xml", Title: "Feed A"},
			{ID: "sub-2", URL: "https://b.example/feed.xml", Title: "Feed B"},
		},
	}
	if err := r.Reconcile(ctx, account.ID, both); err != nil {
		t.Fatalf("initial reconcile: %v", err)
	}

	one := model.ContainerSnapshot{
		Subscriptions: []model.Subscription{
			{ID: "sub-1", URL: "https://a.example/feed.xml", Title: "Feed A (renamed)"},
		},
	}
	if err := r.Reconcile(ctx, account.ID, one); err != nil {
		t.Fatalf("second reconcile: %v", err)
	}

	feeds, err := store.ListFeeds(ctx, account.ID)
	if err != nil {
		t.Fatalf("list feeds: %v", err)
	}
	if len(feeds) != 1 {
		t.Fatalf("want 1 feed, got %d", len(feeds))
	}
	if feeds[0].ExternalID != "sub-1" || feeds[0].Title != "Feed A (renamed)" {
		t.Errorf("surviving feed not updated: %+v", feeds[0])
	}
}

func TestReconcileSkipsUnknownGroupingMembers(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	account := newTestAccount(t, store)
	r := NewContainerReconciler(store, notify.NewCenter(), discardLogger())

	snapshot := model.ContainerSnapshot{
		Subscriptions: []model.Subscription{
			{ID: "sub-1", URL: "https://a.example/feed.xml", Title: "Feed A"},
		},
		Groupings: []model.Grouping{
			{ExternalID: "tag-tech", Name: "Tech", MemberIDs: []string{"sub-1", "sub-gone"}},
		},
	}
	if err := r.Reconcile(ctx, account.ID, snapshot); err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	memberships, err := store.ListMemberships(ctx, account.ID)
	if err != nil {
		t.Fatalf("list memberships: %v", err)
	}
	if len(memberships) != 1 {
		t.Errorf("unknown member should be skipped, got %d memberships", len(memberships))
	}
}
