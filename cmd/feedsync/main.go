package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/google/uuid"

	"feedsync/internal/config"
	"feedsync/internal/model"
	"feedsync/internal/notify"
	"feedsync/internal/orchestrator"
	"feedsync/internal/scheduler"
	"feedsync/internal/storage"
)

func main() {
	addFeed := flag.String("add-feed", "", "subscribe to a feed URL and exit")
	folder := flag.String("folder", "", "folder for -add-feed")
	markRead := flag.String("mark-read", "", "comma-separated article IDs to mark read and exit")
	star := flag.String("star", "", "comma-separated article IDs to star and exit")
	once := flag.Bool("once", false, "run a single refresh and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log := newLogger(cfg.LogLevel)

	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			log.Error("create data directory", "path", dir, "error", err)
			os.Exit(1)
		}
	}

	store, err := storage.NewSQLite(cfg.DatabasePath)
	if err != nil {
		log.Error("open database", "path", cfg.DatabasePath, "error", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	account, err := defaultAccount(ctx, store)
	if err != nil {
		log.Error("load account", "error", err)
		os.Exit(1)
	}

	if *addFeed != "" {
		if err := subscribe(ctx, store, account.ID, *addFeed, *folder); err != nil {
			log.Error("add feed", "url", *addFeed, "error", err)
			os.Exit(1)
		}
		log.Info("feed added", "url", *addFeed)
		return
	}

	center := notify.NewCenter()
	refresher := orchestrator.NewRefresher(store, center, log, nil, orchestrator.RefresherOptions{
		MaxConcurrent:     cfg.MaxConcurrentDownloads,
		RequestTimeout:    cfg.RequestTimeout,
		UserAgent:         cfg.UserAgent,
		StalenessWindow:   cfg.ConditionalGetMaxAge,
		TrustedHosts:      cfg.TrustedHosts,
		HonoredCacheHosts: cfg.CacheControlHosts,
		DisallowedHosts:   cfg.DisallowedHosts,
		ThrottledHosts:    cfg.ThrottledHosts,
		ThrottleCooldown:  cfg.ThrottleCooldown,
	})
	caller := &localCaller{store: store, accountID: account.ID}
	orch := orchestrator.New(store, caller, refresher, center, log)

	if *markRead != "" || *star != "" {
		if err := markArticles(ctx, orch, *markRead, model.StatusRead); err != nil {
			log.Error("mark read", "error", err)
			os.Exit(1)
		}
		if err := markArticles(ctx, orch, *star, model.StatusStarred); err != nil {
			log.Error("star", "error", err)
			os.Exit(1)
		}
		return
	}

	log.Info("starting feedsync", "database", cfg.DatabasePath)

	if *once {
		if err := orch.RefreshAll(ctx, account); err != nil {
			log.Error("refresh", "error", err)
			os.Exit(1)
		}
		return
	}

	sched := scheduler.New(store, orch, log, cfg.RefreshInterval)
	sched.Run(ctx)

	log.Info("feedsync stopped")
}

// defaultAccount returns the single local account, creating it on first run.
func defaultAccount(ctx context.Context, store storage.Storage) (*model.Account, error) {
	accounts, err := store.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}
	if len(accounts) > 0 {
		return &accounts[0], nil
	}
	account := &model.Account{ExternalID: uuid.NewString(), Name: "Local"}
	if err := store.CreateAccount(ctx, account); err != nil {
		return nil, err
	}
	return account, nil
}

// markArticles applies a user status change to a comma-separated ID list.
// The change is queued for the service and pushed on the next refresh.
func markArticles(ctx context.Context, orch *orchestrator.Orchestrator, raw string, key model.StatusKey) error {
	var ids []string
	for _, id := range strings.Split(raw, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return orch.MarkArticles(ctx, ids, key, true)
}

// subscribe adds a feed, optionally inside a folder, in one change batch.
func subscribe(ctx context.Context, store storage.Storage, accountID int64, feedURL, folderName string) error {
	feeds, err := store.ListFeeds(ctx, accountID)
	if err != nil {
		return err
	}
	for _, f := range feeds {
		if f.URL == feedURL {
			return nil
		}
	}

	feedID := uuid.NewString()
	changes := &model.ContainerChanges{
		CreateFeeds: []model.Feed{{ExternalID: feedID, URL: feedURL}},
	}
	if folderName != "" {
		folders, err := store.ListFolders(ctx, accountID)
		if err != nil {
			return err
		}
		exists := false
		for _, f := range folders {
			if f.Name == folderName {
				exists = true
			}
		}
		if !exists {
			changes.CreateFolders = []model.Folder{{ExternalID: uuid.NewString(), Name: folderName}}
		}
		changes.AddMemberships = []model.MembershipChange{
			{FolderName: folderName, FeedExternalID: feedID},
		}
	}
	return store.ApplyContainerChanges(ctx, accountID, changes)
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
