package orchestrator

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"feedsync/internal/download"
	"feedsync/internal/fetcher"
	"feedsync/internal/model"
	"feedsync/internal/notify"
	"feedsync/internal/storage"
)

// RefresherOptions tunes one Refresher.
type RefresherOptions struct {
	MaxConcurrent  int
	RequestTimeout time.Duration
	UserAgent      string

	// StalenessWindow bounds how long stored conditional-GET validators are
	// kept without a successful revalidation. Stale validators are dropped
	// so the next fetch is unconditional.
	StalenessWindow time.Duration
	// TrustedHosts are exempt from the staleness window.
	TrustedHosts []string
	// HonoredCacheHosts are the hosts whose Cache-Control max-age is
	// respected between fetches. Most feed servers set it carelessly.
	HonoredCacheHosts []string
	// DisallowedHosts are never fetched.
	DisallowedHosts []string
	// ThrottledHosts get at most one fetch per cooldown across a session.
	ThrottledHosts   []string
	ThrottleCooldown time.Duration
}

// Refresher drives download sessions over an account's feeds and folds the
// results into the store: parsed entries, conditional-GET validators,
// content hashes, and last-checked times. It owns one Session for its whole
// lifetime, so the rate-limit ledger, redirect cache, and host-throttle
// cooldown carry across refresh cycles.
type Refresher struct {
	store   storage.Storage
	center  *notify.Center
	logger  *slog.Logger
	opts    RefresherOptions
	session *download.Session

	mu  sync.Mutex
	run *refreshRun // state of the refresh currently in flight
}

// NewRefresher creates a Refresher. transport may be nil to use the default
// HTTP transport.
func NewRefresher(store storage.Storage, center *notify.Center, logger *slog.Logger, transport http.RoundTripper, opts RefresherOptions) *Refresher {
	r := &Refresher{
		store:  store,
		center: center,
		logger: logger,
		opts:   opts,
	}

	var throttle *download.HostThrottle
	if len(opts.ThrottledHosts) > 0 {
		throttle = download.NewHostThrottle(opts.ThrottledHosts, opts.ThrottleCooldown)
	}
	r.session = download.NewSession(r, transport, logger, download.Options{
		MaxConcurrent:   opts.MaxConcurrent,
		RequestTimeout:  opts.RequestTimeout,
		UserAgent:       opts.UserAgent,
		DisallowedHosts: opts.DisallowedHosts,
		Throttle:        throttle,
	})
	return r
}

// Refresh fetches every eligible feed through the shared download session
// and blocks until the session completes or ctx is cancelled. Per-feed
// failures are logged and contained; only cancellation is returned as an
// error. Refreshes run one at a time.
func (r *Refresher) Refresh(ctx context.Context, feeds []model.Feed) error {
	now := time.Now()
	run := &refreshRun{
		refresher: r,
		ctx:       ctx,
		feeds:     make(map[string]*model.Feed, len(feeds)),
		done:      make(chan struct{}),
	}

	var urls []string
	for i := range feeds {
		feed := feeds[i]
		if feed.CacheControl != nil &&
			fetcher.HonorsCacheControl(feed.URL, r.opts.HonoredCacheHosts) &&
			!feed.CacheControl.CanResume(now) {
			r.logger.Debug("skipping feed inside cache-control window", "url", feed.URL)
			continue
		}
		if feed.ConditionalGet != nil &&
			fetcher.ConditionalGetIsStale(feed.ConditionalGetAt, now, r.opts.StalenessWindow, feed.URL, r.opts.TrustedHosts) {
			feed.ConditionalGet = nil
			feed.ConditionalGetAt = nil
		}
		run.feeds[feed.URL] = &feed
		urls = append(urls, feed.URL)
	}
	if len(urls) == 0 {
		return nil
	}

	r.mu.Lock()
	r.run = run
	r.mu.Unlock()

	if admitted := r.session.Download(urls); admitted == 0 {
		return nil
	}

	select {
	case <-run.done:
		return nil
	case <-ctx.Done():
		r.session.CancelAll()
		return ctx.Err()
	}
}

func (r *Refresher) currentRun() *refreshRun {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.run
}

// The session delegate methods forward to the run in flight.

func (r *Refresher) ConditionalGetInfo(urlStr string) *model.ConditionalGetInfo {
	if run := r.currentRun(); run != nil {
		return run.conditionalGetInfo(urlStr)
	}
	return nil
}

func (r *Refresher) ShouldContinue(urlStr string, received []byte) bool {
	if run := r.currentRun(); run != nil {
		return run.shouldContinue(urlStr, received)
	}
	return true
}

func (r *Refresher) DownloadDidComplete(result download.Result) {
	if run := r.currentRun(); run != nil {
		run.downloadDidComplete(result)
	}
}

func (r *Refresher) SessionDidComplete() {
	if run := r.currentRun(); run != nil {
		run.sessionDidComplete()
	}
}

// refreshRun is the per-session state. The feeds map is fixed after
// Download starts; each feed value is only touched by its own completion
// callback, so no extra locking is needed.
type refreshRun struct {
	refresher *Refresher
	ctx       context.Context
	feeds     map[string]*model.Feed
	done      chan struct{}
}

func (run *refreshRun) conditionalGetInfo(urlStr string) *model.ConditionalGetInfo {
	if feed, ok := run.feeds[urlStr]; ok {
		return feed.ConditionalGet
	}
	return nil
}

func (run *refreshRun) shouldContinue(urlStr string, received []byte) bool {
	if fetcher.IsDefinitelyNotFeed(received) {
		run.refresher.logger.Debug("aborting download of non-feed content", "url", urlStr)
		return false
	}
	return true
}

func (run *refreshRun) downloadDidComplete(result download.Result) {
	r := run.refresher
	feed, ok := run.feeds[result.URL]
	if !ok {
		return
	}

	now := time.Now()
	feed.LastCheckedAt = &now

	switch {
	case result.Err != nil:
		r.logger.Warn("feed fetch failed", "url", feed.URL, "error", result.Err)
	case result.Response == nil:
		// Nothing received at all; keep the stored state.
	case result.Response.StatusCode == http.StatusNotModified:
		r.logger.Debug("feed not modified", "url", feed.URL)
		if info := model.ConditionalGetInfoFromHeader(result.Response.Header); info != nil {
			feed.ConditionalGet = info
			feed.ConditionalGetAt = &now
		}
	case result.Response.StatusCode >= 400:
		r.logger.Warn("feed fetch rejected", "url", feed.URL, "status", result.Response.StatusCode)
	default:
		run.ingest(feed, result, now)
	}

	if err := r.store.UpdateFeedFetchInfo(run.ctx, feed); err != nil {
		r.logger.Error("persist feed fetch info", "url", feed.URL, "error", err)
	}
}

// ingest parses downloaded bytes and stores new entries, skipping the parse
// entirely when the content hash matches the previous fetch.
func (run *refreshRun) ingest(feed *model.Feed, result download.Result, now time.Time) {
	r := run.refresher

	hash := fetcher.ContentHash(result.Body)
	if hash != "" && hash == feed.ContentHash {
		r.logger.Debug("feed content unchanged", "url", feed.URL)
		return
	}

	entries, err := fetcher.Parse(result.Body, feed.URL)
	if err != nil {
		r.logger.Warn("feed parse failed", "url", feed.URL, "error", err)
		return
	}

	created, err := r.store.UpsertArticles(run.ctx, feed.ID, entries)
	if err != nil {
		r.logger.Error("store articles", "url", feed.URL, "error", err)
		return
	}

	feed.ContentHash = hash
	if info := model.ConditionalGetInfoFromHeader(result.Response.Header); info != nil {
		feed.ConditionalGet = info
		feed.ConditionalGetAt = &now
	}
	if fetcher.HonorsCacheControl(feed.URL, r.opts.HonoredCacheHosts) {
		feed.CacheControl = fetcher.CacheControlFromResponse(result.Response.Header, now)
	}

	if created > 0 {
		r.center.Post(notify.ArticlesChanged)
	}
	r.logger.Info("feed refreshed", "url", feed.URL, "entries", len(entries), "new", created)
}

func (run *refreshRun) sessionDidComplete() {
	close(run.done)
}
