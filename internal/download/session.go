// Package download implements a bounded concurrent download engine with
// conditional-GET support, a redirect cache, and per-host rate-limit backoff.
package download

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"feedsync/internal/model"
)

// Defaults for the engine tunables.
const (
	DefaultMaxConcurrent  = 500
	DefaultRequestTimeout = 15 * time.Second

	readChunkSize = 8 * 1024
)

// Errors reported through Result.Err in addition to transport errors.
var (
	// ErrRateLimited marks a request cancelled because its host returned 429
	// during this session.
	ErrRateLimited = errors.New("host is rate limited")
	// ErrAborted marks a download stopped early by the delegate's
	// ShouldContinue check.
	ErrAborted = errors.New("download aborted by delegate")
)

// HTTPResponse carries the response metadata the engine's consumers need:
// status code and header lookup.
type HTTPResponse struct {
	StatusCode int
	Header     http.Header
}

// Result is the immutable record of one completed download attempt.
// Response is set whenever response headers were received, including non-OK
// statuses; Err is set only for transport failures, rate-limit purges, and
// delegate aborts.
type Result struct {
	URL      string
	Body     []byte
	Response *HTTPResponse
	Err      error
}

// Delegate receives per-URL and session-level callbacks. Methods may be
// invoked from multiple goroutines; implementations guard their own state.
type Delegate interface {
	// ConditionalGetInfo returns validators to attach to the request for
	// urlStr, or nil for an unconditional fetch.
	ConditionalGetInfo(urlStr string) *model.ConditionalGetInfo

	// ShouldContinue is consulted after each received body chunk. Returning
	// false cancels the download; the URL completes with ErrAborted.
	ShouldContinue(urlStr string, received []byte) bool

	// DownloadDidComplete is called exactly once per URL that was dispatched
	// or queued.
	DownloadDidComplete(result Result)

	// SessionDidComplete is called exactly once after the last outstanding
	// URL resolves, provided at least one URL was accepted.
	SessionDidComplete()
}

// Options tunes a Session. Zero values fall back to the defaults above.
type Options struct {
	MaxConcurrent   int
	RequestTimeout  time.Duration
	UserAgent       string
	DisallowedHosts []string // hosts never worth fetching
	Throttle        *HostThrottle
}

// Session is one bounded-concurrency batch of URL fetches tracked to
// completion as a unit. Bookkeeping (task sets, queue, ledger, redirect
// cache) is guarded by a single mutex; network I/O runs fully parallel
// underneath.
type Session struct {
	client   *http.Client
	delegate Delegate
	log      *slog.Logger
	opts     Options

	progress *Progress

	mu        sync.Mutex
	ledger    *RateLimitLedger
	redirects *RedirectCache
	inFlight  map[string]*task
	queue     []string // admitted at tail-first order; popped from the end
	skipped   map[string]bool
	inSession map[string]bool
	suspended bool
	finishing bool
	accepted  int
	reporting int // completion callbacks being delivered right now
}

type task struct {
	url         string // original URL, the session-level identifier
	host        string // effective host after redirect resolution
	cancel      context.CancelFunc
	rateLimited bool
}

// NewSession creates a Session. transport may be nil to use the default; it
// is the seam tests use to intercept requests.
func NewSession(delegate Delegate, transport http.RoundTripper, log *slog.Logger, opts Options) *Session {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = DefaultMaxConcurrent
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	if transport == nil {
		transport = http.DefaultTransport
	}

	s := &Session{
		delegate:  delegate,
		log:       log,
		opts:      opts,
		progress:  &Progress{},
		ledger:    NewRateLimitLedger(),
		redirects: NewRedirectCache(),
		inFlight:  make(map[string]*task),
		skipped:   make(map[string]bool),
		inSession: make(map[string]bool),
	}
	s.client = &http.Client{
		Transport:     transport,
		CheckRedirect: s.checkRedirect,
	}
	return s
}

// Progress returns the session's progress counter.
func (s *Session) Progress() *Progress {
	return s.progress
}

// Download submits a set of URLs. It does not block; results arrive through
// the delegate. The return value is the number of URLs accepted after
// filtering and duplicate discard.
func (s *Session) Download(urls []string) int {
	s.mu.Lock()

	urls = s.opts.Throttle.Filter(urls, time.Now())

	var admitted []string
	for _, u := range urls {
		if s.inSession[u] {
			continue
		}
		if s.hostDisallowed(u) {
			s.log.Info("dropping request for disallowed host", "url", u)
			continue
		}
		s.inSession[u] = true
		admitted = append(admitted, u)
	}

	s.accepted += len(admitted)
	s.progress.AddTasks(len(admitted))
	for _, u := range admitted {
		s.admitLocked(u)
	}
	s.mu.Unlock()

	s.maybeFinish()
	return len(admitted)
}

// CancelAll cancels every in-flight and queued task and clears session
// bookkeeping. No terminal session-complete callback follows an explicit
// cancel; in-flight URLs still report their (cancellation) results.
func (s *Session) CancelAll() {
	s.mu.Lock()
	for _, t := range s.inFlight {
		t.cancel()
	}
	s.queue = nil
	s.inSession = make(map[string]bool)
	s.skipped = make(map[string]bool)
	s.accepted = 0
	s.mu.Unlock()

	s.progress.Reset()
}

// Suspend stops admitting queued tasks and aborts body streaming without
// cancelling requests that are already in flight.
func (s *Session) Suspend() {
	s.mu.Lock()
	s.suspended = true
	s.mu.Unlock()
}

// Resume re-enables admission and drains the queue up to capacity.
func (s *Session) Resume() {
	s.mu.Lock()
	s.suspended = false
	s.fillFromQueueLocked()
	s.mu.Unlock()

	s.maybeFinish()
}

// ClearCaches drops the rate-limit ledger and redirect cache. They otherwise
// live as long as the session.
func (s *Session) ClearCaches() {
	s.mu.Lock()
	s.ledger.Clear()
	s.redirects.Clear()
	s.mu.Unlock()
}

// HostBlocked reports whether host currently has an active backoff window.
func (s *Session) HostBlocked(host string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.Blocked(strings.ToLower(host), time.Now())
}

// admitLocked dispatches a URL or parks it on the FIFO queue.
func (s *Session) admitLocked(u string) {
	if s.suspended || len(s.inFlight) >= s.opts.MaxConcurrent {
		s.queue = append([]string{u}, s.queue...)
		return
	}
	s.dispatchLocked(u)
}

// dispatchLocked resolves redirects, applies the ledger and the 4xx skip
// set, and starts the request goroutine. Dropped URLs complete silently:
// they count toward progress but produce no delegate callback.
func (s *Session) dispatchLocked(u string) {
	effective := u
	if target, ok := s.redirects.Resolve(u); ok {
		effective = target
	}

	if s.skipped[u] || s.skipped[effective] {
		s.log.Info("dropping request for previous 4xx", "url", u)
		s.progress.CompleteTask()
		return
	}

	host := hostOf(effective)
	if s.ledger.Blocked(host, time.Now()) {
		s.log.Info("dropping request for rate-limited host", "url", u, "host", host)
		s.progress.CompleteTask()
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.opts.RequestTimeout)
	t := &task{url: u, host: host, cancel: cancel}
	s.inFlight[u] = t

	go s.perform(ctx, t, effective)
}

// fillFromQueueLocked promotes queued URLs while capacity allows.
func (s *Session) fillFromQueueLocked() {
	for !s.suspended && len(s.inFlight) < s.opts.MaxConcurrent && len(s.queue) > 0 {
		u := s.queue[len(s.queue)-1]
		s.queue = s.queue[:len(s.queue)-1]
		s.dispatchLocked(u)
	}
}

func (s *Session) perform(ctx context.Context, t *task, effective string) {
	defer t.cancel()

	result := s.fetch(ctx, t, effective)
	s.taskDidComplete(t, result)
}

func (s *Session) fetch(ctx context.Context, t *task, effective string) Result {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, effective, nil)
	if err != nil {
		return Result{URL: t.url, Err: fmt.Errorf("create request: %w", err)}
	}
	if s.opts.UserAgent != "" {
		req.Header.Set("User-Agent", s.opts.UserAgent)
	}
	if info := s.delegate.ConditionalGetInfo(t.url); info != nil {
		info.ApplyToRequest(req)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		if t.wasRateLimited(&s.mu) {
			return Result{URL: t.url, Err: ErrRateLimited}
		}
		return Result{URL: t.url, Err: fmt.Errorf("http get: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	meta := &HTTPResponse{StatusCode: resp.StatusCode, Header: resp.Header.Clone()}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		s.handle429(t, meta)
		return Result{URL: t.url, Response: meta, Err: ErrRateLimited}

	case resp.StatusCode >= 400 && resp.StatusCode <= 499:
		s.mu.Lock()
		s.skipped[t.url] = true
		s.skipped[effective] = true
		s.mu.Unlock()
		return Result{URL: t.url, Response: meta}

	case !statusIsOK(resp.StatusCode):
		// 304, 5xx and friends: metadata only, body discarded.
		return Result{URL: t.url, Response: meta}
	}

	body, err := s.streamBody(t.url, resp.Body)
	if err != nil {
		if errors.Is(err, ErrAborted) {
			return Result{URL: t.url, Response: meta, Err: ErrAborted}
		}
		if t.wasRateLimited(&s.mu) {
			return Result{URL: t.url, Err: ErrRateLimited}
		}
		return Result{URL: t.url, Response: meta, Err: fmt.Errorf("read body: %w", err)}
	}
	return Result{URL: t.url, Body: body, Response: meta}
}

// streamBody reads the body in chunks, asking the delegate after each chunk
// whether to keep going. A suspended session also stops streaming.
func (s *Session) streamBody(u string, body io.Reader) ([]byte, error) {
	var buf bytes.Buffer
	chunk := make([]byte, readChunkSize)

	for {
		n, err := body.Read(chunk)
		if n > 0 {
			buf.Write(chunk[:n])
			if s.isSuspended() || !s.delegate.ShouldContinue(u, buf.Bytes()) {
				return nil, ErrAborted
			}
		}
		if err == io.EOF {
			return buf.Bytes(), nil
		}
		if err != nil {
			return nil, err
		}
	}
}

// handle429 records a ledger entry for the host and purges every other
// in-flight and queued request to it. In-flight victims are cancelled and
// report ErrRateLimited from their own goroutines; queued victims are
// completed here.
func (s *Session) handle429(t *task, meta *HTTPResponse) {
	retryAfter := parseRetryAfter(meta.Header.Get("Retry-After"))
	if retryAfter <= 0 || t.host == "" {
		return
	}

	s.mu.Lock()
	s.ledger.Note(t.host, retryAfter, time.Now())
	s.log.Info("rate limited", "host", t.host, "retry_after", retryAfter)

	for _, other := range s.inFlight {
		if other != t && other.host == t.host {
			other.rateLimited = true
			other.cancel()
		}
	}

	var keep, purged []string
	for _, queued := range s.queue {
		effective := queued
		if target, ok := s.redirects.Resolve(queued); ok {
			effective = target
		}
		if hostOf(effective) == t.host {
			purged = append(purged, queued)
		} else {
			keep = append(keep, queued)
		}
	}
	s.queue = keep
	s.mu.Unlock()

	for _, u := range purged {
		s.delegate.DownloadDidComplete(Result{URL: u, Err: ErrRateLimited})
		s.progress.CompleteTask()
	}
}

func (s *Session) taskDidComplete(t *task, result Result) {
	s.mu.Lock()
	delete(s.inFlight, t.url)
	s.reporting++
	s.fillFromQueueLocked()
	s.mu.Unlock()

	s.delegate.DownloadDidComplete(result)
	s.progress.CompleteTask()

	s.mu.Lock()
	s.reporting--
	s.mu.Unlock()

	s.maybeFinish()
}

// maybeFinish delivers the terminal callback once everything has resolved,
// then clears session-scoped bookkeeping so the session can be reused.
func (s *Session) maybeFinish() {
	s.mu.Lock()
	if s.finishing || s.accepted == 0 || len(s.inFlight) > 0 || len(s.queue) > 0 || s.reporting > 0 {
		s.mu.Unlock()
		return
	}
	s.finishing = true
	s.mu.Unlock()

	s.delegate.SessionDidComplete()

	s.mu.Lock()
	s.inSession = make(map[string]bool)
	s.skipped = make(map[string]bool)
	s.accepted = 0
	s.finishing = false
	s.mu.Unlock()
	s.progress.Reset()
}

// checkRedirect records redirect edges as the client follows them. Each hop
// maps the original URL to the newest target, collapsing the chain.
func (s *Session) checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= 10 {
		return errors.New("stopped after 10 redirects")
	}
	if resp := req.Response; resp != nil && resp.StatusCode >= 300 && resp.StatusCode <= 399 {
		from := via[0].URL.String()
		s.mu.Lock()
		s.redirects.Record(from, req.URL.String())
		s.mu.Unlock()
	}
	return nil
}

func (s *Session) isSuspended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.suspended
}

func (s *Session) hostDisallowed(u string) bool {
	host := hostOf(u)
	if host == "" {
		return false
	}
	for _, bad := range s.opts.DisallowedHosts {
		if host == strings.ToLower(bad) {
			return true
		}
	}
	return false
}

func (t *task) wasRateLimited(mu *sync.Mutex) bool {
	mu.Lock()
	defer mu.Unlock()
	return t.rateLimited
}

func hostOf(urlStr string) string {
	u, err := url.Parse(urlStr)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

func statusIsOK(code int) bool {
	return code >= 200 && code <= 299
}

// parseRetryAfter supports the delay-seconds form of Retry-After.
func parseRetryAfter(value string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
