package download

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/h2non/gock"

	"feedsync/internal/model"
)

type testDelegate struct {
	mu         sync.Mutex
	results    []Result
	completes  int
	condInfo   map[string]*model.ConditionalGetInfo
	continueFn func(urlStr string, received []byte) bool
	done       chan struct{}
}

func newTestDelegate() *testDelegate {
	return &testDelegate{done: make(chan struct{}, 8)}
}

func (d *testDelegate) ConditionalGetInfo(urlStr string) *model.ConditionalGetInfo {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.condInfo[urlStr]
}

func (d *testDelegate) ShouldContinue(urlStr string, received []byte) bool {
	d.mu.Lock()
	fn := d.continueFn
	d.mu.Unlock()
	if fn == nil {
		return true
	}
	return fn(urlStr, received)
}

func (d *testDelegate) DownloadDidComplete(result Result) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.results = append(d.results, result)
}

func (d *testDelegate) SessionDidComplete() {
	d.mu.Lock()
	d.completes++
	d.mu.Unlock()
	d.done <- struct{}{}
}

func (d *testDelegate) snapshot() ([]Result, int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cp := make([]Result, len(d.results))
	copy(cp, d.results)
	return cp, d.completes
}

func (d *testDelegate) resultFor(urlStr string) *Result {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range d.results {
		if d.results[i].URL == urlStr {
			return &d.results[i]
		}
	}
	return nil
}

func waitForSession(t *testing.T, d *testDelegate) {
	t.Helper()
	select {
	case <-d.done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for session to complete")
	}
}

func newTestSession(t *testing.T, d *testDelegate, opts Options) *Session {
	t.Helper()
	t.Cleanup(gock.Off)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewSession(d, gock.NewTransport(), log, opts)
}

func TestDownloadCompletesAllURLs(t *testing.T) {
	gock.New("http://a.test").Get("/feed").Reply(200).BodyString("<rss/>")
	gock.New("http://b.test").Get("/feed").Reply(200).BodyString("<rss/>")
	gock.New("http://c.test").Get("/feed").Reply(500)

	d := newTestDelegate()
	s := newTestSession(t, d, Options{})

	urls := []string{"http://a.test/feed", "http://b.test/feed", "http://c.test/feed"}
	admitted := s.Download(urls)
	if admitted != len(urls) {
		t.Fatalf("admitted = %d, want %d", admitted, len(urls))
	}
	waitForSession(t, d)

	results, completes := d.snapshot()
	if len(results) != len(urls) {
		t.Errorf("got %d per-URL callbacks, want %d", len(results), len(urls))
	}
	if completes != 1 {
		t.Errorf("got %d session-complete callbacks, want 1", completes)
	}

	failed := d.resultFor("http://c.test/feed")
	if failed == nil || failed.Response == nil {
		t.Fatal("expected a result with response metadata for the 500 URL")
	}
	if failed.Err != nil {
		t.Errorf("5xx should not set Err, got %v", failed.Err)
	}
	if diff := cmp.Diff(500, failed.Response.StatusCode); diff != "" {
		t.Errorf("status mismatch (-want +got):\n%s", diff)
	}
}

func TestDuplicateURLsAreDiscarded(t *testing.T) {
	gock.New("http://a.test").Get("/feed").Reply(200).BodyString("ok")

	d := newTestDelegate()
	s := newTestSession(t, d, Options{})

	admitted := s.Download([]string{"http://a.test/feed", "http://a.test/feed"})
	if admitted != 1 {
		t.Fatalf("admitted = %d, want 1", admitted)
	}
	waitForSession(t, d)

	results, _ := d.snapshot()
	if len(results) != 1 {
		t.Errorf("got %d callbacks, want 1", len(results))
	}
}

func TestDisallowedHostIsFiltered(t *testing.T) {
	d := newTestDelegate()
	s := newTestSession(t, d, Options{DisallowedHosts: []string{"twitter.com", "x.com"}})

	admitted := s.Download([]string{"https://twitter.com/someone", "https://x.com/someone"})
	if admitted != 0 {
		t.Fatalf("admitted = %d, want 0", admitted)
	}

	results, completes := d.snapshot()
	if len(results) != 0 || completes != 0 {
		t.Errorf("filtered-out URLs produced callbacks: %d results, %d completes", len(results), completes)
	}
}

func TestRateLimit429PurgesHostAndBlocksLaterRequests(t *testing.T) {
	gock.New("http://ok.test").Get("/feed").Reply(200).BodyString("ok")
	gock.New("http://limited.test").Get("/b").
		Reply(429).
		SetHeader("Retry-After", "60")

	d := newTestDelegate()
	// Concurrency 1 keeps the same-host URL queued when the 429 arrives.
	s := newTestSession(t, d, Options{MaxConcurrent: 1})

	s.Download([]string{"http://limited.test/b", "http://limited.test/c", "http://ok.test/feed"})
	waitForSession(t, d)

	rb := d.resultFor("http://limited.test/b")
	if rb == nil || rb.Err != ErrRateLimited {
		t.Fatalf("result for b = %+v, want ErrRateLimited", rb)
	}
	rc := d.resultFor("http://limited.test/c")
	if rc == nil || rc.Err != ErrRateLimited {
		t.Fatalf("result for c = %+v, want ErrRateLimited (purged without a request)", rc)
	}
	if rc.Response != nil {
		t.Error("purged URL has response metadata, meaning a request was made")
	}
	if got := d.resultFor("http://ok.test/feed"); got == nil || got.Err != nil {
		t.Fatalf("unrelated host should be unaffected, got %+v", got)
	}

	if !s.HostBlocked("limited.test") {
		t.Fatal("expected limited.test to be in the backoff window")
	}

	// A later download round inside the backoff window dispatches nothing.
	s.Download([]string{"http://limited.test/d"})
	waitForSession(t, d)

	if got := d.resultFor("http://limited.test/d"); got != nil {
		t.Errorf("blocked-host URL produced a callback: %+v", got)
	}
}

func TestConditionalGetHeadersAreSent(t *testing.T) {
	gock.New("http://a.test").Get("/feed").
		MatchHeader("If-None-Match", `"abc123"`).
		MatchHeader("If-Modified-Since", "Mon, 02 Jan 2006 15:04:05 GMT").
		Reply(304)

	d := newTestDelegate()
	d.condInfo = map[string]*model.ConditionalGetInfo{
		"http://a.test/feed": {
			ETag:         `"abc123"`,
			LastModified: "Mon, 02 Jan 2006 15:04:05 GMT",
		},
	}
	s := newTestSession(t, d, Options{})

	s.Download([]string{"http://a.test/feed"})
	waitForSession(t, d)

	got := d.resultFor("http://a.test/feed")
	if got == nil || got.Response == nil {
		t.Fatal("missing result for conditional fetch")
	}
	if got.Response.StatusCode != http.StatusNotModified {
		t.Errorf("status = %d, want 304", got.Response.StatusCode)
	}
	if got.Err != nil {
		t.Errorf("not-modified should not be an error, got %v", got.Err)
	}
}

func TestShouldContinueAbortsDownload(t *testing.T) {
	gock.New("http://img.test").Get("/feed").
		Reply(200).
		BodyString("\x89PNG\r\n\x1a\npayload that is definitely not a feed")

	d := newTestDelegate()
	d.continueFn = func(_ string, received []byte) bool {
		return len(received) == 0
	}
	s := newTestSession(t, d, Options{})

	s.Download([]string{"http://img.test/feed"})
	waitForSession(t, d)

	got := d.resultFor("http://img.test/feed")
	if got == nil || got.Err != ErrAborted {
		t.Fatalf("result = %+v, want ErrAborted", got)
	}
	if got.Body != nil {
		t.Error("aborted download should not deliver a body")
	}
}

func TestRedirectIsCachedAndSkippedOnRefetch(t *testing.T) {
	gock.New("http://old.test").Get("/feed").
		Reply(301).
		SetHeader("Location", "http://new.test/feed")
	gock.New("http://new.test").Get("/feed").Times(2).Reply(200).BodyString("ok")

	d := newTestDelegate()
	s := newTestSession(t, d, Options{})

	s.Download([]string{"http://old.test/feed"})
	waitForSession(t, d)

	if target, ok := s.redirects.Resolve("http://old.test/feed"); !ok || target != "http://new.test/feed" {
		t.Fatalf("redirect cache resolve = %q, %v; want new.test URL", target, ok)
	}

	// Second round must go straight to the target; there is no second mock
	// for old.test, so hitting it would surface as a transport error.
	s.Download([]string{"http://old.test/feed"})
	waitForSession(t, d)

	results, _ := d.snapshot()
	second := results[len(results)-1]
	if second.Err != nil {
		t.Fatalf("refetch after cached redirect failed: %v", second.Err)
	}
}

func TestCancelAllSuppressesTerminalCallback(t *testing.T) {
	// Contract choice: an explicit CancelAll delivers no session-complete
	// callback. In-flight URLs still resolve with their cancellation error.
	started := make(chan struct{})
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		close(started)
		<-release
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	defer close(release)

	d := newTestDelegate()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := NewSession(d, nil, log, Options{})

	s.Download([]string{srv.URL + "/feed"})
	<-started
	s.CancelAll()

	select {
	case <-d.done:
		t.Fatal("session-complete fired after explicit CancelAll")
	case <-time.After(300 * time.Millisecond):
	}

	if got := s.Progress().NumberOfTasks(); got != 0 {
		t.Errorf("progress not reset after CancelAll: %d tasks", got)
	}
}

func TestProgressCountsDuringSession(t *testing.T) {
	gock.New("http://a.test").Get("/feed").Reply(200).BodyString("ok")

	d := newTestDelegate()
	s := newTestSession(t, d, Options{})

	s.Download([]string{"http://a.test/feed"})
	waitForSession(t, d)

	p := s.Progress()
	if p.NumberRemaining() != 0 {
		t.Errorf("remaining = %d after completion, want 0", p.NumberRemaining())
	}
}
