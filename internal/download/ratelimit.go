package download

import "time"

// RateLimitLedger tracks per-host backoff windows created from 429 responses.
// Entries expire lazily: the first check after the resume time removes them.
//
// The ledger has no locking of its own; the Session guards it with its
// bookkeeping mutex.
type RateLimitLedger struct {
	resumeAt map[string]time.Time
}

// NewRateLimitLedger returns an empty ledger.
func NewRateLimitLedger() *RateLimitLedger {
	return &RateLimitLedger{resumeAt: make(map[string]time.Time)}
}

// Note records that host must not be contacted again until now+retryAfter.
func (l *RateLimitLedger) Note(host string, retryAfter time.Duration, now time.Time) {
	if host == "" || retryAfter <= 0 {
		return
	}
	l.resumeAt[host] = now.Add(retryAfter)
}

// Blocked reports whether host is inside an active backoff window.
func (l *RateLimitLedger) Blocked(host string, now time.Time) bool {
	resume, ok := l.resumeAt[host]
	if !ok {
		return false
	}
	if now.After(resume) {
		delete(l.resumeAt, host)
		return false
	}
	return true
}

// Clear removes all entries.
func (l *RateLimitLedger) Clear() {
	l.resumeAt = make(map[string]time.Time)
}
