// Package model defines the domain types used across the application.
package model

import (
	"net/http"
	"time"
)

// Account represents one synced feed-reader account. All feeds, folders,
// and statuses are scoped to an account; the account is the unit of refresh.
type Account struct {
	ID            int64
	ExternalID    string
	Name          string
	LastRefreshAt *time.Time
	CreatedAt     time.Time
}

// Feed represents a feed subscription owned by an account.
type Feed struct {
	ID          int64
	AccountID   int64
	ExternalID  string // subscription ID assigned by the remote service
	URL         string
	Title       string
	HomePageURL string

	ConditionalGet   *ConditionalGetInfo
	ConditionalGetAt *time.Time
	ContentHash      string
	CacheControl     *CacheControlInfo
	LastCheckedAt    *time.Time

	CreatedAt time.Time
}

// Folder represents a named grouping of feeds within an account.
type Folder struct {
	ID         int64
	AccountID  int64
	ExternalID string
	Name       string
	CreatedAt  time.Time
}

// Membership records that a feed belongs to a folder. RelationshipID is the
// remote service's key for the pairing (a tagging ID or similar).
type Membership struct {
	FolderID       int64
	FeedID         int64
	RelationshipID string
}

// Article represents a single downloaded entry. ExternalID is the identifier
// shared with the remote service; status records are keyed by it so a status
// can exist before the article itself has been downloaded.
type Article struct {
	ID          int64
	FeedID      int64
	ExternalID  string
	Title       string
	ContentHTML string
	URL         string
	PublishedAt *time.Time
}

// StatusKey identifies which per-article flag a status change refers to.
type StatusKey string

// Supported status keys.
const (
	StatusRead    StatusKey = "read"
	StatusStarred StatusKey = "starred"
)

// SyncStatus is a pending outbound status change awaiting confirmation from
// the remote service. It is durably queued and removed only after the remote
// call succeeds.
type SyncStatus struct {
	ArticleID string
	Key       StatusKey
	Flag      bool
	Selected  bool
}

// Entry is the normalized output of the feed-format parse boundary.
type Entry struct {
	ID          string
	Title       string
	ContentHTML string
	URL         string
	PublishedAt *time.Time
	FeedURL     string
}

// Subscription is one remote feed subscription as listed by the service.
type Subscription struct {
	ID          string
	URL         string
	Title       string
	HomePageURL string
}

// Grouping is one remote folder/tag with its member subscription IDs.
type Grouping struct {
	ExternalID string
	Name       string
	MemberIDs  []string
}

// ContainerSnapshot is the result of listing an account's remote
// subscriptions and groupings in one sync pass. It lives only for the
// duration of one reconciliation.
type ContainerSnapshot struct {
	Subscriptions []Subscription
	Groupings     []Grouping
}

// ConditionalGetInfo holds the validators from a previous fetch.
type ConditionalGetInfo struct {
	ETag         string
	LastModified string
}

// ConditionalGetInfoFromHeader extracts validators from a response header.
// Returns nil if the response carried neither validator.
func ConditionalGetInfoFromHeader(h http.Header) *ConditionalGetInfo {
	info := &ConditionalGetInfo{
		ETag:         h.Get("ETag"),
		LastModified: h.Get("Last-Modified"),
	}
	if info.ETag == "" && info.LastModified == "" {
		return nil
	}
	return info
}

// ApplyToRequest adds If-None-Match / If-Modified-Since headers.
func (info *ConditionalGetInfo) ApplyToRequest(req *http.Request) {
	if info.ETag != "" {
		req.Header.Set("If-None-Match", info.ETag)
	}
	if info.LastModified != "" {
		req.Header.Set("If-Modified-Since", info.LastModified)
	}
}

// CacheControlInfo records a server-provided max-age. Honored only for hosts
// known to set Cache-Control intentionally; most feed servers do not.
type CacheControlInfo struct {
	MaxAge    time.Duration
	FetchedAt time.Time
}

// CanResume reports whether the max-age window has elapsed.
func (c *CacheControlInfo) CanResume(now time.Time) bool {
	return now.After(c.FetchedAt.Add(c.MaxAge))
}
