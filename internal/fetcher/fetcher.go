// Package fetcher is the parse boundary: it turns downloaded feed bytes into
// normalized entries and provides the payload heuristics the download engine
// consults while streaming.
package fetcher

import (
	"crypto/md5" //nolint:gosec // content fingerprint, not a security boundary
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"feedsync/internal/model"
)

// Parse parses raw feed bytes (RSS, Atom, or JSON Feed; sniffing is
// gofeed's job) into normalized entries. feedURL identifies the origin feed.
func Parse(data []byte, feedURL string) ([]model.Entry, error) {
	parser := gofeed.NewParser()
	feed, err := parser.ParseString(string(data))
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	entries := make([]model.Entry, 0, len(feed.Items))
	for _, item := range feed.Items {
		entries = append(entries, model.Entry{
			ID:          EntryID(item),
			Title:       item.Title,
			ContentHTML: itemContent(item),
			URL:         item.Link,
			PublishedAt: item.PublishedParsed,
			FeedURL:     feedURL,
		})
	}
	return entries, nil
}

// ParseTitle returns the feed-level title from raw feed bytes.
func ParseTitle(data []byte) (string, error) {
	feed, err := gofeed.NewParser().ParseString(string(data))
	if err != nil {
		return "", fmt.Errorf("parse feed: %w", err)
	}
	return feed.Title, nil
}

// EntryID returns the stable ID for a feed item. If the item has no GUID,
// an MD5 hash of title+link is used.
func EntryID(item *gofeed.Item) string {
	if item.GUID != "" {
		return item.GUID
	}
	h := md5.Sum([]byte(item.Title + "|" + item.Link)) //nolint:gosec
	return fmt.Sprintf("md5:%x", h)
}

// ContentHash fingerprints a feed payload so unchanged bodies can skip the
// parse-and-reconcile path entirely.
func ContentHash(data []byte) string {
	h := md5.Sum(data) //nolint:gosec
	return fmt.Sprintf("%x", h)
}

// IsDefinitelyNotFeed reports whether the received prefix already proves the
// payload cannot be a feed. Only image signatures are detected for now.
func IsDefinitelyNotFeed(prefix []byte) bool {
	if len(prefix) == 0 {
		return false
	}
	return strings.HasPrefix(http.DetectContentType(prefix), "image/")
}

// ConditionalGetIsStale reports whether stored validators should be dropped,
// forcing a full refetch. Some servers answer 304 to any validator, which
// would wedge a feed forever; dropping validators past the window unwedges
// them. Hosts on the allowlist are trusted to answer validators honestly.
func ConditionalGetIsStale(storedAt *time.Time, now time.Time, window time.Duration, feedURL string, trustedHosts []string) bool {
	if storedAt == nil {
		return false
	}
	if now.Sub(*storedAt) <= window {
		return false
	}
	return !hostMatches(feedURL, trustedHosts)
}

// CacheControlFromResponse extracts a max-age directive, or nil.
func CacheControlFromResponse(h http.Header, now time.Time) *model.CacheControlInfo {
	value := h.Get("Cache-Control")
	if value == "" {
		return nil
	}
	for _, directive := range strings.Split(value, ",") {
		directive = strings.TrimSpace(strings.ToLower(directive))
		secs, ok := strings.CutPrefix(directive, "max-age=")
		if !ok {
			continue
		}
		n, err := strconv.Atoi(secs)
		if err != nil || n <= 0 {
			return nil
		}
		return &model.CacheControlInfo{MaxAge: time.Duration(n) * time.Second, FetchedAt: now}
	}
	return nil
}

// HonorsCacheControl reports whether feedURL belongs to a host whose
// Cache-Control headers are intentional. Everyone else's are ignored; feed
// servers in the wild routinely send days-long max-ages for fast feeds.
func HonorsCacheControl(feedURL string, honoredHosts []string) bool {
	return hostMatches(feedURL, honoredHosts)
}

func hostMatches(urlStr string, hosts []string) bool {
	u, err := url.Parse(urlStr)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, h := range hosts {
		h = strings.ToLower(h)
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

func itemContent(item *gofeed.Item) string {
	if item.Content != "" {
		return item.Content
	}
	return item.Description
}
