package download

import "strings"

// Substrings that mark a redirect target as a captive portal or login page.
// Hotels and similar often answer every request with a permanent redirect;
// caching those would poison the feed URL.
var disallowedRedirectSubstrings = []string{
	"solutionip", "lodgenet", "monzoon", "landingpage",
	"btopenzone", "register", "login", "authentic",
}

// RedirectCache remembers redirect targets observed during fetches so repeat
// fetches can skip the redirect hop. Not self-locking; the Session guards it.
type RedirectCache struct {
	edges map[string]string
}

// NewRedirectCache returns an empty cache.
func NewRedirectCache() *RedirectCache {
	return &RedirectCache{edges: make(map[string]string)}
}

// Record stores a fromURL → toURL edge, unless toURL looks like a
// captive-portal or login destination.
func (c *RedirectCache) Record(fromURL, toURL string) {
	if fromURL == "" || toURL == "" || fromURL == toURL {
		return
	}
	if urlIsDisallowedRedirect(toURL) {
		return
	}
	c.edges[fromURL] = toURL
}

// Resolve follows chains of recorded edges to a fixed point. It returns the
// final URL and true if a redirect applies. A chain that revisits a URL is a
// cycle: Resolve reports no redirect rather than looping.
func (c *RedirectCache) Resolve(urlStr string) (string, bool) {
	seen := map[string]bool{urlStr: true}
	current := urlStr

	for {
		next, ok := c.edges[current]
		if !ok {
			break
		}
		if seen[next] {
			// Cycle. Bail.
			return "", false
		}
		seen[next] = true
		current = next
	}

	if current == urlStr {
		return "", false
	}
	return current, true
}

// Clear removes all edges.
func (c *RedirectCache) Clear() {
	c.edges = make(map[string]string)
}

func urlIsDisallowedRedirect(urlStr string) bool {
	s := strings.ToLower(urlStr)
	for _, bad := range disallowedRedirectSubstrings {
		if strings.Contains(s, bad) {
			return true
		}
	}
	return false
}
