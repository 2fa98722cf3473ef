package download

import (
	"math/rand"
	"net/url"
	"strings"
	"time"
)

// HostThrottle load-sheds requests to a class of high-traffic hosts. While
// the cooldown since the last admission has elapsed, one randomly chosen URL
// for the host class is admitted per session; otherwise every URL for the
// class is dropped. The cooldown and host list are configuration, not
// correctness rules.
type HostThrottle struct {
	hosts         []string
	cooldown      time.Duration
	lastAdmission time.Time
}

// NewHostThrottle builds a throttle for the given host suffixes.
func NewHostThrottle(hosts []string, cooldown time.Duration) *HostThrottle {
	lowered := make([]string, 0, len(hosts))
	for _, h := range hosts {
		lowered = append(lowered, strings.ToLower(h))
	}
	return &HostThrottle{hosts: lowered, cooldown: cooldown}
}

// Filter returns urls with throttled-host URLs removed, except for at most
// one randomly chosen survivor when the cooldown has elapsed.
func (t *HostThrottle) Filter(urls []string, now time.Time) []string {
	if t == nil || len(t.hosts) == 0 {
		return urls
	}

	var matched, rest []string
	for _, u := range urls {
		if t.matches(u) {
			matched = append(matched, u)
		} else {
			rest = append(rest, u)
		}
	}
	if len(matched) == 0 {
		return rest
	}

	if now.After(t.lastAdmission.Add(t.cooldown)) {
		t.lastAdmission = now
		rest = append(rest, matched[rand.Intn(len(matched))])
	}
	return rest
}

func (t *HostThrottle) matches(urlStr string) bool {
	u, err := url.Parse(urlStr)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, h := range t.hosts {
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}
