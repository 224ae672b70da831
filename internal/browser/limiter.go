package browser

import (
	"context"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/time/rate"
)

// HostLimiter paces navigations per portal host. Local pages such as
// about:blank and data: URLs are never delayed.
type HostLimiter struct {
	every rate.Limit
	burst int

	mu    sync.Mutex
	hosts map[string]*rate.Limiter
}

func NewHostLimiter(perSecond float64, burst int) *HostLimiter {
	if burst < 1 {
		burst = 1
	}
	return &HostLimiter{
		every: rate.Limit(perSecond),
		burst: burst,
		hosts: map[string]*rate.Limiter{},
	}
}

func (hl *HostLimiter) forHost(host string) *rate.Limiter {
	hl.mu.Lock()
	defer hl.mu.Unlock()
	lim := hl.hosts[host]
	if lim == nil {
		lim = rate.NewLimiter(hl.every, hl.burst)
		hl.hosts[host] = lim
	}
	return lim
}

// WaitURL blocks until a navigation to raw may proceed or ctx ends.
func (hl *HostLimiter) WaitURL(ctx context.Context, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return hl.forHost("").Wait(ctx)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil
	}
	return hl.forHost(strings.ToLower(u.Hostname())).Wait(ctx)
}
