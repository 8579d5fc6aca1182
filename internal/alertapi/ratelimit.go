package alertapi

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// clientLimiters keeps one token bucket per client and forgets clients that
// have been idle long enough for their bucket to refill.
type clientLimiters struct {
	limit   rate.Limit
	burst   int
	idleTTL time.Duration
	now     func() time.Time

	mu        sync.Mutex
	clients   map[string]*clientLimiter
	lastSweep time.Time
}

type clientLimiter struct {
	lim  *rate.Limiter
	seen time.Time
}

func newClientLimiters(perMinute, burst int) *clientLimiters {
	if burst <= 0 {
		burst = 1
	}
	every := time.Minute / time.Duration(perMinute)
	return &clientLimiters{
		limit:   rate.Every(every),
		burst:   burst,
		idleTTL: time.Duration(burst)*every + time.Minute,
		now:     time.Now,
		clients: make(map[string]*clientLimiter),
	}
}

func (l *clientLimiters) allow(key string) bool {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) >= l.idleTTL {
		for k, c := range l.clients {
			if now.Sub(c.seen) >= l.idleTTL {
				delete(l.clients, k)
			}
		}
		l.lastSweep = now
	}

	c, ok := l.clients[key]
	if !ok {
		c = &clientLimiter{lim: rate.NewLimiter(l.limit, l.burst)}
		l.clients[key] = c
	}
	c.seen = now
	return c.lim.AllowN(now, 1)
}

func (l *clientLimiters) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

// clientKey identifies the caller for rate limiting. With trusted proxy hops
// configured the address is taken from X-Forwarded-For, counting that many
// entries from the right, matching the hops the HTTP middleware trusts.
func clientKey(r *http.Request, trustedHops int) string {
	if trustedHops > 0 {
		if xff := r.Header.Values("X-Forwarded-For"); len(xff) > 0 {
			var hops []string
			for _, v := range xff {
				for _, part := range strings.Split(v, ",") {
					if part = strings.TrimSpace(part); part != "" {
						hops = append(hops, part)
					}
				}
			}
			if len(hops) >= trustedHops {
				return hops[len(hops)-trustedHops]
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
