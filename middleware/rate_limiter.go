package middleware

import (
	"context"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"pushupChallengeAPI/internal/config"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per client IP. X-Forwarded-For is only
// read when the peer is a trusted proxy.
type RateLimiter struct {
	cfg      config.RateLimitConfig
	proxies  []netip.Prefix
	mu       sync.Mutex
	visitors map[string]*visitor
	now      func() time.Time
}

// NewRateLimiter expects cfg to have passed config.Validate; unparsable
// proxy entries are ignored.
func NewRateLimiter(cfg config.RateLimitConfig) *RateLimiter {
	proxies, _ := cfg.ProxyPrefixes()
	return &RateLimiter{
		cfg:      cfg,
		proxies:  proxies,
		visitors: make(map[string]*visitor),
		now:      time.Now,
	}
}

func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.limiter(rl.clientIP(r)).Allow() {
			respondWithError(w, http.StatusTooManyRequests, "Too Many Requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP walks X-Forwarded-For from the right, skipping trusted hops, and
// returns the first address a trusted proxy vouched for.
func (rl *RateLimiter) clientIP(r *http.Request) string {
	peer, ok := parseRemote(r.RemoteAddr)
	if !ok {
		return r.RemoteAddr
	}
	if !rl.trusted(peer) {
		return peer.String()
	}

	var hops []string
	for _, h := range r.Header.Values("X-Forwarded-For") {
		hops = append(hops, strings.Split(h, ",")...)
	}
	client := peer
	for i := len(hops) - 1; i >= 0; i-- {
		addr, err := netip.ParseAddr(strings.TrimSpace(hops[i]))
		if err != nil {
			break
		}
		client = addr.Unmap()
		if !rl.trusted(client) {
			break
		}
	}
	return client.String()
}

func (rl *RateLimiter) trusted(addr netip.Addr) bool {
	for _, p := range rl.proxies {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

func parseRemote(remote string) (netip.Addr, bool) {
	if ap, err := netip.ParseAddrPort(remote); err == nil {
		return ap.Addr().Unmap(), true
	}
	if addr, err := netip.ParseAddr(remote); err == nil {
		return addr.Unmap(), true
	}
	return netip.Addr{}, false
}

func (rl *RateLimiter) limiter(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, exists := rl.visitors[ip]
	if !exists {
		v = &visitor{limiter: rate.NewLimiter(rate.Limit(rl.cfg.RequestsPerSecond), rl.cfg.Burst)}
		rl.visitors[ip] = v
	}
	v.lastSeen = rl.now()
	return v.limiter
}

// Sweep drops visitors idle for longer than the configured TTL.
func (rl *RateLimiter) Sweep() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for ip, v := range rl.visitors {
		if rl.now().Sub(v.lastSeen) > rl.cfg.VisitorTTL {
			delete(rl.visitors, ip)
		}
	}
}

// Cleanup sweeps once a minute until ctx is done.
func (rl *RateLimiter) Cleanup(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.Sweep()
		}
	}
}
