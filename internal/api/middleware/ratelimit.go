package middleware

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Houssam-Ibnchakroune/TP03-Web-Marketing-CRM/internal/ratelimit"
)

const visitorIdleTTL = 10 * time.Minute

// RateLimiter throttles each client address with its own token bucket.
type RateLimiter struct {
	visitors map[string]*visitor
	mu       sync.Mutex
	perMin   int
	trusted  []*net.IPNet
	now      func() time.Time
}

type visitor struct {
	bucket   *ratelimit.RateLimiter
	lastSeen time.Time
}

// NewRateLimiter allows requestsPerMinute per client; 0 disables throttling.
// Forwarding headers are only believed when the peer matches trustedProxies
// (IPs or CIDRs); unparseable entries are skipped.
func NewRateLimiter(requestsPerMinute int, trustedProxies []string) *RateLimiter {
	return &RateLimiter{
		visitors: make(map[string]*visitor),
		perMin:   requestsPerMinute,
		trusted:  parseTrusted(trustedProxies),
		now:      time.Now,
	}
}

func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rl.perMin > 0 && !rl.allow(rl.clientIP(r)) {
			w.Header().Set("Retry-After", "60")
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"rate limit exceeded"}`))
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.evictIdle(now)

	v, exists := rl.visitors[ip]
	if !exists {
		v = &visitor{bucket: ratelimit.NewRateLimiter(rl.perMin, time.Minute/time.Duration(rl.perMin))}
		rl.visitors[ip] = v
	}
	v.lastSeen = now

	return v.bucket.Allow()
}

// evictIdle runs under rl.mu.
func (rl *RateLimiter) evictIdle(now time.Time) {
	for ip, v := range rl.visitors {
		if now.Sub(v.lastSeen) > visitorIdleTTL {
			delete(rl.visitors, ip)
		}
	}
}

// clientIP is the peer address unless the peer is a trusted proxy. Behind
// one, X-Forwarded-For is walked right to left and the first hop that is not
// itself trusted wins.
func (rl *RateLimiter) clientIP(r *http.Request) string {
	peer := remoteHost(r.RemoteAddr)
	if !rl.isTrusted(peer) {
		return peer
	}

	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		hops := strings.Split(forwarded, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			if hop != "" && !rl.isTrusted(hop) {
				return hop
			}
		}
	}

	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}

	return peer
}

func (rl *RateLimiter) isTrusted(host string) bool {
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	for _, network := range rl.trusted {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

func parseTrusted(entries []string) []*net.IPNet {
	networks := make([]*net.IPNet, 0, len(entries))
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if _, network, err := net.ParseCIDR(entry); err == nil {
			networks = append(networks, network)
			continue
		}
		ip := net.ParseIP(entry)
		if ip == nil {
			continue
		}
		bits := 8 * net.IPv4len
		if ip.To4() == nil {
			bits = 8 * net.IPv6len
		} else {
			ip = ip.To4()
		}
		networks = append(networks, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
	}
	return networks
}

func remoteHost(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}
