package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"

	"github.com/platinummonkey/datarequests/pkg/httputil"
	"github.com/platinummonkey/datarequests/pkg/observability"
)

// RateLimitConfig defines rate limiting configuration
type RateLimitConfig struct {
	// RequestsPerWindow is the max requests allowed in the time window
	RequestsPerWindow int
	// WindowDuration is the time window for rate limiting
	WindowDuration time.Duration
	// BurstSize allows temporary bursts above the rate (local limiter only)
	BurstSize int
	// MaxKeys bounds how many callers the local limiter tracks
	MaxKeys int
}

// DefaultRateLimitConfig returns default rate limit settings
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerWindow: 600,
		WindowDuration:    time.Minute,
		BurstSize:         30,
		MaxKeys:           10000,
	}
}

// Limiter decides whether the caller identified by key may proceed
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
	Config() RateLimitConfig
}

// LocalLimiter is a token bucket per key, kept in memory
type LocalLimiter struct {
	config RateLimitConfig

	// mu makes get-or-create atomic so a key never gets two buckets
	mu      sync.Mutex
	buckets *lru.LRU[string, *rate.Limiter]
}

// NewLocalLimiter creates an in-process limiter. Idle keys expire after two windows.
func NewLocalLimiter(config RateLimitConfig) *LocalLimiter {
	if config.MaxKeys <= 0 {
		config.MaxKeys = DefaultRateLimitConfig().MaxKeys
	}
	if config.WindowDuration <= 0 {
		config.WindowDuration = time.Minute
	}
	return &LocalLimiter{
		config:  config,
		buckets: lru.NewLRU[string, *rate.Limiter](config.MaxKeys, nil, 2*config.WindowDuration),
	}
}

// Allow takes one token from key's bucket
func (l *LocalLimiter) Allow(_ context.Context, key string) (bool, error) {
	return l.bucket(key).Allow(), nil
}

// bucket returns key's bucket, creating it on first use. Every use re-adds the
// bucket so its expiry counts from the last request, not the first.
func (l *LocalLimiter) bucket(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets.Get(key)
	if !ok {
		every := l.config.WindowDuration / time.Duration(max(l.config.RequestsPerWindow, 1))
		b = rate.NewLimiter(rate.Every(every), l.config.BurstSize+1)
	}
	l.buckets.Add(key, b)
	return b
}

// Config returns the limiter settings
func (l *LocalLimiter) Config() RateLimitConfig { return l.config }

// RateLimitMiddleware provides HTTP rate limiting
type RateLimitMiddleware struct {
	limiter        Limiter
	logger         *observability.Logger
	trustedProxies []netip.Prefix
}

// RateLimitOption customizes a RateLimitMiddleware
type RateLimitOption func(*RateLimitMiddleware)

// WithTrustedProxies lets peers inside prefixes name the client through
// X-Forwarded-For or X-Real-IP. Without it those headers are ignored.
func WithTrustedProxies(prefixes []netip.Prefix) RateLimitOption {
	return func(m *RateLimitMiddleware) { m.trustedProxies = prefixes }
}

// NewRateLimitMiddleware creates a new rate limit middleware. Limiter errors
// are logged and the request is let through.
func NewRateLimitMiddleware(limiter Limiter, logger *observability.Logger, opts ...RateLimitOption) *RateLimitMiddleware {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	m := &RateLimitMiddleware{limiter: limiter, logger: logger}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Handler wraps an HTTP handler with rate limiting
func (m *RateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := "ip:" + m.clientIP(r)
		if authCtx := GetAuthContext(r); authCtx != nil {
			key = "user:" + authCtx.UserIDString()
		}

		allowed, err := m.limiter.Allow(r.Context(), key)
		if err != nil {
			m.logger.WithError(err).WithField("key", key).Warn("Rate limiter unavailable, allowing request")
			next.ServeHTTP(w, r)
			return
		}

		cfg := m.limiter.Config()
		w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", cfg.RequestsPerWindow))
		if !allowed {
			w.Header().Set("Retry-After", fmt.Sprintf("%.0f", cfg.WindowDuration.Seconds()))
			httputil.WriteTooManyRequests(w, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// ParseTrustedProxies reads a comma separated list of CIDRs or bare addresses
func ParseTrustedProxies(list string) ([]netip.Prefix, error) {
	var out []netip.Prefix
	for _, item := range strings.Split(list, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if !strings.Contains(item, "/") {
			addr, err := netip.ParseAddr(item)
			if err != nil {
				return nil, fmt.Errorf("invalid trusted proxy %q: %w", item, err)
			}
			out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
			continue
		}
		prefix, err := netip.ParsePrefix(item)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", item, err)
		}
		out = append(out, prefix.Masked())
	}
	return out, nil
}

func (m *RateLimitMiddleware) trusted(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range m.trustedProxies {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// clientIP is the connecting peer unless that peer is a trusted proxy. Behind a
// proxy the client is the right-most X-Forwarded-For hop that is not itself trusted.
func (m *RateLimitMiddleware) clientIP(r *http.Request) string {
	peer := remoteHost(r)
	if !m.trusted(peer) {
		return peer
	}

	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		hops := strings.Split(forwarded, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			if hop == "" {
				continue
			}
			if !m.trusted(hop) {
				return hop
			}
		}
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}
	return peer
}

func remoteHost(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
