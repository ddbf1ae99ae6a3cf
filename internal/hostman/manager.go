package hostman

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

// ErrRobotsUnavailable wraps every reason robots.txt could not be used.
// The checker treats it as a deny.
var ErrRobotsUnavailable = errors.New("robots.txt unavailable")

const maxRobotsBytes = 512 << 10

// Options configures a Manager.
type Options struct {
	UserAgent       string        // sent on robots.txt requests
	AgentToken      string        // matched against User-agent groups
	Timeout         time.Duration // robots.txt download timeout
	DelayMin        time.Duration // random delay before each robots fetch
	DelayMax        time.Duration
	RequestsPerHost float64 // page fetch token bucket; 0 disables
	Cache           bool    // keep successfully parsed rules per host
	Client          *http.Client
	Logger          *slog.Logger
}

// HostInfo stores crawl policy & limiter for one host.
type HostInfo struct {
	rules   RuleSet // nil until fetched successfully
	limiter *rate.Limiter
}

// Manager answers robots allow/deny questions and paces requests per host.
type Manager struct {
	opts   Options
	client *http.Client
	logger *slog.Logger

	mu    sync.Mutex
	hosts map[string]*HostInfo
	rng   *rand.Rand

	group singleflight.Group
}

// New returns a ready Manager.
func New(opts Options) *Manager {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.AgentToken == "" {
		opts.AgentToken = "*"
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		opts:   opts,
		client: client,
		logger: logger,
		hosts:  make(map[string]*HostInfo),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Allowed reports whether u may be crawled. Any failure to obtain the
// host's robots.txt yields false.
func (m *Manager) Allowed(ctx context.Context, u *url.URL) bool {
	if u == nil || !u.IsAbs() || u.Host == "" {
		return false
	}
	rules, err := m.Rules(ctx, u)
	if err != nil {
		m.logger.Debug("robots unavailable, denying", "url", u.String(), "error", err)
		return false
	}
	// Entries in robots.txt are raw text, so compare the still-encoded path.
	return rules.Allows(m.opts.AgentToken, u.EscapedPath())
}

// Rules returns the parsed robots.txt for u's scheme and host.
func (m *Manager) Rules(ctx context.Context, u *url.URL) (RuleSet, error) {
	key := strings.ToLower(u.Scheme + "://" + u.Host)

	if m.opts.Cache {
		if h := m.host(key); h != nil {
			m.mu.Lock()
			rules := h.rules
			m.mu.Unlock()
			if rules != nil {
				return rules, nil
			}
		}
	}

	v, err, _ := m.group.Do(key, func() (any, error) {
		if err := m.sleep(ctx, m.opts.DelayMin, m.opts.DelayMax); err != nil {
			return nil, err
		}
		rules, err := m.fetchRobots(ctx, u.Scheme, u.Host)
		if err != nil {
			return nil, err
		}
		if m.opts.Cache {
			h := m.ensureHost(key)
			m.mu.Lock()
			h.rules = rules
			m.mu.Unlock()
		}
		return rules, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(RuleSet), nil
}

// Wait blocks on the per-host token bucket before a page fetch.
func (m *Manager) Wait(ctx context.Context, host string) error {
	if m.opts.RequestsPerHost <= 0 || host == "" {
		return nil
	}
	h := m.ensureHost(strings.ToLower(host))
	return h.limiter.Wait(ctx)
}

// Hosts reports how many distinct hosts the manager has seen.
func (m *Manager) Hosts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.hosts)
}

func (m *Manager) host(key string) *HostInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hosts[key]
}

// ensureHost lazily creates HostInfo; burst = rps, at least 1.
func (m *Manager) ensureHost(key string) *HostInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.hosts[key]
	if !ok {
		burst := int(m.opts.RequestsPerHost)
		if burst < 1 {
			burst = 1
		}
		limit := rate.Inf
		if m.opts.RequestsPerHost > 0 {
			limit = rate.Limit(m.opts.RequestsPerHost)
		}
		h = &HostInfo{limiter: rate.NewLimiter(limit, burst)}
		m.hosts[key] = h
	}
	return h
}

func (m *Manager) sleep(ctx context.Context, lo, hi time.Duration) error {
	d := lo
	if hi > lo {
		m.mu.Lock()
		d += time.Duration(m.rng.Int63n(int64(hi - lo)))
		m.mu.Unlock()
	}
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// --- helpers -------------------------------------------------------------

func (m *Manager) fetchRobots(ctx context.Context, scheme, host string) (RuleSet, error) {
	robotsURL := scheme + "://" + host + "/robots.txt"

	ctx, cancel := context.WithTimeout(ctx, m.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrRobotsUnavailable, err)
	}
	if m.opts.UserAgent != "" {
		req.Header.Set("User-Agent", m.opts.UserAgent)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRobotsUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %s returned status %d", ErrRobotsUnavailable, robotsURL, resp.StatusCode)
	}

	rules, err := ParseRobots(io.LimitReader(resp.Body, maxRobotsBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: parse: %v", ErrRobotsUnavailable, err)
	}
	return rules, nil
}
