package crawler

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"search-crawler/internal/config"
	"search-crawler/internal/frontier"
	"search-crawler/internal/parser"
)

// Options is built once per crawl and shared by every worker.
type Options struct {
	Seeds         []string
	MaxPages      int // <= 0 means no limit
	Workers       int
	Strategy      frontier.Strategy
	UserAgent     string
	FetchTimeout  time.Duration
	PopTimeout    time.Duration // drain window for an idle worker
	DelayMin      time.Duration // random pause before each page fetch
	DelayMax      time.Duration
	MaxBodyBytes  int64
	MaxRetries    int
	RetryBackoff  time.Duration
	StatsInterval time.Duration
}

// Politeness is what the coordinator needs from the robots checker.
type Politeness interface {
	Allowed(ctx context.Context, u *url.URL) bool
	Wait(ctx context.Context, host string) error
}

// Deps are the collaborators a crawl runs with. Nil fields get defaults.
type Deps struct {
	Politeness Politeness
	Fetcher    Fetcher
	Consumer   parser.Consumer
	Logger     *slog.Logger
}

// OptionsFromConfig maps the crawl section of the configuration.
func OptionsFromConfig(c config.CrawlConfig) (Options, error) {
	strategy, err := frontier.ParseStrategy(c.Strategy)
	if err != nil {
		return Options{}, err
	}
	return Options{
		Seeds:        c.Seeds,
		MaxPages:     c.MaxPages,
		Workers:      c.Workers,
		Strategy:     strategy,
		UserAgent:    c.UserAgent,
		FetchTimeout: c.FetchTimeout.Duration,
		PopTimeout:   c.PopTimeout.Duration,
		DelayMin:     c.DelayMin.Duration,
		DelayMax:     c.DelayMax.Duration,
		MaxBodyBytes: c.MaxBodyBytes,
		MaxRetries:   c.MaxRetries,
		RetryBackoff: c.RetryBackoff.Duration,
	}, nil
}

func (o *Options) setDefaults() {
	if o.Workers <= 0 {
		o.Workers = 50
	}
	if o.UserAgent == "" {
		o.UserAgent = "simple_crawler/0.1"
	}
	if o.FetchTimeout <= 0 {
		o.FetchTimeout = 15 * time.Second
	}
	if o.PopTimeout <= 0 {
		o.PopTimeout = 5 * time.Second
	}
	if o.DelayMax < o.DelayMin {
		o.DelayMax = o.DelayMin
	}
	if o.MaxBodyBytes <= 0 {
		o.MaxBodyBytes = 1 << 20 // 1 MiB safety cap
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.StatsInterval <= 0 {
		o.StatsInterval = time.Minute
	}
}

// AgentToken derives the robots.txt group name from a user agent string,
// e.g. "simple_crawler/0.1" -> "simple_crawler".
func AgentToken(userAgent string) string {
	token, _, _ := strings.Cut(strings.TrimSpace(userAgent), "/")
	if token == "" {
		return "*"
	}
	return token
}
