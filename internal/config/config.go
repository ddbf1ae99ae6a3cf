package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrNoSeeds is returned by Validate when the crawl has nothing to start from.
var ErrNoSeeds = errors.New("at least one crawl seed must be configured")

// Config captures everything needed to launch a crawl and persist its index.
type Config struct {
	Crawl   CrawlConfig   `yaml:"crawl"`
	Robots  RobotsConfig  `yaml:"robots"`
	Index   IndexConfig   `yaml:"index"`
	Output  OutputConfig  `yaml:"output"`
	Metrics MetricsConfig `yaml:"metrics"`
	Logging LoggingConfig `yaml:"logging"`
}

// CrawlConfig controls the frontier, the worker pool and page fetching.
type CrawlConfig struct {
	Seeds        []string `yaml:"seeds"`
	MaxPages     int      `yaml:"max_pages"`
	Workers      int      `yaml:"workers"`
	Strategy     string   `yaml:"strategy"`
	UserAgent    string   `yaml:"user_agent"`
	FetchTimeout Duration `yaml:"fetch_timeout"`
	PopTimeout   Duration `yaml:"pop_timeout"`
	DelayMin     Duration `yaml:"delay_min"`
	DelayMax     Duration `yaml:"delay_max"`
	MaxBodyBytes int64    `yaml:"max_body_bytes"`
	MaxRetries   int      `yaml:"max_retries"`
	RetryBackoff Duration `yaml:"retry_backoff"`
}

// RobotsConfig configures the politeness checker.
type RobotsConfig struct {
	AgentToken      string   `yaml:"agent_token"`
	Timeout         Duration `yaml:"timeout"`
	DelayMin        Duration `yaml:"delay_min"`
	DelayMax        Duration `yaml:"delay_max"`
	RequestsPerHost float64  `yaml:"requests_per_host"`
	Cache           bool     `yaml:"cache"`
}

// IndexConfig tunes record extraction and ranking.
type IndexConfig struct {
	DescriptionLength int     `yaml:"description_length"`
	Damping           float64 `yaml:"damping"`
	RankIterations    int     `yaml:"rank_iterations"`
}

// OutputConfig selects where the index artifact is written.
type OutputConfig struct {
	CSVDir          string `yaml:"csv_dir"`
	SQLitePath      string `yaml:"sqlite_path"`
	MongoURI        string `yaml:"mongo_uri"`
	MongoDatabase   string `yaml:"mongo_database"`
	MongoCollection string `yaml:"mongo_collection"`
}

// MetricsConfig controls the prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// LoggingConfig selects log verbosity and format.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Structured bool   `yaml:"structured"`
}

// Default returns a Config populated with the crawler's stock settings.
func Default() Config {
	return Config{
		Crawl: CrawlConfig{
			MaxPages:     10,
			Workers:      50,
			Strategy:     "bfs",
			UserAgent:    "simple_crawler/0.1",
			FetchTimeout: DurationFrom(15 * time.Second),
			PopTimeout:   DurationFrom(5 * time.Second),
			DelayMin:     DurationFrom(2 * time.Second),
			DelayMax:     DurationFrom(4 * time.Second),
			MaxBodyBytes: 1 << 20,
			RetryBackoff: DurationFrom(500 * time.Millisecond),
		},
		Robots: RobotsConfig{
			AgentToken:      "simple_crawler",
			Timeout:         DurationFrom(5 * time.Second),
			DelayMin:        DurationFrom(1 * time.Second),
			DelayMax:        DurationFrom(3 * time.Second),
			RequestsPerHost: 2.0,
			Cache:           true,
		},
		Index: IndexConfig{
			DescriptionLength: 200,
			Damping:           0.85,
			RankIterations:    20,
		},
		Output: OutputConfig{
			CSVDir:          "csv",
			MongoDatabase:   "webCrawlerArchive",
			MongoCollection: "webpages",
		},
		Metrics: MetricsConfig{
			Addr: ":2112",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads a YAML file on top of Default, then applies the environment.
// An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		fh, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open config: %w", err)
		}
		defer fh.Close()
		if err := decodeYAML(fh, &cfg); err != nil {
			return nil, err
		}
	}

	// .env is optional; a missing file is not an error.
	_ = godotenv.Load()
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	cfg.normalise()
	return &cfg, nil
}

// LoadFromReader decodes configuration from an arbitrary reader without
// consulting the environment.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	if err := decodeYAML(r, &cfg); err != nil {
		return nil, err
	}
	cfg.normalise()
	return &cfg, nil
}

func decodeYAML(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode config: %w", err)
	}
	return nil
}

// ApplyEnv overrides selected fields from the environment.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("MONGODB_URI"); ok {
		c.Output.MongoURI = v
	}
	if v, ok := lookup("CRAWLER_LOG_LEVEL"); ok && v != "" {
		c.Logging.Level = v
	}
	if v, ok := lookup("CRAWLER_MAX_PAGES"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("CRAWLER_MAX_PAGES: %w", err)
		}
		c.Crawl.MaxPages = n
	}
	if v, ok := lookup("CRAWLER_WORKERS"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("CRAWLER_WORKERS: %w", err)
		}
		c.Crawl.Workers = n
	}
	return nil
}

// Validate enforces the invariants the crawler relies on.
func (c Config) Validate() error {
	if len(c.Crawl.Seeds) == 0 {
		return ErrNoSeeds
	}
	for i, s := range c.Crawl.Seeds {
		if s == "" {
			return fmt.Errorf("seed %d is empty", i)
		}
	}
	if c.Crawl.MaxPages < 0 {
		return fmt.Errorf("crawl.max_pages must be >= 0 (got %d)", c.Crawl.MaxPages)
	}
	if c.Crawl.Workers <= 0 {
		return fmt.Errorf("crawl.workers must be > 0 (got %d)", c.Crawl.Workers)
	}
	if c.Crawl.PopTimeout.Duration <= 0 {
		return fmt.Errorf("crawl.pop_timeout must be > 0 (got %s)", c.Crawl.PopTimeout.Duration)
	}
	if c.Crawl.FetchTimeout.Duration <= 0 {
		return fmt.Errorf("crawl.fetch_timeout must be > 0 (got %s)", c.Crawl.FetchTimeout.Duration)
	}
	if c.Crawl.DelayMax.Duration < c.Crawl.DelayMin.Duration {
		return errors.New("crawl.delay_max must be >= crawl.delay_min")
	}
	if c.Robots.DelayMax.Duration < c.Robots.DelayMin.Duration {
		return errors.New("robots.delay_max must be >= robots.delay_min")
	}
	if c.Crawl.MaxBodyBytes <= 0 {
		return fmt.Errorf("crawl.max_body_bytes must be > 0 (got %d)", c.Crawl.MaxBodyBytes)
	}
	if c.Crawl.MaxRetries < 0 {
		return fmt.Errorf("crawl.max_retries must be >= 0 (got %d)", c.Crawl.MaxRetries)
	}
	if c.Robots.RequestsPerHost < 0 {
		return fmt.Errorf("robots.requests_per_host must be >= 0 (got %g)", c.Robots.RequestsPerHost)
	}
	if strings.TrimSpace(c.Crawl.UserAgent) == "" {
		return errors.New("crawl.user_agent must be set")
	}
	if strings.TrimSpace(c.Robots.AgentToken) == "" {
		return errors.New("robots.agent_token must be set")
	}
	if c.Index.Damping < 0 || c.Index.Damping >= 1 {
		return fmt.Errorf("index.damping must be in [0, 1) (got %g)", c.Index.Damping)
	}
	return nil
}

func (c *Config) normalise() {
	seeds := make([]string, 0, len(c.Crawl.Seeds))
	for _, s := range c.Crawl.Seeds {
		if s = strings.TrimSpace(s); s != "" {
			seeds = append(seeds, s)
		}
	}
	c.Crawl.Seeds = seeds
	c.Crawl.UserAgent = strings.TrimSpace(c.Crawl.UserAgent)
	c.Crawl.Strategy = strings.ToLower(strings.TrimSpace(c.Crawl.Strategy))
	c.Robots.AgentToken = strings.TrimSpace(c.Robots.AgentToken)
	c.Output.MongoURI = strings.TrimSpace(c.Output.MongoURI)
}
