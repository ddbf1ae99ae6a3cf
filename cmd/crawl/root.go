package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"search-crawler/internal/config"
	"search-crawler/internal/crawler"
)

// NewRootCmd creates the crawl command.
func NewRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Polite concurrent web crawler that builds a searchable index",
		Long: `crawl starts from one or more seed URLs, honours robots.txt, and fetches
pages with a pool of workers until the page limit is reached or the frontier
runs dry. The resulting inverted index and page table are written to CSV and,
optionally, to SQLite and MongoDB.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if err := applyFlags(cmd.Flags(), cfg); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg, cmd.ErrOrStderr())
		},
	}

	f := cmd.Flags()
	f.StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	f.StringSlice("seed", []string{"https://www.cc.gatech.edu/"}, "initial URL(s) to start crawling from")
	f.Int("maxPages", 10, "stop after N indexed pages (0 = no limit)")
	f.Int("workers", 50, "number of parallel fetchers")
	f.String("strategy", "bfs", "frontier order: bfs, dfs or mixedNN")
	f.Float64("maxPerHost", 2.0, "max requests/sec to one host (0 = unlimited)")
	f.String("userAgent", "simple_crawler/0.1", "HTTP User-Agent string")
	f.Duration("robotsTimeout", 0, "robots.txt fetch timeout")
	f.Duration("popTimeout", 0, "how long an idle worker waits for new URLs")
	f.Duration("fetchTimeout", 0, "per-page fetch timeout")
	f.String("csv", "", "directory for invertedIndex.csv and pageInfo.csv")
	f.String("sqlite", "", "also write the index to this SQLite database")
	f.String("metrics-addr", "", "serve prometheus metrics on this address")

	return cmd
}

// applyFlags copies explicitly set flags over the loaded configuration.
func applyFlags(f *pflag.FlagSet, cfg *config.Config) error {
	var err error
	set := func(name string, apply func()) {
		if err == nil && f.Changed(name) {
			apply()
		}
	}

	// Seeds only fall back to the flag default when the config has none.
	if f.Changed("seed") || len(cfg.Crawl.Seeds) == 0 {
		cfg.Crawl.Seeds, err = f.GetStringSlice("seed")
	}
	set("maxPages", func() { cfg.Crawl.MaxPages, err = f.GetInt("maxPages") })
	set("workers", func() { cfg.Crawl.Workers, err = f.GetInt("workers") })
	set("strategy", func() { cfg.Crawl.Strategy, err = f.GetString("strategy") })
	set("maxPerHost", func() { cfg.Robots.RequestsPerHost, err = f.GetFloat64("maxPerHost") })
	set("userAgent", func() {
		prev := cfg.Crawl.UserAgent
		if cfg.Crawl.UserAgent, err = f.GetString("userAgent"); err != nil {
			return
		}
		// A token still derived from the old agent follows the new one; a
		// token configured separately is left alone.
		if cfg.Robots.AgentToken == "" || cfg.Robots.AgentToken == crawler.AgentToken(prev) {
			cfg.Robots.AgentToken = crawler.AgentToken(cfg.Crawl.UserAgent)
		}
	})
	set("robotsTimeout", func() { err = setDuration(f, "robotsTimeout", &cfg.Robots.Timeout) })
	set("popTimeout", func() { err = setDuration(f, "popTimeout", &cfg.Crawl.PopTimeout) })
	set("fetchTimeout", func() { err = setDuration(f, "fetchTimeout", &cfg.Crawl.FetchTimeout) })
	set("csv", func() { cfg.Output.CSVDir, err = f.GetString("csv") })
	set("sqlite", func() { cfg.Output.SQLitePath, err = f.GetString("sqlite") })
	set("metrics-addr", func() {
		cfg.Metrics.Addr, err = f.GetString("metrics-addr")
		cfg.Metrics.Enabled = cfg.Metrics.Addr != ""
	})
	return err
}

func setDuration(f *pflag.FlagSet, name string, dst *config.Duration) error {
	d, err := f.GetDuration(name)
	if err != nil {
		return err
	}
	*dst = config.DurationFrom(d)
	return nil
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
