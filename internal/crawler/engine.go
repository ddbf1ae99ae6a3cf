// internal/crawler/engine.go
package crawler

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"search-crawler/internal/config"
	"search-crawler/internal/frontier"
	"search-crawler/internal/hostman"
	"search-crawler/internal/index"
	"search-crawler/internal/metrics"
	"search-crawler/internal/parser"
)

// ErrAlreadyRan is returned when Run is called twice on one Engine.
var ErrAlreadyRan = errors.New("crawler: engine already ran")

// Result summarises a finished crawl.
type Result struct {
	RunID        string
	Pages        int  // pages fetched and indexed
	Claimed      int  // URLs claimed, including denied and failed ones
	Stopped      bool // the crawl limit was reached
	FrontierLeft int
	Dropped      int // queued URLs discarded when the limit tripped
	Elapsed      time.Duration
}

// Engine owns one crawl run: the shared state plus the worker pool.
type Engine struct {
	opts   Options
	deps   Deps
	logger *slog.Logger
	runID  string
	state  *state
	ran    atomic.Bool
}

// New validates opts and fills in default collaborators.
func New(opts Options, deps Deps) (*Engine, error) {
	if len(opts.Seeds) == 0 {
		return nil, config.ErrNoSeeds
	}
	opts.setDefaults()

	runID := uuid.NewString()
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	logger := deps.Logger.With("run_id", runID)

	if deps.Fetcher == nil {
		deps.Fetcher = NewHTTPFetcher(opts.UserAgent, opts.FetchTimeout, opts.MaxBodyBytes).WithLogger(logger)
	}
	if deps.Consumer == nil {
		deps.Consumer = parser.NewTextConsumer(parser.DefaultDescriptionLength)
	}
	if deps.Politeness == nil {
		deps.Politeness = hostman.New(hostman.Options{
			UserAgent:  opts.UserAgent,
			AgentToken: AgentToken(opts.UserAgent),
			Cache:      true,
			Logger:     logger,
		})
	}

	return &Engine{
		opts:   opts,
		deps:   deps,
		logger: logger,
		runID:  runID,
		state:  newState(frontier.NewQueue(opts.Strategy), opts.MaxPages),
	}, nil
}

// RunID identifies this crawl in logs and storage.
func (e *Engine) RunID() string { return e.runID }

// Index returns the shared index. Only read it after Run has returned.
func (e *Engine) Index() *index.Index { return e.state.index }

// Run crawls until the page limit trips or the frontier drains. Cancelling
// ctx ends the run early and returns ctx.Err() with the partial result.
func (e *Engine) Run(ctx context.Context) (Result, error) {
	if !e.ran.CompareAndSwap(false, true) {
		return Result{}, ErrAlreadyRan
	}

	// Reaching the limit cancels runCtx so in-flight fetches and politeness
	// sleeps stop early.
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	e.state.onStop = cancel

	for _, s := range e.opts.Seeds {
		e.state.frontier.Push(s)
	}

	e.logger.Info("crawl starting",
		"seeds", len(e.opts.Seeds),
		"max_pages", e.opts.MaxPages,
		"workers", e.opts.Workers,
		"strategy", e.opts.Strategy.String())

	start := time.Now()
	statsDone := make(chan struct{})
	go e.reportStats(start, statsDone)

	g, gctx := errgroup.WithContext(runCtx)
	for i := 0; i < e.opts.Workers; i++ {
		i := i
		g.Go(func() error {
			e.runWorker(gctx, i)
			return nil
		})
	}
	_ = g.Wait()
	close(statsDone)

	res := Result{
		RunID:        e.runID,
		Pages:        e.state.pages(),
		Claimed:      e.state.visited.Size(),
		Stopped:      e.state.stopped(),
		FrontierLeft: e.state.frontier.Size(),
		Dropped:      e.state.droppedAtStop(),
		Elapsed:      time.Since(start),
	}
	metrics.FrontierSize.Set(float64(res.FrontierLeft))

	e.logger.Info("------- FINAL STATS -------",
		"crawled", res.Pages,
		"claimed", res.Claimed,
		"limit_reached", res.Stopped,
		"queued_never_visited", res.FrontierLeft,
		"dropped_at_stop", res.Dropped,
		"elapsed", res.Elapsed.Round(time.Millisecond).String())

	if err := ctx.Err(); err != nil {
		return res, err
	}
	return res, nil
}

func (e *Engine) reportStats(start time.Time, done <-chan struct{}) {
	ticker := time.NewTicker(e.opts.StatsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case t := <-ticker.C:
			queued := e.state.frontier.Size()
			metrics.FrontierSize.Set(float64(queued))
			e.logger.Info("progress",
				"minutes", int(t.Sub(start).Minutes()),
				"crawled", e.state.pages(),
				"queued", queued)
		}
	}
}
