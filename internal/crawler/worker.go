package crawler

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"net/url"
	"time"

	"search-crawler/internal/metrics"
	"search-crawler/internal/parser"
)

// runWorker pops, claims and processes URLs until the stop flag is set or
// the frontier stays empty for a whole PopTimeout with nothing in flight.
func (e *Engine) runWorker(ctx context.Context, id int) {
	log := e.logger.With("worker", id)
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(id)))

	for {
		if e.state.stopped() {
			return
		}

		u, ok := e.state.frontier.Pop(ctx, e.opts.PopTimeout)
		if !ok {
			// Another worker may still publish links; keep waiting for it.
			if e.state.stopped() || ctx.Err() != nil || e.state.idle() {
				log.Debug("worker exiting", "reason", "frontier drained")
				return
			}
			continue
		}

		switch e.state.claim(u) {
		case claimStopped:
			return
		case claimLimit:
			log.Info("crawl limit reached", "limit", e.opts.MaxPages)
			return
		case claimDuplicate:
			metrics.DuplicateClaims.Inc()
			log.Debug("already visited", "url", u)
			continue
		}

		e.process(ctx, log, rng, u)
		e.state.release()
	}
}

// process runs gatekeeping, fetch, extraction and publishing for one
// claimed URL. Every failure is logged and absorbed.
func (e *Engine) process(ctx context.Context, log *slog.Logger, rng *rand.Rand, raw string) {
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() {
		log.Debug("skipping unparseable url", "url", raw, "error", err)
		return
	}

	if !e.deps.Politeness.Allowed(ctx, u) {
		metrics.RobotsDenied.Inc()
		log.Debug("disallowed by robots.txt", "url", raw)
		return
	}

	if err := e.deps.Politeness.Wait(ctx, u.Host); err != nil {
		return
	}
	if err := sleep(ctx, jitter(rng, e.opts.DelayMin, e.opts.DelayMax)); err != nil {
		return
	}
	if e.state.stopped() {
		return
	}

	body, err := e.fetch(ctx, raw)
	if err != nil {
		if ctx.Err() == nil {
			metrics.FetchErrors.Inc()
			log.Warn("fetch failed", "url", raw, "error", err)
		}
		return
	}
	metrics.PagesFetched.Inc()
	metrics.BytesFetched.Add(float64(len(body)))

	if parser.HasNoindex(body) {
		metrics.NoindexSkipped.Inc()
		log.Info("noindex found, skipping", "url", raw)
		return
	}

	var rec parser.PageRecord
	var links []string
	doc, err := parser.Parse(body)
	if err != nil {
		log.Debug("malformed html, no links extracted", "url", raw, "error", err)
		rec = e.deps.Consumer.Consume(nil, raw)
	} else {
		rec = e.deps.Consumer.Consume(doc, raw)
		links = parser.ExtractLinks(parser.Anchors(doc), raw)
	}

	docID, ok := e.state.publish(rec, links)
	if !ok {
		log.Debug("limit reached before publish, dropping page", "url", raw)
		return
	}
	metrics.PagesIndexed.Inc()
	log.Info("indexed",
		"url", raw,
		"doc_id", docID,
		"title", rec.Title,
		"words", len(rec.Tokens),
		"links", len(links))
}

// fetch retries retryable failures up to MaxRetries times with a linear
// backoff.
func (e *Engine) fetch(ctx context.Context, raw string) ([]byte, error) {
	var err error
	for attempt := 0; attempt <= e.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			if serr := sleep(ctx, time.Duration(attempt)*e.opts.RetryBackoff); serr != nil {
				return nil, serr
			}
		}
		var body []byte
		body, err = e.deps.Fetcher.Fetch(ctx, raw)
		if err == nil {
			return body, nil
		}
		var fe *FetchError
		if ctx.Err() != nil || (errors.As(err, &fe) && !fe.Retryable()) {
			return nil, err
		}
	}
	return nil, err
}

func jitter(rng *rand.Rand, lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(rng.Int63n(int64(hi-lo)))
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
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
