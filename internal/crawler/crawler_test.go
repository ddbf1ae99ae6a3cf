package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"search-crawler/internal/config"
	"search-crawler/internal/frontier"
	"search-crawler/internal/hostman"
	"search-crawler/internal/logging"
	"search-crawler/internal/metrics"
	"search-crawler/internal/parser"
)

type allowAll struct{}

func (allowAll) Allowed(context.Context, *url.URL) bool { return true }
func (allowAll) Wait(context.Context, string) error     { return nil }

type fakeFetcher struct {
	mu    sync.Mutex
	calls map[string]int
	fn    func(ctx context.Context, u string) ([]byte, error)
}

func newFakeFetcher(fn func(ctx context.Context, u string) ([]byte, error)) *fakeFetcher {
	return &fakeFetcher{calls: make(map[string]int), fn: fn}
}

func (f *fakeFetcher) Fetch(ctx context.Context, u string) ([]byte, error) {
	f.mu.Lock()
	f.calls[u]++
	f.mu.Unlock()
	return f.fn(ctx, u)
}

func (f *fakeFetcher) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func (f *fakeFetcher) count(u string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[u]
}

func page(title string, links ...string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "<html><head><title>%s</title></head><body><p>%s page text</p>", title, title)
	for _, l := range links {
		fmt.Fprintf(&b, `<a href="%s">link</a>`, l)
	}
	b.WriteString("</body></html>")
	return []byte(b.String())
}

func testOptions(seed string, maxPages, workers int) Options {
	return Options{
		Seeds:      []string{seed},
		MaxPages:   maxPages,
		Workers:    workers,
		PopTimeout: 200 * time.Millisecond,
	}
}

func newEngine(t *testing.T, opts Options, deps Deps) *Engine {
	t.Helper()
	if deps.Logger == nil {
		deps.Logger = logging.Discard()
	}
	if deps.Politeness == nil {
		deps.Politeness = allowAll{}
	}
	e, err := New(opts, deps)
	require.NoError(t, err)
	return e
}

// site serves a robots.txt plus a handful of pages and counts hits per path.
type site struct {
	*httptest.Server
	mu   sync.Mutex
	hits map[string]int
}

func newSite(t *testing.T, pages map[string]string) *site {
	t.Helper()
	s := &site{hits: make(map[string]int)}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.hits[r.URL.Path]++
		s.mu.Unlock()
		if r.URL.Path == "/robots.txt" {
			w.Write([]byte("User-agent: *\nDisallow: /private\n"))
			return
		}
		body, ok := pages[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(body))
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *site) hitCount(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

func politeness(s *site) *hostman.Manager {
	return hostman.New(hostman.Options{
		UserAgent:  "simple_crawler/0.1",
		AgentToken: "simple_crawler",
		Timeout:    time.Second,
		Cache:      true,
		Client:     s.Client(),
		Logger:     logging.Discard(),
	})
}

func TestRunStopsAtLimit(t *testing.T) {
	s := newSite(t, map[string]string{
		"/":  string(page("Home", "/a", "/b", "/c")),
		"/a": string(page("A")),
		"/b": string(page("B")),
		"/c": string(page("C")),
	})

	e := newEngine(t, testOptions(s.URL+"/", 2, 4), Deps{Politeness: politeness(s)})
	res, err := e.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, res.Pages)
	assert.True(t, res.Stopped)
	assert.Zero(t, res.FrontierLeft)
	require.Equal(t, 2, e.Index().Len())

	seed, _ := e.Index().Doc(0)
	assert.Equal(t, s.URL+"/", seed.URL)
	assert.Equal(t, "Home", seed.Title)
	second, _ := e.Index().Doc(1)
	assert.Contains(t, []string{s.URL + "/a", s.URL + "/b", s.URL + "/c"}, second.URL)
	assert.Equal(t, 1, s.hitCount("/"))
}

func TestRunDrainsFrontier(t *testing.T) {
	s := newSite(t, map[string]string{
		"/": string(page("Home",
			"/a", "/private", "/missing", "/noidx", "/", "#top", "mailto:x@y.com", "relative.html")),
		"/a":       string(page("A", "/", "/a#section")),
		"/private": string(page("Private")),
		"/noidx":   `<html><head><meta name="robots" content="noindex"></head><body><a href="/hidden">h</a></body></html>`,
		"/hidden":  string(page("Hidden")),
	})

	denied := testutil.ToFloat64(metrics.RobotsDenied)
	noindex := testutil.ToFloat64(metrics.NoindexSkipped)

	e := newEngine(t, testOptions(s.URL+"/", 10, 3), Deps{Politeness: politeness(s)})
	res, err := e.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RobotsDenied)-denied)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.NoindexSkipped)-noindex)
	assert.Equal(t, 2, res.Pages, "home and /a are the only indexable pages")
	assert.False(t, res.Stopped)
	assert.Equal(t, 5, res.Claimed, "/, /a, /private, /missing, /noidx")
	assert.Zero(t, s.hitCount("/private"), "robots.txt denies /private")
	assert.Zero(t, s.hitCount("/hidden"), "links of noindex pages are not followed")
	assert.Equal(t, 1, s.hitCount("/noidx"))
	assert.Equal(t, 1, s.hitCount("/"))
	assert.Equal(t, 1, s.hitCount("/a"))
	assert.Equal(t, []int{0}, e.Index().Lookup("home"))
}

func TestRunFailsClosedWithoutRobots(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write(page("Home"))
	}))
	defer srv.Close()

	pol := hostman.New(hostman.Options{Client: srv.Client(), Logger: logging.Discard()})
	e := newEngine(t, testOptions(srv.URL+"/", 5, 2), Deps{Politeness: pol})
	res, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Pages)
	assert.Equal(t, 1, res.Claimed)
}

// Every page links to four fresh pages, so the frontier never runs dry and
// the limit is what ends the crawl.
func fanOut(_ context.Context, u string) ([]byte, error) {
	var n int
	fmt.Sscanf(u, "https://site.test/p%d", &n)
	links := make([]string, 0, 4)
	for i := 1; i <= 4; i++ {
		links = append(links, fmt.Sprintf("/p%d", n*4+i))
	}
	return page(fmt.Sprintf("P%d", n), links...), nil
}

func TestCounterNeverExceedsLimit(t *testing.T) {
	for _, workers := range []int{1, 4, 16, 64} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			f := newFakeFetcher(fanOut)
			e := newEngine(t, testOptions("https://site.test/p0", 25, workers), Deps{Fetcher: f})
			res, err := e.Run(context.Background())
			require.NoError(t, err)

			assert.Equal(t, 25, res.Pages)
			assert.Equal(t, 25, e.Index().Len())
			assert.True(t, res.Stopped)
			assert.LessOrEqual(t, f.total(), 25+workers, "at most one extra in-flight fetch per worker")

			seen := make(map[string]bool)
			for i := 0; i < e.Index().Len(); i++ {
				d, _ := e.Index().Doc(i)
				assert.False(t, seen[d.URL], "indexed twice: %s", d.URL)
				seen[d.URL] = true
			}
		})
	}
}

func TestNoFetchAfterStop(t *testing.T) {
	f := newFakeFetcher(fanOut)
	e := newEngine(t, testOptions("https://site.test/p0", 1, 8), Deps{Fetcher: f})
	res, err := e.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, res.Pages)
	assert.True(t, res.Stopped)
	assert.Equal(t, 1, f.total(), "the seed trips the limit before any link is claimed")
	assert.Zero(t, res.FrontierLeft)
	assert.Equal(t, 4, res.Dropped, "the seed's four links are discarded by the stop")
}

func TestStopCancelsInFlightFetches(t *testing.T) {
	f := newFakeFetcher(func(ctx context.Context, u string) ([]byte, error) {
		switch u {
		case "https://site.test/p0":
			return page("Seed", "/fast", "/slow1", "/slow2", "/slow3"), nil
		case "https://site.test/fast":
			return page("Fast"), nil
		}
		select {
		case <-ctx.Done():
			return nil, &FetchError{URL: u, Err: ctx.Err()}
		case <-time.After(10 * time.Second):
			return page("Slow"), nil
		}
	})

	e := newEngine(t, testOptions("https://site.test/p0", 2, 4), Deps{Fetcher: f})
	start := time.Now()
	res, err := e.Run(context.Background())
	require.NoError(t, err)

	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, 2, res.Pages)
	doc, _ := e.Index().Doc(1)
	assert.Equal(t, "https://site.test/fast", doc.URL)
}

func TestFetchRetries(t *testing.T) {
	var attempts atomic.Int32
	f := newFakeFetcher(func(_ context.Context, u string) ([]byte, error) {
		switch u {
		case "https://site.test/flaky":
			if attempts.Add(1) < 3 {
				return nil, &FetchError{URL: u, StatusCode: http.StatusServiceUnavailable}
			}
			return page("Flaky"), nil
		case "https://site.test/gone":
			return nil, &FetchError{URL: u, StatusCode: http.StatusNotFound}
		}
		return page("Seed", "/flaky", "/gone"), nil
	})

	opts := testOptions("https://site.test/", 10, 2)
	opts.MaxRetries = 2
	opts.RetryBackoff = time.Millisecond
	e := newEngine(t, opts, Deps{Fetcher: f})
	res, err := e.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, res.Pages)
	assert.Equal(t, 3, f.count("https://site.test/flaky"))
	assert.Equal(t, 1, f.count("https://site.test/gone"), "4xx is not retried")
}

func TestRunHonoursCallerContext(t *testing.T) {
	f := newFakeFetcher(func(ctx context.Context, u string) ([]byte, error) {
		<-ctx.Done()
		return nil, &FetchError{URL: u, Err: ctx.Err()}
	})
	e := newEngine(t, testOptions("https://site.test/", 5, 2), Deps{Fetcher: f})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	res, err := e.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Zero(t, res.Pages)

	_, err = e.Run(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyRan)
}

func TestNewRequiresSeeds(t *testing.T) {
	_, err := New(Options{}, Deps{})
	assert.ErrorIs(t, err, config.ErrNoSeeds)
}

func TestStateClaimAndPublish(t *testing.T) {
	st := newState(frontier.NewQueue(frontier.BFS), 2)

	assert.Equal(t, claimed, st.claim("https://a/"))
	assert.Equal(t, claimDuplicate, st.claim("https://a/"))
	assert.False(t, st.idle())

	_, ok := st.publish(parser.PageRecord{URL: "https://a/"}, []string{"https://a/", "https://b/", "https://c/"})
	require.True(t, ok)
	st.release()
	assert.True(t, st.idle())
	assert.Equal(t, 2, st.frontier.Size(), "visited links are not queued")

	assert.Equal(t, claimed, st.claim("https://b/"))
	assert.Equal(t, claimed, st.claim("https://c/"))
	_, ok = st.publish(parser.PageRecord{URL: "https://b/"}, nil)
	require.True(t, ok)
	assert.True(t, st.stopped())

	_, ok = st.publish(parser.PageRecord{URL: "https://c/"}, nil)
	assert.False(t, ok, "publishing past the limit is refused")
	assert.Equal(t, 2, st.pages())
	assert.Equal(t, claimStopped, st.claim("https://d/"))
}

func TestStateLimitTripsOnClaim(t *testing.T) {
	var stops atomic.Int32
	st := newState(frontier.NewQueue(frontier.BFS), 1)
	st.onStop = func() { stops.Add(1) }
	st.count = 1
	st.frontier.Push("https://x/")

	assert.Equal(t, claimLimit, st.claim("https://y/"))
	assert.True(t, st.stopped())
	assert.Zero(t, st.frontier.Size())
	assert.Equal(t, claimStopped, st.claim("https://z/"))
	assert.EqualValues(t, 1, stops.Load())
}

func TestStateConcurrentClaims(t *testing.T) {
	st := newState(frontier.NewQueue(frontier.BFS), 0)
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if st.claim("https://same/") == claimed {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, wins.Load())
}

func TestHTTPFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			assert.Equal(t, "simple_crawler/0.1", r.UserAgent())
			w.Write([]byte(strings.Repeat("x", 100)))
		default:
			w.WriteHeader(http.StatusBadGateway)
		}
	}))
	defer srv.Close()

	truncated := testutil.ToFloat64(metrics.BodiesTruncated)
	f := NewHTTPFetcher("simple_crawler/0.1", time.Second, 10).WithLogger(logging.Discard())
	body, err := f.Fetch(context.Background(), srv.URL+"/ok")
	require.NoError(t, err)
	assert.Len(t, body, 10, "body is capped")
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.BodiesTruncated)-truncated)

	exact := NewHTTPFetcher("simple_crawler/0.1", time.Second, 100).WithLogger(logging.Discard())
	body, err = exact.Fetch(context.Background(), srv.URL+"/ok")
	require.NoError(t, err)
	assert.Len(t, body, 100)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.BodiesTruncated)-truncated, "a body that fits is not flagged")

	_, err = f.Fetch(context.Background(), srv.URL+"/bad")
	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, http.StatusBadGateway, fe.StatusCode)
	assert.True(t, fe.Retryable())
}

func TestAgentToken(t *testing.T) {
	assert.Equal(t, "simple_crawler", AgentToken("simple_crawler/0.1"))
	assert.Equal(t, "bot", AgentToken("bot"))
	assert.Equal(t, "*", AgentToken(""))
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Crawl.Seeds = []string{"https://example.com/"}
	cfg.Crawl.Strategy = "mixed40"

	opts, err := OptionsFromConfig(cfg.Crawl)
	require.NoError(t, err)
	assert.Equal(t, frontier.Strategy(40), opts.Strategy)
	assert.Equal(t, 50, opts.Workers)
	assert.Equal(t, 5*time.Second, opts.PopTimeout)

	cfg.Crawl.Strategy = "sideways"
	_, err = OptionsFromConfig(cfg.Crawl)
	assert.Error(t, err)
}
