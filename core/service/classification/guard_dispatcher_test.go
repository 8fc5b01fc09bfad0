package classification

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"guard_server/core/domain"
	"guard_server/core/port/in"
	"guard_server/pkg/ratelimit"
)

// =============================================================================
// Fakes
// =============================================================================

type memoryCache struct {
	mu   sync.Mutex
	data map[string]domain.ClassificationResult
}

func newMemoryCache() *memoryCache {
	return &memoryCache{data: make(map[string]domain.ClassificationResult)}
}

func (c *memoryCache) Get(_ context.Context, key string) (domain.ClassificationResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.data[key]
	return r, ok
}

func (c *memoryCache) Put(_ context.Context, key string, r domain.ClassificationResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = r.Clone()
}

func (c *memoryCache) Clear(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = make(map[string]domain.ClassificationResult)
	return nil
}

type countingHeuristic struct {
	inner *HeuristicClassifier
	calls atomic.Int32
}

func (c *countingHeuristic) Name() string { return "counting-heuristic" }

func (c *countingHeuristic) Classify(ctx context.Context, text string) ([]domain.Label, error) {
	c.calls.Add(1)
	return c.inner.Classify(ctx, text)
}

type fakeRemote struct {
	labels []domain.Label
	err    error

	mu    sync.Mutex
	calls []time.Time
}

func (f *fakeRemote) Name() string { return "fake-remote" }

func (f *fakeRemote) ClassifyWithToken(_ context.Context, _ string, _ string) ([]domain.Label, error) {
	f.mu.Lock()
	f.calls = append(f.calls, time.Now())
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make([]domain.Label, len(f.labels))
	copy(out, f.labels)
	return out, nil
}

func (f *fakeRemote) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func remoteOpts() in.ClassifyOptions {
	return in.ClassifyOptions{MaxLabels: 3, UseRemote: true, APIToken: "token"}
}

// =============================================================================
// Tests
// =============================================================================

func TestDispatcher_SkipsShortText(t *testing.T) {
	cache := newMemoryCache()
	h := &countingHeuristic{inner: NewHeuristicClassifier(nil)}
	d := NewDispatcher(DispatcherDeps{Heuristic: h, Cache: cache}, nil)

	for _, text := range []string{"", "   ", "hi", "\u200bok\u200b"} {
		r := d.Classify(context.Background(), text, in.ClassifyOptions{})
		if len(r.Labels) != 0 {
			t.Errorf("Classify(%q) labels = %v", text, r.Labels)
		}
	}
	if h.calls.Load() != 0 {
		t.Error("strategy should not run for skipped text")
	}
	if len(cache.data) != 0 {
		t.Error("skipped text must not be cached")
	}
}

func TestDispatcher_CacheHitSkipsStrategy(t *testing.T) {
	h := &countingHeuristic{inner: NewHeuristicClassifier(nil)}
	d := NewDispatcher(DispatcherDeps{Heuristic: h, Cache: newMemoryCache()}, nil)
	ctx := context.Background()

	first := d.Classify(ctx, "Vote in the election  now", in.ClassifyOptions{})
	second := d.Classify(ctx, "  Vote in the election now ", in.ClassifyOptions{})

	if h.calls.Load() != 1 {
		t.Errorf("strategy calls = %d, want 1", h.calls.Load())
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("results differ: %+v vs %+v", first, second)
	}
	if d.Stats().CacheHits != 1 {
		t.Errorf("CacheHits = %d", d.Stats().CacheHits)
	}
}

func TestDispatcher_HeuristicReturnsAllHits(t *testing.T) {
	d := NewDispatcher(DispatcherDeps{Cache: newMemoryCache()}, nil)
	text := "election hoax: kill the porn casino"

	r := d.Classify(context.Background(), text, in.ClassifyOptions{MaxLabels: 1})
	if len(r.Labels) != 5 {
		t.Fatalf("heuristic path should not truncate, got %v", r.Labels)
	}
	if r.Provenance != domain.ProvenanceHeuristic {
		t.Errorf("Provenance = %s", r.Provenance)
	}
	for i := 1; i < len(r.Labels); i++ {
		if r.Labels[i].Score > r.Labels[i-1].Score {
			t.Errorf("labels not sorted: %v", r.Labels)
		}
	}
}

func TestDispatcher_RemoteSortsAndTruncates(t *testing.T) {
	remote := &fakeRemote{labels: []domain.Label{
		{Category: domain.CategoryViolence, Score: 0.2},
		{Category: domain.CategoryPolitics, Score: 0.9},
		{Category: domain.CategorySexual, Score: 0.5},
		{Category: domain.CategoryMisinformation, Score: 0.7},
	}}
	d := NewDispatcher(DispatcherDeps{Remote: remote, Cache: newMemoryCache()}, nil)

	r := d.Classify(context.Background(), "some remote text", in.ClassifyOptions{MaxLabels: 2, UseRemote: true, APIToken: "t"})

	want := []domain.Label{
		{Category: domain.CategoryPolitics, Score: 0.9},
		{Category: domain.CategoryMisinformation, Score: 0.7},
	}
	if !reflect.DeepEqual(r.Labels, want) {
		t.Errorf("labels = %v, want %v", r.Labels, want)
	}
	if r.Provenance != domain.ProvenanceRemote {
		t.Errorf("Provenance = %s", r.Provenance)
	}
}

func TestDispatcher_RemoteNeedsToken(t *testing.T) {
	remote := &fakeRemote{labels: []domain.Label{{Category: domain.CategoryPolitics, Score: 0.9}}}
	d := NewDispatcher(DispatcherDeps{Remote: remote}, nil)

	r := d.Classify(context.Background(), "election talk", in.ClassifyOptions{UseRemote: true})
	if remote.callCount() != 0 {
		t.Error("remote must not be called without a token")
	}
	if r.Provenance != domain.ProvenanceHeuristic {
		t.Errorf("Provenance = %s, want heuristic", r.Provenance)
	}
}

func TestDispatcher_FallbackEqualsHeuristic(t *testing.T) {
	text := "URGENT: 100% guaranteed miracle cure, it's not a hoax!"
	remote := &fakeRemote{err: fmt.Errorf("%w: connection refused", domain.ErrTransportFailure)}
	d := NewDispatcher(DispatcherDeps{Remote: remote, Cache: newMemoryCache()}, nil)

	got := d.Classify(context.Background(), text, remoteOpts())

	plain := NewDispatcher(DispatcherDeps{}, nil)
	want := plain.Classify(context.Background(), text, in.ClassifyOptions{MaxLabels: 3})

	if !reflect.DeepEqual(got, want) {
		t.Errorf("fallback = %+v, want %+v", got, want)
	}
	if d.Stats().Fallbacks != 1 {
		t.Errorf("Fallbacks = %d", d.Stats().Fallbacks)
	}
}

func TestDispatcher_FallbackOnHTTPFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}},
		{"unauthorized", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}},
		{"not json", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("<html>oops</html>"))
		}},
	}

	text := "they want to kill and shoot"
	want := NewDispatcher(DispatcherDeps{}, nil).Classify(context.Background(), text, in.ClassifyOptions{})

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			remote := NewHTTPClassifier(HTTPClassifierConfig{Endpoint: srv.URL, Timeout: time.Second})
			d := NewDispatcher(DispatcherDeps{Remote: remote}, nil)

			got := d.Classify(context.Background(), text, remoteOpts())
			if !reflect.DeepEqual(got, want) {
				t.Errorf("got %+v, want heuristic %+v", got, want)
			}
		})
	}
}

func TestDispatcher_RemoteTimeoutFallsBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	remote := NewHTTPClassifier(HTTPClassifierConfig{Endpoint: srv.URL, Timeout: 5 * time.Second})
	d := NewDispatcher(DispatcherDeps{Remote: remote}, &DispatcherConfig{RemoteTimeout: 50 * time.Millisecond})

	start := time.Now()
	r := d.Classify(context.Background(), "election results", remoteOpts())
	if time.Since(start) > time.Second {
		t.Error("remote call should be bounded by RemoteTimeout")
	}
	if r.Provenance != domain.ProvenanceHeuristic {
		t.Errorf("Provenance = %s, want heuristic", r.Provenance)
	}
}

func TestDispatcher_EmptyScoresNoFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":"model loading"}`))
	}))
	defer srv.Close()

	remote := NewHTTPClassifier(HTTPClassifierConfig{Endpoint: srv.URL, Timeout: time.Second})
	d := NewDispatcher(DispatcherDeps{Remote: remote}, nil)

	r := d.Classify(context.Background(), "they want to kill and shoot", remoteOpts())
	if len(r.Labels) != 0 || r.Provenance != domain.ProvenanceRemote {
		t.Errorf("got %+v, want empty remote result", r)
	}
}

func TestDispatcher_RateLimitedRemoteCalls(t *testing.T) {
	interval := 80 * time.Millisecond
	remote := &fakeRemote{labels: []domain.Label{{Category: domain.CategoryViolence, Score: 0.5}}}
	d := NewDispatcher(DispatcherDeps{
		Remote:  remote,
		Cache:   newMemoryCache(),
		Limiter: ratelimit.NewIntervalLimiter(interval, nil),
	}, nil)

	var wg sync.WaitGroup
	for _, text := range []string{"first remote text", "second remote text", "third remote text"} {
		wg.Add(1)
		go func(text string) {
			defer wg.Done()
			d.Classify(context.Background(), text, remoteOpts())
		}(text)
	}
	wg.Wait()

	remote.mu.Lock()
	calls := append([]time.Time(nil), remote.calls...)
	remote.mu.Unlock()

	if len(calls) != 3 {
		t.Fatalf("remote calls = %d, want 3", len(calls))
	}
	sortTimes(calls)
	for i := 1; i < len(calls); i++ {
		if gap := calls[i].Sub(calls[i-1]); gap < interval-5*time.Millisecond {
			t.Errorf("dispatch gap %d = %v, want >= %v", i, gap, interval)
		}
	}
}

func TestDispatcher_CancelledWaitFallsBack(t *testing.T) {
	limiter := ratelimit.NewIntervalLimiter(time.Hour, nil)
	_ = limiter.Wait(context.Background())

	remote := &fakeRemote{labels: []domain.Label{{Category: domain.CategoryViolence, Score: 0.5}}}
	d := NewDispatcher(DispatcherDeps{Remote: remote, Limiter: limiter}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	r := d.Classify(ctx, "kill the lights", remoteOpts())
	if remote.callCount() != 0 {
		t.Error("remote should not be called when the wait is abandoned")
	}
	if r.Provenance != domain.ProvenanceHeuristic {
		t.Errorf("Provenance = %s", r.Provenance)
	}
}

func TestDispatcher_ConcurrentSameKeyRunsOnce(t *testing.T) {
	h := &countingHeuristic{inner: NewHeuristicClassifier(nil)}
	d := NewDispatcher(DispatcherDeps{Heuristic: h, Cache: newMemoryCache()}, nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.Classify(context.Background(), "the same election post", in.ClassifyOptions{})
		}()
	}
	wg.Wait()

	if n := h.calls.Load(); n != 1 {
		t.Errorf("strategy calls = %d, want 1", n)
	}
}

func TestDispatcher_ClearCache(t *testing.T) {
	h := &countingHeuristic{inner: NewHeuristicClassifier(nil)}
	d := NewDispatcher(DispatcherDeps{Heuristic: h, Cache: newMemoryCache()}, nil)
	ctx := context.Background()

	d.Classify(ctx, "election day", in.ClassifyOptions{})
	if err := d.ClearCache(ctx); err != nil {
		t.Fatal(err)
	}
	d.Classify(ctx, "election day", in.ClassifyOptions{})

	if h.calls.Load() != 2 {
		t.Errorf("strategy calls = %d, want 2 after clear", h.calls.Load())
	}
}

func TestEndToEnd_HeuristicDecision(t *testing.T) {
	d := NewDispatcher(DispatcherDeps{Cache: newMemoryCache()}, nil)
	engine := NewDecisionEngine()
	settings := settingsWith(0.3, domain.CategoryMisinformation)

	tests := []struct {
		text     string
		suppress bool
	}{
		{"URGENT: 100% guaranteed miracle cure, it's not a hoax!", true},
		{"Happy birthday!", false},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			r := d.Classify(context.Background(), tt.text, in.ClassifyOptions{MaxLabels: 3})
			action := engine.Decide(r.Labels, settings)

			if action.IsSuppress() != tt.suppress {
				t.Fatalf("Decide() = %+v, suppress want %v", action, tt.suppress)
			}
			if tt.suppress {
				if action.Category != domain.CategoryMisinformation || action.Score < 0.3 {
					t.Errorf("action = %+v", action)
				}
			}
		})
	}
}

func TestDispatcher_NeverFailsOnHeuristicError(t *testing.T) {
	d := NewDispatcher(DispatcherDeps{Heuristic: failingClassifier{}}, nil)
	r := d.Classify(context.Background(), "anything here", in.ClassifyOptions{})
	if r.Labels == nil || len(r.Labels) != 0 {
		t.Errorf("want empty non-nil labels, got %#v", r.Labels)
	}
}

type failingClassifier struct{}

func (failingClassifier) Name() string { return "failing" }
func (failingClassifier) Classify(context.Context, string) ([]domain.Label, error) {
	return nil, errors.New("boom")
}

func sortTimes(ts []time.Time) {
	for i := 1; i < len(ts); i++ {
		for j := i; j > 0 && ts[j].Before(ts[j-1]); j-- {
			ts[j], ts[j-1] = ts[j-1], ts[j]
		}
	}
}
