package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bryan-buckman/feedmail/internal/model"
)

// DefaultConcurrency is the number of feeds processed in parallel.
const DefaultConcurrency = 8

// Source downloads feed documents.
type Source interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Store is the feed collection a run reads and writes back.
type Store interface {
	GetFeeds() ([]model.Feed, error)
	SaveFeeds(feeds []model.Feed) error
}

// Runner fetches and processes many feeds concurrently.
type Runner struct {
	source      Source
	orch        *Orchestrator
	concurrency int
	save        bool

	// one run at a time, so the store is read and written once per run
	mu sync.Mutex
}

// NewRunner creates a runner. save is false in do-not-save mode.
func NewRunner(source Source, orch *Orchestrator, concurrency int, save bool) *Runner {
	if concurrency < 1 {
		concurrency = DefaultConcurrency
	}
	return &Runner{source: source, orch: orch, concurrency: concurrency, save: save}
}

// RunOne fetches and processes a single feed.
func (r *Runner) RunOne(ctx context.Context, f model.Feed) Result {
	data, err := r.source.Fetch(ctx, f.URL)
	if err != nil {
		slog.Error("can't fetch feed", "feed", f.URL, "error", err)
		return Result{Feed: f, Err: err}
	}
	return r.orch.Process(ctx, f, data)
}

// RunAll processes feeds using a worker pool. Results are in input order.
func (r *Runner) RunAll(ctx context.Context, feeds []model.Feed) []Result {
	results := make([]Result, len(feeds))
	if len(feeds) == 0 {
		return results
	}
	slog.Info("processing feeds", "count", len(feeds), "concurrency", r.concurrency)

	var wg sync.WaitGroup
	jobs := make(chan int, len(feeds))

	workers := min(r.concurrency, len(feeds))
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				if ctx.Err() != nil {
					results[idx] = Result{Feed: feeds[idx], Err: ctx.Err()}
					continue
				}
				results[idx] = r.RunOne(ctx, feeds[idx])
			}
		}()
	}

	for i := range feeds {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return results
}

// Summary totals a run.
type Summary struct {
	Feeds     int `json:"feeds"`
	Failed    int `json:"failed"`
	Attempted int `json:"attempted"`
	Delivered int `json:"delivered"`
}

// Summarize totals results.
func Summarize(results []Result) Summary {
	s := Summary{Feeds: len(results)}
	for _, res := range results {
		if res.Err != nil {
			s.Failed++
		}
		s.Attempted += res.Attempted
		s.Delivered += res.Delivered
	}
	return s
}

// Run loads every feed from store, processes them and saves the new
// watermarks in one write.
func (r *Runner) Run(ctx context.Context, store Store) ([]Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	feeds, err := store.GetFeeds()
	if err != nil {
		return nil, fmt.Errorf("load feeds: %w", err)
	}
	results := r.RunAll(ctx, feeds)

	sum := Summarize(results)
	slog.Info("run finished",
		"feeds", sum.Feeds,
		"failed", sum.Failed,
		"attempted", sum.Attempted,
		"delivered", sum.Delivered,
	)

	if !r.save {
		slog.Info("do not save mode, watermarks are left untouched")
		return results, nil
	}
	if err := saveWatermarks(store, results); err != nil {
		return results, err
	}
	return results, nil
}

// saveWatermarks copies the new watermarks onto the stored feeds. Feeds added,
// removed or reconfigured while the run was in progress are kept as stored.
func saveWatermarks(store Store, results []Result) error {
	current, err := store.GetFeeds()
	if err != nil {
		return fmt.Errorf("reload feeds: %w", err)
	}
	byURL := make(map[string]model.Feed, len(results))
	for _, res := range results {
		byURL[res.Feed.URL] = res.Feed
	}
	for i, f := range current {
		if u, ok := byURL[f.URL]; ok {
			current[i].LastUpdated = u.LastUpdated
			current[i].LastMessage = u.LastMessage
		}
	}
	if err := store.SaveFeeds(current); err != nil {
		return fmt.Errorf("save feeds: %w", err)
	}
	return nil
}

// MinInterval is the shortest allowed polling interval.
const MinInterval = time.Minute

// Poller runs the pipeline periodically.
type Poller struct {
	runner   *Runner
	store    Store
	interval time.Duration
	timeout  time.Duration
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewPoller creates a background poller. Each cycle is bounded by timeout.
func NewPoller(runner *Runner, store Store, interval, timeout time.Duration) *Poller {
	if interval < MinInterval {
		interval = MinInterval
	}
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &Poller{
		runner:   runner,
		store:    store,
		interval: interval,
		timeout:  timeout,
		stopChan: make(chan struct{}),
	}
}

// Start begins the polling loop.
func (p *Poller) Start() {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for {
			slog.Info("poller: processing all feeds", "interval", p.interval)

			ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
			if _, err := p.runner.Run(ctx, p.store); err != nil {
				slog.Error("poller error", "error", err)
			}
			cancel()

			select {
			case <-p.stopChan:
				return
			case <-time.After(p.interval):
			}
		}
	}()
}

// Stop stops the poller gracefully.
func (p *Poller) Stop() {
	close(p.stopChan)
	p.wg.Wait()
}
