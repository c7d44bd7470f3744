// Package pagination provides parallel batch fetching for paginated QA Touch endpoints
package pagination

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
)

var pagesFetchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "qatouch_pages_fetched_total",
	Help: "Total listing pages fetched by result",
}, []string{"result"})

// Config holds batch fetcher configuration
type Config struct {
	// MaxConcurrency is the maximum number of pages in flight at once.
	// The rate limiter still decides when each one may be sent.
	MaxConcurrency int
}

// DefaultConfig returns safe default configuration for QA Touch
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 10,
	}
}

// PageFetcher fetches a single page of an endpoint.
type PageFetcher interface {
	// FetchPage returns the page items and the last page number reported by
	// the endpoint. lastPage is only meaningful for page 1.
	FetchPage(ctx context.Context, endpoint string, pageNum int) (items []string, lastPage int, err error)
}

// PageResult represents the result of fetching a single page
type PageResult struct {
	PageNumber int
	Items      []string
	Error      error
}

// BatchFetcher handles parallel fetching of multiple pages
type BatchFetcher struct {
	fetcher PageFetcher
	config  Config
}

// NewBatchFetcher creates a new batch fetcher
func NewBatchFetcher(fetcher PageFetcher, config Config) *BatchFetcher {
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = DefaultConfig().MaxConcurrency
	}

	return &BatchFetcher{
		fetcher: fetcher,
		config:  config,
	}
}

// FetchAllPages fetches page 1, reads the page count from it, then fetches
// the remaining pages in parallel. Items are returned in page order.
// Any failing page fails the whole call.
func (bf *BatchFetcher) FetchAllPages(ctx context.Context, endpoint string) ([]string, error) {
	start := time.Now()

	firstItems, lastPage, err := bf.fetcher.FetchPage(ctx, endpoint, 1)
	if err != nil {
		pagesFetchedTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("fetch page 1: %w", err)
	}
	pagesFetchedTotal.WithLabelValues("ok").Inc()

	if lastPage <= 1 {
		log.Debug().
			Str("endpoint", endpoint).
			Int("items", len(firstItems)).
			Dur("duration", time.Since(start)).
			Msg("Fetch complete (single page)")
		return firstItems, nil
	}

	log.Debug().
		Str("endpoint", endpoint).
		Int("last_page", lastPage).
		Msg("Starting parallel page fetch")

	// pages[i] holds page i+1; slots are written once by their own worker.
	pages := make([][]string, lastPage)
	pages[0] = firstItems

	fetchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	workers := bf.config.MaxConcurrency
	if workers > lastPage-1 {
		workers = lastPage - 1
	}

	pageQueue := make(chan int)
	results := make(chan PageResult, workers)

	go func() {
		defer close(pageQueue)
		for page := 2; page <= lastPage; page++ {
			select {
			case pageQueue <- page:
			case <-fetchCtx.Done():
				return
			}
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go bf.worker(fetchCtx, endpoint, pageQueue, results, &wg)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	var firstErr error
	fetched := 1
	for result := range results {
		if result.Error != nil {
			pagesFetchedTotal.WithLabelValues("error").Inc()
			if firstErr == nil {
				firstErr = fmt.Errorf("fetch page %d: %w", result.PageNumber, result.Error)
				// Stop dispatching queued pages; in-flight results are discarded.
				cancel()
			}
			continue
		}
		pagesFetchedTotal.WithLabelValues("ok").Inc()
		if firstErr != nil {
			continue
		}
		pages[result.PageNumber-1] = result.Items
		fetched++
	}

	if firstErr != nil {
		log.Debug().
			Err(firstErr).
			Str("endpoint", endpoint).
			Int("fetched_pages", fetched).
			Int("last_page", lastPage).
			Msg("Page fetch aborted")
		return nil, firstErr
	}

	// A cancelled parent can drain the queue without any page failing.
	if fetched != lastPage {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("fetched %d of %d pages", fetched, lastPage)
	}

	total := 0
	for _, items := range pages {
		total += len(items)
	}
	all := make([]string, 0, total)
	for _, items := range pages {
		all = append(all, items...)
	}

	log.Debug().
		Str("endpoint", endpoint).
		Int("pages", lastPage).
		Int("items", len(all)).
		Dur("duration", time.Since(start)).
		Msg("Fetch complete")

	return all, nil
}

// worker processes pages from the queue
func (bf *BatchFetcher) worker(ctx context.Context, endpoint string, pageQueue <-chan int, results chan<- PageResult, wg *sync.WaitGroup) {
	defer wg.Done()

	for pageNum := range pageQueue {
		items, _, err := bf.fetcher.FetchPage(ctx, endpoint, pageNum)
		// The collector drains results until close, even after an error.
		results <- PageResult{
			PageNumber: pageNum,
			Items:      items,
			Error:      err,
		}
	}
}
