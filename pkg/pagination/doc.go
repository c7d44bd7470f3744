// Package pagination provides parallel batch fetching for QA Touch paginated endpoints.
//
// QA Touch reports the last page number in the "link.last" field of page 1.
// This package fetches page 1, then fans out pages 2..N across a bounded
// worker pool. Each page request still goes through the client's rate
// limiter, so the pool size only bounds goroutines, not the request rate.
//
// Example usage:
//
//	fetcher := pagination.NewBatchFetcher(qatouchClient, pagination.DefaultConfig())
//	keys, err := fetcher.FetchAllPages(ctx, listingURL)
//
// The batch fetcher:
//   - Reads the page count from page 1 only
//   - Returns items concatenated in page order, whatever order pages finish in
//   - Fails the whole call on the first failing page (no partial data)
//   - Stops dispatching queued pages once a page has failed
package pagination
