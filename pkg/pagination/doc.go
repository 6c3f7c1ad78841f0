// Package pagination fetches CallRail endpoints one window at a time.
//
// CallRail pages with page/per_page query parameters, capped at 250 per page.
// A Window {Offset, Size} maps to page = Offset/Size + 1 and
// per_page = min(Size, MaxPerPage). Cursor-style endpoints (calls) only send
// per_page and rely on the API's ordering.
//
// Example usage:
//
//	fetcher := pagination.NewBatchFetcher(apiClient, retry.Default(), pagination.DefaultConfig())
//	ep, _ := catalog.Default().Describe(catalog.Users)
//	records, err := fetcher.Fetch(ctx, ep, pagination.Window{Offset: 0, Size: 100}, resolver)
//
// Each call:
//   - Resolves the account placeholder through the Scope
//   - Adds company_id for company-scoped endpoints when one can be found
//   - Runs the request under the retry policy
//   - Extracts the record list from the response envelope
//
// Fetch returns raw records; shaping them is left to package normalize.
package pagination
