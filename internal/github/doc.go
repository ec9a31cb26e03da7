// Package github is a minimal REST client for the two calls this service
// makes: listing the authenticated user's notifications and creating an
// issue.
//
// # Notifications
//
// Listing is single-page on purpose. A digest run summarizes what fits in
// one page (50 entries); anything beyond that is stale enough that the next
// run's window covers it. Ordering is the API's most-recent-first order and
// is preserved as-is.
//
// # Pacing
//
// All calls go through a shared rate limiter so scheduled runs stay well
// inside GitHub's secondary rate limits.
package github
