// Package scheduler triggers digest runs from a cron schedule.
//
// The service owns exactly one job. Triggers that fire while a previous
// run is still in flight are skipped, not queued.
package scheduler
