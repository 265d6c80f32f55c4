// Package jobs runs the periodic ledger jobs: the billing aggregator, which
// totals each organization's tokens for the current day, and the ledger
// sealer, which flags audit entries as sealed. A failed tick is logged and
// counted; the next tick runs as scheduled.
package jobs
