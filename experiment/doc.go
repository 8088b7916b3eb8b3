// Package experiment deterministically assigns caller sessions to A/B test
// variants without a server round-trip, keeping assignments consistent per
// session through a process-lifetime store and the shared cache.
package experiment
