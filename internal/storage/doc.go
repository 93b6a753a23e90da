// Package storage persists the source registry: each monitored site, its
// delivery channels, and the per-source cursor that marks how far the
// relay has fully dispatched.
package storage
