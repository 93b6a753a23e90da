// Package normalize turns the three raw feed shapes of a source into
// the canonical event model: the structured recent-changes/log JSON, the
// HTML-embedded social activity feed, and the raw post-body feed the
// activity entries are correlated with.
package normalize
