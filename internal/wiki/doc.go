// Package wiki talks to one monitored site: the recent-changes/log API,
// the social activity feed, the raw discussion-post feed and the user
// lookup endpoint, all through one shared rate-limited client.
package wiki
