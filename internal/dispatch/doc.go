// Package dispatch fans normalized events out to a source's configured
// channels. Each channel kind owns its rendering (Discord webhook
// embeds, Telegram HTML messages); the dispatcher runs channels
// concurrently, keeps per-channel event order and absorbs per-event
// delivery failures.
package dispatch
