package dispatch

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"wikiwatch/internal/model"
	"wikiwatch/internal/storage"
	logx "wikiwatch/pkg/logx"
)

// Channel is one delivery destination. Deliver renders the event into
// the channel's message format and sends it; any error is per-event and
// the caller keeps going.
type Channel interface {
	Kind() string
	Filter() model.Category
	Deliver(ctx context.Context, ev model.Event) error
}

// NewChannel builds a concrete channel from its persisted record.
func NewChannel(rec storage.ChannelRecord, hc *http.Client, log logx.Logger) (Channel, error) {
	switch strings.ToLower(rec.Kind) {
	case "discord":
		return newDiscordChannel(rec, hc, log)
	case "telegram":
		return newTelegramChannel(rec, log)
	default:
		return nil, fmt.Errorf("unknown channel kind %q", rec.Kind)
	}
}
