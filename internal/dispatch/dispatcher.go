package dispatch

import (
	"context"
	"fmt"
	"sync"

	"wikiwatch/internal/eventbus"
	"wikiwatch/internal/metrics"
	"wikiwatch/internal/model"
	logx "wikiwatch/pkg/logx"
)

// DeliveryFailed is published on the bus for every event a channel could
// not deliver.
type DeliveryFailed struct {
	SourceID int64
	Kind     string
	Action   string
	Error    string
}

// Dispatcher fans a cycle's events out to a source's channels.
//
// All channels run concurrently; within one channel events go out in
// order. Render and delivery failures are absorbed per event per
// channel, never re-raised to the scheduler.
type Dispatcher struct {
	log logx.Logger
	bus eventbus.Bus
}

func New(log logx.Logger, bus eventbus.Bus) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Dispatcher{log: log, bus: bus}
}

// Dispatch delivers the filtered subsequence of events to every channel
// and returns once all channels have finished.
func (d *Dispatcher) Dispatch(ctx context.Context, events []model.Event, channels []Channel) {
	if len(events) == 0 || len(channels) == 0 {
		return
	}

	var wg sync.WaitGroup
	for _, ch := range channels {
		wg.Add(1)
		go func(ch Channel) {
			defer wg.Done()
			d.deliverChannel(ctx, events, ch)
		}(ch)
	}
	wg.Wait()
}

func (d *Dispatcher) deliverChannel(ctx context.Context, events []model.Event, ch Channel) {
	filter := ch.Filter()
	for _, ev := range events {
		if !ev.Category.Has(filter) {
			continue
		}
		if err := deliverOne(ctx, ch, ev); err != nil {
			metrics.DeliveryFailures.WithLabelValues(ch.Kind()).Inc()
			if d.bus != nil {
				d.bus.Publish(eventbus.Event{Type: "delivery.failed", Data: DeliveryFailed{
					SourceID: ev.Source.ID,
					Kind:     ch.Kind(),
					Action:   ev.Action.String(),
					Error:    err.Error(),
				}})
			}
			d.log.Warn("event delivery failed",
				logx.String("kind", ch.Kind()),
				logx.String("action", ev.Action.String()),
				logx.Int64("source", ev.Source.ID),
				logx.Err(err))
			continue
		}
		metrics.EventsDelivered.WithLabelValues(ch.Kind()).Inc()
	}
}

// deliverOne shields the loop from panicking renderers: a broken event
// costs one delivery, not the batch.
func deliverOne(ctx context.Context, ch Channel, ev model.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("render panic: %v", r)
		}
	}()
	return ch.Deliver(ctx, ev)
}
