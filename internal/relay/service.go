// Package relay runs the poll cycle: fetch every source's feeds,
// normalize, resolve identities, sort, dispatch, then commit cursors.
// Delivery is at least once; a crash between dispatch and commit means
// the window is replayed on the next start.
package relay

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"wikiwatch/internal/dispatch"
	"wikiwatch/internal/eventbus"
	"wikiwatch/internal/metrics"
	"wikiwatch/internal/model"
	"wikiwatch/internal/normalize"
	"wikiwatch/internal/resolve"
	"wikiwatch/internal/runtime/supervisor"
	"wikiwatch/internal/storage"
	"wikiwatch/internal/wiki"
	logx "wikiwatch/pkg/logx"
)

const (
	defaultInterval = 10 * time.Second
	defaultGrace    = 15 * time.Second
)

// Config controls the poll schedule.
//
// Schedule, when set, is a standard 5-field cron expression and takes
// precedence over Interval. Timezone names the location activity-feed
// timestamps are interpreted in; empty means UTC.
type Config struct {
	Interval time.Duration
	Schedule string
	Timezone string
	Grace    time.Duration
}

// Deps are the collaborators the relay is wired with at startup.
type Deps struct {
	Store      storage.Store
	Client     *wiki.Client
	HTTP       *http.Client // shared by webhook channels
	Dispatcher *dispatch.Dispatcher
	Bus        eventbus.Bus
	Log        logx.Logger
}

// CycleInfo is the bus payload for cycle.started / cycle.finished.
type CycleInfo struct {
	ID      string
	Sources int
	Events  int
}

// SourceFailed is published when a source's cursor could not advance.
type SourceFailed struct {
	CycleID  string
	SourceID int64
	Error    string
}

type sourceState struct {
	src      *wiki.Source
	channels []dispatch.Channel
}

// Service is the relay scheduler. One Service drives all sources; each
// cycle processes sources concurrently and waits for all of them before
// going idle again.
type Service struct {
	cfg  Config
	deps Deps
	loc  *time.Location
	log  logx.Logger

	sched cron.Schedule // nil when running on a fixed interval

	mu      sync.Mutex
	sources []*sourceState
	sup     *supervisor.Supervisor
	running bool
}

func New(cfg Config, deps Deps) (*Service, error) {
	if deps.Store == nil || deps.Client == nil || deps.Dispatcher == nil {
		return nil, errors.New("relay: store, client and dispatcher are required")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.Grace <= 0 {
		cfg.Grace = defaultGrace
	}

	log := deps.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("comp", "relay"))

	loc := time.UTC
	if cfg.Timezone != "" {
		l, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			return nil, fmt.Errorf("relay: timezone %q: %w", cfg.Timezone, err)
		}
		loc = l
	}

	var sched cron.Schedule
	if cfg.Schedule != "" {
		s, err := cron.ParseStandard(cfg.Schedule)
		if err != nil {
			return nil, fmt.Errorf("relay: schedule %q: %w", cfg.Schedule, err)
		}
		sched = s
	}

	return &Service{cfg: cfg, deps: deps, loc: loc, log: log, sched: sched}, nil
}

// SetInterval changes the fixed poll interval; the change takes effect
// after the current idle period. No-op when a cron schedule is set.
func (s *Service) SetInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	s.mu.Lock()
	s.cfg.Interval = d
	s.mu.Unlock()
}

// Start loads the source registry and begins the poll loop. An empty
// registry is not an error; the relay warns and idles so sources can be
// added and picked up on restart.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return errors.New("relay: already started")
	}

	records, err := s.deps.Store.LoadSources(ctx)
	if err != nil {
		return fmt.Errorf("relay: load sources: %w", err)
	}
	states := make([]*sourceState, 0, len(records))
	for _, rec := range records {
		st, err := s.buildSource(rec)
		if err != nil {
			return err
		}
		states = append(states, st)
	}
	s.sources = states

	if len(states) == 0 {
		s.log.Warn("no sources configured, relay will idle")
	} else {
		s.log.Info("relay starting",
			logx.Int("sources", len(states)),
			logx.Duration("interval", s.cfg.Interval))
	}

	s.sup = supervisor.New(ctx, supervisor.WithLogger(s.log))
	s.sup.Go("relay.loop", s.run)
	s.running = true
	return nil
}

// Stop drains the running cycle, bounded by the configured grace period.
func (s *Service) Stop() error {
	s.mu.Lock()
	sup := s.sup
	grace := s.cfg.Grace
	s.running = false
	s.mu.Unlock()
	if sup == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	if err := sup.Stop(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("relay: stop: %w", err)
	}
	return nil
}

func (s *Service) buildSource(rec storage.SourceRecord) (*sourceState, error) {
	st := &sourceState{
		src: wiki.NewSource(rec.ID, rec.BaseURL, rec.Cursor, s.deps.Client, s.log),
	}
	for _, cr := range rec.Channels {
		ch, err := dispatch.NewChannel(cr, s.deps.HTTP, s.log)
		if err != nil {
			return nil, fmt.Errorf("relay: source %d channel %d: %w", rec.ID, cr.ID, err)
		}
		st.channels = append(st.channels, ch)
	}
	return st, nil
}

func (s *Service) run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.nextDelay()):
		}
		if len(s.sources) == 0 {
			continue
		}
		s.runCycle(ctx)
	}
}

func (s *Service) nextDelay() time.Duration {
	if s.sched != nil {
		now := time.Now()
		return s.sched.Next(now).Sub(now)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Interval
}

// runCycle processes every source concurrently and waits for all of
// them. Failures stay inside their source; a broken site never delays
// or suppresses the others.
func (s *Service) runCycle(ctx context.Context) {
	cycleID := uuid.NewString()
	log := s.log.With(logx.String("cycle", cycleID))
	started := time.Now()

	s.publish("cycle.started", CycleInfo{ID: cycleID, Sources: len(s.sources)})

	var total int64
	sup := supervisor.New(ctx, supervisor.WithLogger(log))
	for _, st := range s.sources {
		st := st
		sup.Go0(fmt.Sprintf("source.%d", st.src.ID), func(ctx context.Context) {
			n := s.safeProcessSource(ctx, cycleID, st, log)
			atomic.AddInt64(&total, int64(n))
		})
	}
	sup.Wait(ctx)

	metrics.CyclesTotal.Inc()
	metrics.CycleDuration.Observe(time.Since(started).Seconds())
	s.publish("cycle.finished", CycleInfo{ID: cycleID, Sources: len(s.sources), Events: int(total)})

	log.Debug("cycle finished",
		logx.Int64("events", total),
		logx.Duration("took", time.Since(started)))
}

// safeProcessSource shields a cycle from a panicking source pipeline.
// A panic is handled like any other source failure: the cursor stays
// put, the failure is counted and published, and sibling sources keep
// running.
func (s *Service) safeProcessSource(ctx context.Context, cycleID string, st *sourceState, log logx.Logger) (n int) {
	defer func() {
		if r := recover(); r != nil {
			metrics.SourceFailures.Inc()
			log.Error("source pipeline panicked",
				logx.Int64("source", st.src.ID),
				logx.Any("panic", r),
				logx.Stack(string(debug.Stack())))
			s.publish("source.failed", SourceFailed{
				CycleID:  cycleID,
				SourceID: st.src.ID,
				Error:    fmt.Sprintf("panic: %v", r),
			})
		}
	}()
	return s.processSource(ctx, cycleID, st, log)
}

// processSource runs one source's full pipeline and returns the number
// of events dispatched. The cursor advances only when both cursor-driven
// feeds (changes and activity) fetched cleanly; a failed post-body fetch
// degrades post events to snippet text but does not hold the cursor
// back, because the body feed is not windowed.
func (s *Service) processSource(ctx context.Context, cycleID string, st *sourceState, log logx.Logger) int {
	src := st.src
	log = log.With(logx.Int64("source", src.ID))
	since, until := src.FetchWindow()

	var (
		wg       sync.WaitGroup
		raw      *wiki.RawChanges
		activity wiki.RawActivity
		posts    *wiki.RawPosts

		changesErr  error
		activityErr error
		postsErr    error
	)
	// A panic inside a fetch surfaces as that feed's error so the
	// cursor-hold rules below apply to it like any fetch failure.
	fetch := func(dst *error, fn func() error) {
		defer wg.Done()
		defer func() {
			if r := recover(); r != nil {
				*dst = fmt.Errorf("panic: %v", r)
			}
		}()
		*dst = fn()
	}
	wg.Add(3)
	go fetch(&changesErr, func() (err error) {
		raw, err = src.FetchChanges(ctx, since, until)
		return err
	})
	go fetch(&activityErr, func() (err error) {
		activity, err = src.FetchActivity(ctx, since)
		return err
	})
	go fetch(&postsErr, func() (err error) {
		posts, err = src.FetchRecentPosts(ctx)
		return err
	})
	wg.Wait()

	for feed, err := range map[string]error{
		"changes":  changesErr,
		"activity": activityErr,
		"posts":    postsErr,
	} {
		if err != nil {
			metrics.FetchFailures.WithLabelValues(feed).Inc()
			log.Warn("feed fetch failed", logx.String("feed", feed), logx.Err(err))
		}
	}

	var events []model.Event
	if changesErr == nil {
		events = append(events, normalize.Changes(src.Ref(), raw, log)...)
	}
	if activityErr == nil {
		var bodies []string
		if postsErr == nil {
			bodies = normalize.PostBodies(posts)
		}
		events = append(events, normalize.Activity(src.Ref(), activity, bodies, s.loc, log)...)
	}
	for i := range events {
		metrics.EventsNormalized.WithLabelValues(events[i].Category.String()).Inc()
	}

	if len(events) > 0 {
		// Unresolved ids degrade rendering only; delivery proceeds.
		if err := resolve.Accounts(ctx, src, events, log); err != nil {
			log.Warn("identity resolution failed", logx.Err(err))
		}
		model.SortChronological(events)
		s.deps.Dispatcher.Dispatch(ctx, events, st.channels)
	}

	if changesErr != nil || activityErr != nil {
		metrics.SourceFailures.Inc()
		s.publish("source.failed", SourceFailed{
			CycleID:  cycleID,
			SourceID: src.ID,
			Error:    errors.Join(changesErr, activityErr).Error(),
		})
		return len(events)
	}

	if err := s.deps.Store.CommitCursor(ctx, src.ID, until); err != nil {
		// Cursor stays put so the next cycle re-fetches the window;
		// duplicates are the accepted cost of at-least-once delivery.
		metrics.SourceFailures.Inc()
		log.Error("cursor commit failed", logx.Time("cursor", until), logx.Err(err))
		s.publish("source.failed", SourceFailed{CycleID: cycleID, SourceID: src.ID, Error: err.Error()})
		return len(events)
	}
	src.Cursor = until
	metrics.CursorCommits.Inc()
	return len(events)
}

func (s *Service) publish(typ string, data any) {
	if s.deps.Bus == nil {
		return
	}
	s.deps.Bus.Publish(eventbus.Event{Type: typ, Time: time.Now(), Data: data})
}
