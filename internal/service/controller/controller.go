package controller

import (
	"context"
	"sync"
	"time"

	"github.com/oshokin/anchor-watch/internal/domain/anchor"
	"github.com/oshokin/anchor-watch/internal/domain/filter"
	"github.com/oshokin/anchor-watch/internal/domain/geo"
	"github.com/oshokin/anchor-watch/internal/domain/watch"
	"github.com/oshokin/anchor-watch/internal/logger"
)

// Recorder receives observations for metrics. Implementations must not block.
type Recorder interface {
	ObserveFix(decision filter.Decision)
	ObserveVerdict(status anchor.Status, verdict *anchor.Verdict, safeRadius float64)
	ObserveTransition(to anchor.Status)
}

type nopRecorder struct{}

func (nopRecorder) ObserveFix(filter.Decision)                             {}
func (nopRecorder) ObserveVerdict(anchor.Status, *anchor.Verdict, float64) {}
func (nopRecorder) ObserveTransition(anchor.Status)                        {}

// Controller wraps a watch.Watch for concurrent use.
type Controller struct {
	// mu guards watch; fixes and commands take the write lock.
	mu    sync.RWMutex
	watch *watch.Watch

	recorder Recorder
	now      func() time.Time

	// subMu guards subs and nextID. Lock order: mu, then subMu.
	subMu  sync.Mutex
	subs   map[uint64]*Subscription
	nextID uint64

	// attachMu guards attached.
	attachMu sync.Mutex
	attached *Attachment
}

// Option configures a Controller.
type Option func(*Controller)

// WithRecorder reports fixes and verdicts to r.
func WithRecorder(r Recorder) Option {
	return func(c *Controller) {
		if r != nil {
			c.recorder = r
		}
	}
}

// WithClock overrides time.Now for event timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// New wraps w. The controller takes ownership: w must not be used directly afterwards.
func New(w *watch.Watch, opts ...Option) *Controller {
	c := &Controller{
		watch:    w,
		recorder: nopRecorder{},
		now:      time.Now,
		subs:     make(map[uint64]*Subscription),
	}

	for _, opt := range opts {
		opt(c)
	}

	c.recorder.ObserveVerdict(w.Status(), w.Verdict(), w.SafeRadius())

	return c
}

// CurrentVerdict returns a copy of the verdict, nil while no anchor is set.
func (c *Controller) CurrentVerdict() *anchor.Verdict {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.watch.Verdict()
}

// Snapshot is a consistent copy of the controller state.
type Snapshot struct {
	// Status is the watch status.
	Status anchor.Status
	// SafeRadiusMeters is the configured safe radius.
	SafeRadiusMeters float64
	// PendingDrop is true while a deferred drop waits for a fix.
	PendingDrop bool
	// Verdict is nil while no anchor is set.
	Verdict *anchor.Verdict
}

// Snapshot reads every public field under one lock.
func (c *Controller) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.snapshot()
}

// snapshot is Snapshot for callers already holding mu.
func (c *Controller) snapshot() Snapshot {
	return Snapshot{
		Status:           c.watch.Status(),
		SafeRadiusMeters: c.watch.SafeRadius(),
		PendingDrop:      c.watch.PendingDrop(),
		Verdict:          c.watch.Verdict(),
	}
}

// Status returns the current watch status.
func (c *Controller) Status() anchor.Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.watch.Status()
}

// SafeRadius returns the safe radius in meters.
func (c *Controller) SafeRadius() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.watch.SafeRadius()
}

// PendingDrop reports whether the next accepted fix will set the anchor.
func (c *Controller) PendingDrop() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.watch.PendingDrop()
}

// DropAnchor sets the anchor at coordinate.
func (c *Controller) DropAnchor(ctx context.Context, coordinate geo.Coordinate) (*anchor.Verdict, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.dropAnchor(ctx, coordinate)
}

func (c *Controller) dropAnchor(ctx context.Context, coordinate geo.Coordinate) (*anchor.Verdict, error) {
	u, err := c.watch.DropAnchor(coordinate)
	if err != nil {
		logger.WarnKV(ctx, "Anchor drop refused", "coordinate", coordinate.String(), "error", err)

		return nil, err
	}

	logger.InfoKV(ctx, "Anchor dropped",
		"coordinate", coordinate.String(),
		"session_id", u.Verdict.Anchor.SessionID.String(),
		"safe_radius_m", u.Verdict.SafeRadiusMeters,
	)

	c.apply(ctx, u)

	return u.Verdict, nil
}

// DropAtNextFix arms a deferred drop on the next accepted fix.
func (c *Controller) DropAtNextFix(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.dropAtNextFix(ctx)
}

func (c *Controller) dropAtNextFix(ctx context.Context) error {
	if err := c.watch.DropAtNextFix(); err != nil {
		logger.WarnKV(ctx, "Deferred anchor drop refused", "error", err)

		return err
	}

	logger.Info(ctx, "Anchor will be dropped at the next accepted fix")

	return nil
}

// Reset clears the anchor and any pending drop.
func (c *Controller) Reset(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.reset(ctx)
}

func (c *Controller) reset(ctx context.Context) {
	wasPending := c.watch.PendingDrop()
	u := c.watch.Reset()

	if u.Previous == anchor.NoAnchor && !wasPending {
		return
	}

	logger.InfoKV(ctx, "Anchor watch reset", "previous_status", u.Previous.String())

	c.recorder.ObserveVerdict(u.Current, nil, c.watch.SafeRadius())
	c.publish(ctx, Event{Kind: EventReset, Previous: u.Previous, Current: u.Current})
}

// SetSafeRadius changes the safe radius and re-evaluates the verdict at once.
func (c *Controller) SetSafeRadius(ctx context.Context, meters float64) (*anchor.Verdict, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.setSafeRadius(ctx, meters)
}

func (c *Controller) setSafeRadius(ctx context.Context, meters float64) (*anchor.Verdict, error) {
	u, err := c.watch.SetSafeRadius(meters)
	if err != nil {
		logger.WarnKV(ctx, "Safe radius refused", "safe_radius_m", meters, "error", err)

		return nil, err
	}

	logger.InfoKV(ctx, "Safe radius changed", "safe_radius_m", meters, "status", u.Current.String())

	c.apply(ctx, u)

	return u.Verdict, nil
}

// SubmitFix feeds one fix into the watch and returns the resulting verdict.
// Invalid fixes are logged and returned as an error; rejected fixes are logged
// and leave the verdict unchanged.
func (c *Controller) SubmitFix(ctx context.Context, fix anchor.PositionFix) (*anchor.Verdict, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.submitFix(ctx, fix)
}

func (c *Controller) submitFix(ctx context.Context, fix anchor.PositionFix) (*anchor.Verdict, error) {
	u, err := c.watch.SubmitFix(fix)
	if err != nil {
		c.recorder.ObserveFix(u.Decision)
		logger.WarnKV(ctx, "Invalid fix dropped", "error", err)

		return u.Verdict, err
	}

	if u.Verdict == nil && !u.Dropped && !c.watch.PendingDrop() {
		// Inert: no anchor and nothing armed.
		return nil, nil
	}

	c.recorder.ObserveFix(u.Decision)

	if !u.Decision.Accepted {
		logger.DebugKV(ctx, "Fix rejected",
			"reason", u.Decision.Reason.String(),
			"coordinate", fix.Coordinate.String(),
			"accuracy_m", fix.HorizontalAccuracyMeters,
			"effective_accuracy_m", u.Decision.EffectiveAccuracyMeters,
		)

		return u.Verdict, nil
	}

	if !u.Decision.AccuracyKnown {
		logger.DebugKV(ctx, "Fix without accuracy, assumed accuracy used for filtering",
			"assumed_accuracy_m", u.Decision.EffectiveAccuracyMeters)
	}

	if u.Dropped {
		logger.InfoKV(ctx, "Anchor dropped at fix",
			"coordinate", fix.Coordinate.String(),
			"session_id", u.Verdict.Anchor.SessionID.String(),
		)
	}

	c.apply(ctx, u)

	return u.Verdict, nil
}

// Subscribe registers a new subscription with the given buffer size.
// Non-positive sizes use DefaultSubscriptionBuffer.
func (c *Controller) Subscribe(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = DefaultSubscriptionBuffer
	}

	c.subMu.Lock()
	defer c.subMu.Unlock()

	c.nextID++

	s := &Subscription{
		id:     c.nextID,
		events: make(chan Event, buffer),
		owner:  c,
	}
	c.subs[s.id] = s

	return s
}

func (c *Controller) unsubscribe(s *Subscription) {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	delete(c.subs, s.id)
	close(s.events)
}

// apply records an update and publishes the events it implies. Called with mu held.
func (c *Controller) apply(ctx context.Context, u watch.Update) {
	c.recorder.ObserveVerdict(u.Current, u.Verdict, c.watch.SafeRadius())

	if u.Dropped {
		c.publish(ctx, Event{Kind: EventAnchorDropped, Previous: u.Previous, Current: u.Current, Verdict: u.Verdict})

		return
	}

	if u.Transitioned() {
		c.recorder.ObserveTransition(u.Current)
		c.publish(ctx, Event{Kind: EventTransition, Previous: u.Previous, Current: u.Current, Verdict: u.Verdict})
	}
}

// publish sends e to every subscriber, each with its own verdict copy.
func (c *Controller) publish(ctx context.Context, e Event) {
	e.At = c.now()

	c.subMu.Lock()
	defer c.subMu.Unlock()

	for _, s := range c.subs {
		delivered := e
		delivered.Verdict = e.Verdict.Clone()

		if !s.deliver(delivered) {
			logger.WarnKV(ctx, "Subscriber is lagging, oldest event dropped", "subscription", s.id)
		}
	}
}
