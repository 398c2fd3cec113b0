package watch

import (
	"fmt"
	"math"
	"time"

	"github.com/oshokin/anchor-watch/internal/domain/anchor"
	"github.com/oshokin/anchor-watch/internal/domain/filter"
	"github.com/oshokin/anchor-watch/internal/domain/geo"
)

const (
	// DefaultSafeRadiusMeters is the radius used until one is configured.
	DefaultSafeRadiusMeters = 250.0
	// DefaultMarginFactor scales the fix accuracy into the alarm margin.
	DefaultMarginFactor = 1.0
	// DefaultMinMarginMeters is the smallest margin, applied even to perfect fixes.
	DefaultMinMarginMeters = 1.0

	// boundaryToleranceMeters absorbs float rounding so a fix on the radius counts as inside.
	boundaryToleranceMeters = 1e-6
)

// Config tunes the hysteresis.
type Config struct {
	// SafeRadiusMeters is the initial safe radius.
	SafeRadiusMeters float64
	// MarginFactor multiplies the effective accuracy of a fix.
	MarginFactor float64
	// MinMarginMeters is the floor of the alarm margin.
	MinMarginMeters float64
}

// DefaultConfig returns the stock hysteresis settings.
func DefaultConfig() Config {
	return Config{
		SafeRadiusMeters: DefaultSafeRadiusMeters,
		MarginFactor:     DefaultMarginFactor,
		MinMarginMeters:  DefaultMinMarginMeters,
	}
}

// Validate rejects settings the state machine cannot work with.
func (c Config) Validate() error {
	if err := validateRadius(c.SafeRadiusMeters); err != nil {
		return err
	}

	if !isFinite(c.MarginFactor) || c.MarginFactor < 0 {
		return fmt.Errorf("%w: margin factor %v must be a non-negative number", anchor.ErrConfiguration, c.MarginFactor)
	}

	if !isFinite(c.MinMarginMeters) || c.MinMarginMeters < 0 {
		return fmt.Errorf("%w: minimum margin %v must be a non-negative number", anchor.ErrConfiguration, c.MinMarginMeters)
	}

	return nil
}

// Update describes the effect of one operation on the watch.
type Update struct {
	// Previous is the status before the operation.
	Previous anchor.Status
	// Current is the status after the operation.
	Current anchor.Status
	// Verdict is a snapshot after the operation, nil while no anchor is set.
	Verdict *anchor.Verdict
	// Decision is the filter outcome; only set by SubmitFix.
	Decision filter.Decision
	// Dropped is true when this operation set the anchor.
	Dropped bool
}

// Transitioned reports whether the status changed.
func (u *Update) Transitioned() bool {
	return u.Previous != u.Current
}

// session is the active anchor with its derived safety state.
type session struct {
	anchor   anchor.Point
	alarmed  bool
	distance float64
	bearing  float64
	lastFix  *anchor.PositionFix
	// lastAccuracy is the margin accuracy of lastFix, reused on radius changes.
	lastAccuracy float64
}

func (s *session) status() anchor.Status {
	if s.alarmed {
		return anchor.Alarmed
	}

	return anchor.Safe
}

// Watch is the anchor-watch state machine.
type Watch struct {
	cfg    Config
	filter *filter.Filter
	now    func() time.Time

	radius float64
	// active is nil in NoAnchor.
	active *session
	// pendingDrop anchors on the next accepted fix.
	pendingDrop bool
	// previous is the last accepted fix of the session, fed to the filter.
	previous *anchor.PositionFix
}

// Option configures a Watch.
type Option func(*Watch)

// WithClock overrides time.Now, used for drop timestamps.
func WithClock(now func() time.Time) Option {
	return func(w *Watch) {
		if now != nil {
			w.now = now
		}
	}
}

// New creates a watch in NoAnchor.
func New(cfg Config, f *filter.Filter, opts ...Option) (*Watch, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if f == nil {
		f = filter.New(filter.DefaultConfig())
	}

	w := &Watch{
		cfg:    cfg,
		filter: f,
		now:    time.Now,
		radius: cfg.SafeRadiusMeters,
	}

	for _, opt := range opts {
		opt(w)
	}

	return w, nil
}

// Status returns the current state.
func (w *Watch) Status() anchor.Status {
	if w.active == nil {
		return anchor.NoAnchor
	}

	return w.active.status()
}

// SafeRadius returns the configured safe radius in meters.
func (w *Watch) SafeRadius() float64 {
	return w.radius
}

// PendingDrop reports whether the next accepted fix will become the anchor.
func (w *Watch) PendingDrop() bool {
	return w.pendingDrop
}

// Verdict returns a snapshot of the current verdict, nil in NoAnchor.
func (w *Watch) Verdict() *anchor.Verdict {
	if w.active == nil {
		return nil
	}

	return &anchor.Verdict{
		Status:           w.active.status(),
		DistanceMeters:   w.active.distance,
		BearingDegrees:   w.active.bearing,
		LastFix:          w.active.lastFix.Clone(),
		Anchor:           w.active.anchor,
		SafeRadiusMeters: w.radius,
	}
}

// DropAnchor sets the anchor at coordinate and starts a session in Safe.
// It fails with ErrAlreadyAnchored unless the watch is in NoAnchor; a pending
// deferred drop is replaced.
func (w *Watch) DropAnchor(coordinate geo.Coordinate) (Update, error) {
	if w.active != nil {
		return Update{}, anchor.ErrAlreadyAnchored
	}

	if err := coordinate.Validate(); err != nil {
		return Update{}, fmt.Errorf("%w: %w", anchor.ErrConfiguration, err)
	}

	w.pendingDrop = false
	w.start(anchor.NewPoint(coordinate, w.now()), nil, 0)

	return w.update(anchor.NoAnchor, filter.Decision{}, true), nil
}

// DropAtNextFix arms a deferred drop: the next accepted fix becomes the anchor.
func (w *Watch) DropAtNextFix() error {
	if w.active != nil {
		return anchor.ErrAlreadyAnchored
	}

	w.pendingDrop = true

	return nil
}

// Reset clears the anchor, any pending drop and the filter memory.
func (w *Watch) Reset() Update {
	previous := w.Status()

	w.active = nil
	w.pendingDrop = false
	w.previous = nil

	return Update{
		Previous: previous,
		Current:  anchor.NoAnchor,
	}
}

// SetSafeRadius changes the radius and re-evaluates against the last fix.
// Non-positive or non-finite values fail with ErrConfiguration and change nothing.
func (w *Watch) SetSafeRadius(meters float64) (Update, error) {
	if err := validateRadius(meters); err != nil {
		return Update{}, err
	}

	previous := w.Status()
	w.radius = meters

	if w.active != nil && w.active.lastFix != nil {
		w.evaluate(w.active.lastAccuracy)
	}

	return w.update(previous, filter.Decision{}, false), nil
}

// SubmitFix feeds one fix into the watch.
//
// In NoAnchor without a pending drop the fix is ignored. An invalid fix
// returns ErrInvalidFix. A fix the filter rejects leaves the state unchanged
// and is reported through Update.Decision.
func (w *Watch) SubmitFix(fix anchor.PositionFix) (Update, error) {
	previous := w.Status()

	if err := fix.Validate(); err != nil {
		return w.update(previous, filter.Decision{Reason: filter.ReasonInvalid}, false), err
	}

	if w.active == nil && !w.pendingDrop {
		return w.update(previous, filter.Decision{}, false), nil
	}

	decision := w.filter.Evaluate(&fix, w.previous, w.radius)
	if !decision.Accepted {
		return w.update(previous, decision, false), nil
	}

	accepted := fix.Clone()
	w.previous = accepted
	accuracy := marginAccuracy(decision)

	if w.active == nil {
		w.pendingDrop = false
		w.start(anchor.NewPoint(fix.Coordinate, fix.Timestamp), accepted, accuracy)

		return w.update(previous, decision, true), nil
	}

	w.active.lastFix = accepted
	w.active.lastAccuracy = accuracy
	w.evaluate(accuracy)

	return w.update(previous, decision, false), nil
}

// Margin returns how far beyond the radius a fix of the given accuracy must
// be before the watch alarms.
func (w *Watch) Margin(accuracyMeters float64) float64 {
	return math.Max(w.cfg.MinMarginMeters, accuracyMeters*w.cfg.MarginFactor)
}

// marginAccuracy is the accuracy that widens the alarm margin. An unknown
// accuracy contributes nothing, so only the minimum margin applies.
func marginAccuracy(decision filter.Decision) float64 {
	if !decision.AccuracyKnown {
		return 0
	}

	return decision.EffectiveAccuracyMeters
}

func (w *Watch) start(point anchor.Point, fix *anchor.PositionFix, accuracy float64) {
	if point.DroppedAt.IsZero() {
		point.DroppedAt = w.now()
	}

	w.active = &session{
		anchor:       point,
		lastFix:      fix,
		lastAccuracy: accuracy,
	}
}

// evaluate recomputes distance and bearing and applies the hysteresis rule.
func (w *Watch) evaluate(accuracy float64) {
	s := w.active

	s.distance = geo.MustDistanceMeters(s.anchor.Coordinate, s.lastFix.Coordinate)

	// Both coordinates passed validation, so the error is always nil.
	s.bearing, _ = geo.BearingDegrees(s.anchor.Coordinate, s.lastFix.Coordinate)

	switch {
	case !s.alarmed && s.distance-w.radius > w.Margin(accuracy):
		s.alarmed = true
	case s.alarmed && s.distance <= w.radius+boundaryToleranceMeters:
		s.alarmed = false
	}
}

func (w *Watch) update(previous anchor.Status, decision filter.Decision, dropped bool) Update {
	return Update{
		Previous: previous,
		Current:  w.Status(),
		Verdict:  w.Verdict(),
		Decision: decision,
		Dropped:  dropped,
	}
}

func validateRadius(meters float64) error {
	if !isFinite(meters) || meters <= 0 {
		return fmt.Errorf("%w: safe radius %v must be a positive number of meters", anchor.ErrConfiguration, meters)
	}

	return nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
