package filter

import (
	"github.com/oshokin/anchor-watch/internal/domain/anchor"
	"github.com/oshokin/anchor-watch/internal/domain/geo"
)

// Reason explains a filter decision.
type Reason int

const (
	// ReasonAccepted means the fix passed every check.
	ReasonAccepted Reason = iota
	// ReasonInvalid means the fix failed validation.
	ReasonInvalid
	// ReasonOutOfOrder means the fix is older than the previous accepted fix.
	ReasonOutOfOrder
	// ReasonAccuracyCeiling means the accuracy is worse than the configured ceiling.
	ReasonAccuracyCeiling
	// ReasonImplausibleJump means reaching the fix would need an impossible speed.
	ReasonImplausibleJump
	// ReasonLowConfidence means the accuracy is worse than the safe radius itself.
	ReasonLowConfidence
)

// String implements fmt.Stringer; values are used as metric labels.
func (r Reason) String() string {
	switch r {
	case ReasonAccepted:
		return "accepted"
	case ReasonInvalid:
		return "invalid"
	case ReasonOutOfOrder:
		return "out_of_order"
	case ReasonAccuracyCeiling:
		return "accuracy_ceiling"
	case ReasonImplausibleJump:
		return "implausible_jump"
	case ReasonLowConfidence:
		return "low_confidence"
	default:
		return "unknown"
	}
}

// DefaultAssumedAccuracyMeters stands in for fixes that report no accuracy.
const DefaultAssumedAccuracyMeters = 10.0

// Config tunes the filter. Zero values disable the optional checks.
type Config struct {
	// MaxAccuracyMeters rejects fixes less accurate than this; 0 disables.
	MaxAccuracyMeters float64
	// MaxSpeedMetersPerSecond rejects fixes implying a faster jump; 0 disables.
	MaxSpeedMetersPerSecond float64
	// AssumedAccuracyMeters replaces an unknown (zero) accuracy.
	AssumedAccuracyMeters float64
}

// DefaultConfig rejects nothing outright and assumes 10 m for unknown accuracy.
func DefaultConfig() Config {
	return Config{
		AssumedAccuracyMeters: DefaultAssumedAccuracyMeters,
	}
}

// Decision is the outcome of Evaluate.
type Decision struct {
	// Accepted is true when the fix may update the watch.
	Accepted bool
	// Reason is ReasonAccepted or why the fix was rejected.
	Reason Reason
	// EffectiveAccuracyMeters is the accuracy used for ceiling and confidence checks.
	EffectiveAccuracyMeters float64
	// AccuracyKnown is false when the fix reported no accuracy.
	AccuracyKnown bool
}

// Filter evaluates fixes against a Config.
type Filter struct {
	cfg Config
}

// New creates a filter. Negative settings are treated as disabled.
func New(cfg Config) *Filter {
	if cfg.MaxAccuracyMeters < 0 {
		cfg.MaxAccuracyMeters = 0
	}

	if cfg.MaxSpeedMetersPerSecond < 0 {
		cfg.MaxSpeedMetersPerSecond = 0
	}

	if cfg.AssumedAccuracyMeters < 0 {
		cfg.AssumedAccuracyMeters = 0
	}

	return &Filter{cfg: cfg}
}

// Config returns the filter settings.
func (f *Filter) Config() Config {
	return f.cfg
}

// EffectiveAccuracy returns the accuracy the watch should trust for fix.
func (f *Filter) EffectiveAccuracy(fix *anchor.PositionFix) float64 {
	if fix.AccuracyKnown() {
		return fix.HorizontalAccuracyMeters
	}

	return f.cfg.AssumedAccuracyMeters
}

// Accept reports whether fix passes every check that does not depend on the
// safe radius.
func (f *Filter) Accept(fix, previousAccepted *anchor.PositionFix) bool {
	return f.Evaluate(fix, previousAccepted, 0).Accepted
}

// Evaluate runs every check in order and returns the first failure.
// A non-positive safeRadius skips the low-confidence check.
func (f *Filter) Evaluate(fix, previousAccepted *anchor.PositionFix, safeRadius float64) Decision {
	if fix == nil || fix.Validate() != nil {
		return Decision{Reason: ReasonInvalid}
	}

	if previousAccepted != nil && previousAccepted.Validate() != nil {
		previousAccepted = nil
	}

	decision := Decision{
		Reason:                  ReasonAccepted,
		EffectiveAccuracyMeters: f.EffectiveAccuracy(fix),
		AccuracyKnown:           fix.AccuracyKnown(),
	}

	reject := func(r Reason) Decision {
		decision.Reason = r

		return decision
	}

	if previousAccepted != nil && isOutOfOrder(fix, previousAccepted) {
		return reject(ReasonOutOfOrder)
	}

	if f.cfg.MaxAccuracyMeters > 0 && decision.EffectiveAccuracyMeters > f.cfg.MaxAccuracyMeters {
		return reject(ReasonAccuracyCeiling)
	}

	if previousAccepted != nil && f.cfg.MaxSpeedMetersPerSecond > 0 && f.isImplausibleJump(fix, previousAccepted) {
		return reject(ReasonImplausibleJump)
	}

	if safeRadius > 0 && decision.EffectiveAccuracyMeters > safeRadius {
		return reject(ReasonLowConfidence)
	}

	decision.Accepted = true

	return decision
}

func isOutOfOrder(fix, previous *anchor.PositionFix) bool {
	if fix.Timestamp.IsZero() || previous.Timestamp.IsZero() {
		return false
	}

	return fix.Timestamp.Before(previous.Timestamp)
}

func (f *Filter) isImplausibleJump(fix, previous *anchor.PositionFix) bool {
	if fix.Timestamp.IsZero() || previous.Timestamp.IsZero() {
		return false
	}

	elapsed := fix.Timestamp.Sub(previous.Timestamp).Seconds()
	if elapsed <= 0 {
		return false
	}

	// Both fixes are validated by now.
	distance := geo.MustDistanceMeters(previous.Coordinate, fix.Coordinate)

	// Jumps within the combined uncertainty are noise, not motion.
	distance -= f.EffectiveAccuracy(fix) + f.EffectiveAccuracy(previous)
	if distance <= 0 {
		return false
	}

	return distance/elapsed > f.cfg.MaxSpeedMetersPerSecond
}
