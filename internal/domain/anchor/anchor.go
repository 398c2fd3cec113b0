package anchor

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/oshokin/anchor-watch/internal/domain/geo"
)

// Status is the tagged state of the watch.
type Status int

const (
	// NoAnchor means no anchor is set and the watch is inert.
	NoAnchor Status = iota
	// Safe means the vessel is within the safe radius.
	Safe
	// Alarmed means the vessel has drifted outside the safe radius.
	Alarmed
)

// String implements fmt.Stringer.
func (s Status) String() string {
	switch s {
	case NoAnchor:
		return "no_anchor"
	case Safe:
		return "safe"
	case Alarmed:
		return "alarmed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// ParseStatus is the inverse of Status.String.
func ParseStatus(s string) (Status, bool) {
	switch s {
	case "no_anchor":
		return NoAnchor, true
	case "safe":
		return Safe, true
	case "alarmed":
		return Alarmed, true
	default:
		return NoAnchor, false
	}
}

// PositionFix is one location sample reported by the positioning collaborator.
type PositionFix struct {
	// Coordinate is the reported position.
	Coordinate geo.Coordinate
	// HorizontalAccuracyMeters is the radius of uncertainty; 0 means unknown.
	HorizontalAccuracyMeters float64
	// Timestamp is when the fix was taken.
	Timestamp time.Time
}

// Validate returns ErrInvalidFix when the fix cannot be used at all.
func (f *PositionFix) Validate() error {
	if err := f.Coordinate.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidFix, err)
	}

	a := f.HorizontalAccuracyMeters
	if math.IsNaN(a) || math.IsInf(a, 0) || a < 0 {
		return fmt.Errorf("%w: horizontal accuracy %v", ErrInvalidFix, a)
	}

	return nil
}

// AccuracyKnown reports whether the fix carries an accuracy estimate.
func (f *PositionFix) AccuracyKnown() bool {
	return f.HorizontalAccuracyMeters > 0
}

// Clone returns a copy of the fix, or nil for a nil receiver.
func (f *PositionFix) Clone() *PositionFix {
	if f == nil {
		return nil
	}

	cloned := *f

	return &cloned
}

// Point is the anchor: the fixed reference the vessel should stay near.
type Point struct {
	// Coordinate is where the anchor was dropped.
	Coordinate geo.Coordinate
	// DroppedAt is when the anchor was set.
	DroppedAt time.Time
	// SessionID correlates every event of one watch session.
	SessionID uuid.UUID
}

// NewPoint creates an anchor point with a fresh session ID.
func NewPoint(coordinate geo.Coordinate, droppedAt time.Time) Point {
	return Point{
		Coordinate: coordinate,
		DroppedAt:  droppedAt,
		SessionID:  uuid.New(),
	}
}

// Verdict is the safety decision derived from the anchor, radius and last fix.
type Verdict struct {
	// Status is Safe or Alarmed; a verdict never exists without an anchor.
	Status Status
	// DistanceMeters is the distance from the anchor to LastFix, or 0 before the first fix.
	DistanceMeters float64
	// BearingDegrees is the initial bearing from the anchor to LastFix, or 0 before the first fix.
	BearingDegrees float64
	// LastFix is the most recent accepted fix, nil right after a manual drop.
	LastFix *PositionFix
	// Anchor is the active anchor point.
	Anchor Point
	// SafeRadiusMeters is the radius the verdict was computed against.
	SafeRadiusMeters float64
}

// Clone returns a deep copy of the verdict, or nil for a nil receiver.
func (v *Verdict) Clone() *Verdict {
	if v == nil {
		return nil
	}

	return &Verdict{
		Status:           v.Status,
		DistanceMeters:   v.DistanceMeters,
		BearingDegrees:   v.BearingDegrees,
		LastFix:          v.LastFix.Clone(),
		Anchor:           v.Anchor,
		SafeRadiusMeters: v.SafeRadiusMeters,
	}
}
