package watch

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/anchor-watch/internal/domain/anchor"
	"github.com/oshokin/anchor-watch/internal/domain/filter"
	"github.com/oshokin/anchor-watch/internal/domain/geo"
)

var anchorage = geo.Coordinate{Latitude: 42.68830, Longitude: 17.93900}

// newWatch builds a watch with a 100 m radius and the default filter.
func newWatch(t *testing.T) *Watch {
	t.Helper()

	cfg := DefaultConfig()
	cfg.SafeRadiusMeters = 100

	w, err := New(cfg, filter.New(filter.DefaultConfig()), WithClock(func() time.Time {
		return time.Unix(1_700_000_000, 0)
	}))
	require.NoError(t, err)

	return w
}

// fixFrom returns a fix distance meters east of origin.
func fixFrom(t *testing.T, origin geo.Coordinate, distance, accuracy float64) anchor.PositionFix {
	t.Helper()

	c, err := geo.Destination(origin, 90, distance)
	require.NoError(t, err)

	return anchor.PositionFix{
		Coordinate:               c,
		HorizontalAccuracyMeters: accuracy,
	}
}

func submit(t *testing.T, w *Watch, fix anchor.PositionFix) Update {
	t.Helper()

	u, err := w.SubmitFix(fix)
	require.NoError(t, err)

	return u
}

// TestNoAnchor_IsInert ensures fixes are ignored and no verdict exists without an anchor.
func TestNoAnchor_IsInert(t *testing.T) {
	t.Parallel()

	w := newWatch(t)
	require.Equal(t, anchor.NoAnchor, w.Status())
	require.Nil(t, w.Verdict())

	u := submit(t, w, fixFrom(t, anchorage, 500, 5))
	require.Nil(t, u.Verdict)
	require.Equal(t, anchor.NoAnchor, u.Current)
	require.False(t, u.Transitioned())
}

// TestScenario_DriftAndReturn follows the drop, drift out, come back scenario.
func TestScenario_DriftAndReturn(t *testing.T) {
	t.Parallel()

	w := newWatch(t)

	u, err := w.DropAnchor(anchorage)
	require.NoError(t, err)
	require.True(t, u.Dropped)
	require.Equal(t, anchor.Safe, u.Current)
	require.Zero(t, u.Verdict.DistanceMeters)
	require.Nil(t, u.Verdict.LastFix)

	u = submit(t, w, anchor.PositionFix{Coordinate: anchorage, HorizontalAccuracyMeters: 5})
	require.Equal(t, anchor.Safe, u.Verdict.Status)
	require.Zero(t, u.Verdict.DistanceMeters)

	u = submit(t, w, fixFrom(t, anchorage, 150, 5))
	require.Equal(t, anchor.Alarmed, u.Verdict.Status)
	require.InDelta(t, 150, u.Verdict.DistanceMeters, 0.01)
	require.True(t, u.Transitioned())

	u = submit(t, w, anchor.PositionFix{Coordinate: anchorage, HorizontalAccuracyMeters: 5})
	require.Equal(t, anchor.Safe, u.Verdict.Status)
	require.Zero(t, u.Verdict.DistanceMeters)
	require.Equal(t, anchor.Alarmed, u.Previous)
}

// TestBoundaryIsInclusive checks a fix exactly on the radius is Safe.
func TestBoundaryIsInclusive(t *testing.T) {
	t.Parallel()

	for _, r := range []float64{30, 100, 250} {
		w := newWatch(t)

		_, err := w.SetSafeRadius(r)
		require.NoError(t, err)

		_, err = w.DropAnchor(anchorage)
		require.NoError(t, err)

		u := submit(t, w, fixFrom(t, anchorage, r, 0))
		require.Equal(t, anchor.Safe, u.Current, "radius %v", r)
	}
}

// TestHysteresis_MarginFromAccuracy checks the alarm margin follows fix accuracy.
func TestHysteresis_MarginFromAccuracy(t *testing.T) {
	t.Parallel()

	w := newWatch(t)
	_, err := w.DropAnchor(anchorage)
	require.NoError(t, err)

	u := submit(t, w, fixFrom(t, anchorage, 101, 5))
	require.Equal(t, anchor.Safe, u.Current)
	require.InDelta(t, 101, u.Verdict.DistanceMeters, 0.01)

	u = submit(t, w, fixFrom(t, anchorage, 104.5, 5))
	require.Equal(t, anchor.Safe, u.Current)

	u = submit(t, w, fixFrom(t, anchorage, 106, 5))
	require.Equal(t, anchor.Alarmed, u.Current)
}

// TestHysteresis_MinimumMargin checks the 1 m floor with a near-perfect fix.
func TestHysteresis_MinimumMargin(t *testing.T) {
	t.Parallel()

	w := newWatch(t)
	_, err := w.DropAnchor(anchorage)
	require.NoError(t, err)

	u := submit(t, w, fixFrom(t, anchorage, 100.9, 0.1))
	require.Equal(t, anchor.Safe, u.Current)

	u = submit(t, w, fixFrom(t, anchorage, 101.2, 0.1))
	require.Equal(t, anchor.Alarmed, u.Current)
}

// TestHysteresis_UnknownAccuracyUsesMinimumMargin keeps the assumed accuracy out of the margin.
func TestHysteresis_UnknownAccuracyUsesMinimumMargin(t *testing.T) {
	t.Parallel()

	w := newWatch(t)
	_, err := w.DropAnchor(anchorage)
	require.NoError(t, err)

	u := submit(t, w, fixFrom(t, anchorage, 100.5, 0))
	require.True(t, u.Decision.Accepted)
	require.False(t, u.Decision.AccuracyKnown)
	require.Equal(t, anchor.Safe, u.Current)

	// A radius change reuses the same minimum margin: 1.5 m beyond 99 m alarms.
	u, err = w.SetSafeRadius(99)
	require.NoError(t, err)
	require.Equal(t, anchor.Alarmed, u.Current)

	w = newWatch(t)
	_, err = w.DropAnchor(anchorage)
	require.NoError(t, err)

	u = submit(t, w, fixFrom(t, anchorage, 105, 0))
	require.Equal(t, anchor.Alarmed, u.Current)
	require.InDelta(t, 105, u.Verdict.DistanceMeters, 0.01)
}

// TestVerdict_BearingFromAnchor points from the anchor to the last fix.
func TestVerdict_BearingFromAnchor(t *testing.T) {
	t.Parallel()

	w := newWatch(t)
	u, err := w.DropAnchor(anchorage)
	require.NoError(t, err)
	require.Zero(t, u.Verdict.BearingDegrees)

	u = submit(t, w, fixFrom(t, anchorage, 40, 5))
	require.InDelta(t, 90, u.Verdict.BearingDegrees, 0.1)
}

// TestRecovery_IsImmediate checks Alarmed -> Safe needs no margin, whatever the accuracy.
func TestRecovery_IsImmediate(t *testing.T) {
	t.Parallel()

	w := newWatch(t)
	_, err := w.DropAnchor(anchorage)
	require.NoError(t, err)

	u := submit(t, w, fixFrom(t, anchorage, 200, 5))
	require.Equal(t, anchor.Alarmed, u.Current)

	// Inside the dead zone: stays alarmed.
	u = submit(t, w, fixFrom(t, anchorage, 100.5, 40))
	require.Equal(t, anchor.Alarmed, u.Current)

	u = submit(t, w, fixFrom(t, anchorage, 100, 40))
	require.Equal(t, anchor.Safe, u.Current)
}

// TestSetSafeRadius_ReevaluatesWithoutFix flips the verdict on radius change alone.
func TestSetSafeRadius_ReevaluatesWithoutFix(t *testing.T) {
	t.Parallel()

	w := newWatch(t)
	_, err := w.DropAnchor(anchorage)
	require.NoError(t, err)

	u := submit(t, w, fixFrom(t, anchorage, 150, 5))
	require.Equal(t, anchor.Alarmed, u.Current)

	u, err = w.SetSafeRadius(200)
	require.NoError(t, err)
	require.Equal(t, anchor.Safe, u.Current)
	require.Equal(t, anchor.Alarmed, u.Previous)
	require.Equal(t, 200.0, u.Verdict.SafeRadiusMeters)
	require.InDelta(t, 150, u.Verdict.DistanceMeters, 0.01)

	// Shrinking the radius re-applies the margin of the last fix.
	u, err = w.SetSafeRadius(146)
	require.NoError(t, err)
	require.Equal(t, anchor.Safe, u.Current)

	u, err = w.SetSafeRadius(140)
	require.NoError(t, err)
	require.Equal(t, anchor.Alarmed, u.Current)
}

// TestSetSafeRadius_RejectsInvalid leaves state and radius untouched.
func TestSetSafeRadius_RejectsInvalid(t *testing.T) {
	t.Parallel()

	w := newWatch(t)
	_, err := w.DropAnchor(anchorage)
	require.NoError(t, err)

	submit(t, w, fixFrom(t, anchorage, 150, 5))
	before := w.Verdict()

	for _, bad := range []float64{-1, 0, math.NaN(), math.Inf(1)} {
		_, err = w.SetSafeRadius(bad)
		require.ErrorIs(t, err, anchor.ErrConfiguration)
		require.Equal(t, 100.0, w.SafeRadius())
		require.Equal(t, before, w.Verdict())
	}
}

// TestDropAnchor_RequiresReset ensures a second drop fails until reset.
func TestDropAnchor_RequiresReset(t *testing.T) {
	t.Parallel()

	w := newWatch(t)
	_, err := w.DropAnchor(anchorage)
	require.NoError(t, err)

	first := w.Verdict().Anchor

	other := fixFrom(t, anchorage, 300, 5).Coordinate

	_, err = w.DropAnchor(other)
	require.ErrorIs(t, err, anchor.ErrAlreadyAnchored)
	require.ErrorIs(t, err, anchor.ErrConfiguration)
	require.ErrorIs(t, w.DropAtNextFix(), anchor.ErrAlreadyAnchored)
	require.Equal(t, first, w.Verdict().Anchor)
}

// TestDropAnchor_InvalidCoordinate fails with a configuration error and keeps NoAnchor.
func TestDropAnchor_InvalidCoordinate(t *testing.T) {
	t.Parallel()

	w := newWatch(t)

	_, err := w.DropAnchor(geo.Coordinate{Latitude: 95})
	require.ErrorIs(t, err, anchor.ErrConfiguration)
	require.ErrorIs(t, err, anchor.ErrInvalidCoordinate)
	require.Equal(t, anchor.NoAnchor, w.Status())
}

// TestReset_RemovesOldAnchorInfluence re-anchors after reset and checks distance 0.
func TestReset_RemovesOldAnchorInfluence(t *testing.T) {
	t.Parallel()

	w := newWatch(t)
	_, err := w.DropAnchor(anchorage)
	require.NoError(t, err)
	submit(t, w, fixFrom(t, anchorage, 400, 5))
	require.Equal(t, anchor.Alarmed, w.Status())

	u := w.Reset()
	require.Equal(t, anchor.Alarmed, u.Previous)
	require.Equal(t, anchor.NoAnchor, u.Current)
	require.Nil(t, w.Verdict())

	moved := fixFrom(t, anchorage, 400, 5)

	_, err = w.DropAnchor(moved.Coordinate)
	require.NoError(t, err)

	u = submit(t, w, moved)
	require.Equal(t, anchor.Safe, u.Current)
	require.Zero(t, u.Verdict.DistanceMeters)
	require.Equal(t, moved.Coordinate, u.Verdict.Anchor.Coordinate)
}

// TestDropAtNextFix_AnchorsOnFirstAcceptedFix covers the deferred drop path.
func TestDropAtNextFix_AnchorsOnFirstAcceptedFix(t *testing.T) {
	t.Parallel()

	w := newWatch(t)
	require.NoError(t, w.DropAtNextFix())
	require.True(t, w.PendingDrop())
	require.Equal(t, anchor.NoAnchor, w.Status())

	// Accuracy worse than the radius is not good enough to anchor on.
	u := submit(t, w, fixFrom(t, anchorage, 0, 150))
	require.Equal(t, filter.ReasonLowConfidence, u.Decision.Reason)
	require.Nil(t, u.Verdict)
	require.True(t, w.PendingDrop())

	ts := time.Unix(1_700_000_100, 0)
	fix := fixFrom(t, anchorage, 0, 4)
	fix.Timestamp = ts

	u = submit(t, w, fix)
	require.True(t, u.Dropped)
	require.False(t, w.PendingDrop())
	require.Equal(t, anchor.Safe, u.Current)
	require.Zero(t, u.Verdict.DistanceMeters)
	require.Equal(t, fix.Coordinate, u.Verdict.Anchor.Coordinate)
	require.Equal(t, ts, u.Verdict.Anchor.DroppedAt)
	require.Equal(t, &fix, u.Verdict.LastFix)
}

// TestDropAnchor_ReplacesPendingDrop lets a manual drop win over a deferred one.
func TestDropAnchor_ReplacesPendingDrop(t *testing.T) {
	t.Parallel()

	w := newWatch(t)
	require.NoError(t, w.DropAtNextFix())

	_, err := w.DropAnchor(anchorage)
	require.NoError(t, err)
	require.False(t, w.PendingDrop())

	u := submit(t, w, fixFrom(t, anchorage, 20, 5))
	require.False(t, u.Dropped)
	require.Equal(t, anchorage, u.Verdict.Anchor.Coordinate)
	require.Equal(t, time.Unix(1_700_000_000, 0), u.Verdict.Anchor.DroppedAt)
}

// TestSubmitFix_InvalidIsRejectedWithoutChange covers non-finite fixes.
func TestSubmitFix_InvalidIsRejectedWithoutChange(t *testing.T) {
	t.Parallel()

	w := newWatch(t)
	_, err := w.DropAnchor(anchorage)
	require.NoError(t, err)
	submit(t, w, fixFrom(t, anchorage, 30, 5))

	before := w.Verdict()

	u, err := w.SubmitFix(anchor.PositionFix{Coordinate: geo.Coordinate{Latitude: math.NaN()}})
	require.ErrorIs(t, err, anchor.ErrInvalidFix)
	require.Equal(t, filter.ReasonInvalid, u.Decision.Reason)
	require.Equal(t, before, w.Verdict())

	_, err = w.SubmitFix(anchor.PositionFix{Coordinate: anchorage, HorizontalAccuracyMeters: -1})
	require.ErrorIs(t, err, anchor.ErrInvalidFix)
	require.Equal(t, before, w.Verdict())
}

// TestSubmitFix_LowConfidenceDoesNotAlarm keeps the verdict when accuracy is worse than the radius.
func TestSubmitFix_LowConfidenceDoesNotAlarm(t *testing.T) {
	t.Parallel()

	w := newWatch(t)
	_, err := w.DropAnchor(anchorage)
	require.NoError(t, err)

	u := submit(t, w, fixFrom(t, anchorage, 300, 120))
	require.False(t, u.Decision.Accepted)
	require.Equal(t, anchor.Safe, u.Current)
	require.Nil(t, u.Verdict.LastFix)
}

// TestNew_ValidatesConfig rejects broken hysteresis settings.
func TestNew_ValidatesConfig(t *testing.T) {
	t.Parallel()

	for _, cfg := range []Config{
		{SafeRadiusMeters: 0, MarginFactor: 1, MinMarginMeters: 1},
		{SafeRadiusMeters: 10, MarginFactor: -1, MinMarginMeters: 1},
		{SafeRadiusMeters: 10, MarginFactor: 1, MinMarginMeters: math.NaN()},
	} {
		_, err := New(cfg, nil)
		require.ErrorIs(t, err, anchor.ErrConfiguration)
	}

	w, err := New(DefaultConfig(), nil)
	require.NoError(t, err)
	require.Equal(t, DefaultSafeRadiusMeters, w.SafeRadius())
	require.Equal(t, 5.0, w.Margin(5))
	require.Equal(t, 1.0, w.Margin(0.2))
}
