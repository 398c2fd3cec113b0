package filter

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/anchor-watch/internal/domain/anchor"
	"github.com/oshokin/anchor-watch/internal/domain/geo"
)

var origin = geo.Coordinate{Latitude: 42.68830, Longitude: 17.93900}

func fixAt(t *testing.T, bearing, distance, accuracy float64, ts time.Time) *anchor.PositionFix {
	t.Helper()

	c, err := geo.Destination(origin, bearing, distance)
	require.NoError(t, err)

	return &anchor.PositionFix{
		Coordinate:               c,
		HorizontalAccuracyMeters: accuracy,
		Timestamp:                ts,
	}
}

// TestEvaluate_DefaultConfigAcceptsEverythingValid checks the default policy rejects nothing outright.
func TestEvaluate_DefaultConfigAcceptsEverythingValid(t *testing.T) {
	t.Parallel()

	f := New(DefaultConfig())
	now := time.Now()

	d := f.Evaluate(fixAt(t, 0, 0, 500, now), nil, 0)
	require.True(t, d.Accepted)
	require.Equal(t, ReasonAccepted, d.Reason)
	require.Equal(t, 500.0, d.EffectiveAccuracyMeters)
	require.True(t, d.AccuracyKnown)

	// Unknown accuracy is replaced, never trusted as perfect.
	d = f.Evaluate(fixAt(t, 0, 0, 0, now), nil, 0)
	require.True(t, d.Accepted)
	require.False(t, d.AccuracyKnown)
	require.Equal(t, DefaultAssumedAccuracyMeters, d.EffectiveAccuracyMeters)
}

// TestEvaluate_Reasons walks each rejection path.
func TestEvaluate_Reasons(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	prev := fixAt(t, 0, 0, 3, now)

	f := New(Config{
		MaxAccuracyMeters:       20,
		MaxSpeedMetersPerSecond: 5,
		AssumedAccuracyMeters:   10,
	})

	cases := []struct {
		name   string
		fix    *anchor.PositionFix
		radius float64
		want   Reason
	}{
		{
			name: "nil",
			fix:  nil,
			want: ReasonInvalid,
		},
		{
			name: "nan latitude",
			fix:  &anchor.PositionFix{Coordinate: geo.Coordinate{Latitude: math.NaN()}},
			want: ReasonInvalid,
		},
		{
			name: "negative accuracy",
			fix:  &anchor.PositionFix{Coordinate: origin, HorizontalAccuracyMeters: -2},
			want: ReasonInvalid,
		},
		{
			name: "older than previous",
			fix:  fixAt(t, 0, 1, 3, now.Add(-time.Second)),
			want: ReasonOutOfOrder,
		},
		{
			name: "worse than ceiling",
			fix:  fixAt(t, 0, 1, 25, now.Add(time.Second)),
			want: ReasonAccuracyCeiling,
		},
		{
			name: "teleport",
			fix:  fixAt(t, 90, 200, 3, now.Add(2*time.Second)),
			want: ReasonImplausibleJump,
		},
		{
			name:   "worse than radius",
			fix:    fixAt(t, 0, 1, 15, now.Add(time.Second)),
			radius: 12,
			want:   ReasonLowConfidence,
		},
		{
			name:   "unknown accuracy uses the assumed value",
			fix:    fixAt(t, 0, 1, 0, now.Add(time.Second)),
			radius: 8,
			want:   ReasonLowConfidence,
		},
		{
			name:   "slow drift",
			fix:    fixAt(t, 90, 30, 3, now.Add(10*time.Second)),
			radius: 50,
			want:   ReasonAccepted,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			d := f.Evaluate(tc.fix, prev, tc.radius)
			require.Equal(t, tc.want, d.Reason, tc.want.String())
			require.Equal(t, tc.want == ReasonAccepted, d.Accepted)
		})
	}
}

// TestAccept_IgnoresRadius ensures Accept skips the low-confidence check.
func TestAccept_IgnoresRadius(t *testing.T) {
	t.Parallel()

	f := New(DefaultConfig())
	now := time.Now()

	require.True(t, f.Accept(fixAt(t, 0, 0, 1000, now), nil))
	require.False(t, f.Accept(fixAt(t, 0, 0, 5, now), fixAt(t, 0, 0, 5, now.Add(time.Minute))))

	// Missing timestamps never count as out of order or as jumps.
	require.True(t, f.Accept(fixAt(t, 0, 0, 5, time.Time{}), fixAt(t, 0, 0, 5, now)))
}

// TestNew_NegativeSettingsDisableChecks verifies negative values are clamped to disabled.
func TestNew_NegativeSettingsDisableChecks(t *testing.T) {
	t.Parallel()

	f := New(Config{MaxAccuracyMeters: -1, MaxSpeedMetersPerSecond: -1, AssumedAccuracyMeters: -1})
	require.Equal(t, Config{}, f.Config())

	require.Equal(t, "unknown", Reason(42).String())
}
