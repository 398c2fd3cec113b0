package integration

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/anchor-watch/internal/config"
	"github.com/oshokin/anchor-watch/internal/domain/anchor"
	"github.com/oshokin/anchor-watch/internal/domain/geo"
)

// writeDriftTrack records a track that holds position, then drags away.
func writeDriftTrack(t *testing.T, holding, dragging int) string {
	t.Helper()

	var b strings.Builder

	b.WriteString("fixes:\n")

	for i := range holding + dragging {
		distance := 5.0
		if i >= holding {
			distance = 400 + float64(i-holding)*10
		}

		c, err := geo.Destination(anchorage, 90, distance)
		require.NoError(t, err)

		fmt.Fprintf(&b, "  - {latitude: %.7f, longitude: %.7f, accuracy_m: 4}\n", c.Latitude, c.Longitude)
	}

	path := filepath.Join(t.TempDir(), "track.yaml")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o600))

	return path
}

// TestTrackReplay_DeferredDropThenDrag anchors on the first replayed fix and
// alarms once the track drags away; the feed then goes stale.
func TestTrackReplay_DeferredDropThenDrag(t *testing.T) {
	t.Parallel()

	settings := config.Default()
	settings.ServerAddress = reservePort(t)
	settings.MetricsAddress = reservePort(t)
	settings.Positioning.TrackFile = writeDriftTrack(t, 30, 10)
	settings.Positioning.ReplayInterval = 50 * time.Millisecond
	settings.Positioning.StaleAfter = 300 * time.Millisecond

	client := startServer(t, settings)
	ctx := context.Background()

	snap, err := client.DropAtNextFix(ctx)
	require.NoError(t, err)

	// The track may already have delivered the next fix by the time the reply is built.
	if snap.Status == anchor.NoAnchor {
		require.True(t, snap.PendingDrop)
	}

	require.Eventually(t, func() bool {
		current, getErr := client.GetVerdict(ctx)

		return getErr == nil && current.Status == anchor.Safe
	}, 5*time.Second, 10*time.Millisecond, "deferred drop did not complete")

	require.Eventually(t, func() bool {
		current, getErr := client.GetVerdict(ctx)

		return getErr == nil && current.Status == anchor.Alarmed
	}, 10*time.Second, 20*time.Millisecond, "dragging track did not alarm")

	require.Eventually(t, func() bool {
		return strings.Contains(scrape(t, settings.MetricsAddress), "anchorwatch_positioning_stale 1")
	}, 10*time.Second, 50*time.Millisecond, "silent feed was not reported stale")
}
