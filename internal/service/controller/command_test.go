package controller

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/anchor-watch/internal/domain/anchor"
	"github.com/oshokin/anchor-watch/internal/domain/geo"
)

// TestExecute_ReturnsStateOfItsOwnCommand runs competing radius changes; each
// reply must carry the radius it asked for.
func TestExecute_ReturnsStateOfItsOwnCommand(t *testing.T) {
	t.Parallel()

	c := newController(t)
	ctx := context.Background()

	_, err := c.Execute(ctx, DropAnchorCommand(anchorage))
	require.NoError(t, err)

	var wg sync.WaitGroup

	for i := range 64 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			want := float64(50 + i)

			snap, execErr := c.Execute(ctx, SetSafeRadiusCommand(want))
			checkRadius(t, want, snap, execErr)
		}()
	}

	wg.Wait()
}

// checkRadius uses t.Errorf because it runs off the test goroutine.
func checkRadius(t *testing.T, want float64, snap Snapshot, err error) {
	t.Helper()

	switch {
	case err != nil:
		t.Errorf("set radius %v: %v", want, err)
	case snap.SafeRadiusMeters != want || snap.Verdict == nil || snap.Verdict.SafeRadiusMeters != want:
		t.Errorf("set radius %v: reply shows %v", want, snap.SafeRadiusMeters)
	}
}

// TestExecute_ManualDropClearsPendingDrop ends the deferred drop once an anchor is set.
func TestExecute_ManualDropClearsPendingDrop(t *testing.T) {
	t.Parallel()

	c := newController(t)
	ctx := context.Background()

	snap, err := c.Execute(ctx, DropAtNextFixCommand())
	require.NoError(t, err)
	require.True(t, snap.PendingDrop)

	snap, err = c.Execute(ctx, DropAnchorCommand(anchorage))
	require.NoError(t, err)
	require.Equal(t, anchor.Safe, snap.Status)
	require.False(t, snap.PendingDrop)

	snap, err = c.Execute(ctx, SubmitFixCommand(fixAt(t, 20, 5)))
	require.NoError(t, err)
	require.False(t, snap.PendingDrop)
	require.Equal(t, anchorage, snap.Verdict.Anchor.Coordinate)
}

// TestExecute_ErrorsLeaveNoSnapshot returns the zero snapshot with the error.
func TestExecute_ErrorsLeaveNoSnapshot(t *testing.T) {
	t.Parallel()

	c := newController(t)
	ctx := context.Background()

	snap, err := c.Execute(ctx, SetSafeRadiusCommand(-1))
	require.ErrorIs(t, err, anchor.ErrConfiguration)
	require.Equal(t, Snapshot{}, snap)

	_, err = c.Execute(ctx, DropAnchorCommand(geo.Coordinate{Latitude: 95}))
	require.ErrorIs(t, err, anchor.ErrConfiguration)

	_, err = c.Execute(ctx, DropAnchorCommand(anchorage))
	require.NoError(t, err)

	_, err = c.Execute(ctx, DropAtNextFixCommand())
	require.ErrorIs(t, err, anchor.ErrAlreadyAnchored)

	snap, err = c.Execute(ctx, ResetCommand())
	require.NoError(t, err)
	require.Equal(t, anchor.NoAnchor, snap.Status)

	// The zero command only reads.
	snap, err = c.Execute(ctx, Command{})
	require.NoError(t, err)
	require.Equal(t, c.Snapshot(), snap)
}
