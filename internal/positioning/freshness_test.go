package positioning

import (
	"context"
	"sync"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/anchor-watch/internal/domain/anchor"
	"github.com/oshokin/anchor-watch/internal/domain/geo"
)

// feed is a Source driven by the test.
type feed struct {
	ch chan anchor.PositionFix
}

func (f *feed) Fixes(context.Context) (<-chan anchor.PositionFix, error) {
	return f.ch, nil
}

// signals records watchdog callbacks.
type signals struct {
	mu        sync.Mutex
	stale     int
	recovered int
}

func (s *signals) counts() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.stale, s.recovered
}

// TestFreshness_StaleOnceAndRecover checks the silence and recovery signals on a fake clock.
func TestFreshness_StaleOnceAndRecover(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		src := &feed{ch: make(chan anchor.PositionFix)}
		sig := new(signals)

		f := NewFreshness(src, 10*time.Second,
			WithStaleHandler(func(context.Context, time.Duration) {
				sig.mu.Lock()
				sig.stale++
				sig.mu.Unlock()
			}),
			WithRecoverHandler(func(context.Context) {
				sig.mu.Lock()
				sig.recovered++
				sig.mu.Unlock()
			}),
		)

		out, err := f.Fixes(ctx)
		require.NoError(t, err)

		fresh := func(lat float64) anchor.PositionFix {
			return anchor.PositionFix{
				Coordinate: geo.Coordinate{Latitude: lat, Longitude: 17.939},
				Timestamp:  time.Now(),
			}
		}

		src.ch <- fresh(1)
		require.InDelta(t, 1, (<-out).Coordinate.Latitude, 1e-9)

		time.Sleep(5 * time.Second)
		synctest.Wait()

		stale, recovered := sig.counts()
		require.Zero(t, stale)
		require.Zero(t, recovered)

		time.Sleep(40 * time.Second)
		synctest.Wait()

		stale, _ = sig.counts()
		require.Equal(t, 1, stale)

		// A fix recorded long ago does not count as the feed coming back.
		old := fresh(2)
		old.Timestamp = time.Now().Add(-time.Minute)
		src.ch <- old

		src.ch <- fresh(3)
		require.InDelta(t, 3, (<-out).Coordinate.Latitude, 1e-9)

		stale, recovered = sig.counts()
		require.Equal(t, 1, stale)
		require.Equal(t, 1, recovered)

		close(src.ch)

		_, ok := <-out
		require.False(t, ok)

		// The end of the feed is reported like silence.
		stale, _ = sig.counts()
		require.Equal(t, 2, stale)
	})
}
