package positioning

import (
	"context"
	"time"

	"github.com/oshokin/anchor-watch/internal/domain/anchor"
	"github.com/oshokin/anchor-watch/internal/logger"
)

// Freshness forwards fixes from a source and watches for silence.
//
// Fixes whose timestamp is older than staleAfter are dropped. When no fix
// arrives for staleAfter, or the wrapped feed ends, the stale handler runs
// once; the recover handler runs when fixes resume.
type Freshness struct {
	source     Source
	staleAfter time.Duration
	onStale    func(ctx context.Context, silence time.Duration)
	onRecover  func(ctx context.Context)
	now        func() time.Time
}

// FreshnessOption configures a Freshness watchdog.
type FreshnessOption func(*Freshness)

// WithStaleHandler is called once each time the feed goes silent.
func WithStaleHandler(fn func(ctx context.Context, silence time.Duration)) FreshnessOption {
	return func(f *Freshness) {
		if fn != nil {
			f.onStale = fn
		}
	}
}

// WithRecoverHandler is called when a stale feed delivers a fresh fix.
func WithRecoverHandler(fn func(ctx context.Context)) FreshnessOption {
	return func(f *Freshness) {
		if fn != nil {
			f.onRecover = fn
		}
	}
}

// NewFreshness wraps source with a staleness timeout.
func NewFreshness(source Source, staleAfter time.Duration, opts ...FreshnessOption) *Freshness {
	f := &Freshness{
		source:     source,
		staleAfter: staleAfter,
		onStale: func(ctx context.Context, silence time.Duration) {
			logger.WarnKV(ctx, "Positioning feed is stale", "silence", silence.String())
		},
		onRecover: func(ctx context.Context) {
			logger.Info(ctx, "Positioning feed recovered")
		},
		now: time.Now,
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// Fixes starts the wrapped source and returns the filtered feed.
func (f *Freshness) Fixes(ctx context.Context) (<-chan anchor.PositionFix, error) {
	in, err := f.source.Fixes(ctx)
	if err != nil {
		return nil, err
	}

	out := make(chan anchor.PositionFix)

	go f.run(ctx, in, out)

	return out, nil
}

func (f *Freshness) run(ctx context.Context, in <-chan anchor.PositionFix, out chan<- anchor.PositionFix) {
	defer close(out)

	timer := time.NewTimer(f.staleAfter)
	defer timer.Stop()

	stale := false
	lastSeen := f.now()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			if !stale {
				stale = true
				f.onStale(ctx, f.staleAfter)
			}
		case fix, ok := <-in:
			if !ok {
				// An ended feed never recovers.
				if !stale {
					f.onStale(ctx, f.now().Sub(lastSeen))
				}

				return
			}

			if age := f.now().Sub(fix.Timestamp); !fix.Timestamp.IsZero() && age > f.staleAfter {
				logger.DebugKV(ctx, "Dropping stale fix", "age", age.String())

				continue
			}

			if stale {
				stale = false
				f.onRecover(ctx)
			}

			lastSeen = f.now()
			timer.Reset(f.staleAfter)

			select {
			case <-ctx.Done():
				return
			case out <- fix:
			}
		}
	}
}
