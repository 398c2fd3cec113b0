package positioning

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/oshokin/anchor-watch/internal/domain/anchor"
	"github.com/oshokin/anchor-watch/internal/domain/geo"
)

// Source supplies position fixes. The channel is closed when the feed ends.
type Source interface {
	Fixes(ctx context.Context) (<-chan anchor.PositionFix, error)
}

// ErrNotFound is returned when the track file does not exist.
var ErrNotFound = errors.New("track file not found")

// trackDocument is the on-disk layout of a track file.
type trackDocument struct {
	Fixes []trackPoint `yaml:"fixes"`
}

type trackPoint struct {
	Latitude       float64   `yaml:"latitude"`
	Longitude      float64   `yaml:"longitude"`
	AccuracyMeters float64   `yaml:"accuracy_m,omitempty"`
	Timestamp      time.Time `yaml:"timestamp,omitempty"`
}

// TrackFile replays fixes recorded in a YAML file.
//
//	fixes:
//	  - {latitude: 42.6883, longitude: 17.939, accuracy_m: 5}
//	  - {latitude: 42.6890, longitude: 17.939, accuracy_m: 5, timestamp: 2024-07-01T22:00:00Z}
type TrackFile struct {
	// path is the filesystem location of the track.
	path string
	// interval is the delay between replayed fixes.
	interval time.Duration
	// now stamps fixes recorded without a timestamp.
	now func() time.Time
	// rebase shifts recorded timestamps so the first one lands at replay time.
	rebase bool
}

// TrackOption configures a TrackFile.
type TrackOption func(*TrackFile)

// WithRebasedTimestamps keeps the spacing of recorded timestamps but moves
// them so the first recorded one equals the moment it is replayed.
func WithRebasedTimestamps() TrackOption {
	return func(t *TrackFile) {
		t.rebase = true
	}
}

// NewTrackFile creates a replay source for path, emitting one fix per interval.
func NewTrackFile(path string, interval time.Duration, opts ...TrackOption) *TrackFile {
	t := &TrackFile{
		path:     filepath.Clean(path),
		interval: interval,
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

// Load reads and validates the whole track.
func (t *TrackFile) Load(_ context.Context) ([]anchor.PositionFix, error) {
	contents, err := os.ReadFile(t.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("read track file: %w", err)
	}

	var doc trackDocument
	if err = yaml.Unmarshal(contents, &doc); err != nil {
		return nil, fmt.Errorf("decode track file: %w", err)
	}

	fixes := make([]anchor.PositionFix, 0, len(doc.Fixes))

	for i, p := range doc.Fixes {
		fix := anchor.PositionFix{
			Coordinate: geo.Coordinate{
				Latitude:  p.Latitude,
				Longitude: p.Longitude,
			},
			HorizontalAccuracyMeters: p.AccuracyMeters,
			Timestamp:                p.Timestamp,
		}

		if err = fix.Validate(); err != nil {
			return nil, fmt.Errorf("track fix #%d: %w", i+1, err)
		}

		fixes = append(fixes, fix)
	}

	return fixes, nil
}

// Fixes loads the track and replays it, first fix immediately. The channel
// is closed after the last fix or when ctx is canceled.
func (t *TrackFile) Fixes(ctx context.Context) (<-chan anchor.PositionFix, error) {
	fixes, err := t.Load(ctx)
	if err != nil {
		return nil, err
	}

	out := make(chan anchor.PositionFix)

	go func() {
		defer close(out)

		var (
			ticker  *time.Ticker
			offset  time.Duration
			rebased bool
		)

		if t.interval > 0 {
			ticker = time.NewTicker(t.interval)
			defer ticker.Stop()
		}

		for i, fix := range fixes {
			if i > 0 && ticker != nil {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
				}
			}

			switch {
			case fix.Timestamp.IsZero():
				fix.Timestamp = t.now()
			case t.rebase:
				if !rebased {
					offset, rebased = t.now().Sub(fix.Timestamp), true
				}

				fix.Timestamp = fix.Timestamp.Add(offset)
			}

			select {
			case <-ctx.Done():
				return
			case out <- fix:
			}
		}
	}()

	return out, nil
}
