package server

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/oshokin/anchor-watch/internal/config"
	"github.com/oshokin/anchor-watch/internal/domain/filter"
	"github.com/oshokin/anchor-watch/internal/domain/watch"
	"github.com/oshokin/anchor-watch/internal/logger"
	"github.com/oshokin/anchor-watch/internal/observability"
	"github.com/oshokin/anchor-watch/internal/positioning"
	"github.com/oshokin/anchor-watch/internal/service/alert"
	"github.com/oshokin/anchor-watch/internal/service/controller"
)

// newController builds the filter, the watch and its controller from settings.
func newController(settings *config.Config, recorder controller.Recorder) (*controller.Controller, error) {
	w, err := watch.New(settings.Watch.HysteresisConfig(), filter.New(settings.Watch.FilterConfig()))
	if err != nil {
		return nil, err
	}

	return controller.New(w, controller.WithRecorder(recorder)), nil
}

// startAlerts runs the alert command on every alarm until ctx ends.
func startAlerts(
	ctx context.Context,
	group *errgroup.Group,
	ctrl *controller.Controller,
	settings *config.AlertConfig,
) error {
	runner, err := alert.NewCommand(settings.Command)
	if err != nil {
		return err
	}

	sub := ctrl.Subscribe(0)

	group.Go(func() error {
		defer sub.Close()

		return alert.Run(ctx, sub, &alert.Options{
			Runner:      runner,
			RepeatEvery: settings.RepeatEvery,
		})
	})

	return nil
}

// attachTrack replays a track file into the controller behind a freshness
// watchdog that drives the stale gauge.
func attachTrack(
	ctx context.Context,
	group *errgroup.Group,
	ctrl *controller.Controller,
	settings *config.PositioningConfig,
	metrics *observability.Collector,
) error {
	ctx = logger.WithKV(ctx, "track_file", settings.TrackFile)

	track := positioning.NewTrackFile(settings.TrackFile, settings.ReplayInterval, positioning.WithRebasedTimestamps())

	source := positioning.NewFreshness(track, settings.StaleAfter,
		positioning.WithStaleHandler(func(ctx context.Context, silence time.Duration) {
			metrics.SetStale(true)
			logger.WarnKV(ctx, "Positioning feed is stale", "silence", silence.String())
		}),
		positioning.WithRecoverHandler(func(ctx context.Context) {
			metrics.SetStale(false)
			logger.Info(ctx, "Positioning feed recovered")
		}),
	)

	attachment, err := ctrl.Attach(ctx, source)
	if err != nil {
		return err
	}

	logger.InfoKV(ctx, "Replaying track", "replay_interval", settings.ReplayInterval.String())

	group.Go(func() error {
		select {
		case <-ctx.Done():
		case <-attachment.Done():
			logger.Info(ctx, "Track replay finished")
		}

		attachment.Close()

		return nil
	})

	return nil
}
