package ctl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/oshokin/anchor-watch/internal/domain/anchor"
	"github.com/oshokin/anchor-watch/internal/domain/geo"
	"github.com/oshokin/anchor-watch/internal/logger"
	"github.com/oshokin/anchor-watch/internal/service/common"
)

// DefaultRetryInterval is the delay before Follow reconnects.
const DefaultRetryInterval = 2 * time.Second

// Drop sets the anchor at coordinate.
func Drop(coordinate geo.Coordinate) Operation {
	return func(ctx context.Context, client *common.Client, out io.Writer) error {
		snap, err := client.DropAnchor(ctx, coordinate)
		if err != nil {
			return err
		}

		return printLine(out, FormatSnapshot(snap))
	}
}

// DropAtNextFix arms a deferred drop.
func DropAtNextFix() Operation {
	return func(ctx context.Context, client *common.Client, out io.Writer) error {
		snap, err := client.DropAtNextFix(ctx)
		if err != nil {
			return err
		}

		return printLine(out, FormatSnapshot(snap))
	}
}

// Reset clears the anchor.
func Reset() Operation {
	return func(ctx context.Context, client *common.Client, out io.Writer) error {
		if err := client.Reset(ctx); err != nil {
			return err
		}

		snap, err := client.GetVerdict(ctx)
		if err != nil {
			return err
		}

		return printLine(out, FormatSnapshot(snap))
	}
}

// SetRadius changes the safe radius.
func SetRadius(meters float64) Operation {
	return func(ctx context.Context, client *common.Client, out io.Writer) error {
		snap, err := client.SetSafeRadius(ctx, meters)
		if err != nil {
			return err
		}

		return printLine(out, FormatSnapshot(snap))
	}
}

// Status prints the current state.
func Status() Operation {
	return func(ctx context.Context, client *common.Client, out io.Writer) error {
		snap, err := client.GetVerdict(ctx)
		if err != nil {
			return err
		}

		return printLine(out, FormatSnapshot(snap))
	}
}

// SubmitFix feeds one manual fix.
func SubmitFix(fix anchor.PositionFix) Operation {
	return func(ctx context.Context, client *common.Client, out io.Writer) error {
		snap, err := client.SubmitFix(ctx, fix)
		if err != nil {
			return err
		}

		return printLine(out, FormatSnapshot(snap))
	}
}

// Follow prints the current state and then every change event until ctx
// ends, reconnecting after retry when the stream breaks.
func Follow(retry time.Duration) Operation {
	if retry <= 0 {
		retry = DefaultRetryInterval
	}

	return func(ctx context.Context, client *common.Client, out io.Writer) error {
		for {
			err := followOnce(ctx, client, out)
			if ctx.Err() != nil {
				logger.Info(ctx, "Context canceled, exiting")

				return nil
			}

			if errors.Is(err, errOutput) {
				return err
			}

			logger.WarnKV(ctx, "Event stream interrupted, reconnecting",
				"error", err,
				"retry_in", retry.String(),
			)

			timer := time.NewTimer(retry)

			select {
			case <-ctx.Done():
				timer.Stop()

				return nil
			case <-timer.C:
			}
		}
	}
}

// errOutput marks failures to print, which reconnecting cannot fix.
var errOutput = errors.New("write output")

func followOnce(ctx context.Context, client *common.Client, out io.Writer) error {
	stream, err := client.WatchEvents(ctx)
	if err != nil {
		return err
	}

	defer stream.Close()

	// Subscribed first so nothing between the snapshot and the stream is lost.
	snap, err := client.GetVerdict(ctx)
	if err != nil {
		return err
	}

	if err = printLine(out, FormatSnapshot(snap)); err != nil {
		return err
	}

	for {
		e, recvErr := stream.Recv()
		if recvErr != nil {
			return recvErr
		}

		if err = printLine(out, FormatEvent(e)); err != nil {
			return err
		}
	}
}

func printLine(out io.Writer, line string) error {
	if _, err := fmt.Fprintln(out, line); err != nil {
		return fmt.Errorf("%w: %w", errOutput, err)
	}

	return nil
}
