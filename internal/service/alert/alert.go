package alert

import (
	"context"
	"errors"
	"os/exec"
	"time"

	"github.com/oshokin/anchor-watch/internal/domain/anchor"
	"github.com/oshokin/anchor-watch/internal/logger"
	"github.com/oshokin/anchor-watch/internal/service/controller"
)

// ErrNoCommand indicates an empty alert command.
var ErrNoCommand = errors.New("alert command is empty")

// Runner starts the alert. Start must not wait for the alert to finish.
type Runner interface {
	Start(ctx context.Context) error
}

// Command runs an external program, e.g. a sound player or notifier.
type Command struct {
	// Name is the program to run.
	Name string
	// Args are passed to the program.
	Args []string
}

// NewCommand builds a Command from a command line split into words.
func NewCommand(argv []string) (*Command, error) {
	if len(argv) == 0 || argv[0] == "" {
		return nil, ErrNoCommand
	}

	return &Command{
		Name: argv[0],
		Args: argv[1:],
	}, nil
}

// Start launches the program asynchronously and reaps it in the background.
func (c *Command) Start(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)

	if err := cmd.Start(); err != nil {
		return err
	}

	go func() {
		if err := cmd.Wait(); err != nil {
			logger.WarnKV(ctx, "Alert command failed", "command", c.Name, "error", err)
		}
	}()

	return nil
}

// Options controls the alert loop.
type Options struct {
	// Runner sounds the alarm.
	Runner Runner
	// RepeatEvery re-runs the alarm while still alarmed; 0 runs it once per alarm.
	RepeatEvery time.Duration
}

// Run sounds the alarm on every transition into Alarmed until ctx is canceled
// or the subscription is closed.
func Run(ctx context.Context, sub *controller.Subscription, opts *Options) error {
	ctx = logger.WithName(ctx, "alert")

	if opts.Runner == nil {
		return ErrNoCommand
	}

	var (
		repeat  *time.Ticker
		repeatC <-chan time.Time
	)

	stopRepeat := func() {
		if repeat != nil {
			repeat.Stop()
			repeat, repeatC = nil, nil
		}
	}
	defer stopRepeat()

	sound := func() {
		if err := opts.Runner.Start(ctx); err != nil {
			logger.ErrorKV(ctx, "Unable to sound the alarm", "error", err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-repeatC:
			logger.Info(ctx, "Still alarmed, sounding again")
			sound()
		case e, ok := <-sub.Events():
			if !ok {
				return nil
			}

			if e.Current != anchor.Alarmed {
				stopRepeat()

				continue
			}

			if e.Kind != controller.EventTransition || repeat != nil {
				continue
			}

			distance := 0.0
			if e.Verdict != nil {
				distance = e.Verdict.DistanceMeters
			}

			logger.WarnKV(ctx, "Anchor alarm", "distance_m", distance)
			sound()

			if opts.RepeatEvery > 0 {
				repeat = time.NewTicker(opts.RepeatEvery)
				repeatC = repeat.C
			}
		}
	}
}
