package controller

import (
	"context"

	"github.com/oshokin/anchor-watch/internal/domain/anchor"
	"github.com/oshokin/anchor-watch/internal/domain/geo"
)

// Command is one mutation for Execute. Build it with the constructors below.
type Command struct {
	run func(ctx context.Context, c *Controller) error
}

// DropAnchorCommand sets the anchor at coordinate.
func DropAnchorCommand(coordinate geo.Coordinate) Command {
	return Command{run: func(ctx context.Context, c *Controller) error {
		_, err := c.dropAnchor(ctx, coordinate)

		return err
	}}
}

// DropAtNextFixCommand arms a deferred drop.
func DropAtNextFixCommand() Command {
	return Command{run: func(ctx context.Context, c *Controller) error {
		return c.dropAtNextFix(ctx)
	}}
}

// ResetCommand clears the anchor and any pending drop.
func ResetCommand() Command {
	return Command{run: func(ctx context.Context, c *Controller) error {
		c.reset(ctx)

		return nil
	}}
}

// SetSafeRadiusCommand changes the safe radius.
func SetSafeRadiusCommand(meters float64) Command {
	return Command{run: func(ctx context.Context, c *Controller) error {
		_, err := c.setSafeRadius(ctx, meters)

		return err
	}}
}

// SubmitFixCommand feeds one fix into the watch.
func SubmitFixCommand(fix anchor.PositionFix) Command {
	return Command{run: func(ctx context.Context, c *Controller) error {
		_, err := c.submitFix(ctx, fix)

		return err
	}}
}

// Execute runs cmd and returns the state it left behind, both under the write
// lock, so no other writer can slip in between. A zero Command is a no-op.
func (c *Controller) Execute(ctx context.Context, cmd Command) (Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cmd.run != nil {
		if err := cmd.run(ctx, c); err != nil {
			return Snapshot{}, err
		}
	}

	return c.snapshot(), nil
}
