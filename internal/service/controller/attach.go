package controller

import (
	"context"
	"errors"
	"sync"

	"github.com/oshokin/anchor-watch/internal/domain/anchor"
	"github.com/oshokin/anchor-watch/internal/logger"
)

// ErrAlreadyAttached is returned by Attach while another feed is attached.
var ErrAlreadyAttached = errors.New("a positioning feed is already attached")

// Source supplies position fixes. The channel is closed when the feed ends.
type Source interface {
	Fixes(ctx context.Context) (<-chan anchor.PositionFix, error)
}

// Attachment is the controller's single subscription to a positioning feed.
type Attachment struct {
	owner  *Controller
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Attach subscribes the controller to src and funnels every fix into
// SubmitFix until ctx is canceled, the feed ends, or the attachment is closed.
// Only one attachment may be live at a time.
func (c *Controller) Attach(ctx context.Context, src Source) (*Attachment, error) {
	c.attachMu.Lock()
	defer c.attachMu.Unlock()

	if c.attached != nil {
		return nil, ErrAlreadyAttached
	}

	feedCtx, cancel := context.WithCancel(ctx)

	fixes, err := src.Fixes(feedCtx)
	if err != nil {
		cancel()

		return nil, err
	}

	a := &Attachment{
		owner:  c,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	c.attached = a

	go a.pump(feedCtx, fixes)

	return a, nil
}

// Done is closed once the attachment has stopped and been released.
func (a *Attachment) Done() <-chan struct{} {
	return a.done
}

// Close stops the feed, waits for the pump to exit and releases the slot.
// Safe to call more than once.
func (a *Attachment) Close() {
	a.once.Do(a.cancel)
	<-a.done
}

func (a *Attachment) pump(ctx context.Context, fixes <-chan anchor.PositionFix) {
	defer close(a.done)
	defer a.release()

	for {
		select {
		case <-ctx.Done():
			return
		case fix, ok := <-fixes:
			if !ok {
				logger.Info(ctx, "Positioning feed ended")

				return
			}

			// Errors are logged by SubmitFix; a bad fix must not stop the feed.
			_, _ = a.owner.SubmitFix(ctx, fix)
		}
	}
}

func (a *Attachment) release() {
	a.cancel()

	c := a.owner

	c.attachMu.Lock()
	defer c.attachMu.Unlock()

	if c.attached == a {
		c.attached = nil
	}
}
