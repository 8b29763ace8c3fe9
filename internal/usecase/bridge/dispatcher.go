package bridge

import (
	"context"
	"errors"
	"io"

	"barbridge/internal/domain"
)

// dispatch is the body of the background task: read raw events off the
// stream and invoke matching callbacks in registration order until the
// stream ends, errors, or the task is cancelled.
func (c *Controller) dispatch(ctx context.Context, stream EventStream, entries []entry) error {
	for {
		ev, err := stream.Next(ctx)
		if err != nil {
			switch {
			case errors.Is(err, context.Canceled):
				return nil
			case errors.Is(err, io.EOF):
				c.logger.Info("event stream ended")
				return io.EOF
			default:
				c.logger.Error("event stream failed", "error", err)
				return err
			}
		}

		ev.Seq = c.seq.Add(1)

		c.logger.Debug("event", "kind", ev.Kind, "seq", ev.Seq)

		for i := range entries {
			if entries[i].kind == ev.Kind {
				c.invoke(entries[i].cb, ev)
			}
		}
	}
}

// invoke runs one callback, isolating panics so a failing callback cannot
// kill sibling callbacks or the dispatcher task itself.
func (c *Controller) invoke(cb domain.Callback, ev *domain.RawEvent) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("listener callback panicked",
				"kind", ev.Kind,
				"seq", ev.Seq,
				"panic", r,
			)
		}
	}()
	cb(ev)
}
