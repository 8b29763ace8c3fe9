package compositor

import (
	"context"

	"github.com/tidwall/gjson"

	"barbridge/internal/domain"
)

// SubscribeKeymode returns a receive end for binding-mode changes. The
// latest known mode, if any, is replayed to new subscribers; there is no
// synchronous initial query for modes, so a subscriber attaching before the
// first change sees nothing until one occurs.
func (c *Client) SubscribeKeymode(ctx context.Context) (<-chan domain.KeymodeEvent, func(), error) {
	c.modeOnce.Do(func() {
		c.modeErr = c.controller.EnsureSubscription(ctx, domain.EventMode, func(ev *domain.RawEvent) {
			c.modeCast.Publish(domain.KeymodeEvent{
				Name:        gjson.GetBytes(ev.Payload, "change").String(),
				PangoMarkup: gjson.GetBytes(ev.Payload, "pango_markup").Bool(),
			})
		})
	})
	if c.modeErr != nil {
		return nil, nil, c.modeErr
	}

	ch, cancel := c.modeCast.SubscribeReplay()
	return ch, cancel, nil
}
