package compositor

import (
	"context"
	"encoding/json"

	"github.com/tidwall/gjson"

	"barbridge/internal/domain"
	"barbridge/internal/infra/tracer"
)

// SubscribeWorkspaces returns a receive end primed with an Init snapshot of
// the current workspace set, followed by incremental updates fanned out to
// every subscriber. The snapshot is queried synchronously at call time, so
// each caller's Init reflects state at-or-after its subscribe.
//
// The workspace listener is registered once per process; if that
// registration fails, the compositor source is unusable until the client is
// recreated, and every subsequent call reports the same error.
func (c *Client) SubscribeWorkspaces(ctx context.Context) (<-chan domain.WorkspaceUpdate, func(), error) {
	ctx, span := tracer.StartSpan(ctx, "compositor.SubscribeWorkspaces")
	defer span.End()

	workspaces, err := c.Workspaces(ctx)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, nil, err
	}

	c.wsOnce.Do(func() {
		c.wsErr = c.controller.EnsureSubscription(ctx, domain.EventWorkspace, func(ev *domain.RawEvent) {
			c.wsCast.Publish(projectWorkspaceEvent(ev.Payload))
		})
	})
	if c.wsErr != nil {
		tracer.RecordError(span, c.wsErr)
		return nil, nil, c.wsErr
	}

	ch, cancel := c.wsCast.SubscribeSeeded(domain.WorkspaceUpdate{
		Kind:       domain.WorkspaceInit,
		Workspaces: workspaces,
	})
	return ch, cancel, nil
}

// projectWorkspaceEvent maps one raw workspace event payload to a domain
// update. Change values the bridge does not recognize, and payloads missing
// the node they should carry, become Unknown updates: the stream keeps
// flowing when the compositor grows new event shapes.
func projectWorkspaceEvent(payload []byte) domain.WorkspaceUpdate {
	change := gjson.GetBytes(payload, "change").String()

	current := parseEventNode(payload, "current")
	switch change {
	case "init":
		if current == nil {
			return domain.WorkspaceUpdate{Kind: domain.WorkspaceUnknown}
		}
		return domain.WorkspaceUpdate{Kind: domain.WorkspaceAdd, Workspace: current}
	case "empty":
		if current == nil {
			return domain.WorkspaceUpdate{Kind: domain.WorkspaceUnknown}
		}
		return domain.WorkspaceUpdate{Kind: domain.WorkspaceRemove, RemovedID: current.ID}
	case "move":
		if current == nil {
			return domain.WorkspaceUpdate{Kind: domain.WorkspaceUnknown}
		}
		return domain.WorkspaceUpdate{Kind: domain.WorkspaceMove, Workspace: current}
	case "focus":
		if current == nil {
			return domain.WorkspaceUpdate{Kind: domain.WorkspaceUnknown}
		}
		return domain.WorkspaceUpdate{
			Kind: domain.WorkspaceFocus,
			Old:  parseEventNode(payload, "old"), // nil when nothing was focused
			New:  current,
		}
	default:
		return domain.WorkspaceUpdate{Kind: domain.WorkspaceUnknown}
	}
}

// parseEventNode extracts the named workspace node from an event payload,
// returning nil when absent or null.
func parseEventNode(payload []byte, field string) *domain.Workspace {
	node := gjson.GetBytes(payload, field)
	if !node.Exists() || node.Type == gjson.Null {
		return nil
	}
	var n workspaceNode
	if err := json.Unmarshal([]byte(node.Raw), &n); err != nil {
		return nil
	}
	ws := n.toDomain()
	return &ws
}
