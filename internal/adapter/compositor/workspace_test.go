package compositor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"barbridge/internal/domain"
)

func TestProjectWorkspaceEventInit(t *testing.T) {
	up := projectWorkspaceEvent([]byte(`{
		"change": "init",
		"current": {"id": 7, "name": "3", "output": "DP-1", "focused": false, "visible": false}
	}`))

	assert.Equal(t, domain.WorkspaceAdd, up.Kind)
	require.NotNil(t, up.Workspace)
	assert.Equal(t, int64(7), up.Workspace.ID)
	assert.Equal(t, "3", up.Workspace.Name)
	assert.Equal(t, "DP-1", up.Workspace.Monitor)
	assert.Equal(t, domain.VisibilityHidden, up.Workspace.Visibility)
}

func TestProjectWorkspaceEventEmpty(t *testing.T) {
	up := projectWorkspaceEvent([]byte(`{
		"change": "empty",
		"current": {"id": 7, "name": "3"}
	}`))

	assert.Equal(t, domain.WorkspaceRemove, up.Kind)
	assert.Equal(t, int64(7), up.RemovedID)
}

func TestProjectWorkspaceEventMove(t *testing.T) {
	up := projectWorkspaceEvent([]byte(`{
		"change": "move",
		"current": {"id": 2, "name": "web", "output": "HDMI-A-1", "visible": true}
	}`))

	assert.Equal(t, domain.WorkspaceMove, up.Kind)
	require.NotNil(t, up.Workspace)
	assert.Equal(t, "HDMI-A-1", up.Workspace.Monitor)
	assert.Equal(t, domain.VisibilityVisible, up.Workspace.Visibility)
}

func TestProjectWorkspaceEventFocus(t *testing.T) {
	up := projectWorkspaceEvent([]byte(`{
		"change": "focus",
		"old": {"id": 1, "name": "1", "visible": true},
		"current": {"id": 2, "name": "2", "focused": true}
	}`))

	assert.Equal(t, domain.WorkspaceFocus, up.Kind)
	require.NotNil(t, up.Old)
	require.NotNil(t, up.New)
	assert.Equal(t, int64(1), up.Old.ID)
	assert.Equal(t, int64(2), up.New.ID)
	assert.Equal(t, domain.VisibilityFocused, up.New.Visibility)
}

func TestProjectWorkspaceEventFocusWithoutOld(t *testing.T) {
	// First focus after startup carries a null old node.
	up := projectWorkspaceEvent([]byte(`{
		"change": "focus",
		"old": null,
		"current": {"id": 2, "name": "2", "focused": true}
	}`))

	assert.Equal(t, domain.WorkspaceFocus, up.Kind)
	assert.Nil(t, up.Old)
	require.NotNil(t, up.New)
}

func TestProjectWorkspaceEventUnknownChange(t *testing.T) {
	up := projectWorkspaceEvent([]byte(`{
		"change": "rename",
		"current": {"id": 2, "name": "2"}
	}`))
	assert.Equal(t, domain.WorkspaceUnknown, up.Kind)
}

func TestProjectWorkspaceEventMissingNode(t *testing.T) {
	for _, change := range []string{"init", "empty", "move", "focus"} {
		up := projectWorkspaceEvent([]byte(`{"change": "` + change + `"}`))
		assert.Equal(t, domain.WorkspaceUnknown, up.Kind, "change %q without node", change)
	}
}

func TestProjectWorkspaceEventGarbage(t *testing.T) {
	up := projectWorkspaceEvent([]byte(`not json`))
	assert.Equal(t, domain.WorkspaceUnknown, up.Kind)
}

func TestWorkspaceNodeVisibility(t *testing.T) {
	assert.Equal(t, domain.VisibilityFocused,
		workspaceNode{Focused: true, Visible: true}.toDomain().Visibility)
	assert.Equal(t, domain.VisibilityVisible,
		workspaceNode{Visible: true}.toDomain().Visibility)
	assert.Equal(t, domain.VisibilityHidden,
		workspaceNode{}.toDomain().Visibility)
}
