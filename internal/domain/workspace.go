package domain

// Visibility describes how a workspace is currently presented.
type Visibility string

const (
	VisibilityFocused Visibility = "focused"
	VisibilityVisible Visibility = "visible"
	VisibilityHidden  Visibility = "hidden"
)

// Workspace is the projected view of one compositor workspace.
type Workspace struct {
	ID         int64      `json:"id"`
	Name       string     `json:"name"`
	Monitor    string     `json:"monitor"`
	Visibility Visibility `json:"visibility"`
}

// Focused reports whether the workspace currently has input focus.
func (w Workspace) Focused() bool { return w.Visibility == VisibilityFocused }

// WorkspaceUpdateKind tags a WorkspaceUpdate variant.
type WorkspaceUpdateKind string

const (
	// WorkspaceInit carries the full workspace set. Delivered once to each
	// new subscriber before any incremental update.
	WorkspaceInit WorkspaceUpdateKind = "init"
	// WorkspaceAdd: a workspace came into existence.
	WorkspaceAdd WorkspaceUpdateKind = "add"
	// WorkspaceRemove: a workspace emptied and was destroyed.
	WorkspaceRemove WorkspaceUpdateKind = "remove"
	// WorkspaceMove: a workspace moved to another monitor.
	WorkspaceMove WorkspaceUpdateKind = "move"
	// WorkspaceFocus: focus shifted between workspaces. Carries both
	// endpoints so it stays self-describing even after a dropped update.
	WorkspaceFocus WorkspaceUpdateKind = "focus"
	// WorkspaceUnknown: a workspace change the bridge does not recognize.
	WorkspaceUnknown WorkspaceUpdateKind = "unknown"
)

// WorkspaceUpdate is one message on a workspace subscription stream. Exactly
// the fields for its Kind are populated; every variant is a complete
// description of the change, not a diff against a prior update.
type WorkspaceUpdate struct {
	Kind WorkspaceUpdateKind `json:"kind"`

	Workspaces []Workspace `json:"workspaces,omitempty"` // Init
	Workspace  *Workspace  `json:"workspace,omitempty"`  // Add, Move
	RemovedID  int64       `json:"removed_id,omitempty"` // Remove
	Old        *Workspace  `json:"old,omitempty"`        // Focus; nil when nothing was focused
	New        *Workspace  `json:"new,omitempty"`        // Focus
}

// KeymodeEvent reports a binding-mode change from the compositor.
// Name "default" means no mode is active.
type KeymodeEvent struct {
	Name        string `json:"name"`
	PangoMarkup bool   `json:"pango_markup"`
}
