package types

// SurfaceKind identifies the rendering context a link speaks for.
// The relay uses it to route updates to a session's other surfaces.
type SurfaceKind string

// Surface kind constants per PROTOCOL.md.
const (
	// SurfaceOverlay is the in-page checklist overlay. It owns the field
	// accessors and is the only surface that edits field values.
	SurfaceOverlay SurfaceKind = "overlay"
	// SurfacePopout is the detached checklist window.
	SurfacePopout SurfaceKind = "popout"
	// SurfaceTracking is the queue/history management surface.
	SurfaceTracking SurfaceKind = "tracking"
)

// Valid reports whether k is a known surface kind.
func (k SurfaceKind) Valid() bool {
	switch k {
	case SurfaceOverlay, SurfacePopout, SurfaceTracking:
		return true
	}
	return false
}

// ViewMode selects how a surface renders the checklist.
type ViewMode string

// View mode constants per PROTOCOL.md.
const (
	// ViewModeSingle shows only the current actionable step.
	ViewModeSingle ViewMode = "single"
	// ViewModeFull shows every step with its state.
	ViewModeFull ViewMode = "full"
)

// Valid reports whether m is a known view mode.
func (m ViewMode) Valid() bool {
	return m == ViewModeSingle || m == ViewModeFull
}

// UIState is the persisted overlay visibility toggle.
type UIState struct {
	Visible bool `json:"visible" msgpack:"visible"`
}
