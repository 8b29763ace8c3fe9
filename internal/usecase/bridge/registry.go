package bridge

import "barbridge/internal/domain"

// entry pairs an event kind with the callback registered for it.
type entry struct {
	kind domain.EventKind
	cb   domain.Callback
}

// registry is the ordered, append-only listener collection. It is a plain
// slice rather than a map: dispatch must preserve registration order for
// same-kind callbacks, and the expected listener count is small. All
// mutation happens under the controller's lock.
type registry struct {
	entries []entry
}

func (r *registry) add(kind domain.EventKind, cb domain.Callback) {
	r.entries = append(r.entries, entry{kind: kind, cb: cb})
}

// kinds returns the union of all registered kinds in first-registration
// order. This is the set handed to Source.Subscribe; no registered kind is
// ever dropped from it.
func (r *registry) kinds() []domain.EventKind {
	seen := make(map[domain.EventKind]struct{}, len(r.entries))
	out := make([]domain.EventKind, 0, len(r.entries))
	for _, e := range r.entries {
		if _, ok := seen[e.kind]; ok {
			continue
		}
		seen[e.kind] = struct{}{}
		out = append(out, e.kind)
	}
	return out
}

// snapshot returns an immutable copy for a dispatcher task to iterate
// without holding the controller lock.
func (r *registry) snapshot() []entry {
	out := make([]entry, len(r.entries))
	copy(out, r.entries)
	return out
}
