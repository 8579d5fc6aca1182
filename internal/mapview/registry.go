package mapview

import "sync"

// Registry owns the rendered marker set. It is the only place markers live
// between reconciliation cycles. Every applied change bumps a sequence
// number so a snapshot and later plans can be ordered against each other.
type Registry struct {
	mu      sync.RWMutex
	markers map[string]Marker
	order   []string
	seq     uint64
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{markers: make(map[string]Marker)}
}

// Snapshot returns a copy of the rendered markers keyed by id.
func (r *Registry) Snapshot() map[string]Marker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]Marker, len(r.markers))
	for id, m := range r.markers {
		out[id] = m
	}
	return out
}

// Markers returns the rendered markers in the order they were first added.
func (r *Registry) Markers() []Marker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.markersLocked()
}

func (r *Registry) markersLocked() []Marker {
	out := make([]Marker, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.markers[id])
	}
	return out
}

// Len returns the number of rendered markers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.markers)
}

// Seq returns the sequence number of the last applied change.
func (r *Registry) Seq() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.seq
}

// Locate returns the focus directive for a rendered marker.
func (r *Registry) Locate(id string) (FocusDirective, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.markers[id]
	if !ok {
		return FocusDirective{}, false
	}
	return FocusOn(m), true
}

// Apply executes a plan: removals first, then additions and updates. It
// returns p stamped with the resulting sequence number. A plan without
// marker changes leaves the sequence unchanged.
func (r *Registry) Apply(p Plan) Plan {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(p.Add) > 0 || len(p.Update) > 0 || len(p.Remove) > 0 {
		r.seq++
	}
	p.Seq = r.seq

	if len(p.Remove) > 0 {
		gone := make(map[string]struct{}, len(p.Remove))
		for _, id := range p.Remove {
			delete(r.markers, id)
			gone[id] = struct{}{}
		}
		kept := r.order[:0]
		for _, id := range r.order {
			if _, ok := gone[id]; !ok {
				kept = append(kept, id)
			}
		}
		r.order = kept
	}

	for _, m := range p.Add {
		if _, ok := r.markers[m.ID]; !ok {
			r.order = append(r.order, m.ID)
		}
		r.markers[m.ID] = m
	}
	for _, m := range p.Update {
		if _, ok := r.markers[m.ID]; !ok {
			r.order = append(r.order, m.ID)
		}
		r.markers[m.ID] = m
	}
	return p
}

// SnapshotPlan returns a plan that renders the whole registry from scratch,
// used to bring a newly connected viewer up to date. Its Seq is the sequence
// the markers reflect; plans with Seq at or below it are already included.
func (r *Registry) SnapshotPlan() Plan {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Plan{
		Seq:    r.seq,
		Add:    r.markersLocked(),
		Update: []Marker{},
		Remove: []string{},
	}
}
