package mapview

import (
	"sort"

	"github.com/linnemanlabs/safewatch/internal/alert"
)

// FocusDirective asks one view to centre on a marker and open its popup.
type FocusDirective struct {
	ID        string  `json:"id"`
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	Zoom      int     `json:"zoom"`
	OpenPopup bool    `json:"openPopup"`
}

// Plan is the set of operations that brings a rendered marker set in line
// with the current alert list. Seq is stamped by Registry.Apply and
// Registry.SnapshotPlan; zero means the plan was never applied.
type Plan struct {
	Seq    uint64          `json:"seq,omitempty"`
	Add    []Marker        `json:"add"`
	Update []Marker        `json:"update"`
	Remove []string        `json:"remove"`
	Focus  *FocusDirective `json:"focus,omitempty"`
}

// Empty reports whether the plan changes nothing and carries no focus.
func (p Plan) Empty() bool {
	return len(p.Add) == 0 && len(p.Update) == 0 && len(p.Remove) == 0 && p.Focus == nil
}

// Reconcile diffs current against rendered. It does not modify its inputs.
//
// Markers whose id is missing from current are removed. Alerts without a
// rendered marker are added. Alerts whose rendered marker differs in
// position, colour or popup are updated; identical markers are left alone
// so view state attached to them survives refreshes. Entries with an empty
// id or a repeated id are skipped. A focusID that matches no current alert
// produces no directive.
func Reconcile(current []alert.Alert, rendered map[string]Marker, focusID string) Plan {
	plan := Plan{
		Add:    []Marker{},
		Update: []Marker{},
		Remove: []string{},
	}

	next := make(map[string]Marker, len(current))
	for i := range current {
		a := &current[i]
		if a.ID == "" {
			continue
		}
		if _, dup := next[a.ID]; dup {
			continue
		}
		m := markerFor(a)
		next[a.ID] = m

		old, ok := rendered[a.ID]
		switch {
		case !ok:
			plan.Add = append(plan.Add, m)
		case old != m:
			plan.Update = append(plan.Update, m)
		}
	}

	for id := range rendered {
		if _, ok := next[id]; !ok {
			plan.Remove = append(plan.Remove, id)
		}
	}
	sort.Strings(plan.Remove)

	if focusID != "" {
		if m, ok := next[focusID]; ok {
			f := FocusOn(m)
			plan.Focus = &f
		}
	}

	return plan
}
