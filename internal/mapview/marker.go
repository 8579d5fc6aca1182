// Package mapview keeps a rendered marker set consistent with a periodically
// refreshed alert list. Reconcile computes the minimal add/update/remove plan,
// Registry owns the rendered markers, and Syncer drives the polling cadence.
package mapview

import (
	"fmt"
	"html"
	"strings"

	"github.com/linnemanlabs/safewatch/internal/alert"
)

// Marker colours.
const (
	ColorGray   = "gray"
	ColorRed    = "red"
	ColorOrange = "orange"
	ColorGreen  = "green"
)

// FocusZoom is the zoom level a focus directive asks the view to use.
const FocusZoom = 15

// Marker is the last-known rendered state of one alert on the map.
type Marker struct {
	ID    string  `json:"id"`
	Lat   float64 `json:"lat"`
	Lng   float64 `json:"lng"`
	Color string  `json:"color"`
	Popup string  `json:"popup"`
}

// ColorFor derives the marker colour. Resolved alerts are gray regardless
// of risk.
func ColorFor(resolved bool, risk alert.Risk) string {
	if resolved {
		return ColorGray
	}
	switch risk {
	case alert.RiskHigh:
		return ColorRed
	case alert.RiskMedium:
		return ColorOrange
	default:
		return ColorGreen
	}
}

// PopupFor formats the popup HTML for an alert. Author text is escaped.
func PopupFor(a *alert.Alert) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>%s</b><br/>%s<br/><i>%s</i>",
		html.EscapeString(a.Title),
		html.EscapeString(a.Description),
		html.EscapeString(a.Reason),
	)
	if a.AnalysisSource != "" {
		fmt.Fprintf(&b, "<br/><small>predicted by: %s</small>", html.EscapeString(string(a.AnalysisSource)))
	}
	return b.String()
}

// markerFor builds the marker an alert should render as.
func markerFor(a *alert.Alert) Marker {
	loc := a.Location().Sanitize()
	return Marker{
		ID:    a.ID,
		Lat:   loc.Lat,
		Lng:   loc.Lng,
		Color: ColorFor(a.Resolved, a.Risk),
		Popup: PopupFor(a),
	}
}

// FocusOn returns the directive that centres a view on m and opens its popup.
func FocusOn(m Marker) FocusDirective {
	return FocusDirective{
		ID:        m.ID,
		Lat:       m.Lat,
		Lng:       m.Lng,
		Zoom:      FocusZoom,
		OpenPopup: true,
	}
}

// FocusFor returns the directive for an alert, whether or not it is rendered yet.
func FocusFor(a *alert.Alert) FocusDirective {
	return FocusOn(markerFor(a))
}
