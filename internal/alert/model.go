package alert

import (
	"errors"
	"math"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when no alert matches the requested id.
	ErrNotFound = errors.New("alert not found")

	// ErrDuplicateID is returned by stores when an id is appended twice.
	ErrDuplicateID = errors.New("duplicate alert id")
)

// Risk is the classification assigned to an alert at creation.
type Risk string

const (
	RiskHigh    Risk = "High"
	RiskMedium  Risk = "Medium"
	RiskLow     Risk = "Low"
	RiskUnknown Risk = "Unknown"
)

// ParseRisk maps a free-form risk label onto the known levels, ignoring case
// and surrounding whitespace. Anything unrecognised, including the empty
// string, is RiskUnknown.
func ParseRisk(s string) Risk {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "high":
		return RiskHigh
	case "medium":
		return RiskMedium
	case "low":
		return RiskLow
	default:
		return RiskUnknown
	}
}

// Source records which mechanism produced a risk verdict.
type Source string

const (
	// SourceExternal means the external language-model classifier answered.
	SourceExternal Source = "external"

	// SourceHeuristic means the keyword heuristic answered, either because no
	// classifier is configured or because its answer was unusable.
	SourceHeuristic Source = "heuristic"

	// SourceError means the keyword heuristic answered because the external
	// classifier call failed.
	SourceError Source = "error"
)

// Verdict is the output of one classification call.
type Verdict struct {
	Risk   Risk   `json:"risk"`
	Reason string `json:"reason"`
	Source Source `json:"source"`
}

// Location is a latitude/longitude pair in decimal degrees.
type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// DefaultLocation substitutes for missing or malformed coordinates.
var DefaultLocation = Location{Lat: 47.3769, Lng: 8.5417}

// ParseLocation parses form-style coordinate strings. Each component that is
// missing, non-numeric, non-finite or out of range is replaced by the
// matching DefaultLocation component.
func ParseLocation(lat, lng string) Location {
	return Location{
		Lat: parseCoord(lat, 90, DefaultLocation.Lat),
		Lng: parseCoord(lng, 180, DefaultLocation.Lng),
	}
}

// Sanitize returns l with invalid components replaced by DefaultLocation.
func (l Location) Sanitize() Location {
	if !validCoord(l.Lat, 90) {
		l.Lat = DefaultLocation.Lat
	}
	if !validCoord(l.Lng, 180) {
		l.Lng = DefaultLocation.Lng
	}
	return l
}

func parseCoord(s string, limit, fallback float64) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || !validCoord(v, limit) {
		return fallback
	}
	return v
}

func validCoord(v, limit float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= -limit && v <= limit
}

// State tracks where an alert is in its lifecycle.
type State string

const (
	// StateCreated means the record exists but carries no verdict yet.
	StateCreated State = "created"

	// StateClassified means a verdict is attached but the alert is not stored yet.
	StateClassified State = "classified"

	// StateUnresolved means the alert is stored and still open.
	StateUnresolved State = "unresolved"

	// StateResolved means the alert has been marked resolved. Terminal.
	StateResolved State = "resolved"
)

// Alert is a single citizen-submitted safety report.
type Alert struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	Image          string    `json:"image,omitempty"`
	Lat            float64   `json:"lat"`
	Lng            float64   `json:"lng"`
	Risk           Risk      `json:"risk"`
	Reason         string    `json:"reason"`
	AnalysisSource Source    `json:"analysisSource"`
	Resolved       bool      `json:"resolved"`
	CreatedAt      time.Time `json:"createdAt"`

	stored bool
}

// Location returns the alert coordinates.
func (a *Alert) Location() Location {
	return Location{Lat: a.Lat, Lng: a.Lng}
}

// State derives the lifecycle state from the alert fields. Alerts read back
// from a Store are always at least StateUnresolved.
func (a *Alert) State() State {
	switch {
	case a.Resolved:
		return StateResolved
	case a.AnalysisSource == "":
		return StateCreated
	case !a.stored:
		return StateClassified
	default:
		return StateUnresolved
	}
}

// MarkStored flags the alert as persisted. Stores call it on every alert
// they hand back so State reports Unresolved rather than Classified.
func (a *Alert) MarkStored() {
	a.stored = true
}
