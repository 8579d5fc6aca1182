package classify

import (
	"regexp"

	"github.com/linnemanlabs/safewatch/internal/alert"
)

var (
	violenceRe = regexp.MustCompile(`(?i)kill|stab|shoot|attack|gun|violence`)
	disorderRe = regexp.MustCompile(`(?i)fight|drunk|aggressive|crowd|shouting`)
)

// Heuristic reasons, exported so callers and tests can match on them.
const (
	ReasonViolence = "Violent language detected (heuristic)."
	ReasonDisorder = "Aggressive or large crowd behavior detected (heuristic)."
	ReasonCalm     = "No immediate danger detected (heuristic)."
)

// Heuristic classifies text with a case-insensitive keyword scan. Violence
// terms win over disorder terms; everything else is Low. It never returns
// RiskUnknown.
func Heuristic(text string) alert.Verdict {
	switch {
	case violenceRe.MatchString(text):
		return alert.Verdict{Risk: alert.RiskHigh, Reason: ReasonViolence, Source: alert.SourceHeuristic}
	case disorderRe.MatchString(text):
		return alert.Verdict{Risk: alert.RiskMedium, Reason: ReasonDisorder, Source: alert.SourceHeuristic}
	default:
		return alert.Verdict{Risk: alert.RiskLow, Reason: ReasonCalm, Source: alert.SourceHeuristic}
	}
}
