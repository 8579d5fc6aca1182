package classify

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/linnemanlabs/safewatch/internal/alert"
)

var errNoJSON = errors.New("no JSON object in classifier response")

// BuildPrompt constructs the instruction sent to the external classifier.
func BuildPrompt(text string) string {
	return fmt.Sprintf(`You are an AI safety classifier. Analyze this citizen alert. Respond only with a JSON object like { "risk": "High", "reason": "..." } without additional text.

Alert:
"%s"`, strings.ReplaceAll(text, `"`, `\"`))
}

// ParseVerdict extracts the JSON object between the first '{' and the last
// '}' of a classifier response, tolerating surrounding prose. A missing,
// empty or unrecognised risk becomes RiskUnknown; a missing reason becomes
// the empty string.
func ParseVerdict(content string) (alert.Verdict, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end < start {
		return alert.Verdict{}, errNoJSON
	}

	var parsed struct {
		Risk   string `json:"risk"`
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal([]byte(content[start:end+1]), &parsed); err != nil {
		return alert.Verdict{}, fmt.Errorf("decode classifier JSON: %w", err)
	}

	return alert.Verdict{
		Risk:   alert.ParseRisk(parsed.Risk),
		Reason: parsed.Reason,
		Source: alert.SourceExternal,
	}, nil
}
