package checker

import (
	"encoding/json"
	"strings"
)

// maxVerdictDepth bounds re-parsing of string-valued verdict fields so a
// checker emitting self-referential nonsense cannot recurse forever.
const maxVerdictDepth = 4

// acceptWords and rejectWords are the recognized plain-text verdict
// vocabularies, matched case-insensitively against trimmed checker output.
var (
	acceptWords = map[string]bool{
		"accepted": true, "ac": true, "ok": true,
		"pass": true, "passed": true, "true": true,
	}
	rejectWords = map[string]bool{
		"wrong answer": true, "wrong": true, "wa": true,
		"fail": true, "failed": true, "false": true,
	}
)

// ParseVerdict interprets a checker program's stdout. JSON payloads are
// preferred: a bare bool, a verdict string, or an object carrying the verdict
// under "status", "result" or "verdict" (nested objects are followed; a
// string field value goes back through the full resolution, so a
// double-encoded verdict still parses). When the output is not JSON the
// plain-text vocabulary applies. The bool result reports whether a verdict
// could be extracted at all; an unreadable verdict is the checker's fault,
// not the contestant's.
func ParseVerdict(raw string) (accepted bool, ok bool) {
	return parseVerdict(raw, maxVerdictDepth)
}

func parseVerdict(raw string, depth int) (accepted bool, ok bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || depth <= 0 {
		return false, false
	}

	var payload any
	if err := json.Unmarshal([]byte(trimmed), &payload); err == nil {
		if accepted, ok = verdictFromValue(payload, depth-1); ok {
			return accepted, true
		}
	}

	return verdictFromWord(trimmed)
}

func verdictFromValue(v any, depth int) (bool, bool) {
	switch val := v.(type) {
	case bool:
		return val, true
	case string:
		return parseVerdict(val, depth)
	case map[string]any:
		for _, field := range []string{"status", "result", "verdict"} {
			if inner, present := val[field]; present {
				if accepted, ok := verdictFromValue(inner, depth); ok {
					return accepted, true
				}
			}
		}
	}
	return false, false
}

func verdictFromWord(s string) (bool, bool) {
	word := strings.ToLower(strings.TrimSpace(s))
	if acceptWords[word] {
		return true, true
	}
	if rejectWords[word] {
		return false, true
	}
	return false, false
}
