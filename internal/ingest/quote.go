package ingest

import "strings"

// Header-style markers that introduce a quoted reply block. A line starting
// with one of these ends the new content.
var quoteHeaderMarkers = []string{
	"-----original message-----",
	"----original message----",
	"de:",
	"from:",
	"enviado:",
	"sent:",
	"para:",
	"to:",
	"asunto:",
	"subject:",
}

// StripReplyQuote removes quoted reply text from an email body using the
// usual mail-client heuristics: lines beginning with ">", separator rules
// made of dashes, and localized "original message / from: / sent:" header
// blocks.
func StripReplyQuote(body string) string {
	if body == "" {
		return ""
	}
	var kept []string
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			kept = append(kept, line)
			continue
		}
		if isSeparatorLine(trimmed) {
			continue
		}
		low := strings.ToLower(trimmed)
		if strings.HasPrefix(low, ">") {
			break
		}
		if startsQuotedBlock(low) {
			break
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

func startsQuotedBlock(low string) bool {
	if strings.HasPrefix(low, "-----original message-----") {
		return true
	}
	// "On <date>, <someone> wrote:" style attribution lines.
	if strings.HasPrefix(low, "on ") && strings.Contains(low, "wrote") {
		return true
	}
	for _, marker := range quoteHeaderMarkers {
		if strings.HasPrefix(low, marker) {
			return true
		}
	}
	return false
}

// isSeparatorLine reports whether the line is purely a run of dash-like
// characters, e.g. "------".
func isSeparatorLine(line string) bool {
	for _, r := range line {
		switch r {
		case '-', '_', '=':
		default:
			return false
		}
	}
	return true
}
