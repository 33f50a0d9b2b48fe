package order

import (
	"regexp"
	"strings"
)

// DecisionKind is the outbound side effect chosen for a turn.
type DecisionKind string

const (
	// DecisionTemplate sends the summary through the order confirmation template.
	DecisionTemplate DecisionKind = "template"
	// DecisionAck sends the acknowledgment text only; the summary is never resent.
	DecisionAck DecisionKind = "ack"
	// DecisionText sends the reply as plain conversational text.
	DecisionText DecisionKind = "text"
	// DecisionNone sends nothing.
	DecisionNone DecisionKind = "none"
)

// Decision is the single action a turn triggers.
type Decision struct {
	Kind DecisionKind
	// Text is the summary for DecisionTemplate, the acknowledgment for
	// DecisionAck and the reply for DecisionText.
	Text string
}

var markerLine = regexp.MustCompile(`(?m)^[ \t]*\*?[ \t]*` + regexp.QuoteMeta(ConfirmationMarker) + `[ \t]*$\n?`)

// Decide picks the outbound action for reply. The summary marker wins over
// the confirmation marker.
func Decide(reply string) Decision {
	if i := strings.Index(reply, SummaryMarker); i >= 0 {
		summary := strings.TrimSpace(reply[:i])
		summary = strings.TrimSpace(strings.TrimSuffix(summary, "*"))
		return Decision{Kind: DecisionTemplate, Text: summary}
	}
	if strings.Contains(reply, ConfirmationMarker) {
		ack := markerLine.ReplaceAllString(reply, "")
		ack = strings.TrimSpace(strings.ReplaceAll(ack, ConfirmationMarker, ""))
		if ack == "" {
			return Decision{Kind: DecisionNone}
		}
		return Decision{Kind: DecisionAck, Text: ack}
	}
	if strings.TrimSpace(reply) == "" {
		return Decision{Kind: DecisionNone}
	}
	return Decision{Kind: DecisionText, Text: reply}
}

var codeFence = regexp.MustCompile("(?m)^[ \t]*```[a-zA-Z]*[ \t]*$\n?")

// StripPayload removes the embedded JSON object (and any code fence around
// it) from a model reply, leaving the prose meant for the customer.
func StripPayload(reply string) string {
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start < 0 || end <= start {
		return strings.TrimSpace(reply)
	}
	prose := reply[:start] + reply[end+1:]
	prose = codeFence.ReplaceAllString(prose, "")
	return strings.TrimSpace(prose)
}
