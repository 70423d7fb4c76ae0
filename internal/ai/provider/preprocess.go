package provider

import "strings"

// defaultGreeting replaces a request whose message list filtered down to
// nothing; some providers reject empty message arrays outright.
const defaultGreeting = "Hello"

// Preprocess applies model-specific request shaping. It is a pure function
// over the message list. Currently the only shaping is strict alternation
// for models that require it.
func Preprocess(msgs []TurnMessage, info ModelInfo) []TurnMessage {
	if info.RequiresAlternating {
		return ensureAlternating(msgs)
	}
	return msgs
}

// ensureAlternating enforces a strict user/assistant/user/... sequence:
// any message whose role equals the immediately preceding kept message's
// role is dropped (the earlier one wins), a non-user head is dropped, and an
// empty result is replaced with a single default user greeting.
func ensureAlternating(msgs []TurnMessage) []TurnMessage {
	out := make([]TurnMessage, 0, len(msgs))
	lastRole := ""
	for _, m := range msgs {
		role := strings.TrimSpace(m.Role)
		if role == "" || role == lastRole {
			continue
		}
		out = append(out, m)
		lastRole = role
	}

	if len(out) > 0 && out[0].Role != "user" {
		out = out[1:]
	}
	if len(out) == 0 {
		out = append(out, TurnMessage{Role: "user", Content: defaultGreeting})
	}
	return out
}
