package model

import (
	"encoding/json"
	"strings"
)

// AutoCompleteThreshold is the minimum confidence at which a backend's
// finality claim is trusted.
const AutoCompleteThreshold = 0.7

// TurnEnvelope is the structured reply the backend is instructed to emit
// for every conversation turn.
type TurnEnvelope struct {
	Message    string         `json:"message"`
	IsFinal    bool           `json:"is_final"`
	Result     map[string]any `json:"result"`
	Confidence float64        `json:"confidence"`
}

// ShouldAutoComplete applies the completion gate: all three conditions are
// required. A missing result or sub-threshold confidence keeps the session
// open even when the model claims finality.
func (e TurnEnvelope) ShouldAutoComplete() bool {
	return e.IsFinal && e.Confidence >= AutoCompleteThreshold && e.Result != nil
}

// envelopeParser attempts one shape; ok is false when the shape does not
// apply, letting the chain advance to the next parser.
type envelopeParser func(text string) (TurnEnvelope, bool)

var envelopeParsers = []envelopeParser{
	parseBareJSON,
	parseFencedJSON,
}

// ParseTurnEnvelope parses backend output leniently: bare JSON, JSON inside
// a fenced code block, or plain text. It never fails; unstructured content
// becomes the message of a non-final envelope.
func ParseTurnEnvelope(text string) TurnEnvelope {
	for _, parse := range envelopeParsers {
		if env, ok := parse(text); ok {
			return env
		}
	}
	return TurnEnvelope{Message: text}
}

func parseBareJSON(text string) (TurnEnvelope, bool) {
	return decodeEnvelope(strings.TrimSpace(text))
}

func parseFencedJSON(text string) (TurnEnvelope, bool) {
	s := strings.TrimSpace(text)
	start := strings.Index(s, "```")
	if start < 0 {
		return TurnEnvelope{}, false
	}
	s = s[start+3:]
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		// drop the language tag line ("json", "JSON", or empty)
		first := strings.TrimSpace(s[:nl])
		if first == "" || strings.EqualFold(first, "json") {
			s = s[nl+1:]
		}
	}
	end := strings.Index(s, "```")
	if end < 0 {
		return TurnEnvelope{}, false
	}
	return decodeEnvelope(strings.TrimSpace(s[:end]))
}

func decodeEnvelope(s string) (TurnEnvelope, bool) {
	if !strings.HasPrefix(s, "{") {
		return TurnEnvelope{}, false
	}
	var raw struct {
		Message    *string        `json:"message"`
		IsFinal    bool           `json:"is_final"`
		Result     map[string]any `json:"result"`
		Confidence float64        `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return TurnEnvelope{}, false
	}
	if raw.Message == nil || *raw.Message == "" {
		// A JSON object without a usable message is not an envelope.
		return TurnEnvelope{}, false
	}
	env := TurnEnvelope{
		Message:    *raw.Message,
		IsFinal:    raw.IsFinal,
		Result:     raw.Result,
		Confidence: raw.Confidence,
	}
	if env.Confidence < 0 {
		env.Confidence = 0
	}
	if env.Confidence > 1 {
		env.Confidence = 1
	}
	return env, true
}
