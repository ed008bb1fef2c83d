package usecase

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"coaching-ai-engine/internal/domain"
	"coaching-ai-engine/internal/domain/model"
)

// responseContracts maps a topic's contract id to the instructions handed
// to the backend describing the JSON result shape. A topic referencing a
// contract absent from this table fails validation at creation time.
var responseContracts = map[string]string{
	"niche_review_result": `Return a JSON object {"score": 0-100, "strengths": [..], "weaknesses": [..], "suggested_statement": "..."}.`,
	"offer_audit_result":  `Return a JSON object {"clarity": 0-10, "pricing": 0-10, "audience_fit": 0-10, "recommendations": [..]}.`,
	"niche_statement":     `The result object must be {"niche_statement": "...", "audience": "...", "problem": "..."}.`,
	"offer_blueprint":     `The result object must be {"offer_name": "...", "promise": "...", "deliverables": [..], "price_point": "..."}.`,
}

// envelopeInstructions tell the backend to wrap every conversational reply
// in the structured envelope the engine parses.
const envelopeInstructions = `Always respond with a JSON object: {"message": "<your reply to the user>", "is_final": <true when the goal of this conversation is fully reached>, "result": <the result object when is_final, else null>, "confidence": <0..1 certainty of your completion determination>}.`

func lookupContract(id string) (string, bool) {
	c, ok := responseContracts[id]
	return c, ok
}

// renderTemplate executes a topic template against arbitrary data. Render
// failures are a first-class job failure category, not a panic.
func renderTemplate(name, tmpl string, data any) (string, error) {
	t, err := template.New(name).Option("missingkey=error").Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("%w: parse %s: %v", domain.ErrPromptRender, name, err)
	}
	var b strings.Builder
	if err := t.Execute(&b, data); err != nil {
		return "", fmt.Errorf("%w: render %s: %v", domain.ErrPromptRender, name, err)
	}
	return b.String(), nil
}

// renderSingleShotPrompt builds the user prompt for a single-shot topic.
func renderSingleShotPrompt(topic model.TopicConfig, params map[string]string) (string, error) {
	if topic.PromptTemplate == "" {
		return "", fmt.Errorf("%w: topic %s has no prompt template", domain.ErrPromptRender, topic.ID)
	}
	return renderTemplate(string(topic.ID), topic.PromptTemplate, params)
}

// renderSystemPrompt builds the conversational system prompt: the topic's
// template plus the envelope and contract instructions.
func renderSystemPrompt(topic model.TopicConfig, session *model.ConversationSession) (string, error) {
	data := map[string]any{
		"Turn":      session.Turn,
		"MaxTurns":  session.MaxTurns,
		"TurnsLeft": session.MaxTurns - session.Turn,
	}
	base, err := renderTemplate(string(topic.ID), topic.SystemPromptTemplate, data)
	if err != nil {
		return "", err
	}
	contract, _ := lookupContract(topic.ResponseContract)
	return base + "\n\n" + envelopeInstructions + "\n" + contract, nil
}

// parseResultObject decodes a single-shot backend reply into the result
// payload: bare JSON, then fenced JSON, then a wrapped-text fallback.
// It never fails; downstream always gets something usable.
func parseResultObject(text string) map[string]any {
	s := strings.TrimSpace(text)
	if obj, ok := decodeJSONObject(s); ok {
		return obj
	}
	if inner, ok := unfence(s); ok {
		if obj, ok := decodeJSONObject(inner); ok {
			return obj
		}
	}
	return map[string]any{"text": text}
}

func decodeJSONObject(s string) (map[string]any, bool) {
	if !strings.HasPrefix(s, "{") {
		return nil, false
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(s), &obj); err != nil {
		return nil, false
	}
	return obj, true
}

func unfence(s string) (string, bool) {
	i := strings.Index(s, "```")
	if i < 0 {
		return "", false
	}
	s = s[i+3:]
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		first := strings.TrimSpace(s[:nl])
		if first == "" || strings.EqualFold(first, "json") {
			s = s[nl+1:]
		}
	}
	j := strings.Index(s, "```")
	if j < 0 {
		return "", false
	}
	return strings.TrimSpace(s[:j]), true
}
