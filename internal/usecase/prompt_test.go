package usecase

import (
	"errors"
	"strings"
	"testing"

	"coaching-ai-engine/internal/domain"
	"coaching-ai-engine/internal/domain/model"
)

func TestRenderSingleShotPrompt(t *testing.T) {
	t.Parallel()
	topic, _ := model.LookupTopic(model.TopicNicheReview)

	out, err := renderSingleShotPrompt(topic, map[string]string{"current_value": "We help dentists"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "We help dentists") {
		t.Fatalf("prompt = %q", out)
	}

	if _, err := renderSingleShotPrompt(topic, map[string]string{}); !errors.Is(err, domain.ErrPromptRender) {
		t.Fatalf("missing template key: %v", err)
	}
}

func TestRenderSystemPrompt(t *testing.T) {
	t.Parallel()
	topic, _ := model.LookupTopic(model.TopicNicheDiscovery)
	s := &model.ConversationSession{Turn: 3, MaxTurns: 20}

	out, err := renderSystemPrompt(topic, s)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "17 turns left") {
		t.Fatalf("turn budget missing: %q", out)
	}
	if !strings.Contains(out, `"is_final"`) {
		t.Fatal("envelope instructions missing")
	}
	if !strings.Contains(out, "niche_statement") {
		t.Fatal("contract missing")
	}
}

func TestParseResultObject(t *testing.T) {
	t.Parallel()

	bare := parseResultObject(`{"score": 80}`)
	if bare["score"] != float64(80) {
		t.Fatalf("bare = %+v", bare)
	}

	fenced := parseResultObject("Sure:\n```json\n{\"score\": 75}\n```")
	if fenced["score"] != float64(75) {
		t.Fatalf("fenced = %+v", fenced)
	}

	prose := parseResultObject("Your niche looks solid overall.")
	if prose["text"] != "Your niche looks solid overall." {
		t.Fatalf("prose = %+v", prose)
	}
}
