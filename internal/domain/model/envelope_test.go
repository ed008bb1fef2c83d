package model

import "testing"

func TestParseTurnEnvelope_BareJSON(t *testing.T) {
	t.Parallel()

	env := ParseTurnEnvelope(`{"message":"What is your current revenue?","is_final":false,"result":null,"confidence":0.2}`)
	if env.Message != "What is your current revenue?" {
		t.Fatalf("message = %q", env.Message)
	}
	if env.IsFinal || env.Result != nil {
		t.Fatalf("unexpected finality: %+v", env)
	}
	if env.Confidence != 0.2 {
		t.Fatalf("confidence = %v", env.Confidence)
	}
}

func TestParseTurnEnvelope_FencedEqualsBare(t *testing.T) {
	t.Parallel()

	bare := `{"message":"done","is_final":true,"result":{"niche":"b2b saas"},"confidence":0.9}`
	fenced := "Here you go:\n```json\n" + bare + "\n```"

	a := ParseTurnEnvelope(bare)
	b := ParseTurnEnvelope(fenced)
	if a.Message != b.Message || a.IsFinal != b.IsFinal || a.Confidence != b.Confidence {
		t.Fatalf("fenced parse diverged: %+v vs %+v", a, b)
	}
	if b.Result["niche"] != "b2b saas" {
		t.Fatalf("result = %v", b.Result)
	}
}

func TestParseTurnEnvelope_PlainTextFallback(t *testing.T) {
	t.Parallel()

	env := ParseTurnEnvelope("Let me think about that for a moment.")
	if env.Message != "Let me think about that for a moment." {
		t.Fatalf("message = %q", env.Message)
	}
	if env.IsFinal || env.Result != nil || env.Confidence != 0 {
		t.Fatalf("fallback envelope not neutral: %+v", env)
	}
}

func TestParseTurnEnvelope_ObjectWithoutMessageFallsBack(t *testing.T) {
	t.Parallel()

	raw := `{"is_final":true,"confidence":0.99}`
	env := ParseTurnEnvelope(raw)
	if env.Message != raw {
		t.Fatalf("expected raw text preserved, got %q", env.Message)
	}
	if env.IsFinal {
		t.Fatal("finality must not leak from an unusable object")
	}
}

func TestParseTurnEnvelope_ConfidenceClamped(t *testing.T) {
	t.Parallel()

	hi := ParseTurnEnvelope(`{"message":"m","confidence":3.5}`)
	if hi.Confidence != 1 {
		t.Fatalf("high clamp: %v", hi.Confidence)
	}
	lo := ParseTurnEnvelope(`{"message":"m","confidence":-0.4}`)
	if lo.Confidence != 0 {
		t.Fatalf("low clamp: %v", lo.Confidence)
	}
}

func TestShouldAutoComplete_Gate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		env  TurnEnvelope
		want bool
	}{
		{"at threshold", TurnEnvelope{IsFinal: true, Confidence: 0.7, Result: map[string]any{"k": "v"}}, true},
		{"just below threshold", TurnEnvelope{IsFinal: true, Confidence: 0.69999, Result: map[string]any{"k": "v"}}, false},
		{"empty object result", TurnEnvelope{IsFinal: true, Confidence: 0.95, Result: map[string]any{}}, true},
		{"nil result", TurnEnvelope{IsFinal: true, Confidence: 0.95, Result: nil}, false},
		{"not final", TurnEnvelope{IsFinal: false, Confidence: 0.95, Result: map[string]any{"k": "v"}}, false},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := tc.env.ShouldAutoComplete(); got != tc.want {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
		})
	}
}
