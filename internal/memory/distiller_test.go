package memory

import (
	"context"
	"errors"
	"testing"
)

type mockGenerator struct {
	response string
	err      error
}

func (m *mockGenerator) Generate(ctx context.Context, systemPrompt, userMessage string) (string, error) {
	return m.response, m.err
}

func TestDistill(t *testing.T) {
	d := NewDistiller(&mockGenerator{
		response: `[{"should_write": true, "target": "user", "fact": "works in finance"},
			{"should_write": false, "target": "user", "fact": "asked about weather"},
			{"should_write": true, "target": "company", "fact": "based in Berlin"}]`,
	})

	decisions := d.Distill(context.Background(), "msg", "resp")
	if len(decisions) != 2 {
		t.Fatalf("got %d decisions, want 2", len(decisions))
	}
	if decisions[0].Fact != "works in finance" || decisions[0].Target != TargetUser {
		t.Errorf("decisions[0] = %+v", decisions[0])
	}
	if decisions[1].Target != TargetCompany {
		t.Errorf("decisions[1] = %+v", decisions[1])
	}
}

func TestDistill_CodeFences(t *testing.T) {
	d := NewDistiller(&mockGenerator{
		response: "```json\n[{\"should_write\": true, \"target\": \"user\", \"fact\": \"likes tea\"}]\n```",
	})

	decisions := d.Distill(context.Background(), "msg", "resp")
	if len(decisions) != 1 || decisions[0].Fact != "likes tea" {
		t.Errorf("decisions = %+v", decisions)
	}
}

func TestDistill_SurroundingProse(t *testing.T) {
	d := NewDistiller(&mockGenerator{
		response: `Here are the facts I found: [{"should_write": true, "target": "user", "fact": "is a manager"}] Let me know if you need more.`,
	})

	decisions := d.Distill(context.Background(), "msg", "resp")
	if len(decisions) != 1 || decisions[0].Fact != "is a manager" {
		t.Errorf("decisions = %+v", decisions)
	}
}

func TestDistill_FiltersInvalid(t *testing.T) {
	d := NewDistiller(&mockGenerator{
		response: `[{"should_write": true, "target": "planet", "fact": "x"},
			{"should_write": true, "target": "user", "fact": "  "}]`,
	})

	if decisions := d.Distill(context.Background(), "msg", "resp"); len(decisions) != 0 {
		t.Errorf("got %d decisions, want 0", len(decisions))
	}
}

func TestDistill_GeneratorError(t *testing.T) {
	d := NewDistiller(&mockGenerator{err: errors.New("model unavailable")})

	if decisions := d.Distill(context.Background(), "msg", "resp"); decisions != nil {
		t.Errorf("got %+v, want nil on generator error", decisions)
	}
}

func TestDistill_Garbage(t *testing.T) {
	d := NewDistiller(&mockGenerator{response: "I cannot produce JSON today."})

	if decisions := d.Distill(context.Background(), "msg", "resp"); decisions != nil {
		t.Errorf("got %+v, want nil on unparseable output", decisions)
	}
}

func TestDistill_EmptyArray(t *testing.T) {
	d := NewDistiller(&mockGenerator{response: "[]"})

	if decisions := d.Distill(context.Background(), "msg", "resp"); len(decisions) != 0 {
		t.Errorf("got %d decisions, want 0", len(decisions))
	}
}
