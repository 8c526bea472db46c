package memory

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
)

// Generator produces a model completion for a prompt pair.
type Generator interface {
	Generate(ctx context.Context, systemPrompt, userMessage string) (string, error)
}

// Decision is one fact the model judged worth remembering.
type Decision struct {
	ShouldWrite bool   `json:"should_write"`
	Target      string `json:"target"`
	Fact        string `json:"fact"`
}

const distillPrompt = `You decide whether a chat exchange contains durable facts worth remembering.

Durable facts are stable attributes of the user (name, role, preferences) or their company (name, industry, policies). Questions, small talk, and one-off requests are not durable.

Respond with ONLY a JSON array of objects, one per fact:
[{"should_write": true, "target": "user" or "company", "fact": "short statement"}]

Respond with [] if nothing is worth remembering.`

// Distiller extracts memory-worthy facts from a completed exchange.
type Distiller struct {
	generator Generator
}

// NewDistiller creates a Distiller backed by the given generator.
func NewDistiller(generator Generator) *Distiller {
	return &Distiller{generator: generator}
}

// Distill asks the model which facts from the exchange to remember.
// Distillation is best effort: any failure logs a warning and returns nil
// so the chat turn that triggered it still succeeds.
func (d *Distiller) Distill(ctx context.Context, userMessage, assistantResponse string) []Decision {
	exchange := "User: " + userMessage + "\n\nAssistant: " + assistantResponse

	raw, err := d.generator.Generate(ctx, distillPrompt, exchange)
	if err != nil {
		slog.Warn("memory distillation failed", "error", err)
		return nil
	}

	decisions, err := parseDecisions(raw)
	if err != nil {
		slog.Warn("memory distillation returned unparseable output", "error", err, "output", raw)
		return nil
	}

	var valid []Decision
	for _, dec := range decisions {
		if !dec.ShouldWrite {
			continue
		}
		if dec.Target != TargetUser && dec.Target != TargetCompany {
			slog.Warn("memory distillation produced unknown target", "target", dec.Target)
			continue
		}
		if strings.TrimSpace(dec.Fact) == "" {
			continue
		}
		valid = append(valid, dec)
	}
	return valid
}

// parseDecisions extracts the JSON array from model output, tolerating
// markdown code fences and surrounding prose.
func parseDecisions(raw string) ([]Decision, error) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	start := strings.Index(cleaned, "[")
	end := strings.LastIndex(cleaned, "]")
	if start >= 0 && end > start {
		cleaned = cleaned[start : end+1]
	}

	var decisions []Decision
	if err := json.Unmarshal([]byte(cleaned), &decisions); err != nil {
		return nil, err
	}
	return decisions, nil
}
