// Package pipeline orchestrates a chat turn: intent classification, tool
// fan-out, prompt composition, generation, and memory distillation.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/halverson/skald/internal/composer"
	"github.com/halverson/skald/internal/genai"
	"github.com/halverson/skald/internal/intent"
	"github.com/halverson/skald/internal/memory"
	"github.com/halverson/skald/internal/retrieval"
	"github.com/halverson/skald/internal/retry"
	"github.com/halverson/skald/internal/weather"
)

// ApologyText is the response returned when generation fails outright.
const ApologyText = "I encountered an error generating a response. Please try again."

const (
	maxCitations       = 5
	citationPreviewMax = 150
)

// WeatherFetcher fetches a forecast snapshot for the city named in a query.
type WeatherFetcher interface {
	Fetch(ctx context.Context, query string) (*weather.Snapshot, error)
}

// ContextRetriever finds document chunks relevant to a query.
type ContextRetriever interface {
	Retrieve(ctx context.Context, query string) ([]retrieval.ContextChunk, error)
}

// DocumentCounter reports how many documents are indexed.
type DocumentCounter interface {
	CountDocuments() (int, error)
}

// Generator produces a model completion.
type Generator interface {
	Generate(ctx context.Context, systemPrompt, userMessage string) (string, error)
}

// MemoryWriter appends a distilled fact to a memory target.
type MemoryWriter interface {
	Append(target, fact string, id string, at time.Time) error
}

// FactDistiller decides which facts from an exchange to remember.
type FactDistiller interface {
	Distill(ctx context.Context, userMessage, assistantResponse string) []memory.Decision
}

// Citation points a response back at a source chunk. Page is the 1-based
// chunk ordinal; Chunk holds a truncated text preview.
type Citation struct {
	Source string `json:"source"`
	Page   int    `json:"page"`
	Chunk  string `json:"chunk"`
}

// ThoughtStep is one entry in the turn's visible reasoning trace.
type ThoughtStep struct {
	Step   string `json:"step"`
	Detail string `json:"detail"`
}

// Result is the outcome of one chat turn. Slices are never nil so they
// serialize as JSON arrays.
type Result struct {
	Response      string        `json:"response"`
	Citations     []Citation    `json:"citations"`
	Thoughts      []ThoughtStep `json:"thoughts"`
	MemoryUpdates []string      `json:"memory_updates"`
}

// Turn runs chat turns end to end. Tool failures degrade the turn rather
// than failing it; only the final generation failure produces the apology
// response.
type Turn struct {
	weather           WeatherFetcher
	retriever         ContextRetriever
	documents         DocumentCounter
	generator         Generator
	memory            MemoryWriter
	distiller         FactDistiller
	distanceThreshold float32
	retryPolicy       retry.Policy
}

// NewTurn wires a turn orchestrator. distanceThreshold is the cosine
// distance above which retrieved chunks are discarded as irrelevant.
func NewTurn(
	weatherClient WeatherFetcher,
	retriever ContextRetriever,
	documents DocumentCounter,
	generator Generator,
	memoryStore MemoryWriter,
	distiller FactDistiller,
	distanceThreshold float32,
	retryPolicy retry.Policy,
) *Turn {
	return &Turn{
		weather:           weatherClient,
		retriever:         retriever,
		documents:         documents,
		generator:         generator,
		memory:            memoryStore,
		distiller:         distiller,
		distanceThreshold: distanceThreshold,
		retryPolicy:       retryPolicy,
	}
}

// Run executes one chat turn. It always returns a usable Result; errors in
// tools or generation surface as degraded responses, never as an error.
func (t *Turn) Run(ctx context.Context, message string) Result {
	result := Result{
		Citations:     []Citation{},
		Thoughts:      []ThoughtStep{},
		MemoryUpdates: []string{},
	}

	// Step 1: intent.
	isWeather := intent.IsWeatherQuery(message)
	if isWeather {
		result.Thoughts = append(result.Thoughts, ThoughtStep{
			Step:   "Weather Detection",
			Detail: "Query mentions weather; fetching live forecast",
		})
	}

	// Step 2: fan out weather and retrieval concurrently. Branch errors are
	// logged and swallowed so one tool failing never sinks the turn.
	// Retrieval is skipped entirely when nothing is indexed.
	docCount, err := t.documents.CountDocuments()
	if err != nil {
		slog.Warn("counting documents failed", "error", err)
		docCount = 0
	}

	var snapshot *weather.Snapshot
	var chunks []retrieval.ContextChunk

	g, gctx := errgroup.WithContext(ctx)
	if isWeather {
		g.Go(func() error {
			snap, err := t.weather.Fetch(gctx, message)
			if err != nil {
				slog.Warn("weather fetch failed", "error", err)
				return nil
			}
			snapshot = snap
			return nil
		})
	}
	if docCount > 0 {
		g.Go(func() error {
			retrieved, err := t.retriever.Retrieve(gctx, message)
			if err != nil {
				slog.Warn("context retrieval failed", "error", err)
				return nil
			}
			chunks = retrieved
			return nil
		})
	}
	g.Wait()

	// Thought steps are appended after the fan-out so their order is
	// deterministic regardless of which branch finished first.
	if isWeather && snapshot != nil {
		result.Thoughts = append(result.Thoughts, ThoughtStep{
			Step:   "Weather Data Retrieved",
			Detail: snapshot.Summary,
		})
	}
	result.Thoughts = append(result.Thoughts, ThoughtStep{
		Step:   "Searching Documents",
		Detail: fmt.Sprintf("Queried vector index across %d documents", docCount),
	})

	// Step 3: relevance filter.
	var accepted []retrieval.ContextChunk
	for _, c := range chunks {
		if c.Distance < t.distanceThreshold {
			accepted = append(accepted, c)
		}
	}

	if len(accepted) > 0 {
		result.Thoughts = append(result.Thoughts, ThoughtStep{
			Step:   "Documents Found",
			Detail: fmt.Sprintf("%d relevant chunks passed the relevance filter", len(accepted)),
		})
	} else {
		result.Thoughts = append(result.Thoughts, ThoughtStep{
			Step:   "No Documents",
			Detail: "No chunks were relevant enough to cite",
		})
	}

	// Step 4: citations from accepted chunks, capped.
	for _, c := range accepted {
		if len(result.Citations) >= maxCitations {
			break
		}
		result.Citations = append(result.Citations, Citation{
			Source: c.Source,
			Page:   c.ChunkIndex + 1,
			Chunk:  preview(c.Text),
		})
	}

	// Step 5: compose and generate, retrying only on rate limits.
	systemPrompt := composer.BuildSystemPrompt(
		composer.FormatContext(accepted), snapshot, len(accepted) > 0)

	result.Thoughts = append(result.Thoughts, ThoughtStep{
		Step:   "Generating Response",
		Detail: "Composing answer from gathered context",
	})

	// Generation failure degrades to the apology text; the turn still runs
	// its remaining steps.
	var response string
	err = retry.Do(ctx, t.retryPolicy, genai.IsRateLimit, func() error {
		var genErr error
		response, genErr = t.generator.Generate(ctx, systemPrompt, message)
		return genErr
	})
	if err != nil {
		slog.Error("response generation failed", "error", err)
		response = ApologyText
	}
	result.Response = response

	// A non-weather turn with no accepted context cites nothing; the model
	// answered from general knowledge.
	if len(accepted) == 0 && !isWeather {
		result.Citations = []Citation{}
	}

	// Step 6: distill and persist memory. Best effort.
	for _, dec := range t.distiller.Distill(ctx, message, response) {
		id := uuid.NewString()
		if err := t.memory.Append(dec.Target, dec.Fact, id, time.Now().UTC()); err != nil {
			slog.Warn("memory write failed", "target", dec.Target, "error", err)
			continue
		}
		result.MemoryUpdates = append(result.MemoryUpdates, fmt.Sprintf("%s: %s", dec.Target, dec.Fact))
	}

	return result
}

// preview truncates chunk text to a citation-sized excerpt, rune-safe.
func preview(text string) string {
	if utf8.RuneCountInString(text) <= citationPreviewMax {
		return text
	}
	runes := []rune(text)
	return string(runes[:citationPreviewMax]) + "..."
}
