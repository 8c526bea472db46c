// Package composer assembles system prompts from retrieved context and
// tool output.
package composer

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/halverson/skald/internal/retrieval"
	"github.com/halverson/skald/internal/weather"
)

const systemPreamble = `You are a helpful assistant with access to the user's documents and live weather data.

Rules:
- When document context is provided, ground your answer in it and cite sources inline as [Source: filename, Chunk N].
- If the user asks about their documents and no relevant context is provided, say "I couldn't find that in your files." rather than guessing.
- When weather data is provided, analyze it rather than just repeating the numbers.
- Format responses in markdown.
- Be concise.`

// BuildSystemPrompt combines the preamble with retrieved document context
// and an optional weather snapshot. hasContext distinguishes "no relevant
// chunks" from "no documents indexed at all" so the model can answer
// general questions normally in the latter case.
func BuildSystemPrompt(contextText string, snapshot *weather.Snapshot, hasContext bool) string {
	var b strings.Builder
	b.WriteString(systemPreamble)

	if hasContext {
		b.WriteString("\n\n## Retrieved Document Context\n\n")
		b.WriteString(contextText)
	}

	if snapshot != nil {
		data, err := json.MarshalIndent(snapshot, "", "  ")
		if err == nil {
			b.WriteString("\n\n## Weather Data\n\n")
			b.Write(data)
		}
	}

	return b.String()
}

// FormatContext renders chunks as labelled blocks matching the citation
// format the preamble asks the model to use. Chunk ordinals are 1-based,
// matching the page field of structured citations.
func FormatContext(chunks []retrieval.ContextChunk) string {
	var b strings.Builder
	for i, c := range chunks {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[Source: %s, Chunk %d]\n%s", c.Source, c.ChunkIndex+1, c.Text)
	}
	return b.String()
}
