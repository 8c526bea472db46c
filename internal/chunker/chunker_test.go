package chunker

import (
	"strings"
	"testing"
)

func wordsText(n int) string {
	words := make([]string, n)
	for i := range words {
		words[i] = "w"
	}
	return strings.Join(words, " ")
}

func TestChunk_EmptyText(t *testing.T) {
	if got := Chunk("", DefaultSize, DefaultOverlap); got != nil {
		t.Errorf("chunking empty text = %v, want nil", got)
	}
	if got := Chunk("   \n\t  ", DefaultSize, DefaultOverlap); got != nil {
		t.Errorf("chunking blank text = %v, want nil", got)
	}
}

func TestChunk_ShortTextSingleChunk(t *testing.T) {
	got := Chunk("hello world", DefaultSize, DefaultOverlap)
	if len(got) != 1 {
		t.Fatalf("got %d chunks, want 1", len(got))
	}
	if got[0] != "hello world" {
		t.Errorf("chunk = %q, want %q", got[0], "hello world")
	}
}

func TestChunk_WindowCount(t *testing.T) {
	// 1200 words, window 500, overlap 50: windows start at 0, 450, 900.
	got := Chunk(wordsText(1200), 500, 50)
	if len(got) != 3 {
		t.Fatalf("got %d chunks, want 3", len(got))
	}

	wantLens := []int{500, 500, 300}
	for i, c := range got {
		if n := len(strings.Fields(c)); n != wantLens[i] {
			t.Errorf("chunk %d has %d words, want %d", i, n, wantLens[i])
		}
	}
}

func TestChunk_OverlapBoundsWordCount(t *testing.T) {
	const total = 1234
	const size, overlap = 100, 20
	chunks := Chunk(wordsText(total), size, overlap)

	sum := 0
	for _, c := range chunks {
		sum += len(strings.Fields(c))
	}
	if sum < total {
		t.Errorf("chunks cover %d words, want at least %d", sum, total)
	}
	if excess := sum - total; excess > overlap*(len(chunks)-1) {
		t.Errorf("excess %d words exceeds overlap bound %d", excess, overlap*(len(chunks)-1))
	}
}

func TestChunk_NonBlankFallback(t *testing.T) {
	// A single word with pathological parameters still produces one chunk.
	got := Chunk("survivor", 1, 0)
	if len(got) != 1 || got[0] != "survivor" {
		t.Fatalf("got %v, want [survivor]", got)
	}
}

func TestChunk_InvalidParamsUseDefaults(t *testing.T) {
	got := Chunk(wordsText(600), 0, -5)
	if len(got) == 0 {
		t.Fatal("got no chunks for non-empty text")
	}
	if n := len(strings.Fields(got[0])); n != 500 {
		t.Errorf("first chunk has %d words, want default window 500", n)
	}
}
