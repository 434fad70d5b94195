package pipeline

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestChunkerSplitsAcrossPagesWithContiguousIndices(t *testing.T) {
	pages := []string{
		"First sentence on page one. Second sentence on page one.",
		"",
		"Only sentence on page three.",
	}

	chunker := NewChunker(200)
	chunks, err := chunker.Split(pages)
	if err != nil {
		t.Fatalf("expected success, got err=%v", err)
	}
	if len(chunks) == 0 {
		t.Fatalf("expected at least one chunk")
	}
	for i, chunk := range chunks {
		if chunk.Index != i {
			t.Fatalf("expected contiguous index %d, got %d", i, chunk.Index)
		}
		if strings.TrimSpace(chunk.Text) == "" {
			t.Fatalf("expected non-empty chunk text at index %d", i)
		}
	}
	last := chunks[len(chunks)-1]
	if !strings.Contains(last.Text, "page three") {
		t.Fatalf("expected last chunk from page three, got %q", last.Text)
	}
}

func TestChunkerRespectsCharacterBound(t *testing.T) {
	sentence := "This sentence is repeated to grow the paragraph past the bound."
	paragraph := strings.Repeat(sentence+" ", 40)

	chunker := NewChunker(300)
	chunks, err := chunker.Split([]string{paragraph})
	if err != nil {
		t.Fatalf("expected success, got err=%v", err)
	}
	if len(chunks) < 2 {
		t.Fatalf("expected paragraph split over multiple chunks, got %d", len(chunks))
	}
	for _, chunk := range chunks {
		if len(chunk.Text) > 300 {
			t.Fatalf("chunk %d exceeds bound: %d chars", chunk.Index, len(chunk.Text))
		}
	}
}

func TestChunkerHardCutsRunOnSentence(t *testing.T) {
	runOn := strings.Repeat("word ", 300) // no sentence terminator at all

	chunker := NewChunker(400)
	chunks, err := chunker.Split([]string{runOn})
	if err != nil {
		t.Fatalf("expected success, got err=%v", err)
	}
	if len(chunks) < 3 {
		t.Fatalf("expected run-on text cut into several chunks, got %d", len(chunks))
	}
	for _, chunk := range chunks {
		if len(chunk.Text) > 400 {
			t.Fatalf("chunk %d exceeds bound after hard cut: %d chars", chunk.Index, len(chunk.Text))
		}
	}
}

func TestChunkerPreservesParagraphGroupingWithinBound(t *testing.T) {
	pages := []string{"Short one. Short two.\n\nAnother paragraph here."}

	chunker := NewChunker(500)
	chunks, err := chunker.Split(pages)
	if err != nil {
		t.Fatalf("expected success, got err=%v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("expected one chunk per paragraph, got %d", len(chunks))
	}
	if chunks[0].Text != "Short one. Short two." {
		t.Fatalf("unexpected first chunk: %q", chunks[0].Text)
	}
	if chunks[1].Text != "Another paragraph here." {
		t.Fatalf("unexpected second chunk: %q", chunks[1].Text)
	}
}

func TestChunkerReportsNoExtractableText(t *testing.T) {
	chunker := NewChunker(800)
	_, err := chunker.Split([]string{"", "   \n\n  ", "\f"})
	if !errors.Is(err, ErrNoExtractableText) {
		t.Fatalf("expected ErrNoExtractableText, got %v", err)
	}
}

func TestChunkerClampsBound(t *testing.T) {
	tiny := NewChunker(10)
	if tiny.maxChars != 200 {
		t.Fatalf("expected lower clamp 200, got %d", tiny.maxChars)
	}
	huge := NewChunker(50000)
	if huge.maxChars != 1000 {
		t.Fatalf("expected upper clamp 1000, got %d", huge.maxChars)
	}
}

func TestChunkerHardCutKeepsMultibyteRunesIntact(t *testing.T) {
	// One unbroken run of 3-byte runes, long enough to force hard cuts.
	runOn := strings.Repeat("あ", 1500)

	chunker := NewChunker(1000)
	chunks, err := chunker.Split([]string{runOn})
	if err != nil {
		t.Fatalf("expected success, got err=%v", err)
	}
	if len(chunks) < 2 {
		t.Fatalf("expected the run-on text to be cut, got %d chunks", len(chunks))
	}
	var rejoined strings.Builder
	for i, chunk := range chunks {
		if !utf8.ValidString(chunk.Text) {
			t.Fatalf("chunk %d is not valid UTF-8 after hard cut", i)
		}
		rejoined.WriteString(chunk.Text)
	}
	if rejoined.String() != runOn {
		t.Fatalf("expected cuts to preserve the original text")
	}
}
