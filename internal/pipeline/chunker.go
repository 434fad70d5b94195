package pipeline

import (
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/voxdoc/voxdoc-back/internal/domain"
)

// ErrNoExtractableText indicates the document produced no usable text at
// all. Fatal for the whole job.
var ErrNoExtractableText = errors.New("no extractable text in document")

var (
	sentenceBoundary  = regexp.MustCompile(`(?s)(.*?[.!?。！？])(?:\s+|$)`)
	paragraphBoundary = regexp.MustCompile(`\n\s*\n`)
)

// Chunker splits extracted page text into bounded, ordered chunks. Paragraph
// boundaries are preferred, then sentence boundaries inside a paragraph;
// sentences are packed greedily until the bound would be exceeded. A page
// boundary always flushes the current chunk so chunk/page correlation stays
// loose but bounded.
type Chunker struct {
	maxChars int
}

func NewChunker(maxChars int) *Chunker {
	if maxChars < 200 {
		maxChars = 200
	}
	if maxChars > 1000 {
		maxChars = 1000
	}
	return &Chunker{maxChars: maxChars}
}

// Split returns ordered chunks with contiguous indices. Empty pages are
// skipped without holes in the index sequence.
func (c *Chunker) Split(pages []string) ([]domain.Chunk, error) {
	chunks := make([]domain.Chunk, 0)
	var current strings.Builder

	flush := func() {
		text := strings.TrimSpace(current.String())
		current.Reset()
		if text == "" {
			return
		}
		chunks = append(chunks, domain.Chunk{Index: len(chunks), Text: text})
	}

	for _, page := range pages {
		for _, paragraph := range splitParagraphs(page) {
			for _, sentence := range splitSentences(paragraph) {
				if current.Len() > 0 && current.Len()+len(sentence)+1 > c.maxChars {
					flush()
				}
				for len(sentence) > c.maxChars {
					// A single run-on sentence longer than the bound is cut
					// hard, backed up to a rune boundary so multibyte text
					// stays valid UTF-8.
					cut := c.maxChars
					for cut > 0 && !utf8.RuneStart(sentence[cut]) {
						cut--
					}
					if cut == 0 {
						cut = c.maxChars
					}
					flush()
					current.WriteString(sentence[:cut])
					flush()
					sentence = sentence[cut:]
				}
				if current.Len() > 0 {
					current.WriteByte(' ')
				}
				current.WriteString(sentence)
			}
			if current.Len() > 0 {
				flush()
			}
		}
		flush()
	}
	flush()

	if len(chunks) == 0 {
		return nil, ErrNoExtractableText
	}
	return chunks, nil
}

func splitParagraphs(page string) []string {
	normalized := strings.ReplaceAll(page, "\r\n", "\n")
	raw := paragraphBoundary.Split(normalized, -1)
	paragraphs := make([]string, 0, len(raw))
	for _, paragraph := range raw {
		collapsed := strings.Join(strings.Fields(paragraph), " ")
		if collapsed == "" {
			continue
		}
		paragraphs = append(paragraphs, collapsed)
	}
	return paragraphs
}

func splitSentences(paragraph string) []string {
	matches := sentenceBoundary.FindAllStringSubmatch(paragraph, -1)
	sentences := make([]string, 0, len(matches)+1)
	consumed := 0
	for _, match := range matches {
		sentence := strings.TrimSpace(match[1])
		if sentence != "" {
			sentences = append(sentences, sentence)
		}
		consumed += len(match[0])
	}
	if rest := strings.TrimSpace(paragraph[consumed:]); rest != "" {
		sentences = append(sentences, rest)
	}
	return sentences
}
