package pipeline

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrRenderFailed indicates the translated document could not be written.
// Fatal for the document branch only.
var ErrRenderFailed = errors.New("document rendering failed")

const (
	pageWidth  = 612.0 // US letter, points
	pageHeight = 792.0
	pageMargin = 50.0
	fontSize   = 11.0
	lineHeight = 16.0

	renderDisclaimer = "[Note: this document was rendered with a reduced character set; " +
		"some characters of the target script could not be displayed.]"
)

// helveticaWidths holds glyph widths (thousandths of font size) for ASCII
// 32..126 from the standard Helvetica metrics.
var helveticaWidths = [95]int{
	278, 278, 355, 556, 556, 889, 667, 191, 333, 333, 389, 584, 278, 333,
	278, 278, 556, 556, 556, 556, 556, 556, 556, 556, 556, 556, 278, 278,
	584, 584, 584, 556, 1015, 667, 667, 722, 722, 667, 611, 778, 722, 278,
	500, 667, 556, 833, 722, 778, 667, 778, 722, 667, 611, 722, 667, 944,
	667, 667, 611, 278, 278, 278, 469, 556, 333, 556, 556, 500, 556, 556,
	278, 556, 556, 222, 222, 500, 222, 833, 556, 556, 556, 556, 333, 500,
	278, 556, 500, 722, 500, 500, 500, 334, 260, 334, 584,
}

// latinScripts lists target languages whose text the base Helvetica font can
// display natively. Anything else degrades to placeholder rendering with an
// in-document disclaimer.
var latinScripts = map[string]bool{
	"en": true, "en-uk": true, "pt": true, "es": true,
	"fr": true, "de": true, "it": true,
}

// Renderer lays translated text out as a paginated PDF using the built-in
// Helvetica font. Word wrap follows real glyph widths; pages break on
// vertical overflow.
type Renderer struct{}

func NewRenderer() *Renderer {
	return &Renderer{}
}

// Render writes the translated text to outputPath as a PDF. Non-Latin target
// scripts fall back to a best-effort transliteration with a disclaimer.
func (r *Renderer) Render(text, targetLang, outputPath string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("%w: empty document text", ErrRenderFailed)
	}

	degraded := !latinScripts[targetLang]
	encoded, replaced := encodeWinAnsi(text)
	if replaced > 0 {
		degraded = true
	}
	if degraded {
		encoded = renderDisclaimer + "\n\n" + encoded
	}

	lines := layoutLines(encoded)
	pages := paginate(lines)
	document := buildPDF(pages)

	if err := os.WriteFile(outputPath, document, 0o644); err != nil {
		return fmt.Errorf("%w: write output: %v", ErrRenderFailed, err)
	}
	return nil
}

// encodeWinAnsi maps the text onto the Latin-1 subset Helvetica can show,
// replacing everything else with '?', and reports how many runes it replaced.
func encodeWinAnsi(text string) (string, int) {
	var out strings.Builder
	replaced := 0
	for _, r := range text {
		switch {
		case r == '\n' || r == '\t':
			out.WriteRune(r)
		case r >= 32 && r < 127:
			out.WriteRune(r)
		case r >= 0xA0 && r <= 0xFF:
			out.WriteRune(r)
		default:
			out.WriteByte('?')
			replaced++
		}
	}
	return out.String(), replaced
}

func glyphWidth(r rune) int {
	if r >= 32 && r < 127 {
		return helveticaWidths[r-32]
	}
	return 556
}

func stringWidth(s string) float64 {
	total := 0
	for _, r := range s {
		total += glyphWidth(r)
	}
	return float64(total) * fontSize / 1000.0
}

// layoutLines word-wraps each input line to the printable page width.
func layoutLines(text string) []string {
	maxWidth := pageWidth - 2*pageMargin
	lines := make([]string, 0)

	for _, raw := range strings.Split(text, "\n") {
		words := strings.Fields(raw)
		if len(words) == 0 {
			lines = append(lines, "")
			continue
		}
		current := ""
		for _, word := range words {
			candidate := word
			if current != "" {
				candidate = current + " " + word
			}
			if stringWidth(candidate) <= maxWidth {
				current = candidate
				continue
			}
			if current != "" {
				lines = append(lines, current)
			}
			// A single word wider than the page is cut hard, on rune
			// boundaries so multibyte characters stay intact.
			for stringWidth(word) > maxWidth {
				runes := []rune(word)
				cut := len(runes)
				for cut > 1 && stringWidth(string(runes[:cut])) > maxWidth {
					cut--
				}
				lines = append(lines, string(runes[:cut]))
				word = string(runes[cut:])
			}
			current = word
		}
		if current != "" {
			lines = append(lines, current)
		}
	}
	return lines
}

func paginate(lines []string) [][]string {
	printable := pageHeight - 2*pageMargin
	perPage := int(printable / lineHeight)
	if perPage < 1 {
		perPage = 1
	}
	pages := make([][]string, 0, len(lines)/perPage+1)
	for start := 0; start < len(lines); start += perPage {
		end := start + perPage
		if end > len(lines) {
			end = len(lines)
		}
		pages = append(pages, lines[start:end])
	}
	if len(pages) == 0 {
		pages = append(pages, []string{""})
	}
	return pages
}

// buildPDF emits a complete single-font PDF document from paginated lines.
func buildPDF(pages [][]string) []byte {
	type object struct {
		body []byte
	}
	objects := make([]object, 0, 3+2*len(pages))
	add := func(body string) int {
		objects = append(objects, object{body: []byte(body)})
		return len(objects) // object numbers are 1-based
	}

	fontObj := add("<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>")

	pageObjNums := make([]int, 0, len(pages))
	contentObjNums := make([]int, 0, len(pages))
	for _, lines := range pages {
		stream := buildContentStream(lines)
		contentObjNums = append(contentObjNums, add(fmt.Sprintf(
			"<< /Length %d >>\nstream\n%s\nendstream", len(stream), stream)))
	}

	pagesObjNum := len(objects) + len(pages) + 1
	for _, contentNum := range contentObjNums {
		pageObjNums = append(pageObjNums, add(fmt.Sprintf(
			"<< /Type /Page /Parent %d 0 R /MediaBox [0 0 %.0f %.0f] "+
				"/Resources << /Font << /F1 %d 0 R >> >> /Contents %d 0 R >>",
			pagesObjNum, pageWidth, pageHeight, fontObj, contentNum)))
	}

	kids := make([]string, 0, len(pageObjNums))
	for _, num := range pageObjNums {
		kids = append(kids, fmt.Sprintf("%d 0 R", num))
	}
	pagesObj := add(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>",
		strings.Join(kids, " "), len(pageObjNums)))
	catalogObj := add(fmt.Sprintf("<< /Type /Catalog /Pages %d 0 R >>", pagesObj))

	var out bytes.Buffer
	out.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = out.Len()
		fmt.Fprintf(&out, "%d 0 obj\n", i+1)
		out.Write(obj.body)
		out.WriteString("\nendobj\n")
	}

	xrefStart := out.Len()
	fmt.Fprintf(&out, "xref\n0 %d\n", len(objects)+1)
	out.WriteString("0000000000 65535 f \n")
	for _, offset := range offsets {
		fmt.Fprintf(&out, "%010d 00000 n \n", offset)
	}
	fmt.Fprintf(&out, "trailer\n<< /Size %d /Root %d 0 R >>\nstartxref\n%d\n%%%%EOF\n",
		len(objects)+1, catalogObj, xrefStart)
	return out.Bytes()
}

func buildContentStream(lines []string) string {
	var stream strings.Builder
	fmt.Fprintf(&stream, "BT\n/F1 %.0f Tf\n%.0f TL\n%.0f %.0f Td\n",
		fontSize, lineHeight, pageMargin, pageHeight-pageMargin-fontSize)
	for i, line := range lines {
		if i > 0 {
			stream.WriteString("T*\n")
		}
		fmt.Fprintf(&stream, "(%s) Tj\n", escapePDFString(line))
	}
	stream.WriteString("ET")
	return stream.String()
}

// escapePDFString escapes string-literal delimiters and encodes non-ASCII
// Latin-1 bytes as octal escapes.
func escapePDFString(s string) string {
	var out strings.Builder
	for _, r := range s {
		switch {
		case r == '(' || r == ')' || r == '\\':
			out.WriteByte('\\')
			out.WriteRune(r)
		case r == '\t':
			out.WriteString("    ")
		case r >= 32 && r < 127:
			out.WriteRune(r)
		case r >= 0xA0 && r <= 0xFF:
			fmt.Fprintf(&out, "\\%03o", r)
		default:
			out.WriteByte('?')
		}
	}
	return out.String()
}
