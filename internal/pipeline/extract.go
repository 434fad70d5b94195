package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Extractor turns an uploaded document into per-page text. PDF extraction
// shells out to pdftotext; plain text uploads are read directly as one page.
type Extractor struct {
	pdftotextPath string
}

func NewExtractor(pdftotextPath string) *Extractor {
	if strings.TrimSpace(pdftotextPath) == "" {
		pdftotextPath = "pdftotext"
	}
	return &Extractor{pdftotextPath: pdftotextPath}
}

// Pages extracts the document text split per page.
func (e *Extractor) Pages(ctx context.Context, inputPath string) ([]string, error) {
	if strings.EqualFold(filepath.Ext(inputPath), ".txt") {
		content, err := os.ReadFile(inputPath)
		if err != nil {
			return nil, fmt.Errorf("read text upload: %w", err)
		}
		return []string{string(content)}, nil
	}

	// pdftotext writes to stdout with "-"; pages are separated by form feeds.
	cmd := exec.CommandContext(ctx, e.pdftotextPath, "-layout", "-enc", "UTF-8", inputPath, "-")
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if len(detail) > 300 {
			detail = detail[:300]
		}
		return nil, fmt.Errorf("pdftotext failed: %w: %s", err, detail)
	}

	pages := strings.Split(stdout.String(), "\f")
	// pdftotext emits a trailing form feed after the last page.
	if len(pages) > 0 && strings.TrimSpace(pages[len(pages)-1]) == "" {
		pages = pages[:len(pages)-1]
	}
	return pages, nil
}
