// Package pdftext turns uploaded documents into plain text.
package pdftext

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ErrExtraction is returned when no text could be read from a document.
var ErrExtraction = errors.New("pdf text extraction failed")

// Extractor reads text out of PDF files. pdftotext (poppler-utils) is
// preferred when installed; the pure Go reader is the fallback.
type Extractor struct {
	// Pdftotext is the binary to run; empty disables the external tool.
	Pdftotext string
}

// New returns an extractor that uses pdftotext when it is on PATH.
func New() *Extractor {
	e := &Extractor{}
	if path, err := exec.LookPath("pdftotext"); err == nil {
		e.Pdftotext = path
	}
	return e
}

// ExtractPDF spools r to a temp file and returns its text.
func (e *Extractor) ExtractPDF(ctx context.Context, r io.Reader) (string, error) {
	tmp, err := os.CreateTemp("", "resume-*.pdf")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return "", fmt.Errorf("spool upload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("spool upload: %w", err)
	}
	return e.ExtractFile(ctx, tmp.Name())
}

// ExtractFile returns the text of the PDF at path.
func (e *Extractor) ExtractFile(ctx context.Context, path string) (string, error) {
	if e.Pdftotext != "" {
		text, err := e.runPdftotext(ctx, path)
		if err == nil && text != "" {
			return text, nil
		}
	}
	text, err := readWithGoLib(path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrExtraction, err)
	}
	if text == "" {
		return "", fmt.Errorf("%w: no text in document", ErrExtraction)
	}
	return text, nil
}

func (e *Extractor) runPdftotext(ctx context.Context, path string) (string, error) {
	cmd := exec.CommandContext(ctx, e.Pdftotext, "-layout", "-enc", "UTF-8", path, "-")
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("pdftotext failed: %w", err)
	}
	return normalizeTextPreserveNewlines(string(output)), nil
}

func readWithGoLib(path string) (text string, err error) {
	// The reader panics on some malformed inputs.
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("parse pdf: %v", rec)
		}
	}()
	file, reader, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer file.Close()

	var pages []string
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			// skip unreadable pages
			continue
		}
		if pageText = normalizeTextPreserveNewlines(pageText); pageText != "" {
			pages = append(pages, pageText)
		}
	}
	return strings.Join(pages, "\n\n"), nil
}

// normalizeTextPreserveNewlines cleans extracted text while keeping line
// structure: NULs and invalid UTF-8 are dropped, trailing spaces trimmed and
// runs of blank lines collapsed to one.
func normalizeTextPreserveNewlines(text string) string {
	text = strings.ReplaceAll(text, "\x00", " ")
	text = strings.ToValidUTF8(text, "")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\f", "\n")

	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.TrimRight(line, " \t\r")
		if strings.TrimSpace(line) == "" {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		}
		blank = false
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
