package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"coverletterai/internal/util"
	"coverletterai/pkg/domain"
	"coverletterai/pkg/pdftext"
)

// FieldLabel is the human name of a draft field used in API messages.
func FieldLabel(f domain.DraftField) string {
	switch f {
	case domain.FieldJobDescription:
		return "job description"
	case domain.FieldJobRole:
		return "job role"
	case domain.FieldStory:
		return "professional story"
	default:
		return string(f)
	}
}

// SaveDraftField stores one field of the session's draft, resetting its TTL.
// Both the session id and a non-empty value are required.
func (a *App) SaveDraftField(ctx context.Context, sessionID string, field domain.DraftField, value string) error {
	if strings.TrimSpace(sessionID) == "" || value == "" {
		return ErrDraftValueRequired
	}
	if err := a.drafts.Put(ctx, sessionID, field, value); err != nil {
		return fmt.Errorf("save %s: %w", field, err)
	}
	a.metrics.RecordDraftWrite(string(field))
	return nil
}

// SaveJobDescriptionHTML stores the visible text of an HTML job posting.
func (a *App) SaveJobDescriptionHTML(ctx context.Context, sessionID, rawHTML string) error {
	if strings.TrimSpace(sessionID) == "" || strings.TrimSpace(rawHTML) == "" {
		return ErrDraftValueRequired
	}
	text, err := pdftext.HTMLToText(rawHTML)
	if err != nil || text == "" {
		return ErrDraftValueRequired
	}
	return a.SaveDraftField(ctx, sessionID, domain.FieldJobDescription, text)
}

// IsPDFName reports whether filename carries a .pdf extension.
func IsPDFName(filename string) bool {
	return strings.EqualFold(filepath.Ext(strings.TrimSpace(filename)), ".pdf")
}

// UploadResume extracts text from a PDF upload and stores it as the
// session's resume. The extension is checked before any extraction runs.
func (a *App) UploadResume(ctx context.Context, sessionID, filename string, r io.Reader) error {
	if strings.TrimSpace(filename) == "" {
		a.metrics.RecordUpload("rejected")
		return ErrNoSelectedFile
	}
	if !IsPDFName(filename) {
		a.metrics.RecordUpload("rejected")
		return ErrInvalidFileFormat
	}
	if strings.TrimSpace(sessionID) == "" {
		a.metrics.RecordUpload("rejected")
		return ErrSessionIDRequired
	}
	text, err := a.extractor.ExtractPDF(ctx, r)
	if err != nil {
		a.metrics.RecordUpload("failed")
		util.LoggerFromContext(ctx).Error("resume extraction failed",
			"session_id", sessionID, "filename", filename, "err", err,
			"unreadable", errors.Is(err, pdftext.ErrExtraction))
		return ErrExtractionFailed
	}
	if err := a.drafts.Put(ctx, sessionID, domain.FieldResume, text); err != nil {
		a.metrics.RecordUpload("failed")
		return fmt.Errorf("save resume: %w", err)
	}
	a.metrics.RecordUpload("stored")
	a.metrics.RecordDraftWrite(string(domain.FieldResume))
	return nil
}
