package app

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"strings"
	"text/template"

	"coverletterai/internal/util"
	"coverletterai/pkg/domain"
)

//go:embed prompts/system.txt
var systemPrompt string

//go:embed prompts/cover_letter.tmpl
var coverLetterPromptRaw string

var coverLetterTemplate = template.Must(template.New("cover_letter").Parse(coverLetterPromptRaw))

type promptData struct {
	Resume         string
	JobDescription string
	JobRole        string
	Company        string
	Story          string
}

// LoadDraft reads every draft field of a session. Each field is read on its
// own; fields that were never written or have expired are absent.
func (a *App) LoadDraft(ctx context.Context, sessionID string) (domain.Draft, error) {
	draft := make(domain.Draft, len(domain.DraftFields))
	for _, field := range domain.DraftFields {
		value, ok, err := a.drafts.Get(ctx, sessionID, field)
		if err != nil {
			return nil, err
		}
		if ok {
			draft[field] = value
		}
	}
	return draft, nil
}

// BuildPrompt renders the user prompt from whichever fields are present.
func BuildPrompt(draft domain.Draft) (string, error) {
	data := promptData{
		Resume:         strings.TrimSpace(draft[domain.FieldResume]),
		JobDescription: strings.TrimSpace(draft[domain.FieldJobDescription]),
		JobRole:        strings.TrimSpace(draft[domain.FieldJobRole]),
		Company:        strings.TrimSpace(draft[domain.FieldCompany]),
		Story:          strings.TrimSpace(draft[domain.FieldStory]),
	}
	var buf bytes.Buffer
	if err := coverLetterTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}
	return buf.String(), nil
}

// GenerateLetter assembles the session's draft and asks the generation
// service for a cover letter. An empty draft still produces a call.
// Any upstream failure is reported as ErrGenerationFailed.
func (a *App) GenerateLetter(ctx context.Context, sessionID string) (string, error) {
	if strings.TrimSpace(sessionID) == "" {
		return "", ErrSessionIDRequired
	}
	logger := util.LoggerFromContext(ctx).With("session_id", sessionID)

	draft, err := a.LoadDraft(ctx, sessionID)
	if err != nil {
		logger.Error("load draft failed", "err", err)
		a.metrics.RecordGeneration("draft_error", 0)
		return "", ErrGenerationFailed
	}
	if draft.Empty() {
		logger.Info("generating from empty draft")
	}
	prompt, err := BuildPrompt(draft)
	if err != nil {
		logger.Error("build prompt failed", "err", err)
		a.metrics.RecordGeneration("prompt_error", 0)
		return "", ErrGenerationFailed
	}

	start := a.now()
	letter, err := a.generator.GenerateText(ctx, systemPrompt, prompt)
	elapsed := a.now().Sub(start)
	if err != nil {
		logger.Error("generation failed", "err", err, "fields", len(draft), "duration_ms", elapsed.Milliseconds())
		a.metrics.RecordGeneration("failure", elapsed)
		return "", ErrGenerationFailed
	}
	if strings.TrimSpace(letter) == "" {
		logger.Error("generation returned no text", "fields", len(draft))
		a.metrics.RecordGeneration("empty", elapsed)
		return "", ErrGenerationFailed
	}
	a.metrics.RecordGeneration("success", elapsed)
	logger.Info("cover letter generated", "fields", len(draft), "duration_ms", elapsed.Milliseconds())
	return letter, nil
}
