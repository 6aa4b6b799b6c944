package strategy

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Veraticus/statement-flow/internal/common"
	"github.com/Veraticus/statement-flow/internal/model"
	"github.com/Veraticus/statement-flow/internal/normalize"
	"github.com/Veraticus/statement-flow/internal/tabular"
)

// DefaultExcerptChars bounds the text handed to a reviewer.
const DefaultExcerptChars = 2000

// Text shorter than this suggests a scanned PDF with no text layer.
const scannedTextThreshold = 40

// ManualCorrection is the terminal handoff to a human reviewer. It never
// succeeds.
type ManualCorrection struct {
	tracker DocumentTracker
	logger  *slog.Logger
}

// NewManualCorrection creates the handoff. tracker may be nil.
func NewManualCorrection(tracker DocumentTracker, logger *slog.Logger) *ManualCorrection {
	return &ManualCorrection{tracker: tracker, logger: common.LoggerOrDefault(logger)}
}

// Method implements Strategy.
func (m *ManualCorrection) Method() model.Method { return model.MethodManualCorrection }

// Supports implements Strategy.
func (m *ManualCorrection) Supports(ft model.FileType) bool { return ft.IsValid() }

// Attempt implements Strategy.
func (m *ManualCorrection) Attempt(ctx context.Context, in *Input) (model.ParseResult, error) {
	var warnings []string
	if m.tracker != nil {
		if err := m.tracker.UpdateDocumentStatus(ctx, in.Document.ID, model.DocumentNeedsReview); err != nil {
			m.logger.Warn("Failed to mark document for review", "document_id", in.Document.ID, "error", err)
			warnings = append(warnings, "document status could not be updated")
		}
	}

	chars := in.Options.ExcerptChars
	if chars <= 0 {
		chars = DefaultExcerptChars
	}
	text := in.Text()

	payload := &model.ManualCorrectionPayload{
		Excerpt:     normalize.Excerpt(text, chars),
		Attempts:    append([]model.AttemptSummary{}, in.Prior...),
		Suggestions: Suggestions(in),
		Institution: in.Detection.Name,
		TotalChars:  len([]rune(text)),
	}

	return model.ParseResult{
		Method:           m.Method(),
		Error:            "manual correction required",
		Transactions:     []model.ParsedTransaction{},
		Warnings:         warnings,
		ManualCorrection: payload,
		Terminal:         true,
	}, nil
}

// Suggestions proposes concrete next steps for a reviewer from what the
// automated strategies saw.
func Suggestions(in *Input) []string {
	var out []string
	text := in.Text()
	ft := in.Document.FileType

	if ft == model.FileTypePDF && len([]rune(text)) < scannedTextThreshold {
		out = append(out, "The PDF has almost no extractable text; it may be scanned and need OCR before parsing")
	}

	if in.Detection.Found() {
		out = append(out, fmt.Sprintf("Create a regex pattern for %s statement lines", in.Detection.Name))
	} else if !ft.IsTabular() {
		out = append(out, "No institution was recognized; add an owner-scoped regex pattern for this statement layout")
	}

	if in.Content.HasTable() {
		if !tabular.DetectColumns(in.Content.Table).HasRequired() {
			out = append(out, "Confirm which columns hold the date, amount and description so the mapping is learned")
		}
	} else if len(tabular.CandidateLines(text, in.DateOrder())) == 0 && text != "" {
		out = append(out, "No line contains both a date and an amount; check the text extraction or date format")
	}

	if len(out) == 0 {
		out = append(out, "Annotate the expected transactions for this document so future uploads can learn from it")
	}
	return out
}
