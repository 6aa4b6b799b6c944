package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/Veraticus/statement-flow/internal/model"
)

// Renderer writes human-readable reports to w.
type Renderer struct {
	w io.Writer
}

// NewRenderer creates a renderer.
func NewRenderer(w io.Writer) *Renderer {
	return &Renderer{w: w}
}

// JSON writes v as indented JSON.
func (r *Renderer) JSON(v any) error {
	enc := json.NewEncoder(r.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Result writes a parse result: either the extracted transactions or the
// manual-correction payload.
func (r *Renderer) Result(name string, result *model.ParseResult) error {
	if result.RequiresManualCorrection() {
		return r.manual(name, result.ManualCorrection)
	}
	if !result.Success {
		_, err := fmt.Fprintln(r.w, FormatError(fmt.Sprintf("%s: %s", name, result.Error)))
		return err
	}

	header := fmt.Sprintf("%s: %d transactions via %s (confidence %.2f)",
		name, len(result.Transactions), result.Method, result.Confidence)
	if result.Institution != "" {
		header += ", " + result.Institution
	}
	if _, err := fmt.Fprintln(r.w, FormatSuccess(header)); err != nil {
		return err
	}

	w := tabwriter.NewWriter(r.w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "DATE\tAMOUNT\tTYPE\tDESCRIPTION")
	_, _ = fmt.Fprintln(w, "────\t──────\t────\t───────────")
	for _, tx := range result.Transactions {
		_, _ = fmt.Fprintf(w, "%s\t%10.2f\t%s\t%s\n",
			tx.Date.Format(time.DateOnly),
			tx.SignedAmount(),
			tx.Type,
			truncate(tx.Description, 48))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	for _, warning := range result.Warnings {
		if _, err := fmt.Fprintln(r.w, FormatWarning(warning)); err != nil {
			return err
		}
	}
	if v := result.Validation; v != nil && v.DuplicateCount > 0 {
		msg := fmt.Sprintf("%d possible duplicates (%d dropped)", v.DuplicateCount, v.DuplicatesDropped)
		if _, err := fmt.Fprintln(r.w, FormatWarning(msg)); err != nil {
			return err
		}
	}
	return nil
}

func (r *Renderer) manual(name string, p *model.ManualCorrectionPayload) error {
	var b strings.Builder
	if p.Institution != "" {
		fmt.Fprintf(&b, "Institution: %s\n", p.Institution)
	}
	b.WriteString("Attempts:\n")
	for _, a := range p.Attempts {
		fmt.Fprintf(&b, "  %d. %s: %s", a.Ordinal, a.Method, a.Status)
		if a.Error != "" {
			fmt.Fprintf(&b, " (%s)", a.Error)
		}
		b.WriteString("\n")
	}
	if len(p.Suggestions) > 0 {
		b.WriteString("Suggestions:\n")
		for _, s := range p.Suggestions {
			fmt.Fprintf(&b, "  • %s\n", s)
		}
	}
	fmt.Fprintf(&b, "\nExcerpt (%d of %d chars):\n%s", len([]rune(p.Excerpt)), p.TotalChars,
		SubtleStyle.Render(p.Excerpt))

	_, err := fmt.Fprintln(r.w, RenderBox(ReviewIcon+" "+name+" needs manual review", b.String()))
	return err
}

// Attempts writes a document's attempt history.
func (r *Renderer) Attempts(attempts []model.ParsingAttempt) error {
	if len(attempts) == 0 {
		_, err := fmt.Fprintln(r.w, FormatInfo("No attempts recorded"))
		return err
	}

	w := tabwriter.NewWriter(r.w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "#\tMETHOD\tSTATUS\tCONFIDENCE\tTXNS\tDURATION\tERROR")
	for _, a := range attempts {
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%.2f\t%d\t%dms\t%s\n",
			a.Ordinal, a.Method, statusText(a.Status), a.Confidence, a.TransactionCount, a.DurationMS,
			truncate(a.Error, 60))
	}
	return w.Flush()
}

func statusText(s model.AttemptStatus) string {
	switch s {
	case model.AttemptSuccess:
		return SuccessStyle.Render(string(s))
	case model.AttemptPartialSuccess:
		return WarningStyle.Render(string(s))
	case model.AttemptFailed:
		return ErrorStyle.Render(string(s))
	}
	return string(s)
}

// Patterns writes regex patterns with their learned confidence.
func (r *Renderer) Patterns(patterns []model.RegexPattern) error {
	if len(patterns) == 0 {
		_, err := fmt.Fprintln(r.w, FormatInfo("No patterns found"))
		return err
	}

	w := tabwriter.NewWriter(r.w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tNAME\tTYPE\tINSTITUTION\tCONFIDENCE\tOK/FAIL\tFLAGS")
	_, _ = fmt.Fprintln(w, "──\t────\t────\t───────────\t──────────\t───────\t─────")
	for _, p := range patterns {
		var flags []string
		if p.IsBuiltin {
			flags = append(flags, "builtin")
		}
		if !p.IsActive {
			flags = append(flags, "inactive")
		}
		if p.OwnerID != "" {
			flags = append(flags, "owner:"+p.OwnerID)
		}
		institution := p.Institution
		if institution == "" {
			institution = "any"
		}
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%.0f%%\t%d/%d\t%s\n",
			p.ID, truncate(p.Name, 28), p.FileType, institution, p.Confidence*100,
			p.SuccessCount, p.FailureCount, strings.Join(flags, ","))
	}
	return w.Flush()
}

// Mappings writes column mappings.
func (r *Renderer) Mappings(mappings []model.ColumnMapping) error {
	w := tabwriter.NewWriter(r.w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "INDEX\tCOLUMN\tFIELD\tCONFIDENCE\tCONFIRMED")
	for _, m := range mappings {
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%.2f\t%t\n",
			m.SourceIndex, m.SourceColumn, m.Field, m.Confidence, m.UserConfirmed)
	}
	return w.Flush()
}

// Metrics writes daily rollups, one block per owner and day.
func (r *Renderer) Metrics(rows []model.ParsingMetrics) error {
	if len(rows) == 0 {
		_, err := fmt.Fprintln(r.w, FormatInfo("No metrics for that range"))
		return err
	}

	for _, m := range rows {
		var b strings.Builder
		fmt.Fprintf(&b, "Attempts: %d  Successes: %d  Avg confidence: %.2f  Avg duration: %.0fms\n",
			m.TotalAttempts, m.TotalSuccesses, m.AverageConfidence, m.AverageDurationMS)
		fmt.Fprintf(&b, "Patterns learned: %d  Dataset entries: %d\n", m.PatternsLearned, m.DatasetEntries)

		methods := make([]string, 0, len(m.Methods))
		for method := range m.Methods {
			methods = append(methods, string(method))
		}
		sort.Strings(methods)
		for _, name := range methods {
			stats := m.Methods[model.Method(name)]
			fmt.Fprintf(&b, "  %-20s %3d/%-3d %5.1f%%\n", name, stats.Successes, stats.Attempts, stats.SuccessRate()*100)
		}

		title := fmt.Sprintf("%s %s %s", ChartIcon, m.Day.Format(time.DateOnly), m.OwnerID)
		if _, err := fmt.Fprintln(r.w, RenderBox(title, strings.TrimRight(b.String(), "\n"))); err != nil {
			return err
		}
	}
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}
