package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Veraticus/statement-flow/internal/cli"
	"github.com/Veraticus/statement-flow/internal/common"
	"github.com/Veraticus/statement-flow/internal/engine"
	"github.com/Veraticus/statement-flow/internal/model"
)

type parseOutput struct {
	Result     *model.ParseResult `json:"result,omitempty"`
	DocumentID string             `json:"document_id"`
	File       string             `json:"file"`
	Error      string             `json:"error,omitempty"`
}

func parseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "parse FILE...",
		Short: "Extract transactions from statement files",
		Long: `Parse one or more statement files. Strategies are tried in priority order
until one is confident enough; when every strategy fails the document is
flagged for manual review and a correction payload is printed instead.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runParse,
	}

	cmd.Flags().String("owner", "default", "owner the documents belong to")
	cmd.Flags().String("method", "", "run only this strategy (bank_specific, tabular_columns, regex_patterns, heuristic_pipeline, manual_correction)")
	cmd.Flags().String("type", "", "file type override (pdf, csv, spreadsheet, json, text, ofx)")
	cmd.Flags().String("password", "", "password for encrypted PDFs")
	cmd.Flags().Int("max-attempts", 0, "maximum automated attempts (default from config)")
	cmd.Flags().Duration("timeout", 0, "per-strategy timeout (default from config)")
	cmd.Flags().Bool("drop-duplicates", false, "drop duplicate transactions found by the heuristic pipeline")
	cmd.Flags().Bool("json", false, "print results as JSON")
	return cmd
}

func runParse(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	owner, _ := cmd.Flags().GetString("owner")
	method, _ := cmd.Flags().GetString("method")
	fileType, _ := cmd.Flags().GetString("type")
	password, _ := cmd.Flags().GetString("password")
	maxAttempts, _ := cmd.Flags().GetInt("max-attempts")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	dropDuplicates, _ := cmd.Flags().GetBool("drop-duplicates")
	asJSON, _ := cmd.Flags().GetBool("json")

	ft := model.FileType(strings.ToLower(fileType))
	if ft != "" && !ft.IsValid() {
		return common.NewPreconditionError("", fmt.Errorf("%w: %q", common.ErrUnsupportedFileType, fileType))
	}
	opts := engine.Options{
		ForcedMethod:    model.Method(method),
		MaxAttempts:     maxAttempts,
		StrategyTimeout: timeout,
		DropDuplicates:  dropDuplicates,
	}

	a, cleanup, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	renderer := cli.NewRenderer(cmd.OutOrStdout())
	progress := cli.NewProgress(cmd.ErrOrStderr(), len(args))
	outputs := make([]parseOutput, 0, len(args))
	var failed int

	for _, path := range args {
		out := parseFile(cmd, a, path, owner, ft, password, opts)
		progress.Step()
		if out.Error != "" {
			failed++
		}
		outputs = append(outputs, out)

		if asJSON {
			continue
		}
		if out.Error != "" {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), cli.FormatError(fmt.Sprintf("%s: %s", out.File, out.Error)))
			continue
		}
		if err := renderer.Result(out.File, out.Result); err != nil {
			return err
		}
	}
	progress.Finish()

	// Refresh today's rollup before exiting.
	a.aggregator.Flush(ctx)

	if asJSON {
		if err := renderer.JSON(outputs); err != nil {
			return err
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d documents could not be parsed", failed, len(args))
	}
	return nil
}

func parseFile(cmd *cobra.Command, a *app, path, owner string, ft model.FileType, password string, opts engine.Options) parseOutput {
	ctx := cmd.Context()
	out := parseOutput{File: filepath.Base(path)}

	content, err := os.ReadFile(path)
	if err != nil {
		out.Error = fmt.Sprintf("failed to read file: %v", err)
		return out
	}

	doc := model.NewDocument(owner, out.File, content, ft)
	doc.Password = password
	if err := a.store.SaveDocument(ctx, &doc); err != nil {
		out.Error = fmt.Sprintf("failed to save document: %v", err)
		return out
	}
	out.DocumentID = doc.ID

	result, err := a.engine.Run(ctx, doc, opts)
	if err != nil {
		slog.Debug("Parse failed", "file", path, "document_id", doc.ID, "error", err)
		if common.IsPrecondition(err) {
			out.Error = common.UserMessageFor(err)
		} else {
			out.Error = err.Error()
		}
		return out
	}
	out.Result = result
	return out
}
