package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Veraticus/statement-flow/internal/cli"
	"github.com/Veraticus/statement-flow/internal/learning"
	"github.com/Veraticus/statement-flow/internal/model"
)

func annotateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "annotate ATTEMPT_ID FILE",
		Short: "Record the expected transactions for an attempt",
		Long: `Record what an attempt should have produced. FILE is YAML or JSON: a list of
transactions with date, amount and description (plus optional direction,
merchant, category and reference). Annotations enter the learning dataset
as validated examples with double training weight.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			attemptID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid attempt ID: %w", err)
			}
			data, err := os.ReadFile(args[1])
			if err != nil {
				return fmt.Errorf("failed to read annotation: %w", err)
			}
			expected, err := learning.ParseAnnotation(data)
			if err != nil {
				return err
			}

			a, cleanup, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			entry, err := a.recorder.RecordAnnotation(ctx, attemptID, expected)
			if err != nil {
				return err
			}
			a.aggregator.Notify(entry.OwnerID, entry.CreatedAt)
			a.aggregator.Flush(ctx)

			_, _ = fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(
				fmt.Sprintf("Recorded %d expected transactions for attempt %d", len(expected), attemptID)))
			return nil
		},
	}
}

func mappingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mappings",
		Short: "Review column mappings learned from tabular documents",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show ATTEMPT_ID",
		Short: "Show the column mappings an attempt used",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			attemptID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid attempt ID: %w", err)
			}

			a, cleanup, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			mappings, err := a.store.ListColumnMappingsForAttempt(ctx, attemptID)
			if err != nil {
				return err
			}
			return cli.NewRenderer(cmd.OutOrStdout()).Mappings(mappings)
		},
	})
	cmd.AddCommand(mappingsConfirmCmd())
	return cmd
}

func mappingsConfirmCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "confirm ATTEMPT_ID",
		Short: "Confirm an attempt's column mappings, optionally correcting them",
		Long: `Confirm the column mappings an attempt detected. Confirmed mappings are
preferred for later documents with the same header row. Use --set to fix a
column: --set 2=description or --set 4=balance:Running Balance.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			attemptID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid attempt ID: %w", err)
			}
			specs, _ := cmd.Flags().GetStringArray("set")
			overrides, err := parseMappingSpecs(specs)
			if err != nil {
				return err
			}

			a, cleanup, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			confirmed, err := a.recorder.ConfirmColumnMappings(ctx, attemptID, overrides)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Confirmed %d column mappings", len(confirmed))))
			return cli.NewRenderer(cmd.OutOrStdout()).Mappings(confirmed)
		},
	}
	cmd.Flags().StringArray("set", nil, "INDEX=FIELD[:COLUMN] correction")
	return cmd
}

// parseMappingSpecs turns INDEX=FIELD[:COLUMN] flags into mapping overrides.
func parseMappingSpecs(specs []string) ([]model.ColumnMapping, error) {
	out := make([]model.ColumnMapping, 0, len(specs))
	for _, spec := range specs {
		index, rest, ok := strings.Cut(spec, "=")
		if !ok {
			return nil, fmt.Errorf("invalid mapping %q, want INDEX=FIELD[:COLUMN]", spec)
		}
		i, err := strconv.Atoi(index)
		if err != nil || i < 0 {
			return nil, fmt.Errorf("invalid column index in %q", spec)
		}
		field, column, _ := strings.Cut(rest, ":")
		f := model.Field(strings.ToLower(field))
		if !f.IsValid() {
			return nil, fmt.Errorf("unknown field %q in %q", field, spec)
		}
		if column == "" {
			column = fmt.Sprintf("column %d", i+1)
		}
		out = append(out, model.ColumnMapping{SourceIndex: i, Field: f, SourceColumn: column})
	}
	return out, nil
}
