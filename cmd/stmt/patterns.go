package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Veraticus/statement-flow/internal/cli"
	"github.com/Veraticus/statement-flow/internal/model"
	"github.com/Veraticus/statement-flow/internal/service"
)

func patternsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "patterns",
		Aliases: []string{"pattern"},
		Short:   "Manage regex extraction patterns",
		Long: `Manage the regex patterns used by the bank-specific and regex strategies.
Built-in patterns ship with the institution catalog and cannot be deleted,
only disabled. Confidence is learned from each pattern's match history.`,
	}

	cmd.AddCommand(patternsListCmd())
	cmd.AddCommand(patternsAddCmd())
	cmd.AddCommand(patternsDeleteCmd())
	cmd.AddCommand(patternsToggleCmd("enable", true))
	cmd.AddCommand(patternsToggleCmd("disable", false))
	return cmd
}

func patternsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List patterns",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			fileType, _ := cmd.Flags().GetString("type")
			institution, _ := cmd.Flags().GetString("institution")
			owner, _ := cmd.Flags().GetString("owner")
			all, _ := cmd.Flags().GetBool("all")
			asJSON, _ := cmd.Flags().GetBool("json")

			a, cleanup, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			patterns, err := a.store.ListPatterns(ctx, service.PatternFilter{
				FileType:    model.FileType(fileType),
				Institution: institution,
				OwnerID:     owner,
				ActiveOnly:  !all,
			})
			if err != nil {
				return fmt.Errorf("failed to list patterns: %w", err)
			}

			r := cli.NewRenderer(cmd.OutOrStdout())
			if asJSON {
				return r.JSON(patterns)
			}
			return r.Patterns(patterns)
		},
	}
	cmd.Flags().String("type", "", "only patterns for this file type")
	cmd.Flags().String("institution", "", "only patterns for this institution")
	cmd.Flags().String("owner", "", "include this owner's private patterns")
	cmd.Flags().Bool("all", false, "include inactive patterns")
	cmd.Flags().Bool("json", false, "print as JSON")
	return cmd
}

func patternsAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add NAME REGEX",
		Short: "Add a pattern",
		Long: `Add a line-extraction pattern. Named groups (date, amount, description,
debit, credit, balance, reference) map to fields directly; positional groups
are mapped with --field, e.g. --field 1=date --field 3=amount.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			fileType, _ := cmd.Flags().GetString("type")
			institution, _ := cmd.Flags().GetString("institution")
			owner, _ := cmd.Flags().GetString("owner")
			priority, _ := cmd.Flags().GetInt("priority")
			description, _ := cmd.Flags().GetString("description")
			fieldSpecs, _ := cmd.Flags().GetStringArray("field")

			ft := model.FileType(fileType)
			if !ft.IsValid() {
				return fmt.Errorf("unknown file type %q", fileType)
			}
			groups, err := parseFieldSpecs(fieldSpecs)
			if err != nil {
				return err
			}

			a, cleanup, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			p := model.RegexPattern{
				Name:        args[0],
				Pattern:     args[1],
				FileType:    ft,
				Institution: institution,
				OwnerID:     owner,
				Priority:    priority,
				Description: description,
				Fields:      groups,
			}
			if err := a.recorder.CreatePattern(ctx, &p); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Created pattern %d (%s)", p.ID, p.Name)))
			return nil
		},
	}
	cmd.Flags().String("type", string(model.FileTypeText), "file type the pattern applies to")
	cmd.Flags().String("institution", "", "restrict to an institution")
	cmd.Flags().String("owner", "", "make the pattern private to an owner")
	cmd.Flags().Int("priority", 100, "lower runs first")
	cmd.Flags().String("description", "", "free-form note")
	cmd.Flags().StringArray("field", nil, "GROUP=FIELD mapping for a capture group")
	return cmd
}

// parseFieldSpecs turns GROUP=FIELD flags into a group map.
func parseFieldSpecs(specs []string) (map[string]model.Field, error) {
	if len(specs) == 0 {
		return nil, nil
	}
	out := make(map[string]model.Field, len(specs))
	for _, spec := range specs {
		group, field, ok := strings.Cut(spec, "=")
		if !ok || group == "" {
			return nil, fmt.Errorf("invalid field mapping %q, want GROUP=FIELD", spec)
		}
		f := model.Field(strings.ToLower(field))
		if !f.IsValid() {
			return nil, fmt.Errorf("unknown field %q in %q", field, spec)
		}
		out[group] = f
	}
	return out, nil
}

func patternsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a user pattern",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid pattern ID: %w", err)
			}

			a, cleanup, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := a.recorder.DeletePattern(ctx, id); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Deleted pattern %d", id)))
			return nil
		},
	}
}

func patternsToggleCmd(verb string, active bool) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " ID",
		Short: strings.ToUpper(verb[:1]) + verb[1:] + " a pattern",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid pattern ID: %w", err)
			}

			a, cleanup, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := a.store.SetPatternActive(ctx, id, active); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Pattern %d %sd", id, verb)))
			return nil
		},
	}
}
