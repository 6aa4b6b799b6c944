package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Veraticus/statement-flow/internal/cli"
)

func attemptsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "attempts DOCUMENT_ID",
		Short: "Show the parsing attempt history of a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			asJSON, _ := cmd.Flags().GetBool("json")

			a, cleanup, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			status, err := a.store.GetDocumentStatus(ctx, args[0])
			if err != nil {
				return fmt.Errorf("failed to get document %s: %w", args[0], err)
			}
			attempts, err := a.store.ListAttempts(ctx, args[0])
			if err != nil {
				return fmt.Errorf("failed to list attempts: %w", err)
			}

			r := cli.NewRenderer(cmd.OutOrStdout())
			if asJSON {
				return r.JSON(map[string]any{"status": status, "attempts": attempts})
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), cli.FormatInfo(fmt.Sprintf("Document %s is %s", args[0], status)))
			return r.Attempts(attempts)
		},
	}
	cmd.Flags().Bool("json", false, "print as JSON")
	return cmd
}
