package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/BTreeMap/AgentBuilder/internal/models"
)

// offlineDialogue lets read-only commands run without LLM credentials.
type offlineDialogue struct{}

func (offlineDialogue) Invoke(context.Context, models.DialogueRequest) (*models.DialogueResult, error) {
	return nil, errors.New("dialogue is unavailable in offline commands")
}

func newRenderCmd(cfg *Config) *cobra.Command {
	var summary bool
	cmd := &cobra.Command{
		Use:   "render <session-id>",
		Short: "Print a session's workflow as a Mermaid flowchart",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cfg, offlineDialogue{})
			if err != nil {
				return err
			}
			defer a.Close()

			wf, err := a.sessions.Workflow(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if summary {
				fmt.Fprintln(cmd.OutOrStdout(), wf.TextSummary)
			} else {
				fmt.Fprint(cmd.OutOrStdout(), wf.MermaidDiagram)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&summary, "summary", false, "print the text summary instead of the diagram")
	return cmd
}

func newExportCmd(cfg *Config) *cobra.Command {
	var (
		format          string
		output          string
		includeWorkflow bool
	)
	cmd := &cobra.Command{
		Use:   "export <session-id>",
		Short: "Export a session's agent configuration package",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cfg, offlineDialogue{})
			if err != nil {
				return err
			}
			defer a.Close()

			exp, err := a.sessions.Export(cmd.Context(), args[0], models.ExportFormat(format), includeWorkflow)
			if err != nil {
				return err
			}
			if output == "" {
				fmt.Fprint(cmd.OutOrStdout(), exp.Content)
				return nil
			}
			if output == "." {
				output = exp.Filename
			}
			if err := os.WriteFile(output, []byte(exp.Content), 0644); err != nil {
				return fmt.Errorf("failed to write export: %w", err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s\n", output)
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", string(models.ExportFormatJSON), "json, yaml, markdown or text")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to a file instead of stdout; \".\" uses the suggested filename")
	cmd.Flags().BoolVar(&includeWorkflow, "include-workflow", true, "include the workflow in the package")
	return cmd
}
