package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/BTreeMap/AgentBuilder/internal/models"
	"github.com/BTreeMap/AgentBuilder/internal/session"
)

func newChatCmd(cfg *Config) *cobra.Command {
	var sessionID string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Build an agent interactively in the terminal",
		Long: `Start or resume an agent-building conversation on stdin/stdout.
Type /status to see progress and /quit to leave; the session can be resumed later with --session.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cfg, nil)
			if err != nil {
				return err
			}
			defer a.Close()
			return runChat(cmd.Context(), a.sessions, sessionID, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "resume an existing session")
	return cmd
}

// runChat drives one session from in until it completes, the input ends or the user quits.
func runChat(ctx context.Context, mgr *session.Manager, sessionID string, in io.Reader, out io.Writer) error {
	if sessionID == "" {
		created, err := mgr.Create(ctx, "")
		if err != nil {
			return err
		}
		sessionID = created.SessionID
		fmt.Fprintf(out, "Session %s\n\nagent> %s\n", sessionID, created.Message)
	} else {
		resumed, err := mgr.Resume(ctx, sessionID)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Session %s (%s)\n\nagent> %s\n", sessionID, resumed.Stage, resumed.AIResponse)
	}

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "\nyou> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		text := strings.TrimSpace(scanner.Text())
		switch text {
		case "":
			continue
		case "/quit", "/exit":
			fmt.Fprintf(out, "Resume later with: AgentBuilder chat --session %s\n", sessionID)
			return nil
		case "/status":
			status, err := mgr.Status(ctx, sessionID)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "stage %s, %d%% complete\n", status.Stage, status.ProgressPercentage)
			continue
		}

		resp, err := mgr.Process(ctx, sessionID, text)
		if err != nil {
			return err
		}
		printTurn(out, resp)
		if resp.IsComplete {
			return nil
		}
	}
}

func printTurn(out io.Writer, resp *models.MessageResponse) {
	fmt.Fprintf(out, "\nagent> %s\n", strings.TrimSpace(resp.AIResponse))
	if resp.Degraded {
		fmt.Fprintln(out, "(the assistant is having trouble; your message was kept)")
	}
	if resp.IsComplete && resp.FinalPrompt != "" {
		fmt.Fprintf(out, "\n--- system prompt ---\n%s\n", resp.FinalPrompt)
	}
}
