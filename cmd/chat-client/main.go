// Package main is an interactive terminal client for the portfolio chat API.
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/comigor/portfolio-chat/internal/client"
)

const unreachableReply = "I'm having trouble connecting right now. Please make sure the backend server is running and try again."

var suggestedQuestions = []string{
	"What projects has %s built?",
	"What are %s's technical skills?",
	"Tell me about %s's experience",
}

var (
	boldGreen = color.New(color.FgGreen, color.Bold).SprintFunc()
	boldCyan  = color.New(color.FgCyan, color.Bold).SprintFunc()
	faint     = color.New(color.Faint).SprintFunc()
	red       = color.New(color.FgRed).SprintFunc()
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, red("error:"), err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "chat-client",
		Short:         "Chat with a portfolio assistant from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			apiURL, _ := cmd.Flags().GetString("url")
			sessionID, _ := cmd.Flags().GetString("session")
			name, _ := cmd.Flags().GetString("name")

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			r := &repl{
				api:       client.New(apiURL, nil),
				sessionID: sessionID,
				name:      name,
				in:        cmd.InOrStdin(),
				out:       cmd.OutOrStdout(),
			}
			return r.run(ctx)
		},
	}
	cmd.Flags().String("url", envOr("CHAT_API_URL", "http://localhost:8000"), "Base URL of the chat API")
	cmd.Flags().String("session", "", "Resume an existing session id (a new one is generated when empty)")
	cmd.Flags().String("name", envOr("PORTFOLIO_OWNER", "the site owner"), "Name of the portfolio owner used in the greeting")
	return cmd
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

type repl struct {
	api       *client.Client
	sessionID string
	name      string
	in        io.Reader
	out       io.Writer
	asked     bool
}

func (r *repl) run(ctx context.Context) error {
	resumed := r.sessionID != ""
	if !resumed {
		r.sessionID = uuid.NewString()
	}

	fmt.Fprintln(r.out, boldGreen("Portfolio Chat"))
	fmt.Fprintf(r.out, "Session: %s\n", boldCyan(r.sessionID))
	fmt.Fprintln(r.out, faint("Type your message and press Enter. Type 'exit' or press Ctrl+C to quit."))
	fmt.Fprintln(r.out)

	r.printAssistant(fmt.Sprintf("Hey there! I'm %s's AI assistant. Ask me anything about their skills, projects, experience, or background!", r.name))

	if resumed {
		r.restore(ctx)
	}
	if !r.asked {
		r.printSuggestions()
	}

	scanner := bufio.NewScanner(r.in)
	for {
		fmt.Fprint(r.out, boldGreen("You: "))
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		switch {
		case input == "":
			continue
		case strings.EqualFold(input, "exit"):
			return nil
		}
		if q, ok := r.suggestion(input); ok {
			input = q
			fmt.Fprintln(r.out, faint(input))
		}

		reply, err := r.api.Chat(ctx, r.sessionID, input)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Fprintln(r.out, red(err.Error()))
			r.printAssistant(unreachableReply)
			continue
		}
		r.asked = true
		if reply.SessionID != "" {
			r.sessionID = reply.SessionID
		}
		r.printAssistant(reply.Response)
	}
	return scanner.Err()
}

// restore replays the stored conversation of a resumed session. Failures
// are ignored so the client still starts against a cold backend.
func (r *repl) restore(ctx context.Context) {
	msgs, err := r.api.History(ctx, r.sessionID, 0)
	if err != nil || len(msgs) == 0 {
		return
	}
	r.asked = true
	for _, m := range msgs {
		if m.Role == "user" {
			fmt.Fprintf(r.out, "%s%s\n", boldGreen("You: "), m.Content)
			continue
		}
		r.printAssistant(m.Content)
	}
}

func (r *repl) printSuggestions() {
	fmt.Fprintln(r.out, faint("Suggested questions (type the number):"))
	for i, q := range suggestedQuestions {
		fmt.Fprintf(r.out, "  %d. %s\n", i+1, fmt.Sprintf(q, r.name))
	}
	fmt.Fprintln(r.out)
}

// suggestion maps a number typed before the first question to its text.
func (r *repl) suggestion(input string) (string, bool) {
	if r.asked {
		return "", false
	}
	n, err := strconv.Atoi(input)
	if err != nil || n < 1 || n > len(suggestedQuestions) {
		return "", false
	}
	return fmt.Sprintf(suggestedQuestions[n-1], r.name), true
}

func (r *repl) printAssistant(text string) {
	fmt.Fprintf(r.out, "%s%s\n\n", boldCyan("Assistant: "), text)
}
