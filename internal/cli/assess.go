package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gravilog-risk-core/internal/catalogue"
	"github.com/gravilog-risk-core/internal/domain"
	"github.com/gravilog-risk-core/internal/report"
	"github.com/gravilog-risk-core/internal/service"
)

// dialogue is the part of the assessment service the interactive command drives.
type dialogue interface {
	StartSession(ctx context.Context, req service.StartRequest) (*service.StartResult, error)
	SubmitAnswer(ctx context.Context, sessionID, questionID string, payload service.AnswerPayload) (*service.TurnResult, error)
	AbandonSession(ctx context.Context, sessionID string) error
}

type assessOptions struct {
	locale string
	userID string
	week   int
}

func newAssessCommand(opts *rootOptions) *cobra.Command {
	ao := &assessOptions{}

	cmd := &cobra.Command{
		Use:   "assess",
		Short: "Run an interactive assessment in the terminal",
		Long: `Answer each question on one line. An answer may be a severity
(none, mild, moderate, severe) optionally followed by a duration in hours,
for example "severe 3", or free text such as "light spotting since this morning".

Type "quit" to abandon the session.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := opts.bootstrap(ctx)
			if err != nil {
				return err
			}
			defer closeApp(a)

			req := service.StartRequest{Locale: ao.locale, UserID: ao.userID}
			if cmd.Flags().Changed("week") {
				req.GestationalWeek = &ao.week
			}
			_, err = runDialogue(ctx, a.Service, a.Locale, a.Catalogue, cmd.InOrStdin(), cmd.OutOrStdout(), req)
			return err
		},
	}

	cmd.Flags().StringVarP(&ao.locale, "locale", "l", "en", "dialogue language (en, ar)")
	cmd.Flags().StringVarP(&ao.userID, "user", "u", "", "user ID for history and summaries")
	cmd.Flags().IntVarP(&ao.week, "week", "w", 0, "gestational week (1-42)")
	return cmd
}

// runDialogue asks questions until the session completes. It returns a nil
// assessment when the user quits or input ends first.
func runDialogue(ctx context.Context, d dialogue, texts report.TextSource, cat *catalogue.Catalogue, in io.Reader, out io.Writer, req service.StartRequest) (*domain.Assessment, error) {
	start, err := d.StartSession(ctx, req)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(out, "%s\n\n%s\n> ", start.Greeting, start.QuestionText)

	scanner := bufio.NewScanner(in)
	questionID, questionText := start.QuestionID, start.QuestionText
	for {
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return nil, fmt.Errorf("reading answer: %w", err)
			}
			return nil, abandon(ctx, d, start.SessionID, out)
		}

		line := strings.TrimSpace(scanner.Text())
		switch strings.ToLower(line) {
		case "":
			fmt.Fprint(out, "> ")
			continue
		case "quit", "exit":
			return nil, abandon(ctx, d, start.SessionID, out)
		}

		turn, err := d.SubmitAnswer(ctx, start.SessionID, questionID, parseAnswer(line))
		if err != nil {
			if domain.ErrorCode(err) != domain.CodeValidation {
				return nil, err
			}
			fmt.Fprintf(out, "Could not use that answer: %v\n%s\n> ", err, questionText)
			continue
		}

		if turn.Complete() {
			doc := report.BuildDocument(*turn.Assessment, texts, cat)
			fmt.Fprintf(out, "\n%s", doc.PlainText())
			return turn.Assessment, nil
		}
		questionID, questionText = turn.NextQuestionID, turn.QuestionText
		fmt.Fprintf(out, "\n%s\n> ", questionText)
	}
}

func abandon(ctx context.Context, d dialogue, sessionID string, out io.Writer) error {
	if err := d.AbandonSession(ctx, sessionID); err != nil {
		return err
	}
	fmt.Fprintln(out, "\nSession abandoned.")
	return nil
}

// parseAnswer reads "<severity> [hours]" as a structured answer and anything
// else as free text.
func parseAnswer(line string) service.AnswerPayload {
	fields := strings.Fields(line)
	if len(fields) == 0 || len(fields) > 2 {
		return service.AnswerPayload{FreeText: line}
	}
	sev, err := domain.ParseSeverity(fields[0])
	if err != nil {
		return service.AnswerPayload{FreeText: line}
	}

	payload := service.AnswerPayload{Severity: string(sev)}
	if len(fields) == 2 {
		hours, err := strconv.ParseFloat(strings.TrimSuffix(strings.ToLower(fields[1]), "h"), 64)
		if err != nil {
			return service.AnswerPayload{FreeText: line}
		}
		payload.DurationHours = &hours
	}
	return payload
}
