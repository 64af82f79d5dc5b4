package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jordancj7/folio/internal/core/engine"
	"github.com/jordancj7/folio/internal/flow"
	"github.com/jordancj7/folio/internal/observability"
)

var (
	callerKey   string
	jsonOutput  bool
	historyFile string

	refineTone     string
	refineFromFile string
)

var chatCmd = &cobra.Command{
	Use:   "chat <message>",
	Short: "Ask the portfolio assistant a question",
	Long: `Ask the portfolio assistant a question, exactly as the web chat does.

The request counts against the quota of --key, so with a persistent rate limit
backend it shares the allowance of web visitors using the same key.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, err := loadConfig(ctx)
		if err != nil {
			return err
		}

		deps, err := buildStack(ctx, cfg, observability.CLILogger)
		if err != nil {
			return err
		}
		defer deps.Close() // nolint:errcheck // best-effort cleanup

		flows, err := buildFlows(cfg, deps.limiter, observability.CLILogger)
		if err != nil {
			return err
		}
		chat := flows.chat

		in := flow.ChatInput{Message: strings.Join(args, " ")}
		if historyFile != "" {
			history, err := readHistory(historyFile)
			if err != nil {
				return err
			}
			in.ConversationHistory = history
		}

		out, err := chat.Invoke(ctx, callerKey, in)
		if err != nil {
			return flowCLIError(err)
		}

		if jsonOutput {
			return writeJSONTo(cmd.OutOrStdout(), out)
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), out.Response)
		if err == nil && !out.IsRelevant {
			observability.CLILogger.Debug("Question was outside the portfolio scope")
		}
		return err
	},
}

var refineCmd = &cobra.Command{
	Use:   "refine [description]",
	Short: "Rewrite a project description in a given tone",
	Long: `Rewrite a project description in a given tone.

The description is taken from the arguments, from --file, or from stdin when
neither is given.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		description, err := readDescription(cmd.InOrStdin(), args, refineFromFile)
		if err != nil {
			return err
		}

		cfg, err := loadConfig(ctx)
		if err != nil {
			return err
		}

		deps, err := buildStack(ctx, cfg, observability.CLILogger)
		if err != nil {
			return err
		}
		defer deps.Close() // nolint:errcheck // best-effort cleanup

		flows, err := buildFlows(cfg, deps.limiter, observability.CLILogger)
		if err != nil {
			return err
		}
		refine := flows.refine

		out, err := refine.Invoke(ctx, callerKey, flow.RefineInput{
			Description:     description,
			TonePreferences: refineTone,
		})
		if err != nil {
			return flowCLIError(err)
		}

		if jsonOutput {
			return writeJSONTo(cmd.OutOrStdout(), out)
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), out.RefinedDescription)
		return err
	},
}

func readHistory(path string) ([]flow.ChatTurn, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- operator-supplied history file
	if err != nil {
		return nil, fmt.Errorf("read history file: %w", err)
	}
	var turns []flow.ChatTurn
	if err := json.Unmarshal(data, &turns); err != nil {
		return nil, fmt.Errorf("parse history file: %w", err)
	}
	return turns, nil
}

func readDescription(stdin io.Reader, args []string, path string) (string, error) {
	switch {
	case len(args) > 0 && path != "":
		return "", fmt.Errorf("pass the description as arguments or --file, not both")
	case len(args) > 0:
		return strings.Join(args, " "), nil
	case path != "":
		data, err := os.ReadFile(path) // #nosec G304 -- operator-supplied description file
		if err != nil {
			return "", fmt.Errorf("read description file: %w", err)
		}
		return strings.TrimSpace(string(data)), nil
	default:
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read description from stdin: %w", err)
		}
		return strings.TrimSpace(string(data)), nil
	}
}

// flowCLIError turns a flow failure into the message shown to the operator.
// Quota messages pass through verbatim.
func flowCLIError(err error) error {
	ferr, ok := flow.AsError(err)
	if !ok {
		return err
	}
	switch ferr.Kind {
	case flow.KindQuotaExceeded:
		return fmt.Errorf("quota exceeded: %s", ferr.Message)
	case flow.KindInvalidInput:
		return fmt.Errorf("invalid input: %s", ferr.Message)
	default:
		if ferr.Err != nil {
			return fmt.Errorf("model call failed: %w", ferr.Err)
		}
		return err
	}
}

func writeJSONTo(w io.Writer, v any) error {
	payload, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(payload))
	return err
}

func init() {
	for _, c := range []*cobra.Command{chatCmd, refineCmd} {
		c.Flags().StringVar(&callerKey, "key", engine.GlobalKey, "caller key charged for the request")
		c.Flags().BoolVar(&jsonOutput, "json", false, "print the raw flow output as JSON")
		rootCmd.AddCommand(c)
	}
	chatCmd.Flags().StringVar(&historyFile, "history", "", "JSON file with earlier turns: [{\"role\":\"user\",\"content\":\"...\"}]")
	refineCmd.Flags().StringVar(&refineTone, "tone", "professional", "tone preferences for the rewrite")
	refineCmd.Flags().StringVarP(&refineFromFile, "file", "f", "", "read the description from a file")
}
