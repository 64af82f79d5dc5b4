package cmd

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jordancj7/folio/internal/core"
	"github.com/jordancj7/folio/internal/core/engine"
	"github.com/jordancj7/folio/internal/core/store"
	"github.com/jordancj7/folio/internal/observability"
	"github.com/jordancj7/folio/internal/output"
)

var (
	quotaKey     string
	quotaAll     bool
	quotaPrefix  string
	quotaYes     bool
	quotaDryRun  bool
	quotaFormat  string
	quotaOutPath string
)

var quotaCmd = &cobra.Command{
	Use:   "quota",
	Short: "Inspect and reset AI flow rate limits",
	Long: `Inspect and reset the per-caller rate windows guarding the chat and refine flows.

Only the libsql and redis backends keep state between processes; with the
memory backend these commands see an empty limiter.`,
}

var quotaStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show minute and day usage for a caller key",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := output.ParseFormat(quotaFormat)
		if err != nil {
			return err
		}

		deps, err := openQuotaStack(cmd)
		if err != nil {
			return err
		}
		defer deps.Close() // nolint:errcheck // best-effort cleanup

		usage, err := deps.limiter.Status(cmd.Context(), quotaKey)
		if err != nil {
			return err
		}
		return writeQuota(format, []core.QuotaUsage{usage})
	},
}

var quotaListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored rate windows (libsql backend)",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := output.ParseFormat(quotaFormat)
		if err != nil {
			return err
		}

		deps, err := openQuotaStack(cmd)
		if err != nil {
			return err
		}
		defer deps.Close() // nolint:errcheck // best-effort cleanup

		db, ok := deps.windows.(*store.Store)
		if !ok {
			return fmt.Errorf("quota list needs the libsql backend (configured: %s)", backendName(deps.cfg.RateLimit.Backend))
		}

		query := store.RateWindowQuery{All: quotaPrefix == "", Prefix: strings.TrimSpace(quotaPrefix)}
		entries, err := db.ListRateWindows(cmd.Context(), query)
		if err != nil {
			return err
		}

		usage := make([]core.QuotaUsage, 0, len(entries))
		for _, entry := range entries {
			u, err := deps.limiter.Status(cmd.Context(), entry.Key)
			if err != nil {
				return err
			}
			usage = append(usage, u)
		}
		return writeQuota(format, usage)
	},
}

var quotaResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear stored rate windows",
	RunE: func(cmd *cobra.Command, args []string) error {
		query := store.RateWindowQuery{
			All:    quotaAll,
			Key:    strings.TrimSpace(quotaKey),
			Prefix: strings.TrimSpace(quotaPrefix),
		}
		if !cmd.Flags().Changed("key") && (query.All || query.Prefix != "") {
			query.Key = ""
		}
		if err := query.Validate(); err != nil {
			return err
		}
		if query.All && !quotaYes && !quotaDryRun {
			return errors.New("--all requires --yes (or use --dry-run)")
		}

		deps, err := openQuotaStack(cmd)
		if err != nil {
			return err
		}
		defer deps.Close() // nolint:errcheck // best-effort cleanup

		w := cmd.OutOrStdout()
		db, isLibsql := deps.windows.(*store.Store)
		if !isLibsql {
			if query.All || query.Prefix != "" {
				return fmt.Errorf("--all and --prefix need the libsql backend; reset single keys with --key")
			}
			if quotaDryRun {
				return writeResetResult(w, 1, 0, true)
			}
			if err := deps.limiter.Reset(cmd.Context(), query.Key); err != nil {
				return err
			}
			return writeResetResult(w, 1, 1, false)
		}

		if query.Key != "" {
			query.Key = engine.NormalizeKey(query.Key)
		}
		matched, err := db.CountRateWindows(cmd.Context(), query)
		if err != nil {
			return err
		}
		if quotaDryRun {
			return writeResetResult(w, matched, 0, true)
		}
		deleted, err := db.ResetRateWindows(cmd.Context(), query)
		if err != nil {
			return err
		}
		observability.CLILogger.Debug(fmt.Sprintf("Reset %d rate window(s)", deleted))
		return writeResetResult(w, matched, deleted, false)
	},
}

func openQuotaStack(cmd *cobra.Command) (*stack, error) {
	cfg, err := loadConfig(cmd.Context())
	if err != nil {
		return nil, err
	}
	deps, err := buildStack(cmd.Context(), cfg, observability.CLILogger)
	if err != nil {
		return nil, err
	}
	if !deps.persistentWindows() {
		observability.CLILogger.Warn("Rate limit backend is memory; no state is shared with a running server")
	}
	return deps, nil
}

func writeQuota(format output.Format, usage []core.QuotaUsage) error {
	rendered, err := output.NewFormatter(format).FormatQuota(usage)
	if err != nil {
		return err
	}

	sink, err := openSink(quotaOutPath)
	if err != nil {
		return err
	}
	defer func() { _ = sink.close() }()

	_, err = fmt.Fprintln(sink.writer, rendered)
	return err
}

func writeResetResult(w io.Writer, matched int, deleted int64, dryRun bool) error {
	if quotaFormat == string(output.FormatJSON) {
		return writeJSONTo(w, map[string]any{
			"matched": matched,
			"deleted": deleted,
			"dry_run": dryRun,
		})
	}

	if dryRun {
		_, err := fmt.Fprintf(w, "Would delete %d rate window(s)\n", matched)
		return err
	}
	_, err := fmt.Fprintf(w, "Deleted %d/%d rate window(s)\n", deleted, matched)
	return err
}

func init() {
	quotaCmd.PersistentFlags().StringVar(&quotaFormat, "output-format", string(output.FormatTable), "Output format: table|json|markdown")
	quotaCmd.PersistentFlags().StringVar(&quotaOutPath, "out", "", "Write output to a file (default stdout)")

	quotaStatusCmd.Flags().StringVar(&quotaKey, "key", engine.GlobalKey, "caller key")
	quotaListCmd.Flags().StringVar(&quotaPrefix, "prefix", "", "List keys with matching prefix")

	quotaResetCmd.Flags().StringVar(&quotaKey, "key", engine.GlobalKey, "Reset a single caller key")
	quotaResetCmd.Flags().BoolVar(&quotaAll, "all", false, "Reset every caller key")
	quotaResetCmd.Flags().StringVar(&quotaPrefix, "prefix", "", "Reset keys with matching prefix")
	quotaResetCmd.Flags().BoolVar(&quotaYes, "yes", false, "Confirm destructive reset")
	quotaResetCmd.Flags().BoolVar(&quotaDryRun, "dry-run", false, "Show what would be deleted")

	quotaCmd.AddCommand(quotaStatusCmd, quotaListCmd, quotaResetCmd)
	rootCmd.AddCommand(quotaCmd)
}
