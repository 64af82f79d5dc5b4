package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jordancj7/folio/internal/config"
	"github.com/jordancj7/folio/internal/core/store"
	errwrap "github.com/jordancj7/folio/internal/errors"
	"github.com/jordancj7/folio/internal/observability"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks",
	Long:  "Run diagnostic checks on the system and suggest fixes for common issues.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		log := observability.CLILogger
		identity := GetAppIdentity()

		log.Info("=== " + identity.BinaryName + " doctor ===")
		log.Info("")
		log.Info("Running diagnostic checks...")
		log.Info("")

		allChecks := true
		const totalChecks = 7

		// Check 1: Go version
		goVersion := runtime.Version()
		if goVersion >= "go1.23" {
			log.Info(fmt.Sprintf("[1/%d] Checking Go version... ✅ %s", totalChecks, goVersion), zap.String("go_version", goVersion))
		} else {
			log.Warn(fmt.Sprintf("[1/%d] Checking Go version... ⚠️  %s (recommended: go1.23+)", totalChecks, goVersion), zap.String("go_version", goVersion))
			allChecks = false
		}

		// Check 2: Crucible access
		version := crucible.GetVersion()
		if version.Crucible == "" {
			log.Error(fmt.Sprintf("[2/%d] Checking Crucible access... ❌ Cannot access Crucible", totalChecks))
			ExitWithCode(log, foundry.ExitExternalServiceUnavailable, "Cannot access Crucible", errwrap.NewServiceUnavailableError("Crucible unavailable"))
		}
		log.Info(fmt.Sprintf("[2/%d] Checking Crucible access... ✅ v%s (gofulmen v%s)", totalChecks, version.Crucible, version.Gofulmen),
			zap.String("crucible_version", version.Crucible))

		// Check 3: Config file
		configPath := config.DefaultConfigPath()
		switch {
		case configPath == "":
			log.Error(fmt.Sprintf("[3/%d] Checking config directory... ❌ Cannot resolve config directory", totalChecks))
			ExitWithCode(log, foundry.ExitFileNotFound, "Cannot resolve config directory", errwrap.NewInternalError("config directory not resolved"))
		case fileExists(configPath):
			log.Info(fmt.Sprintf("[3/%d] Checking config file... ✅ %s", totalChecks, configPath))
		default:
			log.Info(fmt.Sprintf("[3/%d] Checking config file... ✅ none at %s (defaults and environment)", totalChecks, configPath))
		}

		// Check 4: Config values
		cfg, cfgErr := config.Load(ctx)
		if cfgErr != nil {
			log.Error(fmt.Sprintf("[4/%d] Checking configuration... ❌ invalid", totalChecks), zap.Error(cfgErr))
			log.Info("")
			log.Warn("⚠️  Remaining checks need a valid configuration.")
			return
		}
		log.Info(fmt.Sprintf("[4/%d] Checking configuration... ✅ rpm=%d rpd=%d", totalChecks, cfg.RateLimit.RPM, cfg.RateLimit.RPD))

		// Check 5: Database
		db, dbErr := openStore(ctx, cfg.Store)
		if dbErr != nil {
			log.Error(fmt.Sprintf("[5/%d] Checking database... ❌ cannot open", totalChecks), zap.Error(dbErr))
			allChecks = false
		} else {
			defer db.Close() // nolint:errcheck // best-effort cleanup
			total, countErr := db.CountMessages(ctx, store.MessageQuery{})
			unread, _ := db.CountMessages(ctx, store.MessageQuery{Unread: true})
			if countErr != nil {
				log.Warn(fmt.Sprintf("[5/%d] Checking database... ⚠️  %s (cannot read messages)", totalChecks, describeStore(cfg.Store)), zap.Error(countErr))
				allChecks = false
			} else {
				log.Info(fmt.Sprintf("[5/%d] Checking database... ✅ %s, %d messages (%d unread)", totalChecks, describeStore(cfg.Store), total, unread))
			}
		}

		// Check 6: Rate window backend
		switch backendName(cfg.RateLimit.Backend) {
		case config.BackendRedis:
			redisStore := store.NewRedisWindowStore(store.NewRedisClient(cfg.Redis), cfg.Redis.KeyPrefix)
			if err := redisStore.Ping(ctx); err != nil {
				log.Error(fmt.Sprintf("[6/%d] Checking rate limit backend... ❌ redis %s unreachable", totalChecks, cfg.Redis.Addr), zap.Error(err))
				allChecks = false
			} else {
				log.Info(fmt.Sprintf("[6/%d] Checking rate limit backend... ✅ redis %s", totalChecks, cfg.Redis.Addr))
			}
			_ = redisStore.Close()
		case config.BackendLibsql:
			if db == nil {
				log.Warn(fmt.Sprintf("[6/%d] Checking rate limit backend... ⚠️  libsql (database unavailable)", totalChecks))
				allChecks = false
			} else {
				keys, _ := db.CountRateWindows(ctx, store.RateWindowQuery{All: true})
				log.Info(fmt.Sprintf("[6/%d] Checking rate limit backend... ✅ libsql (%d caller keys)", totalChecks, keys))
			}
		default:
			log.Info(fmt.Sprintf("[6/%d] Checking rate limit backend... ✅ memory (quotas reset on restart)", totalChecks))
		}

		// Check 7: Model provider
		usable := usableProviders(cfg.AILink)
		sort.Strings(usable)
		if len(usable) > 0 {
			log.Info(fmt.Sprintf("[7/%d] Checking model provider... ✅ %s", totalChecks, strings.Join(usable, ", ")))
		} else {
			log.Warn(fmt.Sprintf("[7/%d] Checking model provider... ⚠️  no API key configured", totalChecks))
			log.Info("       Set GOOGLE_GENAI_API_KEY or run '" + identity.BinaryName + " doctor init --api-key prompt'.")
			allChecks = false
		}

		log.Info("")
		if allChecks {
			log.Info(fmt.Sprintf("✅ All checks passed! Your %s installation is healthy.", identity.BinaryName))
		} else {
			log.Warn("⚠️  Some checks failed. Review the output above for details.")
		}
		log.Info("")
		log.Info("=== End Diagnostics ===")
	},
}

var (
	doctorInitForce  bool
	doctorInitAPIKey string
	doctorResetData  bool
	doctorResetYes   bool
)

var doctorInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a default config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := config.DefaultConfigPath()
		if configPath == "" {
			return fmt.Errorf("config path not resolved")
		}

		if _, err := os.Stat(configPath); err == nil && !doctorInitForce {
			return fmt.Errorf("config file already exists: %s (use --force to overwrite)", configPath)
		}

		apiKey := strings.TrimSpace(doctorInitAPIKey)
		if strings.EqualFold(apiKey, "prompt") {
			key, err := promptForValue(cmd.InOrStdin(), cmd.OutOrStdout(), "Enter Gemini API key (leave blank to skip): ")
			if err != nil {
				return err
			}
			apiKey = key
		}

		if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}

		mode := os.FileMode(0o644)
		if apiKey != "" {
			mode = 0o600
		}

		if err := os.WriteFile(configPath, []byte(buildInitConfig(GetAppIdentity().BinaryName, apiKey)), mode); err != nil {
			return fmt.Errorf("write config file: %w", err)
		}

		observability.CLILogger.Info("Config initialized", zap.String("path", configPath))
		return nil
	},
}

var doctorValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := loadConfig(cmd.Context()); err != nil {
			return err
		}
		observability.CLILogger.Info("Config is valid", zap.String("path", config.DefaultConfigPath()))
		return nil
	},
}

var doctorResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Remove the local database",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !doctorResetData {
			return fmt.Errorf("specify --data")
		}
		if !doctorResetYes {
			return fmt.Errorf("--data deletes every stored message; confirm with --yes")
		}

		cfg, err := loadConfig(cmd.Context())
		if err != nil {
			return err
		}
		if cfg.Store.URL != "" {
			return fmt.Errorf("remote store configured; database reset is not supported")
		}

		absPath, _ := filepath.Abs(cfg.Store.Path)
		if err := os.Remove(absPath); err == nil {
			observability.CLILogger.Info("Database removed", zap.String("path", absPath))
		} else if os.IsNotExist(err) {
			observability.CLILogger.Info("Database already removed", zap.String("path", absPath))
		} else {
			return fmt.Errorf("remove database: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(doctorCmd)
	doctorCmd.AddCommand(doctorInitCmd, doctorValidateCmd, doctorResetCmd)

	doctorInitCmd.Flags().BoolVar(&doctorInitForce, "force", false, "overwrite existing config file")
	doctorInitCmd.Flags().StringVar(&doctorInitAPIKey, "api-key", "", "set the Gemini API key or use 'prompt' to enter")

	doctorResetCmd.Flags().BoolVar(&doctorResetData, "data", false, "remove local database")
	doctorResetCmd.Flags().BoolVar(&doctorResetYes, "yes", false, "confirm removal")
}

func describeStore(cfg config.StoreConfig) string {
	if cfg.URL != "" {
		return cfg.URL + " (remote)"
	}
	absPath, _ := filepath.Abs(cfg.Path)
	if info, err := os.Stat(absPath); err == nil {
		return fmt.Sprintf("%s (%s)", absPath, formatFileSize(info.Size()))
	}
	return absPath
}

// formatFileSize returns a human-readable file size
func formatFileSize(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)
	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d bytes", bytes)
	}
}

func buildInitConfig(binaryName, apiKey string) string {
	lines := []string{
		fmt.Sprintf("# %s config - created by '%s doctor init'", binaryName, binaryName),
		"server:",
		"  port: 8080",
		"ratelimit:",
		"  rpm: 5",
		"  rpd: 20",
		"  backend: libsql",
		"  key_strategy: global",
		"ailink:",
		"  default_provider: gemini",
		"  providers:",
		"    gemini:",
		"      enabled: true",
		"      ai_provider: gemini",
		"      models:",
		"        default: gemini-2.0-flash",
		"      credentials:",
		"        - label: default",
		"          enabled: true",
	}

	if apiKey != "" {
		lines = append(lines, fmt.Sprintf("          api_key: %q", apiKey))
	} else {
		lines = append(lines, "          # api_key: \"\"  # or set GOOGLE_GENAI_API_KEY")
	}

	lines = append(lines,
		"admin:",
		"  token: \"\"  # enables /api/admin routes; or set ADMIN_SECRET",
	)

	return strings.Join(lines, "\n") + "\n"
}

func promptForValue(in io.Reader, out io.Writer, prompt string) (string, error) {
	if _, err := fmt.Fprint(out, prompt); err != nil {
		return "", err
	}
	value, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimSpace(value), nil
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}
