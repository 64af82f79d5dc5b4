package cmd

import (
	"fmt"
	"runtime"
	"sort"
	"strings"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jordancj7/folio/internal/config"
	"github.com/jordancj7/folio/internal/observability"
)

var envInfoCmd = &cobra.Command{
	Use:   "envinfo",
	Short: "Display environment information",
	Long:  "Display environment, configuration, and version information. Secrets are reported as set or not set.",
	Run: func(cmd *cobra.Command, args []string) {
		log := observability.CLILogger
		version := crucible.GetVersion()
		identity := GetAppIdentity()

		log.Info("=== " + identity.BinaryName + " environment ===")
		log.Info("")

		log.Info("Application:")
		log.Info("  Name:       " + identity.BinaryName)
		log.Info("  Version:    " + versionInfo.Version)
		log.Info("  Commit:     " + versionInfo.Commit)
		log.Info("  Built:      " + versionInfo.BuildDate)
		log.Info("")

		log.Info("SSOT:")
		log.Info("  Gofulmen:   "+version.Gofulmen, zap.String("gofulmen_version", version.Gofulmen))
		log.Info("  Crucible:   "+version.Crucible, zap.String("crucible_version", version.Crucible))
		log.Info("")

		log.Info("Runtime:")
		log.Info("  Go Version: "+runtime.Version(), zap.String("go_version", runtime.Version()))
		log.Info("  GOOS:       "+runtime.GOOS, zap.String("goos", runtime.GOOS))
		log.Info("  GOARCH:     "+runtime.GOARCH, zap.String("goarch", runtime.GOARCH))
		log.Info("")

		cfg, err := config.Load(cmd.Context())
		if err != nil {
			log.Warn("Config load failed", zap.Error(err))
			return
		}

		log.Info("Server:")
		log.Info(fmt.Sprintf("  Listen:         %s:%d", cfg.Server.Host, cfg.Server.Port))
		log.Info(fmt.Sprintf("  Max Body:       %d bytes", cfg.Server.MaxBodyBytes))
		if len(cfg.Server.TrustedProxies) > 0 {
			log.Info(fmt.Sprintf("  Proxies:        %s", strings.Join(cfg.Server.TrustedProxies, ", ")))
		} else {
			log.Info("  Proxies:        none (keys use TCP peer)")
		}
		log.Info("  Admin Token:    " + setOrNot(cfg.Admin.Token))
		log.Info("  Log Level:      "+cfg.Logging.Level, zap.String("log_level", cfg.Logging.Level))
		log.Info("  Log Profile:    "+cfg.Logging.Profile, zap.String("log_profile", cfg.Logging.Profile))
		log.Info(fmt.Sprintf("  Metrics:        %t (port %d)", cfg.Metrics.Enabled, cfg.Metrics.Port))
		log.Info("  Config File:    " + config.DefaultConfigPath())
		log.Info("")

		log.Info("Store:")
		log.Info("  Driver:         " + cfg.Store.Driver)
		if strings.TrimSpace(cfg.Store.URL) != "" {
			log.Info("  URL:            " + cfg.Store.URL)
			log.Info("  Auth Token:     " + setOrNot(cfg.Store.AuthToken))
		} else {
			log.Info("  Path:           " + cfg.Store.Path)
		}
		log.Info("")

		log.Info("Rate Limit:")
		log.Info(fmt.Sprintf("  RPM / RPD:      %d / %d", cfg.RateLimit.RPM, cfg.RateLimit.RPD))
		log.Info("  Backend:        " + backendName(cfg.RateLimit.Backend))
		log.Info("  Key Strategy:   " + cfg.RateLimit.KeyStrategy)
		if cfg.RateLimit.Backend == config.BackendRedis {
			log.Info("  Redis Addr:     " + cfg.Redis.Addr)
			log.Info("  Redis Prefix:   " + cfg.Redis.KeyPrefix)
		}
		log.Info("")

		log.Info("Flows:")
		owner := cfg.Flows.Owner
		if owner == "" {
			owner = "(built-in)"
		}
		knowledge := cfg.Flows.KnowledgeFile
		if knowledge == "" {
			knowledge = "(embedded)"
		}
		log.Info("  Owner:          " + owner)
		log.Info("  Knowledge:      " + knowledge)
		log.Info(fmt.Sprintf("  Max History:    %d", cfg.Flows.MaxHistory))
		log.Info("")

		log.Info("Model Providers:")
		log.Info("  Default:        " + cfg.AILink.DefaultProvider)
		log.Info("  Timeout:        " + cfg.AILink.DefaultTimeout.String())
		ids := make([]string, 0, len(cfg.AILink.Providers))
		for id := range cfg.AILink.Providers {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			p := cfg.AILink.Providers[id]
			key := ""
			for _, cred := range p.Credentials {
				if strings.TrimSpace(cred.APIKey) != "" {
					key = cred.APIKey
					break
				}
			}
			log.Info(fmt.Sprintf("  %s: enabled=%t provider=%s model=%s api_key=%s",
				id, p.Enabled, p.AIProvider, p.Models["default"], setOrNot(key)))
		}
		for role, id := range cfg.AILink.Routing {
			log.Info(fmt.Sprintf("  route %s -> %s", role, id))
		}
		log.Info("")

		log.Info("=== End Environment Information ===")
	},
}

func setOrNot(secret string) string {
	if strings.TrimSpace(secret) == "" {
		return "(not set)"
	}
	return "(set)"
}

func init() {
	rootCmd.AddCommand(envInfoCmd)
}
