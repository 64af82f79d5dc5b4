package cmd

import (
	"fmt"
	"runtime"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/spf13/cobra"
)

var (
	extended    bool
	versionJSON bool
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  "Print version information. Use --extended for full details including Crucible and Go versions.",
	RunE: func(cmd *cobra.Command, args []string) error {
		identity := GetAppIdentity()
		w := cmd.OutOrStdout()

		if versionJSON {
			ssot := crucible.GetVersion()
			return writeJSONTo(w, map[string]string{
				"name":       identity.BinaryName,
				"version":    versionInfo.Version,
				"git_commit": versionInfo.Commit,
				"build_date": versionInfo.BuildDate,
				"go_version": runtime.Version(),
				"gofulmen":   ssot.Gofulmen,
				"crucible":   ssot.Crucible,
			})
		}

		_, _ = fmt.Fprintf(w, "%s %s\n", identity.BinaryName, versionInfo.Version)
		if !extended {
			return nil
		}

		_, _ = fmt.Fprintf(w, "Commit: %s\n", versionInfo.Commit)
		_, _ = fmt.Fprintf(w, "Built: %s\n", versionInfo.BuildDate)
		_, _ = fmt.Fprintf(w, "Go: %s\n\n", runtime.Version())

		ssot := crucible.GetVersion()
		_, _ = fmt.Fprintf(w, "Gofulmen: %s\n", ssot.Gofulmen)
		_, _ = fmt.Fprintf(w, "Crucible: %s\n", ssot.Crucible)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().BoolVarP(&extended, "extended", "e", false, "show extended version information")
	versionCmd.Flags().BoolVar(&versionJSON, "json", false, "print version information as JSON")
}
