package cmd

import (
	"github.com/spf13/cobra"

	"github.com/storacha/mirror/internal/build"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version of mirror",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("version: %s\n", build.Version)
		cmd.Printf("commit: %s\n", build.Commit)
		cmd.Printf("built at: %s\n", build.Date)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
