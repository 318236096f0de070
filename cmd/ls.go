package cmd

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/storacha/mirror/internal/output"
)

var lsCmd = &cobra.Command{
	Use:     "ls <repo-id> [path]",
	Aliases: []string{"list"},
	Short:   "List a directory of a library",
	Long: `Lists the entries of a directory, the library root by default. The
cached listing is used when there is one; --refresh checks it against the
server, which transfers the listing only if it changed.`,
	Example: fmt.Sprintf("  %s ls 0c5f3a21-8f2b-4c8e-9f53-d0a1b2c3d4e5 /photos", rootCmd.Name()),
	Args:    cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		repoID, dir := args[0], "/"
		if len(args) == 2 {
			dir = args[1]
		}
		refresh, err := cmd.Flags().GetBool("refresh")
		if err != nil {
			return err
		}
		asJSON, err := cmd.Flags().GetBool("json")
		if err != nil {
			return err
		}

		return withSession(cmd, func(s *session) error {
			dirents, err := s.coord.ListDirectory(cmd.Context(), repoID, dir, !refresh)
			if err != nil {
				if asJSON {
					return jsonFailure(cmd, err)
				}
				return err
			}
			if asJSON {
				return output.JSON(cmd.OutOrStdout(), dirents)
			}

			rows := [][]string{{"TYPE", "SIZE", "MODIFIED", "NAME"}}
			for _, d := range dirents {
				size := humanize.IBytes(uint64(d.Size))
				if d.IsDir() {
					size = "-"
				}
				modified := "-"
				if d.MTime > 0 {
					modified = humanize.Time(time.Unix(d.MTime, 0))
				}
				rows = append(rows, []string{d.Type, size, modified, d.Name})
			}
			output.Table(cmd.OutOrStdout(), rows, isTerminal(cmd.OutOrStdout()))
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(lsCmd)

	lsCmd.Flags().Bool("refresh", false, "Check the listing against the server")
	lsCmd.Flags().Bool("json", false, "Print JSON")
}
