package cmd

import (
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/storacha/mirror/internal/output"
)

var reposCmd = &cobra.Command{
	Use:     "repos",
	Aliases: []string{"libraries"},
	Short:   "List libraries",
	Long: `Lists the libraries of the account. The list is read from the local
cache when there is one; --refresh asks the server.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		refresh, err := cmd.Flags().GetBool("refresh")
		if err != nil {
			return err
		}
		asJSON, err := cmd.Flags().GetBool("json")
		if err != nil {
			return err
		}

		return withSession(cmd, func(s *session) error {
			repos, err := s.coord.ListRepositories(cmd.Context(), !refresh)
			if err != nil {
				if asJSON {
					return jsonFailure(cmd, err)
				}
				return err
			}
			if asJSON {
				return output.JSON(cmd.OutOrStdout(), repos)
			}

			rows := [][]string{{"ID", "NAME", "SIZE", "ENCRYPTED"}}
			for _, r := range repos {
				encrypted := ""
				if r.Encrypted {
					encrypted = "yes"
				}
				rows = append(rows, []string{r.ID, r.Name, humanize.IBytes(uint64(r.Size)), encrypted})
			}
			output.Table(cmd.OutOrStdout(), rows, isTerminal(cmd.OutOrStdout()))
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(reposCmd)

	reposCmd.Flags().Bool("refresh", false, "Ask the server instead of using the cached list")
	reposCmd.Flags().Bool("json", false, "Print JSON")
}
