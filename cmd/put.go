package cmd

import (
	"errors"
	"path"

	"github.com/spf13/cobra"
)

var putCmd = &cobra.Command{
	Use:   "put <repo-id> <dir> <file> | put --update <repo-id> <path>",
	Short: "Upload a file to a library",
	Long: `Uploads a local file into a directory of a library and keeps a copy of
it in the local cache. With --update, the cached copy of <path>, edited in
place, replaces the file on the server.`,
	Args: func(cmd *cobra.Command, args []string) error {
		update, _ := cmd.Flags().GetBool("update")
		if update {
			return cobra.ExactArgs(2)(cmd, args)
		}
		return cobra.ExactArgs(3)(cmd, args)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		update, err := cmd.Flags().GetBool("update")
		if err != nil {
			return err
		}

		return withSession(cmd, func(s *session) error {
			ctx := cmd.Context()
			repo, err := findRepository(ctx, s, args[0])
			if err != nil {
				return err
			}

			if !update {
				stop := startProgress(cmd, s.events, "uploading")
				defer stop()
				return s.coord.UploadFile(ctx, repo.Name, repo.ID, args[1], args[2], nil)
			}

			entry, found, err := s.coord.CachedFile(ctx, repo.ID, args[1])
			if err != nil {
				return err
			}
			if !found {
				return errors.New("file is not cached: run `mirror get` and edit the local copy first")
			}
			stop := startProgress(cmd, s.events, "updating")
			defer stop()
			return s.coord.UpdateFile(ctx, repo.Name, repo.ID, path.Dir(entry.Path), entry.LocalPath, nil)
		})
	},
}

func init() {
	rootCmd.AddCommand(putCmd)

	putCmd.Flags().Bool("update", false, "Replace an existing file with its edited cached copy")
}
