package cmd

import (
	"context"
	"path"

	"github.com/spf13/cobra"
)

type createOp func(ctx context.Context, repoID, parentDir, name string) error

func createCommand(use, short string, op func(s *session) createOp) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := path.Clean("/" + args[1])
			return withSession(cmd, func(s *session) error {
				return op(s)(cmd.Context(), args[0], path.Dir(p), path.Base(p))
			})
		},
	}
}

var mkdirCmd = createCommand("mkdir <repo-id> <path>", "Create a directory in a library",
	func(s *session) createOp { return s.coord.CreateDirectory })

var touchCmd = createCommand("touch <repo-id> <path>", "Create an empty file in a library",
	func(s *session) createOp { return s.coord.CreateFile })

func init() {
	rootCmd.AddCommand(mkdirCmd)
	rootCmd.AddCommand(touchCmd)
}
