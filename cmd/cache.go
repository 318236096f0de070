package cmd

import (
	"fmt"
	"path"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/storacha/mirror/internal/output"
	"github.com/storacha/mirror/pkg/model"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and clean the local file cache",
}

var cacheLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List cached files",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, err := cmd.Flags().GetBool("json")
		if err != nil {
			return err
		}

		return withSession(cmd, func(s *session) error {
			files, err := s.coord.CachedFiles(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return output.JSON(cmd.OutOrStdout(), files)
			}

			rows := [][]string{{"LIBRARY", "PATH", "SIZE", "LOCAL"}}
			var total uint64
			for _, f := range files {
				size := "missing"
				if info, err := s.fs.Stat(f.LocalPath); err == nil {
					size = humanize.IBytes(uint64(info.Size()))
					total += uint64(info.Size())
				}
				rows = append(rows, []string{f.RepoName, f.Path, size, f.LocalPath})
			}
			output.Table(cmd.OutOrStdout(), rows, isTerminal(cmd.OutOrStdout()))
			cmd.Printf("%d files, %s\n", len(files), humanize.IBytes(total))
			return nil
		})
	},
}

var cacheEvictCmd = &cobra.Command{
	Use:   "evict <repo-id> [path]",
	Short: "Delete cached files",
	Long: `Deletes the local copy of a cached file and forgets it. Without a
path, every cached file of the library is evicted.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(s *session) error {
			ctx := cmd.Context()
			files, err := s.coord.CachedFiles(ctx)
			if err != nil {
				return err
			}

			var victims []model.CachedFile
			for _, f := range files {
				if f.RepoID != args[0] {
					continue
				}
				if len(args) == 2 && f.Path != path.Clean("/"+args[1]) {
					continue
				}
				victims = append(victims, f)
			}
			if len(args) == 2 && len(victims) == 0 {
				return fmt.Errorf("%s is not cached", args[1])
			}

			for _, f := range victims {
				if err := s.coord.EvictFile(ctx, f); err != nil {
					return err
				}
			}
			cmd.Printf("Evicted %d files\n", len(victims))
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheLsCmd)
	cacheCmd.AddCommand(cacheEvictCmd)

	cacheLsCmd.Flags().Bool("json", false, "Print JSON")
}
