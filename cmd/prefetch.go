package cmd

import (
	"path"
	"sync/atomic"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var prefetchCmd = &cobra.Command{
	Use:   "prefetch <repo-id> <dir>",
	Short: "Fetch every file of a directory into the local cache",
	Long: `Checks the listing of a directory against the server and fetches each
file in it whose cached copy is missing or stale, several at a time.
Subdirectories are not descended into. With --thumbnails, thumbnails of the
images among them are generated as well.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		concurrency, err := cmd.Flags().GetInt("concurrency")
		if err != nil {
			return err
		}
		thumbnails, err := cmd.Flags().GetBool("thumbnails")
		if err != nil {
			return err
		}
		dir := path.Clean("/" + args[1])

		return withSession(cmd, func(s *session) error {
			ctx := cmd.Context()
			repo, err := findRepository(ctx, s, args[0])
			if err != nil {
				return err
			}
			dirents, err := s.coord.ListDirectory(ctx, repo.ID, dir, false)
			if err != nil {
				return err
			}

			stop := startProgress(cmd, s.events, "prefetching")
			defer stop()

			var (
				fetched atomic.Int64
				bytes   atomic.Int64
				thumbs  atomic.Int64
			)
			g, gctx := errgroup.WithContext(ctx)
			g.SetLimit(max(concurrency, 1))
			for _, d := range dirents {
				if d.IsDir() {
					continue
				}
				g.Go(func() error {
					p := path.Join(dir, d.Name)
					if _, err := s.coord.OpenFile(gctx, repo.Name, repo.ID, p, nil); err != nil {
						return err
					}
					fetched.Add(1)
					bytes.Add(d.Size)
					if thumbnails {
						if _, ok := s.coord.Thumbnail(gctx, repo.Name, repo.ID, p, d.ID); ok {
							thumbs.Add(1)
						}
					}
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}
			stop()

			cmd.Printf("%d files cached (%s)", fetched.Load(), humanize.IBytes(uint64(bytes.Load())))
			if thumbnails {
				cmd.Printf(", %d thumbnails", thumbs.Load())
			}
			cmd.Println()
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(prefetchCmd)

	prefetchCmd.Flags().Int("concurrency", 4, "Files fetched at the same time")
	prefetchCmd.Flags().Bool("thumbnails", false, "Generate thumbnails of fetched images")
}
