package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/spf13/cobra"

	"github.com/storacha/mirror/pkg/types"
)

var getCmd = &cobra.Command{
	Use:   "get <repo-id> <path>",
	Short: "Fetch a file into the local cache",
	Long: `Makes sure the local cache holds the current revision of a file and
prints its local path. Nothing is transferred if the cached copy is current.
With --retries, a server that cannot be reached is tried again with
exponential backoff.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		repoID, p := args[0], args[1]
		retries, err := cmd.Flags().GetUint("retries")
		if err != nil {
			return err
		}

		return withSession(cmd, func(s *session) error {
			repo, err := findRepository(cmd.Context(), s, repoID)
			if err != nil {
				return err
			}

			stop := startProgress(cmd, s.events, "downloading")
			local, err := retryOffline(cmd.Context(), retries, func() (string, error) {
				return s.coord.OpenFile(cmd.Context(), repo.Name, repo.ID, p, nil)
			})
			stop()
			if err != nil {
				return err
			}
			cmd.Println(local)
			return nil
		})
	},
}

// retryOffline runs op, retrying up to retries more times while the server
// is unreachable. Any other error ends it at once.
func retryOffline[T any](ctx context.Context, retries uint, op func() (T, error)) (T, error) {
	attempt := 0
	return backoff.Retry(ctx, func() (T, error) {
		attempt++
		v, err := op()
		if err == nil {
			return v, nil
		}
		if !errors.Is(err, types.ErrNetworkUnavailable) {
			return v, backoff.Permanent(err)
		}
		log.Infow("Server unreachable", "attempt", attempt, "of", retries+1)
		return v, fmt.Errorf("attempt %d: %w", attempt, err)
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(retries+1),
		backoff.WithMaxElapsedTime(5*time.Minute),
	)
}

func init() {
	rootCmd.AddCommand(getCmd)

	getCmd.Flags().Uint("retries", 0, "Times to retry while the server is unreachable")
}
