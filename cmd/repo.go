package cmd

import (
	"context"
	"fmt"

	"github.com/storacha/mirror/pkg/model"
)

// findRepository looks id up in the cached list first and asks the server
// only when it is not there.
func findRepository(ctx context.Context, s *session, id string) (model.Repository, error) {
	if repo, ok := s.coord.RepositoryByID(ctx, id); ok {
		return repo, nil
	}
	repos, err := s.coord.ListRepositories(ctx, false)
	if err != nil {
		return model.Repository{}, err
	}
	for _, r := range repos {
		if r.ID == id {
			return r, nil
		}
	}
	return model.Repository{}, fmt.Errorf("no library with id %q", id)
}
