package badgerstore_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/storacha/mirror/pkg/model"
	"github.com/storacha/mirror/pkg/store/badgerstore"
	"github.com/storacha/mirror/pkg/store/storetest"
)

func TestBadgerStore(t *testing.T) {
	storetest.Run(t, storetest.NewBadgerStore)
}

func TestRemappingReleasesOldClaim(t *testing.T) {
	s, err := badgerstore.Open(t.Context(), badgerstore.Config{InMemory: true})
	require.NoError(t, err)
	defer s.Close()

	const acct = "foo@example.com@cloud.example.com"
	require.NoError(t, s.SaveRepoDir(t.Context(), model.RepoDir{AccountSignature: acct, RepoName: "Docs", RepoID: "r1", Path: "/data/Docs"}))
	require.NoError(t, s.SaveRepoDir(t.Context(), model.RepoDir{AccountSignature: acct, RepoName: "Docs", RepoID: "r1", Path: "/data/Papers"}))

	claimed, err := s.RepoDirClaimed(t.Context(), acct, "/data/Docs")
	require.NoError(t, err)
	require.False(t, claimed)

	claimed, err = s.RepoDirClaimed(t.Context(), acct, "/data/Papers")
	require.NoError(t, err)
	require.True(t, claimed)
}
