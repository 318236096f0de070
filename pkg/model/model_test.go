package model_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/storacha/mirror/pkg/model"
	"github.com/storacha/mirror/pkg/types"
)

func TestAccount(t *testing.T) {
	acct := model.NewAccount("https://192.168.1.116:8000/", "foo@gmail.com", "tok")

	require.Equal(t, "192.168.1.116", acct.Host())
	require.Equal(t, "foo@gmail.com (192.168.1.116)", acct.Dir())
	require.Equal(t, "foo@gmail.com@192.168.1.116:8000", acct.Signature())

	t.Run("ports separate accounts on one host", func(t *testing.T) {
		other := model.NewAccount("https://192.168.1.116:9000", "foo@gmail.com", "tok")
		require.NotEqual(t, acct.Signature(), other.Signature())
		require.Equal(t, acct.Dir(), other.Dir())
	})

	t.Run("unsafe characters are replaced in the directory name", func(t *testing.T) {
		acct := model.NewAccount("https://cloud.example.com", "a+b/c@example.com", "")
		require.Equal(t, "a_b_c@example.com (cloud.example.com)", acct.Dir())
	})

	t.Run("snapshot key is stable and distinct per account", func(t *testing.T) {
		k1, err := acct.SnapshotKey()
		require.NoError(t, err)
		k2, err := acct.SnapshotKey()
		require.NoError(t, err)
		require.Equal(t, k1, k2)

		other, err := model.NewAccount("https://192.168.1.116:8000", "bar@gmail.com", "").SnapshotKey()
		require.NoError(t, err)
		require.NotEqual(t, k1, other)
	})
}

func TestParseRepositories(t *testing.T) {
	t.Run("parses a listing", func(t *testing.T) {
		repos, err := model.ParseRepositories([]byte(`[
			{"id":"r1","name":"Docs","root":"aaa","type":"repo"},
			{"id":"r2","name":"Docs","root":"bbb","type":"grepo","encrypted":true},
			{"name":"no id"}
		]`))
		require.NoError(t, err)
		require.Len(t, repos, 2)
		require.Equal(t, "r2", repos[1].ID)
		require.Equal(t, "grepo", repos[1].Group)
		require.True(t, repos[1].Encrypted)
	})

	t.Run("empty array is an empty result", func(t *testing.T) {
		repos, err := model.ParseRepositories([]byte(`[]`))
		require.NoError(t, err)
		require.NotNil(t, repos)
		require.Empty(t, repos)
	})

	t.Run("malformed payload is a parse error", func(t *testing.T) {
		_, err := model.ParseRepositories([]byte(`{"id":`))
		var parseErr types.ParseError
		require.ErrorAs(t, err, &parseErr)
	})
}

func TestParseDirents(t *testing.T) {
	dirents, err := model.ParseDirents([]byte(`[
		{"id":"d1","name":"sub","type":"dir"},
		{"id":"f1","name":"a.txt","type":"file","size":12},
		{"id":"","name":"broken","type":"file"}
	]`))
	require.NoError(t, err)
	require.Len(t, dirents, 2)
	require.True(t, dirents[0].IsDir())
	require.False(t, dirents[1].IsDir())
	require.EqualValues(t, 12, dirents[1].Size)

	_, err = model.ParseDirents(nil)
	require.Error(t, err)

	_, err = model.ParseDirents([]byte("uptodate"))
	require.Error(t, err)
}
