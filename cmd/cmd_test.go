package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/storacha/mirror/pkg/model"
	"github.com/storacha/mirror/pkg/remote/remotetest"
)

type cli struct {
	t    *testing.T
	base []string
}

func newCLI(t *testing.T) (*cli, *remotetest.Fake, string) {
	fake := remotetest.NewFake(afero.NewMemMapFs())
	srv := remotetest.NewServer(fake, "secret")
	t.Cleanup(srv.Close)

	dataDir := t.TempDir()
	return &cli{t: t, base: []string{
		"--data-dir", dataDir,
		"--server", srv.URL,
		"--email", "foo@example.com",
		"--token", "secret",
	}}, fake, dataDir
}

func (c *cli) run(args ...string) (string, error) {
	return c.runWithInput("", args...)
}

func (c *cli) runWithInput(stdin string, args ...string) (string, error) {
	var out bytes.Buffer
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	defer func() {
		rootCmd.SetIn(os.Stdin)
		rootCmd.SetOut(os.Stdout)
		rootCmd.SetErr(os.Stderr)
	}()
	rootCmd.SetArgs(append(args, c.base...))
	err := rootCmd.ExecuteContext(c.t.Context())
	return out.String(), err
}

func TestCommands(t *testing.T) {
	c, fake, dataDir := newCLI(t)
	fake.SetRepoList(model.Repository{ID: "r1", Name: "Docs"})
	fake.SetDirents("r1", "/", "d1", model.Dirent{ID: "f1", Name: "a.txt", Type: "file", Size: 5})
	fake.SetFile("r1", "/a.txt", "f1", []byte("hello"))

	out, err := c.run("repos", "--refresh=true")
	require.NoError(t, err)
	require.Contains(t, out, "Docs")

	out, err = c.run("ls", "r1", "/", "--refresh=true")
	require.NoError(t, err)
	require.Contains(t, out, "a.txt")

	out, err = c.run("get", "r1", "/a.txt")
	require.NoError(t, err)
	local := filepath.Join(dataDir, "files", "foo@example.com (127.0.0.1)", "Docs", "a.txt")
	require.Contains(t, out, local)
	content, err := os.ReadFile(local)
	require.NoError(t, err)
	require.Equal(t, "hello", string(content))

	_, err = c.run("get", "r1", "/a.txt")
	require.NoError(t, err)
	require.Equal(t, 1, fake.Downloads())

	out, err = c.run("cache", "ls", "--json=false")
	require.NoError(t, err)
	require.Contains(t, out, "/a.txt")
	require.Contains(t, out, "1 files")

	_, err = c.run("mkdir", "r1", "/photos")
	require.NoError(t, err)
	out, err = c.run("ls", "r1", "/", "--refresh=false")
	require.NoError(t, err)
	require.Contains(t, out, "photos")

	out, err = c.run("cache", "evict", "r1", "/a.txt")
	require.NoError(t, err)
	require.Contains(t, out, "Evicted 1 files")
	_, err = os.Stat(local)
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestPasswordFromStdin(t *testing.T) {
	c, fake, _ := newCLI(t)
	fake.SetRepoList(model.Repository{ID: "r2", Name: "Vault", Encrypted: true})
	fake.SetDirents("r2", "/", "d1", model.Dirent{ID: "f1", Name: "secret.txt", Type: "file"})
	fake.Lock("r2", "hunter2")

	_, err := c.run("ls", "r2", "/", "--refresh=true")
	require.Error(t, err)

	_, err = c.runWithInput("wrong\n", "password", "r2")
	require.Error(t, err)

	_, err = c.runWithInput("hunter2\n", "password", "r2")
	require.NoError(t, err)
	require.Equal(t, 2, fake.Calls(remotetest.MethodSetPassword))

	out, err := c.run("ls", "r2", "/", "--refresh=true")
	require.NoError(t, err)
	require.Contains(t, out, "secret.txt")
}
