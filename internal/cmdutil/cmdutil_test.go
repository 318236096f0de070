package cmdutil_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/storacha/mirror/internal/cmdutil"
	"github.com/storacha/mirror/pkg/types"
)

func TestParseSize(t *testing.T) {
	for in, want := range map[string]uint64{
		"1024": 1024,
		"512B": 512,
		"100k": 100 << 10,
		"1M":   1 << 20,
		" 2G ": 2 << 30,
		"0":    0,
	} {
		got, err := cmdutil.ParseSize(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}

	for _, in := range []string{"", "M", "1.5M", "-1", "ten"} {
		_, err := cmdutil.ParseSize(in)
		require.Error(t, err, in)
	}
}

func TestTranslateError(t *testing.T) {
	require.NoError(t, cmdutil.TranslateError(nil))

	plain := errors.New("boom")
	require.Equal(t, plain, cmdutil.TranslateError(plain))

	for _, err := range []error{
		types.ErrNetworkUnavailable,
		fmt.Errorf("listing: %w", types.NewRemoteError(types.CodePasswordRequired, "")),
		types.NewRemoteError(types.CodeNotFound, "gone"),
		types.NewRemoteError(401, "bad token"),
	} {
		var handled cmdutil.HandledCliError
		require.ErrorAs(t, cmdutil.TranslateError(err), &handled, err.Error())
	}

	handled := cmdutil.NewHandledCliError(plain)
	require.Equal(t, error(handled), cmdutil.TranslateError(handled))
}
