package output_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/storacha/mirror/internal/output"
)

func TestTable(t *testing.T) {
	var buf bytes.Buffer
	output.Table(&buf, [][]string{
		{"ID", "NAME"},
		{"r1", "Docs"},
		{"r22", "Photos"},
	}, false)
	require.Equal(t, "ID   NAME\nr1   Docs\nr22  Photos\n", buf.String())

	buf.Reset()
	output.Table(&buf, nil, true)
	require.Empty(t, buf.String())
}

func TestJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, output.JSON(&buf, []string{"a"}))
	require.JSONEq(t, `{"status":"success","data":["a"]}`, buf.String())

	buf.Reset()
	require.NoError(t, output.JSONError(&buf, errors.New("nope")))
	require.JSONEq(t, `{"status":"error","message":"nope"}`, buf.String())
}

func TestMessages(t *testing.T) {
	var buf bytes.Buffer
	output.Warning(&buf, "%d files skipped", 2)
	output.Error(&buf, errors.New("offline"))
	require.Equal(t, "warning: 2 files skipped\nerror: offline\n", buf.String())
}
