package boundary

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestStdioServer_Serve_DispatchesOneRequestPerLine(t *testing.T) {
	deps, st, _ := newTestDeps(t)
	_, err := st.GetOrCreateProject(context.Background(), "acme-web", "acme")
	require.NoError(t, err)

	server := NewStdioServer(NewRegistry(deps), zap.NewNop())
	in := bytes.NewBufferString(`{"id":1,"op":"list_reservations","params":{"project_key":"acme-web"}}` + "\n")
	var out bytes.Buffer

	require.NoError(t, server.Serve(context.Background(), in, &out))

	var resp stdioResponse
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(out.Bytes()), &resp))
	require.Nil(t, resp.Error)
	require.NotNil(t, resp.Result)
}

func TestStdioServer_Serve_MalformedLineYieldsErrorResponseAndContinues(t *testing.T) {
	deps, st, _ := newTestDeps(t)
	_, err := st.GetOrCreateProject(context.Background(), "acme-web", "acme")
	require.NoError(t, err)

	server := NewStdioServer(NewRegistry(deps), zap.NewNop())
	in := bytes.NewBufferString("not json\n" + `{"id":2,"op":"list_reservations","params":{"project_key":"acme-web"}}` + "\n")
	var out bytes.Buffer

	require.NoError(t, server.Serve(context.Background(), in, &out))

	lines := bytes.Split(bytes.TrimSpace(out.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)

	var first stdioResponse
	require.NoError(t, json.Unmarshal(lines[0], &first))
	require.NotNil(t, first.Error)
	require.Equal(t, "INVALID_ARGUMENT", first.Error.Code)

	var second stdioResponse
	require.NoError(t, json.Unmarshal(lines[1], &second))
	require.Nil(t, second.Error)
}

func TestStdioServer_Serve_UnknownOperationYieldsError(t *testing.T) {
	deps, _, _ := newTestDeps(t)
	server := NewStdioServer(NewRegistry(deps), zap.NewNop())
	in := bytes.NewBufferString(`{"id":3,"op":"nonexistent","params":{}}` + "\n")
	var out bytes.Buffer

	require.NoError(t, server.Serve(context.Background(), in, &out))

	var resp stdioResponse
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(out.Bytes()), &resp))
	require.NotNil(t, resp.Error)
	require.Equal(t, "INVALID_ARGUMENT", resp.Error.Code)
}
