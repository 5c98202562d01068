package proto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEnvelopeMarshalRoundTrip(t *testing.T) {
	cmd, err := Encode("read_file", map[string]string{"path": "/tmp/x"})
	require.NoError(t, err)

	e := NewRequest(NewSingle(cmd), Header{"sequence": true})
	b, err := e.Marshal()
	require.NoError(t, err)

	var got Envelope
	require.NoError(t, Unmarshal(b, &got))
	require.Equal(t, e.ID, got.ID)
	require.True(t, got.Header.Sequenced())

	gotCmd, err := got.Payload.DecodeSingleCommand()
	require.NoError(t, err)
	require.Equal(t, "read_file", gotCmd.Type)

	var m map[string]string
	require.NoError(t, Decode(gotCmd, &m))
	require.Equal(t, "/tmp/x", m["path"])
}

func TestResponseOriginIDEchoesRequestID(t *testing.T) {
	cmd, _ := Encode("exists", nil)
	req := NewRequest(NewSingle(cmd), nil)

	res, _ := OkResult(true)
	resp := NewResponse(req, NewSingle(res))
	require.Equal(t, req.ID, resp.OriginID)

	b, err := resp.Marshal()
	require.NoError(t, err)
	var got Envelope
	require.NoError(t, Unmarshal(b, &got))
	gotRes, err := got.Payload.DecodeSingleResult()
	require.NoError(t, err)
	require.False(t, gotRes.IsError())

	var ok bool
	require.NoError(t, gotRes.DecodeOk(&ok))
	require.True(t, ok)
}

func TestBatchPayloadRoundTrip(t *testing.T) {
	c1, _ := Encode("exists", nil)
	c2, _ := Encode("version", nil)
	e := NewRequest(NewBatch([]interface{}{c1, c2}), nil)

	b, err := e.Marshal()
	require.NoError(t, err)
	var got Envelope
	require.NoError(t, Unmarshal(b, &got))
	require.True(t, got.Payload.IsBatch())

	cmds, err := got.Payload.DecodeBatchCommands()
	require.NoError(t, err)
	require.Len(t, cmds, 2)
	require.Equal(t, "exists", cmds[0].Type)
	require.Equal(t, "version", cmds[1].Type)
}

func TestInterruptedResultHasExactDescription(t *testing.T) {
	r := InterruptedResult()
	require.True(t, r.IsError())
	require.Equal(t, "Canceled due to earlier error", r.Error.Description)
	require.Equal(t, "Interrupted", r.Error.Kind)
}
