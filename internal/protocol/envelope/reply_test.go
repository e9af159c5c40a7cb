package envelope

import (
	"encoding/json"
	"testing"

	"github.com/danmuck/walletlink/internal/testutil/testlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseInboundAcceptsReplies(t *testing.T) {
	testlog.Start(t)
	in := ParseInbound([]byte(`{"response":{"accountId":"x"},"nonce":"abc"}`))
	require.True(t, in.IsReply)
	assert.Equal(t, "abc", in.Reply.Nonce)
	assert.False(t, in.Reply.IsError)
	assert.JSONEq(t, `{"accountId":"x"}`, string(in.Reply.Response))

	in = ParseInbound([]byte(`{"response":"bad signature","nonce":"abc","isError":true}`))
	require.True(t, in.IsReply)
	assert.True(t, in.Reply.IsError)
	assert.Equal(t, "bad signature", in.Reply.Message())
}

func TestParseInboundIgnoresNonReplies(t *testing.T) {
	testlog.Start(t)
	cases := []string{
		`"just a string"`,
		`[1,2,3]`,
		`not json`,
		`null`,
		`{"nonce":"abc"}`,
		`{"response":null,"nonce":"abc"}`,
		`{"response":false,"nonce":"abc"}`,
		`{"response":0,"nonce":"abc"}`,
		`{"response":"","nonce":"abc"}`,
		`{"response":"ok"}`,
		`{"response":"ok","nonce":7}`,
		`{"response":"ok","nonce":""}`,
	}
	for _, raw := range cases {
		in := ParseInbound([]byte(raw))
		assert.False(t, in.IsReply, "input %s", raw)
		assert.Equal(t, raw, string(in.Raw))
	}
}

func TestTruthy(t *testing.T) {
	testlog.Start(t)
	truthy := []string{`true`, `1`, `-2.5`, `"x"`, `{}`, `[]`, `"0"`}
	falsy := []string{``, `null`, `false`, `0`, `-0`, `0.0`, `""`}
	for _, v := range truthy {
		assert.True(t, Truthy(json.RawMessage(v)), v)
	}
	for _, v := range falsy {
		assert.False(t, Truthy(json.RawMessage(v)), v)
	}
}

func TestReplyMessageRendersNonStringPayloadAsJSON(t *testing.T) {
	testlog.Start(t)
	r := Reply{Response: json.RawMessage(`{ "code" : 4001 }`)}
	assert.Equal(t, `{"code":4001}`, r.Message())
}

func TestEncodeReplyRoundTrip(t *testing.T) {
	testlog.Start(t)
	raw, err := EncodeReply("n-1", []map[string]string{{"accountId": "alice.near"}}, false)
	require.NoError(t, err)
	in := ParseInbound(raw)
	require.True(t, in.IsReply)
	assert.Equal(t, "n-1", in.Reply.Nonce)
	assert.JSONEq(t, `[{"accountId":"alice.near"}]`, string(in.Reply.Response))
}
