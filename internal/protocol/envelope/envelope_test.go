package envelope

import (
	"encoding/json"
	"errors"
	"math/big"
	"testing"

	"github.com/danmuck/walletlink/internal/testutil/testlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMethod(t *testing.T) {
	testlog.Start(t)
	for _, m := range Methods() {
		got, err := ParseMethod(string(m))
		require.NoError(t, err)
		assert.Equal(t, m, got)
	}
	_, err := ParseMethod("sign_everything")
	require.ErrorIs(t, err, ErrUnknownMethod)
	assert.Len(t, Methods(), 10)
}

func TestEncodeWireShape(t *testing.T) {
	testlog.Start(t)
	raw, err := Encode(Envelope{
		Method: MethodPing,
		Nonce:  "n0nce==",
		Source: DefaultSource,
		Href:   "https://app.example/wallet",
	})
	require.NoError(t, err)

	var wire map[string]any
	require.NoError(t, json.Unmarshal(raw, &wire))
	assert.Equal(t, "ping", wire["method"])
	assert.Equal(t, map[string]any{}, wire["args"])
	assert.Equal(t, "n0nce==", wire["nonce"])
	assert.Equal(t, DefaultSource, wire["source"])
	assert.Equal(t, "https://app.example/wallet", wire["href"])
}

func TestEncodeRejectsInvalidEnvelope(t *testing.T) {
	testlog.Start(t)
	_, err := Encode(Envelope{Method: "nope", Nonce: "x", Source: DefaultSource})
	require.ErrorIs(t, err, ErrInvalidEnvelope)
	require.ErrorIs(t, err, ErrUnknownMethod)

	_, err = Encode(Envelope{Method: MethodPing, Source: DefaultSource})
	require.ErrorIs(t, err, ErrInvalidEnvelope)
}

type deposit struct {
	Amount *big.Int `json:"amount"`
	Gas    uint64   `json:"gas"`
}

func TestEncodeDegradesLargeIntegersToDecimalStrings(t *testing.T) {
	testlog.Start(t)
	yocto, ok := new(big.Int).SetString("1000000000000000000000000", 10)
	require.True(t, ok)

	raw, err := Encode(Envelope{
		Method: MethodSignAndSendTransaction,
		Nonce:  "abc",
		Source: DefaultSource,
		Args: Args{
			"deposit":   yocto,
			"small":     big.NewInt(7),
			"gas":       uint64(300000000000000000),
			"count":     3,
			"nested":    map[string]any{"list": []any{int64(1 << 60), 2}},
			"structure": deposit{Amount: yocto, Gas: 30000000000000},
		},
	})
	require.NoError(t, err)

	env, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, "1000000000000000000000000", env.Args["deposit"])
	assert.Equal(t, "7", env.Args["small"])
	assert.Equal(t, "300000000000000000", env.Args["gas"])
	assert.Equal(t, json.Number("3"), env.Args["count"])

	nested := env.Args["nested"].(map[string]any)
	list := nested["list"].([]any)
	assert.Equal(t, "1152921504606846976", list[0])
	assert.Equal(t, json.Number("2"), list[1])

	structure := env.Args["structure"].(map[string]any)
	assert.Equal(t, "1000000000000000000000000", structure["amount"])
	assert.Equal(t, json.Number("30000000000000"), structure["gas"])
}

func TestEncodeKeepsFloatsNumeric(t *testing.T) {
	testlog.Start(t)

	raw, err := Encode(Envelope{
		Method: MethodSignMessage,
		Nonce:  "abc",
		Source: DefaultSource,
		Args: Args{
			"big":      1e17,
			"negative": float32(-3e18),
			"ratio":    0.25,
			"list":     []any{1e21, 2.5},
		},
	})
	require.NoError(t, err)

	env, err := Decode(raw)
	require.NoError(t, err)
	for _, key := range []string{"big", "negative", "ratio"} {
		_, isNumber := env.Args[key].(json.Number)
		assert.True(t, isNumber, key)
	}
	large, err := env.Args["big"].(json.Number).Float64()
	require.NoError(t, err)
	assert.Equal(t, 1e17, large)
	ratio, err := env.Args["ratio"].(json.Number).Float64()
	require.NoError(t, err)
	assert.Equal(t, 0.25, ratio)
	for _, item := range env.Args["list"].([]any) {
		_, isNumber := item.(json.Number)
		assert.True(t, isNumber)
	}
}

func TestEncodeFailsOnUnserializableArgs(t *testing.T) {
	testlog.Start(t)
	_, err := Encode(Envelope{
		Method: MethodPing,
		Nonce:  "abc",
		Source: DefaultSource,
		Args:   Args{"ch": make(chan int)},
	})
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrInvalidEnvelope))
}
