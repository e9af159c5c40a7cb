package wallet

import (
	"context"
	"encoding/json"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/walletlink/internal/consent"
	"github.com/danmuck/walletlink/internal/correlator"
	"github.com/danmuck/walletlink/internal/protocol/envelope"
	"github.com/danmuck/walletlink/internal/testutil/testlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	method  envelope.Method
	args    envelope.Args
	timeout time.Duration
}

type fakeInvoker struct {
	mu      sync.Mutex
	calls   []call
	replies map[envelope.Method]json.RawMessage
	errs    map[envelope.Method]error
}

func newFakeInvoker() *fakeInvoker {
	return &fakeInvoker{
		replies: make(map[envelope.Method]json.RawMessage),
		errs:    make(map[envelope.Method]error),
	}
}

func (f *fakeInvoker) Invoke(_ context.Context, method envelope.Method, args envelope.Args, timeout time.Duration) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{method: method, args: args, timeout: timeout})
	if err := f.errs[method]; err != nil {
		return nil, err
	}
	if raw, ok := f.replies[method]; ok {
		return raw, nil
	}
	return json.RawMessage(`true`), nil
}

func (f *fakeInvoker) methods() []envelope.Method {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]envelope.Method, 0, len(f.calls))
	for _, c := range f.calls {
		out = append(out, c.method)
	}
	return out
}

type recordingProvider struct {
	mu       sync.Mutex
	requests []consent.Request
	reject   bool
}

func (p *recordingProvider) WhenApprove(ctx context.Context, req consent.Request) error {
	p.mu.Lock()
	p.requests = append(p.requests, req)
	reject := p.reject
	p.mu.Unlock()
	if reject {
		return consent.Deny{}.WhenApprove(ctx, req)
	}
	return nil
}

func newTestApp(t *testing.T, cfg Config) (*App, *fakeInvoker, *recordingProvider) {
	t.Helper()
	inv := newFakeInvoker()
	prov := &recordingProvider{}
	app, err := NewApp(cfg, inv, prov, nil)
	require.NoError(t, err)
	return app, inv, prov
}

func TestNewAppRequiresCollaborators(t *testing.T) {
	testlog.Start(t)

	_, err := NewApp(Config{}, nil, consent.AutoApprove{}, nil)
	assert.ErrorIs(t, err, ErrInvokerRequired)
	_, err = NewApp(Config{}, newFakeInvoker(), nil, nil)
	assert.ErrorIs(t, err, ErrProviderRequired)
}

func TestSignInPingsThenStoresAccounts(t *testing.T) {
	testlog.Start(t)

	app, inv, prov := newTestApp(t, Config{})
	inv.replies[envelope.MethodSignIn] = json.RawMessage(`[{"accountId":"alice.near","publicKey":"ed25519:abc"}]`)

	accounts, err := app.SignIn(context.Background(), SignInParams{ContractID: "guest-book.near", MethodNames: []string{"add"}})
	require.NoError(t, err)
	require.Equal(t, []Account{{AccountID: "alice.near", PublicKey: "ed25519:abc"}}, accounts)

	require.Len(t, inv.calls, 2)
	assert.Equal(t, envelope.MethodPing, inv.calls[0].method)
	assert.Equal(t, time.Second, inv.calls[0].timeout)
	assert.Equal(t, envelope.MethodSignIn, inv.calls[1].method)
	assert.Equal(t, time.Duration(0), inv.calls[1].timeout)
	assert.Equal(t, "guest-book.near", inv.calls[1].args["contractId"])
	assert.Equal(t, []consent.Request{{Title: "sign-in-a", Button: "sign-in-a"}}, prov.requests)

	stored, err := app.GetAccounts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, accounts, stored)
}

func TestSignInEmbeddedUsesLongerPing(t *testing.T) {
	testlog.Start(t)

	app, inv, _ := newTestApp(t, Config{EmbeddedApp: true})
	inv.replies[envelope.MethodSignIn] = json.RawMessage(`[]`)

	_, err := app.SignIn(context.Background(), SignInParams{})
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, inv.calls[0].timeout)
}

func TestSignInPingFailureStopsFlow(t *testing.T) {
	testlog.Start(t)

	app, inv, _ := newTestApp(t, Config{})
	inv.errs[envelope.MethodPing] = &correlator.TimeoutError{Duration: time.Second}

	_, err := app.SignIn(context.Background(), SignInParams{})
	assert.ErrorIs(t, err, correlator.ErrTimeout)
	assert.Equal(t, []envelope.Method{envelope.MethodPing}, inv.methods())

	accounts, err := app.GetAccounts(context.Background())
	require.NoError(t, err)
	assert.Empty(t, accounts)
}

func TestRejectedConsentSendsNothing(t *testing.T) {
	testlog.Start(t)

	app, inv, prov := newTestApp(t, Config{})
	prov.reject = true

	_, err := app.SignIn(context.Background(), SignInParams{})
	assert.ErrorIs(t, err, consent.ErrUserRejected)
	_, err = app.SignMessage(context.Background(), SignMessageParams{Message: "hi"})
	assert.ErrorIs(t, err, consent.ErrUserRejected)
	_, err = app.SignAndSendTransaction(context.Background(), Transaction{ReceiverID: "bob.near"})
	assert.ErrorIs(t, err, consent.ErrUserRejected)
	assert.ErrorIs(t, app.SignOut(context.Background()), consent.ErrUserRejected)
	assert.Empty(t, inv.methods())
}

func TestSignOutOnlyCallsHostWhenSignedIn(t *testing.T) {
	testlog.Start(t)

	app, inv, prov := newTestApp(t, Config{})
	require.NoError(t, app.SignOut(context.Background()))
	assert.Empty(t, inv.methods())
	assert.Equal(t, "sign-out", prov.requests[0].Title)

	inv.replies[envelope.MethodSignIn] = json.RawMessage(`[{"accountId":"alice.near"}]`)
	_, err := app.SignIn(context.Background(), SignInParams{})
	require.NoError(t, err)

	require.NoError(t, app.SignOut(context.Background()))
	assert.Equal(t, []envelope.Method{envelope.MethodPing, envelope.MethodSignIn, envelope.MethodSignOut}, inv.methods())
	accounts, err := app.GetAccounts(context.Background())
	require.NoError(t, err)
	assert.Empty(t, accounts)
}

func TestSignOutKeepsAccountsWhenHostFails(t *testing.T) {
	testlog.Start(t)

	app, inv, _ := newTestApp(t, Config{})
	inv.replies[envelope.MethodSignIn] = json.RawMessage(`[{"accountId":"alice.near"}]`)
	_, err := app.SignIn(context.Background(), SignInParams{})
	require.NoError(t, err)

	inv.errs[envelope.MethodSignOut] = &correlator.RemoteError{Message: "locked"}
	err = app.SignOut(context.Background())
	assert.ErrorIs(t, err, correlator.ErrRemote)

	accounts, err := app.GetAccounts(context.Background())
	require.NoError(t, err)
	assert.Len(t, accounts, 1)
}

func TestSignMessageSendsNonceAsByteValues(t *testing.T) {
	testlog.Start(t)

	app, inv, prov := newTestApp(t, Config{})
	inv.replies[envelope.MethodSignMessage] = json.RawMessage(`{"accountId":"alice.near","publicKey":"ed25519:abc","signature":"c2ln"}`)

	signed, err := app.SignMessage(context.Background(), SignMessageParams{
		Message:   "login",
		Recipient: "app.near",
		Nonce:     []byte{0, 1, 255},
	})
	require.NoError(t, err)
	assert.Equal(t, SignedMessage{AccountID: "alice.near", PublicKey: "ed25519:abc", Signature: "c2ln"}, signed)

	args := inv.calls[0].args
	assert.Equal(t, []int{0, 1, 255}, args["nonce"])
	assert.Equal(t, "login", args["message"])
	assert.Equal(t, "app.near", args["recipient"])
	assert.Equal(t, "sign-message", prov.requests[0].Title)

	wire, err := envelope.Encode(envelope.Envelope{Method: envelope.MethodSignMessage, Args: args, Nonce: "n", Source: envelope.DefaultSource})
	require.NoError(t, err)
	assert.Contains(t, string(wire), `"nonce":[0,1,255]`)
}

func TestSignAndSendTransactionRequiresReceiver(t *testing.T) {
	testlog.Start(t)

	app, inv, prov := newTestApp(t, Config{})
	_, err := app.SignAndSendTransaction(context.Background(), Transaction{})
	assert.ErrorIs(t, err, ErrNoReceiver)
	assert.Equal(t, "signAndSendTransaction", prov.requests[0].Title)
	assert.Empty(t, inv.methods())
}

func TestSignAndSendTransactionPassesOutcome(t *testing.T) {
	testlog.Start(t)

	app, inv, _ := newTestApp(t, Config{})
	inv.replies[envelope.MethodSignAndSendTransaction] = json.RawMessage(`{"status":{"SuccessValue":""}}`)
	deposit, _ := new(big.Int).SetString("1000000000000000000000000", 10)

	out, err := app.SignAndSendTransaction(context.Background(), Transaction{
		ReceiverID: "bob.near",
		Actions: []Action{{
			"type":   "Transfer",
			"params": map[string]any{"deposit": deposit},
		}},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":{"SuccessValue":""}}`, string(out))

	args := inv.calls[0].args
	assert.Equal(t, "bob.near", args["receiverId"])
	wire, err := envelope.Encode(envelope.Envelope{Method: envelope.MethodSignAndSendTransaction, Args: args, Nonce: "n", Source: envelope.DefaultSource})
	require.NoError(t, err)
	assert.Contains(t, string(wire), `"deposit":"1000000000000000000000000"`)
}

func TestSignAndSendTransactions(t *testing.T) {
	testlog.Start(t)

	app, inv, prov := newTestApp(t, Config{})
	inv.replies[envelope.MethodSignAndSendTransactions] = json.RawMessage(`[{"id":1},{"id":2}]`)

	out, err := app.SignAndSendTransactions(context.Background(), SignAndSendTransactionsParams{
		Transactions: []Transaction{{ReceiverID: "a.near"}, {ReceiverID: "b.near"}},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":1},{"id":2}]`, string(out))
	assert.Equal(t, "signAndSendTransactions", prov.requests[0].Title)
	txs, ok := inv.calls[0].args["transactions"].([]any)
	require.True(t, ok)
	assert.Len(t, txs, 2)
}
