package wallet

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/danmuck/walletlink/internal/testutil/testlog"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, ""), mr
}

func exerciseStore(t *testing.T, store AccountStore) {
	t.Helper()
	ctx := context.Background()

	accounts, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, accounts)

	want := []Account{{AccountID: "alice.near", PublicKey: "ed25519:abc"}, {AccountID: "bob.near"}}
	require.NoError(t, store.Replace(ctx, want))
	accounts, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, accounts)

	require.NoError(t, store.Clear(ctx))
	accounts, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, accounts)
}

func TestMemoryStore(t *testing.T) {
	testlog.Start(t)
	exerciseStore(t, NewMemoryStore())
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	testlog.Start(t)

	store := NewMemoryStore()
	require.NoError(t, store.Replace(context.Background(), []Account{{AccountID: "alice.near"}}))
	got, err := store.Load(context.Background())
	require.NoError(t, err)
	got[0].AccountID = "mallory.near"

	again, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "alice.near", again[0].AccountID)
}

func TestRedisStore(t *testing.T) {
	testlog.Start(t)

	store, mr := newRedisStore(t)
	exerciseStore(t, store)

	require.NoError(t, store.Replace(context.Background(), []Account{{AccountID: "carol.near"}}))
	raw, err := mr.Get(DefaultRedisKey)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"accountId":"carol.near"}]`, raw)
}

func TestRedisStoreRejectsCorruptValue(t *testing.T) {
	testlog.Start(t)

	store, mr := newRedisStore(t)
	require.NoError(t, mr.Set(DefaultRedisKey, "{not a list"))
	_, err := store.Load(context.Background())
	assert.Error(t, err)
}

func TestDialRedis(t *testing.T) {
	testlog.Start(t)

	mr := miniredis.RunT(t)
	client, err := DialRedis(context.Background(), "redis://"+mr.Addr()+"/0")
	require.NoError(t, err)
	defer client.Close()

	_, err = DialRedis(context.Background(), "")
	assert.Error(t, err)
	_, err = DialRedis(context.Background(), "http://nope")
	assert.Error(t, err)
}

func TestAppWithRedisStoreSurvivesRestart(t *testing.T) {
	testlog.Start(t)

	store, _ := newRedisStore(t)
	inv := newFakeInvoker()
	inv.replies["sign_in"] = []byte(`[{"accountId":"alice.near"}]`)

	first, err := NewApp(Config{}, inv, &recordingProvider{}, store)
	require.NoError(t, err)
	_, err = first.SignIn(context.Background(), SignInParams{})
	require.NoError(t, err)

	second, err := NewApp(Config{}, newFakeInvoker(), &recordingProvider{}, store)
	require.NoError(t, err)
	accounts, err := second.GetAccounts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []Account{{AccountID: "alice.near"}}, accounts)
}
