package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/bookstore/internal/store"
)

func setupMiniredis(t *testing.T) (*miniredis.Miniredis, *SessionStore) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return mr, NewSessionStore(client)
}

func TestSessionStore_SetGet(t *testing.T) {
	mr, st := setupMiniredis(t)
	ctx := context.Background()

	err := st.Set(ctx, "bookstore:session:abc", []byte(`{"email":"a@b.c"}`), time.Hour)
	require.NoError(t, err)

	payload, err := st.Get(ctx, "bookstore:session:abc")
	require.NoError(t, err)
	require.JSONEq(t, `{"email":"a@b.c"}`, string(payload))

	require.Equal(t, time.Hour, mr.TTL("bookstore:session:abc"))
}

func TestSessionStore_Expiry(t *testing.T) {
	mr, st := setupMiniredis(t)
	ctx := context.Background()

	require.NoError(t, st.Set(ctx, "k", []byte(`{}`), 10*time.Second))

	mr.FastForward(9 * time.Second)
	_, err := st.Get(ctx, "k")
	require.NoError(t, err)

	mr.FastForward(time.Second)
	_, err = st.Get(ctx, "k")
	require.ErrorIs(t, err, store.ErrSessionNotFound)
}

func TestSessionStore_SetResetsTTL(t *testing.T) {
	mr, st := setupMiniredis(t)
	ctx := context.Background()

	require.NoError(t, st.Set(ctx, "k", []byte(`{"v":1}`), 10*time.Second))
	mr.FastForward(8 * time.Second)

	require.NoError(t, st.Set(ctx, "k", []byte(`{"v":2}`), 10*time.Second))
	mr.FastForward(8 * time.Second)

	payload, err := st.Get(ctx, "k")
	require.NoError(t, err)
	require.JSONEq(t, `{"v":2}`, string(payload))
}

func TestSessionStore_Replace(t *testing.T) {
	mr, st := setupMiniredis(t)
	ctx := context.Background()

	err := st.Replace(ctx, "k", []byte(`{"v":1}`), time.Minute)
	require.ErrorIs(t, err, store.ErrSessionNotFound)
	require.False(t, mr.Exists("k"))

	require.NoError(t, st.Set(ctx, "k", []byte(`{"v":1}`), 10*time.Second))
	require.NoError(t, st.Replace(ctx, "k", []byte(`{"v":2}`), time.Minute))
	require.Equal(t, time.Minute, mr.TTL("k"))

	payload, err := st.Get(ctx, "k")
	require.NoError(t, err)
	require.JSONEq(t, `{"v":2}`, string(payload))

	require.NoError(t, st.Delete(ctx, "k"))
	require.ErrorIs(t, st.Replace(ctx, "k", []byte(`{"v":3}`), time.Minute), store.ErrSessionNotFound)
	require.False(t, mr.Exists("k"))
}

func TestSessionStore_Delete(t *testing.T) {
	_, st := setupMiniredis(t)
	ctx := context.Background()

	require.NoError(t, st.Set(ctx, "k", []byte(`{}`), time.Minute))
	require.NoError(t, st.Delete(ctx, "k"))
	require.NoError(t, st.Delete(ctx, "k"))

	_, err := st.Get(ctx, "k")
	require.ErrorIs(t, err, store.ErrSessionNotFound)
}

func TestSessionStore_RejectsNonPositiveTTL(t *testing.T) {
	_, st := setupMiniredis(t)
	require.Error(t, st.Set(context.Background(), "k", []byte(`{}`), 0))
}

func TestSessionStore_Unavailable(t *testing.T) {
	mr, st := setupMiniredis(t)
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := st.Get(ctx, "k")
	require.ErrorIs(t, err, store.ErrUnavailable)
}
