package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/bookstore/internal/store"
)

func TestSessionStore(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	st := NewSessionStore().WithClock(func() time.Time { return now })

	require.NoError(t, st.Set(ctx, "app:session:1", []byte(`{"a":1}`), time.Minute))

	payload, err := st.Get(ctx, "app:session:1")
	require.NoError(t, err)
	require.JSONEq(t, `{"a":1}`, string(payload))

	t.Run("expires after ttl", func(t *testing.T) {
		now = now.Add(time.Minute)
		_, err := st.Get(ctx, "app:session:1")
		require.ErrorIs(t, err, store.ErrSessionNotFound)
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		require.NoError(t, st.Set(ctx, "app:session:2", []byte(`{}`), time.Minute))
		require.NoError(t, st.Delete(ctx, "app:session:2"))
		require.NoError(t, st.Delete(ctx, "app:session:2"))

		_, err := st.Get(ctx, "app:session:2")
		require.ErrorIs(t, err, store.ErrSessionNotFound)
	})

	t.Run("replace requires a live key", func(t *testing.T) {
		err := st.Replace(ctx, "app:session:3", []byte(`{}`), time.Minute)
		require.ErrorIs(t, err, store.ErrSessionNotFound)

		require.NoError(t, st.Set(ctx, "app:session:3", []byte(`{"v":1}`), time.Minute))
		require.NoError(t, st.Replace(ctx, "app:session:3", []byte(`{"v":2}`), time.Minute))

		payload, err := st.Get(ctx, "app:session:3")
		require.NoError(t, err)
		require.JSONEq(t, `{"v":2}`, string(payload))

		require.NoError(t, st.Delete(ctx, "app:session:3"))
		err = st.Replace(ctx, "app:session:3", []byte(`{"v":3}`), time.Minute)
		require.ErrorIs(t, err, store.ErrSessionNotFound)
	})

	t.Run("canceled context", func(t *testing.T) {
		canceled, cancel := context.WithCancel(ctx)
		cancel()

		require.ErrorIs(t, st.Set(canceled, "app:session:4", []byte(`{}`), time.Minute), context.Canceled)
		_, err := st.Get(canceled, "app:session:4")
		require.ErrorIs(t, err, context.Canceled)
		require.ErrorIs(t, st.Replace(canceled, "app:session:4", []byte(`{}`), time.Minute), context.Canceled)
		require.ErrorIs(t, st.Delete(canceled, "app:session:4"), context.Canceled)
	})
}
