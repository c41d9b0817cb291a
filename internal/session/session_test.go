package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/bookstore/internal/models"
	"github.com/wolfeidau/bookstore/internal/store"
	"github.com/wolfeidau/bookstore/internal/store/memory"
	redisstore "github.com/wolfeidau/bookstore/internal/store/redis"
)

var customer = models.Identity{
	UserID:    42,
	Email:     "customer@example.com",
	FirstName: "Jane",
	LastName:  "Doe",
	Role:      models.RoleCustomer,
	Active:    true,
}

func newMiniredisService(t *testing.T, ttl time.Duration) (*miniredis.Miniredis, *Service) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	svc, err := NewService(redisstore.NewSessionStore(client), Config{Namespace: "bookstore", TTL: ttl})
	require.NoError(t, err)

	return mr, svc
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "valid", cfg: Config{Namespace: "bookstore", TTL: time.Hour}},
		{name: "missing namespace", cfg: Config{TTL: time.Hour}, wantErr: true},
		{name: "namespace with separator", cfg: Config{Namespace: "a:b", TTL: time.Hour}, wantErr: true},
		{name: "sub-second ttl", cfg: Config{Namespace: "bookstore", TTL: time.Millisecond}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestService_Key(t *testing.T) {
	_, svc := newMiniredisService(t, time.Hour)
	require.Equal(t, "bookstore:session:abc", svc.Key("abc"))
}

func TestService_CreateGet(t *testing.T) {
	mr, svc := newMiniredisService(t, 24*time.Hour)
	ctx := context.Background()

	sess, err := svc.Create(ctx, customer)
	require.NoError(t, err)
	require.NotEmpty(t, sess.SessionID)
	require.Equal(t, customer, sess.Identity)

	require.True(t, mr.Exists("bookstore:session:"+sess.SessionID))
	require.Equal(t, 24*time.Hour, mr.TTL("bookstore:session:"+sess.SessionID))

	identity, found, err := svc.Get(ctx, sess.SessionID)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, customer, *identity)

	t.Run("ids are not reused", func(t *testing.T) {
		other, err := svc.Create(ctx, customer)
		require.NoError(t, err)
		require.NotEqual(t, sess.SessionID, other.SessionID)
	})
}

func TestService_GetAbsent(t *testing.T) {
	mr, svc := newMiniredisService(t, time.Hour)
	ctx := context.Background()

	tests := []struct {
		name      string
		sessionID string
		stored    string
	}{
		{name: "missing key", sessionID: "missing"},
		{name: "empty id", sessionID: ""},
		{name: "id escaping namespace", sessionID: "x:y"},
		{name: "not json", sessionID: "garbage", stored: "not json at all"},
		{name: "json array", sessionID: "array", stored: `[1,2,3]`},
		{name: "unknown role", sessionID: "role", stored: `{"userId":1,"role":"root"}`},
		{name: "missing user id", sessionID: "nouser", stored: `{"role":"admin"}`},
		{name: "unknown fields", sessionID: "extra", stored: `{"userId":1,"role":"admin","isSuperUser":true}`},
		{name: "trailing data", sessionID: "trailing", stored: `{"userId":1,"role":"admin"}{"userId":2}`},
		{name: "trailing brace", sessionID: "brace", stored: `{"userId":1,"role":"admin"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.stored != "" {
				require.NoError(t, mr.Set(svc.Key(tt.sessionID), tt.stored))
			}

			identity, found, err := svc.Get(ctx, tt.sessionID)
			require.NoError(t, err)
			require.False(t, found)
			require.Nil(t, identity)
		})
	}
}

func TestService_Expiry(t *testing.T) {
	mr, svc := newMiniredisService(t, 10*time.Second)
	ctx := context.Background()

	sess, err := svc.Create(ctx, customer)
	require.NoError(t, err)

	mr.FastForward(10 * time.Second)

	_, found, err := svc.Get(ctx, sess.SessionID)
	require.NoError(t, err)
	require.False(t, found)
}

func TestService_RefreshExtendsLifetime(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	backend := memory.NewSessionStore().WithClock(func() time.Time { return now })
	svc, err := NewService(backend, Config{Namespace: "bookstore", TTL: 10 * time.Second})
	require.NoError(t, err)
	ctx := context.Background()

	sess, err := svc.Create(ctx, customer)
	require.NoError(t, err)

	// read just before the original expiry, then refresh with a promoted identity
	now = now.Add(9 * time.Second)
	_, found, err := svc.Get(ctx, sess.SessionID)
	require.NoError(t, err)
	require.True(t, found)

	promoted := customer
	promoted.Role = models.RoleAdmin
	require.NoError(t, svc.Refresh(ctx, sess.SessionID, promoted))

	// past the original expiry instant
	now = now.Add(5 * time.Second)
	identity, found, err := svc.Get(ctx, sess.SessionID)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, models.RoleAdmin, identity.Role)

	// past the refreshed expiry
	now = now.Add(6 * time.Second)
	_, found, err = svc.Get(ctx, sess.SessionID)
	require.NoError(t, err)
	require.False(t, found)
}

func TestService_RefreshAfterDelete(t *testing.T) {
	mr, svc := newMiniredisService(t, time.Hour)
	ctx := context.Background()

	sess, err := svc.Create(ctx, customer)
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, sess.SessionID))

	err = svc.Refresh(ctx, sess.SessionID, customer)
	require.ErrorIs(t, err, store.ErrSessionNotFound)
	require.False(t, mr.Exists(svc.Key(sess.SessionID)))
}

func TestService_Delete(t *testing.T) {
	_, svc := newMiniredisService(t, time.Hour)
	ctx := context.Background()

	sess, err := svc.Create(ctx, customer)
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, sess.SessionID))
	require.NoError(t, svc.Delete(ctx, sess.SessionID))

	_, found, err := svc.Get(ctx, sess.SessionID)
	require.NoError(t, err)
	require.False(t, found)
}

func TestService_StoreUnavailable(t *testing.T) {
	mr, svc := newMiniredisService(t, time.Hour)
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := svc.Create(ctx, customer)
	require.Error(t, err)

	_, found, err := svc.Get(ctx, "abc")
	require.Error(t, err)
	require.False(t, found)
}
