package accesstree

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/opshub/tenantsync/pkg/errors"
)

func newTestBroker(t *testing.T, handler http.Handler) (*Broker, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	b, err := NewBroker(BrokerConfig{
		BaseURL:  srv.URL,
		Username: "sync-bot",
		Password: "s3cret",
	})
	require.NoError(t, err)
	b.sleep = func(time.Duration) {}
	return b, srv
}

func loginHandler(logins *atomic.Int32, body string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != loginEndpoint || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		logins.Add(1)
		_, _ = w.Write([]byte(body))
	})
}

func TestBrokerConcurrentCallersLoginOnce(t *testing.T) {
	var logins atomic.Int32
	b, _ := newTestBroker(t, loginHandler(&logins, `{"token":"tok-1","expires_in":3600}`))

	const callers = 20
	var wg sync.WaitGroup
	errs := make([]error, callers)
	tokens := make([]string, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h, err := b.Headers(context.Background())
			errs[i] = err
			if err == nil {
				tokens[i] = h.Get("Authorization")
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), logins.Load(), "concurrent callers must share a single login")
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "Bearer tok-1", tokens[i])
	}
}

func TestBrokerReusesTokenUntilMargin(t *testing.T) {
	var logins atomic.Int32
	b, _ := newTestBroker(t, loginHandler(&logins, `{"token":"tok-1","expires_in":3600}`))

	now := time.Now()
	b.now = func() time.Time { return now }

	_, err := b.Headers(context.Background())
	require.NoError(t, err)
	_, err = b.Headers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), logins.Load())

	// Step to 40 seconds before expiry: inside the 30s margin is still ok.
	now = now.Add(3600*time.Second - 40*time.Second)
	_, err = b.Headers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), logins.Load())

	// Inside the margin the token is treated as expired.
	now = now.Add(20 * time.Second)
	_, err = b.Headers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), logins.Load())
}

func TestBrokerRefreshForcesRelogin(t *testing.T) {
	var logins atomic.Int32
	b, _ := newTestBroker(t, loginHandler(&logins, `{"token":"tok-1","expires_in":3600}`))

	_, err := b.Token(context.Background(), false)
	require.NoError(t, err)
	require.NoError(t, b.Refresh(context.Background()))
	assert.Equal(t, int32(2), logins.Load())
}

func TestBrokerStaticTokenBypassesLogin(t *testing.T) {
	var logins atomic.Int32
	srv := httptest.NewServer(loginHandler(&logins, `{}`))
	t.Cleanup(srv.Close)

	b, err := NewBroker(BrokerConfig{BaseURL: srv.URL, StaticToken: "abc123"})
	require.NoError(t, err)

	h, err := b.Headers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Token abc123", h.Get("Authorization"))
	assert.Equal(t, int32(0), logins.Load())

	err = b.Refresh(context.Background())
	require.Error(t, err, "a rejected static token cannot be refreshed")
}

func TestBrokerWithoutCredentialsDegradesToUnauthenticated(t *testing.T) {
	b, err := NewBroker(BrokerConfig{BaseURL: "http://tree.local"})
	require.NoError(t, err)

	tok, err := b.Token(context.Background(), false)
	require.NoError(t, err)
	assert.Empty(t, tok)

	h, err := b.Headers(context.Background())
	require.NoError(t, err)
	assert.Empty(t, h.Get("Authorization"), "the request goes out unauthenticated")

	// A forced refresh cannot mint a token without credentials.
	err = b.Refresh(context.Background())
	require.Error(t, err)
	assert.True(t, pkgerrors.IsNotConfigured(err))
}

func TestBrokerSettleDelayOnlyOnFirstLogin(t *testing.T) {
	var logins atomic.Int32
	b, _ := newTestBroker(t, loginHandler(&logins, `{"token":"tok-1","expires_in":3600}`))

	var sleeps int
	b.sleep = func(time.Duration) { sleeps++ }

	_, err := b.Token(context.Background(), false)
	require.NoError(t, err)
	require.NoError(t, b.Refresh(context.Background()))

	assert.Equal(t, int32(2), logins.Load())
	assert.Equal(t, 1, sleeps, "settle delay applies to the first login only")
}

func TestBrokerExpiryFromJWTClaim(t *testing.T) {
	exp := time.Now().Add(2 * time.Hour).Unix()
	token := makeJWT(exp)
	var logins atomic.Int32
	b, _ := newTestBroker(t, loginHandler(&logins, `{"token":"`+token+`"}`))

	_, err := b.Token(context.Background(), false)
	require.NoError(t, err)

	b.mu.Lock()
	got := b.expiresAt
	b.mu.Unlock()
	assert.Equal(t, time.Unix(exp, 0), got)
}

func makeJWT(exp int64) string {
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS256"}`))
	claims := base64.RawURLEncoding.EncodeToString(
		[]byte(`{"sub":"sync-bot","exp":` + strconv.FormatInt(exp, 10) + `}`))
	return header + "." + claims + ".sig"
}

func TestDeriveExpiryFallbackChain(t *testing.T) {
	b := &Broker{now: func() time.Time { return time.Unix(1000, 0) }}

	// Relative hint wins when the token is opaque.
	got := b.deriveExpiry(loginResponse{Token: "opaque", ExpiresIn: 60})
	assert.Equal(t, time.Unix(1060, 0), got)

	// Alternate relative field name.
	got = b.deriveExpiry(loginResponse{Token: "opaque", ExpireIn: 90})
	assert.Equal(t, time.Unix(1090, 0), got)

	// Absolute hint when no relative one is present.
	got = b.deriveExpiry(loginResponse{Token: "opaque", ExpiredAt: 5000})
	assert.Equal(t, time.Unix(5000, 0), got)

	// No hint at all: non-expiring.
	got = b.deriveExpiry(loginResponse{Token: "opaque"})
	assert.True(t, got.IsZero())
}
