package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/opshub/tenantsync/pkg/errors"
)

// refreshableAuth fakes a broker: serves a token and counts refreshes.
type refreshableAuth struct {
	token    atomic.Value
	refreshn atomic.Int32
}

func newRefreshableAuth(initial string) *refreshableAuth {
	a := &refreshableAuth{}
	a.token.Store(initial)
	return a
}

func (a *refreshableAuth) Headers(_ context.Context) (http.Header, error) {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+a.token.Load().(string))
	return h, nil
}

func (a *refreshableAuth) Refresh(_ context.Context) error {
	a.refreshn.Add(1)
	a.token.Store("fresh")
	return nil
}

func TestDoRetriesOnceAfterUnauthorized(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Header.Get("Authorization") != "Bearer fresh" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	auth := newRefreshableAuth("stale")
	c, err := New(srv.URL, auth, "tree")
	require.NoError(t, err)

	var out struct {
		OK bool `json:"ok"`
	}
	err = c.DoJSON(context.Background(), http.MethodGet, "/api/things", nil, &out, nil)
	require.NoError(t, err)
	assert.True(t, out.OK)
	assert.Equal(t, int32(2), calls.Load(), "expected original call plus one retry")
	assert.Equal(t, int32(1), auth.refreshn.Load())
}

func TestDoSurfacesSecondUnauthorized(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	auth := newRefreshableAuth("stale")
	c, err := New(srv.URL, auth, "tree")
	require.NoError(t, err)

	err = c.DoJSON(context.Background(), http.MethodGet, "/api/things", nil, nil, nil)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsUnauthorized(err))
	assert.Equal(t, int32(2), calls.Load(), "no third attempt after a second 401")
	assert.Equal(t, int32(1), auth.refreshn.Load())
}

func TestDoStaticAuthDoesNotRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c, err := New(srv.URL, StaticToken{Scheme: "Token", Token: "abc"}, "inventory")
	require.NoError(t, err)

	err = c.DoJSON(context.Background(), http.MethodGet, "/x", nil, nil, nil)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsUnauthorized(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestDecodeResponseErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c, err := New(srv.URL, NoAuth{}, "inventory")
	require.NoError(t, err)

	err = c.DoJSON(context.Background(), http.MethodGet, "/x", nil, nil, nil)
	var apiErr *pkgerrors.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
	assert.Contains(t, apiErr.Message, "boom")
}

func TestURLNormalization(t *testing.T) {
	c, err := New("https://tree.example.com/", NoAuth{}, "tree")
	require.NoError(t, err)

	tests := []struct{ in, want string }{
		{"/api/v1/nodes/", "https://tree.example.com/api/v1/nodes/"},
		{"api/v1/nodes/", "https://tree.example.com/api/v1/nodes/"},
		// scheme downgrade on the same host is corrected
		{"http://tree.example.com/api/v1/nodes/?offset=100", "https://tree.example.com/api/v1/nodes/?offset=100"},
		// foreign hosts pass through untouched
		{"https://other.example.com/page2", "https://other.example.com/page2"},
		{"", "https://tree.example.com"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, c.URL(tt.in), "input %q", tt.in)
	}
}
