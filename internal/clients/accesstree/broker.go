package accesstree

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/opshub/tenantsync/pkg/constants"
	"github.com/opshub/tenantsync/pkg/errors"
	"github.com/opshub/tenantsync/pkg/logging"

	"github.com/opshub/tenantsync/internal/transport"
)

const loginEndpoint = "/api/v1/authentication/auth/"

// BrokerConfig holds the access-tree credentials. When StaticToken is set,
// username/password login is bypassed entirely.
type BrokerConfig struct {
	BaseURL     string
	Username    string
	Password    string
	StaticToken string
}

// Broker owns the access-tree session token lifecycle: lazy login, cached
// reuse while valid, forced refresh on demand. It implements
// transport.HeaderSource and transport.Refresher, so a transport.Client
// backed by a Broker gets the refresh-once-retry-once unauthorized policy
// for free.
//
// Concurrent callers needing a login are single-flighted: one performs the
// credential exchange, the rest reuse its result.
type Broker struct {
	cfg  BrokerConfig
	rest *transport.Client

	mu        sync.Mutex
	token     string
	expiresAt time.Time // zero means no known expiry
	settled   bool

	// injectable for tests
	now   func() time.Time
	sleep func(time.Duration)
}

// NewBroker creates a Broker for the system at cfg.BaseURL.
func NewBroker(cfg BrokerConfig) (*Broker, error) {
	rest, err := transport.New(cfg.BaseURL, transport.NoAuth{}, "tree")
	if err != nil {
		return nil, err
	}
	rest.SetHTTPClient(&http.Client{Timeout: constants.LoginTimeout})
	return &Broker{
		cfg:   cfg,
		rest:  rest,
		now:   time.Now,
		sleep: time.Sleep,
	}, nil
}

// Rest exposes the login transport (tests swap its http.Client).
func (b *Broker) Rest() *transport.Client { return b.rest }

// Headers implements transport.HeaderSource. A static token is presented
// with the "Token" scheme; session tokens use "Bearer". When no credential
// can be produced the request goes out unauthenticated with a warning, so a
// misconfigured system degrades to 401s instead of blocking the whole run.
func (b *Broker) Headers(ctx context.Context) (http.Header, error) {
	h := http.Header{}

	if b.cfg.StaticToken != "" {
		h.Set("Authorization", "Token "+b.cfg.StaticToken)
		return h, nil
	}

	token, err := b.Token(ctx, false)
	if err != nil {
		return nil, err
	}
	if token == "" {
		logging.FromContext(ctx).Warn().
			Str("system", "tree").
			Msg("no session token available; sending unauthenticated request")
		return h, nil
	}
	h.Set("Authorization", "Bearer "+token)
	return h, nil
}

// Refresh implements transport.Refresher by forcing a new login. Static
// tokens cannot be refreshed.
func (b *Broker) Refresh(ctx context.Context) error {
	if b.cfg.StaticToken != "" {
		return errors.NewAuthenticationError("tree", "static token", "static token rejected; cannot refresh", nil)
	}
	_, err := b.Token(ctx, true)
	return err
}

// Token returns a session token, logging in when the cached one is missing
// or inside the expiry safety margin. Without login credentials the cached
// value is reused as-is, possibly empty, so requests degrade to
// unauthenticated calls instead of failing outright. force discards the
// cache and does require credentials.
func (b *Broker) Token(ctx context.Context, force bool) (string, error) {
	configured := b.cfg.Username != "" && b.cfg.Password != ""

	if !force {
		if tok, ok := b.cached(); ok {
			return tok, nil
		}
		if !configured {
			b.mu.Lock()
			defer b.mu.Unlock()
			return b.token, nil
		}
	}
	if !configured {
		return "", errors.NewConfigError("tree", "username and password are not configured", nil)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	// Another caller may have logged in while this one waited for the lock.
	if !force && b.validLocked() {
		return b.token, nil
	}
	return b.loginLocked(ctx)
}

func (b *Broker) cached() (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.validLocked() {
		return b.token, true
	}
	return "", false
}

// validLocked reports whether the cached token is usable. Callers hold b.mu.
func (b *Broker) validLocked() bool {
	if b.token == "" {
		return false
	}
	if b.expiresAt.IsZero() {
		return true
	}
	return b.now().Add(constants.TokenSafetyMargin).Before(b.expiresAt)
}

// loginResponse captures the token plus whichever expiry hint the server
// chose to include. Different versions use different field names.
type loginResponse struct {
	Token     string  `json:"token"`
	ExpiresIn float64 `json:"expires_in"`
	ExpireIn  float64 `json:"expire_in"`
	ExpiredAt float64 `json:"expired_at"`
	ExpireAt  float64 `json:"expire_at"`
}

// loginLocked performs the credential exchange. Callers hold b.mu.
func (b *Broker) loginLocked(ctx context.Context) (string, error) {
	log := logging.FromContext(ctx)

	payload := map[string]string{
		"username": b.cfg.Username,
		"password": b.cfg.Password,
	}
	var out loginResponse
	if err := b.rest.DoJSON(ctx, http.MethodPost, loginEndpoint, payload, &out, nil); err != nil {
		return "", errors.NewAuthenticationError("tree", "password", "login failed", err)
	}
	if out.Token == "" {
		return "", errors.NewAuthenticationError("tree", "password", "login response missing token", nil)
	}

	b.token = out.Token
	b.expiresAt = b.deriveExpiry(out)

	event := log.Info().Str("system", "tree")
	if !b.expiresAt.IsZero() {
		event = event.Time("expires_at", b.expiresAt)
	}
	event.Msg("logged in to access tree")

	// A fresh session is not immediately honored by every endpoint; give
	// the server a moment before the first authenticated call.
	if !b.settled {
		b.settled = true
		b.sleep(settleDelay())
	}
	return b.token, nil
}

// deriveExpiry resolves the token expiry from the strongest available
// source: the token's own exp claim, then a relative lifetime hint, then an
// absolute timestamp hint. No hint means the token is treated as
// non-expiring and trusted until the server rejects it.
func (b *Broker) deriveExpiry(out loginResponse) time.Time {
	if exp, ok := jwtExpiry(out.Token); ok {
		return exp
	}
	if rel := firstPositive(out.ExpiresIn, out.ExpireIn); rel > 0 {
		return b.now().Add(time.Duration(rel * float64(time.Second)))
	}
	if abs := firstPositive(out.ExpiredAt, out.ExpireAt); abs > 0 {
		sec := int64(abs)
		nsec := int64((abs - float64(sec)) * float64(time.Second))
		return time.Unix(sec, nsec)
	}
	return time.Time{}
}

// jwtExpiry extracts the exp claim from a JWT-shaped token. Opaque tokens
// return false.
func jwtExpiry(token string) (time.Time, bool) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return time.Time{}, false
	}
	raw, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return time.Time{}, false
	}
	var claims struct {
		Exp float64 `json:"exp"`
	}
	if err := json.Unmarshal(raw, &claims); err != nil || claims.Exp <= 0 {
		return time.Time{}, false
	}
	sec := int64(claims.Exp)
	return time.Unix(sec, 0), true
}

func firstPositive(vals ...float64) float64 {
	for _, v := range vals {
		if v > 0 {
			return v
		}
	}
	return 0
}

func settleDelay() time.Duration {
	span := constants.TokenSettleMax - constants.TokenSettleMin
	return constants.TokenSettleMin + time.Duration(rand.Int63n(int64(span)))
}
