package transport

import (
	"context"
	"net/http"
)

// HeaderSource supplies authentication headers for outbound requests.
type HeaderSource interface {
	Headers(ctx context.Context) (http.Header, error)
}

// Refresher is implemented by header sources whose credential can be renewed.
// When a request comes back unauthorized, the client refreshes once and
// retries once; a second unauthorized response is surfaced to the caller.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// NoAuth supplies no authentication headers.
type NoAuth struct{}

// Headers implements HeaderSource.
func (NoAuth) Headers(_ context.Context) (http.Header, error) {
	return http.Header{}, nil
}

// StaticToken supplies a fixed token with the given scheme ("Token",
// "Bearer"). It never refreshes.
type StaticToken struct {
	Scheme string
	Token  string
}

// Headers implements HeaderSource.
func (s StaticToken) Headers(_ context.Context) (http.Header, error) {
	h := http.Header{}
	if s.Token != "" {
		scheme := s.Scheme
		if scheme == "" {
			scheme = "Token"
		}
		h.Set("Authorization", scheme+" "+s.Token)
	}
	return h, nil
}
