package device

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"smartcastbridge/internal/smartcast"
)

// DefaultTimeout bounds each device request when no timeout is configured.
const DefaultTimeout = 8 * time.Second

// Session is one physical device's network identity. The HTTP client is
// borrowed from the platform session provider and shared across devices;
// the session never creates or closes it. A reconfigured device gets a new
// session wholesale, the old one is never mutated in place.
type Session struct {
	Host      string
	AuthToken string
	Timeout   time.Duration

	http *http.Client
}

// NewSession creates a session. host may carry an explicit port; timeout
// zero means DefaultTimeout.
func NewSession(host, authToken string, timeout time.Duration, httpClient *http.Client) *Session {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Session{
		Host:      host,
		AuthToken: authToken,
		Timeout:   timeout,
		http:      httpClient,
	}
}

// DirectClient builds the direct protocol client bound to this session.
func (s *Session) DirectClient(logger *zap.Logger) *smartcast.Client {
	return smartcast.NewClient(s.Host, s.AuthToken, s.http, s.Timeout, logger)
}
