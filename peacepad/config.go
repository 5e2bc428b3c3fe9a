package peacepad

import (
	"net/url"
	"os"
	"strings"
	"time"
)

// Config controls how the SDK connects to the signaling endpoint.
type Config struct {
	// URL is the signaling endpoint, e.g. "wss://peacepad.app/ws".
	// Session and user identifiers are appended as query parameters.
	URL string

	// APIBaseURL is the base URL of the call-record HTTP API,
	// e.g. "https://peacepad.app/api".
	APIBaseURL string

	// SessionID identifies the authenticated session. When empty it is
	// read once from SessionStore at connection-URL construction time.
	SessionID string

	// UserID identifies the local user.
	UserID string

	// SessionStore supplies the durable session identifier when
	// SessionID is empty. Optional.
	SessionStore SessionStore

	HandshakeTimeout time.Duration
	// ReadTimeout bounds a single read. Leave 0 for a signaling socket
	// that may sit idle between events.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// AutoReconnect enables automatic recovery after a dropped
	// connection.
	AutoReconnect bool
	// ReconnectInterval is the base retry delay; each attempt doubles it.
	ReconnectInterval time.Duration
	// MaxReconnectDelay caps the doubling.
	MaxReconnectDelay time.Duration
	// MaxReconnectTries bounds automatic attempts before the client
	// settles into StateDisconnected.
	MaxReconnectTries int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		HandshakeTimeout:  10 * time.Second,
		WriteTimeout:      10 * time.Second,
		AutoReconnect:     true,
		ReconnectInterval: time.Second,
		MaxReconnectDelay: 30 * time.Second,
		MaxReconnectTries: 5,
	}
}

// signalURL builds the connection URL with sessionId and userId query
// parameters. The session identifier is resolved at most once per call.
func (c *Config) signalURL() (string, error) {
	u, err := url.Parse(c.URL)
	if err != nil {
		return "", err
	}
	session := c.SessionID
	if session == "" && c.SessionStore != nil {
		session, err = c.SessionStore.SessionID()
		if err != nil {
			return "", err
		}
	}
	q := u.Query()
	if session != "" {
		q.Set("sessionId", session)
	}
	if c.UserID != "" {
		q.Set("userId", c.UserID)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// SessionStore yields the durable local session identifier.
type SessionStore interface {
	SessionID() (string, error)
}

// FileSessionStore reads the session identifier from a file, trimmed of
// surrounding whitespace.
type FileSessionStore struct {
	Path string
}

func (f FileSessionStore) SessionID() (string, error) {
	b, err := os.ReadFile(f.Path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}
