// Package session defines the collaborator interfaces the realtime client
// uses to obtain the current user and bearer token. The application's auth
// layer implements them; this package never refreshes or issues tokens.
package session

// TokenSource supplies the bearer token presented at connect time. It is
// read once per connection attempt, not watched reactively.
type TokenSource interface {
	Token() (string, error)
}

// Session reports the currently authenticated user, if any. The realtime
// connection is torn down when the session ends.
type Session interface {
	TokenSource

	// UserID returns the authenticated user's identifier, or "" when no
	// session is active.
	UserID() string
}

// StaticToken is a TokenSource backed by a fixed string, useful in tests
// and command-line tools.
type StaticToken string

func (t StaticToken) Token() (string, error) { return string(t), nil }
