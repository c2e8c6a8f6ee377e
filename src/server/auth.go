package server

import "github.com/taskhive/realtime/src/types"

// Authenticator resolves the user behind a bearer token presented on the
// websocket upgrade. The marketplace's auth service implements this in
// production; issuing and refreshing tokens is out of scope here.
type Authenticator interface {
	Authenticate(token string) (types.Sender, error)
}

// AuthenticatorFunc adapts a function to the Authenticator interface.
type AuthenticatorFunc func(token string) (types.Sender, error)

func (f AuthenticatorFunc) Authenticate(token string) (types.Sender, error) {
	return f(token)
}
