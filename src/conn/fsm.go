package conn

import (
	"math"
	"time"

	"github.com/taskhive/realtime/config"
)

// State is the connection lifecycle state. The Manager is its only writer.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateBackoffWait
	StateGivenUp
)

// String returns the state's name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateBackoffWait:
		return "backoff-wait"
	case StateGivenUp:
		return "given-up"
	default:
		return "unknown"
	}
}

// Input is a stimulus fed to the transition function.
type Input int

const (
	// InputConnectRequested is EnsureConnected on an idle manager.
	InputConnectRequested Input = iota
	// InputOpened is a successful transport open.
	InputOpened
	// InputServerClosed is a close the server initiated; not retried.
	InputServerClosed
	// InputNetworkError is a transient transport failure with retry
	// budget remaining.
	InputNetworkError
	// InputAttemptsExhausted is a transport failure that spent the last
	// allowed attempt.
	InputAttemptsExhausted
	// InputBackoffElapsed is the retry timer firing.
	InputBackoffElapsed
	// InputReconnectRequested is the manual escape from GivenUp.
	InputReconnectRequested
	// InputTeardown ends the authenticated session.
	InputTeardown
)

// Next is the pure transition function. Inputs that make no sense in the
// current state leave it unchanged.
func Next(s State, in Input) State {
	switch in {
	case InputTeardown:
		return StateDisconnected
	case InputServerClosed:
		return StateDisconnected
	case InputAttemptsExhausted:
		return StateGivenUp
	}

	switch s {
	case StateDisconnected:
		if in == InputConnectRequested || in == InputReconnectRequested {
			return StateConnecting
		}
	case StateConnecting:
		switch in {
		case InputOpened:
			return StateConnected
		case InputNetworkError:
			return StateBackoffWait
		}
	case StateConnected:
		if in == InputNetworkError {
			return StateBackoffWait
		}
	case StateBackoffWait:
		if in == InputBackoffElapsed || in == InputReconnectRequested {
			return StateConnecting
		}
	case StateGivenUp:
		if in == InputReconnectRequested {
			return StateConnecting
		}
	}
	return s
}

// Delay computes the backoff delay before retry number attempt (1-based):
// InitialDelay doubled per prior failure, capped at MaxDelay.
func Delay(cfg *config.RealtimeConfig, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(cfg.InitialDelay) * math.Pow(cfg.Multiplier, float64(attempt-1))
	if d > float64(cfg.MaxDelay) {
		return cfg.MaxDelay
	}
	return time.Duration(d)
}

// RetryState tracks consecutive connect failures.
type RetryState struct {
	Attempts      int
	LastAttemptAt time.Time
	GaveUp        bool
}

// Reset returns the retry state to its initial values.
func (r *RetryState) Reset() {
	r.Attempts = 0
	r.LastAttemptAt = time.Time{}
	r.GaveUp = false
}
