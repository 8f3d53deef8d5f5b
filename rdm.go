package rdm

import "time"

const (
	// DefaultFailureThreshold is the number of consecutive failed exchanges
	// after which a Channel considers the connection lost.
	DefaultFailureThreshold = 3
	// DefaultSessionHeader is the HTTP header carrying the session ID.
	DefaultSessionHeader = "X-Rdm-Session"
	// DefaultStartDelay is how long a Client waits before the first exchange.
	DefaultStartDelay = time.Millisecond * 10
	// DefaultRequestTimeout bounds a single exchange, including the server hold time.
	DefaultRequestTimeout = time.Second * 60
	// DefaultPollTimeout is how long the server holds an exchange with nothing to send.
	DefaultPollTimeout = time.Second * 30
	// DefaultIdleTimeout is how long a server session lives without exchanges.
	DefaultIdleTimeout = time.Second * 90
	// DefaultMaxBodySize is the largest exchange body the server accepts.
	DefaultMaxBodySize = 1 << 20
	// DefaultClientCallPrefix prefixes request IDs of calls made by a Client.
	DefaultClientCallPrefix = "c"
	// DefaultServerCallPrefix prefixes request IDs of calls made by a Session.
	DefaultServerCallPrefix = "s"
)

// Action kinds understood by both peers.
const (
	ActionNoop    = "noop"
	ActionCall    = "call"
	ActionRespond = "respond"
	ActionClose   = "close"
)
