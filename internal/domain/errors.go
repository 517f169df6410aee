package domain

// Request-level failures, recovered at the transport boundary and turned
// into an error event for the acting connection only.
var (
	ErrNotFound        = errf("not found")
	ErrUnauthorized    = errf("not a party to this entity")
	ErrNotYourTurn     = errf("not your turn")
	ErrMalformedMove   = errf("malformed move notation")
	ErrIllegalMove     = errf("illegal move")
	ErrGameAlreadyOver = errf("game already over")
	ErrAlreadyResolved = errf("challenge already resolved")
	ErrInvalidRequest  = errf("invalid request")
)

type staticErr string

func (e staticErr) Error() string { return string(e) }

func errf(s string) error { return staticErr(s) }
