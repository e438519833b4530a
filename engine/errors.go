package engine

import "errors"

// Sentinel errors, compared with errors.Is by the HTTP layer. Each maps to a
// distinct response in the 400/401/403/404/429/500 taxonomy; none of them may
// ever stall the round-advance barrier.
var (
	ErrValidation = errors.New("invalid request")
	ErrNotFound   = errors.New("not found")
	ErrNoCycle    = errors.New("no cycle is open")

	ErrRegistrationClosed = errors.New("registration is closed")
	ErrCycleActive        = errors.New("a cycle is already open")
	ErrLocked             = errors.New("match is locked")

	ErrNotParticipant = errors.New("caller is not part of this match")
	ErrWrongTurn      = errors.New("not your turn")
	ErrNotExternal    = errors.New("persona is not configured for external control")
	ErrForbidden      = errors.New("controller is not bound to this persona")

	ErrRateLimited     = errors.New("too many requests")
	ErrUpstreamTimeout = errors.New("reply generation timed out")
)
