package relay

import "errors"

// Sentinel errors surfaced to the originating connection only; a session
// maps them to error events and never broadcasts them.
var (
	ErrNotRegistered   = errors.New("connection has no registered user")
	ErrNotAuthorized   = errors.New("identity does not match the authenticated user")
	ErrRoomNotFound    = errors.New("room not found")
	ErrRoomNotVerified = errors.New("room not verified")
	ErrNotParticipant  = errors.New("sender is not a participant of the room")
	ErrRateLimited     = errors.New("message rate limit exceeded")
)

// ErrorCode maps a relay error to the wire-level code carried by the
// error event payload.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrNotRegistered):
		return "NOT_REGISTERED"
	case errors.Is(err, ErrNotAuthorized):
		return "NOT_AUTHORIZED"
	case errors.Is(err, ErrRoomNotFound):
		return "ROOM_NOT_FOUND"
	case errors.Is(err, ErrRoomNotVerified):
		return "ROOM_NOT_VERIFIED"
	case errors.Is(err, ErrNotParticipant):
		return "NOT_PARTICIPANT"
	case errors.Is(err, ErrRateLimited):
		return "RATE_LIMITED"
	default:
		return "BAD_REQUEST"
	}
}
