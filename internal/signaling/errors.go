package signaling

import "errors"

var (
	ErrCallsDisabled  = errors.New("calls are disabled")
	ErrInvalidRoomKey = errors.New("invalid room key")
	ErrRoomFull       = errors.New("room is full")
	ErrMissingRoom    = errors.New("room not exist")
	ErrBlockedRelay   = errors.New("relay blocked before accept")
	ErrMissingRoomID  = errors.New("room id is empty")
)

// Wire error codes emitted to the client as `error{code}` events.
const (
	CodeCallsDisabled  = "calls_disabled"
	CodeInvalidRoomKey = "invalid_room_key"
	CodeRoomFull       = "room_full"
	CodeServerError    = "server_error"
)

// ErrorCode maps a membership failure onto its wire code. Unknown faults
// collapse into a generic server_error so the client learns nothing about
// internal state.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrCallsDisabled):
		return CodeCallsDisabled
	case errors.Is(err, ErrInvalidRoomKey):
		return CodeInvalidRoomKey
	case errors.Is(err, ErrRoomFull):
		return CodeRoomFull
	default:
		return CodeServerError
	}
}
