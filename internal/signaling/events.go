package signaling

import (
	"encoding/json"
	"fmt"
)

// Inbound event names, matching the browser widget protocol.
const (
	EventJoin         = "join"
	EventCallRing     = "call_ring"
	EventCallAccept   = "call_accept"
	EventCallDecline  = "call_decline"
	EventCallEnd      = "call_end"
	EventRTCOffer     = "rtc_offer"
	EventRTCAnswer    = "rtc_answer"
	EventRTCCandidate = "rtc_candidate"
)

// Outbound event names.
const (
	EventError           = "error"
	EventCallIncoming    = "call:incoming"
	EventCallAccepted    = "call:accepted"
	EventCallDeclined    = "call:declined"
	EventCallEnded       = "call:ended"
	EventRTCOfferOut     = "rtc:offer"
	EventRTCAnswerOut    = "rtc:answer"
	EventRTCCandidateOut = "rtc:candidate"
)

// Envelope is the tagged wire frame. Data stays raw so rtc payloads can be
// relayed verbatim without interpreting SDP or candidate fields.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func NewEvent(event string, payload any) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("unable encode %q payload: %w", event, err)
	}
	return Envelope{Event: event, Data: data}, nil
}

// roomTarget resolves the room reference of a payload. Older widget builds
// send chat_id, newer ones send room; room wins when both are present.
type roomTarget struct {
	Room   string `json:"room,omitempty"`
	ChatID string `json:"chat_id,omitempty"`
}

func (t roomTarget) RoomID() string {
	if t.Room != "" {
		return t.Room
	}
	return t.ChatID
}

type JoinPayload struct {
	roomTarget
	RoomKey string `json:"room_key,omitempty"`
}

type RingPayload struct {
	roomTarget
	From string `json:"from,omitempty"`
}

type CallPayload struct {
	roomTarget
}

type ErrorPayload struct {
	Code string `json:"code"`
}

type IncomingPayload struct {
	ChatID   string `json:"chat_id"`
	FromName string `json:"fromName"`
}

// RoomPayload is the body of call:accepted / call:declined / call:ended.
type RoomPayload struct {
	ChatID string `json:"chat_id"`
}
