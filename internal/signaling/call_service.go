package signaling

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"go.uber.org/fx"

	"github.com/destekhq/support-platform/pkg/variables"
)

// CallConfig holds the externally configured knobs of the call feature.
type CallConfig struct {
	Enabled        bool
	RequireRoomKey bool
	MaxRoomMembers int
}

func NewCallConfig() (CallConfig, error) {
	enabled, err := variables.ParseBool(variables.Env(variables.ENABLE_CALLS_NAME, variables.ENABLE_CALLS_DEFAULT))
	if err != nil {
		return CallConfig{}, fmt.Errorf("unable parse %s: %w", variables.ENABLE_CALLS_NAME, err)
	}
	requireKey, err := variables.ParseBool(variables.Env(variables.REQUIRE_ROOM_KEY_NAME, variables.REQUIRE_ROOM_KEY_DEFAULT))
	if err != nil {
		return CallConfig{}, fmt.Errorf("unable parse %s: %w", variables.REQUIRE_ROOM_KEY_NAME, err)
	}
	maxMembers, err := variables.ParseInt(variables.Env(variables.MAX_ROOM_MEMBERS_NAME, variables.MAX_ROOM_MEMBERS_DEFAULT))
	if err != nil {
		return CallConfig{}, fmt.Errorf("unable parse %s: %w", variables.MAX_ROOM_MEMBERS_NAME, err)
	}

	return CallConfig{
		Enabled:        enabled,
		RequireRoomKey: requireKey,
		MaxRoomMembers: maxMembers,
	}, nil
}

// RoomKeyVerifier checks a supplied room key against the durable room-key
// record. It is an untrusted-boundary check: a lookup error counts as a
// rejection, never as a pass.
type RoomKeyVerifier interface {
	VerifyRoomKey(room, key string) (bool, error)
}

// Notifier is a best-effort external alerting hook. Implementations own
// their failure isolation; callers never learn about delivery problems.
type Notifier interface {
	Notify(room, text string)
}

// CallService brokers call setup between room members: membership with
// capacity and key checks, the ring/accept/decline/end state transitions,
// and the gated relay of SDP and ICE payloads.
type CallService struct {
	registry *RoomRegistry
	hub      *Hub
	verifier RoomKeyVerifier
	notifier Notifier
	cfg      CallConfig
	logger   *slog.Logger
}

type NewCallService_Params struct {
	fx.In

	Registry *RoomRegistry
	Verifier RoomKeyVerifier
	Notifier Notifier
	Config   CallConfig
	Logger   *slog.Logger
}

func NewCallService(params NewCallService_Params) *CallService {
	return &CallService{
		registry: params.Registry,
		hub:      NewHub(params.Logger),
		verifier: params.Verifier,
		notifier: params.Notifier,
		cfg:      params.Config,
		logger:   params.Logger,
	}
}

// Join validates and applies a room join for the given connection. The only
// success signal is the absence of an error; membership is observed through
// subsequent room events.
func (s *CallService) Join(connID string, w EventWriter, p JoinPayload) error {
	if !s.cfg.Enabled {
		return ErrCallsDisabled
	}

	room := p.RoomID()
	if room == "" {
		return ErrMissingRoomID
	}

	if s.cfg.RequireRoomKey {
		if p.RoomKey == "" {
			s.logger.Warn("join.rejected",
				slog.String("room", room),
				slog.String("reason", "invalid_key"))
			return ErrInvalidRoomKey
		}
		ok, err := s.verifier.VerifyRoomKey(room, p.RoomKey)
		if err != nil {
			s.logger.Warn("join.rejected",
				slog.String("room", room),
				slog.String("reason", "key_lookup_failed"),
				slog.String("err", err.Error()))
			return ErrInvalidRoomKey
		}
		if !ok {
			s.logger.Warn("join.rejected",
				slog.String("room", room),
				slog.String("reason", "invalid_key"))
			return ErrInvalidRoomKey
		}
	}

	if err := s.registry.Join(room, connID, s.cfg.MaxRoomMembers); err != nil {
		s.logger.Warn("join.rejected",
			slog.String("room", room),
			slog.String("reason", "room_full"))
		return err
	}

	s.hub.Join(room, connID, w)
	s.logger.Info("call.joined", slog.String("room", room), slog.String("sid", connID))
	return nil
}

// Ring forwards an incoming-call notice to the other room members. It is
// fire-and-forget: no state changes, no membership requirement, missing
// rooms degrade to a broadcast no-op.
func (s *CallService) Ring(connID string, p RingPayload) {
	if !s.cfg.Enabled {
		return
	}
	room := p.RoomID()
	if room == "" {
		s.logger.Warn("call.ring missing room")
		return
	}

	s.logger.Info("call.ring", slog.String("room", room))
	s.broadcast(room, EventCallIncoming, IncomingPayload{ChatID: room, FromName: p.From}, connID)
	go s.notifier.Notify(room, fmt.Sprintf("incoming call from %s", p.From))
}

// Accept marks the room accepted, unblocking the rtc relay. The broadcast is
// inclusive so the accepting side sees its own confirmation.
func (s *CallService) Accept(connID string, p CallPayload) {
	if !s.cfg.Enabled {
		return
	}
	room := p.RoomID()
	if room == "" {
		s.logger.Warn("call.accept missing room")
		return
	}

	if !s.registry.Accept(room) {
		s.logger.Warn("call.accept for unknown room", slog.String("room", room))
	}
	s.logger.Info("call.accepted", slog.String("room", room))
	s.broadcast(room, EventCallAccepted, RoomPayload{ChatID: room}, "")
}

// Decline broadcasts a decline without touching room state, so a later
// accept of the same room still works. Unknown rooms are fine.
func (s *CallService) Decline(connID string, p CallPayload) {
	room := p.RoomID()
	if room == "" {
		s.logger.Warn("call.decline missing room")
		return
	}

	s.logger.Info("call.declined", slog.String("room", room))
	s.broadcast(room, EventCallDeclined, RoomPayload{ChatID: room}, "")
}

// End clears the accepted flag and announces the end of the call. The room
// is kept: members may accept a follow-up call without rejoining. Deletion
// happens only when membership reaches zero.
func (s *CallService) End(connID string, p CallPayload) {
	room := p.RoomID()
	if room == "" {
		s.logger.Warn("call.end missing room")
		return
	}

	if !s.registry.ClearAccepted(room) {
		s.logger.Warn("call.end for unknown room", slog.String("room", room))
		return
	}

	s.logger.Info("call.ended", slog.String("room", room))
	s.broadcast(room, EventCallEnded, RoomPayload{ChatID: room}, "")
}

var relayEvents = map[string]string{
	EventRTCOffer:     EventRTCOfferOut,
	EventRTCAnswer:    EventRTCAnswerOut,
	EventRTCCandidate: EventRTCCandidateOut,
}

// Relay forwards an offer, answer or candidate payload verbatim to the other
// room members. It is gated on the room being accepted. The returned error
// says why a payload was dropped; the socket layer discards it, blocked
// payloads get no reply so a caller cannot enumerate rooms.
func (s *CallService) Relay(connID, event string, data json.RawMessage) error {
	if !s.cfg.Enabled {
		return ErrCallsDisabled
	}

	outEvent, ok := relayEvents[event]
	if !ok {
		s.logger.Warn("rtc.unknown event", slog.String("event", event))
		return nil
	}

	var target roomTarget
	if err := json.Unmarshal(data, &target); err != nil || target.RoomID() == "" {
		s.logger.Warn("rtc.blocked", slog.String("event", event), slog.String("reason", "malformed payload"))
		return ErrMissingRoomID
	}
	room := target.RoomID()

	if !s.registry.Exists(room) {
		s.logger.Warn("rtc.blocked",
			slog.String("room", room),
			slog.String("event", event),
			slog.String("reason", "missing room"))
		return ErrMissingRoom
	}
	if !s.registry.Accepted(room) {
		s.logger.Warn("rtc.blocked", slog.String("room", room), slog.String("event", event))
		return ErrBlockedRelay
	}

	s.hub.Broadcast(room, Envelope{Event: outEvent, Data: data}, connID)
	return nil
}

// Disconnect sweeps a vanished connection out of every room it joined.
// Cleanup is per-room independent and idempotent: running it twice for the
// same identity is harmless, and one room can never block another.
func (s *CallService) Disconnect(connID string) {
	for _, room := range s.registry.MemberRooms(connID) {
		emptied := s.registry.Leave(room, connID)
		s.hub.Leave(room, connID)
		s.logger.Debug("removed member", slog.String("room", room), slog.String("sid", connID))
		if emptied {
			s.logger.Info("deleted empty room", slog.String("room", room))
		}
	}
	s.hub.LeaveAll(connID)
}

func (s *CallService) broadcast(room, event string, payload any, excludeID string) {
	msg, err := NewEvent(event, payload)
	if err != nil {
		s.logger.Error(err.Error(), slog.String("room", room))
		return
	}
	s.hub.Broadcast(room, msg, excludeID)
}
