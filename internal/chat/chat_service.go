package chat

import (
	"fmt"
	"log/slog"

	"go.uber.org/fx"

	"github.com/destekhq/support-platform/internal/signaling"
	"github.com/destekhq/support-platform/internal/storage"
)

const (
	maxTextLength = 500
	maxNameLength = 50
)

// Outbound chat events.
const (
	EventRoomKey     = "room:key"
	EventChatMessage = "chat:message"
)

// validationError marks an input fault whose message is safe to show to the
// widget. Anything else that comes out of the service is internal and must
// not reach the client verbatim.
type validationError string

func (e validationError) Error() string {
	return string(e)
}

// Notifier mirrors chat activity to the support staff. Best effort only.
type Notifier interface {
	Notify(room, text string)
	NotifyMessage(cid, msgType, text, mediaURL, customerName string)
}

type JoinPayload struct {
	ChatID string `json:"chat_id"`
	Name   string `json:"name,omitempty"`
}

type SendPayload struct {
	ChatID string `json:"chat_id"`
	Role   string `json:"role,omitempty"`
	Type   string `json:"type,omitempty"`
	Text   string `json:"text,omitempty"`
	Name   string `json:"name,omitempty"`
}

type MessageBroadcast struct {
	ChatID string `json:"chat_id"`
	Role   string `json:"role"`
	Type   string `json:"type"`
	Text   string `json:"text"`
	Name   string `json:"name"`
}

// ChatService is the stateless text namespace: every message is persisted
// and broadcast to the other members of the chat room, nothing is gated.
type ChatService struct {
	hub      *signaling.Hub
	storage  *storage.Storage
	notifier Notifier
	logger   *slog.Logger
}

type NewChatService_Params struct {
	fx.In

	Storage  *storage.Storage
	Notifier Notifier
	Logger   *slog.Logger
}

func NewChatService(params NewChatService_Params) *ChatService {
	return &ChatService{
		hub:      signaling.NewHub(params.Logger),
		storage:  params.Storage,
		notifier: params.Notifier,
		logger:   params.Logger,
	}
}

// Join attaches the connection to the chat room, creates the session on
// first contact and returns its room key so the widget can later join the
// call namespace.
func (s *ChatService) Join(connID string, w signaling.EventWriter, p JoinPayload) (string, error) {
	if p.ChatID == "" {
		return "", validationError("missing chat_id")
	}
	name := p.Name
	if name == "" {
		name = "Misafir"
	}
	name, err := Sanitize(name, maxNameLength)
	if err != nil {
		return "", err
	}

	s.hub.Join(p.ChatID, connID, w)

	chat, err := s.storage.GetOrCreateChat(p.ChatID, name)
	if err != nil {
		return "", err
	}

	s.logger.Info("chat.joined", slog.String("chat", p.ChatID), slog.String("name", name))
	go s.notifier.Notify(p.ChatID, fmt.Sprintf("%s joined chat %s", name, p.ChatID))

	return chat.RoomKey, nil
}

// Send validates, persists and fans out one chat message to the other room
// members. User messages are mirrored to the support staff.
func (s *ChatService) Send(connID string, p SendPayload) error {
	if p.ChatID == "" || p.Role == "" || p.Type == "" {
		return validationError("missing fields")
	}
	if p.Role != "user" && p.Role != "admin" {
		return validationError("invalid role")
	}
	switch p.Type {
	case "text", "image", "audio":
	default:
		return validationError("invalid type")
	}

	text := p.Text
	if p.Type == "text" {
		var err error
		if text, err = Sanitize(text, maxTextLength); err != nil {
			return err
		}
	}

	name := p.Name
	if name == "" {
		name = "Customer"
	}
	name, err := Sanitize(name, maxNameLength)
	if err != nil {
		return err
	}

	chat, err := s.storage.GetOrCreateChat(p.ChatID, "")
	if err != nil {
		return err
	}
	if _, err := s.storage.AddMessage(chat.ID, p.Role, p.Type, text, ""); err != nil {
		return err
	}

	s.logger.Info("chat.message",
		slog.String("chat", p.ChatID),
		slog.String("role", p.Role),
		slog.String("type", p.Type))

	msg, err := signaling.NewEvent(EventChatMessage, MessageBroadcast{
		ChatID: p.ChatID,
		Role:   p.Role,
		Type:   p.Type,
		Text:   text,
		Name:   name,
	})
	if err != nil {
		return err
	}
	s.hub.Broadcast(p.ChatID, msg, connID)

	if p.Role == "user" {
		var media string
		if p.Type != "text" {
			media = text
		}
		go s.notifier.NotifyMessage(p.ChatID, p.Type, text, media, name)
	}
	return nil
}

// Disconnect detaches the connection from every chat room.
func (s *ChatService) Disconnect(connID string) {
	s.hub.LeaveAll(connID)
}
