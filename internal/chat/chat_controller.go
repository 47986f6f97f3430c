package chat

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	echo "github.com/labstack/echo/v4"
	"go.uber.org/fx"

	"github.com/destekhq/support-platform/internal/signaling"
	"github.com/destekhq/support-platform/pkg/protocol"
	"github.com/destekhq/support-platform/pkg/wsutils"
)

// The chat namespace reports validation failures with a message, unlike the
// call namespace's error codes. The widget shows them to the customer.
type errorPayload struct {
	Msg string `json:"msg"`
}

type roomKeyPayload struct {
	RoomKey string `json:"room_key"`
}

type chatController struct {
	service  *ChatService
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

func (ctrl *chatController) ChatWebsocket(c echo.Context) error {
	conn, err := ctrl.upgrader.Upgrade(c.Response().Writer, c.Request(), nil)
	if err != nil {
		ctrl.logger.Error("unable upgrade chat socket", slog.String("err", err.Error()))
		return err
	}

	w := wsutils.NewThreadSafeWriter(conn)
	defer w.Close()

	connID := uuid.NewString()
	ctrl.logger.Info("chat socket connected", slog.String("sid", connID))
	defer func() {
		ctrl.logger.Info("chat socket disconnected", slog.String("sid", connID))
		ctrl.service.Disconnect(connID)
	}()

	for {
		var msg signaling.Envelope
		if err := w.ReadJSON(&msg); err != nil {
			return nil
		}
		ctrl.dispatch(connID, w, &msg)
	}
}

func (ctrl *chatController) dispatch(connID string, w *wsutils.ThreadSafeWriter, msg *signaling.Envelope) {
	defer func() {
		if r := recover(); r != nil {
			ctrl.logger.Error("chat event panic",
				slog.String("sid", connID),
				slog.String("event", msg.Event),
				slog.Any("panic", r))
			ctrl.emitError(w, "Server error")
		}
	}()

	switch msg.Event {
	case "join":
		var p JoinPayload
		if err := json.Unmarshal(msg.Data, &p); err != nil {
			ctrl.emitError(w, "wrong data format")
			return
		}
		roomKey, err := ctrl.service.Join(connID, w, p)
		if err != nil {
			ctrl.emitServiceError(w, connID, msg.Event, err)
			return
		}
		ctrl.emit(w, EventRoomKey, roomKeyPayload{RoomKey: roomKey})

	case "send":
		var p SendPayload
		if err := json.Unmarshal(msg.Data, &p); err != nil {
			ctrl.emitError(w, "wrong data format")
			return
		}
		if err := ctrl.service.Send(connID, p); err != nil {
			ctrl.emitServiceError(w, connID, msg.Event, err)
		}

	default:
		ctrl.logger.Warn("unknown chat event",
			slog.String("sid", connID),
			slog.String("event", msg.Event))
	}
}

func (ctrl *chatController) emit(w *wsutils.ThreadSafeWriter, event string, payload any) {
	msg, err := signaling.NewEvent(event, payload)
	if err != nil {
		ctrl.logger.Error(err.Error())
		return
	}
	if err := w.WriteJSON(msg); err != nil {
		ctrl.logger.Warn("unable write chat event", slog.String("err", err.Error()))
	}
}

func (ctrl *chatController) emitError(w *wsutils.ThreadSafeWriter, msg string) {
	ctrl.emit(w, signaling.EventError, errorPayload{Msg: msg})
}

// emitServiceError shows validation messages to the widget; everything else
// is internal, gets logged here and collapses to a generic reply.
func (ctrl *chatController) emitServiceError(w *wsutils.ThreadSafeWriter, connID, event string, err error) {
	var vErr validationError
	if errors.As(err, &vErr) {
		ctrl.emitError(w, vErr.Error())
		return
	}
	ctrl.logger.Error("chat event failed",
		slog.String("sid", connID),
		slog.String("event", event),
		slog.String("err", err.Error()))
	ctrl.emitError(w, "Server error")
}

func (ctrl *chatController) Resolve(router protocol.HttpRouter) error {
	router.GET("/ws/chat", ctrl.ChatWebsocket)
	return nil
}

var _ protocol.HttpResolvable = (*chatController)(nil)

type newChatController_Params struct {
	fx.In

	Service *ChatService
	Logger  *slog.Logger
}

func NewChatController(params newChatController_Params) *chatController {
	return &chatController{
		service: params.Service,
		logger:  params.Logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}
