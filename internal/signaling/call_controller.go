package signaling

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	echo "github.com/labstack/echo/v4"
	"go.uber.org/fx"

	"github.com/destekhq/support-platform/pkg/protocol"
	"github.com/destekhq/support-platform/pkg/wsutils"
)

// callController owns the /ws/call endpoint: one websocket per browser peer,
// decoded into tagged events and dispatched to the CallService.
type callController struct {
	service  *CallService
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

func (ctrl *callController) CallWebsocket(c echo.Context) error {
	conn, err := ctrl.upgrader.Upgrade(c.Response().Writer, c.Request(), nil)
	if err != nil {
		ctrl.logger.Error("unable upgrade call socket", slog.String("err", err.Error()))
		return err
	}

	w := wsutils.NewThreadSafeWriter(conn)
	defer w.Close()

	connID := uuid.NewString()
	ctrl.logger.Info("call socket connected", slog.String("sid", connID))
	defer func() {
		ctrl.logger.Info("call socket disconnected", slog.String("sid", connID))
		ctrl.service.Disconnect(connID)
	}()

	for {
		var msg Envelope
		if err := w.ReadJSON(&msg); err != nil {
			return nil
		}
		ctrl.dispatch(connID, w, &msg)
	}
}

// dispatch routes one inbound frame. Any fault is contained here: the
// connection stays usable and the client sees at most a generic
// server_error, regardless of what went wrong inside.
func (ctrl *callController) dispatch(connID string, w *wsutils.ThreadSafeWriter, msg *Envelope) {
	defer func() {
		if r := recover(); r != nil {
			ctrl.logger.Error("call event panic",
				slog.String("sid", connID),
				slog.String("event", msg.Event),
				slog.Any("panic", r))
			ctrl.emitError(w, CodeServerError)
		}
	}()

	switch msg.Event {
	case EventJoin:
		var p JoinPayload
		if err := json.Unmarshal(msg.Data, &p); err != nil {
			ctrl.emitError(w, CodeServerError)
			return
		}
		if err := ctrl.service.Join(connID, w, p); err != nil {
			ctrl.emitError(w, ErrorCode(err))
		}

	case EventCallRing:
		var p RingPayload
		if err := json.Unmarshal(msg.Data, &p); err != nil {
			ctrl.emitError(w, CodeServerError)
			return
		}
		ctrl.service.Ring(connID, p)

	case EventCallAccept, EventCallDecline, EventCallEnd:
		var p CallPayload
		if err := json.Unmarshal(msg.Data, &p); err != nil {
			ctrl.emitError(w, CodeServerError)
			return
		}
		switch msg.Event {
		case EventCallAccept:
			ctrl.service.Accept(connID, p)
		case EventCallDecline:
			ctrl.service.Decline(connID, p)
		case EventCallEnd:
			ctrl.service.End(connID, p)
		}

	case EventRTCOffer, EventRTCAnswer, EventRTCCandidate:
		// Blocked relays get no reply frame, the error only feeds logs.
		_ = ctrl.service.Relay(connID, msg.Event, msg.Data)

	default:
		ctrl.logger.Warn("unknown call event",
			slog.String("sid", connID),
			slog.String("event", msg.Event))
	}
}

func (ctrl *callController) emitError(w *wsutils.ThreadSafeWriter, code string) {
	msg, err := NewEvent(EventError, ErrorPayload{Code: code})
	if err != nil {
		ctrl.logger.Error(err.Error())
		return
	}
	if err := w.WriteJSON(msg); err != nil {
		ctrl.logger.Warn("unable write error event", slog.String("err", err.Error()))
	}
}

func (ctrl *callController) Resolve(router protocol.HttpRouter) error {
	router.GET("/ws/call", ctrl.CallWebsocket)
	return nil
}

var _ protocol.HttpResolvable = (*callController)(nil)

type newCallController_Params struct {
	fx.In

	Service *CallService
	Logger  *slog.Logger
}

func NewCallController(params newCallController_Params) *callController {
	return &callController{
		service: params.Service,
		logger:  params.Logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}
