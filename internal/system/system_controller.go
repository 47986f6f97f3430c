package system

import (
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v4"
	"go.uber.org/fx"

	"github.com/destekhq/support-platform/internal/signaling"
	"github.com/destekhq/support-platform/pkg/protocol"
	"github.com/destekhq/support-platform/pkg/variables"
)

type systemController struct {
	registry *signaling.RoomRegistry
	logger   *slog.Logger
}

type healthResponse struct {
	OK     bool   `json:"ok"`
	Status string `json:"status"`
}

func (ctrl *systemController) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, &healthResponse{OK: true, Status: "healthy"})
}

type iceServer struct {
	URLs       string `json:"urls"`
	Username   string `json:"username,omitempty"`
	Credential string `json:"credential,omitempty"`
}

type iceServersResponse struct {
	ICEServers []iceServer `json:"iceServers"`
}

// ICEServers hands the widget its STUN/TURN configuration. The relay itself
// never talks to these servers, browsers do.
func (ctrl *systemController) ICEServers(c echo.Context) error {
	servers := []iceServer{
		{URLs: "stun:stun.l.google.com:19302"},
	}

	turnURL := variables.EnvOptional(variables.TURN_URL_NAME)
	turnUser := variables.EnvOptional(variables.TURN_USERNAME_NAME)
	turnCred := variables.EnvOptional(variables.TURN_CREDENTIAL_NAME)
	if turnURL != "" && turnUser != "" && turnCred != "" {
		servers = append(servers, iceServer{
			URLs:       turnURL,
			Username:   turnUser,
			Credential: turnCred,
		})
	}

	return c.JSON(http.StatusOK, &iceServersResponse{ICEServers: servers})
}

type roomsDebugResponse struct {
	RoomCount int              `json:"room_count"`
	Rooms     []roomDebugEntry `json:"rooms"`
}

type roomDebugEntry struct {
	RoomID   string `json:"roomId"`
	Members  int    `json:"members"`
	Accepted bool   `json:"accepted"`
}

// RoomsDebug is the read-only diagnostics surface over the live registry.
// Member identities stay internal, only counts leave the process.
func (ctrl *systemController) RoomsDebug(c echo.Context) error {
	snapshot := ctrl.registry.Snapshot()

	rooms := make([]roomDebugEntry, 0, len(snapshot))
	for _, room := range snapshot {
		rooms = append(rooms, roomDebugEntry{
			RoomID:   room.RoomID,
			Members:  len(room.Members),
			Accepted: room.Accepted,
		})
	}

	return c.JSON(http.StatusOK, &roomsDebugResponse{
		RoomCount: len(rooms),
		Rooms:     rooms,
	})
}

func (ctrl *systemController) Resolve(router protocol.HttpRouter) error {
	router.GET("/health", ctrl.Health)
	router.GET("/healthz", ctrl.Health)
	router.GET("/v1/api/ice-servers", ctrl.ICEServers)
	router.GET("/debug/rooms", ctrl.RoomsDebug)
	return nil
}

var _ protocol.HttpResolvable = (*systemController)(nil)

type newSystemController_Params struct {
	fx.In

	Registry *signaling.RoomRegistry
	Logger   *slog.Logger
}

func NewSystemController(params newSystemController_Params) *systemController {
	return &systemController{
		registry: params.Registry,
		logger:   params.Logger,
	}
}
