package admin

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	echo "github.com/labstack/echo/v4"
	"go.uber.org/fx"

	"github.com/destekhq/support-platform/internal/storage"
	"github.com/destekhq/support-platform/pkg/protocol"
)

type okResponse struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
	Token   string `json:"token,omitempty"`
}

type errResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

type adminController struct {
	otp     *OTPService
	storage *storage.Storage
	logger  *slog.Logger
}

func (ctrl *adminController) RequestOTP(c echo.Context) error {
	if err := ctrl.otp.Request(); err != nil {
		ctrl.logger.Error("otp request failed", slog.String("err", err.Error()))
		return c.JSON(http.StatusInternalServerError, &errResponse{Error: "otp delivery failed"})
	}
	return c.JSON(http.StatusOK, &okResponse{OK: true, Message: "otp sent"})
}

type verifyOTPRequest struct {
	OTP string `json:"otp"`
}

func (ctrl *adminController) VerifyOTP(c echo.Context) error {
	var req verifyOTPRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, &errResponse{Error: "bad request"})
	}

	token, err := ctrl.otp.Verify(strings.TrimSpace(req.OTP))
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, &okResponse{OK: true, Message: "login ok", Token: token})
	case errors.Is(err, ErrOTPNotRequested):
		return c.JSON(http.StatusBadRequest, &errResponse{Error: "no otp requested"})
	case errors.Is(err, ErrOTPExpired):
		return c.JSON(http.StatusBadRequest, &errResponse{Error: "otp expired"})
	case errors.Is(err, ErrOTPMismatch):
		return c.JSON(http.StatusUnauthorized, &errResponse{Error: "invalid otp"})
	default:
		ctrl.logger.Error("otp verify failed", slog.String("err", err.Error()))
		return c.JSON(http.StatusInternalServerError, &errResponse{Error: "server error"})
	}
}

// sessionWall guards the history endpoints with the admin session token.
func (ctrl *adminController) sessionWall(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		authorization := c.Request().Header.Get("Authorization")
		token := strings.TrimPrefix(authorization, "Bearer ")
		if authorization == "" || authorization == token {
			return c.JSON(http.StatusUnauthorized, &errResponse{Error: "missing authorization header"})
		}
		if err := ctrl.otp.ValidateToken(token); err != nil {
			return c.JSON(http.StatusUnauthorized, &errResponse{Error: "invalid session"})
		}
		return next(c)
	}
}

func (ctrl *adminController) ListChats(c echo.Context) error {
	chats, err := ctrl.storage.ListChats()
	if err != nil {
		ctrl.logger.Error("list chats failed", slog.String("err", err.Error()))
		return c.JSON(http.StatusInternalServerError, &errResponse{Error: "server error"})
	}
	return c.JSON(http.StatusOK, chats)
}

func (ctrl *adminController) GetChatMessages(c echo.Context) error {
	chatID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return c.JSON(http.StatusBadRequest, &errResponse{Error: "bad chat id"})
	}

	msgs, err := ctrl.storage.GetMessages(uint(chatID))
	if err != nil {
		ctrl.logger.Error("load messages failed", slog.String("err", err.Error()))
		return c.JSON(http.StatusInternalServerError, &errResponse{Error: "server error"})
	}
	return c.JSON(http.StatusOK, msgs)
}

func (ctrl *adminController) DeleteChat(c echo.Context) error {
	chatID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return c.JSON(http.StatusBadRequest, &errResponse{Error: "bad chat id"})
	}

	if err := ctrl.storage.DeactivateChat(uint(chatID)); err != nil {
		ctrl.logger.Error("delete chat failed", slog.String("err", err.Error()))
		return c.JSON(http.StatusInternalServerError, &errResponse{Error: "server error"})
	}
	return c.JSON(http.StatusOK, &okResponse{OK: true})
}

type bulkDeleteRequest struct {
	CIDs []string `json:"cids"`
}

type bulkDeleteResponse struct {
	OK      bool  `json:"ok"`
	Deleted int64 `json:"deleted"`
}

func (ctrl *adminController) BulkDelete(c echo.Context) error {
	var req bulkDeleteRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, &errResponse{Error: "bad request"})
	}

	deleted, err := ctrl.storage.BulkDeactivate(req.CIDs)
	if err != nil {
		ctrl.logger.Error("bulk delete failed", slog.String("err", err.Error()))
		return c.JSON(http.StatusInternalServerError, &errResponse{Error: "server error"})
	}
	return c.JSON(http.StatusOK, &bulkDeleteResponse{OK: true, Deleted: deleted})
}

type roomKeyResponse struct {
	RoomKey string `json:"room_key"`
}

// GetRoomKey lets the widget recover the key of its own conversation. The
// cid is the shared secret here, the endpoint stays outside the session
// wall.
func (ctrl *adminController) GetRoomKey(c echo.Context) error {
	key, err := ctrl.storage.GetRoomKey(c.Param("cid"))
	if err != nil {
		if errors.Is(err, storage.ErrChatNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "not_found"})
		}
		ctrl.logger.Error("room key lookup failed", slog.String("err", err.Error()))
		return c.JSON(http.StatusInternalServerError, &errResponse{Error: "server error"})
	}
	return c.JSON(http.StatusOK, &roomKeyResponse{RoomKey: key})
}

func (ctrl *adminController) Resolve(router protocol.HttpRouter) error {
	router.POST("/api/admin/request-otp", ctrl.RequestOTP)
	router.POST("/api/admin/verify-otp", ctrl.VerifyOTP)
	router.GET("/api/chats/by-cid/:cid", ctrl.GetRoomKey)

	router.GET("/api/chats", ctrl.ListChats, ctrl.sessionWall)
	router.GET("/api/chats/:id/messages", ctrl.GetChatMessages, ctrl.sessionWall)
	router.DELETE("/api/chats/:id", ctrl.DeleteChat, ctrl.sessionWall)
	router.POST("/api/chats/bulk-delete", ctrl.BulkDelete, ctrl.sessionWall)
	return nil
}

var _ protocol.HttpResolvable = (*adminController)(nil)

type newAdminController_Params struct {
	fx.In

	OTP     *OTPService
	Storage *storage.Storage
	Logger  *slog.Logger
}

func NewAdminController(params newAdminController_Params) *adminController {
	return &adminController{
		otp:     params.OTP,
		storage: params.Storage,
		logger:  params.Logger,
	}
}
