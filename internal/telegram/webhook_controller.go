package telegram

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	echo "github.com/labstack/echo/v4"
	"go.uber.org/fx"

	"github.com/destekhq/support-platform/internal/storage"
	"github.com/destekhq/support-platform/pkg/protocol"
)

// webhookController ingests admin replies from the bot. A reply is routed to
// a conversation by the `[CID: x]` tag the notifier put on the outbound
// alert; untagged updates are acknowledged and dropped.
type webhookController struct {
	storage *storage.Storage
	logger  *slog.Logger
}

type update struct {
	Message     *updateMessage `json:"message"`
	ChannelPost *updateMessage `json:"channel_post"`
}

type updateMessage struct {
	Text string `json:"text"`
}

func extractCID(text string) string {
	_, rest, found := strings.Cut(text, "[CID:")
	if !found {
		return ""
	}
	cid, _, found := strings.Cut(rest, "]")
	if !found {
		return ""
	}
	return strings.TrimSpace(cid)
}

func (ctrl *webhookController) Webhook(c echo.Context) error {
	ok := map[string]bool{"ok": true}

	var upd update
	if err := c.Bind(&upd); err != nil {
		return c.JSON(http.StatusOK, ok)
	}

	msg := upd.Message
	if msg == nil {
		msg = upd.ChannelPost
	}
	if msg == nil {
		return c.JSON(http.StatusOK, ok)
	}

	cid := extractCID(msg.Text)
	if cid == "" {
		return c.JSON(http.StatusOK, ok)
	}

	chat, err := ctrl.storage.FindChatByCID(cid)
	if err != nil {
		if !errors.Is(err, storage.ErrChatNotFound) {
			ctrl.logger.Error("webhook chat lookup failed", slog.String("cid", cid), slog.String("err", err.Error()))
		}
		return c.JSON(http.StatusOK, ok)
	}

	if _, err := ctrl.storage.AddMessage(chat.ID, "admin", "text", msg.Text, ""); err != nil {
		ctrl.logger.Error("webhook store failed", slog.String("cid", cid), slog.String("err", err.Error()))
	}
	return c.JSON(http.StatusOK, ok)
}

func (ctrl *webhookController) Resolve(router protocol.HttpRouter) error {
	router.POST("/tg/webhook", ctrl.Webhook)
	return nil
}

var _ protocol.HttpResolvable = (*webhookController)(nil)

type newWebhookController_Params struct {
	fx.In

	Storage *storage.Storage
	Logger  *slog.Logger
}

func NewWebhookController(params newWebhookController_Params) *webhookController {
	return &webhookController{
		storage: params.Storage,
		logger:  params.Logger,
	}
}
