package telegram

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.uber.org/fx"

	"github.com/destekhq/support-platform/pkg/variables"
)

// Config points the notifier at the bot API. Leaving Token or AdminChatID
// empty disables delivery without breaking any caller.
type Config struct {
	Token       string
	AdminChatID string
	APIBase     string
}

func NewConfig() Config {
	return Config{
		Token:       variables.EnvOptional(variables.TELEGRAM_BOT_TOKEN_NAME),
		AdminChatID: variables.EnvOptional(variables.TELEGRAM_ADMIN_CHAT_ID_NAME),
		APIBase:     "https://api.telegram.org",
	}
}

// BotNotifier pushes best-effort alerts to the admin Telegram chat. Delivery
// failures are logged and dropped; the signaling and chat paths never wait
// on or learn about them.
type BotNotifier struct {
	cfg    Config
	client *http.Client
	logger *slog.Logger
}

type NewBotNotifier_Params struct {
	fx.In

	Config Config
	Logger *slog.Logger
}

func NewBotNotifier(params NewBotNotifier_Params) *BotNotifier {
	return &BotNotifier{
		cfg:    params.Config,
		logger: params.Logger,
		client: &http.Client{Timeout: 5 * time.Second},
	}
}

func (n *BotNotifier) Enabled() bool {
	return n.cfg.Token != "" && n.cfg.AdminChatID != ""
}

func (n *BotNotifier) post(method string, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("unable encode %s payload: %w", method, err)
	}

	url := fmt.Sprintf("%s/bot%s/%s", n.cfg.APIBase, n.cfg.Token, method)
	resp, err := n.client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram %s failed: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("telegram %s status %d", method, resp.StatusCode)
	}
	return nil
}

// SendText delivers a plain message to the admin chat. Used directly by the
// OTP flow, which does want the error.
func (n *BotNotifier) SendText(text string) error {
	if !n.Enabled() {
		return fmt.Errorf("telegram is not configured")
	}
	return n.post("sendMessage", map[string]any{
		"chat_id": n.cfg.AdminChatID,
		"text":    text,
	})
}

// Notify tags the message with the conversation id so admin replies can be
// routed back through the webhook. Fire-and-forget.
func (n *BotNotifier) Notify(room, text string) {
	if !n.Enabled() {
		return
	}
	if err := n.SendText(fmt.Sprintf("[CID: %s]\n%s", room, text)); err != nil {
		n.logger.Warn("notify failed", slog.String("room", room), slog.String("err", err.Error()))
	}
}

// NotifyMessage mirrors a customer message to the admin chat. Media is only
// forwarded when inlined as a data URL, everything else degrades to text.
func (n *BotNotifier) NotifyMessage(cid, msgType, text, mediaURL, customerName string) {
	if !n.Enabled() {
		return
	}
	if customerName == "" {
		customerName = "Customer"
	}
	prefix := fmt.Sprintf("%s [CID: %s]", customerName, cid)

	var err error
	switch {
	case msgType == "text" && text != "":
		err = n.post("sendMessage", map[string]any{
			"chat_id": n.cfg.AdminChatID,
			"text":    prefix + "\n" + text,
		})
	case msgType == "image" && strings.HasPrefix(mediaURL, "data:image"):
		err = n.post("sendPhoto", map[string]any{
			"chat_id": n.cfg.AdminChatID,
			"caption": prefix,
			"photo":   mediaURL,
		})
	case msgType == "audio" && strings.HasPrefix(mediaURL, "data:audio"):
		err = n.post("sendAudio", map[string]any{
			"chat_id": n.cfg.AdminChatID,
			"caption": prefix,
			"audio":   mediaURL,
		})
	default:
		return
	}

	if err != nil {
		n.logger.Warn("notify message failed", slog.String("cid", cid), slog.String("err", err.Error()))
	}
}
