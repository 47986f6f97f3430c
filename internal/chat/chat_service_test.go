package chat

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/destekhq/support-platform/internal/signaling"
	"github.com/destekhq/support-platform/internal/storage"
)

type recorder struct {
	mu     sync.Mutex
	events []signaling.Envelope
}

func (r *recorder) WriteJSON(val any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, val.(signaling.Envelope))
	return nil
}

func (r *recorder) received() []signaling.Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]signaling.Envelope(nil), r.events...)
}

type stubNotifier struct {
	mu       sync.Mutex
	mirrored []string
	fired    chan struct{}
}

func newStubNotifier() *stubNotifier {
	return &stubNotifier{fired: make(chan struct{}, 16)}
}

func (n *stubNotifier) Notify(room, text string) {
	n.fired <- struct{}{}
}

func (n *stubNotifier) NotifyMessage(cid, msgType, text, mediaURL, customerName string) {
	n.mu.Lock()
	n.mirrored = append(n.mirrored, text)
	n.mu.Unlock()
	n.fired <- struct{}{}
}

func (n *stubNotifier) mirroredTexts() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.mirrored...)
}

func newTestChatServiceDB(t *testing.T) (*ChatService, *storage.Storage, *gorm.DB, *stubNotifier) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := storage.NewStorage(storage.NewStorage_Params{DB: db, Logger: logger})
	require.NoError(t, err)

	notifier := newStubNotifier()
	service := NewChatService(NewChatService_Params{
		Storage:  store,
		Notifier: notifier,
		Logger:   logger,
	})
	return service, store, db, notifier
}

func newTestChatService(t *testing.T) (*ChatService, *storage.Storage, *stubNotifier) {
	t.Helper()
	service, store, _, notifier := newTestChatServiceDB(t)
	return service, store, notifier
}

func TestChatJoinReturnsRoomKey(t *testing.T) {
	service, store, notifier := newTestChatService(t)

	key, err := service.Join("sid-1", &recorder{}, JoinPayload{ChatID: "cid-1", Name: "Ayşe"})
	require.NoError(t, err)
	require.NotEmpty(t, key)

	chat, err := store.FindChatByCID("cid-1")
	require.NoError(t, err)
	require.Equal(t, chat.RoomKey, key)
	require.Equal(t, "Ayşe", chat.CustomerName)

	<-notifier.fired

	// Rejoining hands back the same key.
	again, err := service.Join("sid-2", &recorder{}, JoinPayload{ChatID: "cid-1"})
	require.NoError(t, err)
	require.Equal(t, key, again)
}

func TestChatJoinValidation(t *testing.T) {
	service, _, _ := newTestChatService(t)

	_, err := service.Join("sid-1", &recorder{}, JoinPayload{})
	require.Error(t, err)

	_, err = service.Join("sid-1", &recorder{}, JoinPayload{ChatID: "cid-1", Name: "<br>"})
	require.Error(t, err)
}

func TestChatSendBroadcastsAndPersists(t *testing.T) {
	service, store, notifier := newTestChatService(t)

	_, err := service.Join("sid-1", &recorder{}, JoinPayload{ChatID: "cid-1"})
	require.NoError(t, err)
	<-notifier.fired
	admin := &recorder{}
	_, err = service.Join("sid-2", admin, JoinPayload{ChatID: "cid-1", Name: "Support"})
	require.NoError(t, err)
	<-notifier.fired

	err = service.Send("sid-1", SendPayload{
		ChatID: "cid-1",
		Role:   "user",
		Type:   "text",
		Text:   "<b>merhaba</b>",
		Name:   "Ayşe",
	})
	require.NoError(t, err)

	events := admin.received()
	require.Len(t, events, 1)
	require.Equal(t, EventChatMessage, events[0].Event)

	var msg MessageBroadcast
	require.NoError(t, json.Unmarshal(events[0].Data, &msg))
	require.Equal(t, "merhaba", msg.Text)
	require.Equal(t, "user", msg.Role)
	require.Equal(t, "Ayşe", msg.Name)

	chat, err := store.FindChatByCID("cid-1")
	require.NoError(t, err)
	stored, err := store.GetMessages(chat.ID)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	require.Equal(t, "merhaba", stored[0].Text)

	// User messages get mirrored to staff.
	<-notifier.fired
	require.Equal(t, []string{"merhaba"}, notifier.mirroredTexts())
}

func TestChatSendAdminNotMirrored(t *testing.T) {
	service, _, notifier := newTestChatService(t)

	user := &recorder{}
	_, err := service.Join("sid-1", user, JoinPayload{ChatID: "cid-1"})
	require.NoError(t, err)
	<-notifier.fired

	err = service.Send("sid-2", SendPayload{
		ChatID: "cid-1", Role: "admin", Type: "text", Text: "size nasıl yardımcı olabilirim",
	})
	require.NoError(t, err)

	require.Len(t, user.received(), 1)
	require.Empty(t, notifier.mirroredTexts())
}

func TestChatSendValidation(t *testing.T) {
	service, _, _ := newTestChatService(t)

	for name, p := range map[string]SendPayload{
		"missing chat": {Role: "user", Type: "text", Text: "hi"},
		"missing role": {ChatID: "cid-1", Type: "text", Text: "hi"},
		"bad role":     {ChatID: "cid-1", Role: "bot", Type: "text", Text: "hi"},
		"bad type":     {ChatID: "cid-1", Role: "user", Type: "video", Text: "hi"},
		"empty text":   {ChatID: "cid-1", Role: "user", Type: "text", Text: "<br>"},
	} {
		t.Run(name, func(t *testing.T) {
			require.Error(t, service.Send("sid-1", p))
		})
	}
}

func TestChatValidationErrorsAreTyped(t *testing.T) {
	service, _, _ := newTestChatService(t)

	var vErr validationError

	_, err := service.Join("sid-1", &recorder{}, JoinPayload{})
	require.ErrorAs(t, err, &vErr)

	err = service.Send("sid-1", SendPayload{ChatID: "cid-1", Role: "bot", Type: "text", Text: "hi"})
	require.ErrorAs(t, err, &vErr)

	err = service.Send("sid-1", SendPayload{ChatID: "cid-1", Role: "user", Type: "text", Text: "<br>"})
	require.ErrorAs(t, err, &vErr)
}

func TestChatStorageFaultIsNotValidation(t *testing.T) {
	service, _, db, _ := newTestChatServiceDB(t)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	err = service.Send("sid-1", SendPayload{
		ChatID: "cid-1", Role: "user", Type: "text", Text: "hi",
	})
	require.Error(t, err)

	var vErr validationError
	require.False(t, errors.As(err, &vErr))
}

func TestChatDisconnect(t *testing.T) {
	service, _, notifier := newTestChatService(t)

	w := &recorder{}
	_, err := service.Join("sid-1", w, JoinPayload{ChatID: "cid-1"})
	require.NoError(t, err)
	<-notifier.fired

	service.Disconnect("sid-1")

	require.NoError(t, service.Send("sid-2", SendPayload{
		ChatID: "cid-1", Role: "admin", Type: "text", Text: "anyone there",
	}))
	require.Empty(t, w.received())
}
