package maintenance

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/destekhq/support-platform/internal/signaling"
	"github.com/destekhq/support-platform/internal/storage"
)

func newFakeDeployment(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":true,"status":"healthy"}`))
	})
	mux.HandleFunc("/v1/api/ice-servers", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"iceServers":[{"urls":["stun:stun.l.google.com:19302"]}]}`))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func newTestSelfTest(t *testing.T, store *storage.Storage, registry *signaling.RoomRegistry, cfg signaling.CallConfig) *SelfTest {
	t.Helper()
	server := newFakeDeployment(t)
	return &SelfTest{
		storage:  store,
		registry: registry,
		callCfg:  cfg,
		client:   server.Client(),
		baseURL:  server.URL,
		logger:   discardLogger(),
	}
}

func TestSelfTestAllGreen(t *testing.T) {
	selftest := newTestSelfTest(t, newTestStorage(t), signaling.NewRoomRegistry(),
		signaling.CallConfig{Enabled: true, RequireRoomKey: true, MaxRoomMembers: 2})

	report := selftest.Run()
	for _, category := range []string{"health", "security", "db", "signaling"} {
		cat, ok := report[category]
		require.True(t, ok, category)
		require.Equal(t, cat.Total, cat.Passed, category)
		require.Len(t, cat.Items, cat.Total)
	}
}

func TestSelfTestFlagsWeakPosture(t *testing.T) {
	selftest := newTestSelfTest(t, newTestStorage(t), signaling.NewRoomRegistry(),
		signaling.CallConfig{Enabled: true, RequireRoomKey: false, MaxRoomMembers: 10})

	report := selftest.Run()
	security := report["security"]
	require.Equal(t, security.Total-2, security.Passed)

	byName := make(map[string]CheckResult)
	for _, item := range security.Items {
		byName[item.Name] = item
	}
	require.False(t, byName["require_room_key"].OK)
	require.False(t, byName["max_two_members"].OK)
}

func TestSelfTestFlagsOverCapacityRoom(t *testing.T) {
	registry := signaling.NewRoomRegistry()
	require.NoError(t, registry.Join("room-a", "sid-1", 10))
	require.NoError(t, registry.Join("room-a", "sid-2", 10))
	require.NoError(t, registry.Join("room-a", "sid-3", 10))

	selftest := newTestSelfTest(t, newTestStorage(t), registry,
		signaling.CallConfig{Enabled: true, RequireRoomKey: true, MaxRoomMembers: 2})

	report := selftest.Run()
	require.Zero(t, report["signaling"].Passed)
}

func TestSelfTestCleansUpProbeRows(t *testing.T) {
	store := newTestStorage(t)
	selftest := newTestSelfTest(t, store, signaling.NewRoomRegistry(),
		signaling.CallConfig{Enabled: true, RequireRoomKey: true, MaxRoomMembers: 2})

	selftest.Run()

	chats, err := store.ListChats()
	require.NoError(t, err)
	require.Empty(t, chats)
}

type recordingNotifier struct {
	mu    sync.Mutex
	texts []string
}

func (n *recordingNotifier) Notify(room, text string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.texts = append(n.texts, text)
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.texts)
}

func TestSchedulerFiresOncePerSlot(t *testing.T) {
	store := newTestStorage(t)
	selftest := newTestSelfTest(t, store, signaling.NewRoomRegistry(),
		signaling.CallConfig{Enabled: true, RequireRoomKey: true, MaxRoomMembers: 2})

	_, err := store.AddTestSchedule("09:30", true, "UTC")
	require.NoError(t, err)
	_, err = store.AddTestSchedule("12:00", false, "UTC")
	require.NoError(t, err)

	notifier := &recordingNotifier{}
	scheduler := NewScheduler(NewScheduler_Params{
		Storage:  store,
		SelfTest: selftest,
		Notifier: notifier,
		Logger:   discardLogger(),
	})

	slot := time.Date(2026, 8, 30, 9, 30, 10, 0, time.UTC)
	scheduler.tick(slot)
	require.Equal(t, 1, notifier.count())

	// Same minute again: no duplicate.
	scheduler.tick(slot.Add(15 * time.Second))
	require.Equal(t, 1, notifier.count())

	// Off-slot minutes stay quiet, disabled slots too.
	scheduler.tick(time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC))
	require.Equal(t, 1, notifier.count())

	// Next day the slot fires again.
	scheduler.tick(slot.AddDate(0, 0, 1))
	require.Equal(t, 2, notifier.count())
}

func TestSchedulerHonorsTimezone(t *testing.T) {
	store := newTestStorage(t)
	selftest := newTestSelfTest(t, store, signaling.NewRoomRegistry(),
		signaling.CallConfig{Enabled: true, RequireRoomKey: true, MaxRoomMembers: 2})

	// 09:30 Istanbul is 06:30 UTC.
	_, err := store.AddTestSchedule("09:30", true, "Europe/Istanbul")
	require.NoError(t, err)

	notifier := &recordingNotifier{}
	scheduler := NewScheduler(NewScheduler_Params{
		Storage:  store,
		SelfTest: selftest,
		Notifier: notifier,
		Logger:   discardLogger(),
	})

	scheduler.tick(time.Date(2026, 8, 30, 9, 30, 0, 0, time.UTC))
	require.Zero(t, notifier.count())

	scheduler.tick(time.Date(2026, 8, 30, 6, 30, 0, 0, time.UTC))
	require.Equal(t, 1, notifier.count())
}
