package storage

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	s, err := NewStorage(NewStorage_Params{
		DB:     db,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	return s
}

func TestGetOrCreateChat(t *testing.T) {
	s := newTestStorage(t)

	chat, err := s.GetOrCreateChat("cid-1", "Ayşe")
	require.NoError(t, err)
	require.Equal(t, "cid-1", chat.CID)
	require.Equal(t, "cid-1", chat.Room)
	require.Equal(t, "Ayşe", chat.CustomerName)
	require.NotEmpty(t, chat.RoomKey)
	require.True(t, chat.Active)

	// Second call returns the same session, same key.
	again, err := s.GetOrCreateChat("cid-1", "someone else")
	require.NoError(t, err)
	require.Equal(t, chat.ID, again.ID)
	require.Equal(t, chat.RoomKey, again.RoomKey)
	require.Equal(t, "Ayşe", again.CustomerName)
}

func TestGetOrCreateChatDefaultName(t *testing.T) {
	s := newTestStorage(t)

	chat, err := s.GetOrCreateChat("cid-1", "")
	require.NoError(t, err)
	require.Equal(t, "Misafir", chat.CustomerName)
}

func TestVerifyRoomKey(t *testing.T) {
	s := newTestStorage(t)

	chat, err := s.GetOrCreateChat("cid-1", "")
	require.NoError(t, err)

	ok, err := s.VerifyRoomKey(chat.Room, chat.RoomKey)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.VerifyRoomKey(chat.Room, "wrong")
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = s.VerifyRoomKey("no-such-room", chat.RoomKey)
	require.NoError(t, err)
	require.False(t, ok)

	// A deactivated session no longer authorizes joins.
	require.NoError(t, s.DeactivateChat(chat.ID))
	ok, err = s.VerifyRoomKey(chat.Room, chat.RoomKey)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestGetRoomKey(t *testing.T) {
	s := newTestStorage(t)

	_, err := s.GetRoomKey("cid-1")
	require.ErrorIs(t, err, ErrChatNotFound)

	chat, err := s.GetOrCreateChat("cid-1", "")
	require.NoError(t, err)

	key, err := s.GetRoomKey("cid-1")
	require.NoError(t, err)
	require.Equal(t, chat.RoomKey, key)
}

func TestMessagesChronologicalOrder(t *testing.T) {
	s := newTestStorage(t)

	chat, err := s.GetOrCreateChat("cid-1", "")
	require.NoError(t, err)

	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	for i, text := range []string{"first", "second", "third"} {
		require.NoError(t, s.db.Create(&Message{
			ChatID:    chat.ID,
			Role:      "user",
			Type:      "text",
			Text:      text,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}).Error)
	}

	msgs, err := s.GetMessages(chat.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	require.Equal(t, "first", msgs[0].Text)
	require.Equal(t, "third", msgs[2].Text)
}

func TestMessagesSkipDeleted(t *testing.T) {
	s := newTestStorage(t)

	chat, err := s.GetOrCreateChat("cid-1", "")
	require.NoError(t, err)

	kept, err := s.AddMessage(chat.ID, "user", "text", "hello", "")
	require.NoError(t, err)
	_, err = s.AddMessage(chat.ID, "user", "text", "oops", "")
	require.NoError(t, err)

	require.NoError(t, s.db.Model(&Message{}).
		Where("text = ?", "oops").Update("deleted", true).Error)

	msgs, err := s.GetMessages(chat.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, kept.ID, msgs[0].ID)
}

func TestListChatsActiveNewestFirst(t *testing.T) {
	s := newTestStorage(t)

	old, err := s.GetOrCreateChat("cid-old", "")
	require.NoError(t, err)
	require.NoError(t, s.db.Model(old).
		Update("created_at", time.Now().Add(-time.Hour)).Error)

	fresh, err := s.GetOrCreateChat("cid-new", "")
	require.NoError(t, err)

	gone, err := s.GetOrCreateChat("cid-gone", "")
	require.NoError(t, err)
	require.NoError(t, s.DeactivateChat(gone.ID))

	chats, err := s.ListChats()
	require.NoError(t, err)
	require.Len(t, chats, 2)
	require.Equal(t, fresh.CID, chats[0].CID)
	require.Equal(t, old.CID, chats[1].CID)
}

func TestBulkDeactivate(t *testing.T) {
	s := newTestStorage(t)

	for _, cid := range []string{"cid-1", "cid-2", "cid-3"} {
		_, err := s.GetOrCreateChat(cid, "")
		require.NoError(t, err)
	}

	n, err := s.BulkDeactivate(nil)
	require.NoError(t, err)
	require.Zero(t, n)

	n, err = s.BulkDeactivate([]string{"cid-1", "cid-3", "cid-missing"})
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	chats, err := s.ListChats()
	require.NoError(t, err)
	require.Len(t, chats, 1)
	require.Equal(t, "cid-2", chats[0].CID)
}

func TestPurgeChat(t *testing.T) {
	s := newTestStorage(t)

	chat, err := s.GetOrCreateChat("cid-1", "")
	require.NoError(t, err)
	_, err = s.AddMessage(chat.ID, "user", "text", "hello", "")
	require.NoError(t, err)

	require.NoError(t, s.PurgeChat("cid-1"))
	_, err = s.FindChatByCID("cid-1")
	require.ErrorIs(t, err, ErrChatNotFound)

	var count int64
	require.NoError(t, s.db.Model(&Message{}).Count(&count).Error)
	require.Zero(t, count)

	// Purging a missing chat is not an error.
	require.NoError(t, s.PurgeChat("cid-1"))
}

func TestBackfillIdempotent(t *testing.T) {
	s := newTestStorage(t)

	require.NoError(t, s.db.Create(&ChatSession{
		CID: "cid-legacy", CustomerName: "Misafir", Active: true,
	}).Error)
	_, err := s.GetOrCreateChat("cid-fine", "")
	require.NoError(t, err)

	missing, err := s.MissingRecords()
	require.NoError(t, err)
	require.Equal(t, 1, missing)

	changed, err := s.Backfill()
	require.NoError(t, err)
	require.Equal(t, 1, changed)

	repaired, err := s.FindChatByCID("cid-legacy")
	require.NoError(t, err)
	require.Equal(t, "cid-legacy", repaired.Room)
	require.NotEmpty(t, repaired.RoomKey)

	// Second run finds nothing left to fix.
	changed, err = s.Backfill()
	require.NoError(t, err)
	require.Zero(t, changed)

	missing, err = s.MissingRecords()
	require.NoError(t, err)
	require.Zero(t, missing)
}

func TestTestSchedules(t *testing.T) {
	s := newTestStorage(t)

	_, err := s.AddTestSchedule("09:30", true, "Europe/Istanbul")
	require.NoError(t, err)
	early, err := s.AddTestSchedule("08:00", true, "UTC")
	require.NoError(t, err)

	rows, err := s.ListTestSchedules()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, "08:00", rows[0].TimeHHMM)

	require.NoError(t, s.DeleteTestSchedule(early.ID))
	rows, err = s.ListTestSchedules()
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

func TestDisabledSchedulePersists(t *testing.T) {
	s := newTestStorage(t)

	row, err := s.AddTestSchedule("12:00", false, "UTC")
	require.NoError(t, err)
	require.False(t, row.Enabled)

	// The disabled flag must survive the round trip through the database.
	rows, err := s.ListTestSchedules()
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.False(t, rows[0].Enabled)
}

func TestGenerateSecret(t *testing.T) {
	a := GenerateSecret(16)
	b := GenerateSecret(16)
	require.NotEqual(t, a, b)
	require.NotContains(t, a, "=")
}
