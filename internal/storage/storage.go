package storage

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"

	"go.uber.org/fx"
	"gorm.io/gorm"

	"github.com/destekhq/support-platform/pkg/variables"
)

var ErrChatNotFound = errors.New("chat not found")

// GenerateSecret returns a URL-safe random token, used for room keys.
func GenerateSecret(length int) string {
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("crypto/rand unavailable: %v", err))
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}

// Storage is the durable side of the platform: chat sessions with their room
// keys, message history and self-test schedules.
type Storage struct {
	db     *gorm.DB
	logger *slog.Logger
}

type NewStorage_Params struct {
	fx.In

	DB     *gorm.DB
	Logger *slog.Logger
}

func NewStorage(params NewStorage_Params) (*Storage, error) {
	if err := params.DB.AutoMigrate(&ChatSession{}, &Message{}, &TestSchedule{}); err != nil {
		return nil, fmt.Errorf("unable migrate schema: %w", err)
	}
	return &Storage{db: params.DB, logger: params.Logger}, nil
}

// GetOrCreateChat returns the chat session for cid, creating it with a fresh
// room key on first contact. The room id defaults to the cid itself.
func (s *Storage) GetOrCreateChat(cid, customerName string) (*ChatSession, error) {
	var chat ChatSession
	err := s.db.First(&chat, "cid = ?", cid).Error
	if err == nil {
		return &chat, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("unable look up chat %q: %w", cid, err)
	}

	if customerName == "" {
		customerName = "Misafir"
	}
	chat = ChatSession{
		CID:          cid,
		CustomerName: customerName,
		Room:         cid,
		RoomKey:      GenerateSecret(16),
		Active:       true,
	}
	if err := s.db.Create(&chat).Error; err != nil {
		return nil, fmt.Errorf("unable create chat %q: %w", cid, err)
	}
	return &chat, nil
}

// VerifyRoomKey reports whether key matches the active session of the room.
// The comparison is exact; any lookup problem surfaces as an error so the
// caller rejects the join.
func (s *Storage) VerifyRoomKey(room, key string) (bool, error) {
	var count int64
	err := s.db.Model(&ChatSession{}).
		Where("room = ? AND room_key = ? AND active = ?", room, key, true).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("unable verify room key for %q: %w", room, err)
	}
	return count > 0, nil
}

func (s *Storage) GetRoomKey(cid string) (string, error) {
	var chat ChatSession
	if err := s.db.First(&chat, "cid = ?", cid).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrChatNotFound
		}
		return "", fmt.Errorf("unable look up chat %q: %w", cid, err)
	}
	return chat.RoomKey, nil
}

func (s *Storage) AddMessage(chatID uint, role, msgType, text, mediaURL string) (*Message, error) {
	m := Message{
		ChatID:   chatID,
		Role:     role,
		Type:     msgType,
		Text:     text,
		MediaURL: mediaURL,
	}
	if err := s.db.Create(&m).Error; err != nil {
		return nil, fmt.Errorf("unable store message: %w", err)
	}
	return &m, nil
}

// ListChats returns active sessions, newest first.
func (s *Storage) ListChats() ([]ChatSession, error) {
	var chats []ChatSession
	err := s.db.
		Where("active = ?", true).
		Order("created_at DESC").
		Find(&chats).Error
	if err != nil {
		return nil, fmt.Errorf("unable list chats: %w", err)
	}
	return chats, nil
}

// GetMessages returns the last 100 non-deleted messages in chronological
// order.
func (s *Storage) GetMessages(chatID uint) ([]Message, error) {
	var msgs []Message
	err := s.db.
		Where("chat_id = ? AND deleted = ?", chatID, false).
		Order("created_at DESC").
		Limit(100).
		Find(&msgs).Error
	if err != nil {
		return nil, fmt.Errorf("unable load messages for chat %d: %w", chatID, err)
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// DeactivateChat soft-deletes a session; history stays readable by id.
func (s *Storage) DeactivateChat(chatID uint) error {
	result := s.db.Model(&ChatSession{}).Where("id = ?", chatID).Update("active", false)
	if result.Error != nil {
		return fmt.Errorf("unable deactivate chat %d: %w", chatID, result.Error)
	}
	return nil
}

// BulkDeactivate soft-deletes sessions by cid and reports how many changed.
func (s *Storage) BulkDeactivate(cids []string) (int64, error) {
	if len(cids) == 0 {
		return 0, nil
	}
	result := s.db.Model(&ChatSession{}).Where("cid IN ?", cids).Update("active", false)
	if result.Error != nil {
		return 0, fmt.Errorf("unable bulk deactivate: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// PurgeChat hard-deletes a session and its messages. Only the self-test
// runner uses it, to clean up its probe rows.
func (s *Storage) PurgeChat(cid string) error {
	chat, err := s.FindChatByCID(cid)
	if err != nil {
		if errors.Is(err, ErrChatNotFound) {
			return nil
		}
		return err
	}
	if err := s.db.Where("chat_id = ?", chat.ID).Delete(&Message{}).Error; err != nil {
		return fmt.Errorf("unable purge messages of %q: %w", cid, err)
	}
	if err := s.db.Delete(chat).Error; err != nil {
		return fmt.Errorf("unable purge chat %q: %w", cid, err)
	}
	return nil
}

func (s *Storage) FindChatByCID(cid string) (*ChatSession, error) {
	var chat ChatSession
	if err := s.db.First(&chat, "cid = ?", cid).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrChatNotFound
		}
		return nil, fmt.Errorf("unable look up chat %q: %w", cid, err)
	}
	return &chat, nil
}

func (s *Storage) ListTestSchedules() ([]TestSchedule, error) {
	var rows []TestSchedule
	if err := s.db.Order("time_hhmm").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("unable list test schedules: %w", err)
	}
	return rows, nil
}

func (s *Storage) AddTestSchedule(timeHHMM string, enabled bool, tz string) (*TestSchedule, error) {
	if tz == "" {
		tz = variables.Env(variables.TZ_NAME, variables.TZ_DEFAULT)
	}
	row := TestSchedule{TimeHHMM: timeHHMM, Enabled: enabled, TZ: tz}
	if err := s.db.Create(&row).Error; err != nil {
		return nil, fmt.Errorf("unable add test schedule: %w", err)
	}
	return &row, nil
}

func (s *Storage) DeleteTestSchedule(id uint) error {
	if err := s.db.Delete(&TestSchedule{}, id).Error; err != nil {
		return fmt.Errorf("unable delete test schedule %d: %w", id, err)
	}
	return nil
}

// Backfill repairs sessions missing a room or room key. It is idempotent;
// the returned count is how many rows changed.
func (s *Storage) Backfill() (int, error) {
	var chats []ChatSession
	if err := s.db.Find(&chats).Error; err != nil {
		return 0, fmt.Errorf("unable scan chats for backfill: %w", err)
	}

	changed := 0
	for i := range chats {
		c := &chats[i]
		dirty := false
		if c.Room == "" {
			if c.CID != "" {
				c.Room = c.CID
			} else {
				c.Room = "room-" + GenerateSecret(8)
			}
			dirty = true
		}
		if c.RoomKey == "" {
			c.RoomKey = GenerateSecret(16)
			dirty = true
		}
		if dirty {
			if err := s.db.Save(c).Error; err != nil {
				return changed, fmt.Errorf("unable backfill chat %d: %w", c.ID, err)
			}
			changed++
		}
	}
	return changed, nil
}

// MissingRecords counts sessions a backfill would touch, for dry-run plans.
func (s *Storage) MissingRecords() (int, error) {
	var count int64
	err := s.db.Model(&ChatSession{}).
		Where("room = '' OR room IS NULL OR room_key = '' OR room_key IS NULL").
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("unable count missing records: %w", err)
	}
	return int(count), nil
}
