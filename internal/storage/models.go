package storage

import (
	"time"
)

// ChatSession binds a widget conversation to its room and shared room key.
type ChatSession struct {
	ID           uint      `gorm:"primarykey" json:"id"`
	CID          string    `gorm:"column:cid;uniqueIndex;size:64" json:"cid"`
	CustomerName string    `gorm:"size:50" json:"customer_name"`
	Room         string    `gorm:"uniqueIndex;size:64" json:"room"`
	RoomKey      string    `gorm:"size:64" json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	Active       bool      `gorm:"default:true" json:"active"`

	Messages []Message `gorm:"foreignKey:ChatID" json:"-"`
}

func (ChatSession) TableName() string {
	return "chat_sessions"
}

type Message struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	ChatID    uint      `gorm:"index" json:"chat_id"`
	Role      string    `gorm:"size:16" json:"role"`
	Type      string    `gorm:"size:16" json:"type"`
	Text      string    `json:"text"`
	MediaURL  string    `json:"media,omitempty"`
	CreatedAt time.Time `json:"time"`
	Deleted   bool      `gorm:"default:false" json:"-"`
}

func (Message) TableName() string {
	return "messages"
}

// TestSchedule is one daily self-test slot, minute resolution.
type TestSchedule struct {
	ID       uint   `gorm:"primarykey" json:"id"`
	TimeHHMM string `gorm:"column:time_hhmm;size:5" json:"time_hhmm"`
	// No column default here: gorm would swap an explicit false for the
	// default on insert, silently re-enabling a disabled slot.
	Enabled   bool      `json:"enabled"`
	TZ        string    `gorm:"column:tz;size:64" json:"tz"`
	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}

func (TestSchedule) TableName() string {
	return "test_schedules"
}
