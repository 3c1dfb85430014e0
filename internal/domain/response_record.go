package domain

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	ResponseStatusCreated = "created"

	SafetyStatusPending  = "pending"
	SafetyStatusRecalled = "recalled"
)

// Reply is one chat-surface message produced for a session. Stored as jsonb
// inside ResponseRecord.Replies.
type Reply struct {
	MessageID   string    `json:"message_id"`
	ContentType string    `json:"content_type,omitempty"`
	SentAt      time.Time `json:"sent_at"`
}

// SafetyResult captures why a record was recalled.
type SafetyResult struct {
	Reason     string    `json:"reason"`
	Detail     string    `json:"detail,omitempty"`
	Confidence *float64  `json:"confidence,omitempty"`
	CheckedAt  time.Time `json:"checked_at"`
}

// ResponseRecord is the durable join between a session and the concrete
// messages it produced. The reply path is the only writer of Replies and
// ResponseText; the recall path is the only writer of SafetyStatus and
// SafetyResult.
type ResponseRecord struct {
	SessionID        string         `gorm:"column:session_id;primaryKey" json:"session_id"`
	TriggerMessageID string         `gorm:"column:trigger_message_id;index" json:"trigger_message_id,omitempty"`
	ChatID           string         `gorm:"column:chat_id;index" json:"chat_id,omitempty"`
	BotName          string         `gorm:"column:bot_name;not null" json:"bot_name"`
	ResponseType     string         `gorm:"column:response_type" json:"response_type,omitempty"`
	Replies          datatypes.JSON `gorm:"type:jsonb;column:replies;not null;default:'[]'" json:"replies"`
	ResponseText     string         `gorm:"column:response_text" json:"response_text,omitempty"`
	SafetyStatus     string         `gorm:"column:safety_status;not null;default:'pending';index" json:"safety_status"`
	SafetyResult     datatypes.JSON `gorm:"type:jsonb;column:safety_result" json:"safety_result,omitempty"`
	Status           string         `gorm:"column:status;not null;default:'created'" json:"status"`
	CreatedAt        time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt        time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt        gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (ResponseRecord) TableName() string { return "response_record" }
