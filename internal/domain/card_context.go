package domain

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// CardContext is the durable projection of one in-flight card, written on
// every externally observable lifecycle step so a crashed session can resume
// with the correct sequence watermark.
type CardContext struct {
	CardHandle     string         `gorm:"column:card_handle;primaryKey" json:"card_handle"`
	ReplyMessageID string         `gorm:"column:reply_message_id;index" json:"reply_message_id,omitempty"`
	ChatID         string         `gorm:"column:chat_id;index" json:"chat_id,omitempty"`
	Sequence       int64          `gorm:"column:sequence;not null;default:0" json:"sequence"`
	Context        datatypes.JSON `gorm:"type:jsonb;column:context" json:"context,omitempty"`
	CreatedAt      time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (CardContext) TableName() string { return "card_context" }
