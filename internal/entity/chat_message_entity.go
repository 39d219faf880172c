package entity

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

type ChatMessage struct {
	Id            uuid.UUID `gorm:"type:uuid;primaryKey"`
	Chat          string
	Role          string
	ChatSessionId uuid.UUID `gorm:"type:uuid;index"`
	Model         string
	UsedRAG       bool
	// Sources holds the retrieved document references backing an
	// assistant reply, empty for user messages.
	Sources   datatypes.JSON
	CreatedAt time.Time
	UpdatedAt *time.Time
	DeletedAt *time.Time
	IsDeleted bool
}
