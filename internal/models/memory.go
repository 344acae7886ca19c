package models

import "time"

// ShortTermRecord is one message held in a user's recent-history buffer
type ShortTermRecord struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// PermanentRecord is an entry of the append-only message log
type PermanentRecord struct {
	ID        string    `bson:"_id" json:"id"`
	UserID    string    `bson:"userId" json:"user_id"`
	Role      string    `bson:"role" json:"role"`
	Text      string    `bson:"text" json:"text"`
	CreatedAt time.Time `bson:"createdAt" json:"created_at"`
}

// Long-term record metadata keys
const (
	MetaUserID    = "user_id"
	MetaMemoryID  = "memory_id"
	MetaTimestamp = "timestamp"
	MetaType      = "type"

	MemoryTypeChatLog = "chat_log"
)

// LongTermRecord is an embedded message stored for similarity recall
type LongTermRecord struct {
	ID       string            `json:"id"`
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata"`
	Score    float64           `json:"score,omitempty"`
}
