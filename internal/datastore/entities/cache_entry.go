package entities

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// CacheEntry is one stored response, keyed by request key within a
// generation. Key is kept in full for listing; KeyHash carries the unique
// index because MySQL cannot index an unbounded TEXT column.
type CacheEntry struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	GenerationID uint      `gorm:"not null;uniqueIndex:idx_cache_entry_key,priority:1" json:"generation_id"`
	KeyHash      string    `gorm:"size:64;not null;uniqueIndex:idx_cache_entry_key,priority:2" json:"-"`
	Key          string    `gorm:"column:request_key;type:text;not null" json:"key"`
	Status       int       `gorm:"not null" json:"status"`
	Header       string    `gorm:"type:text" json:"header"` // JSON encoded http.Header
	Body         []byte    `json:"-"`
	StoredAt     time.Time `gorm:"not null" json:"stored_at"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName returns the table name for GORM.
func (CacheEntry) TableName() string {
	return "cache_entries"
}

// HashKey returns the hex SHA-256 of a request key.
func HashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}
