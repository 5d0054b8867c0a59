package lookup

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"

	apperrors "github.com/avelar-dev/medikit/internal/errors"
)

// CacheEntry is one cached registry answer, keyed by national code.
type CacheEntry struct {
	CN        string    `json:"cn" gorm:"primaryKey"`
	Payload   string    `json:"payload"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Cache keeps registry answers in SQLite so repeat scans of the same
// box work offline.
type Cache struct {
	db  *gorm.DB
	ttl time.Duration
}

func NewCache(db *gorm.DB, ttl time.Duration) (*Cache, error) {
	if err := db.AutoMigrate(&CacheEntry{}); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrStorage, "failed to migrate lookup cache")
	}
	return &Cache{db: db, ttl: ttl}, nil
}

// Get returns the cached result for a national code if it is still
// fresh. A stale or missing entry reports a miss.
func (c *Cache) Get(cn string) (*Result, bool) {
	var entry CacheEntry
	if err := c.db.First(&entry, "cn = ?", cn).Error; err != nil {
		return nil, false
	}
	if time.Since(entry.FetchedAt) > c.ttl {
		return nil, false
	}
	var result Result
	if err := json.Unmarshal([]byte(entry.Payload), &result); err != nil {
		return nil, false
	}
	return &result, true
}

// Put stores or refreshes the cached result for a national code.
func (c *Cache) Put(cn string, result *Result) {
	payload, err := json.Marshal(result)
	if err != nil {
		return
	}
	c.db.Save(&CacheEntry{CN: cn, Payload: string(payload), FetchedAt: time.Now()})
}

// Prune drops entries older than the TTL.
func (c *Cache) Prune() error {
	cutoff := time.Now().Add(-c.ttl)
	if err := c.db.Where("fetched_at < ?", cutoff).Delete(&CacheEntry{}).Error; err != nil {
		return apperrors.Wrap(err, apperrors.ErrStorage, "failed to prune lookup cache")
	}
	return nil
}
