package models

import (
	"time"

	"gorm.io/datatypes"
)

// CacheEntry is a persisted result cache record. Data holds the serialized
// {data, timestamp} envelope written by the result cache.
type CacheEntry struct {
	CacheKey  string         `json:"cache_key" gorm:"column:cache_key;type:varchar(255);primaryKey"`
	Data      datatypes.JSON `json:"data" gorm:"not null"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

func (c *CacheEntry) TableName() string { return "cache_entries" }
