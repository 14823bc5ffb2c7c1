package models

import (
	"time"

	"gorm.io/datatypes"
)

// Threat scan kinds.
const (
	ThreatScanURL     = "url"
	ThreatScanDeepURL = "deep_url"
	ThreatScanIP      = "ip"
	ThreatScanHash    = "hash"
	ThreatScanEmail   = "email"
)

// ThreatScan is a stored threat-intelligence lookup.
type ThreatScan struct {
	ID        uint              `gorm:"primaryKey" json:"id"`
	UserID    uint              `gorm:"not null;index" json:"user_id"`
	Kind      string            `gorm:"size:16;not null" json:"kind"`
	Resource  string            `gorm:"size:2048;not null" json:"resource"`
	Positives int               `json:"positives"`
	Total     int               `json:"total"`
	Permalink string            `gorm:"size:2048" json:"permalink,omitempty"`
	Result    datatypes.JSONMap `gorm:"type:json" json:"result,omitempty"`
	Error     string            `gorm:"type:text" json:"error,omitempty"`
	CreatedAt time.Time         `gorm:"index" json:"created_at"`
}
