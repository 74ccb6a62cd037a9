package models

import "time"

// Preferences is the single-row settings table (ID=1). The turn controller
// receives these as an explicit snapshot, never by polling ambient state.
type Preferences struct {
	ID           uint   `gorm:"primaryKey" json:"-"`
	DefaultModel string `gorm:"size:64;not null;default:''" json:"defaultModel"`
	Mode         string `gorm:"size:32;not null;default:standard" json:"mode"` // "standard" | "concise" | "detailed"
	Theme        string `gorm:"size:16;not null;default:system" json:"theme"`
	UpdatedAt    time.Time `json:"updatedAt"`
}
