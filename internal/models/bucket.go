package models

import "time"

// Bucket mirrors a store bucket and the tenant that created it. The store
// stays authoritative; rows exist only for fast tenant-filtered lookups and
// may lag behind.
type Bucket struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"uniqueIndex;size:63;not null" json:"name"`
	ProjectID string    `gorm:"index;size:36;not null" json:"projectId"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
