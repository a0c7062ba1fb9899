package models

import "time"

// UploadedFile records an uploaded image. ExpireAt is cleared once a listing
// references the URL; uploads still carrying an expiry are removed by the cleaner.
type UploadedFile struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	UserID     uint       `gorm:"index;not null" json:"user_id"`
	Backend    string     `gorm:"size:16;not null" json:"backend"` // local | s3
	StorageKey string     `gorm:"size:1024;not null" json:"-"`
	URL        string     `gorm:"size:1024;index;not null" json:"url"`
	MimeType   string     `gorm:"size:64" json:"mime_type"`
	Size       int64      `json:"size"`
	ExpireAt   *time.Time `gorm:"index" json:"expire_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}
