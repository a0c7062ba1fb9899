package models

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

// Status is the moderation state of a post or event. Only published items are publicly visible.
type Status string

const (
	StatusPending   Status = "pending"
	StatusPublished Status = "published"
	StatusRejected  Status = "rejected"
	StatusArchived  Status = "archived"
)

// Resource types that comments and likes attach to.
const (
	ResourcePost    = "post"
	ResourceEvent   = "event"
	ResourceComment = "comment"
)

// MaxImages caps the number of image URLs stored on a listing.
const MaxImages = 5

// PostCategories lists the accepted categories of resource listings.
var PostCategories = []string{"housing", "food", "employment", "education", "health", "transportation", "legal", "other"}

// EventCategories lists the accepted categories of events.
var EventCategories = []string{"meetup", "workshop", "volunteer", "fundraiser", "sports", "arts", "health", "other"}

// ValidCategory reports whether category is accepted for the resource type.
func ValidCategory(resourceType, category string) bool {
	list := PostCategories
	if resourceType == ResourceEvent {
		list = EventCategories
	}
	for _, c := range list {
		if c == category {
			return true
		}
	}
	return false
}

// ValidStatus reports whether s is a known moderation status.
func ValidStatus(s Status) bool {
	switch s {
	case StatusPending, StatusPublished, StatusRejected, StatusArchived:
		return true
	}
	return false
}

// Listing holds the fields shared by posts and events.
type Listing struct {
	UserID          uint     `gorm:"index;not null" json:"user_id"`
	Title           string   `gorm:"size:200;not null" json:"title"`
	Description     string   `gorm:"type:text;not null" json:"description"`
	Category        string   `gorm:"size:32;index;not null" json:"category"`
	Status          Status   `gorm:"size:16;index;not null;default:pending" json:"status"`
	Details         string   `gorm:"type:text" json:"details,omitempty"` // JSON object
	Contact         string   `gorm:"size:255" json:"contact,omitempty"`
	Location        string   `gorm:"size:255" json:"location,omitempty"`
	ImageURLsJSON   string   `gorm:"column:image_urls;type:text" json:"-"`
	ImageURLs       []string `gorm:"-" json:"image_urls"`
	LikeCount       int64    `gorm:"not null;default:0" json:"like_count"`
	CommentCount    int64    `gorm:"not null;default:0" json:"comment_count"`
	RejectionReason string   `gorm:"size:500" json:"rejection_reason,omitempty"`
}

// BeforeSave serializes image URLs into their text column.
func (l *Listing) BeforeSave(tx *gorm.DB) error {
	if l.ImageURLs == nil {
		l.ImageURLsJSON = "[]"
		return nil
	}
	b, err := json.Marshal(l.ImageURLs)
	if err != nil {
		return err
	}
	l.ImageURLsJSON = string(b)
	return nil
}

// AfterFind restores image URLs from their text column.
func (l *Listing) AfterFind(tx *gorm.DB) error {
	l.ImageURLs = []string{}
	if l.ImageURLsJSON == "" {
		return nil
	}
	return json.Unmarshal([]byte(l.ImageURLsJSON), &l.ImageURLs)
}

// Post is a community resource listing.
type Post struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Listing   `gorm:"embedded"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	User      User      `gorm:"foreignKey:UserID" json:"author"`
}

// Event is a dated community gathering.
type Event struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	Listing   `gorm:"embedded"`
	StartsAt  time.Time  `gorm:"index;not null" json:"starts_at"`
	EndsAt    *time.Time `json:"ends_at,omitempty"`
	Venue     string     `gorm:"size:255" json:"venue,omitempty"`
	CreatedAt time.Time  `gorm:"index" json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	User      User       `gorm:"foreignKey:UserID" json:"author"`
}

// Record is implemented by *Post and *Event so listing code can treat them alike.
type Record interface {
	GetID() uint
	Base() *Listing
	Author() User
}

// Base returns the shared listing fields.
func (l *Listing) Base() *Listing { return l }

// GetID returns the primary key.
func (p *Post) GetID() uint { return p.ID }

// Author returns the preloaded owner.
func (p *Post) Author() User { return p.User }

// GetID returns the primary key.
func (e *Event) GetID() uint { return e.ID }

// Author returns the preloaded owner.
func (e *Event) Author() User { return e.User }

// ListingTable returns the table holding the resource type.
func ListingTable(resourceType string) string {
	if resourceType == ResourceEvent {
		return "events"
	}
	return "posts"
}
