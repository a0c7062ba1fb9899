package models

import "time"

// Comment is a remark on a post or event. ParentID is nil for top-level comments
// and otherwise references a comment on the same resource.
type Comment struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	ResourceType string     `gorm:"size:16;index:idx_comments_resource;not null" json:"resource_type"`
	ResourceID   uint       `gorm:"index:idx_comments_resource;not null" json:"resource_id"`
	UserID       uint       `gorm:"index;not null" json:"user_id"`
	ParentID     *uint      `gorm:"index" json:"parent_id"`
	Content      string     `gorm:"type:text;not null" json:"content"`
	LikeCount    int64      `gorm:"not null;default:0" json:"like_count"`
	Flagged      bool       `gorm:"index;not null;default:false" json:"flagged"`
	FlagReason   string     `gorm:"size:500" json:"flag_reason,omitempty"`
	FlaggedBy    *uint      `json:"flagged_by,omitempty"`
	Deleted      bool       `gorm:"not null;default:false" json:"deleted"`
	EditedAt     *time.Time `json:"edited_at,omitempty"`
	CreatedAt    time.Time  `gorm:"index" json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	User         User       `gorm:"foreignKey:UserID" json:"author"`
}

// Like records that a user likes a post, event or comment.
type Like struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	UserID     uint      `gorm:"uniqueIndex:idx_likes_target;not null" json:"user_id"`
	TargetType string    `gorm:"size:16;uniqueIndex:idx_likes_target;not null" json:"target_type"`
	TargetID   uint      `gorm:"uniqueIndex:idx_likes_target;not null" json:"target_id"`
	CreatedAt  time.Time `json:"created_at"`
}
