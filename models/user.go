package models

import (
	"time"

	"gorm.io/gorm"
)

// Role values for User.Role.
const (
	RoleMember = "member"
	RoleAdmin  = "admin"
)

// User represents a community member. Passwords are stored as bcrypt hashes only.
type User struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	Username     string         `gorm:"size:64;uniqueIndex;not null" json:"username"`
	Email        string         `gorm:"size:255" json:"email,omitempty"`
	PasswordHash string         `gorm:"size:255" json:"-"`
	Role         string         `gorm:"size:16;not null;default:member" json:"role"`
	Provider     string         `gorm:"size:32" json:"provider,omitempty"`
	ProviderID   string         `gorm:"size:255" json:"-"`
	AvatarURL    string         `gorm:"size:512" json:"avatar_url"`
	Bio          string         `gorm:"size:500" json:"bio"`
	Location     string         `gorm:"size:128" json:"location"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
}

// IsAdmin reports whether the user holds the admin role.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// BeforeCreate hook ensures timestamps and role are set even when not provided.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	now := time.Now()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	if u.Role == "" {
		u.Role = RoleMember
	}
	return nil
}

// BeforeUpdate ensures the UpdatedAt timestamp is refreshed.
func (u *User) BeforeUpdate(tx *gorm.DB) error {
	u.UpdatedAt = time.Now()
	return nil
}
