package models

import "time"

// Role names issued in access tokens.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// User is a registered trainee or administrator.
type User struct {
	ID                  uint       `gorm:"primaryKey" json:"id"`
	Name                string     `gorm:"size:50;not null" json:"name"`
	Email               string     `gorm:"size:120;not null;uniqueIndex" json:"email"`
	PasswordHash        string     `gorm:"size:128;not null" json:"-"`
	IsAdmin             bool       `gorm:"default:false" json:"is_admin"`
	ResetToken          *string    `gorm:"size:64;index" json:"-"`
	ResetTokenExpiresAt *time.Time `json:"-"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// Role returns the access token role for the user.
func (u User) Role() string {
	if u.IsAdmin {
		return RoleAdmin
	}
	return RoleUser
}
