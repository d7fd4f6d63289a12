package domain

import "time"

// User is a Slidesmith account. The schema is declared statically through
// the gorm tags; the store layer never inspects columns at runtime.
type User struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	Username     string     `gorm:"size:150;uniqueIndex;not null" json:"username"`
	Email        *string    `gorm:"size:255;uniqueIndex" json:"email,omitempty"`
	PasswordHash string     `gorm:"size:128;not null" json:"-"`
	IsActive     bool       `gorm:"not null;default:true" json:"is_active"`
	IsAdmin      bool       `gorm:"not null;default:false" json:"is_admin"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// UserView is the serialized form handed to HTTP clients.
type UserView struct {
	ID          uint       `json:"id"`
	Username    string     `json:"username"`
	Email       string     `json:"email,omitempty"`
	IsActive    bool       `json:"is_active"`
	IsAdmin     bool       `json:"is_admin"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

func (u *User) View() UserView {
	v := UserView{
		ID:          u.ID,
		Username:    u.Username,
		IsActive:    u.IsActive,
		IsAdmin:     u.IsAdmin,
		LastLoginAt: u.LastLoginAt,
		CreatedAt:   u.CreatedAt,
	}
	if u.Email != nil {
		v.Email = *u.Email
	}
	return v
}
