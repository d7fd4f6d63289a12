package domain

import "time"

// Session is a server-side login session keyed by an opaque random token.
type Session struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Token     string    `gorm:"size:128;uniqueIndex;not null" json:"-"`
	UserID    uint      `gorm:"index;not null" json:"user_id"`
	ExpiresAt time.Time `gorm:"index;not null" json:"expires_at"`
	IsActive  bool      `gorm:"index;not null;default:true" json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Expired reports whether the session's absolute expiry has passed. It does
// not consult the active flag; callers check both.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
