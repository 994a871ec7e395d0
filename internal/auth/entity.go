// AngelaMos | 2026
// entity.go

package auth

import (
	"time"
)

// Session is one issued refresh token. Refreshing rotates it: the old row
// is stamped rotated_at and a new row joins the same family. Presenting a
// rotated token again means it leaked, and the whole family is revoked.
type Session struct {
	ID        string     `db:"id"`
	UserID    string     `db:"user_id"`
	TokenHash string     `db:"token_hash"`
	FamilyID  string     `db:"family_id"`
	UserAgent string     `db:"user_agent"`
	IPAddress string     `db:"ip_address"`
	CreatedAt time.Time  `db:"created_at"`
	ExpiresAt time.Time  `db:"expires_at"`
	RotatedAt *time.Time `db:"rotated_at"`
	RevokedAt *time.Time `db:"revoked_at"`
}

func (s *Session) Rotated() bool {
	return s.RotatedAt != nil
}

func (s *Session) Revoked() bool {
	return s.RevokedAt != nil
}

func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
