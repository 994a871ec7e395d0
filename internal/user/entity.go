// AngelaMos | 2026
// entity.go

package user

import (
	"time"

	"github.com/promptstudio/api/internal/subscription"
)

type User struct {
	ID           string     `db:"id"`
	Email        string     `db:"email"`
	PasswordHash string     `db:"password_hash"`
	Name         string     `db:"name"`
	IsAdmin      bool       `db:"is_admin"`
	TokenVersion int        `db:"token_version"`
	CreatedAt    time.Time  `db:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at"`
	DeletedAt    *time.Time `db:"deleted_at"`

	subscription.Subscription
}

func (u *User) IsDeleted() bool {
	return u.DeletedAt != nil
}
