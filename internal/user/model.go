package user

import "time"

const (
	// RoleUser is the default role assigned on signup.
	RoleUser = "user"
	// RoleAdmin unlocks order administration endpoints.
	RoleAdmin = "admin"
)

// User represents a storefront account. Email is the unique key; the balance
// is held in pesewas (GHS minor units) and only ever written by the ledger.
type User struct {
	Email          string
	Name           string
	PasswordHash   []byte
	BalancePesewas int64
	Role           string
	SessionVersion int
	CreatedAt      time.Time
}

// IsAdmin reports whether the account has the admin role.
func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
