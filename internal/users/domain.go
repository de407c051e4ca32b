package users

import "time"

// Status is the lifecycle state of an account.
type Status string

const (
	StatusActive    Status = "active"
	StatusInactive  Status = "inactive"
	StatusSuspended Status = "suspended"
)

// User is an account in the directory.
type User struct {
	ID          int64
	Name        string
	Email       string
	Status      Status
	LockedUntil *time.Time
	LastLoginAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// CanSignIn reports whether the account may start a session right now.
func (u User) CanSignIn(now time.Time) bool {
	if u.Status != StatusActive {
		return false
	}
	return u.LockedUntil == nil || u.LockedUntil.Before(now)
}
