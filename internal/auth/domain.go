package auth

import "time"

// Account carries the credential fields needed to authenticate.
type Account struct {
	ID           int64
	Name         string
	Email        string
	PasswordHash string
	Status       string
	LockedUntil  *time.Time
}

// CanSignIn reports whether the account may start a session right now.
func (a Account) CanSignIn(now time.Time) bool {
	if a.Status != "active" {
		return false
	}
	return a.LockedUntil == nil || a.LockedUntil.Before(now)
}
