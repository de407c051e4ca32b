package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrCSRFTokenMissing occurs when CSRF token missing.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch occurs when CSRF tokens do not match.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")

	// ErrUnknownPermission indicates the permission name has no catalog entry.
	ErrUnknownPermission = errors.New("unknown permission")
	// ErrUnknownRole indicates the role does not exist.
	ErrUnknownRole = errors.New("unknown role")
	// ErrGrantAlreadyExists indicates a conflicting effective grant.
	ErrGrantAlreadyExists = errors.New("grant already exists")
	// ErrGrantNotFound indicates the grant record does not exist.
	ErrGrantNotFound = errors.New("grant not found")
	// ErrGrantNotActive indicates the grant is expired, revoked or rejected.
	ErrGrantNotActive = errors.New("grant is not active")
	// ErrApprovalPending indicates the grant is awaiting approval.
	ErrApprovalPending = errors.New("grant approval is pending")
	// ErrSystemRole indicates a mutation attempt against a protected role.
	ErrSystemRole = errors.New("system role is protected")
)
