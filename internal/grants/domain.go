package grants

import "time"

// ApprovalStatus tracks the review workflow of a grant.
type ApprovalStatus string

const (
	// ApprovalPending marks a grant awaiting review.
	ApprovalPending ApprovalStatus = "pending"
	// ApprovalApproved marks a reviewed, accepted grant.
	ApprovalApproved ApprovalStatus = "approved"
	// ApprovalRejected marks a reviewed, refused grant.
	ApprovalRejected ApprovalStatus = "rejected"
)

// RiskLevel classifies a grant for compliance review.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// State is the lifecycle position of a grant. Expired is computed at
// evaluation time from the expiry timestamp, never stored.
type State string

const (
	StatePending  State = "pending"
	StateActive   State = "active"
	StateExpired  State = "expired"
	StateRevoked  State = "revoked"
	StateRejected State = "rejected"
)

// RoleAssignment links a user to a role for an activation window.
type RoleAssignment struct {
	ID               int64
	UserID           int64
	RoleID           int64
	RoleName         string
	IsActive         bool
	AssignedAt       time.Time
	ExpiresAt        *time.Time
	AssignedBy       int64
	Reason           string
	RevokedBy        *int64
	RevokedAt        *time.Time
	RevocationReason string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Expired reports whether the activation window has closed.
func (a RoleAssignment) Expired(now time.Time) bool {
	return a.ExpiresAt != nil && !a.ExpiresAt.After(now)
}

// Effective reports whether the assignment currently attributes the role's
// permissions to the user.
func (a RoleAssignment) Effective(now time.Time) bool {
	return a.IsActive && a.RevokedAt == nil && !a.Expired(now)
}

// UserPermission is a direct per-user grant (Granted true) or explicit denial
// (Granted false) of a single permission, independent of any role.
type UserPermission struct {
	ID               int64
	UserID           int64
	PermissionID     int64
	PermissionName   string
	Granted          bool
	IsActive         bool
	ExpiresAt        *time.Time
	IsTemporary      bool
	OverridesRole    bool
	OverriddenRoleID *int64
	RequiresApproval bool
	ApprovalStatus   ApprovalStatus
	ApprovedBy       *int64
	ApprovedAt       *time.Time
	RejectionReason  string
	RevokedBy        *int64
	RevokedAt        *time.Time
	RevocationReason string
	RiskLevel        RiskLevel
	GrantedBy        int64
	GrantedAt        time.Time
	Reason           string
	UsageCount       int64
	FirstUsedAt      *time.Time
	LastUsedAt       *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Expired reports whether the grant's window has closed.
func (g UserPermission) Expired(now time.Time) bool {
	return g.ExpiresAt != nil && !g.ExpiresAt.After(now)
}

// Effective reports whether the record currently participates in
// authorization decisions. An effective record with Granted false is an
// explicit denial.
func (g UserPermission) Effective(now time.Time) bool {
	if !g.IsActive || g.RevokedAt != nil {
		return false
	}
	if g.Expired(now) {
		return false
	}
	if g.RequiresApproval && g.ApprovalStatus != ApprovalApproved {
		return false
	}
	return true
}

// State computes the lifecycle position at the given instant.
func (g UserPermission) State(now time.Time) State {
	switch {
	case g.ApprovalStatus == ApprovalRejected:
		return StateRejected
	case g.RevokedAt != nil || !g.IsActive:
		return StateRevoked
	case g.Expired(now):
		return StateExpired
	case g.RequiresApproval && g.ApprovalStatus == ApprovalPending:
		return StatePending
	default:
		return StateActive
	}
}

// GrantOptions carries the optional attributes of a new direct grant.
type GrantOptions struct {
	Granted          bool
	ExpiresAt        *time.Time
	IsTemporary      bool
	OverridesRole    bool
	OverriddenRoleID *int64
	RequiresApproval bool
	RiskLevel        RiskLevel
	Reason           string
}
