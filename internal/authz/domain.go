package authz

// Reason explains how an authorization decision was reached.
type Reason string

const (
	// ReasonExplicitDeny means an effective direct denial blocked the user.
	// Denials win over every grant.
	ReasonExplicitDeny Reason = "explicit_deny"
	// ReasonDirectGrant means an effective per-user grant allowed the user.
	ReasonDirectGrant Reason = "direct_grant"
	// ReasonRoleGrant means one of the user's effective roles carries the
	// permission.
	ReasonRoleGrant Reason = "role_grant"
	// ReasonNoGrant means no record, allowing or denying, applies.
	ReasonNoGrant Reason = "no_grant"
	// ReasonUnknownPermission means the permission name is not in the
	// catalog. Unknown names never allow.
	ReasonUnknownPermission Reason = "unknown_permission"
)

// Decision is the full outcome of resolving one permission for one user.
// Denial is a value, not an error; resolver errors mean the question could
// not be answered at all.
type Decision struct {
	Allowed      bool    `json:"allowed"`
	Reason       Reason  `json:"reason"`
	Permission   string  `json:"permission"`
	PermissionID int64   `json:"permission_id,omitempty"`
	GrantID      *int64  `json:"grant_id,omitempty"`
	RoleID       *int64  `json:"role_id,omitempty"`
	RoleName     string  `json:"role_name,omitempty"`
	// OverrodeRole carries the grant's audit flag through to the decision;
	// it never changes the outcome.
	OverrodeRole bool `json:"overrode_role,omitempty"`
}

// AccessPolicy is the fallback when no explicit record covers a resource.
type AccessPolicy string

const (
	// PolicyDeny refuses access absent an explicit grant.
	PolicyDeny AccessPolicy = "deny"
	// PolicyAllow admits access absent an explicit restriction.
	PolicyAllow AccessPolicy = "allow"
)
