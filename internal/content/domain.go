package content

import (
	"time"

	"github.com/analytics-hub/authhub/internal/authz"
	"github.com/analytics-hub/authhub/internal/grants"
)

// DefaultPolicy pins the access posture for content: absent a role scope the
// answer is no.
const DefaultPolicy = authz.PolicyDeny

// Capability is a resource-scoped ability on a content item.
type Capability string

const (
	CapView    Capability = "view"
	CapEdit    Capability = "edit"
	CapDelete  Capability = "delete"
	CapPublish Capability = "publish"
	CapComment Capability = "comment"
	CapShare   Capability = "share"
)

// Capabilities is the set of abilities a role scope conveys.
type Capabilities struct {
	View    bool `json:"can_view"`
	Edit    bool `json:"can_edit"`
	Delete  bool `json:"can_delete"`
	Publish bool `json:"can_publish"`
	Comment bool `json:"can_comment"`
	Share   bool `json:"can_share"`
}

// Content is a published dashboard or report embed.
type Content struct {
	ID           int64
	Title        string
	Slug         string
	Type         string
	Description  string
	EmbedURL     string
	IsActive     bool
	CreatedBy    int64
	ViewCount    int64
	LastViewedAt *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ContentRole scopes a role's access to one content item. Access to content
// is deny-by-default: a role sees an item only through one of these rows.
// Scopes carry the same lifecycle as direct grants: revocation stamps the
// row instead of deleting it, expiry is evaluated lazily, and a scope
// awaiting review conveys nothing.
type ContentRole struct {
	ID               int64
	ContentID        int64
	RoleID           int64
	RoleName         string
	Caps             Capabilities
	IsGranted        bool
	IsActive         bool
	ExpiresAt        *time.Time
	IsTemporary      bool
	RequiresApproval bool
	ApprovalStatus   grants.ApprovalStatus
	RiskLevel        grants.RiskLevel
	GrantedBy        int64
	GrantedAt        time.Time
	RevokedBy        *int64
	RevokedAt        *time.Time
	RevocationReason string
}

// Expired reports whether the scope's window has closed.
func (cr ContentRole) Expired(now time.Time) bool {
	return cr.ExpiresAt != nil && !cr.ExpiresAt.After(now)
}

// Effective reports whether the scope currently participates in access
// decisions.
func (cr ContentRole) Effective(now time.Time) bool {
	if !cr.IsActive || !cr.IsGranted || cr.RevokedAt != nil {
		return false
	}
	if cr.Expired(now) {
		return false
	}
	if cr.RequiresApproval && cr.ApprovalStatus != grants.ApprovalApproved {
		return false
	}
	return true
}

// Allows reports whether the row conveys the capability.
func (cr ContentRole) Allows(capability Capability) bool {
	switch capability {
	case CapView:
		return cr.Caps.View
	case CapEdit:
		return cr.Caps.Edit
	case CapDelete:
		return cr.Caps.Delete
	case CapPublish:
		return cr.Caps.Publish
	case CapComment:
		return cr.Caps.Comment
	case CapShare:
		return cr.Caps.Share
	default:
		return false
	}
}
