package menu

import (
	"sort"
	"time"

	"github.com/analytics-hub/authhub/internal/authz"
	"github.com/analytics-hub/authhub/internal/grants"
)

// DefaultPolicy pins the access posture for menus: absent restriction rows
// every signed-in user sees the entry.
const DefaultPolicy = authz.PolicyAllow

// Menu is a navigation entry. Menus form a tree via ParentID.
type Menu struct {
	ID        int64
	ParentID  *int64
	Title     string
	Slug      string
	Icon      string
	Route     string
	SortOrder int
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// MenuRole restricts a menu entry to a role. Menus are allow-by-default:
// an entry without effective restriction rows is visible to every signed-in
// user, and the first effective row flips it to restricted. IsVisible gates
// access for the role; ShowInNavigation additionally gates tree rendering,
// so a role can hold deep-link access to an entry the shell never lists.
// Rows share the direct-grant lifecycle: revocation stamps rather than
// deletes, expiry is lazy, and a row awaiting review conveys nothing.
type MenuRole struct {
	ID               int64
	MenuID           int64
	RoleID           int64
	RoleName         string
	IsVisible        bool
	ShowInNavigation bool
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

// Expired reports whether the restriction's window has closed.
func (mr MenuRole) Expired(now time.Time) bool {
	return mr.ExpiresAt != nil && !mr.ExpiresAt.After(now)
}

// Effective reports whether the restriction currently participates in
// access decisions.
func (mr MenuRole) Effective(now time.Time) bool {
	if !mr.IsActive || !mr.IsGranted || mr.RevokedAt != nil {
		return false
	}
	if mr.Expired(now) {
		return false
	}
	if mr.RequiresApproval && mr.ApprovalStatus != grants.ApprovalApproved {
		return false
	}
	return true
}

// Node is a menu entry with its resolved children, ordered for rendering.
type Node struct {
	Menu     Menu   `json:"menu"`
	Children []Node `json:"children,omitempty"`
}

// BuildTree arranges a flat visible set into a render-ready tree. Entries
// whose parent is not visible surface at the top level rather than vanish.
func BuildTree(menus []Menu) []Node {
	byID := make(map[int64]Menu, len(menus))
	for _, m := range menus {
		byID[m.ID] = m
	}
	children := map[int64][]Menu{}
	var roots []Menu
	for _, m := range menus {
		if m.ParentID != nil {
			if _, ok := byID[*m.ParentID]; ok {
				children[*m.ParentID] = append(children[*m.ParentID], m)
				continue
			}
		}
		roots = append(roots, m)
	}
	var build func(items []Menu) []Node
	build = func(items []Menu) []Node {
		sort.Slice(items, func(i, j int) bool {
			if items[i].SortOrder != items[j].SortOrder {
				return items[i].SortOrder < items[j].SortOrder
			}
			return items[i].Title < items[j].Title
		})
		nodes := make([]Node, 0, len(items))
		for _, m := range items {
			nodes = append(nodes, Node{Menu: m, Children: build(children[m.ID])})
		}
		return nodes
	}
	return build(roots)
}
