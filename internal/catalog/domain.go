package catalog

import (
	"strings"
	"time"
)

// Permission is a catalog entry describing an atomic capability. Names follow
// the "module.action" convention with an optional resource qualifier.
type Permission struct {
	ID        int64
	Name      string
	Module    string
	Action    string
	Resource  string
	ParentID  *int64
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Path returns the dotted path built from the parent chain plus the
// permission's own name. A broken or cyclic chain terminates the walk.
func (p Permission) Path(byID map[int64]Permission) string {
	segments := []string{p.Name}
	seen := map[int64]struct{}{p.ID: {}}
	cur := p
	for cur.ParentID != nil {
		parent, ok := byID[*cur.ParentID]
		if !ok {
			break
		}
		if _, dup := seen[parent.ID]; dup {
			break
		}
		seen[parent.ID] = struct{}{}
		segments = append([]string{parent.Name}, segments...)
		cur = parent
	}
	return strings.Join(segments, ".")
}

// Role groups permissions under a hierarchy level. A lower level outranks a
// higher one. PermissionsCache is a materialized view over role_permissions,
// recomputed in the same transaction as every mutation of that relation; it is
// a derived index, never the source of truth.
type Role struct {
	ID               int64
	Name             string
	Description      string
	Level            int
	IsActive         bool
	IsSystem         bool
	IsDefault        bool
	PermissionsCache []string
	CacheVersion     int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// HasPermission reports membership in the materialized permission set.
// Matching is case-insensitive to mirror how names are normalized on write.
func (r Role) HasPermission(name string) bool {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, p := range r.PermissionsCache {
		if strings.ToLower(p) == name {
			return true
		}
	}
	return false
}

// Outranks reports whether r sits higher in the hierarchy than other.
func (r Role) Outranks(other Role) bool {
	return r.Level < other.Level
}
