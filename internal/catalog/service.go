package catalog

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/analytics-hub/authhub/internal/shared"
)

// RepositoryPort defines data access methods for the catalogs.
type RepositoryPort interface {
	ListPermissions(ctx context.Context) ([]Permission, error)
	GetPermissionByName(ctx context.Context, name string) (Permission, error)
	CreatePermission(ctx context.Context, p Permission) (Permission, error)

	ListRoles(ctx context.Context) ([]Role, error)
	GetRole(ctx context.Context, id int64) (Role, error)
	GetRoleByName(ctx context.Context, name string) (Role, error)
	DefaultRoles(ctx context.Context) ([]Role, error)
	CreateRole(ctx context.Context, role Role) (Role, error)
	UpdateRole(ctx context.Context, role Role) (Role, error)
	DeleteRole(ctx context.Context, id int64) (int64, error)

	RolePermissions(ctx context.Context, roleID int64) ([]Permission, error)
	RoleHasPermission(ctx context.Context, roleID int64, name string) (bool, error)
	ReplaceRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) (Role, error)
	AttachPermission(ctx context.Context, roleID, permissionID int64) (Role, error)
	DetachPermission(ctx context.Context, roleID, permissionID int64) (Role, error)
	RefreshCache(ctx context.Context, roleID int64) (Role, error)
}

// Auditor records administrative actions.
type Auditor interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Invalidator bumps the derived authorization caches after writes.
type Invalidator interface {
	Bump(ctx context.Context) error
}

// Service orchestrates catalog operations.
type Service struct {
	repo  RepositoryPort
	audit Auditor
	inval Invalidator
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort, audit Auditor, inval Invalidator) *Service {
	return &Service{repo: repo, audit: audit, inval: inval}
}

// ListPermissions returns all catalog permissions.
func (s *Service) ListPermissions(ctx context.Context) ([]Permission, error) {
	return s.repo.ListPermissions(ctx)
}

// PermissionByName resolves a permission name to its catalog entry.
func (s *Service) PermissionByName(ctx context.Context, name string) (Permission, error) {
	perm, err := s.repo.GetPermissionByName(ctx, strings.TrimSpace(name))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Permission{}, shared.ErrUnknownPermission
		}
		return Permission{}, err
	}
	return perm, nil
}

// EnsurePermission upserts a permission by name.
func (s *Service) EnsurePermission(ctx context.Context, p Permission) (Permission, error) {
	p.Name = strings.ToLower(strings.TrimSpace(p.Name))
	if p.Name == "" {
		return Permission{}, errors.New("catalog: permission name required")
	}
	if p.Module == "" || p.Action == "" {
		// Derive module/action from the dotted name when omitted.
		if module, action, ok := strings.Cut(p.Name, "."); ok {
			if p.Module == "" {
				p.Module = module
			}
			if p.Action == "" {
				p.Action = action
			}
		}
	}
	return s.repo.CreatePermission(ctx, p)
}

// ListRoles returns all roles ordered by level.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.repo.ListRoles(ctx)
}

// GetRole fetches a role by ID.
func (s *Service) GetRole(ctx context.Context, id int64) (Role, error) {
	role, err := s.repo.GetRole(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, shared.ErrUnknownRole
		}
		return Role{}, err
	}
	return role, nil
}

// RoleByName fetches a role by name.
func (s *Service) RoleByName(ctx context.Context, name string) (Role, error) {
	role, err := s.repo.GetRoleByName(ctx, strings.TrimSpace(name))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, shared.ErrUnknownRole
		}
		return Role{}, err
	}
	return role, nil
}

// DefaultRoles returns roles auto-assigned to new users.
func (s *Service) DefaultRoles(ctx context.Context) ([]Role, error) {
	return s.repo.DefaultRoles(ctx)
}

// CreateRole inserts a new role.
func (s *Service) CreateRole(ctx context.Context, role Role, actorID int64) (Role, error) {
	role.Name = strings.TrimSpace(role.Name)
	if role.Name == "" {
		return Role{}, errors.New("catalog: role name required")
	}
	role.IsSystem = false
	created, err := s.repo.CreateRole(ctx, role)
	if err != nil {
		return Role{}, err
	}
	s.record(ctx, actorID, "role.create", created.ID, map[string]any{"name": created.Name, "level": created.Level})
	return created, nil
}

// UpdateRole updates an existing non-system role.
func (s *Service) UpdateRole(ctx context.Context, role Role, actorID int64) (Role, error) {
	current, err := s.GetRole(ctx, role.ID)
	if err != nil {
		return Role{}, err
	}
	if current.IsSystem {
		return Role{}, shared.ErrSystemRole
	}
	role.Name = strings.TrimSpace(role.Name)
	if role.Name == "" {
		return Role{}, errors.New("catalog: role name required")
	}
	updated, err := s.repo.UpdateRole(ctx, role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, shared.ErrUnknownRole
		}
		return Role{}, err
	}
	s.record(ctx, actorID, "role.update", updated.ID, map[string]any{"name": updated.Name})
	return updated, nil
}

// DeleteRole removes a non-system role.
func (s *Service) DeleteRole(ctx context.Context, id int64, actorID int64) error {
	current, err := s.GetRole(ctx, id)
	if err != nil {
		return err
	}
	if current.IsSystem {
		return shared.ErrSystemRole
	}
	rows, err := s.repo.DeleteRole(ctx, id)
	if err != nil {
		return err
	}
	if rows == 0 {
		return shared.ErrUnknownRole
	}
	s.record(ctx, actorID, "role.delete", id, map[string]any{"name": current.Name})
	return s.invalidate(ctx)
}

// RolePermissions lists the permissions attached to a role.
func (s *Service) RolePermissions(ctx context.Context, roleID int64) ([]Permission, error) {
	return s.repo.RolePermissions(ctx, roleID)
}

// HasPermission reports whether the role carries the named permission. The
// materialized cache answers when populated; an empty cache falls back to the
// join table so a never-refreshed role still resolves correctly.
func (s *Service) HasPermission(ctx context.Context, roleID int64, name string) (bool, error) {
	role, err := s.GetRole(ctx, roleID)
	if err != nil {
		return false, err
	}
	if len(role.PermissionsCache) > 0 {
		return role.HasPermission(name), nil
	}
	return s.repo.RoleHasPermission(ctx, roleID, name)
}

// SetRolePermissions replaces the role's permission set. The cache refresh
// happens inside the repository transaction; callers never schedule it.
func (s *Service) SetRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64, actorID int64) (Role, error) {
	current, err := s.GetRole(ctx, roleID)
	if err != nil {
		return Role{}, err
	}
	if current.IsSystem {
		return Role{}, shared.ErrSystemRole
	}
	updated, err := s.repo.ReplaceRolePermissions(ctx, roleID, permissionIDs)
	if err != nil {
		return Role{}, err
	}
	s.record(ctx, actorID, "role.set_permissions", roleID, map[string]any{"count": len(permissionIDs)})
	return updated, s.invalidate(ctx)
}

// AddPermissionToRole attaches a single permission, refreshing the cache
// atomically.
func (s *Service) AddPermissionToRole(ctx context.Context, roleID, permissionID int64, actorID int64) (Role, error) {
	current, err := s.GetRole(ctx, roleID)
	if err != nil {
		return Role{}, err
	}
	if current.IsSystem {
		return Role{}, shared.ErrSystemRole
	}
	updated, err := s.repo.AttachPermission(ctx, roleID, permissionID)
	if err != nil {
		return Role{}, err
	}
	s.record(ctx, actorID, "role.add_permission", roleID, map[string]any{"permission_id": permissionID})
	return updated, s.invalidate(ctx)
}

// RemovePermissionFromRole detaches a single permission, refreshing the cache
// atomically.
func (s *Service) RemovePermissionFromRole(ctx context.Context, roleID, permissionID int64, actorID int64) (Role, error) {
	current, err := s.GetRole(ctx, roleID)
	if err != nil {
		return Role{}, err
	}
	if current.IsSystem {
		return Role{}, shared.ErrSystemRole
	}
	updated, err := s.repo.DetachPermission(ctx, roleID, permissionID)
	if err != nil {
		return Role{}, err
	}
	s.record(ctx, actorID, "role.remove_permission", roleID, map[string]any{"permission_id": permissionID})
	return updated, s.invalidate(ctx)
}

// RefreshCache recomputes a role's permission cache on demand.
func (s *Service) RefreshCache(ctx context.Context, roleID int64) (Role, error) {
	role, err := s.repo.RefreshCache(ctx, roleID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, shared.ErrUnknownRole
		}
		return Role{}, err
	}
	return role, s.invalidate(ctx)
}

func (s *Service) record(ctx context.Context, actorID int64, action string, roleID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "role",
		EntityID: strconv.FormatInt(roleID, 10),
		Meta:     meta,
	})
}

func (s *Service) invalidate(ctx context.Context) error {
	if s.inval == nil {
		return nil
	}
	return s.inval.Bump(ctx)
}
