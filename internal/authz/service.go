package authz

import (
	"context"
	"errors"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/analytics-hub/authhub/internal/shared"
)

// Observer receives decision outcomes for metrics.
type Observer interface {
	ObserveDecision(reason Reason, allowed bool, elapsed time.Duration)
}

// Service is the authorization facade the rest of the application talks to.
// It layers the versioned Redis cache and metrics over the resolver.
type Service struct {
	resolver *Resolver
	cache    *Cache
	observer Observer
	group    singleflight.Group
}

// NewService builds a Service instance. Cache and observer may be nil.
func NewService(resolver *Resolver, cache *Cache, observer Observer) *Service {
	return &Service{resolver: resolver, cache: cache, observer: observer}
}

// Authorize resolves one permission for one user.
func (s *Service) Authorize(ctx context.Context, userID int64, permission string) (Decision, error) {
	start := time.Now()
	decision, err := s.resolver.Authorize(ctx, userID, permission)
	if err != nil {
		return Decision{}, err
	}
	if s.observer != nil {
		s.observer.ObserveDecision(decision.Reason, decision.Allowed, time.Since(start))
	}
	return decision, nil
}

// UserHasPermission answers the boolean form of Authorize.
func (s *Service) UserHasPermission(ctx context.Context, userID int64, permission string) (bool, error) {
	decision, err := s.Authorize(ctx, userID, permission)
	if err != nil {
		return false, err
	}
	return decision.Allowed, nil
}

// AnyPermission reports whether the user holds at least one of the named
// permissions. An explicit denial only blocks the permission it names.
func (s *Service) AnyPermission(ctx context.Context, userID int64, permissions ...string) (bool, error) {
	for _, p := range permissions {
		ok, err := s.UserHasPermission(ctx, userID, p)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// AllPermissions reports whether the user holds every named permission.
func (s *Service) AllPermissions(ctx context.Context, userID int64, permissions ...string) (bool, error) {
	if len(permissions) == 0 {
		return false, nil
	}
	for _, p := range permissions {
		ok, err := s.UserHasPermission(ctx, userID, p)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// UserHasRole reports whether the named role is effectively assigned to the
// user right now.
func (s *Service) UserHasRole(ctx context.Context, userID int64, roleName string) (bool, error) {
	role, err := s.resolver.catalog.RoleByName(ctx, strings.TrimSpace(roleName))
	if err != nil {
		if errors.Is(err, shared.ErrUnknownRole) {
			return false, nil
		}
		return false, err
	}
	if !role.IsActive {
		return false, nil
	}
	assignments, err := s.resolver.grants.AssignmentsForUser(ctx, userID)
	if err != nil {
		return false, err
	}
	now := s.resolver.clock()
	for _, a := range assignments {
		if a.RoleID == role.ID && a.Effective(now) {
			return true, nil
		}
	}
	return false, nil
}

// EffectivePermissions returns the user's full allowed permission set,
// cached under the global version. Concurrent misses for the same user
// collapse to one database computation.
func (s *Service) EffectivePermissions(ctx context.Context, userID int64) ([]string, error) {
	if s.cache == nil {
		return s.resolver.EffectivePermissions(ctx, userID)
	}
	key, err := s.cache.BuildKey(ctx, keyUserPermissions(userID)...)
	if err != nil {
		return nil, err
	}
	result, err, _ := s.group.Do(key, func() (interface{}, error) {
		var perms []string
		err := s.cache.FetchJSON(ctx, key, &perms, func(ctx context.Context) (interface{}, error) {
			return s.resolver.EffectivePermissions(ctx, userID)
		})
		return perms, err
	})
	if err != nil {
		return nil, err
	}
	perms, _ := result.([]string)
	return perms, nil
}

// Bump invalidates every derived authorization value. Catalog and grant
// services call this through their Invalidator ports after each write.
func (s *Service) Bump(ctx context.Context) error {
	return s.cache.Bump(ctx)
}
