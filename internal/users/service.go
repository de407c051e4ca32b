package users

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/analytics-hub/authhub/internal/catalog"
	"github.com/analytics-hub/authhub/internal/shared"
)

// RepositoryPort defines data access methods for accounts.
type RepositoryPort interface {
	List(ctx context.Context, limit, offset int32) ([]User, error)
	Count(ctx context.Context) (int64, error)
	Get(ctx context.Context, id int64) (User, error)
	GetByEmail(ctx context.Context, email string) (User, error)
	Create(ctx context.Context, u User, passwordHash string) (User, error)
	Update(ctx context.Context, u User) (User, error)
	SetStatus(ctx context.Context, id int64, status Status) (int64, error)
	Lock(ctx context.Context, id int64, until time.Time) (int64, error)
	Unlock(ctx context.Context, id int64) (int64, error)
	TouchLogin(ctx context.Context, id int64, at time.Time) error
}

// DefaultRoleSource lists roles auto-assigned to new accounts.
type DefaultRoleSource interface {
	DefaultRoles(ctx context.Context) ([]catalog.Role, error)
}

// Auditor records administrative actions.
type Auditor interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Assigner is the narrow role-assignment surface the service needs when
// onboarding an account.
type Assigner func(ctx context.Context, userID, roleID, actorID int64, reason string) error

// Service orchestrates account management.
type Service struct {
	repo         RepositoryPort
	defaultRoles DefaultRoleSource
	assign       Assigner
	audit        Auditor
	clock        func() time.Time
}

// NewService builds a Service instance. defaultRoles and assign may be nil
// when onboarding does not auto-assign.
func NewService(repo RepositoryPort, defaultRoles DefaultRoleSource, assign Assigner, audit Auditor) *Service {
	return &Service{
		repo:         repo,
		defaultRoles: defaultRoles,
		assign:       assign,
		audit:        audit,
		clock:        func() time.Time { return time.Now().UTC() },
	}
}

// List returns a page of accounts with the total.
func (s *Service) List(ctx context.Context, limit, offset int32) ([]User, int64, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	items, err := s.repo.List(ctx, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.repo.Count(ctx)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// Get fetches an account.
func (s *Service) Get(ctx context.Context, id int64) (User, error) {
	u, err := s.repo.Get(ctx, id)
	if err != nil {
		if isNoRows(err) {
			return User{}, shared.ErrNotFound
		}
		return User{}, err
	}
	return u, nil
}

// Create registers an account and assigns the default roles.
func (s *Service) Create(ctx context.Context, name, email, password string, actorID int64) (User, error) {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(strings.ToLower(email))
	if name == "" || email == "" {
		return User{}, errors.New("users: name and email required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, err
	}
	created, err := s.repo.Create(ctx, User{Name: name, Email: email, Status: StatusActive}, string(hash))
	if err != nil {
		return User{}, err
	}
	s.record(ctx, actorID, "user.create", created.ID, map[string]any{"email": created.Email})

	if s.defaultRoles != nil && s.assign != nil {
		roles, err := s.defaultRoles.DefaultRoles(ctx)
		if err != nil {
			return created, err
		}
		for _, role := range roles {
			if err := s.assign(ctx, created.ID, role.ID, actorID, "default role"); err != nil {
				return created, err
			}
		}
	}
	return created, nil
}

// Update rewrites an account's profile.
func (s *Service) Update(ctx context.Context, u User, actorID int64) (User, error) {
	u.Name = strings.TrimSpace(u.Name)
	u.Email = strings.TrimSpace(strings.ToLower(u.Email))
	updated, err := s.repo.Update(ctx, u)
	if err != nil {
		if isNoRows(err) {
			return User{}, shared.ErrNotFound
		}
		return User{}, err
	}
	s.record(ctx, actorID, "user.update", updated.ID, map[string]any{"email": updated.Email})
	return updated, nil
}

// Suspend blocks an account from signing in.
func (s *Service) Suspend(ctx context.Context, id, actorID int64) error {
	return s.setStatus(ctx, id, StatusSuspended, actorID, "user.suspend")
}

// Activate restores a suspended or inactive account.
func (s *Service) Activate(ctx context.Context, id, actorID int64) error {
	return s.setStatus(ctx, id, StatusActive, actorID, "user.activate")
}

// Deactivate retires an account.
func (s *Service) Deactivate(ctx context.Context, id, actorID int64) error {
	return s.setStatus(ctx, id, StatusInactive, actorID, "user.deactivate")
}

func (s *Service) setStatus(ctx context.Context, id int64, status Status, actorID int64, action string) error {
	rows, err := s.repo.SetStatus(ctx, id, status)
	if err != nil {
		return err
	}
	if rows == 0 {
		return shared.ErrNotFound
	}
	s.record(ctx, actorID, action, id, nil)
	return nil
}

// Lock prevents sign-in until the given instant.
func (s *Service) Lock(ctx context.Context, id int64, until time.Time, actorID int64) error {
	rows, err := s.repo.Lock(ctx, id, until)
	if err != nil {
		return err
	}
	if rows == 0 {
		return shared.ErrNotFound
	}
	s.record(ctx, actorID, "user.lock", id, map[string]any{"until": until})
	return nil
}

// Unlock clears a lockout immediately.
func (s *Service) Unlock(ctx context.Context, id, actorID int64) error {
	rows, err := s.repo.Unlock(ctx, id)
	if err != nil {
		return err
	}
	if rows == 0 {
		return shared.ErrNotFound
	}
	s.record(ctx, actorID, "user.unlock", id, nil)
	return nil
}

// TouchLogin stamps a successful sign-in.
func (s *Service) TouchLogin(ctx context.Context, id int64) error {
	return s.repo.TouchLogin(ctx, id, s.clock())
}

func (s *Service) record(ctx context.Context, actorID int64, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "user",
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
	})
}
