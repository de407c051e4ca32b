package users

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/analytics-hub/authhub/internal/catalog"
	"github.com/analytics-hub/authhub/internal/shared"
)

type stubUserRepo struct {
	users  map[int64]User
	hashes map[int64]string
	nextID int64
}

func newStubUserRepo() *stubUserRepo {
	return &stubUserRepo{users: map[int64]User{}, hashes: map[int64]string{}, nextID: 1}
}

func (r *stubUserRepo) List(_ context.Context, limit, offset int32) ([]User, error) {
	out := make([]User, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, u)
	}
	_ = limit
	_ = offset
	return out, nil
}

func (r *stubUserRepo) Count(context.Context) (int64, error) {
	return int64(len(r.users)), nil
}

func (r *stubUserRepo) Get(_ context.Context, id int64) (User, error) {
	u, ok := r.users[id]
	if !ok {
		return User{}, pgx.ErrNoRows
	}
	return u, nil
}

func (r *stubUserRepo) GetByEmail(_ context.Context, email string) (User, error) {
	for _, u := range r.users {
		if u.Email == strings.ToLower(email) {
			return u, nil
		}
	}
	return User{}, pgx.ErrNoRows
}

func (r *stubUserRepo) Create(_ context.Context, u User, passwordHash string) (User, error) {
	u.ID = r.nextID
	r.nextID++
	r.users[u.ID] = u
	r.hashes[u.ID] = passwordHash
	return u, nil
}

func (r *stubUserRepo) Update(_ context.Context, u User) (User, error) {
	if _, ok := r.users[u.ID]; !ok {
		return User{}, pgx.ErrNoRows
	}
	r.users[u.ID] = u
	return u, nil
}

func (r *stubUserRepo) SetStatus(_ context.Context, id int64, status Status) (int64, error) {
	u, ok := r.users[id]
	if !ok {
		return 0, nil
	}
	u.Status = status
	r.users[id] = u
	return 1, nil
}

func (r *stubUserRepo) Lock(_ context.Context, id int64, until time.Time) (int64, error) {
	u, ok := r.users[id]
	if !ok {
		return 0, nil
	}
	u.LockedUntil = &until
	r.users[id] = u
	return 1, nil
}

func (r *stubUserRepo) Unlock(_ context.Context, id int64) (int64, error) {
	u, ok := r.users[id]
	if !ok {
		return 0, nil
	}
	u.LockedUntil = nil
	r.users[id] = u
	return 1, nil
}

func (r *stubUserRepo) TouchLogin(_ context.Context, id int64, at time.Time) error {
	u := r.users[id]
	u.LastLoginAt = &at
	r.users[id] = u
	return nil
}

type stubDefaultRoles struct {
	roles []catalog.Role
}

func (s stubDefaultRoles) DefaultRoles(context.Context) ([]catalog.Role, error) {
	return s.roles, nil
}

type assignCall struct {
	userID, roleID, actorID int64
	reason                  string
}

func TestCreateHashesPasswordAndAssignsDefaults(t *testing.T) {
	repo := newStubUserRepo()
	var calls []assignCall
	assign := Assigner(func(_ context.Context, userID, roleID, actorID int64, reason string) error {
		calls = append(calls, assignCall{userID, roleID, actorID, reason})
		return nil
	})
	svc := NewService(repo, stubDefaultRoles{roles: []catalog.Role{{ID: 7, Name: "analyst"}}}, assign, nil)

	created, err := svc.Create(context.Background(), "  Riley  ", "Riley@Example.COM", "s3cretpass", 1)
	require.NoError(t, err)
	require.Equal(t, "Riley", created.Name)
	require.Equal(t, "riley@example.com", created.Email)
	require.Equal(t, StatusActive, created.Status)

	hash := repo.hashes[created.ID]
	require.NotEqual(t, "s3cretpass", hash)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("s3cretpass")))

	require.Len(t, calls, 1)
	require.Equal(t, assignCall{created.ID, 7, 1, "default role"}, calls[0])
}

func TestCreateRequiresNameAndEmail(t *testing.T) {
	svc := NewService(newStubUserRepo(), nil, nil, nil)
	_, err := svc.Create(context.Background(), "", "a@b.c", "password1", 1)
	require.Error(t, err)
	_, err = svc.Create(context.Background(), "Name", "   ", "password1", 1)
	require.Error(t, err)
}

func TestStatusTransitions(t *testing.T) {
	repo := newStubUserRepo()
	svc := NewService(repo, nil, nil, nil)
	created, err := svc.Create(context.Background(), "Casey", "casey@example.com", "password1", 1)
	require.NoError(t, err)

	require.NoError(t, svc.Suspend(context.Background(), created.ID, 1))
	require.Equal(t, StatusSuspended, repo.users[created.ID].Status)

	require.NoError(t, svc.Activate(context.Background(), created.ID, 1))
	require.Equal(t, StatusActive, repo.users[created.ID].Status)

	require.NoError(t, svc.Deactivate(context.Background(), created.ID, 1))
	require.Equal(t, StatusInactive, repo.users[created.ID].Status)
}

func TestStatusChangeUnknownUser(t *testing.T) {
	svc := NewService(newStubUserRepo(), nil, nil, nil)
	require.ErrorIs(t, svc.Suspend(context.Background(), 404, 1), shared.ErrNotFound)
	require.ErrorIs(t, svc.Unlock(context.Background(), 404, 1), shared.ErrNotFound)
}

func TestLockBlocksSignInUntilExpiry(t *testing.T) {
	repo := newStubUserRepo()
	svc := NewService(repo, nil, nil, nil)
	created, err := svc.Create(context.Background(), "Jamie", "jamie@example.com", "password1", 1)
	require.NoError(t, err)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	until := now.Add(time.Hour)
	require.NoError(t, svc.Lock(context.Background(), created.ID, until, 1))
	require.False(t, repo.users[created.ID].CanSignIn(now))
	require.True(t, repo.users[created.ID].CanSignIn(until.Add(time.Second)))

	require.NoError(t, svc.Unlock(context.Background(), created.ID, 1))
	require.True(t, repo.users[created.ID].CanSignIn(now))
}

func TestGetUnknownUserIsNotFound(t *testing.T) {
	svc := NewService(newStubUserRepo(), nil, nil, nil)
	_, err := svc.Get(context.Background(), 9)
	require.ErrorIs(t, err, shared.ErrNotFound)
}
