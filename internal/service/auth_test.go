package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/aman-churiwal/fetch-gateway/internal/models"
)

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[string]*models.AdminUser
}

func (f *fakeUserRepo) Create(_ context.Context, u *models.AdminUser) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.users == nil {
		f.users = make(map[string]*models.AdminUser)
	}
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	f.users[u.Email] = u
	return nil
}

func (f *fakeUserRepo) FindByEmail(_ context.Context, email string) (*models.AdminUser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.users[email], nil
}

func TestLoginAndValidate(t *testing.T) {
	svc := NewAuthService(&fakeUserRepo{}, "test-secret", 1)
	ctx := context.Background()

	created, err := svc.EnsureAdmin(ctx, "Admin@Example.com", "hunter22", "Admin")
	require.NoError(t, err)
	require.True(t, created)

	created, err = svc.EnsureAdmin(ctx, "admin@example.com", "other", "Admin")
	require.NoError(t, err)
	require.False(t, created)

	token, expires, err := svc.Login(ctx, "admin@example.com", "hunter22")
	require.NoError(t, err)
	require.NotEmpty(t, token)
	require.WithinDuration(t, time.Now().Add(time.Hour), expires, 5*time.Second)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	require.Equal(t, "admin@example.com", claims.Email)
	require.NotEmpty(t, claims.Subject)
}

func TestLogin_InvalidCredentials(t *testing.T) {
	svc := NewAuthService(&fakeUserRepo{}, "test-secret", 1)
	ctx := context.Background()

	_, err := svc.EnsureAdmin(ctx, "admin@example.com", "hunter22", "")
	require.NoError(t, err)

	_, _, err = svc.Login(ctx, "admin@example.com", "wrong")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	_, _, err = svc.Login(ctx, "nobody@example.com", "hunter22")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestValidateToken_Rejects(t *testing.T) {
	repo := &fakeUserRepo{}
	svc := NewAuthService(repo, "test-secret", 1)
	ctx := context.Background()

	_, err := svc.EnsureAdmin(ctx, "admin@example.com", "hunter22", "")
	require.NoError(t, err)
	token, _, err := svc.Login(ctx, "admin@example.com", "hunter22")
	require.NoError(t, err)

	other := NewAuthService(repo, "another-secret", 1)
	_, err = other.ValidateToken(token)
	require.ErrorIs(t, err, ErrInvalidToken)

	svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = svc.ValidateToken(token)
	require.ErrorIs(t, err, ErrInvalidToken)

	_, err = svc.ValidateToken("not.a.token")
	require.ErrorIs(t, err, ErrInvalidToken)
}
