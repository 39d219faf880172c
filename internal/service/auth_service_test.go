package service

import (
	"context"
	"testing"

	"ai-assistant-be/internal/dto"
	"ai-assistant-be/internal/entity"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeUserRepo struct {
	byEmail map[string]*entity.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{byEmail: make(map[string]*entity.User)}
}

func (f *fakeUserRepo) Create(ctx context.Context, user *entity.User) error {
	f.byEmail[user.Email] = user
	return nil
}

func (f *fakeUserRepo) FindByEmail(ctx context.Context, email string) (*entity.User, error) {
	if u, ok := f.byEmail[email]; ok {
		return u, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeUserRepo) FindById(ctx context.Context, id uuid.UUID) (*entity.User, error) {
	for _, u := range f.byEmail {
		if u.Id == id {
			return u, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

const testSecret = "test-secret"

func TestRegisterAndLogin(t *testing.T) {
	repo := newFakeUserRepo()
	svc := NewAuthService(repo, testSecret)

	reg, err := svc.Register(context.Background(), &dto.RegisterRequest{
		Email:    "dev@example.com",
		Password: "hunter2hunter2",
		FullName: "Dev User",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, reg.AccessToken)
	assert.Equal(t, "dev@example.com", reg.Email)

	// Stored hash must not be the plaintext password.
	stored := repo.byEmail["dev@example.com"]
	assert.NotEqual(t, "hunter2hunter2", stored.PasswordHash)

	login, err := svc.Login(context.Background(), &dto.LoginRequest{
		Email:    "dev@example.com",
		Password: "hunter2hunter2",
	})
	require.NoError(t, err)
	assert.Equal(t, reg.UserId, login.UserId)

	// Token carries the user id claim the middleware reads.
	token, err := jwt.Parse(login.AccessToken, func(t *jwt.Token) (interface{}, error) {
		return []byte(testSecret), nil
	})
	require.NoError(t, err)
	claims := token.Claims.(jwt.MapClaims)
	assert.Equal(t, reg.UserId.String(), claims["user_id"])
}

func TestRegisterDuplicateEmail(t *testing.T) {
	repo := newFakeUserRepo()
	svc := NewAuthService(repo, testSecret)

	_, err := svc.Register(context.Background(), &dto.RegisterRequest{
		Email:    "dup@example.com",
		Password: "password123",
		FullName: "First",
	})
	require.NoError(t, err)

	_, err = svc.Register(context.Background(), &dto.RegisterRequest{
		Email:    "dup@example.com",
		Password: "password456",
		FullName: "Second",
	})
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	repo := newFakeUserRepo()
	svc := NewAuthService(repo, testSecret)

	_, err := svc.Register(context.Background(), &dto.RegisterRequest{
		Email:    "dev@example.com",
		Password: "correct-password",
		FullName: "Dev",
	})
	require.NoError(t, err)

	_, err = svc.Login(context.Background(), &dto.LoginRequest{
		Email:    "dev@example.com",
		Password: "wrong-password",
	})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Login(context.Background(), &dto.LoginRequest{
		Email:    "nobody@example.com",
		Password: "whatever",
	})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}
