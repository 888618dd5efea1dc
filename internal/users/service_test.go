package users

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type stubRepo struct {
	createdEmail string
	createdHash  string
	activeCalls  map[int64]bool
}

func (s *stubRepo) ListUsers(ctx context.Context, limit, offset int) ([]User, int, error) {
	return nil, 0, nil
}

func (s *stubRepo) GetUser(ctx context.Context, id int64) (User, error) {
	return User{ID: id}, nil
}

func (s *stubRepo) CreateUser(ctx context.Context, email, name, passwordHash string) (User, error) {
	s.createdEmail = email
	s.createdHash = passwordHash
	return User{ID: 1, Email: email, Name: name}, nil
}

func (s *stubRepo) SetActive(ctx context.Context, id int64, active bool) error {
	if s.activeCalls == nil {
		s.activeCalls = make(map[int64]bool)
	}
	s.activeCalls[id] = active
	return nil
}

func TestCreateUserHashesPassword(t *testing.T) {
	repo := &stubRepo{}
	svc := NewService(repo)

	user, err := svc.CreateUser(context.Background(), "  OPS@Example.COM ", "Ops", "correct-horse")
	require.NoError(t, err)
	assert.Equal(t, "ops@example.com", user.Email)
	assert.NotEqual(t, "correct-horse", repo.createdHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(repo.createdHash), []byte("correct-horse")))
}

func TestCreateUserRejectsShortPassword(t *testing.T) {
	svc := NewService(&stubRepo{})
	_, err := svc.CreateUser(context.Background(), "ops@example.com", "Ops", "short")
	assert.Error(t, err)
}

func TestCreateUserRequiresEmail(t *testing.T) {
	svc := NewService(&stubRepo{})
	_, err := svc.CreateUser(context.Background(), "   ", "Ops", "correct-horse")
	assert.Error(t, err)
}

func TestSetActive(t *testing.T) {
	repo := &stubRepo{}
	svc := NewService(repo)

	require.NoError(t, svc.SetActive(context.Background(), 5, false))
	active, ok := repo.activeCalls[5]
	require.True(t, ok)
	assert.False(t, active)
}
