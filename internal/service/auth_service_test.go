package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/course-market-api/internal/models"
	appErrors "github.com/noah-isme/course-market-api/pkg/errors"
)

type stubUserStore struct {
	users   map[string]models.User
	tokens  map[string]models.RefreshToken
	revoked []string
}

func (m *stubUserStore) Create(ctx context.Context, user *models.User) error {
	if m.users == nil {
		m.users = make(map[string]models.User)
	}
	m.users[user.ID] = *user
	return nil
}

func (m *stubUserStore) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	for _, u := range m.users {
		if u.Email == email {
			found := u
			return &found, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *stubUserStore) FindByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := m.users[id]; ok {
		return &u, nil
	}
	return nil, sql.ErrNoRows
}

func (m *stubUserStore) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	if m.tokens == nil {
		m.tokens = make(map[string]models.RefreshToken)
	}
	m.tokens[token.Token] = *token
	return nil
}

func (m *stubUserStore) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	if t, ok := m.tokens[token]; ok {
		return &t, nil
	}
	return nil, sql.ErrNoRows
}

func (m *stubUserStore) RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error {
	m.revoked = append(m.revoked, id)
	for key, t := range m.tokens {
		if t.ID == id {
			t.Revoked = true
			t.RevokedAt = &revokedAt
			m.tokens[key] = t
		}
	}
	return nil
}

func (m *stubUserStore) RevokeUserRefreshTokens(ctx context.Context, userID string) error {
	return nil
}

func newAuthFixture(repo *stubUserStore) *AuthService {
	return NewAuthService(repo, validator.New(), zap.NewNop(), AuthConfig{
		AccessTokenSecret:  "test-secret",
		AccessTokenExpiry:  time.Hour,
		RefreshTokenExpiry: 24 * time.Hour,
		Issuer:             "course-market-api",
	})
}

func TestAuthServiceRegisterAndLogin(t *testing.T) {
	repo := &stubUserStore{}
	svc := newAuthFixture(repo)

	registered, err := svc.Register(context.Background(), models.RegisterRequest{
		Email:    "Student@Example.com",
		Password: "secret123",
		FullName: "Student One",
	})
	require.NoError(t, err)
	assert.Equal(t, models.RoleStudent, registered.User.Role)
	assert.NotEmpty(t, registered.AccessToken)
	assert.NotEmpty(t, registered.RefreshToken)

	logged, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "student@example.com",
		Password: "secret123",
	})
	require.NoError(t, err)
	assert.Equal(t, registered.User.ID, logged.User.ID)

	claims, err := svc.ValidateToken(logged.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, registered.User.ID, claims.UserID)
	assert.Equal(t, models.RoleStudent, claims.Role)
}

func TestAuthServiceRegisterDuplicateEmail(t *testing.T) {
	repo := &stubUserStore{}
	svc := newAuthFixture(repo)

	_, err := svc.Register(context.Background(), models.RegisterRequest{
		Email: "a@example.com", Password: "secret123", FullName: "A",
	})
	require.NoError(t, err)

	_, err = svc.Register(context.Background(), models.RegisterRequest{
		Email: "a@example.com", Password: "secret123", FullName: "A",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceLoginWrongPassword(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("correct"), bcrypt.DefaultCost)
	require.NoError(t, err)
	repo := &stubUserStore{users: map[string]models.User{
		"u1": {ID: "u1", Email: "a@example.com", PasswordHash: string(hash), Active: true, Role: models.RoleStudent},
	}}
	svc := newAuthFixture(repo)

	_, err = svc.Login(context.Background(), models.LoginRequest{Email: "a@example.com", Password: "wrong"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceRefreshRotatesToken(t *testing.T) {
	repo := &stubUserStore{}
	svc := newAuthFixture(repo)

	registered, err := svc.Register(context.Background(), models.RegisterRequest{
		Email: "a@example.com", Password: "secret123", FullName: "A",
	})
	require.NoError(t, err)

	refreshed, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: registered.RefreshToken})
	require.NoError(t, err)
	assert.NotEqual(t, registered.RefreshToken, refreshed.RefreshToken)
	assert.NotEmpty(t, repo.revoked)
}

func TestAuthServiceRefreshRejectsRevokedToken(t *testing.T) {
	repo := &stubUserStore{
		users: map[string]models.User{"u1": {ID: "u1", Active: true}},
		tokens: map[string]models.RefreshToken{
			"revoked-token": {ID: "t1", UserID: "u1", Token: "revoked-token", Revoked: true, ExpiresAt: time.Now().Add(time.Hour)},
		},
	}
	svc := newAuthFixture(repo)

	_, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: "revoked-token"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}
