package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/exam-market-api/internal/models"
	"github.com/noah-isme/exam-market-api/pkg/config"
	appErrors "github.com/noah-isme/exam-market-api/pkg/errors"
)

type mockUserStore struct {
	userByEmail      *models.User
	emailTaken       bool
	created          []*models.User
	refreshTokens    map[string]*models.RefreshToken
	lastLoginUpdated bool
}

func (m *mockUserStore) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.userByEmail == nil {
		return nil, sql.ErrNoRows
	}
	return m.userByEmail, nil
}

func (m *mockUserStore) FindByID(ctx context.Context, id string) (*models.User, error) {
	if m.userByEmail != nil && m.userByEmail.ID == id {
		return m.userByEmail, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockUserStore) EmailExists(ctx context.Context, email string) (bool, error) {
	return m.emailTaken, nil
}

func (m *mockUserStore) Create(ctx context.Context, user *models.User) error {
	user.ID = "user-1"
	m.created = append(m.created, user)
	return nil
}

func (m *mockUserStore) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	m.lastLoginUpdated = true
	return nil
}

func (m *mockUserStore) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	if m.refreshTokens == nil {
		m.refreshTokens = make(map[string]*models.RefreshToken)
	}
	if token.ID == "" {
		token.ID = "rt-" + token.Token
	}
	m.refreshTokens[token.Token] = token
	return nil
}

func (m *mockUserStore) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	rt, ok := m.refreshTokens[token]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return rt, nil
}

func (m *mockUserStore) RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error {
	for _, token := range m.refreshTokens {
		if token.ID == id {
			token.Revoked = true
			token.RevokedAt = &revokedAt
		}
	}
	return nil
}

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{
		Secret:            "secret",
		Expiration:        time.Hour,
		RefreshExpiration: 24 * time.Hour,
	}
}

func TestAuthServiceSignupSuccess(t *testing.T) {
	store := &mockUserStore{}
	svc := NewAuthService(store, testJWTConfig(), zap.NewNop())

	info, err := svc.Signup(context.Background(), models.SignupRequest{
		Email:    "user@example.com",
		Username: "tester",
		Password: "password1",
	})
	require.NoError(t, err)
	assert.Equal(t, "user-1", info.ID)
	require.Len(t, store.created, 1)
	assert.NotEqual(t, "password1", store.created[0].PasswordHash)
	assert.True(t, store.created[0].Active)
}

func TestAuthServiceSignupDuplicateEmail(t *testing.T) {
	store := &mockUserStore{emailTaken: true}
	svc := NewAuthService(store, testJWTConfig(), zap.NewNop())

	_, err := svc.Signup(context.Background(), models.SignupRequest{
		Email:    "user@example.com",
		Username: "tester",
		Password: "password1",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceSignupWeakPassword(t *testing.T) {
	svc := NewAuthService(&mockUserStore{}, testJWTConfig(), zap.NewNop())

	// Letters only, no digit.
	_, err := svc.Signup(context.Background(), models.SignupRequest{
		Email:    "user@example.com",
		Username: "tester",
		Password: "passwords",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceLoginSuccess(t *testing.T) {
	hash, _ := bcrypt.GenerateFromPassword([]byte("password1"), bcrypt.DefaultCost)
	store := &mockUserStore{userByEmail: &models.User{ID: "user-1", Email: "user@example.com", Username: "tester", PasswordHash: string(hash), Active: true}}
	svc := NewAuthService(store, testJWTConfig(), zap.NewNop())

	res, err := svc.Login(context.Background(), models.LoginRequest{Email: "user@example.com", Password: "password1"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)
	assert.NotEmpty(t, res.RefreshToken)
	assert.True(t, store.lastLoginUpdated)

	claims, err := svc.ValidateToken(res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "tester", claims.Username)
}

func TestAuthServiceLoginWrongPassword(t *testing.T) {
	hash, _ := bcrypt.GenerateFromPassword([]byte("password1"), bcrypt.DefaultCost)
	store := &mockUserStore{userByEmail: &models.User{ID: "user-1", Email: "user@example.com", PasswordHash: string(hash), Active: true}}
	svc := NewAuthService(store, testJWTConfig(), zap.NewNop())

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "user@example.com", Password: "wrong"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceLoginUnknownEmail(t *testing.T) {
	svc := NewAuthService(&mockUserStore{}, testJWTConfig(), zap.NewNop())

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "nobody@example.com", Password: "password1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceLoginInactive(t *testing.T) {
	hash, _ := bcrypt.GenerateFromPassword([]byte("password1"), bcrypt.DefaultCost)
	store := &mockUserStore{userByEmail: &models.User{ID: "user-1", Email: "user@example.com", PasswordHash: string(hash), Active: false}}
	svc := NewAuthService(store, testJWTConfig(), zap.NewNop())

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "user@example.com", Password: "password1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceRefreshRotates(t *testing.T) {
	hash, _ := bcrypt.GenerateFromPassword([]byte("password1"), bcrypt.DefaultCost)
	store := &mockUserStore{userByEmail: &models.User{ID: "user-1", Email: "user@example.com", Username: "tester", PasswordHash: string(hash), Active: true}}
	svc := NewAuthService(store, testJWTConfig(), zap.NewNop())

	login, err := svc.Login(context.Background(), models.LoginRequest{Email: "user@example.com", Password: "password1"})
	require.NoError(t, err)

	res, err := svc.Refresh(context.Background(), models.RefreshTokenRequest{RefreshToken: login.RefreshToken})
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)
	assert.NotEqual(t, login.RefreshToken, res.RefreshToken)

	// The presented token is revoked and cannot be replayed.
	assert.True(t, store.refreshTokens[login.RefreshToken].Revoked)
	_, err = svc.Refresh(context.Background(), models.RefreshTokenRequest{RefreshToken: login.RefreshToken})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceRefreshExpired(t *testing.T) {
	store := &mockUserStore{refreshTokens: map[string]*models.RefreshToken{
		"stale": {ID: "rt-1", UserID: "user-1", Token: "stale", ExpiresAt: time.Now().Add(-time.Hour)},
	}}
	svc := NewAuthService(store, testJWTConfig(), zap.NewNop())

	_, err := svc.Refresh(context.Background(), models.RefreshTokenRequest{RefreshToken: "stale"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceValidateTokenRejectsGarbage(t *testing.T) {
	svc := NewAuthService(&mockUserStore{}, testJWTConfig(), zap.NewNop())

	_, err := svc.ValidateToken("not-a-token")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}
