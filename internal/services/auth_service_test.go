package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"storefront/internal/apperror"
	"storefront/internal/models"
	"storefront/internal/repositories"
	"storefront/internal/services"
)

const testJWTSecret = "test_jwt_secret"

// MockUserRepository is a mock implementation of repositories.UserRepository
type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) Create(ctx context.Context, user *models.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	args := m.Called(ctx, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func TestAuthService_RegisterUser(t *testing.T) {
	ctx := context.Background()
	mockRepo := new(MockUserRepository)
	authService := services.NewAuthService(mockRepo, testJWTSecret, time.Hour, nil)

	newUser := func() *models.User {
		return &models.User{Username: "testuser", Email: "test@example.com", Password: "password123", Role: models.RoleAdmin}
	}

	// Successful registration
	user := newUser()
	mockRepo.On("GetByUsername", ctx, "testuser").Return(nil, repositories.ErrNotFound).Once()
	mockRepo.On("GetByEmail", ctx, "test@example.com").Return(nil, repositories.ErrNotFound).Once()
	mockRepo.On("Create", ctx, mock.AnythingOfType("*models.User")).Return(nil).Once()

	require.NoError(t, authService.RegisterUser(ctx, user))
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.Password), []byte("password123")))
	assert.Equal(t, models.RoleCustomer, user.Role, "self-registration must not grant admin")
	mockRepo.AssertExpectations(t)

	// Username already taken
	mockRepo.On("GetByUsername", ctx, "testuser").Return(&models.User{ID: "1"}, nil).Once()
	err := authService.RegisterUser(ctx, newUser())
	require.Error(t, err)
	assert.Equal(t, apperror.CodeUsernameTaken, apperror.CodeOf(err))
	assert.Equal(t, apperror.KindConflict, apperror.KindOf(err))
	mockRepo.AssertExpectations(t)

	// Email already registered
	mockRepo.On("GetByUsername", ctx, "testuser").Return(nil, repositories.ErrNotFound).Once()
	mockRepo.On("GetByEmail", ctx, "test@example.com").Return(&models.User{ID: "1"}, nil).Once()
	err = authService.RegisterUser(ctx, newUser())
	require.Error(t, err)
	assert.Equal(t, apperror.CodeEmailTaken, apperror.CodeOf(err))
	assert.Contains(t, err.Error(), "email 'test@example.com' already registered")
	mockRepo.AssertExpectations(t)
}

func TestAuthService_RegisterUserValidation(t *testing.T) {
	mockRepo := new(MockUserRepository)
	authService := services.NewAuthService(mockRepo, testJWTSecret, 0, nil)

	err := authService.RegisterUser(context.Background(), &models.User{Username: "ab", Email: "not-an-email", Password: "123"})
	require.Error(t, err)
	assert.Equal(t, apperror.CodeValidation, apperror.CodeOf(err))

	appErr, ok := apperror.As(err)
	require.True(t, ok)
	assert.Contains(t, appErr.Details, "User.Email")
	mockRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestAuthService_LoginUser(t *testing.T) {
	ctx := context.Background()
	mockRepo := new(MockUserRepository)
	authService := services.NewAuthService(mockRepo, testJWTSecret, time.Hour, nil)

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	require.NoError(t, err)
	user := &models.User{
		ID:       "user-123",
		Username: "testuser",
		Email:    "test@example.com",
		Password: string(hashedPassword),
		Role:     models.RoleAdmin,
	}

	// Successful login
	mockRepo.On("GetByUsername", ctx, user.Username).Return(user, nil).Once()
	token, err := authService.LoginUser(ctx, "testuser", "password123")
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	parsedToken, err := jwt.Parse(token, func(token *jwt.Token) (interface{}, error) {
		return []byte(testJWTSecret), nil
	})
	require.NoError(t, err)
	claims, ok := parsedToken.Claims.(jwt.MapClaims)
	require.True(t, ok)
	assert.Equal(t, user.ID, claims["user_id"])
	assert.Equal(t, user.Username, claims["username"])
	assert.Equal(t, "ADMIN", claims["role"])
	mockRepo.AssertExpectations(t)

	// Wrong password
	mockRepo.On("GetByUsername", ctx, user.Username).Return(user, nil).Once()
	_, err = authService.LoginUser(ctx, "testuser", "wrongpassword")
	require.Error(t, err)
	assert.Equal(t, apperror.CodeInvalidCredentials, apperror.CodeOf(err))
	mockRepo.AssertExpectations(t)

	// Unknown user gets the same answer
	mockRepo.On("GetByUsername", ctx, "nonexistentuser").Return(nil, repositories.ErrNotFound).Once()
	_, err = authService.LoginUser(ctx, "nonexistentuser", "password123")
	require.Error(t, err)
	assert.Equal(t, apperror.CodeInvalidCredentials, apperror.CodeOf(err))
	assert.Equal(t, apperror.KindUnauthorized, apperror.KindOf(err))
	mockRepo.AssertExpectations(t)
}

func TestAuthService_ValidateToken(t *testing.T) {
	authService := services.NewAuthService(new(MockUserRepository), testJWTSecret, time.Hour, nil)

	sign := func(claims jwt.MapClaims, secret string) string {
		s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
		require.NoError(t, err)
		return s
	}

	// Valid token
	claims, err := authService.ValidateToken(sign(jwt.MapClaims{
		"user_id":  "user-123",
		"username": "testuser",
		"role":     "ADMIN",
		"exp":      time.Now().Add(time.Hour).Unix(),
	}, testJWTSecret))
	require.NoError(t, err)
	assert.Equal(t, "user-123", claims.UserID)
	assert.Equal(t, "testuser", claims.Username)
	assert.True(t, claims.Admin())
	assert.Equal(t, services.Viewer{UserID: "user-123", Admin: true}, claims.Viewer())

	// A token without a role is a customer token
	claims, err = authService.ValidateToken(sign(jwt.MapClaims{
		"user_id": "user-456",
		"exp":     time.Now().Add(time.Hour).Unix(),
	}, testJWTSecret))
	require.NoError(t, err)
	assert.False(t, claims.Admin())

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "invalid.token.string"},
		{"wrong secret", sign(jwt.MapClaims{"user_id": "user-123", "exp": time.Now().Add(time.Hour).Unix()}, "other")},
		{"expired", sign(jwt.MapClaims{"user_id": "user-123", "exp": time.Now().Add(-time.Hour).Unix()}, testJWTSecret)},
		{"missing subject", sign(jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()}, testJWTSecret)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := authService.ValidateToken(tt.token)
			require.Error(t, err)
			assert.Equal(t, apperror.CodeUnauthorized, apperror.CodeOf(err))
			assert.Contains(t, err.Error(), "invalid token")
		})
	}
}
