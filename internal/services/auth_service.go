package services

import (
	"context"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/go-faster/errors"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"storefront/internal/apperror"
	"storefront/internal/models"
	"storefront/internal/repositories"
)

// Claims is what a verified token says about its holder.
type Claims struct {
	UserID   string
	Username string
	Role     models.Role
}

// Admin reports whether the holder may use admin endpoints.
func (c Claims) Admin() bool { return c.Role == models.RoleAdmin }

// Viewer converts the claims into a read scope.
func (c Claims) Viewer() Viewer { return Viewer{UserID: c.UserID, Admin: c.Admin()} }

// AuthService handles registration, login and token verification.
type AuthService struct {
	userRepo  repositories.UserRepository
	jwtSecret []byte
	lifetime  time.Duration
	logger    *zap.Logger
	validate  *validator.Validate
	now       func() time.Time
}

// NewAuthService creates a new AuthService. A zero lifetime means 24 hours.
func NewAuthService(userRepo repositories.UserRepository, jwtSecret string, lifetime time.Duration, logger *zap.Logger) *AuthService {
	if lifetime <= 0 {
		lifetime = 24 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		userRepo:  userRepo,
		jwtSecret: []byte(jwtSecret),
		lifetime:  lifetime,
		logger:    logger.Named("auth"),
		validate:  validator.New(),
		now:       time.Now,
	}
}

// RegisterUser stores a new customer with a hashed password. The password
// field of user is replaced by its hash.
func (s *AuthService) RegisterUser(ctx context.Context, user *models.User) error {
	if err := s.validate.Struct(user); err != nil {
		return apperror.FromValidation(err)
	}

	if _, err := s.userRepo.GetByUsername(ctx, user.Username); err == nil {
		return apperror.Newf(apperror.KindConflict, apperror.CodeUsernameTaken, "username '%s' already taken", user.Username)
	} else if !errors.Is(err, repositories.ErrNotFound) {
		return storeError(err, nil)
	}
	if _, err := s.userRepo.GetByEmail(ctx, user.Email); err == nil {
		return apperror.Newf(apperror.KindConflict, apperror.CodeEmailTaken, "email '%s' already registered", user.Email)
	} else if !errors.Is(err, repositories.ErrNotFound) {
		return storeError(err, nil)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(user.Password), bcrypt.DefaultCost)
	if err != nil {
		return errors.Wrap(err, "hash password")
	}
	user.Password = string(hashed)
	// Self-registration never grants admin.
	user.Role = models.RoleCustomer

	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, repositories.ErrDuplicate) {
			return apperror.New(apperror.KindConflict, apperror.CodeUsernameTaken, "username or email already registered")
		}
		return storeError(err, nil)
	}
	s.logger.Info("user registered", zap.String("user_id", user.ID), zap.String("username", user.Username))
	return nil
}

func invalidCredentials() error {
	return apperror.New(apperror.KindUnauthorized, apperror.CodeInvalidCredentials, "invalid credentials")
}

// LoginUser checks the credentials and returns a signed token.
func (s *AuthService) LoginUser(ctx context.Context, username, password string) (string, error) {
	user, err := s.userRepo.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return "", invalidCredentials()
		}
		return "", storeError(err, nil)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return "", invalidCredentials()
	}

	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id":  user.ID,
		"username": user.Username,
		"role":     string(user.Role),
		"exp":      now.Add(s.lifetime).Unix(),
		"iat":      now.Unix(),
	})
	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", errors.Wrap(err, "sign token")
	}
	return signed, nil
}

// ValidateToken verifies an HS256 token and extracts its claims.
func (s *AuthService) ValidateToken(tokenString string) (Claims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		s.logger.Debug("token rejected", zap.Error(err))
		return Claims{}, apperror.New(apperror.KindUnauthorized, apperror.CodeUnauthorized, "invalid token").Wrap(err)
	}

	mc, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return Claims{}, apperror.New(apperror.KindUnauthorized, apperror.CodeUnauthorized, "invalid token")
	}
	userID, _ := mc["user_id"].(string)
	if userID == "" {
		return Claims{}, apperror.New(apperror.KindUnauthorized, apperror.CodeUnauthorized, "invalid token: missing subject")
	}
	username, _ := mc["username"].(string)
	role, _ := mc["role"].(string)
	if role == "" {
		role = string(models.RoleCustomer)
	}
	return Claims{UserID: userID, Username: username, Role: models.Role(role)}, nil
}
