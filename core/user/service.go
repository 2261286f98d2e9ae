// Package user handles registration, login and profiles.
package user

import (
	"context"
	"errors"
	"net/mail"
	"regexp"
	"strings"

	"mixflow/core/apperr"
	"mixflow/core/auth"
	"mixflow/logger"
	"mixflow/model"
	"mixflow/repository"

	"gorm.io/gorm"
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]{3,50}$`)

const minPasswordLength = 8

// Service 用户业务逻辑
type Service struct {
	users        repository.UserRepository
	issuer       *auth.Issuer
	bcryptRounds int
}

// NewService creates a Service.
func NewService(users repository.UserRepository, issuer *auth.Issuer, bcryptRounds int) *Service {
	return &Service{users: users, issuer: issuer, bcryptRounds: bcryptRounds}
}

// RegisterInput represents the registration request body
type RegisterInput struct {
	Email     string  `json:"email"`
	Username  string  `json:"username"`
	Password  string  `json:"password"`
	FirstName *string `json:"firstName"`
	LastName  *string `json:"lastName"`
	UserType  string  `json:"userType"`
}

// LoginInput represents the login request body
type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func validateUsername(name string) error {
	if !usernamePattern.MatchString(name) {
		return apperr.Validation("Username must be 3-50 letters, digits or underscores")
	}
	return nil
}

// Register creates an account and returns it with a signed token.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*model.User, string, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	username := strings.TrimSpace(in.Username)
	if _, err := mail.ParseAddress(email); err != nil || !strings.Contains(email, "@") {
		return nil, "", apperr.Validation("A valid email is required")
	}
	if err := validateUsername(username); err != nil {
		return nil, "", err
	}
	if len(in.Password) < minPasswordLength {
		return nil, "", apperr.Validation("Password must be at least 8 characters")
	}
	userType := strings.ToUpper(strings.TrimSpace(in.UserType))
	switch userType {
	case "":
		userType = model.UserTypeListener
	case model.UserTypeListener, model.UserTypeArtist:
	default:
		return nil, "", apperr.Validation("userType must be LISTENER or ARTIST")
	}

	exists, err := s.users.ExistsByEmailOrUsername(ctx, email, username)
	if err != nil {
		return nil, "", apperr.Database(err)
	}
	if exists {
		return nil, "", apperr.Conflict(apperr.CodeUserExists, "User with this email or username already exists")
	}

	hash, err := auth.HashPassword(in.Password, s.bcryptRounds)
	if err != nil {
		return nil, "", apperr.Internal(err)
	}
	u := &model.User{
		Email:        email,
		Username:     username,
		PasswordHash: hash,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		UserType:     userType,
		IsActive:     true,
	}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, "", apperr.Conflict(apperr.CodeUserExists, "User with this email or username already exists")
		}
		return nil, "", apperr.Database(err)
	}

	token, err := s.issuer.GenerateToken(u.ID, u.Email, u.UserType)
	if err != nil {
		return nil, "", apperr.Internal(err)
	}
	logger.Info("[Register] 注册成功", logger.String("userId", u.ID))
	return u, token, nil
}

// Login verifies credentials. Unknown emails, wrong passwords and inactive
// accounts are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, in LoginInput) (*model.User, string, error) {
	invalid := apperr.Unauthorized(apperr.CodeInvalidCredentials, "Invalid email or password")
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if email == "" || in.Password == "" {
		return nil, "", apperr.Validation("Email and password are required")
	}

	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, "", apperr.Database(err)
	}
	if u == nil || !u.IsActive || !auth.CheckPasswordHash(in.Password, u.PasswordHash) {
		logger.Warn("[Login] 登录失败", logger.String("email", email))
		return nil, "", invalid
	}

	token, err := s.issuer.GenerateToken(u.ID, u.Email, u.UserType)
	if err != nil {
		return nil, "", apperr.Internal(err)
	}
	return u, token, nil
}

// Profile returns the user with their artist profile.
func (s *Service) Profile(ctx context.Context, userID string) (*model.User, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, apperr.Database(err)
	}
	if u == nil {
		return nil, apperr.ErrUserNotFound
	}
	return u, nil
}

// UpdateInput is the PATCH /user/profile body.
type UpdateInput struct {
	FirstName *string `json:"firstName"`
	LastName  *string `json:"lastName"`
	Username  *string `json:"username"`
}

// UpdateProfile applies the provided fields.
func (s *Service) UpdateProfile(ctx context.Context, userID string, in UpdateInput) (*model.User, error) {
	current, err := s.Profile(ctx, userID)
	if err != nil {
		return nil, err
	}
	update := repository.ProfileUpdate{FirstName: in.FirstName, LastName: in.LastName}
	if in.Username != nil {
		name := strings.TrimSpace(*in.Username)
		if err := validateUsername(name); err != nil {
			return nil, err
		}
		if name != current.Username {
			other, err := s.users.GetByUsername(ctx, name)
			if err != nil {
				return nil, apperr.Database(err)
			}
			if other != nil {
				return nil, apperr.Conflict(apperr.CodeUsernameTaken, "Username is already taken")
			}
			update.Username = &name
		}
	}
	if err := s.users.UpdateProfile(ctx, userID, update); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperr.Conflict(apperr.CodeUsernameTaken, "Username is already taken")
		}
		return nil, apperr.Database(err)
	}
	return s.Profile(ctx, userID)
}
