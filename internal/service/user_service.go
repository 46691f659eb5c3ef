package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/vbonduro/fridgecam/internal/apperr"
	"github.com/vbonduro/fridgecam/internal/auth"
	"github.com/vbonduro/fridgecam/internal/domain"
	"github.com/vbonduro/fridgecam/internal/store"
)

const minPasswordLen = 8

// userRepository is the subset of store.UserStore that UserService requires.
type userRepository interface {
	Create(ctx context.Context, username, passwordHash string, isStaff bool) (*domain.User, error)
	GetByID(ctx context.Context, id int64) (*domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
}

type UserService struct {
	users  userRepository
	tokens *auth.Tokens
	logger *slog.Logger
}

func NewUserService(users userRepository, tokens *auth.Tokens, logger *slog.Logger) *UserService {
	return &UserService{users: users, tokens: tokens, logger: logger}
}

// Register creates a regular user.
func (s *UserService) Register(ctx context.Context, username, password string) (*domain.User, error) {
	return s.CreateUser(ctx, username, password, false)
}

// CreateUser creates a user, optionally with staff rights.
func (s *UserService) CreateUser(ctx context.Context, username, password string, isStaff bool) (*domain.User, error) {
	const op = "service.CreateUser"

	username = strings.TrimSpace(username)
	if n := utf8.RuneCountInString(username); n < 3 || n > 150 {
		return nil, invalid(op, "username must be 3 to 150 characters")
	}
	if utf8.RuneCountInString(password) < minPasswordLen {
		return nil, invalid(op, "password must be at least %d characters", minPasswordLen)
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}
	user, err := s.users.Create(ctx, username, hash, isStaff)
	if errors.Is(err, store.ErrDuplicate) {
		return nil, apperr.Errorf(apperr.KindConflict, op, "username %q is taken", username)
	}
	if err != nil {
		return nil, storeError(op, err)
	}
	s.logger.Info("user created", "user_id", user.ID, "staff", isStaff)
	return user, nil
}

// Authenticate resolves the account behind a verified token. Rights come from
// the stored row, so a demoted or deleted user loses access immediately.
func (s *UserService) Authenticate(ctx context.Context, claims *auth.Claims) (Actor, error) {
	const op = "service.Authenticate"

	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		return Actor{}, storeError(op, err)
	}
	if user == nil {
		return Actor{}, apperr.Forbidden(op, auth.ErrInvalidToken)
	}
	return Actor{UserID: user.ID, IsStaff: user.IsStaff}, nil
}

// Login checks the credentials and returns a signed bearer token.
func (s *UserService) Login(ctx context.Context, username, password string) (string, *domain.User, error) {
	const op = "service.Login"

	user, err := s.users.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return "", nil, storeError(op, err)
	}
	if user == nil || !auth.CheckPassword(user.PasswordHash, password) {
		return "", nil, apperr.Forbidden(op, auth.ErrInvalidCredentials)
	}
	token, err := s.tokens.Issue(user.ID, user.IsStaff)
	if err != nil {
		return "", nil, err
	}
	s.logger.Info("user logged in", "user_id", user.ID)
	return token, user, nil
}
