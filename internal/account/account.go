// Package account handles signup, login and profile maintenance.
package account

import (
	"context"
	"net/mail"
	"strings"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"

	"chatrelay/internal/apperr"
	"chatrelay/internal/auth"
	"chatrelay/internal/blob"
	"chatrelay/internal/model"
	"chatrelay/internal/store"
)

type UserStore interface {
	Create(ctx context.Context, u *model.User) error
	ByID(ctx context.Context, id string) (*model.User, error)
	ByEmail(ctx context.Context, email string) (*model.User, error)
	Search(ctx context.Context, excludeID, query string) ([]model.User, error)
	UpdateProfile(ctx context.Context, id, fullName, bio, profilePic string) (*model.User, error)
}

type TokenIssuer interface {
	Issue(userID string) (string, error)
}

type SignupCommand struct {
	FullName string
	Email    string
	Password string
	Bio      string
}

type ProfileCommand struct {
	FullName   string
	Bio        string
	ProfilePic []byte
}

// Session is what a successful signup or login hands back.
type Session struct {
	User  *model.User
	Token string
}

const minPasswordLen = 6

type Service struct {
	users  UserStore
	tokens TokenIssuer
	blobs  blob.Uploader
}

func NewService(users UserStore, tokens TokenIssuer, blobs blob.Uploader) *Service {
	return &Service{users: users, tokens: tokens, blobs: blobs}
}

func (s *Service) Signup(ctx context.Context, cmd SignupCommand) (*Session, error) {
	cmd.FullName = strings.TrimSpace(cmd.FullName)
	cmd.Email = normalizeEmail(cmd.Email)
	cmd.Bio = strings.TrimSpace(cmd.Bio)

	if cmd.FullName == "" || cmd.Email == "" || cmd.Password == "" || cmd.Bio == "" {
		return nil, apperr.InvalidRequest("all fields are required")
	}
	if _, err := mail.ParseAddress(cmd.Email); err != nil {
		return nil, apperr.InvalidRequest("invalid email address")
	}
	if len(cmd.Password) < minPasswordLen {
		return nil, apperr.InvalidRequest("password must be at least 6 characters")
	}

	hash, err := auth.HashPassword(cmd.Password)
	if err != nil {
		return nil, apperr.Internal("signup failed", err)
	}

	u := &model.User{
		FullName:     cmd.FullName,
		Email:        cmd.Email,
		Bio:          cmd.Bio,
		PasswordHash: hash,
	}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, store.ErrEmailTaken) {
			return nil, apperr.Conflict("account already exists")
		}
		return nil, apperr.Persistence("signup failed", err)
	}

	jww.INFO.Printf("[account] ✅ created user %s", u.ID)
	return s.session(u)
}

func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	u, err := s.users.ByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return nil, apperr.Unauthorized("invalid credentials")
		}
		return nil, apperr.Persistence("login failed", err)
	}
	if !auth.CheckPassword(u.PasswordHash, password) {
		return nil, apperr.Unauthorized("invalid credentials")
	}
	return s.session(u)
}

// Get returns the user behind an authenticated request.
func (s *Service) Get(ctx context.Context, userID string) (*model.User, error) {
	u, err := s.users.ByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return nil, apperr.Unauthorized("user no longer exists")
		}
		return nil, apperr.Persistence("failed to load user", err)
	}
	return u, nil
}

// Search lists everyone but userID, filtered by name or email when query is set.
func (s *Service) Search(ctx context.Context, userID, query string) ([]model.User, error) {
	users, err := s.users.Search(ctx, userID, query)
	if err != nil {
		return nil, apperr.Persistence("failed to fetch users", err)
	}
	return users, nil
}

// UpdateProfile changes name and bio and, if given, uploads a new avatar.
// Empty name or bio keep their current values.
func (s *Service) UpdateProfile(ctx context.Context, userID string, cmd ProfileCommand) (*model.User, error) {
	current, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	fullName := strings.TrimSpace(cmd.FullName)
	if fullName == "" {
		fullName = current.FullName
	}
	bio := strings.TrimSpace(cmd.Bio)
	if bio == "" {
		bio = current.Bio
	}

	var pic string
	if len(cmd.ProfilePic) > 0 {
		pic, err = s.blobs.Upload(ctx, cmd.ProfilePic)
		if err != nil {
			return nil, apperr.UpstreamStorage(err)
		}
	}

	u, err := s.users.UpdateProfile(ctx, userID, fullName, bio, pic)
	if err != nil {
		return nil, apperr.Persistence("profile update failed", err)
	}
	return u, nil
}

func (s *Service) session(u *model.User) (*Session, error) {
	token, err := s.tokens.Issue(u.ID)
	if err != nil {
		return nil, apperr.Internal("failed to issue token", err)
	}
	return &Session{User: u, Token: token}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
