// Package auth handles accounts, password checks and session tokens.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/patrickwarner/civicreport/internal/db"
	"github.com/patrickwarner/civicreport/internal/models"
)

var (
	ErrInvalidCredentials = errors.New("Invalid credentials.")
	ErrMissingCredentials = errors.New("Email and password are required.")
	ErrMissingFields      = errors.New("All fields are required.")
	ErrPasswordMismatch   = errors.New("Passwords do not match.")
	ErrInvalidEmail       = errors.New("Enter a valid email address.")

	ErrDuplicateUsername = models.ErrDuplicateUsername
	ErrDuplicateEmail    = models.ErrDuplicateEmail
)

// RegisterInput is the sign-up form.
type RegisterInput struct {
	Email           string `json:"email"`
	Username        string `json:"username"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

// AccountUpdate changes profile fields. Blank values leave the field as is.
type AccountUpdate struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
}

// Service implements registration, login and account updates.
type Service struct {
	Users db.UserStore
}

// Register creates a non-staff account.
func (s *Service) Register(ctx context.Context, in RegisterInput) (models.User, error) {
	email := strings.TrimSpace(in.Email)
	username := strings.TrimSpace(in.Username)
	if email == "" || username == "" || in.Password == "" || in.ConfirmPassword == "" {
		return models.User{}, ErrMissingFields
	}
	if in.Password != in.ConfirmPassword {
		return models.User{}, ErrPasswordMismatch
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return models.User{}, ErrInvalidEmail
	}
	if _, err := s.Users.GetUserByUsername(ctx, username); err == nil {
		return models.User{}, ErrDuplicateUsername
	} else if !errors.Is(err, models.ErrNotFound) {
		return models.User{}, err
	}
	if _, err := s.Users.GetUserByEmail(ctx, email); err == nil {
		return models.User{}, ErrDuplicateEmail
	} else if !errors.Is(err, models.ErrNotFound) {
		return models.User{}, err
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return models.User{}, err
	}
	u := models.User{Username: username, Email: email, PasswordHash: hash}
	if err := s.Users.CreateUser(ctx, &u); err != nil {
		return models.User{}, err
	}
	return u, nil
}

// Login authenticates by email and password.
func (s *Service) Login(ctx context.Context, email, password string) (models.User, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return models.User{}, ErrMissingCredentials
	}
	u, err := s.Users.GetUserByEmail(ctx, email)
	if errors.Is(err, models.ErrNotFound) {
		return models.User{}, ErrInvalidCredentials
	}
	if err != nil {
		return models.User{}, fmt.Errorf("login lookup: %w", err)
	}
	if !CheckPassword(u.PasswordHash, password) {
		return models.User{}, ErrInvalidCredentials
	}
	return u, nil
}

// UpdateAccount applies the non-blank fields of upd to user id.
func (s *Service) UpdateAccount(ctx context.Context, id int64, upd AccountUpdate) (models.User, error) {
	u, err := s.Users.GetUser(ctx, id)
	if err != nil {
		return models.User{}, err
	}
	if v := strings.TrimSpace(upd.FirstName); v != "" {
		u.FirstName = v
	}
	if v := strings.TrimSpace(upd.LastName); v != "" {
		u.LastName = v
	}
	if v := strings.TrimSpace(upd.Email); v != "" {
		if _, err := mail.ParseAddress(v); err != nil {
			return models.User{}, ErrInvalidEmail
		}
		u.Email = v
	}
	if err := s.Users.UpdateUser(ctx, u); err != nil {
		return models.User{}, err
	}
	return u, nil
}
