package api

import (
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/patrickwarner/civicreport/internal/auth"
	"github.com/patrickwarner/civicreport/internal/models"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	User      models.User `json:"user"`
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expires_at"`
	IsStaff   bool        `json:"is_staff"`
	// Redirect tells browser clients where to go next.
	Redirect string `json:"redirect"`
}

func (s *Server) startSession(w http.ResponseWriter, u models.User, status int) error {
	tok, exp, err := s.Sessions.Issue(u)
	if err != nil {
		return err
	}
	s.Auth.SetSessionCookie(w, tok, exp)
	redirect := "/dashboard"
	if u.IsStaff {
		redirect = "/admin/dashboard"
	}
	writeJSON(w, status, sessionResponse{User: u, Token: tok, ExpiresAt: exp, IsStaff: u.IsStaff, Redirect: redirect})
	return nil
}

// RegisterHandler creates an account and signs the new user in.
func (s *Server) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "register"
	const method = "POST"

	var in auth.RegisterInput
	if err := decodeBody(w, r, &in, func(get func(string) string) {
		in = auth.RegisterInput{Email: get("email"), Username: get("username"), Password: get("password"), ConfirmPassword: get("confirm_password")}
	}); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		s.observe(endpoint, method, http.StatusBadRequest, start)
		return
	}

	u, err := s.Accounts.Register(r.Context(), in)
	switch {
	case errors.Is(err, auth.ErrDuplicateUsername), errors.Is(err, auth.ErrDuplicateEmail):
		s.Metrics.IncrementAuthAttempts("register", "duplicate")
		writeError(w, http.StatusConflict, err.Error())
		s.observe(endpoint, method, http.StatusConflict, start)
		return
	case errors.Is(err, auth.ErrMissingFields), errors.Is(err, auth.ErrPasswordMismatch), errors.Is(err, auth.ErrInvalidEmail):
		s.Metrics.IncrementAuthAttempts("register", "invalid")
		writeError(w, http.StatusBadRequest, err.Error())
		s.observe(endpoint, method, http.StatusBadRequest, start)
		return
	case err != nil:
		s.logger(r).Error("register user", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		s.observe(endpoint, method, http.StatusInternalServerError, start)
		return
	}

	s.Metrics.IncrementAuthAttempts("register", "success")
	if err := s.startSession(w, u, http.StatusCreated); err != nil {
		s.logger(r).Error("issue session", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		s.observe(endpoint, method, http.StatusInternalServerError, start)
		return
	}
	s.observe(endpoint, method, http.StatusCreated, start)
}

// LoginHandler authenticates by email and password.
func (s *Server) LoginHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "login"
	const method = "POST"

	var in loginRequest
	if err := decodeBody(w, r, &in, func(get func(string) string) {
		in = loginRequest{Email: get("email"), Password: get("password")}
	}); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		s.observe(endpoint, method, http.StatusBadRequest, start)
		return
	}

	u, err := s.Accounts.Login(r.Context(), in.Email, in.Password)
	switch {
	case errors.Is(err, auth.ErrMissingCredentials):
		s.Metrics.IncrementAuthAttempts("login", "invalid")
		writeError(w, http.StatusBadRequest, err.Error())
		s.observe(endpoint, method, http.StatusBadRequest, start)
		return
	case errors.Is(err, auth.ErrInvalidCredentials):
		s.Metrics.IncrementAuthAttempts("login", "failure")
		writeError(w, http.StatusUnauthorized, err.Error())
		s.observe(endpoint, method, http.StatusUnauthorized, start)
		return
	case err != nil:
		s.logger(r).Error("login", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		s.observe(endpoint, method, http.StatusInternalServerError, start)
		return
	}

	s.Metrics.IncrementAuthAttempts("login", "success")
	if err := s.startSession(w, u, http.StatusOK); err != nil {
		s.logger(r).Error("issue session", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		s.observe(endpoint, method, http.StatusInternalServerError, start)
		return
	}
	s.observe(endpoint, method, http.StatusOK, start)
}

// LogoutHandler clears the session cookie.
func (s *Server) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	s.Auth.ClearSessionCookie(w)
	writeJSON(w, http.StatusOK, map[string]string{"message": "You have been logged out."})
	s.observe("logout", "POST", http.StatusOK, start)
}

// AccountHandler returns the signed-in user.
func (s *Server) AccountHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "account"
	const method = "GET"

	u, _ := auth.UserFromContext(r.Context())
	n, err := s.Store.CountByReporter(r.Context(), u.ID)
	if err != nil {
		s.logger(r).Error("count reports", zap.Int64("user_id", u.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		s.observe(endpoint, method, http.StatusInternalServerError, start)
		return
	}
	writeJSON(w, http.StatusOK, accountView{User: u, ReportCount: n})
	s.observe(endpoint, method, http.StatusOK, start)
}

type accountView struct {
	models.User
	ReportCount int `json:"report_count"`
}

type accountResponse struct {
	Message string      `json:"message"`
	User    models.User `json:"user"`
}

// UpdateAccountHandler changes profile fields. Blank fields are left as they are.
func (s *Server) UpdateAccountHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "account"
	const method = "PUT"

	u, _ := auth.UserFromContext(r.Context())
	var in auth.AccountUpdate
	if err := decodeBody(w, r, &in, func(get func(string) string) {
		in = auth.AccountUpdate{FirstName: get("first_name"), LastName: get("last_name"), Email: get("email")}
	}); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		s.observe(endpoint, method, http.StatusBadRequest, start)
		return
	}

	updated, err := s.Accounts.UpdateAccount(r.Context(), u.ID, in)
	switch {
	case errors.Is(err, auth.ErrInvalidEmail):
		writeError(w, http.StatusBadRequest, err.Error())
		s.observe(endpoint, method, http.StatusBadRequest, start)
		return
	case errors.Is(err, models.ErrDuplicateEmail):
		writeError(w, http.StatusConflict, err.Error())
		s.observe(endpoint, method, http.StatusConflict, start)
		return
	case err != nil:
		s.logger(r).Error("update account", zap.Int64("user_id", u.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		s.observe(endpoint, method, http.StatusInternalServerError, start)
		return
	}
	writeJSON(w, http.StatusOK, accountResponse{Message: "Account updated successfully!", User: updated})
	s.observe(endpoint, method, http.StatusOK, start)
}
