package api

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patrickwarner/civicreport/internal/auth"
	"github.com/patrickwarner/civicreport/internal/models"
)

type sessionBody struct {
	User     models.User `json:"user"`
	Token    string      `json:"token"`
	IsStaff  bool        `json:"is_staff"`
	Redirect string      `json:"redirect"`
}

func register(username, email string) map[string]string {
	return map[string]string{
		"username":         username,
		"email":            email,
		"password":         "s3cret-pass",
		"confirm_password": "s3cret-pass",
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","components":{"store":"ok"}}`, rec.Body.String())
}

func TestRegisterAndLogin(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(jsonRequest(t, http.MethodPost, "/api/auth/register", register("naledi", "naledi@example.com")))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	body := decode[sessionBody](t, rec)
	assert.Equal(t, "naledi", body.User.Username)
	assert.NotEmpty(t, body.Token)
	assert.Equal(t, "/dashboard", body.Redirect)

	var cookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == auth.CookieName {
			cookie = c
		}
	}
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)

	// The cookie alone authenticates.
	req := httptest.NewRequest(http.MethodGet, "/api/account", nil)
	req.AddCookie(cookie)
	rec = env.do(req)
	require.Equal(t, http.StatusOK, rec.Code)
	account := decode[accountView](t, rec)
	assert.Equal(t, "naledi@example.com", account.Email)
	assert.Zero(t, account.ReportCount)

	rec = env.do(jsonRequest(t, http.MethodPost, "/api/auth/register", register("naledi", "other@example.com")))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "Username already taken.", decode[errorResponse](t, rec).Error)

	rec = env.do(jsonRequest(t, http.MethodPost, "/api/auth/register", register("other", "naledi@example.com")))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "Email already registered.", decode[errorResponse](t, rec).Error)

	rec = env.do(jsonRequest(t, http.MethodPost, "/api/auth/login", loginRequest{Email: "naledi@example.com", Password: "wrong"}))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid credentials.", decode[errorResponse](t, rec).Error)

	rec = env.do(jsonRequest(t, http.MethodPost, "/api/auth/login", loginRequest{Email: "naledi@example.com"}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(jsonRequest(t, http.MethodPost, "/api/auth/login", loginRequest{Email: "naledi@example.com", Password: "s3cret-pass"}))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, decode[sessionBody](t, rec).Token)
}

func TestRegisterFromForm(t *testing.T) {
	env := newTestEnv(t)

	form := url.Values{}
	for k, v := range register("zola", "zola@example.com") {
		form.Set(k, v)
	}
	form.Set("confirm_password", "different")
	req := httptest.NewRequest(http.MethodPost, "/api/auth/register", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := env.do(req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Passwords do not match.", decode[errorResponse](t, rec).Error)
}

func TestStaffLoginRedirect(t *testing.T) {
	env := newTestEnv(t)
	hash, err := auth.HashPassword("pw")
	require.NoError(t, err)
	staff := models.User{Username: "ops", Email: "ops@example.com", PasswordHash: hash, IsStaff: true}
	require.NoError(t, env.store.CreateUser(t.Context(), &staff))

	rec := env.do(jsonRequest(t, http.MethodPost, "/api/auth/login", loginRequest{Email: "ops@example.com", Password: "pw"}))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[sessionBody](t, rec)
	assert.True(t, body.IsStaff)
	assert.Equal(t, "/admin/dashboard", body.Redirect)
}

func TestAccountRequiresSession(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/account", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(withBearer(httptest.NewRequest(http.MethodGet, "/api/account", nil), "not-a-jwt"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUpdateAccount(t *testing.T) {
	env := newTestEnv(t)
	u, tok := env.user(t, "kagiso", false)

	rec := env.do(withBearer(jsonRequest(t, http.MethodPut, "/api/account", auth.AccountUpdate{FirstName: "Kagiso"}), tok))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[struct {
		Message string      `json:"message"`
		User    models.User `json:"user"`
	}](t, rec)
	assert.Equal(t, "Account updated successfully!", resp.Message)
	assert.Equal(t, "Kagiso", resp.User.FirstName)
	assert.Equal(t, u.Email, resp.User.Email)

	rec = env.do(withBearer(jsonRequest(t, http.MethodPut, "/api/account", auth.AccountUpdate{Email: "nope"}), tok))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	stored, err := env.store.GetUser(t.Context(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, "Kagiso", stored.FirstName)
	assert.Equal(t, u.Email, stored.Email)
}

func TestAccountReportCount(t *testing.T) {
	env := newTestEnv(t)
	_, tok := env.user(t, "lerato", false)

	for range 2 {
		rec := env.do(withBearer(multipartRequest(t, reportFields()), tok))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}
	rec := env.do(withBearer(httptest.NewRequest(http.MethodGet, "/api/account", nil), tok))
	require.Equal(t, http.StatusOK, rec.Code)
	account := decode[accountView](t, rec)
	assert.Equal(t, "lerato", account.Username)
	assert.Equal(t, 2, account.ReportCount)
}

func TestLogoutClearsCookie(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, auth.CookieName, cookies[0].Name)
	assert.Negative(t, cookies[0].MaxAge)
}
