package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/slidesmith/slidesmith/internal/domain"
	"github.com/slidesmith/slidesmith/internal/http/middleware"
	"github.com/slidesmith/slidesmith/internal/http/response"
	"github.com/slidesmith/slidesmith/internal/observability"
	"github.com/slidesmith/slidesmith/internal/security"
	"github.com/slidesmith/slidesmith/internal/service"
)

// DashboardPath is where successful registration and login redirect.
const DashboardPath = "/dashboard"

const minPasswordLength = 6

// authResult is the fixed boundary shape for registration and login
// failures and for logout acknowledgments. Success on register/login is a
// redirect instead, with the session cookie set.
type authResult struct {
	Success bool             `json:"success"`
	Message string           `json:"message"`
	User    *domain.UserView `json:"user"`
}

type AuthHandler struct {
	auth         *service.AuthService
	cookieSecure bool
}

func NewAuthHandler(auth *service.AuthService, cookieSecure bool) *AuthHandler {
	return &AuthHandler{auth: auth, cookieSecure: cookieSecure}
}

type credentialsRequest struct {
	Username        string `json:"username"`
	Password        string `json:"password"`
	Email           string `json:"email"`
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
	ConfirmPassword string `json:"confirm_password"`
}

// decodeCredentials accepts JSON bodies and classic form posts.
func decodeCredentials(r *http.Request) (credentialsRequest, error) {
	var req credentialsRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return req, err
		}
		return req, nil
	}
	if err := r.ParseForm(); err != nil {
		return req, err
	}
	req.Username = r.PostFormValue("username")
	req.Password = r.PostFormValue("password")
	req.Email = r.PostFormValue("email")
	req.CurrentPassword = r.PostFormValue("current_password")
	req.NewPassword = r.PostFormValue("new_password")
	req.ConfirmPassword = r.PostFormValue("confirm_password")
	return req, nil
}

// Register creates an account and signs the new user in. Success is a 302
// redirect with the session cookie set; failures are 200 with a structured
// reason so the form can render inline.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	req, err := decodeCredentials(r)
	if err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "malformed request body")
		return
	}
	if req.Username == "" || req.Password == "" {
		response.JSON(w, r, http.StatusOK, authResult{Message: "username and password are required"})
		return
	}
	if len(req.Password) < minPasswordLength {
		response.JSON(w, r, http.StatusOK, authResult{Message: "password must be at least 6 characters"})
		return
	}

	user, err := h.auth.RegisterUser(req.Username, req.Password, req.Email)
	if err != nil {
		observability.Audit(r, "auth.register.failed", "username", req.Username)
		response.JSON(w, r, http.StatusOK, authResult{Message: registrationFailureMessage(err)})
		return
	}

	observability.Audit(r, "auth.register.succeeded", "username", user.Username, "user_id", user.ID)
	// Registration already committed; a session failure downgrades to a
	// redirect without a cookie rather than undoing the account.
	if session, err := h.auth.CreateSession(user); err == nil {
		security.SetSessionCookie(w, session.Token, h.auth.SessionTTL(), h.cookieSecure)
	} else {
		observability.Audit(r, "auth.register.session_failed", "user_id", user.ID)
	}
	http.Redirect(w, r, DashboardPath, http.StatusFound)
}

// Login verifies credentials and issues a session. The response asymmetry
// matches Register: 302 + cookie on success, 200 + structured reason on
// failure.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	req, err := decodeCredentials(r)
	if err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "malformed request body")
		return
	}
	if req.Username == "" || req.Password == "" {
		response.JSON(w, r, http.StatusOK, authResult{Message: "invalid username or password"})
		return
	}

	user, err := h.auth.AuthenticateUser(req.Username, req.Password)
	if err != nil {
		observability.Audit(r, "auth.login.failed", "username", req.Username)
		response.JSON(w, r, http.StatusOK, authResult{Message: "invalid username or password"})
		return
	}
	session, err := h.auth.CreateSession(user)
	if err != nil {
		observability.Audit(r, "auth.login.session_failed", "user_id", user.ID)
		response.JSON(w, r, http.StatusOK, authResult{Message: "login failed, please retry"})
		return
	}

	observability.Audit(r, "auth.login.succeeded", "username", user.Username, "user_id", user.ID)
	security.SetSessionCookie(w, session.Token, h.auth.SessionTTL(), h.cookieSecure)
	http.Redirect(w, r, DashboardPath, http.StatusFound)
}

// Logout always acknowledges, clears the cookie, and tolerates unknown or
// already-revoked tokens.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token := security.GetCookie(r, security.SessionCookieName)
	if token != "" {
		if err := h.auth.Logout(token); err != nil {
			observability.Audit(r, "auth.logout.error")
		}
	}
	security.ClearSessionCookie(w, h.cookieSecure)
	response.JSON(w, r, http.StatusOK, authResult{Success: true, Message: "logged out"})
}

// Me returns the current user's serialized record. RequireUser guarantees
// identity is present.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
		return
	}
	view := user.View()
	response.JSON(w, r, http.StatusOK, struct {
		Success bool            `json:"success"`
		User    domain.UserView `json:"user"`
	}{Success: true, User: view})
}

// Check reports authentication state without ever failing.
func (h *AuthHandler) Check(w http.ResponseWriter, r *http.Request) {
	var view *domain.UserView
	user, ok := middleware.UserFromContext(r.Context())
	if ok {
		v := user.View()
		view = &v
	}
	response.JSON(w, r, http.StatusOK, struct {
		Authenticated bool             `json:"authenticated"`
		User          *domain.UserView `json:"user"`
	}{Authenticated: ok, User: view})
}

// ChangePassword rotates the current user's password after verifying the
// existing one.
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
		return
	}
	req, err := decodeCredentials(r)
	if err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "malformed request body")
		return
	}
	if !security.VerifyPassword(req.CurrentPassword, user.PasswordHash) {
		response.JSON(w, r, http.StatusOK, authResult{Message: "current password is incorrect"})
		return
	}
	if req.NewPassword != req.ConfirmPassword {
		response.JSON(w, r, http.StatusOK, authResult{Message: "new password and confirmation do not match"})
		return
	}
	if len(req.NewPassword) < minPasswordLength {
		response.JSON(w, r, http.StatusOK, authResult{Message: "password must be at least 6 characters"})
		return
	}
	if err := h.auth.UpdatePassword(user.ID, req.NewPassword); err != nil {
		observability.Audit(r, "auth.change_password.error", "user_id", user.ID)
		response.JSON(w, r, http.StatusOK, authResult{Message: "password change failed, please retry"})
		return
	}
	observability.Audit(r, "auth.change_password.succeeded", "user_id", user.ID)
	response.JSON(w, r, http.StatusOK, authResult{Success: true, Message: "password changed"})
}

func registrationFailureMessage(err error) string {
	switch {
	case errors.Is(err, service.ErrUsernameTaken):
		return "username already exists"
	case errors.Is(err, service.ErrEmailTaken):
		return "email already exists"
	case errors.Is(err, service.ErrRegistrationVerification):
		return "registration verification failed, please retry"
	default:
		return "registration failed, please retry"
	}
}
