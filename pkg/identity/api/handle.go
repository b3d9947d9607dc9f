package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/jwtauth/v5"
	"github.com/go-chi/render"
	apperrors "github.com/tendant/simple-claim/pkg/errors"
	"github.com/tendant/simple-claim/pkg/identity"
)

const accessTokenTTL = 24 * time.Hour

// Handler exposes login, registration, and account management over HTTP.
// Successful logins mint an access token; the protected routes expect that
// token to have been verified by the jwtauth middleware.
type Handler struct {
	session   *identity.Session
	tokenAuth *jwtauth.JWTAuth
}

// NewHandler creates a new identity API handler
func NewHandler(session *identity.Session, tokenAuth *jwtauth.JWTAuth) *Handler {
	return &Handler{
		session:   session,
		tokenAuth: tokenAuth,
	}
}

// Routes returns the public identity routes: login and registration
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/login", h.Login)
	r.Post("/register", h.Register)
	return r
}

// ProtectedRoutes returns the routes that require a verified access token
func (h *Handler) ProtectedRoutes() chi.Router {
	r := chi.NewRouter()
	r.Post("/logout", h.Logout)
	r.Post("/token", h.CreateCustomToken)
	r.Get("/me", h.Me)
	r.Delete("/account", h.DeleteAccount)
	return r
}

// Login handles POST /login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorResponse{Code: string(apperrors.ErrCodeInvalidInput), Error: "Invalid request body"})
		return
	}

	user, err := h.session.Login(r.Context(), identity.Credentials{
		Email:       req.Email,
		Password:    req.Password,
		CustomToken: req.CustomToken,
		IDToken:     req.IDToken,
		ProviderID:  req.ProviderID,
	})
	if err != nil {
		renderServiceError(w, r, err, "Failed to login")
		return
	}

	h.renderLoginResponse(w, r, user)
}

// Register handles POST /register
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorResponse{Code: string(apperrors.ErrCodeInvalidInput), Error: "Invalid request body"})
		return
	}
	if req.Email == "" || req.Password == "" {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorResponse{Code: string(apperrors.ErrCodeInvalidInput), Error: "Email and password are required"})
		return
	}

	user, err := h.session.CreateAccount(r.Context(), req.Email, req.Password)
	if err != nil {
		renderServiceError(w, r, err, "Failed to create account")
		return
	}

	h.renderLoginResponse(w, r, user)
}

// Logout handles POST /logout
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.session.Logout(r.Context()); err != nil {
		renderServiceError(w, r, err, "Failed to logout")
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, SuccessResponse{Message: "Logged out successfully"})
}

// CreateCustomToken handles POST /token
func (h *Handler) CreateCustomToken(w http.ResponseWriter, r *http.Request) {
	token, err := h.session.CreateCustomToken(r.Context())
	if err != nil {
		renderServiceError(w, r, err, "Failed to create custom token")
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, TokenResponse{CustomToken: token})
}

// Me handles GET /me
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	_, claims, err := jwtauth.FromContext(r.Context())
	if err != nil {
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, ErrorResponse{Code: string(apperrors.ErrCodeNotAuthenticated), Error: "Unauthorized"})
		return
	}

	uid, _ := claims["sub"].(string)
	email, _ := claims["email"].(string)
	render.Status(r, http.StatusOK)
	render.JSON(w, r, UserResponse{UID: uid, Email: email})
}

// DeleteAccount handles DELETE /account. The token subject must match the
// session's current user; device release runs before the identity record is
// removed and any release failure leaves the account intact.
func (h *Handler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	_, claims, err := jwtauth.FromContext(r.Context())
	if err != nil {
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, ErrorResponse{Code: string(apperrors.ErrCodeNotAuthenticated), Error: "Unauthorized"})
		return
	}

	sub, _ := claims["sub"].(string)
	current := h.session.CurrentUser()
	if current == nil || current.UID != sub {
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, ErrorResponse{Code: string(apperrors.ErrCodeNotAuthenticated), Error: "Token does not match the active session"})
		return
	}

	if err := h.session.DeleteAccount(r.Context()); err != nil {
		renderServiceError(w, r, err, "Failed to delete account")
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, SuccessResponse{Message: "Account deleted successfully"})
}

func (h *Handler) renderLoginResponse(w http.ResponseWriter, r *http.Request, user *identity.User) {
	_, tokenString, err := h.tokenAuth.Encode(map[string]interface{}{
		"sub":   user.UID,
		"email": user.Email,
		"iat":   time.Now().Unix(),
		"exp":   time.Now().Add(accessTokenTTL).Unix(),
	})
	if err != nil {
		slog.Error("Failed to encode access token", "uid", user.UID, "error", err)
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, ErrorResponse{Code: string(apperrors.ErrCodeInternal), Error: "Failed to create access token"})
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, LoginResponse{
		User:        UserResponse{UID: user.UID, Email: user.Email},
		AccessToken: tokenString,
	})
}

// renderServiceError maps a service error onto its HTTP status and body
func renderServiceError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	code := apperrors.GetCode(err)
	status := apperrors.MapErrorCodeToHTTPStatus(code)

	message := fallback
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		message = appErr.Message
	}
	if status >= http.StatusInternalServerError {
		slog.Error(fallback, "error", err)
		message = fallback
	}

	render.Status(r, status)
	render.JSON(w, r, ErrorResponse{Code: string(code), Error: message})
}
