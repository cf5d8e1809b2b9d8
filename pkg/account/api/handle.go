package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/jwtauth/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"github.com/jinzhu/copier"
	"github.com/tendant/gov-idm/pkg/account"
	"github.com/tendant/gov-idm/pkg/errors"
	"github.com/tendant/gov-idm/pkg/session"
	"github.com/tendant/gov-idm/pkg/store"
)

// Handle serves the account lifecycle endpoints: registration, profile
// updates, the find-profile linking step and password reset.
type Handle struct {
	accounts *account.Service
	sessions session.Establisher
	cookies  session.CookieSetter
	auth     *jwtauth.JWTAuth
}

// NewHandle creates the account handler.
func NewHandle(accounts *account.Service, sessions session.Establisher, cookies session.CookieSetter, auth *jwtauth.JWTAuth) *Handle {
	return &Handle{
		accounts: accounts,
		sessions: sessions,
		cookies:  cookies,
		auth:     auth,
	}
}

// Routes registers the unauthenticated account endpoints; mount under
// /api/auth alongside the login routes.
func (h *Handle) Routes(r chi.Router) {
	r.Post("/register", h.Register)
	r.Post("/find", h.FindProfile)
	r.Post("/forgot", h.ForgotPassword)
	r.Get("/checkToken/{token}", h.CheckToken)
	r.Post("/reset", h.ResetPassword)
}

// ProfileRoutes registers the authenticated profile endpoints; mount under
// /api/user.
func (h *Handle) ProfileRoutes(r chi.Router) {
	r.Use(jwtauth.Verifier(h.auth))
	r.Use(jwtauth.Authenticator(h.auth))
	r.Put("/", h.UpdateProfile)
}

// Register handles POST /register.
func (h *Handle) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Error("Failed to decode request body", "error", err)
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorResponse{Message: "Invalid request body"})
		return
	}

	var params account.RegisterParams
	if err := copier.Copy(&params, &req); err != nil {
		slog.Error("Failed to map registration payload", "error", err)
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, ErrorResponse{Message: userMessage(errors.ErrCodeInternal)})
		return
	}

	user, err := h.accounts.Register(r.Context(), params)
	if err != nil {
		respondError(w, r, "Registration failed", err)
		return
	}

	sess, err := h.sessions.Login(r.Context(), user)
	if err != nil {
		slog.Error("Failed to establish session after registration", "error", err)
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, ErrorResponse{Message: userMessage(errors.ErrCodeInternal)})
		return
	}
	h.cookies.SetCookie(w, session.DefaultCookieName, sess.Token, sess.ExpiresAt)

	render.Status(r, http.StatusOK)
	render.JSON(w, r, RegisterResponse{Success: true, User: toUserResponse(user)})
}

// UpdateProfile handles PUT / for the authenticated user.
func (h *Handle) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r)
	if err != nil {
		slog.Error("Failed to get user ID from token", "error", err)
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, ErrorResponse{Message: "Unauthorized"})
		return
	}

	var req UpdateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Error("Failed to decode request body", "error", err)
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorResponse{Message: "Invalid request body"})
		return
	}

	user, err := h.accounts.UpdateProfile(r.Context(), account.ProfileUpdateParams{
		ID:       userID,
		Username: req.Username,
		Name:     req.Name,
		Title:    req.Title,
		Bio:      req.Bio,
		Tags:     req.Tags,
	})
	if err != nil {
		respondError(w, r, "Profile update failed", err)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, RegisterResponse{Success: true, User: toUserResponse(user)})
}

// FindProfile handles POST /find: the new federated subject names an
// existing account and gets a confirmation mail. The response never reveals
// whether the named account exists.
func (h *Handle) FindProfile(w http.ResponseWriter, r *http.Request) {
	var req FindProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Error("Failed to decode request body", "error", err)
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorResponse{Message: "Invalid request body"})
		return
	}
	if req.Hash == "" || req.Username == "" {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorResponse{Message: "Email address is required."})
		return
	}

	if err := h.accounts.FindProfile(r.Context(), req.Hash, req.Username); err != nil {
		respondError(w, r, "Find profile failed", err)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, SuccessResponse{Success: true})
}

// ForgotPassword handles POST /forgot. Success is reported whether or not
// the address is registered.
func (h *Handle) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req ForgotPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Error("Failed to decode request body", "error", err)
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorResponse{Message: "Invalid request body"})
		return
	}

	if err := h.accounts.ForgotPassword(r.Context(), req.Username); err != nil {
		respondError(w, r, "Forgot password failed", err)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, SuccessResponse{Success: true})
}

// CheckToken handles GET /checkToken/{token}.
func (h *Handle) CheckToken(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "token")

	tok, err := h.accounts.CheckToken(r.Context(), raw)
	if err != nil {
		respondError(w, r, "Token check failed", err)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, CheckTokenResponse{Valid: true, Email: tok.Email})
}

// ResetPassword handles POST /reset.
func (h *Handle) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Error("Failed to decode request body", "error", err)
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorResponse{Message: "Invalid request body"})
		return
	}
	if req.Token == "" || req.Password == "" {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorResponse{Message: "Token and new password are required."})
		return
	}

	if err := h.accounts.ResetPassword(r.Context(), req.Token, req.Password); err != nil {
		respondError(w, r, "Password reset failed", err)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, SuccessResponse{Success: true})
}

// userIDFromContext extracts the authenticated user's id from the verified
// token claims.
func userIDFromContext(r *http.Request) (uuid.UUID, error) {
	_, claims, err := jwtauth.FromContext(r.Context())
	if err != nil {
		return uuid.Nil, err
	}
	sub, _ := claims["sub"].(string)
	return uuid.Parse(sub)
}

func respondError(w http.ResponseWriter, r *http.Request, what string, err error) {
	code := errors.GetCode(err)
	if code == errors.ErrCodeInternal || code == errors.ErrCodeStoreUnavailable {
		slog.Error(what, "error", err)
	} else {
		slog.Warn(what, "code", code)
	}
	render.Status(r, errors.MapErrorCodeToHTTPStatus(code))
	render.JSON(w, r, ErrorResponse{Message: userMessage(code)})
}

func toUserResponse(user store.User) UserResponse {
	return UserResponse{
		ID:            user.ID.String(),
		Username:      user.Username,
		Name:          user.Name,
		Title:         user.Title,
		Bio:           user.Bio,
		IsAdmin:       user.IsAdmin,
		IsAgencyAdmin: user.IsAgencyAdmin,
		Tags:          user.Tags,
	}
}

// userMessage maps an error code to its generic user-facing message.
func userMessage(code errors.ErrorCode) string {
	switch code {
	case errors.ErrCodeMissingRequired:
		return "A required field is missing."
	case errors.ErrCodeInvalidDomain:
		return "You need to have a .gov or .mil email address."
	case errors.ErrCodeDuplicateUsername:
		return "That email address is already registered."
	case errors.ErrCodeWeakPassword:
		return "Password does not meet the complexity requirements."
	case errors.ErrCodeInvalidField:
		return "Name and title cannot contain angle brackets."
	case errors.ErrCodeTokenNotFound:
		return "This password reset link is invalid."
	case errors.ErrCodeTokenExpired:
		return "This password reset link has expired."
	case errors.ErrCodeLinkExpired:
		return "This link is invalid or has expired."
	case errors.ErrCodeAccountLocked:
		return "Your account has been locked. Please reset your password to unlock it."
	default:
		return "An unexpected error occurred. Please try again."
	}
}
