package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/tendant/gov-idm/pkg/errors"
	"github.com/tendant/gov-idm/pkg/identity"
	"github.com/tendant/gov-idm/pkg/linkstate"
	"github.com/tendant/gov-idm/pkg/provider"
	"github.com/tendant/gov-idm/pkg/session"
	"github.com/tendant/gov-idm/pkg/store"
	"github.com/tendant/gov-idm/pkg/utils"
)

// Handle serves the authentication endpoints: local login, the federated
// round trip, account linking and logout.
type Handle struct {
	resolver  *identity.Resolver
	provider  *provider.Client
	states    *linkstate.Codec
	sessions  session.Establisher
	cookies   session.CookieSetter
	federated bool
}

// NewHandle creates the authentication handler. When federated is true the
// provider owns sign-in and POST / forwards to the federated flow.
func NewHandle(resolver *identity.Resolver, prov *provider.Client, states *linkstate.Codec, sessions session.Establisher, cookies session.CookieSetter, federated bool) *Handle {
	return &Handle{
		resolver:  resolver,
		provider:  prov,
		states:    states,
		sessions:  sessions,
		cookies:   cookies,
		federated: federated,
	}
}

// Routes registers the auth endpoints; mount under /api/auth.
func (h *Handle) Routes(r chi.Router) {
	r.Post("/", h.Login)
	r.Get("/oidc", h.BeginFederated)
	r.Get("/oidc/callback", h.FederatedCallback)
	r.Get("/link", h.BeginLink)
	r.Get("/logout", h.Logout)
}

// Login handles POST / (local username/password login).
func (h *Handle) Login(w http.ResponseWriter, r *http.Request) {
	if h.federated {
		target := "/api/auth/oidc"
		if r.URL.RawQuery != "" {
			target += "?" + r.URL.RawQuery
		}
		http.Redirect(w, r, target, http.StatusFound)
		return
	}

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Error("Failed to decode request body", "error", err)
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorResponse{Message: "Invalid request body"})
		return
	}
	if req.Username == "" || req.Password == "" {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorResponse{Message: "Email address and password are required."})
		return
	}

	outcome, err := h.resolver.Resolve(r.Context(), identity.LocalCredentials{
		Username: utils.NormalizeEmail(req.Username),
		Password: req.Password,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}

	sess, err := h.sessions.Login(r.Context(), outcome.User)
	if err != nil {
		slog.Error("Failed to establish session", "error", err)
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, ErrorResponse{Message: userMessage(errors.ErrCodeInternal)})
		return
	}
	h.cookies.SetCookie(w, session.DefaultCookieName, sess.Token, sess.ExpiresAt)

	render.Status(r, http.StatusOK)
	render.JSON(w, r, LoginResponse{
		Success:  true,
		User:     toUserResponse(outcome.User),
		Redirect: req.Redirect,
	})
}

// BeginFederated handles GET /oidc: it signs the round-trip state and sends
// the browser to the provider's authorization endpoint.
func (h *Handle) BeginFederated(w http.ResponseWriter, r *http.Request) {
	state := linkstate.LinkState{
		Action:   linkstate.ActionLogin,
		Redirect: r.URL.Query().Get("redirect"),
	}
	h.redirectToProvider(w, r, state)
}

// BeginLink handles GET /link?h=...: the emailed confirmation link that
// restarts the federated flow in link mode for a staged identity.
func (h *Handle) BeginLink(w http.ResponseWriter, r *http.Request) {
	hash := r.URL.Query().Get("h")
	if hash == "" {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorResponse{Message: userMessage(errors.ErrCodeLinkExpired)})
		return
	}
	state := linkstate.LinkState{
		Action:   linkstate.ActionLink,
		Redirect: r.URL.Query().Get("redirect"),
		Data:     map[string]string{"h": hash},
	}
	h.redirectToProvider(w, r, state)
}

func (h *Handle) redirectToProvider(w http.ResponseWriter, r *http.Request, state linkstate.LinkState) {
	if h.provider == nil {
		render.Status(r, http.StatusForbidden)
		render.JSON(w, r, ErrorResponse{Message: userMessage(errors.ErrCodeNotAuthorized)})
		return
	}
	signed, err := h.states.Encode(state)
	if err != nil {
		slog.Error("Failed to encode state", "error", err)
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, ErrorResponse{Message: userMessage(errors.ErrCodeInternal)})
		return
	}
	authURL, err := h.provider.BuildAuthURL(signed)
	if err != nil {
		slog.Error("Failed to build authorization URL", "error", err)
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, ErrorResponse{Message: userMessage(errors.ErrCodeInternal)})
		return
	}
	http.Redirect(w, r, authURL, http.StatusFound)
}

// FederatedCallback handles GET /oidc/callback: the provider redirect with
// the authorization code and the echoed state.
func (h *Handle) FederatedCallback(w http.ResponseWriter, r *http.Request) {
	if h.provider == nil {
		redirectWithError(w, r, errors.ErrCodeNotAuthorized)
		return
	}
	code := r.URL.Query().Get("code")
	if code == "" {
		redirectWithError(w, r, errors.ErrCodeNotAuthorized)
		return
	}

	tok, err := h.provider.Exchange(r.Context(), code)
	if err != nil {
		slog.Error("Token exchange failed", "error", err)
		redirectWithError(w, r, errors.ErrCodeNotAuthorized)
		return
	}
	info, err := h.provider.FetchUserInfo(r.Context(), tok.AccessToken)
	if err != nil {
		slog.Error("User info fetch failed", "error", err)
		redirectWithError(w, r, errors.ErrCodeNotAuthorized)
		return
	}

	outcome, err := h.resolver.Resolve(r.Context(), identity.FederatedAssertion{
		SubjectID: info.SubjectID,
		Email:     info.Email,
		State:     r.URL.Query().Get("state"),
	})
	if err != nil {
		code := errors.GetCode(err)
		if code == errors.ErrCodeInternal || code == errors.ErrCodeStoreUnavailable {
			slog.Error("Failed to resolve federated login", "error", err)
		} else {
			slog.Warn("Rejected federated login", "code", code)
		}
		redirectWithError(w, r, code)
		return
	}

	switch outcome.Kind {
	case identity.OutcomeStagingCreated:
		target := outcome.Redirect
		if target == "" {
			target = "/profile/find?h=" + url.QueryEscape(outcome.Staging.Hash)
		}
		http.Redirect(w, r, target, http.StatusFound)
	case identity.OutcomeAuthenticated:
		sess, err := h.sessions.Login(r.Context(), outcome.User)
		if err != nil {
			slog.Error("Failed to establish session", "error", err)
			redirectWithError(w, r, errors.ErrCodeInternal)
			return
		}
		h.cookies.SetCookie(w, session.DefaultCookieName, sess.Token, sess.ExpiresAt)
		target := outcome.Redirect
		if target == "" {
			target = "/"
		}
		http.Redirect(w, r, target, http.StatusFound)
	default:
		redirectWithError(w, r, errors.ErrCodeInternal)
	}
}

// Logout handles GET /logout.
func (h *Handle) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(session.DefaultCookieName); err == nil {
		if err := h.sessions.Logout(r.Context(), session.Session{Token: cookie.Value}); err != nil {
			slog.Warn("Failed to end session", "error", err)
		}
	}
	h.cookies.ClearCookie(w, session.DefaultCookieName)

	target := r.URL.Query().Get("redirect")
	if target == "" {
		target = "/"
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// redirectWithError sends the browser back to the sign-in page carrying the
// closed error code; codes never leak internals.
func redirectWithError(w http.ResponseWriter, r *http.Request, code errors.ErrorCode) {
	http.Redirect(w, r, "/signin?err="+url.QueryEscape(string(code)), http.StatusFound)
}

func respondError(w http.ResponseWriter, r *http.Request, err error) {
	code := errors.GetCode(err)
	if code == errors.ErrCodeInternal || code == errors.ErrCodeStoreUnavailable {
		slog.Error("Login failed", "error", err)
	} else {
		slog.Warn("Rejected login", "code", code)
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

// userMessage maps an error code to its generic user-facing message. Internal
// detail stays in the logs.
func userMessage(code errors.ErrorCode) string {
	switch code {
	case errors.ErrCodeInvalidCredentials:
		return "Invalid email address or password."
	case errors.ErrCodeInvalidDomain:
		return "You need to have a .gov or .mil email address."
	case errors.ErrCodeAccountLocked:
		return "Your account has been locked. Please reset your password to unlock it."
	case errors.ErrCodeLinkExpired:
		return "This link is invalid or has expired."
	case errors.ErrCodeInvalidState:
		return "The sign-in request could not be verified. Please try again."
	case errors.ErrCodeNotAuthorized:
		return "You are not authorized to sign in."
	default:
		return "An unexpected error occurred. Please try again."
	}
}
