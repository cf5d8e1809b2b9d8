package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/jwtauth/v5"
	"github.com/go-chi/render"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/tendant/gov-idm/pkg/account"
	accountapi "github.com/tendant/gov-idm/pkg/account/api"
	"github.com/tendant/gov-idm/pkg/config"
	"github.com/tendant/gov-idm/pkg/govemail"
	"github.com/tendant/gov-idm/pkg/identity"
	identityapi "github.com/tendant/gov-idm/pkg/identity/api"
	"github.com/tendant/gov-idm/pkg/linkstate"
	"github.com/tendant/gov-idm/pkg/notification"
	"github.com/tendant/gov-idm/pkg/password"
	"github.com/tendant/gov-idm/pkg/provider"
	"github.com/tendant/gov-idm/pkg/session"
	"github.com/tendant/gov-idm/pkg/store"
	"github.com/tendant/gov-idm/pkg/token"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Config{}
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		slog.Error("Failed reading config from env", "error", err)
		os.Exit(1)
	}

	st, err := newStore(cfg.Database)
	if err != nil {
		slog.Error("Failed creating store", "host", cfg.Database.Host, "database", cfg.Database.Database, "error", err)
		os.Exit(1)
	}

	notifications, err := newNotificationManager(cfg)
	if err != nil {
		slog.Error("Failed creating notification manager", "error", err)
		os.Exit(1)
	}

	tokens := token.NewService(st, token.WithResetTTL(cfg.Identity.ResetTokenTTL()))

	states, err := linkstate.NewCodec(cfg.Provider.StateSecret, linkstate.WithTTL(cfg.Identity.LinkStateTTL()))
	if err != nil {
		slog.Error("Failed creating link state codec", "error", err)
		os.Exit(1)
	}

	govEmail, err := govemail.NewValidator(cfg.Identity.GovEmailPattern)
	if err != nil {
		slog.Error("Invalid GOV_EMAIL_PATTERN", "error", err)
		os.Exit(1)
	}

	var ssoClient *provider.Client
	federatedEnabled := cfg.Identity.FederatedEnabled
	if federatedEnabled {
		if !cfg.Provider.IsConfigured() {
			slog.Warn("Federated login enabled but provider is not fully configured, disabling")
			federatedEnabled = false
		} else {
			ssoClient, err = provider.NewClient(cfg.Provider.ToProviderConfig())
			if err != nil {
				slog.Error("Failed creating provider client", "error", err)
				os.Exit(1)
			}
		}
	}

	policy := cfg.PasswordComplexity.ToPolicy()
	checker := password.NewDefaultPolicyChecker(&policy, nil)

	resolver := identity.NewResolver(st, states, identity.Config{
		FederatedEnabled: federatedEnabled,
		GovEmail:         govEmail,
		StagingTTL:       cfg.Identity.StagingTTL(),
	})
	accounts := account.NewService(st, tokens, checker, govEmail, notifications)

	sessions, err := session.NewJWTEstablisher(cfg.Jwt.Secret, cfg.Jwt.Issuer, session.WithTTL(cfg.Jwt.Expiry()))
	if err != nil {
		slog.Error("Failed creating session establisher", "error", err)
		os.Exit(1)
	}
	cookies := session.NewCookieSetter(cfg.Jwt.CookieHttpOnly, cfg.Jwt.CookieSecure)
	auth := jwtauth.New("HS256", []byte(cfg.Jwt.Secret), nil)

	authHandle := identityapi.NewHandle(resolver, ssoClient, states, sessions, cookies, federatedEnabled)
	accountHandle := accountapi.NewHandle(accounts, sessions, cookies, auth)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		render.PlainText(w, r, http.StatusText(http.StatusOK))
	})

	r.Route("/api/auth", func(r chi.Router) {
		authHandle.Routes(r)
		accountHandle.Routes(r)
	})
	r.Route("/api/user", accountHandle.ProfileRoutes)

	slog.Info("Starting server", "addr", cfg.App.Addr(), "federated", federatedEnabled)
	if err := http.ListenAndServe(cfg.App.Addr(), r); err != nil {
		slog.Error("Server stopped", "error", err)
		os.Exit(1)
	}
}

// newStore opens the postgres-backed store when a database host is
// configured, and falls back to the in-memory store otherwise.
func newStore(cfg config.DatabaseConfig) (store.Store, error) {
	if cfg.Host == "" {
		slog.Info("No database configured, using in-memory store")
		return store.NewInMemoryStore(), nil
	}
	pool, err := pgxpool.New(context.Background(), cfg.ToDatabaseURL())
	if err != nil {
		return nil, err
	}
	return store.NewPostgresStore(pool), nil
}

func newNotificationManager(cfg config.Config) (*notification.Manager, error) {
	notifier, err := notification.NewEmailNotifier(cfg.Email.ToSMTPConfig())
	if err != nil {
		return nil, err
	}
	mgr := notification.NewManager(cfg.App.BaseURL, notifier)

	templates := map[notification.NoticeType]notification.Template{
		notification.UserWelcomeNotice: {
			Subject: "Welcome to Open Opportunities",
			Body:    "Hello {{.Name}},\n\nYour account has been created. Sign in at {{.Link}} to get started.\n",
		},
		notification.PasswordResetNotice: {
			Subject: "Password reset requested",
			Body:    "A password reset was requested for your account.\n\nReset your password: {{.Link}}\n\nIf you did not request this, you can ignore this message.\n",
		},
		notification.ProfileFindNotice: {
			Subject: "Confirm your account link",
			Body:    "A request was made to link a new sign-in to your account.\n\nConfirm the link: {{.Link}}\n\nIf you did not request this, you can ignore this message.\n",
		},
	}
	for notice, tmpl := range templates {
		if err := mgr.Register(notice, tmpl); err != nil {
			return nil, err
		}
	}
	return mgr, nil
}
