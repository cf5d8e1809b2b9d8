package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/tendant/gov-idm/pkg/notification"
	"github.com/tendant/gov-idm/pkg/password"
	"github.com/tendant/gov-idm/pkg/provider"
)

// AppConfig holds HTTP server settings.
type AppConfig struct {
	Host    string `env:"GOVIDM_HOST" env-default:"localhost"`
	Port    uint16 `env:"GOVIDM_PORT" env-default:"4000"`
	BaseURL string `env:"GOVIDM_BASE_URL" env-default:"http://localhost:4000"`
}

// Addr returns the listen address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%d", a.Host, a.Port)
}

// DatabaseConfig holds PostgreSQL database configuration. An empty host
// selects the in-memory store.
type DatabaseConfig struct {
	Host     string `env:"GOVIDM_PG_HOST" env-default:""`
	Port     uint16 `env:"GOVIDM_PG_PORT" env-default:"5432"`
	Database string `env:"GOVIDM_PG_DATABASE" env-default:"govidm_db"`
	User     string `env:"GOVIDM_PG_USER" env-default:"govidm"`
	Password string `env:"GOVIDM_PG_PASSWORD" env-default:"pwd"`
	Schema   string `env:"GOVIDM_PG_SCHEMA" env-default:"public"`
}

// ToDatabaseURL converts the config to a PostgreSQL connection URL
func (d DatabaseConfig) ToDatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable&search_path=%s,public",
		d.User, d.Password, d.Host, d.Port, d.Database, d.Schema)
}

// EmailConfig holds SMTP email configuration.
type EmailConfig struct {
	Host     string `env:"EMAIL_HOST" env-default:"localhost"`
	Port     uint16 `env:"EMAIL_PORT" env-default:"1025"`
	Username string `env:"EMAIL_USERNAME" env-default:""`
	Password string `env:"EMAIL_PASSWORD" env-default:""`
	From     string `env:"EMAIL_FROM" env-default:"noreply@example.gov"`
	TLS      bool   `env:"EMAIL_TLS" env-default:"false"`
}

// ToSMTPConfig converts the config to a notification.SMTPConfig
func (e EmailConfig) ToSMTPConfig() notification.SMTPConfig {
	return notification.SMTPConfig{
		Host:     e.Host,
		Port:     int(e.Port),
		Username: e.Username,
		Password: e.Password,
		From:     e.From,
		TLS:      e.TLS,
	}
}

// JwtConfig holds the session token settings.
type JwtConfig struct {
	Secret         string `env:"GOVIDM_JWT_SECRET" env-default:"change-me-in-production"`
	Issuer         string `env:"GOVIDM_JWT_ISSUER" env-default:"gov-idm"`
	ExpiryHours    int    `env:"GOVIDM_JWT_EXPIRY_HOURS" env-default:"12"`
	CookieHttpOnly bool   `env:"GOVIDM_COOKIE_HTTP_ONLY" env-default:"true"`
	CookieSecure   bool   `env:"GOVIDM_COOKIE_SECURE" env-default:"false"`
}

// Expiry returns the session token lifetime.
func (j JwtConfig) Expiry() time.Duration {
	return time.Duration(j.ExpiryHours) * time.Hour
}

// PasswordComplexityConfig holds password policy configuration from
// environment variables.
type PasswordComplexityConfig struct {
	RequiredDigit           bool `env:"PASSWORD_COMPLEXITY_REQUIRE_DIGIT" env-default:"true"`
	RequiredLowercase       bool `env:"PASSWORD_COMPLEXITY_REQUIRE_LOWERCASE" env-default:"true"`
	RequiredNonAlphanumeric bool `env:"PASSWORD_COMPLEXITY_REQUIRE_NON_ALPHANUMERIC" env-default:"true"`
	RequiredUppercase       bool `env:"PASSWORD_COMPLEXITY_REQUIRE_UPPERCASE" env-default:"true"`
	RequiredLength          int  `env:"PASSWORD_COMPLEXITY_REQUIRED_LENGTH" env-default:"8"`
	DisallowCommonPwds      bool `env:"PASSWORD_COMPLEXITY_DISALLOW_COMMON_PWDS" env-default:"true"`
	MaxRepeatedChars        int  `env:"PASSWORD_COMPLEXITY_MAX_REPEATED_CHARS" env-default:"3"`
}

// ToPolicy converts the config to a password.Policy
func (p PasswordComplexityConfig) ToPolicy() password.Policy {
	return password.Policy{
		MinLength:          p.RequiredLength,
		RequireUppercase:   p.RequiredUppercase,
		RequireLowercase:   p.RequiredLowercase,
		RequireDigit:       p.RequiredDigit,
		RequireSpecialChar: p.RequiredNonAlphanumeric,
		DisallowCommonPwds: p.DisallowCommonPwds,
		MaxRepeatedChars:   p.MaxRepeatedChars,
	}
}

// IdentityConfig holds the resolver and token lifecycle settings.
type IdentityConfig struct {
	FederatedEnabled    bool   `env:"FEDERATED_LOGIN_ENABLED" env-default:"false"`
	GovEmailPattern     string `env:"GOV_EMAIL_PATTERN" env-default:""`
	StagingTTLHours     int    `env:"STAGING_TTL_HOURS" env-default:"24"`
	ResetTokenTTLHours  int    `env:"RESET_TOKEN_TTL_HOURS" env-default:"24"`
	LinkStateTTLMinutes int    `env:"LINK_STATE_TTL_MINUTES" env-default:"15"`
}

// StagingTTL returns the staging identity lifetime.
func (i IdentityConfig) StagingTTL() time.Duration {
	return time.Duration(i.StagingTTLHours) * time.Hour
}

// ResetTokenTTL returns the password reset token lifetime.
func (i IdentityConfig) ResetTokenTTL() time.Duration {
	return time.Duration(i.ResetTokenTTLHours) * time.Hour
}

// LinkStateTTL returns the federated round-trip state lifetime.
func (i IdentityConfig) LinkStateTTL() time.Duration {
	return time.Duration(i.LinkStateTTLMinutes) * time.Minute
}

// ProviderConfig holds the federated identity provider settings.
type ProviderConfig struct {
	ClientID     string `env:"OIDC_CLIENT_ID" env-default:""`
	ClientSecret string `env:"OIDC_CLIENT_SECRET" env-default:""`
	AuthURL      string `env:"OIDC_AUTH_URL" env-default:""`
	TokenURL     string `env:"OIDC_TOKEN_URL" env-default:""`
	UserInfoURL  string `env:"OIDC_USER_INFO_URL" env-default:""`
	RedirectURI  string `env:"OIDC_REDIRECT_URI" env-default:""`
	Scopes       string `env:"OIDC_SCOPES" env-default:"openid email profile"`
	StateSecret  string `env:"OIDC_STATE_SECRET" env-default:"change-me-in-production"`
}

// ToProviderConfig converts the config to a provider.Config
func (p ProviderConfig) ToProviderConfig() provider.Config {
	return provider.Config{
		ClientID:     p.ClientID,
		ClientSecret: p.ClientSecret,
		AuthURL:      p.AuthURL,
		TokenURL:     p.TokenURL,
		UserInfoURL:  p.UserInfoURL,
		RedirectURI:  p.RedirectURI,
		Scopes:       strings.Fields(p.Scopes),
	}
}

// IsConfigured returns true if the provider round trip can be attempted.
func (p ProviderConfig) IsConfigured() bool {
	return p.ClientID != "" && p.ClientSecret != "" && p.AuthURL != "" &&
		p.TokenURL != "" && p.UserInfoURL != "" && p.RedirectURI != ""
}

// Config is the full application configuration.
type Config struct {
	App                AppConfig
	Database           DatabaseConfig
	Email              EmailConfig
	Jwt                JwtConfig
	PasswordComplexity PasswordComplexityConfig
	Identity           IdentityConfig
	Provider           ProviderConfig
}
