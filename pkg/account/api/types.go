package api

// RegisterRequest mirrors the registration payload. Admin flags are part of
// the shape so decoding never rejects them; the service discards them.
type RegisterRequest struct {
	Username      string   `json:"username"`
	Password      string   `json:"password"`
	Name          string   `json:"name"`
	Title         string   `json:"title"`
	Bio           string   `json:"bio"`
	Tags          []string `json:"tags"`
	IsAdmin       bool     `json:"isAdmin"`
	IsAgencyAdmin bool     `json:"isAgencyAdmin"`
}

// UpdateProfileRequest is a profile edit for the authenticated user.
type UpdateProfileRequest struct {
	Username string   `json:"username"`
	Name     string   `json:"name"`
	Title    string   `json:"title"`
	Bio      string   `json:"bio"`
	Tags     []string `json:"tags"`
}

// FindProfileRequest starts the account-linking confirmation mail.
type FindProfileRequest struct {
	Hash     string `json:"h"`
	Username string `json:"username"`
}

// ForgotPasswordRequest asks for a reset token by email.
type ForgotPasswordRequest struct {
	Username string `json:"username"`
}

// ResetPasswordRequest redeems a reset token.
type ResetPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

// SuccessResponse is the generic success shape.
type SuccessResponse struct {
	Success bool `json:"success"`
}

// CheckTokenResponse reports whether a reset token is still redeemable.
type CheckTokenResponse struct {
	Valid bool   `json:"valid"`
	Email string `json:"email,omitempty"`
}

// UserResponse is the user shape handed back to clients.
type UserResponse struct {
	ID            string   `json:"id"`
	Username      string   `json:"username"`
	Name          string   `json:"name"`
	Title         string   `json:"title,omitempty"`
	Bio           string   `json:"bio,omitempty"`
	IsAdmin       bool     `json:"isAdmin"`
	IsAgencyAdmin bool     `json:"isAgencyAdmin"`
	Tags          []string `json:"tags"`
}

// RegisterResponse is returned after a successful registration.
type RegisterResponse struct {
	Success bool         `json:"success"`
	User    UserResponse `json:"user"`
}

// ErrorResponse is the generic error shape.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
