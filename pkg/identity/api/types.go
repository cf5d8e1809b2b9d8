package api

// LoginRequest is the local login payload.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Redirect string `json:"redirect,omitempty"`
}

// LoginResponse is returned on a successful local login.
type LoginResponse struct {
	Success  bool         `json:"success"`
	User     UserResponse `json:"user"`
	Redirect string       `json:"redirect,omitempty"`
}

// UserResponse is the user shape handed back to clients. The credential and
// internal bookkeeping never appear here.
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

// ErrorResponse is the generic error shape.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
