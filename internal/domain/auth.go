package domain

// ============================================================
// Auth: Request / Response types
// ============================================================

// LoginRequest is the body for POST /v1/auth/login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

// LoginResponse is the body for 200 from POST /v1/auth/login.
type LoginResponse struct {
	AccessToken string    `json:"accessToken"`
	ExpiresIn   int       `json:"expiresIn"`
	UserID      string    `json:"userId"`
	SyncState   SyncState `json:"syncState"`
}

// LogoutRequest is the optional body for POST /v1/auth/logout. Forget also
// wipes the device cache of the user.
type LogoutRequest struct {
	Forget bool `json:"forget"`
}
