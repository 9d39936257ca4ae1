package models

// Every message the auth endpoints return carries the site prefix.
const messagePrefix = "ThemeHackers Security: "

const (
	MessageCredentialsRequired = messagePrefix + "Email and password required"
	MessageInvalidCredentials  = messagePrefix + "Invalid credentials"
	MessageLoginSuccessful     = messagePrefix + "Login successful"
	MessageLoginFailed         = messagePrefix + "Login failed"
	MessageRefreshRequired     = messagePrefix + "Refresh token required"
	MessageInvalidRefresh      = messagePrefix + "Invalid refresh token"
	MessageTokenRefreshed      = messagePrefix + "Token refreshed successfully"
	MessageNotAuthenticated    = messagePrefix + "Not authenticated"
	MessageLoggedOut           = messagePrefix + "Logged out"
	MessageEndpointNotFound    = messagePrefix + "Endpoint not found"
	MessageInternalError       = messagePrefix + "Internal server error"
)

// UserResponse is the public view of a user.
type UserResponse struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"fullName"`
}

func NewUserResponse(u *User) UserResponse {
	return UserResponse{ID: u.ID, Email: u.Email, FullName: u.FullName}
}

type LoginResponse struct {
	Success bool         `json:"success"`
	Message string       `json:"message"`
	User    UserResponse `json:"user"`
}

type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type SessionResponse struct {
	Success bool         `json:"success"`
	User    UserResponse `json:"user"`
}
