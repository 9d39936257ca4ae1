package models

import (
	dErrors "thgate/pkg/domain-errors"
	"thgate/pkg/platform/validation"
	tagvalidation "thgate/pkg/validation"
)

// LoginRequest is the body of POST /auth and POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// Validate reports missing fields only. Shape checks happen in the request
// pipeline; anything else must reach the credential check so the failure is
// counted.
func (r *LoginRequest) Validate() error {
	if err := tagvalidation.Validate(r); err != nil {
		return dErrors.New(dErrors.CodeValidation, MessageCredentialsRequired)
	}
	return nil
}

// WithinLimits reports whether the credentials are short enough to be
// checked. Oversized input is treated as a failed login, not a bad request.
func (r *LoginRequest) WithinLimits() bool {
	return validation.CheckStringLength("email", r.Email, validation.MaxEmailLength) == nil &&
		validation.CheckByteLength("password", r.Password, validation.MaxPasswordLength) == nil
}

// RefreshRequest is the body of POST /auth/refresh. The token may also come
// from the refresh_token cookie.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

func (r *RefreshRequest) Validate() error {
	if err := tagvalidation.Validate(r); err != nil {
		return dErrors.New(dErrors.CodeValidation, MessageRefreshRequired)
	}
	if err := validation.CheckByteLength("refresh_token", r.RefreshToken, validation.MaxTokenLength); err != nil {
		return dErrors.New(dErrors.CodeUnauthorized, MessageInvalidRefresh)
	}
	return nil
}
