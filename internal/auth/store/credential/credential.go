// Package credential holds the user records that logins are checked against.
package credential

import (
	"context"

	"thgate/internal/auth/models"
	dErrors "thgate/pkg/domain-errors"
	"thgate/pkg/secrets"
)

// ErrNotFound is returned by FindByEmail for unknown addresses.
var ErrNotFound = dErrors.New(dErrors.CodeNotFound, "user not found")

// Demo account seeded when no database is configured.
const (
	DemoUserID   = "user123"
	DemoEmail    = "demo@themehackers.com"
	DemoPassword = "ThemeHackers2024!"
	DemoFullName = "ThemeHackers Demo User"
)

type Saver interface {
	Save(ctx context.Context, user *models.User) error
}

// SeedDemo stores the demo account with a freshly hashed password. Empty
// email or password fall back to the built-in demo values.
func SeedDemo(ctx context.Context, store Saver, email, password string, cost int) error {
	if email == "" {
		email = DemoEmail
	}
	if password == "" {
		password = DemoPassword
	}
	hash, err := secrets.Hash(password, cost)
	if err != nil {
		return err
	}
	return store.Save(ctx, &models.User{
		ID:           DemoUserID,
		Email:        email,
		FullName:     DemoFullName,
		PasswordHash: hash,
	})
}
