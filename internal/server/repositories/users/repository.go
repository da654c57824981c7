// Package users declares the identity store used by the auth core and its
// PostgreSQL implementation.
package users

import (
	"context"

	"github.com/dmitrijs2005/storeauth/internal/server/models"
)

// Repository is the user lookup the auth core relies on. Missing users are
// reported as common.ErrorNotFound.
type Repository interface {
	// Create assigns ID and timestamps to user and stores it. A duplicate
	// email yields common.ErrorAlreadyExists.
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	UpdatePassword(ctx context.Context, id string, passwordHash string) error
}
