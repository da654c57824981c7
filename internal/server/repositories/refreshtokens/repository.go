// Package refreshtokens declares the server-side contract for storing refresh
// tokens and provides PostgreSQL and Redis implementations of it.
package refreshtokens

import (
	"context"
	"time"

	"github.com/dmitrijs2005/storeauth/internal/server/models"
)

// Repository defines operations for issuing, retrieving, and revoking refresh
// tokens. Every method is a single atomic store operation; callers add no
// locking on top.
type Repository interface {
	// Create stores token. ID and CreatedAt are assigned when empty.
	Create(ctx context.Context, token *models.RefreshToken) error

	// Find looks up a refresh token by its opaque token string.
	// Implementations return common.ErrorNotFound when the token is absent.
	Find(ctx context.Context, token string) (*models.RefreshToken, error)

	// FindLatestByUser returns the most recently created token of userID,
	// expired or not, or common.ErrorNotFound.
	FindLatestByUser(ctx context.Context, userID string) (*models.RefreshToken, error)

	// Delete removes a refresh token by its token string and reports how
	// many tokens were removed. Deleting a non-existent token is not an
	// error; it reports 0.
	Delete(ctx context.Context, token string) (int64, error)

	// DeleteExpiredByUser removes the tokens of userID that expired at or
	// before now and reports how many were removed.
	DeleteExpiredByUser(ctx context.Context, userID string, now time.Time) (int64, error)

	// DeleteByUser removes every token of userID.
	DeleteByUser(ctx context.Context, userID string) (int64, error)

	// DeleteExpired removes every token that expired at or before now.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
