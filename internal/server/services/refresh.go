package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/storeauth/internal/common"
	"github.com/dmitrijs2005/storeauth/internal/server/models"
	"github.com/dmitrijs2005/storeauth/internal/server/repositories/repomanager"
)

// RefreshValidator resolves a presented refresh token to its owner.
type RefreshValidator struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	now         func() time.Time
}

func NewRefreshValidator(db *sql.DB, m repomanager.RepositoryManager) *RefreshValidator {
	return &RefreshValidator{db: db, repomanager: m, now: time.Now}
}

// Validate returns the owner of presented together with the stored token.
//
// Unknown tokens yield common.ErrRefreshTokenInvalid. An expired token is
// purged along with every other expired token of its owner and yields
// common.ErrRefreshTokenExpired. Callers should answer both the same way.
func (v *RefreshValidator) Validate(ctx context.Context, presented string) (*models.User, *models.RefreshToken, error) {
	if presented == "" {
		return nil, nil, common.ErrRefreshTokenInvalid
	}

	repo := v.repomanager.RefreshTokens(v.db)

	token, err := repo.Find(ctx, presented)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, nil, common.ErrRefreshTokenInvalid
		}
		return nil, nil, fmt.Errorf("error searching refresh token: %w", err)
	}

	now := v.now()
	if token.Expired(now) {
		if _, err := repo.DeleteExpiredByUser(ctx, token.UserID, now); err != nil {
			return nil, nil, fmt.Errorf("error purging expired refresh tokens: %w", err)
		}
		return nil, nil, common.ErrRefreshTokenExpired
	}

	user, err := v.repomanager.Users(v.db).GetByID(ctx, token.UserID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, nil, common.ErrRefreshTokenInvalid
		}
		return nil, nil, fmt.Errorf("error searching user: %w", err)
	}

	return user, token, nil
}
