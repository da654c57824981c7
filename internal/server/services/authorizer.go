package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/storeauth/internal/common"
	"github.com/dmitrijs2005/storeauth/internal/server/auth"
	"github.com/dmitrijs2005/storeauth/internal/server/models"
	"github.com/dmitrijs2005/storeauth/internal/server/repositories/repomanager"
)

// TokenVerifier is the verifying half of auth.Signer.
type TokenVerifier interface {
	Verify(token string, opts auth.VerifyOptions) auth.VerifyResult
}

// Authorizer checks an access token presented on a protected request.
type Authorizer struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	verifier    TokenVerifier
}

func NewAuthorizer(db *sql.DB, m repomanager.RepositoryManager, verifier TokenVerifier) *Authorizer {
	return &Authorizer{db: db, repomanager: m, verifier: verifier}
}

// Authorize verifies accessToken, loads its subject and compares origin with
// the origin recorded on the subject's latest refresh token.
//
// Errors: common.ErrTokenExpired or common.ErrInvalidToken for a bad token,
// common.ErrorUnauthorized when the subject no longer exists,
// common.ErrOriginMismatch when the token is replayed from another origin.
// Anything else is a store failure.
func (a *Authorizer) Authorize(ctx context.Context, accessToken, origin string) (*models.User, error) {
	res := a.verifier.Verify(accessToken, auth.VerifyOptions{Algorithms: []string{auth.DefaultAlgorithm.Alg()}})
	if !res.Valid {
		if res.Expired {
			return nil, common.ErrTokenExpired
		}
		return nil, common.ErrInvalidToken
	}

	subject, ok := auth.StringClaim(res.Claims, "sub")
	if !ok {
		return nil, common.ErrInvalidToken
	}

	user, err := a.repomanager.Users(a.db).GetByID(ctx, subject)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorUnauthorized
		}
		return nil, fmt.Errorf("error searching user: %w", err)
	}

	// Only the most recent refresh token is consulted, so a user signed in
	// from two networks passes from whichever signed in last.
	latest, err := a.repomanager.RefreshTokens(a.db).FindLatestByUser(ctx, user.ID)
	switch {
	case errors.Is(err, common.ErrorNotFound):
	case err != nil:
		return nil, fmt.Errorf("error searching refresh token: %w", err)
	case latest.Origin != origin:
		return nil, common.ErrOriginMismatch
	}

	return user, nil
}
