package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dmitrijs2005/storeauth/internal/common"
	"github.com/dmitrijs2005/storeauth/internal/server/auth"
	"github.com/dmitrijs2005/storeauth/internal/server/config"
	"github.com/dmitrijs2005/storeauth/internal/server/models"
	"github.com/dmitrijs2005/storeauth/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/storeauth/internal/server/repositories/repomanager"
	"github.com/golang-jwt/jwt/v5"
)

// TokenPair bundles a short-lived access token and a long-lived refresh token.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// TokenSigner is the signing half of auth.Signer.
type TokenSigner interface {
	Sign(claims jwt.MapClaims, opts auth.SignOptions) (string, error)
}

// TokenIssuer mints an access token and persists a new refresh token for an
// authenticated user. Every call stores exactly one refresh token; concurrent
// logins of one user each get their own.
type TokenIssuer struct {
	db                           *sql.DB
	repomanager                  repomanager.RepositoryManager
	signer                       TokenSigner
	accessTokenValidityDuration  time.Duration
	refreshTokenValidityDuration time.Duration
	now                          func() time.Time
}

func NewTokenIssuer(db *sql.DB, m repomanager.RepositoryManager, signer TokenSigner, cfg *config.Config) *TokenIssuer {
	return &TokenIssuer{
		db:                           db,
		repomanager:                  m,
		signer:                       signer,
		accessTokenValidityDuration:  cfg.AccessTokenValidityDuration,
		refreshTokenValidityDuration: cfg.RefreshTokenValidityDuration,
		now:                          time.Now,
	}
}

// IssueTokens returns a new pair for user. The refresh token is bound to
// origin, the client IP of the current request.
func (i *TokenIssuer) IssueTokens(ctx context.Context, user *models.User, origin string) (*TokenPair, error) {
	return i.issue(ctx, i.repomanager.RefreshTokens(i.db), user, origin)
}

func (i *TokenIssuer) issue(ctx context.Context, repo refreshtokens.Repository, user *models.User, origin string) (*TokenPair, error) {
	accessToken, err := i.signer.Sign(
		jwt.MapClaims{"sub": user.ID, "id": user.ID},
		auth.SignOptions{Expiry: i.accessTokenValidityDuration, Method: auth.DefaultAlgorithm},
	)
	if err != nil {
		return nil, fmt.Errorf("error signing access token: %w", err)
	}

	refreshToken, err := common.MakeRandHexString(common.RefreshTokenSize)
	if err != nil {
		return nil, fmt.Errorf("error generating refresh token: %w", err)
	}

	now := i.now()
	err = repo.Create(ctx, &models.RefreshToken{
		UserID:    user.ID,
		Token:     refreshToken,
		Expires:   now.Add(i.refreshTokenValidityDuration),
		Origin:    origin,
		CreatedAt: now,
	})
	if err != nil {
		return nil, fmt.Errorf("error saving refresh token: %w", err)
	}

	return &TokenPair{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}
