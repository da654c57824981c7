// Package services contains the server-side credential lifecycle: issuing
// token pairs, validating refresh tokens, authorizing access tokens and the
// user operations built on them (register, login, refresh, logout, password
// change).
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/storeauth/internal/common"
	"github.com/dmitrijs2005/storeauth/internal/dbx"
	"github.com/dmitrijs2005/storeauth/internal/logging"
	"github.com/dmitrijs2005/storeauth/internal/server/auth"
	"github.com/dmitrijs2005/storeauth/internal/server/config"
	"github.com/dmitrijs2005/storeauth/internal/server/models"
	"github.com/dmitrijs2005/storeauth/internal/server/repositories/repomanager"
)

// dummyPassword is hashed once per service so that logins for unknown
// emails still pay for a bcrypt comparison.
const dummyPassword = "storeauth-dummy-password"

// RegisterInput carries an already validated registration request.
type RegisterInput struct {
	Email    string
	Name     string
	Password string
}

// UserService provides the user facing auth operations:
//   - Register: create users with a bcrypt password hash
//   - Login: verify credentials and mint a token pair
//   - Refresh: exchange a refresh token for a new pair
//   - Logout: revoke refresh tokens according to the logout policy
//   - ChangePassword: replace the hash and revoke every refresh token
type UserService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	issuer      *TokenIssuer
	validator   *RefreshValidator
	logger      logging.Logger
	now         func() time.Time

	bcryptCost          int
	logoutPolicy        string
	rotateRefreshTokens bool
	bindRefreshOrigin   bool
	dummyHash           string
}

func NewUserService(db *sql.DB, m repomanager.RepositoryManager, issuer *TokenIssuer, validator *RefreshValidator,
	cfg *config.Config, logger logging.Logger) (*UserService, error) {

	// Without the dummy hash unknown emails would skip the bcrypt work.
	dummyHash, err := auth.HashPassword(dummyPassword, cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("error hashing dummy password: %w", err)
	}

	return &UserService{
		db:                  db,
		repomanager:         m,
		issuer:              issuer,
		validator:           validator,
		logger:              logger,
		now:                 time.Now,
		bcryptCost:          cfg.BcryptCost,
		logoutPolicy:        cfg.LogoutPolicy,
		rotateRefreshTokens: cfg.RotateRefreshTokens,
		bindRefreshOrigin:   cfg.BindRefreshOrigin,
		dummyHash:           dummyHash,
	}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates a user with role "user". A taken email yields
// common.ErrEmailAlreadyExists.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	hash, err := auth.HashPassword(in.Password, s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("error hashing password: %w", err)
	}

	user := &models.User{
		Email:        normalizeEmail(in.Email),
		Name:         strings.TrimSpace(in.Name),
		Role:         models.RoleUser,
		PasswordHash: hash,
	}
	return s.createUser(ctx, user)
}

// CreateAdmin is Register for operators: the user gets role "admin".
func (s *UserService) CreateAdmin(ctx context.Context, in RegisterInput) (*models.User, error) {
	hash, err := auth.HashPassword(in.Password, s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("error hashing password: %w", err)
	}

	user := &models.User{
		Email:        normalizeEmail(in.Email),
		Name:         strings.TrimSpace(in.Name),
		Role:         models.RoleAdmin,
		PasswordHash: hash,
	}
	return s.createUser(ctx, user)
}

func (s *UserService) createUser(ctx context.Context, user *models.User) (*models.User, error) {
	var created *models.User

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Users(tx)

		_, err := repo.GetByEmail(ctx, user.Email)
		if err == nil {
			return common.ErrEmailAlreadyExists
		}
		if !errors.Is(err, common.ErrorNotFound) {
			return fmt.Errorf("error searching user: %w", err)
		}

		created, err = repo.Create(ctx, user)
		if err != nil {
			// lost a race with a concurrent registration
			if errors.Is(err, common.ErrorAlreadyExists) {
				return common.ErrEmailAlreadyExists
			}
			return fmt.Errorf("error creating user: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "user registered", "user_id", created.ID, "role", created.Role)
	return created, nil
}

// Authenticate checks email and password. Unknown emails and wrong passwords
// both yield common.ErrorUnauthorized after the same amount of bcrypt work.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	user, err := s.repomanager.Users(s.db).GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			_ = auth.ComparePassword(s.dummyHash, password)
			return nil, common.ErrorUnauthorized
		}
		return nil, fmt.Errorf("error searching user: %w", err)
	}

	if err := auth.ComparePassword(user.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return nil, common.ErrorUnauthorized
		}
		return nil, fmt.Errorf("error comparing password: %w", err)
	}

	return user, nil
}

// Login authenticates the user and issues a token pair bound to origin.
func (s *UserService) Login(ctx context.Context, email, password, origin string) (*models.User, *TokenPair, error) {
	user, err := s.Authenticate(ctx, email, password)
	if err != nil {
		return nil, nil, err
	}

	pair, err := s.issuer.IssueTokens(ctx, user, origin)
	if err != nil {
		return nil, nil, err
	}

	s.logger.Info(ctx, "user logged in", "user_id", user.ID, "origin", origin)
	return user, pair, nil
}

// Refresh exchanges presented for a new token pair.
//
// With origin binding on, a token presented from another origin than the one
// it was issued to is treated as stolen: every refresh token of its owner is
// revoked and common.ErrOriginMismatch is returned. With rotation on, the
// presented token is consumed in the same transaction that issues the new
// pair; if it is already gone the refresh fails with
// common.ErrRefreshTokenInvalid.
func (s *UserService) Refresh(ctx context.Context, presented, origin string) (*TokenPair, error) {
	user, token, err := s.validator.Validate(ctx, presented)
	if err != nil {
		return nil, err
	}

	if s.bindRefreshOrigin && token.Origin != origin {
		if _, err := s.repomanager.RefreshTokens(s.db).DeleteByUser(ctx, user.ID); err != nil {
			return nil, fmt.Errorf("error revoking refresh tokens: %w", err)
		}
		s.logger.Warn(ctx, "refresh token presented from another origin, sessions revoked",
			"user_id", user.ID, "issued_to", token.Origin, "origin", origin)
		return nil, common.ErrOriginMismatch
	}

	if !s.rotateRefreshTokens {
		return s.issuer.IssueTokens(ctx, user, origin)
	}

	var pair *TokenPair
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.RefreshTokens(tx)

		// Only the request that actually removes the presented token may
		// mint a new pair; a concurrent replay of the same token gets none.
		n, err := repo.Delete(ctx, presented)
		if err != nil {
			return fmt.Errorf("error deleting refresh token: %w", err)
		}
		if n == 0 {
			return common.ErrRefreshTokenInvalid
		}

		pair, err = s.issuer.issue(ctx, repo, user, origin)
		return err
	})
	if err != nil {
		return nil, err
	}

	return pair, nil
}

// Logout revokes refresh tokens of userID according to the configured policy.
// presented is the refresh token sent with the request, possibly empty; it is
// only deleted when it belongs to userID. Logging out twice is not an error.
func (s *UserService) Logout(ctx context.Context, userID, presented string) error {
	repo := s.repomanager.RefreshTokens(s.db)

	switch s.logoutPolicy {
	case config.LogoutAll:
		n, err := repo.DeleteByUser(ctx, userID)
		if err != nil {
			return fmt.Errorf("error revoking refresh tokens: %w", err)
		}
		s.logger.Info(ctx, "user logged out", "user_id", userID, "revoked", n)
		return nil

	case config.LogoutPresented:
		if presented != "" {
			token, err := repo.Find(ctx, presented)
			switch {
			case errors.Is(err, common.ErrorNotFound):
			case err != nil:
				return fmt.Errorf("error searching refresh token: %w", err)
			case token.UserID == userID:
				if _, err := repo.Delete(ctx, presented); err != nil {
					return fmt.Errorf("error deleting refresh token: %w", err)
				}
			}
		}
	}

	n, err := repo.DeleteExpiredByUser(ctx, userID, s.now())
	if err != nil {
		return fmt.Errorf("error purging expired refresh tokens: %w", err)
	}
	s.logger.Info(ctx, "user logged out", "user_id", userID, "purged", n)
	return nil
}

// ChangePassword replaces the password of userID after checking current and
// signs the user out everywhere.
func (s *UserService) ChangePassword(ctx context.Context, userID, current, password string) error {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return err
	}

	if err := auth.ComparePassword(user.PasswordHash, current); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return common.ErrInvalidCurrentPassword
		}
		return fmt.Errorf("error comparing password: %w", err)
	}

	hash, err := auth.HashPassword(password, s.bcryptCost)
	if err != nil {
		return fmt.Errorf("error hashing password: %w", err)
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.Users(tx).UpdatePassword(ctx, userID, hash); err != nil {
			return fmt.Errorf("error updating password: %w", err)
		}
		if _, err := s.repomanager.RefreshTokens(tx).DeleteByUser(ctx, userID); err != nil {
			return fmt.Errorf("error revoking refresh tokens: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info(ctx, "password changed", "user_id", userID)
	return nil
}

// GetUser returns the user by id, or common.ErrorNotFound.
func (s *UserService) GetUser(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.repomanager.Users(s.db).GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("error searching user: %w", err)
	}
	return user, nil
}
