package services

import (
	"context"
	"database/sql"
	"time"

	"github.com/dmitrijs2005/storeauth/internal/logging"
	"github.com/dmitrijs2005/storeauth/internal/server/repositories/repomanager"
)

// Sweeper periodically deletes expired refresh tokens of all users. Expired
// tokens are rejected on use either way; the sweep only reclaims storage.
type Sweeper struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	interval    time.Duration
	logger      logging.Logger
	now         func() time.Time
}

func NewSweeper(db *sql.DB, m repomanager.RepositoryManager, interval time.Duration, logger logging.Logger) *Sweeper {
	return &Sweeper{db: db, repomanager: m, interval: interval, logger: logger, now: time.Now}
}

// Run sweeps every interval until ctx is done. A non-positive interval
// disables the sweeper and Run returns immediately.
func (s *Sweeper) Run(ctx context.Context) {
	if s.interval <= 0 {
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce runs a single sweep and returns the number of deleted tokens.
func (s *Sweeper) SweepOnce(ctx context.Context) int64 {
	n, err := s.repomanager.RefreshTokens(s.db).DeleteExpired(ctx, s.now())
	if err != nil {
		s.logger.Error(ctx, "expired refresh token sweep failed", "error", err)
		return n
	}
	if n > 0 {
		s.logger.Info(ctx, "expired refresh tokens swept", "deleted", n)
	}
	return n
}
