package repomanager

import (
	"github.com/dmitrijs2005/storeauth/internal/dbx"
	"github.com/dmitrijs2005/storeauth/internal/server/repositories/refreshtokens"
	"github.com/redis/go-redis/v9"
)

// RedisTokensManager keeps users (and migrations) on the wrapped manager and
// moves refresh tokens to Redis. The DBTX passed to RefreshTokens is ignored,
// so token writes never join a SQL transaction.
type RedisTokensManager struct {
	RepositoryManager
	client redis.UniversalClient
}

func WithRedisRefreshTokens(base RepositoryManager, client redis.UniversalClient) RepositoryManager {
	return &RedisTokensManager{RepositoryManager: base, client: client}
}

func (m *RedisTokensManager) RefreshTokens(dbx.DBTX) refreshtokens.Repository {
	return refreshtokens.NewRedisRepository(m.client)
}
