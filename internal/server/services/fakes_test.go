package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/storeauth/internal/common"
	"github.com/dmitrijs2005/storeauth/internal/dbx"
	"github.com/dmitrijs2005/storeauth/internal/logging"
	"github.com/dmitrijs2005/storeauth/internal/server/auth"
	"github.com/dmitrijs2005/storeauth/internal/server/config"
	"github.com/dmitrijs2005/storeauth/internal/server/models"
	refreshtokensrepo "github.com/dmitrijs2005/storeauth/internal/server/repositories/refreshtokens"
	usersrepo "github.com/dmitrijs2005/storeauth/internal/server/repositories/users"
	"golang.org/x/crypto/bcrypt"
)

var errBoom = errors.New("boom")

// --- helpers ---

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, mock
}

var (
	keysOnce sync.Once
	testPriv []byte
	testPub  []byte
)

func newTestSigner(t *testing.T) *auth.Signer {
	t.Helper()
	keysOnce.Do(func() {
		var err error
		testPriv, testPub, err = auth.GenerateKeyPair(auth.MinKeyBits)
		if err != nil {
			panic(err)
		}
	})
	s, err := auth.NewSigner(testPriv, testPub)
	if err != nil {
		t.Fatalf("NewSigner error: %v", err)
	}
	return s
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.BcryptCost = bcrypt.MinCost
	return cfg
}

func mustHash(t *testing.T, password string) string {
	t.Helper()
	h, err := auth.HashPassword(password, bcrypt.MinCost)
	if err != nil {
		t.Fatalf("HashPassword error: %v", err)
	}
	return h
}

// --- fake users repository ---

type fakeUsersRepo struct {
	mu     sync.Mutex
	byID   map[string]*models.User
	nextID int

	getErr    error
	createErr error
	updateErr error
}

func newFakeUsersRepo(users ...*models.User) *fakeUsersRepo {
	f := &fakeUsersRepo{byID: map[string]*models.User{}}
	for _, u := range users {
		f.byID[u.ID] = u
	}
	return f
}

func (f *fakeUsersRepo) Create(ctx context.Context, u *models.User) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	for _, existing := range f.byID {
		if existing.Email == u.Email {
			return nil, common.ErrorAlreadyExists
		}
	}
	f.nextID++
	u.ID = fmt.Sprintf("u%d", f.nextID)
	u.CreatedAt = time.Now()
	u.UpdatedAt = u.CreatedAt
	f.byID[u.ID] = u
	return u, nil
}

func (f *fakeUsersRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	u, ok := f.byID[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return u, nil
}

func (f *fakeUsersRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	for _, u := range f.byID {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f *fakeUsersRepo) UpdatePassword(ctx context.Context, id string, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	u, ok := f.byID[id]
	if !ok {
		return common.ErrorNotFound
	}
	u.PasswordHash = hash
	return nil
}

// --- fake refresh token repository ---

type fakeRefreshRepo struct {
	mu      sync.Mutex
	byToken map[string]*models.RefreshToken

	findErr   error
	createErr error
	deleteErr error

	// afterFind runs once Find has returned a token, outside the lock.
	afterFind func(token string)
}

func newFakeRefreshRepo(tokens ...*models.RefreshToken) *fakeRefreshRepo {
	f := &fakeRefreshRepo{byToken: map[string]*models.RefreshToken{}}
	for _, t := range tokens {
		f.byToken[t.Token] = t
	}
	return f
}

func (f *fakeRefreshRepo) Create(ctx context.Context, t *models.RefreshToken) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	if t.ID == "" {
		t.ID = "rt-" + t.Token
	}
	f.byToken[t.Token] = t
	return nil
}

func (f *fakeRefreshRepo) Find(ctx context.Context, token string) (*models.RefreshToken, error) {
	f.mu.Lock()
	if f.findErr != nil {
		f.mu.Unlock()
		return nil, f.findErr
	}
	t, ok := f.byToken[token]
	f.mu.Unlock()
	if !ok {
		return nil, common.ErrorNotFound
	}
	if f.afterFind != nil {
		f.afterFind(token)
	}
	return t, nil
}

func (f *fakeRefreshRepo) FindLatestByUser(ctx context.Context, userID string) (*models.RefreshToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	var latest *models.RefreshToken
	for _, t := range f.byToken {
		if t.UserID == userID && (latest == nil || t.CreatedAt.After(latest.CreatedAt)) {
			latest = t
		}
	}
	if latest == nil {
		return nil, common.ErrorNotFound
	}
	return latest, nil
}

func (f *fakeRefreshRepo) Delete(ctx context.Context, token string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return 0, f.deleteErr
	}
	if _, ok := f.byToken[token]; !ok {
		return 0, nil
	}
	delete(f.byToken, token)
	return 1, nil
}

func (f *fakeRefreshRepo) deleteMatching(match func(*models.RefreshToken) bool) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return 0, f.deleteErr
	}
	var n int64
	for k, t := range f.byToken {
		if match(t) {
			delete(f.byToken, k)
			n++
		}
	}
	return n, nil
}

func (f *fakeRefreshRepo) DeleteExpiredByUser(ctx context.Context, userID string, now time.Time) (int64, error) {
	return f.deleteMatching(func(t *models.RefreshToken) bool { return t.UserID == userID && t.Expired(now) })
}

func (f *fakeRefreshRepo) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	return f.deleteMatching(func(t *models.RefreshToken) bool { return t.UserID == userID })
}

func (f *fakeRefreshRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return f.deleteMatching(func(t *models.RefreshToken) bool { return t.Expired(now) })
}

func (f *fakeRefreshRepo) tokensOf(userID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for k, t := range f.byToken {
		if t.UserID == userID {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// --- fake repository manager ---

type fakeRepoManager struct {
	u *fakeUsersRepo
	r *fakeRefreshRepo
}

func newFakeRepoManager(u *fakeUsersRepo, r *fakeRefreshRepo) *fakeRepoManager {
	if u == nil {
		u = newFakeUsersRepo()
	}
	if r == nil {
		r = newFakeRefreshRepo()
	}
	return &fakeRepoManager{u: u, r: r}
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error           { return nil }
func (m *fakeRepoManager) Users(db dbx.DBTX) usersrepo.Repository                 { return m.u }
func (m *fakeRepoManager) RefreshTokens(db dbx.DBTX) refreshtokensrepo.Repository { return m.r }

// fixture wires every service over the fakes.
type fixture struct {
	db        *sql.DB
	mock      sqlmock.Sqlmock
	rm        *fakeRepoManager
	signer    *auth.Signer
	issuer    *TokenIssuer
	validator *RefreshValidator
	users     *UserService
	now       time.Time
}

func newFixture(t *testing.T, cfg *config.Config, u *fakeUsersRepo, r *fakeRefreshRepo) *fixture {
	t.Helper()
	db, mock := newSQLMockDB(t)
	rm := newFakeRepoManager(u, r)
	signer := newTestSigner(t)
	now := time.Now()
	clock := func() time.Time { return now }

	issuer := NewTokenIssuer(db, rm, signer, cfg)
	issuer.now = clock
	validator := NewRefreshValidator(db, rm)
	validator.now = clock
	us, err := NewUserService(db, rm, issuer, validator, cfg, logging.Nop{})
	if err != nil {
		t.Fatalf("NewUserService error: %v", err)
	}
	us.now = clock

	return &fixture{db: db, mock: mock, rm: rm, signer: signer, issuer: issuer, validator: validator, users: us, now: now}
}
