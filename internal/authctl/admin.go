package authctl

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/dmitrijs2005/storeauth/internal/common"
	"github.com/dmitrijs2005/storeauth/internal/logging"
	"github.com/dmitrijs2005/storeauth/internal/server/config"
	"github.com/dmitrijs2005/storeauth/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/storeauth/internal/server/services"
)

// seams for tests
var (
	openDB = func(dsn string) (*sql.DB, error) {
		return sql.Open("pgx", dsn)
	}
	newRepoManager = repomanager.NewPostgresRepositoryManager
)

// CreateAdmin migrates the database behind -d and creates an admin user.
// The password is asked twice.
func CreateAdmin(ctx context.Context, args []string, w io.Writer) error {
	defaults := &config.Config{}
	defaults.LoadDefaults()

	fs := flag.NewFlagSet("create-admin", flag.ContinueOnError)
	fs.SetOutput(w)
	dsn := fs.String("d", defaults.DatabaseDSN, "database DSN")
	email := fs.String("email", "", "admin email")
	name := fs.String("name", "Administrator", "admin display name")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*email) == "" {
		return errors.New("-email is required")
	}

	password, err := getPassword(w, "Enter password: ")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	confirm, err := getPassword(w, "Repeat password: ")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(confirm)

	if len(password) < 8 {
		return errors.New("password must be at least 8 characters")
	}
	if !bytes.Equal(password, confirm) {
		return errors.New("passwords do not match")
	}

	db, err := openDB(*dsn)
	if err != nil {
		return fmt.Errorf("db init error: %w", err)
	}
	defer db.Close()

	rm := newRepoManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		return fmt.Errorf("migration error: %w", err)
	}

	us, err := services.NewUserService(db, rm, nil, nil, defaults, logging.Nop{})
	if err != nil {
		return err
	}
	user, err := us.CreateAdmin(ctx, services.RegisterInput{Email: *email, Name: *name, Password: string(password)})
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "created admin %s (%s)\n", user.Email, user.ID)
	return nil
}
