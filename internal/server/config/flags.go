package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/storeauth/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":3000")
//	-d string   PostgreSQL DSN
//	-k string   path to the RSA private key (PEM)
//	-p string   path to the RSA public key (PEM)
//	-t int      access token validity, minutes
//	-r int      refresh token validity, minutes
//	-s string   refresh token store: postgres or redis
//	-R string   redis address
//	-L string   logout policy: expired, presented or all
//	-x string   proxy header carrying the client IP
//	-l string   log level
//
// Notes:
//   - os.Args is first filtered to the flags recognized here with
//     flagx.FilterArgs, so -c/-config never collides.
//   - Duration flags are integers in minutes.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-d", "-k", "-p", "-t", "-r", "-s", "-R", "-L", "-x", "-l"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrHTTP, "a", config.EndpointAddrHTTP, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.PrivateKeyPath, "k", config.PrivateKeyPath, "RSA private key path")
	fs.StringVar(&config.PublicKeyPath, "p", config.PublicKeyPath, "RSA public key path")

	accessTokenValidityDuration := fs.Int("t", int(config.AccessTokenValidityDuration.Minutes()), "access_token_validity_duration (in minutes)")
	refreshTokenValidityDuration := fs.Int("r", int(config.RefreshTokenValidityDuration.Minutes()), "refresh_token_validity_duration (in minutes)")

	fs.StringVar(&config.TokenStore, "s", config.TokenStore, "refresh token store (postgres|redis)")
	fs.StringVar(&config.RedisAddr, "R", config.RedisAddr, "redis address")
	fs.StringVar(&config.LogoutPolicy, "L", config.LogoutPolicy, "logout policy (expired|presented|all)")
	fs.StringVar(&config.ProxyHeader, "x", config.ProxyHeader, "header carrying the client IP")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.AccessTokenValidityDuration = time.Duration(*accessTokenValidityDuration) * time.Minute
	config.RefreshTokenValidityDuration = time.Duration(*refreshTokenValidityDuration) * time.Minute
}
