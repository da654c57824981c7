package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/storeauth/internal/flagx"
	"github.com/dmitrijs2005/storeauth/internal/timex"
	"gopkg.in/yaml.v3"
)

// FileConfig mirrors Config for JSON and YAML config files. Durations use
// timex.Duration so both "1h" and integer nanoseconds are accepted. Pointer
// fields distinguish "absent" from an explicit false/zero.
type FileConfig struct {
	EndpointAddrHTTP             string         `json:"endpoint_addr_http" yaml:"endpoint_addr_http"`
	DatabaseDSN                  string         `json:"database_dsn" yaml:"database_dsn"`
	PrivateKeyPath               string         `json:"private_key_path" yaml:"private_key_path"`
	PublicKeyPath                string         `json:"public_key_path" yaml:"public_key_path"`
	AccessTokenValidityDuration  timex.Duration `json:"access_token_validity_duration" yaml:"access_token_validity_duration"`
	RefreshTokenValidityDuration timex.Duration `json:"refresh_token_validity_duration" yaml:"refresh_token_validity_duration"`
	TokenStore                   string         `json:"token_store" yaml:"token_store"`
	RedisAddr                    string         `json:"redis_addr" yaml:"redis_addr"`
	RedisPassword                string         `json:"redis_password" yaml:"redis_password"`
	RedisDB                      *int           `json:"redis_db" yaml:"redis_db"`
	BcryptCost                   int            `json:"bcrypt_cost" yaml:"bcrypt_cost"`
	LogoutPolicy                 string         `json:"logout_policy" yaml:"logout_policy"`
	RotateRefreshTokens          *bool          `json:"rotate_refresh_tokens" yaml:"rotate_refresh_tokens"`
	BindRefreshOrigin            *bool          `json:"bind_refresh_origin" yaml:"bind_refresh_origin"`
	SweepInterval                timex.Duration `json:"sweep_interval" yaml:"sweep_interval"`
	ProxyHeader                  string         `json:"proxy_header" yaml:"proxy_header"`
	LogLevel                     string         `json:"log_level" yaml:"log_level"`
}

// parseFile loads configuration values from the file named by the -c or
// -config flag into config. Files ending in .yaml or .yml are decoded as
// YAML, anything else as JSON. Without the flag nothing happens.
//
// Only values present in the file override what config already holds.
// Unreadable or malformed files panic: the server must not start on a
// half-applied configuration.
func parseFile(config *Config) {
	path := flagx.ConfigFileFlag()
	if path == "" {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}

	c := &FileConfig{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, c)
	default:
		err = json.Unmarshal(data, c)
	}
	if err != nil {
		panic(err)
	}

	c.apply(config)
}

func (c *FileConfig) apply(config *Config) {
	setString(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.PrivateKeyPath, c.PrivateKeyPath)
	setString(&config.PublicKeyPath, c.PublicKeyPath)
	setString(&config.TokenStore, c.TokenStore)
	setString(&config.RedisAddr, c.RedisAddr)
	setString(&config.RedisPassword, c.RedisPassword)
	setString(&config.LogoutPolicy, c.LogoutPolicy)
	setString(&config.ProxyHeader, c.ProxyHeader)
	setString(&config.LogLevel, c.LogLevel)

	if c.AccessTokenValidityDuration.Duration != 0 {
		config.AccessTokenValidityDuration = c.AccessTokenValidityDuration.Duration
	}
	if c.RefreshTokenValidityDuration.Duration != 0 {
		config.RefreshTokenValidityDuration = c.RefreshTokenValidityDuration.Duration
	}
	if c.SweepInterval.Duration != 0 {
		config.SweepInterval = c.SweepInterval.Duration
	}
	if c.RedisDB != nil {
		config.RedisDB = *c.RedisDB
	}
	if c.BcryptCost != 0 {
		config.BcryptCost = c.BcryptCost
	}
	if c.RotateRefreshTokens != nil {
		config.RotateRefreshTokens = *c.RotateRefreshTokens
	}
	if c.BindRefreshOrigin != nil {
		config.BindRefreshOrigin = *c.BindRefreshOrigin
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
