// Package auth signs and verifies access tokens and hashes passwords.
//
// Access tokens are RS256 JWTs: the private key signs, the public key
// verifies. Verification only accepts algorithms from an explicit allow-list
// so a token cannot downgrade itself to "none" or to HMAC keyed with the
// public key.
package auth

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultAlgorithm is the only algorithm access tokens are issued with.
var DefaultAlgorithm = jwt.SigningMethodRS256

// SignOptions controls a single Sign call.
type SignOptions struct {
	// Expiry sets "exp" relative to now. Zero leaves "exp" unset.
	Expiry time.Duration
	// Method must be an RSA method. Nil means DefaultAlgorithm.
	Method *jwt.SigningMethodRSA
}

// VerifyOptions controls a single Verify call.
type VerifyOptions struct {
	// Algorithms is the allow-list of "alg" header values. Empty means
	// only DefaultAlgorithm.
	Algorithms []string
}

// VerifyResult separates expired tokens from otherwise invalid ones so the
// caller can ask for a refresh instead of a new login.
type VerifyResult struct {
	Valid   bool
	Expired bool
	Claims  jwt.MapClaims
	Err     error
}

// Signer is stateless after construction and safe for concurrent use.
type Signer struct {
	privateKey *rsa.PrivateKey
	publicKey  *rsa.PublicKey
	now        func() time.Time
}

// NewSigner parses a PEM encoded RSA key pair (PKCS#1 or PKCS#8 private key,
// PKIX or PKCS#1 public key).
func NewSigner(privatePEM, publicPEM []byte) (*Signer, error) {
	privateKey, err := jwt.ParseRSAPrivateKeyFromPEM(privatePEM)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	publicKey, err := jwt.ParseRSAPublicKeyFromPEM(publicPEM)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	if !privateKey.PublicKey.Equal(publicKey) {
		return nil, errors.New("public key does not match private key")
	}
	return &Signer{privateKey: privateKey, publicKey: publicKey, now: time.Now}, nil
}

// Sign adds "iat" (and "exp" when opts.Expiry is set) to a copy of claims and
// signs it with the private key.
func (s *Signer) Sign(claims jwt.MapClaims, opts SignOptions) (string, error) {
	method := opts.Method
	if method == nil {
		method = DefaultAlgorithm
	}

	now := s.now()
	payload := make(jwt.MapClaims, len(claims)+2)
	maps.Copy(payload, claims)
	payload["iat"] = jwt.NewNumericDate(now)
	if opts.Expiry > 0 {
		payload["exp"] = jwt.NewNumericDate(now.Add(opts.Expiry))
	}

	token, err := jwt.NewWithClaims(method, payload).SignedString(s.privateKey)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return token, nil
}

// Verify checks signature, algorithm and time claims of tokenString.
func (s *Signer) Verify(tokenString string, opts VerifyOptions) VerifyResult {
	algorithms := opts.Algorithms
	if len(algorithms) == 0 {
		algorithms = []string{DefaultAlgorithm.Alg()}
	}

	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.publicKey, nil
	},
		jwt.WithValidMethods(algorithms),
		jwt.WithTimeFunc(s.now),
		jwt.WithIssuedAt(),
	)
	if err != nil {
		return VerifyResult{Expired: errors.Is(err, jwt.ErrTokenExpired), Err: err}
	}
	if !token.Valid {
		return VerifyResult{Err: jwt.ErrTokenInvalidClaims}
	}
	return VerifyResult{Valid: true, Claims: claims}
}

// StringClaim returns claims[key] when it is a non-empty string.
func StringClaim(claims jwt.MapClaims, key string) (string, bool) {
	v, ok := claims[key].(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}
