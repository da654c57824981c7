package common

// AuthorizationHeaderName carries the bearer access token on protected requests.
const AuthorizationHeaderName = "Authorization"

// BearerScheme is the only accepted authorization scheme.
const BearerScheme = "Bearer"

// RefreshTokenSize is the number of random bytes behind a refresh token.
// The hex encoding doubles it.
const RefreshTokenSize = 40
