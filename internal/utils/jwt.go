package utils // package utils provides helper functions for token creation and hashing

import (
	"crypto/rand"   // secure random number generation
	"crypto/sha256" // SHA-256 hashing for stored token lookups
	"encoding/hex"  // hex encoding and decoding functions
	"errors"
	"time" // time utilities for generating expirations

	"github.com/golang-jwt/jwt/v5" // JWT library for creating signed tokens
	"github.com/google/uuid"
)

// Verification outcomes. Callers only ever need to tell "expired" from
// "anything else is wrong with it".
var (
	ErrTokenExpired  = errors.New("token expired")
	ErrTokenInvalid  = errors.New("token invalid")
	ErrMissingSecret = errors.New("token signing secret is not configured")
)

// AccessClaims is the payload of an access token. UserID duplicates sub
// under the name clients of this API already read.
type AccessClaims struct {
	UserID string `json:"userId"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// RefreshClaims is the payload of a refresh token. The registered jti
// makes two tokens for the same user issued in the same second differ.
type RefreshClaims struct {
	UserID string `json:"userId"`
	jwt.RegisteredClaims
}

// AccessToken represents a signed JWT access token along with its expiry.
type AccessToken struct {
	Token string    // the serialized JWT string
	Exp   time.Time // the UTC expiration time
}

// RefreshToken is a signed refresh JWT. Only Hash is ever stored; Raw goes
// to the client in the refresh cookie.
type RefreshToken struct {
	Raw  string    // serialized JWT returned to the client
	Hash string    // SHA-256 hex of Raw, the storage key
	Exp  time.Time // UTC expiration time
}

// TokenIssuer signs and verifies both token kinds. Access and refresh
// tokens use different secrets, so one can never be accepted as the other.
// Now is the clock for issuing and verifying; nil means time.Now.
type TokenIssuer struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Now           func() time.Time
}

// NewTokenIssuer builds an issuer on the wall clock.
func NewTokenIssuer(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) *TokenIssuer {
	return &TokenIssuer{
		AccessSecret:  []byte(accessSecret),
		RefreshSecret: []byte(refreshSecret),
		AccessTTL:     accessTTL,
		RefreshTTL:    refreshTTL,
	}
}

func (ti *TokenIssuer) now() time.Time {
	if ti.Now != nil {
		return ti.Now().UTC()
	}
	return time.Now().UTC()
}

// IssueAccessToken builds and signs an HS256 JWT carrying the user id and
// role.
func (ti *TokenIssuer) IssueAccessToken(userID, role string) (AccessToken, error) {
	if len(ti.AccessSecret) == 0 {
		return AccessToken{}, ErrMissingSecret
	}
	now := ti.now()
	exp := now.Add(ti.AccessTTL)
	claims := AccessClaims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(ti.AccessSecret)
	if err != nil {
		return AccessToken{}, err
	}
	return AccessToken{Token: signed, Exp: exp}, nil
}

// IssueRefreshToken signs a refresh JWT with a fresh jti and returns it
// with its storage hash.
func (ti *TokenIssuer) IssueRefreshToken(userID string) (RefreshToken, error) {
	if len(ti.RefreshSecret) == 0 {
		return RefreshToken{}, ErrMissingSecret
	}
	now := ti.now()
	exp := now.Add(ti.RefreshTTL)
	claims := RefreshClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(ti.RefreshSecret)
	if err != nil {
		return RefreshToken{}, err
	}
	return RefreshToken{Raw: signed, Hash: HashToken(signed), Exp: exp}, nil
}

// ParseAccessToken verifies signature, algorithm and expiry of an access
// token.
func (ti *TokenIssuer) ParseAccessToken(raw string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := ti.parse(raw, ti.AccessSecret, claims); err != nil {
		return nil, err
	}
	if claims.UserID == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// ParseRefreshToken verifies a refresh token. Whether the session behind
// it is still active is for the session store to decide.
func (ti *TokenIssuer) ParseRefreshToken(raw string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := ti.parse(raw, ti.RefreshSecret, claims); err != nil {
		return nil, err
	}
	if claims.UserID == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

func (ti *TokenIssuer) parse(raw string, secret []byte, claims jwt.Claims) error {
	if len(secret) == 0 {
		return ErrMissingSecret
	}
	_, err := jwt.ParseWithClaims(raw, claims,
		func(*jwt.Token) (any, error) { return secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(ti.now),
	)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired
	default:
		return ErrTokenInvalid
	}
}

// HashToken returns the SHA-256 hash of a raw token as a hex string.
// Storing only the hash means a leaked table cannot be replayed.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// NewResetToken returns a 32-byte random password reset token (hex) and
// the hash to store for it.
func NewResetToken() (raw, hash string, err error) {
	raw, err = randomHex(32)
	if err != nil {
		return "", "", err
	}
	return raw, HashToken(raw), nil
}

// randomHex returns a hex-encoded string generated from n bytes of
// cryptographically secure random data.
func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
