package security

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const tokenIssuer = "phaze17-dashboard"

// refreshTokenBytes is the entropy of an opaque refresh token.
const refreshTokenBytes = 48

var ErrInvalidToken = errors.New("invalid token")

// AccessClaims ties a bearer token to an identity and the refresh session it
// was minted from. Revoking the session revokes every token carrying its sid.
type AccessClaims struct {
	Email     string `json:"email"`
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// UserID is the identity the token was issued to.
func (c *AccessClaims) UserID() string {
	return c.Subject
}

// TokenSigner mints and checks HS512 access tokens with one shared secret.
type TokenSigner struct {
	key    []byte
	ttl    time.Duration
	parser *jwt.Parser
}

func NewTokenSigner(secret string, ttl time.Duration) *TokenSigner {
	return &TokenSigner{
		key: []byte(secret),
		ttl: ttl,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS512.Alg()}),
			jwt.WithIssuer(tokenIssuer),
			jwt.WithExpirationRequired(),
		),
	}
}

// Issue signs a token for userID bound to sessionID and reports when it
// stops being accepted.
func (s *TokenSigner) Issue(userID, sessionID, email string, now time.Time) (string, time.Time, error) {
	exp := now.Add(s.ttl)
	claims := &AccessClaims{
		Email:     email,
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString(s.key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access token: %w", err)
	}
	return signed, exp, nil
}

// Parse returns the claims of a valid token. An expired token keeps
// jwt.ErrTokenExpired in the error chain.
func (s *TokenSigner) Parse(raw string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if _, err := s.parser.ParseWithClaims(raw, claims, s.keyFunc); err != nil {
		return nil, err
	}
	if claims.Subject == "" || claims.SessionID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (s *TokenSigner) keyFunc(*jwt.Token) (any, error) {
	return s.key, nil
}

// NewRefreshToken returns an opaque token for the client and the digest
// that is persisted in its place.
func NewRefreshToken() (token string, digest []byte, err error) {
	raw := make([]byte, refreshTokenBytes)
	if _, err = rand.Read(raw); err != nil {
		return "", nil, fmt.Errorf("read refresh entropy: %w", err)
	}
	token = base64.RawURLEncoding.EncodeToString(raw)
	return token, RefreshDigest(token), nil
}

func RefreshDigest(token string) []byte {
	sum := sha256.Sum256([]byte(token))
	return sum[:]
}
