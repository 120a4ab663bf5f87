package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"accountbook/internal/cache"
)

// Claims are carried by session tokens. Subject is the owner id and ID is
// the revocable token id.
type Claims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies HS256 session tokens and keeps a list of
// revoked token ids until they would have expired anyway.
type TokenIssuer struct {
	secret  []byte
	ttl     time.Duration
	now     func() time.Time
	revoked *cache.LRUCache[struct{}]
}

func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &TokenIssuer{
		secret:  []byte(secret),
		ttl:     ttl,
		now:     time.Now,
		revoked: cache.NewLRUCache[struct{}](100_000, ttl),
	}
}

// RevokedCache exposes the revocation list so it can be swept by a cache manager.
func (t *TokenIssuer) RevokedCache() *cache.LRUCache[struct{}] { return t.revoked }

// Issue returns a signed token for userID and its expiry.
func (t *TokenIssuer) Issue(userID, email string) (string, time.Time, error) {
	now := t.now()
	exp := now.Add(t.ttl)
	claims := &Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

// Parse verifies signature, expiry and revocation.
func (t *TokenIssuer) Parse(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return t.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(t.now))
	if err != nil {
		return nil, authErr(OpSession, CodeInvalidToken, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, authErr(OpSession, CodeInvalidToken, jwt.ErrTokenInvalidClaims)
	}
	if _, revoked := t.revoked.Get(claims.ID); revoked {
		return nil, authErr(OpSession, CodeInvalidToken, errors.New("token revoked"))
	}
	return claims, nil
}

// Revoke blacklists the token id until its expiry.
func (t *TokenIssuer) Revoke(c *Claims) {
	ttl := t.ttl
	if c.ExpiresAt != nil {
		ttl = c.ExpiresAt.Sub(t.now())
	}
	if ttl > 0 {
		t.revoked.SetWithTTL(c.ID, struct{}{}, ttl)
	}
}
