// Package identity issues and verifies session credentials: signed JWTs,
// single-use websocket tickets and Firebase ID tokens.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"wavely/internal/cache"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	Issuer   = "wavely-api"
	Audience = "wavely-client"

	DefaultSessionTTL = 7 * 24 * time.Hour
)

var (
	ErrInvalidToken  = errors.New("invalid or expired token")
	ErrRevokedToken  = errors.New("token has been revoked")
	ErrInvalidTicket = errors.New("invalid or expired websocket ticket")
	ErrNoRedis       = errors.New("redis unavailable")
	ErrNoSecret      = errors.New("JWT secret not configured")
)

// Claims is the verified content of a session token.
type Claims struct {
	UserID    uint
	Username  string
	JTI       string
	ExpiresAt time.Time
}

type sessionClaims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Tokens signs session JWTs with HS256 and tracks revocations and
// websocket tickets in Redis. A nil Redis client disables revocation
// checks and ticket issuance.
type Tokens struct {
	secret []byte
	ttl    time.Duration
	redis  *redis.Client
	now    func() time.Time
}

// NewTokens creates a token service.
func NewTokens(secret string, rdb *redis.Client) *Tokens {
	return &Tokens{
		secret: []byte(secret),
		ttl:    DefaultSessionTTL,
		redis:  rdb,
		now:    time.Now,
	}
}

// Issue returns a signed session token for the user.
func (t *Tokens) Issue(userID uint, username string) (string, error) {
	if len(t.secret) == 0 {
		return "", ErrNoSecret
	}
	now := t.now()
	claims := sessionClaims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(userID), 10),
			Issuer:    Issuer,
			Audience:  jwt.ClaimStrings{Audience},
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

// Parse verifies signature, issuer, audience, expiry and revocation.
func (t *Tokens) Parse(ctx context.Context, tokenString string) (*Claims, error) {
	var sc sessionClaims
	token, err := jwt.ParseWithClaims(tokenString, &sc,
		func(*jwt.Token) (any, error) { return t.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithAudience(Audience),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	userID, err := strconv.ParseUint(sc.Subject, 10, 32)
	if err != nil || userID == 0 {
		return nil, ErrInvalidToken
	}

	claims := &Claims{
		UserID:   uint(userID),
		Username: sc.Username,
		JTI:      sc.ID,
	}
	if sc.ExpiresAt != nil {
		claims.ExpiresAt = sc.ExpiresAt.Time
	}

	if claims.JTI != "" && t.redis != nil {
		n, err := t.redis.Exists(ctx, cache.RevokedKey(claims.JTI)).Result()
		if err == nil && n > 0 {
			return nil, ErrRevokedToken
		}
	}
	return claims, nil
}

// Revoke blacklists the token's jti until it would have expired anyway.
func (t *Tokens) Revoke(ctx context.Context, claims *Claims) error {
	if claims == nil || claims.JTI == "" {
		return nil
	}
	if t.redis == nil {
		return ErrNoRedis
	}
	ttl := claims.ExpiresAt.Sub(t.now())
	if ttl <= 0 {
		return nil
	}
	return t.redis.Set(ctx, cache.RevokedKey(claims.JTI), "1", ttl).Err()
}

// IssueTicket stores a short-lived single-use ticket for a websocket upgrade.
func (t *Tokens) IssueTicket(ctx context.Context, userID uint) (string, error) {
	if t.redis == nil {
		return "", ErrNoRedis
	}
	ticket := uuid.NewString()
	if err := t.redis.Set(ctx, cache.WSTicketKey(ticket), userID, cache.WSTicketTTL).Err(); err != nil {
		return "", fmt.Errorf("store ws ticket: %w", err)
	}
	return ticket, nil
}

// RedeemTicket consumes a ticket and returns its user. A ticket works once.
func (t *Tokens) RedeemTicket(ctx context.Context, ticket string) (uint, error) {
	if t.redis == nil {
		return 0, ErrNoRedis
	}
	if ticket == "" {
		return 0, ErrInvalidTicket
	}
	raw, err := t.redis.GetDel(ctx, cache.WSTicketKey(ticket)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, ErrInvalidTicket
	}
	if err != nil {
		return 0, err
	}
	userID, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, ErrInvalidTicket
	}
	return uint(userID), nil
}
