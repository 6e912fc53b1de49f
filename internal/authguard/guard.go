package authguard

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Claims — проверенные claims входящего токена.
type Claims struct {
	Subject  string
	TenantID string
	Scopes   []string
}

// Guard проверяет входящие bearer-токены по JWKS.
type Guard struct {
	keys     *KeyCache
	issuer   string
	audience string
}

// GuardConfig — параметры проверки входящих токенов.
type GuardConfig struct {
	JWKSURL  string
	Issuer   string
	Audience string
}

// NewGuard создаёт guard входящих токенов.
func NewGuard(cfg GuardConfig) *Guard {
	return &Guard{
		keys:     NewKeyCache(cfg.JWKSURL, nil),
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
	}
}

type rawClaims struct {
	TenantID string `json:"tenant_id"`
	Scope    string `json:"scope"`
	jwt.RegisteredClaims
}

// ValidateInbound проверяет подпись и claims входящего токена.
// Принимается только RS256; iss, aud и exp обязательны.
func (g *Guard) ValidateInbound(ctx context.Context, tokenStr string) (*Claims, error) {
	var raw rawClaims
	token, err := jwt.ParseWithClaims(tokenStr, &raw,
		func(t *jwt.Token) (any, error) {
			kid, _ := t.Header["kid"].(string)
			if kid == "" {
				return nil, fmt.Errorf("token has no kid header")
			}
			return g.keys.Key(ctx, kid)
		},
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithIssuer(g.issuer),
		jwt.WithAudience(g.audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		var authE *AuthError
		switch {
		case errors.As(err, &authE):
			return nil, authE
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, authErr(AuthExpired, err)
		default:
			return nil, authErr(AuthInvalidToken, err)
		}
	}
	if !token.Valid {
		return nil, authErr(AuthInvalidToken, fmt.Errorf("token not valid"))
	}

	return &Claims{
		Subject:  raw.Subject,
		TenantID: raw.TenantID,
		Scopes:   strings.Fields(raw.Scope),
	}, nil
}
