package engine

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// NewJWTAccessTokenGenerator retorna un TokenGenerator que firma access
// tokens HS256 en lugar de emitir tokens opacos. El token emitido igual se
// persiste y se resuelve por lookup, el JWT solo agrega claims inspeccionables
// por los resource servers.
func NewJWTAccessTokenGenerator(secret []byte, issuer string) TokenGenerator {
	return func(_ context.Context, client *Client, user User, scope string, expiresAt time.Time) (string, error) {
		now := time.Now()
		claims := jwt.MapClaims{
			"iss": issuer,
			"sub": user.ID,
			"azp": client.ClientID,
			"iat": now.Unix(),
			"exp": expiresAt.Unix(),
		}
		if scope != "" {
			claims["scope"] = scope
		}
		tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
		return tok.SignedString(secret)
	}
}
