// Package engine implementa el motor de protocolo OAuth2 (RFC 6749) para los
// grants authorization_code y refresh_token, contra un Model de persistencia.
//
// El contrato Model es explícito: un modelo custom se acopla implementando la
// interface, no por inspección de propiedades en runtime.
package engine

import (
	"context"
	"time"
)

// Ref es una back-reference desnormalizada a otro documento.
// Solo sirve para lookup; no implica ownership ni borrado en cascada.
type Ref struct {
	ID string `bson:"id" json:"id"`
}

// User es la identidad externa del resource owner, resuelta por el host.
type User struct {
	ID string `bson:"id" json:"id"`
}

// Client es una aplicación registrada.
type Client struct {
	ID           string   `bson:"_id,omitempty" json:"_id,omitempty"`
	Title        string   `bson:"title" json:"title"`
	Homepage     string   `bson:"homepage,omitempty" json:"homepage,omitempty"`
	Description  string   `bson:"description,omitempty" json:"description,omitempty"`
	PrivacyLink  string   `bson:"privacyLink,omitempty" json:"privacyLink,omitempty"`
	RedirectURIs []string `bson:"redirectUris" json:"redirectUris"`
	ClientID     string   `bson:"clientId" json:"clientId"`
	Secret       string   `bson:"secret" json:"secret"`
	Grants       []string `bson:"grants" json:"grants"`
}

// HasGrant indica si el client tiene permitido el grant dado.
func (c *Client) HasGrant(grant string) bool {
	for _, g := range c.Grants {
		if g == grant {
			return true
		}
	}
	return false
}

// HasRedirectURI indica si uri está en la allow-list del client.
func (c *Client) HasRedirectURI(uri string) bool {
	for _, u := range c.RedirectURIs {
		if u == uri {
			return true
		}
	}
	return false
}

// Token es un access token emitido, con su refresh token opcional.
type Token struct {
	ID                    string     `bson:"_id,omitempty" json:"_id,omitempty"`
	AccessToken           string     `bson:"accessToken" json:"accessToken"`
	AccessTokenExpiresAt  time.Time  `bson:"accessTokenExpiresAt" json:"accessTokenExpiresAt"`
	RefreshToken          string     `bson:"refreshToken,omitempty" json:"refreshToken,omitempty"`
	RefreshTokenExpiresAt *time.Time `bson:"refreshTokenExpiresAt,omitempty" json:"refreshTokenExpiresAt,omitempty"`
	Scope                 string     `bson:"scope,omitempty" json:"scope,omitempty"`
	Client                Ref        `bson:"client" json:"client"`
	User                  Ref        `bson:"user" json:"user"`
}

// AuthorizationCode es el código de un solo uso del authorization-code grant.
type AuthorizationCode struct {
	ID                string    `bson:"_id,omitempty" json:"_id,omitempty"`
	AuthorizationCode string    `bson:"authorizationCode" json:"authorizationCode"`
	ExpiresAt         time.Time `bson:"expiresAt" json:"expiresAt"`
	RedirectURI       string    `bson:"redirectUri" json:"redirectUri"`
	Scope             string    `bson:"scope,omitempty" json:"scope,omitempty"`
	Client            Ref       `bson:"client" json:"client"`
	User              Ref       `bson:"user" json:"user"`
}

// RefreshToken es el registro separado del refresh token.
// Se persiste aparte del access token para evitar la ambigüedad histórica
// entre "campo del token" y "colección propia".
type RefreshToken struct {
	ID           string    `bson:"_id,omitempty" json:"_id,omitempty"`
	RefreshToken string    `bson:"refreshToken" json:"refreshToken"`
	ClientID     string    `bson:"clientId" json:"clientId"`
	UserID       string    `bson:"userId" json:"userId"`
	Expires      time.Time `bson:"expires" json:"expires"`
}

// ClientRegistration son los campos aceptados al registrar un client.
// ClientID y Secret solo se aplican si vienen explícitos.
type ClientRegistration struct {
	Title        string
	Homepage     string
	Description  string
	PrivacyLink  string
	RedirectURIs []string
	Grants       []string
	ClientID     string
	Secret       string
}

// Model es el contrato de acceso a datos que el engine exige al host.
//
// Semántica de "miss": los lookups retornan (nil, nil) cuando no hay match.
// En GetClient ese nil es un resultado protocolar esperado ("unauthorized
// client"), no una anomalía de storage. Los errores de storage se propagan
// sin retries ni swallowing.
type Model interface {
	GetAccessToken(ctx context.Context, accessToken string) (*Token, error)
	GetRefreshToken(ctx context.Context, refreshToken string) (*RefreshToken, error)
	GetAuthorizationCode(ctx context.Context, code string) (*AuthorizationCode, error)

	// GetClient matchea por clientId solo si secret es vacío; si no, por ambos.
	GetClient(ctx context.Context, clientID, secret string) (*Client, error)

	CreateClient(ctx context.Context, reg ClientRegistration) (*Client, error)

	SaveToken(ctx context.Context, token *Token, client *Client, user User) (*Token, error)
	SaveAuthorizationCode(ctx context.Context, code *AuthorizationCode, client *Client, user User) (*AuthorizationCode, error)
	SaveRefreshToken(ctx context.Context, token, clientID string, expires time.Time, user User) (string, error)

	// RevokeAuthorizationCode es idempotente: revocar un code ausente es éxito.
	RevokeAuthorizationCode(ctx context.Context, code string) (bool, error)
	RevokeToken(ctx context.Context, token *Token) (bool, error)

	GrantTypeAllowed(ctx context.Context, clientID, grantType string) bool
}

// ScopeVerifier es la capability opcional de verificación de scopes.
type ScopeVerifier interface {
	VerifyScope(ctx context.Context, token *Token, scope string) (bool, error)
}
