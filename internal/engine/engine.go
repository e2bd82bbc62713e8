package engine

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/leaonline/oauth2-server/internal/observability/logger"
	tokens "github.com/leaonline/oauth2-server/internal/security/token"
)

// Grants soportados por el engine.
const (
	GrantAuthorizationCode = "authorization_code"
	GrantRefreshToken      = "refresh_token"
)

// TokenGenerator permite inyectar la generación del access token
// (por ejemplo JWT firmado). Por defecto se emiten tokens opacos.
type TokenGenerator func(ctx context.Context, client *Client, user User, scope string, expiresAt time.Time) (string, error)

// Options configura lifetimes y toggles del engine.
// Cero-values razonables: ver Defaults().
type Options struct {
	// Lifetimes en segundos
	AuthorizationCodeLifetime int
	AccessTokenLifetime       int
	RefreshTokenLifetime      int

	AddAcceptedScopesHeader        bool
	AddAuthorizedScopesHeader      bool
	AllowBearerTokensInQueryString bool
	AllowEmptyState                bool
	AllowExtendedTokenAttributes   bool
	RequireClientAuthentication    bool

	// AccessTokenGenerator reemplaza la generación opaca si no es nil.
	AccessTokenGenerator TokenGenerator
}

// Defaults retorna las opciones por defecto del servidor.
func Defaults() Options {
	return Options{
		AuthorizationCodeLifetime:   300,
		AccessTokenLifetime:         3600,
		RefreshTokenLifetime:        1209600,
		AddAcceptedScopesHeader:     true,
		AddAuthorizedScopesHeader:   true,
		AllowEmptyState:             true,
		RequireClientAuthentication: true,
	}
}

// Engine ejecuta los grant flows contra un Model.
type Engine struct {
	model Model
	opts  Options
	log   *zap.Logger
}

// New crea un engine sobre el model dado.
func New(model Model, opts Options) *Engine {
	if opts.AuthorizationCodeLifetime <= 0 {
		opts.AuthorizationCodeLifetime = 300
	}
	if opts.AccessTokenLifetime <= 0 {
		opts.AccessTokenLifetime = 3600
	}
	if opts.RefreshTokenLifetime <= 0 {
		opts.RefreshTokenLifetime = 1209600
	}
	return &Engine{
		model: model,
		opts:  opts,
		log:   logger.Named("engine"),
	}
}

// Model expone el model subyacente (registro de clients desde el server).
func (e *Engine) Model() Model { return e.model }

// Options expone la configuración efectiva.
func (e *Engine) Options() Options { return e.opts }

// AuthorizeRequest es un pedido de código de autorización para un usuario ya
// autenticado por el host (el paso de autenticación propio del engine se
// bypasea: la identidad viene resuelta del flujo de consentimiento).
type AuthorizeRequest struct {
	ClientID    string
	RedirectURI string
	Scope       string
	State       string
	User        User
}

// Authorize emite y persiste un authorization code.
func (e *Engine) Authorize(ctx context.Context, req AuthorizeRequest) (*AuthorizationCode, error) {
	if req.User.ID == "" {
		return nil, NewError(ErrNameServerError, "no authenticated user for authorization", http.StatusInternalServerError)
	}

	client, err := e.model.GetClient(ctx, req.ClientID, "")
	if err != nil {
		return nil, serverError(err)
	}
	if client == nil {
		return nil, NewError(ErrNameUnauthorizedClient, "client is not registered", http.StatusUnauthorized)
	}
	if !client.HasGrant(GrantAuthorizationCode) {
		return nil, NewError(ErrNameUnauthorizedClient, "grant type is unauthorized for this client", http.StatusBadRequest)
	}
	if req.RedirectURI != "" && !client.HasRedirectURI(req.RedirectURI) {
		return nil, invalidRequest("redirect_uri is not allowed for this client")
	}

	raw, err := tokens.GenerateOpaqueToken(32)
	if err != nil {
		return nil, serverError(fmt.Errorf("generate authorization code: %w", err))
	}

	code := &AuthorizationCode{
		AuthorizationCode: raw,
		ExpiresAt:         time.Now().Add(time.Duration(e.opts.AuthorizationCodeLifetime) * time.Second),
		RedirectURI:       req.RedirectURI,
		Scope:             req.Scope,
	}

	saved, err := e.model.SaveAuthorizationCode(ctx, code, client, req.User)
	if err != nil {
		return nil, serverError(err)
	}
	e.log.Debug("authorization code issued",
		logger.ClientID(client.ClientID), logger.UserID(req.User.ID))
	return saved, nil
}

// TokenRequest es un pedido al endpoint de token.
type TokenRequest struct {
	GrantType    string
	Code         string
	RedirectURI  string
	ClientID     string
	ClientSecret string
	RefreshToken string
}

// Token ejecuta el grant pedido y retorna el token emitido.
// El model se encarga de persistir; la validación de expiry, redirect y
// single-use del code vive acá.
func (e *Engine) Token(ctx context.Context, req TokenRequest) (*Token, error) {
	switch req.GrantType {
	case GrantAuthorizationCode:
		return e.tokenFromCode(ctx, req)
	case GrantRefreshToken:
		return e.tokenFromRefresh(ctx, req)
	default:
		return nil, unsupportedGrantType("grant type " + req.GrantType + " is not supported")
	}
}

// authenticateClient resuelve y autentica el client del token request.
func (e *Engine) authenticateClient(ctx context.Context, clientID, secret string) (*Client, error) {
	if e.opts.RequireClientAuthentication && secret == "" {
		return nil, invalidClient("client authentication required")
	}
	client, err := e.model.GetClient(ctx, clientID, secret)
	if err != nil {
		return nil, serverError(err)
	}
	if client == nil {
		return nil, invalidClient("client is invalid")
	}
	return client, nil
}

func (e *Engine) tokenFromCode(ctx context.Context, req TokenRequest) (*Token, error) {
	client, err := e.authenticateClient(ctx, req.ClientID, req.ClientSecret)
	if err != nil {
		return nil, err
	}
	if !e.model.GrantTypeAllowed(ctx, client.ClientID, GrantAuthorizationCode) ||
		!client.HasGrant(GrantAuthorizationCode) {
		return nil, NewError(ErrNameUnauthorizedClient, "grant type is unauthorized for this client", http.StatusBadRequest)
	}

	code, err := e.model.GetAuthorizationCode(ctx, req.Code)
	if err != nil {
		return nil, serverError(err)
	}
	if code == nil {
		return nil, invalidGrant("authorization code is invalid")
	}
	if time.Now().After(code.ExpiresAt) {
		return nil, invalidGrant("authorization code has expired")
	}
	if code.Client.ID != client.ClientID {
		return nil, invalidGrant("authorization code was issued to another client")
	}
	if code.RedirectURI != "" && req.RedirectURI != code.RedirectURI {
		return nil, invalidRequest("redirect_uri is invalid")
	}

	// single-use: el code se revoca en el mismo intercambio que lo consume
	ok, err := e.model.RevokeAuthorizationCode(ctx, code.AuthorizationCode)
	if err != nil {
		return nil, serverError(err)
	}
	if !ok {
		return nil, invalidGrant("authorization code is invalid")
	}

	return e.issueToken(ctx, client, User{ID: code.User.ID}, code.Scope)
}

func (e *Engine) tokenFromRefresh(ctx context.Context, req TokenRequest) (*Token, error) {
	client, err := e.authenticateClient(ctx, req.ClientID, req.ClientSecret)
	if err != nil {
		return nil, err
	}
	if !e.model.GrantTypeAllowed(ctx, client.ClientID, GrantRefreshToken) ||
		!client.HasGrant(GrantRefreshToken) {
		return nil, NewError(ErrNameUnauthorizedClient, "grant type is unauthorized for this client", http.StatusBadRequest)
	}

	rt, err := e.model.GetRefreshToken(ctx, req.RefreshToken)
	if err != nil {
		return nil, serverError(err)
	}
	if rt == nil {
		return nil, invalidGrant("refresh token is invalid")
	}
	if rt.ClientID != client.ClientID {
		return nil, invalidGrant("refresh token was issued to another client")
	}
	if !rt.Expires.IsZero() && time.Now().After(rt.Expires) {
		return nil, invalidGrant("refresh token has expired")
	}

	// rotación: el refresh usado queda revocado antes de emitir el nuevo
	if _, err := e.model.RevokeToken(ctx, &Token{RefreshToken: rt.RefreshToken}); err != nil {
		return nil, serverError(err)
	}

	return e.issueToken(ctx, client, User{ID: rt.UserID}, "")
}

// issueToken genera las credenciales y delega la persistencia en el model.
func (e *Engine) issueToken(ctx context.Context, client *Client, user User, scope string) (*Token, error) {
	now := time.Now()
	expiresAt := now.Add(time.Duration(e.opts.AccessTokenLifetime) * time.Second)

	var access string
	var err error
	if e.opts.AccessTokenGenerator != nil {
		access, err = e.opts.AccessTokenGenerator(ctx, client, user, scope, expiresAt)
	} else {
		access, err = tokens.GenerateOpaqueToken(32)
	}
	if err != nil {
		return nil, serverError(fmt.Errorf("generate access token: %w", err))
	}

	token := &Token{
		AccessToken:          access,
		AccessTokenExpiresAt: expiresAt,
		Scope:                scope,
	}

	if client.HasGrant(GrantRefreshToken) {
		refresh, err := tokens.GenerateOpaqueToken(32)
		if err != nil {
			return nil, serverError(fmt.Errorf("generate refresh token: %w", err))
		}
		refreshExpiry := now.Add(time.Duration(e.opts.RefreshTokenLifetime) * time.Second)
		token.RefreshToken = refresh
		token.RefreshTokenExpiresAt = &refreshExpiry
	}

	saved, err := e.model.SaveToken(ctx, token, client, user)
	if err != nil {
		return nil, serverError(err)
	}
	e.log.Debug("token issued", logger.ClientID(client.ClientID), logger.UserID(user.ID))
	return saved, nil
}

// Authenticate resuelve un bearer token a su registro, validando expiry y,
// si scope no es vacío y el model lo soporta, la cobertura de scopes.
func (e *Engine) Authenticate(ctx context.Context, accessToken, scope string) (*Token, error) {
	if strings.TrimSpace(accessToken) == "" {
		return nil, invalidToken("no access token supplied")
	}
	token, err := e.model.GetAccessToken(ctx, accessToken)
	if err != nil {
		return nil, serverError(err)
	}
	if token == nil {
		return nil, invalidToken("access token is invalid")
	}
	if time.Now().After(token.AccessTokenExpiresAt) {
		return nil, invalidToken("access token has expired")
	}
	if scope != "" {
		if verifier, ok := e.model.(ScopeVerifier); ok {
			valid, err := verifier.VerifyScope(ctx, token, scope)
			if err != nil {
				return nil, serverError(err)
			}
			if !valid {
				return nil, NewError("insufficient_scope", "token does not cover the required scope", http.StatusForbidden)
			}
		}
	}
	return token, nil
}
