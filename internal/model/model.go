// Package model implementa el acceso a datos OAuth2 sobre colecciones de
// documentos. Cumple engine.Model contra cualquier backend que implemente
// core.Database (memory, mongo, redis, pg).
package model

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/leaonline/oauth2-server/internal/engine"
	"github.com/leaonline/oauth2-server/internal/observability/logger"
	tokens "github.com/leaonline/oauth2-server/internal/security/token"
	"github.com/leaonline/oauth2-server/internal/store"
	"github.com/leaonline/oauth2-server/internal/store/core"
)

// Nombres por defecto de las colecciones.
const (
	DefaultAccessTokensCollection  = "oauth_access_tokens"
	DefaultRefreshTokensCollection = "oauth_refresh_tokens"
	DefaultClientsCollection       = "oauth_clients"
	DefaultAuthCodesCollection     = "oauth_auth_codes"
)

// Config nombra las colecciones del modelo. Un handle explícito gana sobre
// el nombre; el nombre vacío cae al default.
type Config struct {
	AccessTokensCollectionName  string
	RefreshTokensCollectionName string
	ClientsCollectionName       string
	AuthCodesCollectionName     string

	AccessTokens  core.Collection
	RefreshTokens core.Collection
	Clients       core.Collection
	AuthCodes     core.Collection
}

func (c *Config) applyDefaults() {
	if c.AccessTokensCollectionName == "" {
		c.AccessTokensCollectionName = DefaultAccessTokensCollection
	}
	if c.RefreshTokensCollectionName == "" {
		c.RefreshTokensCollectionName = DefaultRefreshTokensCollection
	}
	if c.ClientsCollectionName == "" {
		c.ClientsCollectionName = DefaultClientsCollection
	}
	if c.AuthCodesCollectionName == "" {
		c.AuthCodesCollectionName = DefaultAuthCodesCollection
	}
}

// OAuthModel implementa engine.Model y engine.ScopeVerifier.
type OAuthModel struct {
	resolver *store.Resolver
	cfg      Config
	log      *zap.Logger
}

// New crea el modelo sobre la base dada.
func New(db core.Database, cfg Config) *OAuthModel {
	cfg.applyDefaults()
	return &OAuthModel{
		resolver: store.NewResolver(db),
		cfg:      cfg,
		log:      logger.Named("model"),
	}
}

func (m *OAuthModel) accessTokens() core.Collection {
	return m.resolver.Resolve(m.cfg.AccessTokens, m.cfg.AccessTokensCollectionName)
}

func (m *OAuthModel) refreshTokens() core.Collection {
	return m.resolver.Resolve(m.cfg.RefreshTokens, m.cfg.RefreshTokensCollectionName)
}

func (m *OAuthModel) clients() core.Collection {
	return m.resolver.Resolve(m.cfg.Clients, m.cfg.ClientsCollectionName)
}

func (m *OAuthModel) authCodes() core.Collection {
	return m.resolver.Resolve(m.cfg.AuthCodes, m.cfg.AuthCodesCollectionName)
}

// asDoc proyecta un struct a core.Doc vía JSON, respetando los tags.
func asDoc(v any) (core.Doc, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var doc core.Doc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// findOne decodifica el primer match en out. Miss retorna false, nil.
func findOne(ctx context.Context, col core.Collection, filter core.Filter, out any) (bool, error) {
	err := col.FindOne(ctx, filter, out)
	if errors.Is(err, core.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%s: %w", col.Name(), err)
	}
	return true, nil
}

// GetAccessToken resuelve un access token emitido. Miss retorna (nil, nil).
func (m *OAuthModel) GetAccessToken(ctx context.Context, accessToken string) (*engine.Token, error) {
	m.log.Debug("get access token", logger.Collection(m.cfg.AccessTokensCollectionName))
	var t engine.Token
	found, err := findOne(ctx, m.accessTokens(), core.Filter{"accessToken": accessToken}, &t)
	if err != nil || !found {
		return nil, err
	}
	return &t, nil
}

// GetRefreshToken resuelve el registro de un refresh token emitido.
func (m *OAuthModel) GetRefreshToken(ctx context.Context, refreshToken string) (*engine.RefreshToken, error) {
	m.log.Debug("get refresh token", logger.Collection(m.cfg.RefreshTokensCollectionName))
	var t engine.RefreshToken
	found, err := findOne(ctx, m.refreshTokens(), core.Filter{"refreshToken": refreshToken}, &t)
	if err != nil || !found {
		return nil, err
	}
	return &t, nil
}

// GetAuthorizationCode resuelve un authorization code pendiente.
func (m *OAuthModel) GetAuthorizationCode(ctx context.Context, code string) (*engine.AuthorizationCode, error) {
	m.log.Debug("get authorization code", logger.Collection(m.cfg.AuthCodesCollectionName))
	var c engine.AuthorizationCode
	found, err := findOne(ctx, m.authCodes(), core.Filter{"authorizationCode": code}, &c)
	if err != nil || !found {
		return nil, err
	}
	return &c, nil
}

// GetClient busca el client por clientId. Con secret vacío el lookup es solo
// por id (flujo authorize); con secret la comparación es en tiempo constante
// y el mismatch se responde como miss, no como error.
func (m *OAuthModel) GetClient(ctx context.Context, clientID, secret string) (*engine.Client, error) {
	m.log.Debug("get client", logger.ClientID(clientID))
	var c engine.Client
	found, err := findOne(ctx, m.clients(), core.Filter{"clientId": clientID}, &c)
	if err != nil || !found {
		return nil, err
	}
	if secret != "" && subtle.ConstantTimeCompare([]byte(c.Secret), []byte(secret)) != 1 {
		return nil, nil
	}
	return &c, nil
}

// CreateClient registra o actualiza un client, upsert por título. Las
// credenciales solo se generan para un client nuevo sin credenciales
// explícitas; un re-registro conserva clientId y secret existentes.
func (m *OAuthModel) CreateClient(ctx context.Context, reg engine.ClientRegistration) (*engine.Client, error) {
	if reg.Title == "" {
		return nil, errors.New("client title is required")
	}

	var existing engine.Client
	hasExisting, err := findOne(ctx, m.clients(), core.Filter{"title": reg.Title}, &existing)
	if err != nil {
		return nil, err
	}

	clientID := reg.ClientID
	secret := reg.Secret
	if clientID == "" {
		if hasExisting {
			clientID = existing.ClientID
		} else if clientID, err = tokens.RandomID(16); err != nil {
			return nil, fmt.Errorf("generate clientId: %w", err)
		}
	}
	if secret == "" {
		if hasExisting {
			secret = existing.Secret
		} else if secret, err = tokens.RandomID(32); err != nil {
			return nil, fmt.Errorf("generate secret: %w", err)
		}
	}

	if hasExisting {
		// update parcial: solo los campos mutables, más credenciales si
		// vinieron explícitas. Lo demás (homepage incluido) queda como está.
		set := core.Doc{
			"description":  reg.Description,
			"privacyLink":  reg.PrivacyLink,
			"redirectUris": reg.RedirectURIs,
			"grants":       reg.Grants,
		}
		if reg.ClientID != "" {
			set["clientId"] = reg.ClientID
		}
		if reg.Secret != "" {
			set["secret"] = reg.Secret
		}
		if _, err := m.clients().UpdateOne(ctx, core.Filter{"title": reg.Title}, set, nil); err != nil {
			return nil, fmt.Errorf("%s: %w", m.cfg.ClientsCollectionName, err)
		}
	} else {
		doc := core.Doc{
			"title":        reg.Title,
			"homepage":     reg.Homepage,
			"description":  reg.Description,
			"privacyLink":  reg.PrivacyLink,
			"redirectUris": reg.RedirectURIs,
			"grants":       reg.Grants,
			"clientId":     clientID,
			"secret":       secret,
		}
		if _, err := m.clients().InsertOne(ctx, doc); err != nil {
			return nil, fmt.Errorf("%s: %w", m.cfg.ClientsCollectionName, err)
		}
	}
	m.log.Debug("client registered", logger.ClientID(clientID), zap.Bool("updated", hasExisting))

	var c engine.Client
	if _, err := findOne(ctx, m.clients(), core.Filter{"clientId": clientID}, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// SaveToken persiste el access token con sus back-references y, si el token
// trae refresh token, el registro separado del refresh.
func (m *OAuthModel) SaveToken(ctx context.Context, token *engine.Token, client *engine.Client, user engine.User) (*engine.Token, error) {
	token.Client = engine.Ref{ID: client.ClientID}
	token.User = engine.Ref{ID: user.ID}

	doc, err := asDoc(token)
	if err != nil {
		return nil, err
	}
	delete(doc, "_id")
	id, err := m.accessTokens().InsertOne(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", m.cfg.AccessTokensCollectionName, err)
	}
	token.ID = id

	if token.RefreshToken != "" {
		expires := time.Time{}
		if token.RefreshTokenExpiresAt != nil {
			expires = *token.RefreshTokenExpiresAt
		}
		if _, err := m.SaveRefreshToken(ctx, token.RefreshToken, client.ClientID, expires, user); err != nil {
			return nil, err
		}
	}

	m.log.Debug("token saved", logger.ClientID(client.ClientID), logger.UserID(user.ID))
	return token, nil
}

// SaveAuthorizationCode persiste el code, upsert por su valor.
func (m *OAuthModel) SaveAuthorizationCode(ctx context.Context, code *engine.AuthorizationCode, client *engine.Client, user engine.User) (*engine.AuthorizationCode, error) {
	code.Client = engine.Ref{ID: client.ClientID}
	code.User = engine.Ref{ID: user.ID}

	doc, err := asDoc(code)
	if err != nil {
		return nil, err
	}
	delete(doc, "_id")
	filter := core.Filter{"authorizationCode": code.AuthorizationCode}
	if err := m.authCodes().UpsertOne(ctx, filter, doc); err != nil {
		return nil, fmt.Errorf("%s: %w", m.cfg.AuthCodesCollectionName, err)
	}
	m.log.Debug("authorization code saved", logger.ClientID(client.ClientID), logger.UserID(user.ID))
	return code, nil
}

// SaveRefreshToken persiste el registro separado del refresh token.
func (m *OAuthModel) SaveRefreshToken(ctx context.Context, token, clientID string, expires time.Time, user engine.User) (string, error) {
	doc := core.Doc{
		"refreshToken": token,
		"clientId":     clientID,
		"userId":       user.ID,
		"expires":      expires,
	}
	if _, err := m.refreshTokens().InsertOne(ctx, doc); err != nil {
		return "", fmt.Errorf("%s: %w", m.cfg.RefreshTokensCollectionName, err)
	}
	m.log.Debug("refresh token saved", logger.ClientID(clientID), logger.UserID(user.ID))
	return token, nil
}

// RevokeAuthorizationCode borra el code. Revocar un code ausente es éxito
// (idempotencia); con matches, éxito solo si se borraron todos.
func (m *OAuthModel) RevokeAuthorizationCode(ctx context.Context, code string) (bool, error) {
	filter := core.Filter{"authorizationCode": code}
	count, err := m.authCodes().Count(ctx, filter)
	if err != nil {
		return false, fmt.Errorf("%s: %w", m.cfg.AuthCodesCollectionName, err)
	}
	if count == 0 {
		return true, nil
	}
	deleted, err := m.authCodes().DeleteMany(ctx, filter)
	if err != nil {
		return false, fmt.Errorf("%s: %w", m.cfg.AuthCodesCollectionName, err)
	}
	m.log.Debug("authorization code revoked", zap.Int64("deleted", deleted))
	return deleted == count, nil
}

// RevokeToken invalida el refresh token del token dado: borra su registro y
// desasocia los campos de refresh del access token que lo referencia. Un
// token sin refresh token no es revocable.
func (m *OAuthModel) RevokeToken(ctx context.Context, token *engine.Token) (bool, error) {
	if token == nil || token.RefreshToken == "" || token.RefreshToken == "undefined" {
		return false, nil
	}
	filter := core.Filter{"refreshToken": token.RefreshToken}

	updated, err := m.accessTokens().UpdateOne(ctx, filter, nil, []string{"refreshToken", "refreshTokenExpiresAt"})
	if err != nil && !errors.Is(err, core.ErrNotFound) {
		return false, fmt.Errorf("%s: %w", m.cfg.AccessTokensCollectionName, err)
	}
	deleted, err := m.refreshTokens().DeleteMany(ctx, filter)
	if err != nil {
		return false, fmt.Errorf("%s: %w", m.cfg.RefreshTokensCollectionName, err)
	}
	m.log.Debug("token revoked", zap.Int64("updated", updated), zap.Int64("deleted", deleted))
	return updated > 0 || deleted > 0, nil
}

// GrantTypeAllowed responde la allow-list global de grants. El chequeo por
// client se hace aparte contra client.Grants; acá el clientID no discrimina.
func (m *OAuthModel) GrantTypeAllowed(_ context.Context, _ string, grantType string) bool {
	switch grantType {
	case engine.GrantAuthorizationCode, engine.GrantRefreshToken:
		return true
	}
	return false
}

// VerifyScope chequea que el scope del token cubra todos los requeridos.
func (m *OAuthModel) VerifyScope(_ context.Context, token *engine.Token, scope string) (bool, error) {
	granted := make(map[string]bool)
	for _, s := range splitScope(token.Scope) {
		granted[s] = true
	}
	for _, s := range splitScope(scope) {
		if !granted[s] {
			return false, nil
		}
	}
	return true, nil
}

func splitScope(scope string) []string {
	return strings.Fields(scope)
}
