package engine_test

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/leaonline/oauth2-server/internal/engine"
	"github.com/leaonline/oauth2-server/internal/model"
	"github.com/leaonline/oauth2-server/internal/store/memory"
)

func newTestEngine(t *testing.T, opts engine.Options) (*engine.Engine, *model.OAuthModel) {
	t.Helper()
	m := model.New(memory.New(), model.Config{})
	return engine.New(m, opts), m
}

func newClient(t *testing.T, m *model.OAuthModel, grants ...string) *engine.Client {
	t.Helper()
	client, err := m.CreateClient(context.Background(), engine.ClientRegistration{
		Title:        "Engine App",
		RedirectURIs: []string{"https://app.example.com/cb"},
		Grants:       grants,
	})
	if err != nil {
		t.Fatal(err)
	}
	return client
}

func authorize(t *testing.T, e *engine.Engine, client *engine.Client, userID string) *engine.AuthorizationCode {
	t.Helper()
	code, err := e.Authorize(context.Background(), engine.AuthorizeRequest{
		ClientID:    client.ClientID,
		RedirectURI: "https://app.example.com/cb",
		User:        engine.User{ID: userID},
	})
	if err != nil {
		t.Fatal(err)
	}
	return code
}

func TestAuthorize_IssuesCode(t *testing.T) {
	e, m := newTestEngine(t, engine.Defaults())
	client := newClient(t, m, "authorization_code")

	code := authorize(t, e, client, "u1")
	if code.AuthorizationCode == "" {
		t.Fatal("expected non-empty code")
	}
	if !code.ExpiresAt.After(time.Now()) {
		t.Fatal("expected future expiry")
	}

	stored, err := m.GetAuthorizationCode(context.Background(), code.AuthorizationCode)
	if err != nil {
		t.Fatal(err)
	}
	if stored == nil || stored.User.ID != "u1" || stored.Client.ID != client.ClientID {
		t.Fatalf("expected persisted code with refs, got %+v", stored)
	}
}

func TestAuthorize_RejectsUnknownClient(t *testing.T) {
	e, _ := newTestEngine(t, engine.Defaults())
	_, err := e.Authorize(context.Background(), engine.AuthorizeRequest{
		ClientID:    "ghost",
		RedirectURI: "https://app.example.com/cb",
		User:        engine.User{ID: "u1"},
	})
	engErr, ok := engine.AsError(err)
	if !ok || engErr.Name != engine.ErrNameUnauthorizedClient {
		t.Fatalf("expected unauthorized_client, got %v", err)
	}
	if engErr.Status != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", engErr.Status)
	}
}

func TestAuthorize_RejectsClientWithoutGrant(t *testing.T) {
	e, m := newTestEngine(t, engine.Defaults())
	client := newClient(t, m, "refresh_token")

	_, err := e.Authorize(context.Background(), engine.AuthorizeRequest{
		ClientID:    client.ClientID,
		RedirectURI: "https://app.example.com/cb",
		User:        engine.User{ID: "u1"},
	})
	engErr, ok := engine.AsError(err)
	if !ok || engErr.Name != engine.ErrNameUnauthorizedClient {
		t.Fatalf("expected unauthorized_client, got %v", err)
	}
}

func TestToken_CodeExchange(t *testing.T) {
	e, m := newTestEngine(t, engine.Defaults())
	client := newClient(t, m, "authorization_code", "refresh_token")
	code := authorize(t, e, client, "u1")

	token, err := e.Token(context.Background(), engine.TokenRequest{
		GrantType:    engine.GrantAuthorizationCode,
		Code:         code.AuthorizationCode,
		RedirectURI:  "https://app.example.com/cb",
		ClientID:     client.ClientID,
		ClientSecret: client.Secret,
	})
	if err != nil {
		t.Fatal(err)
	}
	if token.AccessToken == "" {
		t.Fatal("expected access token")
	}
	if token.RefreshToken == "" {
		t.Fatal("expected refresh token for client with refresh_token grant")
	}
	if token.User.ID != "u1" || token.Client.ID != client.ClientID {
		t.Fatalf("unexpected refs: %+v", token)
	}

	// single-use: el mismo code no canjea dos veces
	_, err = e.Token(context.Background(), engine.TokenRequest{
		GrantType:    engine.GrantAuthorizationCode,
		Code:         code.AuthorizationCode,
		RedirectURI:  "https://app.example.com/cb",
		ClientID:     client.ClientID,
		ClientSecret: client.Secret,
	})
	engErr, ok := engine.AsError(err)
	if !ok || engErr.Name != engine.ErrNameInvalidGrant {
		t.Fatalf("expected invalid_grant on reuse, got %v", err)
	}
}

func TestToken_NoRefreshWithoutGrant(t *testing.T) {
	e, m := newTestEngine(t, engine.Defaults())
	client := newClient(t, m, "authorization_code")
	code := authorize(t, e, client, "u1")

	token, err := e.Token(context.Background(), engine.TokenRequest{
		GrantType:    engine.GrantAuthorizationCode,
		Code:         code.AuthorizationCode,
		RedirectURI:  "https://app.example.com/cb",
		ClientID:     client.ClientID,
		ClientSecret: client.Secret,
	})
	if err != nil {
		t.Fatal(err)
	}
	if token.RefreshToken != "" {
		t.Fatal("expected no refresh token without the refresh_token grant")
	}
}

func TestToken_RedirectMismatch(t *testing.T) {
	e, m := newTestEngine(t, engine.Defaults())
	client := newClient(t, m, "authorization_code")
	code := authorize(t, e, client, "u1")

	_, err := e.Token(context.Background(), engine.TokenRequest{
		GrantType:    engine.GrantAuthorizationCode,
		Code:         code.AuthorizationCode,
		RedirectURI:  "https://evil.example.com/cb",
		ClientID:     client.ClientID,
		ClientSecret: client.Secret,
	})
	engErr, ok := engine.AsError(err)
	if !ok || engErr.Name != engine.ErrNameInvalidRequest {
		t.Fatalf("expected invalid_request, got %v", err)
	}
	if engErr.Status != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", engErr.Status)
	}
}

func TestToken_WrongSecret(t *testing.T) {
	e, m := newTestEngine(t, engine.Defaults())
	client := newClient(t, m, "authorization_code")
	code := authorize(t, e, client, "u1")

	_, err := e.Token(context.Background(), engine.TokenRequest{
		GrantType:    engine.GrantAuthorizationCode,
		Code:         code.AuthorizationCode,
		RedirectURI:  "https://app.example.com/cb",
		ClientID:     client.ClientID,
		ClientSecret: "wrong",
	})
	engErr, ok := engine.AsError(err)
	if !ok || engErr.Name != engine.ErrNameInvalidClient {
		t.Fatalf("expected invalid_client, got %v", err)
	}
}

func TestToken_ExpiredCode(t *testing.T) {
	opts := engine.Defaults()
	opts.AuthorizationCodeLifetime = -1
	e, m := newTestEngine(t, opts)
	client := newClient(t, m, "authorization_code")

	// lifetime negativo cae al default; forzamos el code expirado a mano
	code := &engine.AuthorizationCode{
		AuthorizationCode: "expired-code",
		ExpiresAt:         time.Now().Add(-time.Minute),
		RedirectURI:       "https://app.example.com/cb",
	}
	if _, err := m.SaveAuthorizationCode(context.Background(), code, client, engine.User{ID: "u1"}); err != nil {
		t.Fatal(err)
	}

	_, err := e.Token(context.Background(), engine.TokenRequest{
		GrantType:    engine.GrantAuthorizationCode,
		Code:         "expired-code",
		RedirectURI:  "https://app.example.com/cb",
		ClientID:     client.ClientID,
		ClientSecret: client.Secret,
	})
	engErr, ok := engine.AsError(err)
	if !ok || engErr.Name != engine.ErrNameInvalidGrant {
		t.Fatalf("expected invalid_grant for expired code, got %v", err)
	}
}

func TestToken_RefreshRotation(t *testing.T) {
	e, m := newTestEngine(t, engine.Defaults())
	client := newClient(t, m, "authorization_code", "refresh_token")
	code := authorize(t, e, client, "u1")

	first, err := e.Token(context.Background(), engine.TokenRequest{
		GrantType:    engine.GrantAuthorizationCode,
		Code:         code.AuthorizationCode,
		RedirectURI:  "https://app.example.com/cb",
		ClientID:     client.ClientID,
		ClientSecret: client.Secret,
	})
	if err != nil {
		t.Fatal(err)
	}

	second, err := e.Token(context.Background(), engine.TokenRequest{
		GrantType:    engine.GrantRefreshToken,
		RefreshToken: first.RefreshToken,
		ClientID:     client.ClientID,
		ClientSecret: client.Secret,
	})
	if err != nil {
		t.Fatal(err)
	}
	if second.AccessToken == first.AccessToken {
		t.Fatal("expected a fresh access token")
	}
	if second.RefreshToken == "" || second.RefreshToken == first.RefreshToken {
		t.Fatal("expected a rotated refresh token")
	}
	if second.User.ID != "u1" {
		t.Fatalf("expected user carried over, got %+v", second.User)
	}

	// el refresh usado queda revocado
	_, err = e.Token(context.Background(), engine.TokenRequest{
		GrantType:    engine.GrantRefreshToken,
		RefreshToken: first.RefreshToken,
		ClientID:     client.ClientID,
		ClientSecret: client.Secret,
	})
	engErr, ok := engine.AsError(err)
	if !ok || engErr.Name != engine.ErrNameInvalidGrant {
		t.Fatalf("expected invalid_grant on reused refresh token, got %v", err)
	}
}

func TestToken_UnsupportedGrant(t *testing.T) {
	e, _ := newTestEngine(t, engine.Defaults())
	_, err := e.Token(context.Background(), engine.TokenRequest{
		GrantType:    "client_credentials",
		ClientID:     "cid",
		ClientSecret: "secret",
	})
	engErr, ok := engine.AsError(err)
	if !ok || engErr.Name != engine.ErrNameUnsupportedGrantType {
		t.Fatalf("expected unsupported_grant_type, got %v", err)
	}
}

func TestAuthenticate(t *testing.T) {
	e, m := newTestEngine(t, engine.Defaults())
	client := newClient(t, m, "authorization_code")
	code := authorize(t, e, client, "u1")

	token, err := e.Token(context.Background(), engine.TokenRequest{
		GrantType:    engine.GrantAuthorizationCode,
		Code:         code.AuthorizationCode,
		RedirectURI:  "https://app.example.com/cb",
		ClientID:     client.ClientID,
		ClientSecret: client.Secret,
	})
	if err != nil {
		t.Fatal(err)
	}

	got, err := e.Authenticate(context.Background(), token.AccessToken, "")
	if err != nil {
		t.Fatal(err)
	}
	if got.User.ID != "u1" {
		t.Fatalf("unexpected token identity: %+v", got)
	}

	for _, bad := range []string{"", "  ", "nope"} {
		_, err := e.Authenticate(context.Background(), bad, "")
		engErr, ok := engine.AsError(err)
		if !ok || engErr.Name != engine.ErrNameInvalidToken {
			t.Fatalf("expected invalid_token for %q, got %v", bad, err)
		}
	}
}

func TestJWTAccessTokenGenerator(t *testing.T) {
	secret := []byte("test-secret")
	opts := engine.Defaults()
	opts.AccessTokenGenerator = engine.NewJWTAccessTokenGenerator(secret, "https://issuer.example.com")
	e, m := newTestEngine(t, opts)
	client := newClient(t, m, "authorization_code")
	code := authorize(t, e, client, "u1")

	token, err := e.Token(context.Background(), engine.TokenRequest{
		GrantType:    engine.GrantAuthorizationCode,
		Code:         code.AuthorizationCode,
		RedirectURI:  "https://app.example.com/cb",
		ClientID:     client.ClientID,
		ClientSecret: client.Secret,
	})
	if err != nil {
		t.Fatal(err)
	}
	if strings.Count(token.AccessToken, ".") != 2 {
		t.Fatalf("expected a JWT access token, got %q", token.AccessToken)
	}

	parsed, err := jwt.Parse(token.AccessToken, func(*jwt.Token) (any, error) { return secret, nil })
	if err != nil {
		t.Fatal(err)
	}
	claims := parsed.Claims.(jwt.MapClaims)
	if claims["sub"] != "u1" || claims["azp"] != client.ClientID {
		t.Fatalf("unexpected claims: %+v", claims)
	}

	// el JWT igual se resuelve por lookup
	if _, err := e.Authenticate(context.Background(), token.AccessToken, ""); err != nil {
		t.Fatal(err)
	}
}
