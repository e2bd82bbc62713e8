package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Fatalf("unexpected addr %q", cfg.Server.Addr)
	}
	if cfg.Storage.Driver != "memory" {
		t.Fatalf("unexpected driver %q", cfg.Storage.Driver)
	}
	if cfg.OAuth.AuthorizeURL != "/oauth/authorize" || cfg.OAuth.AccessTokenURL != "/oauth/token" {
		t.Fatalf("unexpected routes %q %q", cfg.OAuth.AuthorizeURL, cfg.OAuth.AccessTokenURL)
	}
	if cfg.OAuth.AccessTokenLifetime != 3600 || cfg.OAuth.AuthorizationCodeLifetime != 300 {
		t.Fatalf("unexpected lifetimes %d %d", cfg.OAuth.AccessTokenLifetime, cfg.OAuth.AuthorizationCodeLifetime)
	}
	if !cfg.OAuth.RequireClientAuthentication {
		t.Fatal("client authentication must stay on by default")
	}
	if !cfg.OAuth.AllowEmptyState || !cfg.OAuth.AddAcceptedScopesHeader || !cfg.OAuth.AddAuthorizedScopesHeader {
		t.Fatalf("unexpected toggle defaults %+v", cfg.OAuth)
	}
	if cfg.OAuth.AllowExtendedTokenAttributes {
		t.Fatal("extended token attributes must stay off by default")
	}
}

// Una clave booleana ausente en el YAML no debe pisar el default con el
// zero value; solo un false explícito la apaga.
func TestLoad_BoolTogglesFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
oauth:
  access_token_lifetime: 60
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.OAuth.RequireClientAuthentication {
		t.Fatal("omitting require_client_authentication must keep it on")
	}

	yaml = `
oauth:
  require_client_authentication: false
  allow_empty_state: false
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err = Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.OAuth.RequireClientAuthentication {
		t.Fatal("explicit false must turn client authentication off")
	}
	if cfg.OAuth.AllowEmptyState {
		t.Fatal("explicit false must turn allow_empty_state off")
	}
}

func TestLoad_YAMLAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
server:
  addr: ":9999"
storage:
  driver: redis
  redis:
    addr: "localhost:6379"
oauth:
  access_token_lifetime: 120
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SERVER_ADDR", ":7777")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Addr != ":7777" {
		t.Fatalf("expected env to win, got %q", cfg.Server.Addr)
	}
	if cfg.Storage.Driver != "redis" || cfg.Storage.Redis.Addr != "localhost:6379" {
		t.Fatalf("unexpected storage %+v", cfg.Storage)
	}
	if cfg.OAuth.AccessTokenLifetime != 120 {
		t.Fatalf("unexpected lifetime %d", cfg.OAuth.AccessTokenLifetime)
	}
	if cfg.Storage.Redis.Prefix != "oauth2" {
		t.Fatalf("expected default prefix, got %q", cfg.Storage.Redis.Prefix)
	}
}

func TestLoad_InvalidDriver(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("storage:\n  driver: bolt\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestLoad_MissingDSN(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("storage:\n  driver: pg\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for pg driver without dsn")
	}
}
