package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// Bloque app (opcional en YAML). Si no está, queda vacío.
	App struct {
		// dev | staging | prod
		Env   string `yaml:"app_env"`
		Debug bool   `yaml:"debug"`
	} `yaml:"app"`

	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`

	Storage struct {
		// memory | mongo | redis | pg
		Driver string `yaml:"driver"`
		Mongo  struct {
			URI      string `yaml:"uri"`
			Database string `yaml:"database"`
		} `yaml:"mongo"`
		Redis struct {
			Addr   string `yaml:"addr"`
			DB     int    `yaml:"db"`
			Prefix string `yaml:"prefix"`
		} `yaml:"redis"`
		Postgres struct {
			DSN string `yaml:"dsn"`
		} `yaml:"postgres"`
	} `yaml:"storage"`

	OAuth struct {
		AuthorizeURL   string `yaml:"authorize_url"`
		AccessTokenURL string `yaml:"access_token_url"`

		// Lifetimes en segundos
		AuthorizationCodeLifetime int `yaml:"authorization_code_lifetime"`
		AccessTokenLifetime       int `yaml:"access_token_lifetime"`
		RefreshTokenLifetime      int `yaml:"refresh_token_lifetime"`

		RequireClientAuthentication    bool `yaml:"require_client_authentication"`
		AllowBearerTokensInQueryString bool `yaml:"allow_bearer_tokens_in_query_string"`
		AllowEmptyState                bool `yaml:"allow_empty_state"`
		AddAcceptedScopesHeader        bool `yaml:"add_accepted_scopes_header"`
		AddAuthorizedScopesHeader      bool `yaml:"add_authorized_scopes_header"`
		AllowExtendedTokenAttributes   bool `yaml:"allow_extended_token_attributes"`

		Collections struct {
			AccessTokens  string `yaml:"access_tokens"`
			RefreshTokens string `yaml:"refresh_tokens"`
			Clients       string `yaml:"clients"`
			AuthCodes     string `yaml:"auth_codes"`
			Users         string `yaml:"users"`
		} `yaml:"collections"`
	} `yaml:"oauth"`

	JWT struct {
		// Con secret presente, los access tokens se emiten como JWT HS256.
		Secret string `yaml:"secret"`
		Issuer string `yaml:"issuer"`
	} `yaml:"jwt"`

	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`
}

// Load lee el YAML (path vacío: solo defaults + entorno), aplica defaults y
// pisa con variables de entorno.
func Load(path string) (*Config, error) {
	var c Config
	// Toggles que arrancan en true: se setean antes del unmarshal, así una
	// clave ausente en el YAML conserva el default y solo un false explícito
	// lo apaga. Sin esto, omitir require_client_authentication dejaría el
	// refresh grant sin exigir secret.
	c.OAuth.RequireClientAuthentication = true
	c.OAuth.AllowEmptyState = true
	c.OAuth.AddAcceptedScopesHeader = true
	c.OAuth.AddAuthorizedScopesHeader = true
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, err
		}
	}

	// sane defaults
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "memory"
	}
	if c.Storage.Mongo.Database == "" {
		c.Storage.Mongo.Database = "oauth2"
	}
	if c.Storage.Redis.Prefix == "" {
		c.Storage.Redis.Prefix = "oauth2"
	}
	if c.OAuth.AuthorizeURL == "" {
		c.OAuth.AuthorizeURL = "/oauth/authorize"
	}
	if c.OAuth.AccessTokenURL == "" {
		c.OAuth.AccessTokenURL = "/oauth/token"
	}
	if c.OAuth.AuthorizationCodeLifetime == 0 {
		c.OAuth.AuthorizationCodeLifetime = 300
	}
	if c.OAuth.AccessTokenLifetime == 0 {
		c.OAuth.AccessTokenLifetime = 3600
	}
	if c.OAuth.RefreshTokenLifetime == 0 {
		c.OAuth.RefreshTokenLifetime = 1209600 // 14d
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}

	c.applyEnvOverrides()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func getEnvStr(key string) (string, bool) {
	v := os.Getenv(key)
	return v, v != ""
}
func getEnvInt(key string) (int, bool) {
	if s, ok := getEnvStr(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i, true
		}
	}
	return 0, false
}
func getEnvBool(key string) (bool, bool) {
	if s, ok := getEnvStr(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return b, true
		}
	}
	return false, false
}

// applyEnvOverrides: pisa config.yaml con variables de entorno.
func (c *Config) applyEnvOverrides() {
	// APP
	if v, ok := getEnvStr("APP_ENV"); ok {
		c.App.Env = strings.ToLower(v)
	}
	if v, ok := getEnvBool("APP_DEBUG"); ok {
		c.App.Debug = v
	}

	// SERVER
	if v, ok := getEnvStr("SERVER_ADDR"); ok {
		c.Server.Addr = v
	}

	// STORAGE
	if v, ok := getEnvStr("STORAGE_DRIVER"); ok {
		c.Storage.Driver = strings.ToLower(v)
	}
	if v, ok := getEnvStr("MONGO_URI"); ok {
		c.Storage.Mongo.URI = v
	}
	if v, ok := getEnvStr("MONGO_DATABASE"); ok {
		c.Storage.Mongo.Database = v
	}
	if v, ok := getEnvStr("REDIS_ADDR"); ok {
		c.Storage.Redis.Addr = v
	}
	if v, ok := getEnvInt("REDIS_DB"); ok {
		c.Storage.Redis.DB = v
	}
	if v, ok := getEnvStr("REDIS_PREFIX"); ok {
		c.Storage.Redis.Prefix = v
	}
	if v, ok := getEnvStr("POSTGRES_DSN"); ok {
		c.Storage.Postgres.DSN = v
	}

	// OAUTH
	if v, ok := getEnvStr("OAUTH_AUTHORIZE_URL"); ok {
		c.OAuth.AuthorizeURL = v
	}
	if v, ok := getEnvStr("OAUTH_ACCESS_TOKEN_URL"); ok {
		c.OAuth.AccessTokenURL = v
	}
	if v, ok := getEnvInt("OAUTH_CODE_LIFETIME"); ok {
		c.OAuth.AuthorizationCodeLifetime = v
	}
	if v, ok := getEnvInt("OAUTH_ACCESS_TOKEN_LIFETIME"); ok {
		c.OAuth.AccessTokenLifetime = v
	}
	if v, ok := getEnvInt("OAUTH_REFRESH_TOKEN_LIFETIME"); ok {
		c.OAuth.RefreshTokenLifetime = v
	}
	if v, ok := getEnvBool("OAUTH_REQUIRE_CLIENT_AUTH"); ok {
		c.OAuth.RequireClientAuthentication = v
	}
	if v, ok := getEnvBool("OAUTH_ALLOW_BEARER_IN_QUERY"); ok {
		c.OAuth.AllowBearerTokensInQueryString = v
	}
	if v, ok := getEnvBool("OAUTH_ALLOW_EMPTY_STATE"); ok {
		c.OAuth.AllowEmptyState = v
	}
	if v, ok := getEnvBool("OAUTH_ADD_ACCEPTED_SCOPES_HEADER"); ok {
		c.OAuth.AddAcceptedScopesHeader = v
	}
	if v, ok := getEnvBool("OAUTH_ADD_AUTHORIZED_SCOPES_HEADER"); ok {
		c.OAuth.AddAuthorizedScopesHeader = v
	}
	if v, ok := getEnvBool("OAUTH_EXTENDED_TOKEN_ATTRIBUTES"); ok {
		c.OAuth.AllowExtendedTokenAttributes = v
	}

	// JWT
	if v, ok := getEnvStr("JWT_SECRET"); ok {
		c.JWT.Secret = v
	}
	if v, ok := getEnvStr("JWT_ISSUER"); ok {
		c.JWT.Issuer = v
	}

	// METRICS
	if v, ok := getEnvBool("METRICS_ENABLED"); ok {
		c.Metrics.Enabled = v
	}
}

// Validate chequea la coherencia mínima para poder arrancar.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "memory":
	case "mongo":
		if c.Storage.Mongo.URI == "" {
			return fmt.Errorf("config: storage.mongo.uri requerido con driver mongo")
		}
	case "redis":
		if c.Storage.Redis.Addr == "" {
			return fmt.Errorf("config: storage.redis.addr requerido con driver redis")
		}
	case "pg":
		if c.Storage.Postgres.DSN == "" {
			return fmt.Errorf("config: storage.postgres.dsn requerido con driver pg")
		}
	default:
		return fmt.Errorf("config: storage.driver desconocido %q", c.Storage.Driver)
	}
	if c.JWT.Secret != "" && c.JWT.Issuer == "" {
		return fmt.Errorf("config: jwt.issuer requerido cuando jwt.secret está presente")
	}
	return nil
}
