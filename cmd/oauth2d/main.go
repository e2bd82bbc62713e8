// oauth2d es el daemon del authorization server: expone los endpoints OAuth2
// sobre el storage configurado y, opcionalmente, /metrics.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	promhttp "github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/leaonline/oauth2-server/internal/config"
	"github.com/leaonline/oauth2-server/internal/engine"
	"github.com/leaonline/oauth2-server/internal/metrics"
	"github.com/leaonline/oauth2-server/internal/model"
	"github.com/leaonline/oauth2-server/internal/oauth2server"
	"github.com/leaonline/oauth2-server/internal/observability/logger"
	"github.com/leaonline/oauth2-server/internal/store/core"
	"github.com/leaonline/oauth2-server/internal/store/memory"
	mongodriver "github.com/leaonline/oauth2-server/internal/store/mongo"
	pgdriver "github.com/leaonline/oauth2-server/internal/store/pg"
	redisdriver "github.com/leaonline/oauth2-server/internal/store/redis"
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// openDatabase abre el backend según config.
func openDatabase(ctx context.Context, cfg *config.Config) (core.Database, error) {
	switch cfg.Storage.Driver {
	case "memory":
		return memory.New(), nil
	case "mongo":
		return mongodriver.Connect(ctx, cfg.Storage.Mongo.URI, cfg.Storage.Mongo.Database)
	case "redis":
		return redisdriver.Connect(ctx, cfg.Storage.Redis.Addr, cfg.Storage.Redis.DB, cfg.Storage.Redis.Prefix)
	case "pg":
		return pgdriver.Connect(ctx, cfg.Storage.Postgres.DSN)
	}
	return nil, fmt.Errorf("storage driver desconocido %q", cfg.Storage.Driver)
}

func serverOptions(cfg *config.Config) oauth2server.Options {
	opts := oauth2server.Options{
		AuthorizeURL:   cfg.OAuth.AuthorizeURL,
		AccessTokenURL: cfg.OAuth.AccessTokenURL,
		Debug:          cfg.App.Debug,
		ModelConfig: model.Config{
			AccessTokensCollectionName:  cfg.OAuth.Collections.AccessTokens,
			RefreshTokensCollectionName: cfg.OAuth.Collections.RefreshTokens,
			ClientsCollectionName:       cfg.OAuth.Collections.Clients,
			AuthCodesCollectionName:     cfg.OAuth.Collections.AuthCodes,
		},
		UsersCollectionName: cfg.OAuth.Collections.Users,
	}

	eng := engine.Defaults()
	eng.AuthorizationCodeLifetime = cfg.OAuth.AuthorizationCodeLifetime
	eng.AccessTokenLifetime = cfg.OAuth.AccessTokenLifetime
	eng.RefreshTokenLifetime = cfg.OAuth.RefreshTokenLifetime
	eng.RequireClientAuthentication = cfg.OAuth.RequireClientAuthentication
	eng.AllowBearerTokensInQueryString = cfg.OAuth.AllowBearerTokensInQueryString
	eng.AllowEmptyState = cfg.OAuth.AllowEmptyState
	eng.AddAcceptedScopesHeader = cfg.OAuth.AddAcceptedScopesHeader
	eng.AddAuthorizedScopesHeader = cfg.OAuth.AddAuthorizedScopesHeader
	eng.AllowExtendedTokenAttributes = cfg.OAuth.AllowExtendedTokenAttributes
	if cfg.JWT.Secret != "" {
		eng.AccessTokenGenerator = engine.NewJWTAccessTokenGenerator([]byte(cfg.JWT.Secret), cfg.JWT.Issuer)
	}
	opts.Engine = &eng
	return opts
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}
	return config.Load(path)
}

func runServe(configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	level := "info"
	if cfg.App.Debug {
		level = "debug"
	}
	logger.Init(logger.Config{Env: cfg.App.Env, Level: level, ServiceName: "oauth2d"})
	defer func() { _ = logger.Sync() }()
	log := logger.Named("main")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer func() { _ = db.Close(context.Background()) }()

	srv := oauth2server.New(db, serverOptions(cfg))

	mux := http.NewServeMux()
	mux.Handle("/", srv.Handler())
	if cfg.Metrics.Enabled {
		if err := metrics.Register(nil); err != nil {
			return fmt.Errorf("register metrics: %w", err)
		}
		mux.Handle(cfg.Metrics.Path, promhttp.Handler())
	}

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening",
			zap.String("addr", cfg.Server.Addr),
			zap.String("driver", cfg.Storage.Driver))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	}
}

func runRegisterClient(configPath string, reg engine.ClientRegistration) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger.Init(logger.Config{Env: cfg.App.Env, Level: "warn", ServiceName: "oauth2d"})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer func() { _ = db.Close(context.Background()) }()

	srv := oauth2server.New(db, serverOptions(cfg))
	client, err := srv.RegisterClient(ctx, reg)
	if err != nil {
		return err
	}
	out, _ := json.MarshalIndent(client, "", "  ")
	fmt.Println(string(out))
	return nil
}

func runSeedUser(configPath, username string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger.Init(logger.Config{Env: cfg.App.Env, Level: "warn", ServiceName: "oauth2d"})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer func() { _ = db.Close(context.Background()) }()

	srv := oauth2server.New(db, serverOptions(cfg))
	user, loginToken, err := srv.Users().CreateWithLoginToken(ctx, username)
	if err != nil {
		return err
	}
	fmt.Printf("user=%s login_token=%s\n", user.ID, loginToken)
	return nil
}

func main() {
	_ = godotenv.Load()

	var configPath string

	root := &cobra.Command{
		Use:           "oauth2d",
		Short:         "OAuth2 authorization server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", envOr("OAUTH2D_CONFIG", ""), "ruta al config.yaml")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Arranca el servidor HTTP",
		RunE: func(_ *cobra.Command, _ []string) error {
			return runServe(configPath)
		},
	}

	var reg engine.ClientRegistration
	registerCmd := &cobra.Command{
		Use:   "register-client",
		Short: "Registra (o actualiza, por título) un client OAuth2",
		RunE: func(_ *cobra.Command, _ []string) error {
			return runRegisterClient(configPath, reg)
		},
	}
	registerCmd.Flags().StringVar(&reg.Title, "title", "", "nombre único del client")
	registerCmd.Flags().StringVar(&reg.Homepage, "homepage", "", "URL del sitio del client")
	registerCmd.Flags().StringVar(&reg.Description, "description", "", "descripción")
	registerCmd.Flags().StringVar(&reg.PrivacyLink, "privacy-link", "", "URL de la política de privacidad")
	registerCmd.Flags().StringSliceVar(&reg.RedirectURIs, "redirect-uri", nil, "redirect URI permitida (repetible)")
	registerCmd.Flags().StringSliceVar(&reg.Grants, "grant", nil, "grant permitido (default: authorization_code, refresh_token)")
	registerCmd.Flags().StringVar(&reg.ClientID, "client-id", "", "clientId explícito (default: generado)")
	registerCmd.Flags().StringVar(&reg.Secret, "secret", "", "secret explícito (default: generado)")
	_ = registerCmd.MarkFlagRequired("title")
	_ = registerCmd.MarkFlagRequired("redirect-uri")

	var username string
	seedCmd := &cobra.Command{
		Use:   "seed-user",
		Short: "Crea un usuario de prueba y emite su login token",
		RunE: func(_ *cobra.Command, _ []string) error {
			return runSeedUser(configPath, username)
		},
	}
	seedCmd.Flags().StringVar(&username, "username", "", "nombre de usuario")
	_ = seedCmd.MarkFlagRequired("username")

	root.AddCommand(serveCmd, registerCmd, seedCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
