// Package oauth2server orquesta el flujo authorization-code sobre HTTP:
// validación por etapas, consentimiento del resource owner, emisión de código
// y canje por tokens. Toda respuesta de error sale por httpx.ErrorResponse.
package oauth2server

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/leaonline/oauth2-server/internal/consent"
	"github.com/leaonline/oauth2-server/internal/engine"
	"github.com/leaonline/oauth2-server/internal/model"
	"github.com/leaonline/oauth2-server/internal/observability/logger"
	"github.com/leaonline/oauth2-server/internal/store/core"
	"github.com/leaonline/oauth2-server/internal/users"
)

// Rutas por defecto.
const (
	DefaultAuthorizeURL   = "/oauth/authorize"
	DefaultAccessTokenURL = "/oauth/token"
)

// Options configura una instancia del servidor.
type Options struct {
	AuthorizeURL   string
	AccessTokenURL string

	// Debug habilita el detalle de diagnóstico en los logs. Nunca cambia
	// las respuestas.
	Debug bool

	// Model reemplaza el modelo por defecto. Si es nil se construye un
	// model.OAuthModel con ModelConfig sobre la base dada.
	Model       engine.Model
	ModelConfig model.Config

	// Engine reemplaza las opciones del engine. Nil usa engine.Defaults().
	Engine *engine.Options

	UsersCollectionName string
	UsersCollection     core.Collection
}

// Server es una instancia del authorization server. Varias instancias pueden
// convivir en el mismo proceso, cada una con sus rutas, modelo y handler de
// consentimiento.
type Server struct {
	opts     Options
	model    engine.Model
	engine   *engine.Engine
	consents *consent.Registry
	users    *users.Store
	log      *zap.Logger
	router   chi.Router
}

// New construye el servidor sobre la base de documentos dada.
func New(db core.Database, opts Options) *Server {
	if opts.AuthorizeURL == "" {
		opts.AuthorizeURL = DefaultAuthorizeURL
	}
	if opts.AccessTokenURL == "" {
		opts.AccessTokenURL = DefaultAccessTokenURL
	}

	m := opts.Model
	if m == nil {
		m = model.New(db, opts.ModelConfig)
	}

	engOpts := engine.Defaults()
	if opts.Engine != nil {
		engOpts = *opts.Engine
	}

	s := &Server{
		opts:     opts,
		model:    m,
		engine:   engine.New(m, engOpts),
		consents: consent.NewRegistry(),
		users:    users.NewStore(db, opts.UsersCollectionName, opts.UsersCollection),
		log:      logger.Named("oauth2server"),
	}
	s.router = s.buildRouter()
	return s
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(s.recoverer)
	r.Use(s.observe)
	r.Get(s.opts.AuthorizeURL, s.handleAuthorizeGet)
	r.Post(s.opts.AuthorizeURL, s.handleAuthorizePost)
	r.Post(s.opts.AccessTokenURL, s.handleToken)
	r.NotFound(s.handleFallback)
	r.MethodNotAllowed(s.handleFallback)
	return r
}

// Handler expone el router del servidor.
func (s *Server) Handler() http.Handler { return s.router }

// ServeHTTP permite montar el servidor directamente.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Engine expone el engine (para AuthenticatedRoute de los hosts).
func (s *Server) Engine() *engine.Engine { return s.engine }

// Model expone el modelo subyacente.
func (s *Server) Model() engine.Model { return s.model }

// RegisterConsentHandler registra el hook de consentimiento de esta
// instancia. Registrar de nuevo reemplaza el handler anterior.
func (s *Server) RegisterConsentHandler(h consent.Handler) {
	s.consents.Register(s, h)
}

// RegisterClient da de alta (o actualiza, por título) un client.
func (s *Server) RegisterClient(ctx context.Context, reg engine.ClientRegistration) (*engine.Client, error) {
	if len(reg.Grants) == 0 {
		reg.Grants = []string{engine.GrantAuthorizationCode, engine.GrantRefreshToken}
	}
	return s.model.CreateClient(ctx, reg)
}

// ValidateUser resuelve el resource owner por su login token. Miss retorna
// (nil, nil).
func (s *Server) ValidateUser(ctx context.Context, loginToken string) (*users.User, error) {
	return s.users.ByLoginToken(ctx, loginToken)
}

// Users expone el store de usuarios (seeding, comandos).
func (s *Server) Users() *users.Store { return s.users }
