// Package consent mantiene los hooks de validación de decisión del resource
// owner. El host puede registrar un handler por instancia de servidor para
// vetar autorizaciones (por ejemplo, chequear que el usuario aceptó los
// términos del client). Sin handler registrado, toda decisión pasa.
package consent

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/leaonline/oauth2-server/internal/observability/logger"
)

// Request es la decisión a validar.
type Request struct {
	UserID      string
	ClientID    string
	RedirectURI string
	Scope       string
	Allowed     bool
}

// Handler valida un request de consentimiento. false rechaza la
// autorización; un error aborta el flujo con server_error.
type Handler func(ctx context.Context, req Request) (bool, error)

// Registry asocia un Handler a cada instancia de servidor. El registro es
// last-wins: registrar de nuevo reemplaza el handler anterior.
type Registry struct {
	mu       sync.RWMutex
	handlers map[any]Handler
	log      *zap.Logger
}

// NewRegistry crea un registry vacío.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[any]Handler),
		log:      logger.Named("consent"),
	}
}

// Register asocia el handler a la instancia dada.
func (r *Registry) Register(instance any, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[instance] = h
}

// IsValid corre el handler registrado para la instancia. Una instancia sin
// handler valida todo (con aviso en debug: el host probablemente olvidó
// registrar el suyo).
func (r *Registry) IsValid(ctx context.Context, instance any, req Request) (bool, error) {
	r.mu.RLock()
	h, ok := r.handlers[instance]
	r.mu.RUnlock()

	if !ok {
		r.log.Debug("no consent handler registered, allowing by default",
			logger.ClientID(req.ClientID), logger.UserID(req.UserID))
		return true, nil
	}
	return h(ctx, req)
}
