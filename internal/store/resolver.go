// Package store provee el resolver de colecciones sobre un core.Database.
package store

import (
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/leaonline/oauth2-server/internal/store/core"
)

// Resolver cachea handles de colección por nombre.
// Thread-safe, usa singleflight para evitar creaciones duplicadas
// ante primer acceso concurrente.
//
// Es estado del composition root: se construye una vez en el wiring
// y se pasa por referencia a quien lo necesite (no hay singletons de paquete).
type Resolver struct {
	db core.Database

	mu      sync.RWMutex
	handles map[string]core.Collection
	sf      singleflight.Group
}

// NewResolver crea un resolver sobre la base dada.
func NewResolver(db core.Database) *Resolver {
	return &Resolver{
		db:      db,
		handles: make(map[string]core.Collection),
	}
}

// Resolve retorna el handle para name.
// Si explicit no es nil, gana el storage provisto por el caller y se
// retorna sin tocar el cache. Llamadas repetidas con el mismo name
// retornan siempre el mismo handle.
func (r *Resolver) Resolve(explicit core.Collection, name string) core.Collection {
	if explicit != nil {
		return explicit
	}

	r.mu.RLock()
	if h, ok := r.handles[name]; ok {
		r.mu.RUnlock()
		return h
	}
	r.mu.RUnlock()

	v, _, _ := r.sf.Do(name, func() (any, error) {
		r.mu.RLock()
		if h, ok := r.handles[name]; ok {
			r.mu.RUnlock()
			return h, nil
		}
		r.mu.RUnlock()

		h := r.db.Collection(name)

		r.mu.Lock()
		r.handles[name] = h
		r.mu.Unlock()
		return h, nil
	})
	return v.(core.Collection)
}

// Database expone la base subyacente (ping/close desde el wiring).
func (r *Resolver) Database() core.Database {
	return r.db
}
