// Package core define el contrato del document-store sobre el que persiste
// el modelo OAuth2. Cada backend (memory, mongo, redis, pg) implementa
// Database/Collection; el resto del sistema solo conoce estas interfaces.
package core

import (
	"context"
	"errors"
)

var (
	// ErrNotFound indica que ningún documento matchea el filtro.
	ErrNotFound = errors.New("store: document not found")

	// ErrClosed indica que la conexión al store fue cerrada.
	ErrClosed = errors.New("store: connection closed")
)

// Doc es un documento arbitrario a insertar/upsertar.
// El campo "_id" se genera si no viene incluido.
type Doc map[string]any

// Filter es un filtro de igualdad campo → valor.
// Si el campo del documento es un array, el filtro matchea por pertenencia
// (misma semántica que una query de igualdad de Mongo sobre arrays).
type Filter map[string]any

// Collection expone las operaciones de una colección de documentos.
// Todas las operaciones son single-document salvo DeleteMany/Count;
// la atomicidad por documento la garantiza el backend.
type Collection interface {
	// Name retorna el nombre de la colección.
	Name() string

	// FindOne decodifica en out el primer documento que matchea el filtro.
	// Retorna ErrNotFound si no hay match.
	FindOne(ctx context.Context, filter Filter, out any) error

	// InsertOne inserta un documento y retorna su _id (generado si faltaba).
	InsertOne(ctx context.Context, doc Doc) (string, error)

	// UpdateOne aplica set/unset sobre el primer documento que matchea.
	// Retorna la cantidad de documentos modificados (0 o 1).
	UpdateOne(ctx context.Context, filter Filter, set Doc, unset []string) (int64, error)

	// UpsertOne reemplaza el documento que matchea el filtro por doc,
	// o lo inserta si no existe. Idempotente respecto del filtro.
	UpsertOne(ctx context.Context, filter Filter, doc Doc) error

	// DeleteMany elimina todos los documentos que matchean y retorna cuántos.
	DeleteMany(ctx context.Context, filter Filter) (int64, error)

	// Count cuenta los documentos que matchean el filtro.
	Count(ctx context.Context, filter Filter) (int64, error)

	// AddToSet agrega value al array field (sin duplicar) del documento que matchea.
	AddToSet(ctx context.Context, filter Filter, field string, value any) error

	// PullFromSet remueve value del array field del documento que matchea.
	PullFromSet(ctx context.Context, filter Filter, field string, value any) error
}

// Database es el handle de conexión a un document-store.
type Database interface {
	// Collection retorna el handle de la colección con ese nombre.
	// Los backends no fallan acá: los errores de conexión se ven en las operaciones.
	Collection(name string) Collection

	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}
