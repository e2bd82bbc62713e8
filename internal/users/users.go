// Package users resuelve la identidad del resource owner. El authorization
// server no gestiona cuentas: lee la colección de usuarios del host y matchea
// login tokens ya emitidos por él, hasheados en tránsito.
package users

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/leaonline/oauth2-server/internal/observability/logger"
	tokens "github.com/leaonline/oauth2-server/internal/security/token"
	"github.com/leaonline/oauth2-server/internal/store"
	"github.com/leaonline/oauth2-server/internal/store/core"
)

// DefaultCollection es la colección de usuarios del host.
const DefaultCollection = "users"

// User es la proyección mínima que este servidor necesita de un usuario.
type User struct {
	ID                string   `bson:"_id,omitempty" json:"_id,omitempty"`
	Username          string   `bson:"username,omitempty" json:"username,omitempty"`
	HashedTokens      []string `bson:"hashedTokens" json:"hashedTokens"`
	AuthorizedClients []string `bson:"authorizedClients,omitempty" json:"authorizedClients,omitempty"`
}

// Store lee y actualiza usuarios sobre cualquier backend de documentos.
type Store struct {
	resolver *store.Resolver
	name     string
	explicit core.Collection
	log      *zap.Logger
}

// NewStore crea el store. name vacío usa DefaultCollection; un handle
// explícito gana sobre el nombre.
func NewStore(db core.Database, name string, explicit core.Collection) *Store {
	if name == "" {
		name = DefaultCollection
	}
	return &Store{
		resolver: store.NewResolver(db),
		name:     name,
		explicit: explicit,
		log:      logger.Named("users"),
	}
}

func (s *Store) collection() core.Collection {
	return s.resolver.Resolve(s.explicit, s.name)
}

// ByLoginToken resuelve el usuario dueño del login token presentado. El token
// viaja en claro en el POST del diálogo y se matchea contra sus hashes
// almacenados. Miss retorna (nil, nil): el caller decide el error protocolar.
func (s *Store) ByLoginToken(ctx context.Context, loginToken string) (*User, error) {
	if loginToken == "" {
		return nil, nil
	}
	hashed := tokens.SHA256Base64(loginToken)
	var u User
	err := s.collection().FindOne(ctx, core.Filter{"hashedTokens": hashed}, &u)
	if errors.Is(err, core.ErrNotFound) {
		s.log.Debug("login token did not match any user")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.name, err)
	}
	return &u, nil
}

// ByID resuelve un usuario por su id. Miss retorna (nil, nil).
func (s *Store) ByID(ctx context.Context, id string) (*User, error) {
	var u User
	err := s.collection().FindOne(ctx, core.Filter{"_id": id}, &u)
	if errors.Is(err, core.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.name, err)
	}
	return &u, nil
}

// SetClientAuthorization registra o retira el client de la lista de clients
// autorizados del usuario. Ambas direcciones son idempotentes.
func (s *Store) SetClientAuthorization(ctx context.Context, userID, clientID string, allowed bool) error {
	filter := core.Filter{"_id": userID}
	var err error
	if allowed {
		err = s.collection().AddToSet(ctx, filter, "authorizedClients", clientID)
	} else {
		err = s.collection().PullFromSet(ctx, filter, "authorizedClients", clientID)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", s.name, err)
	}
	s.log.Debug("client authorization updated",
		logger.UserID(userID), logger.ClientID(clientID), zap.Bool("allowed", allowed))
	return nil
}

// CreateWithLoginToken inserta un usuario y le emite un login token en claro,
// almacenando solo el hash. Pensado para seeding y para el comando de
// desarrollo; un deployment real comparte la colección con el host.
func (s *Store) CreateWithLoginToken(ctx context.Context, username string) (*User, string, error) {
	loginToken, err := tokens.GenerateOpaqueToken(24)
	if err != nil {
		return nil, "", err
	}
	doc := core.Doc{
		"username":     username,
		"hashedTokens": []string{tokens.SHA256Base64(loginToken)},
	}
	id, err := s.collection().InsertOne(ctx, doc)
	if err != nil {
		return nil, "", fmt.Errorf("%s: %w", s.name, err)
	}
	return &User{ID: id, Username: username, HashedTokens: []string{tokens.SHA256Base64(loginToken)}}, loginToken, nil
}
