// Package mongo implementa el document-store sobre MongoDB.
// Es el backend canónico: el modelo OAuth2 fue diseñado contra colecciones Mongo.
package mongo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/leaonline/oauth2-server/internal/store/core"
)

// DB envuelve una base Mongo como core.Database.
type DB struct {
	client *mongo.Client
	db     *mongo.Database
}

// Connect abre la conexión y verifica con un ping.
// Los errores acá son fatales en el arranque: se propagan sin envolver lógica de retry.
func Connect(ctx context.Context, uri, database string) (*DB, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo: connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("mongo: ping: %w", err)
	}
	return &DB{client: client, db: client.Database(database)}, nil
}

func (d *DB) Collection(name string) core.Collection {
	return &collection{col: d.db.Collection(name)}
}

func (d *DB) Ping(ctx context.Context) error {
	return d.client.Ping(ctx, nil)
}

func (d *DB) Close(ctx context.Context) error {
	return d.client.Disconnect(ctx)
}

type collection struct {
	col *mongo.Collection
}

func (c *collection) Name() string { return c.col.Name() }

func toBSON(f core.Filter) bson.M {
	m := bson.M(f)
	if m == nil {
		m = bson.M{}
	}
	return m
}

func (c *collection) FindOne(ctx context.Context, filter core.Filter, out any) error {
	err := c.col.FindOne(ctx, toBSON(filter)).Decode(out)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return core.ErrNotFound
	}
	return err
}

func (c *collection) InsertOne(ctx context.Context, doc core.Doc) (string, error) {
	d := core.CloneDoc(doc)
	id := core.EnsureID(d)
	if _, err := c.col.InsertOne(ctx, bson.M(d)); err != nil {
		return "", err
	}
	return id, nil
}

func (c *collection) UpdateOne(ctx context.Context, filter core.Filter, set core.Doc, unset []string) (int64, error) {
	update := bson.M{}
	if len(set) > 0 {
		update["$set"] = bson.M(set)
	}
	if len(unset) > 0 {
		u := bson.M{}
		for _, k := range unset {
			u[k] = ""
		}
		update["$unset"] = u
	}
	if len(update) == 0 {
		return 0, nil
	}
	res, err := c.col.UpdateOne(ctx, toBSON(filter), update)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

func (c *collection) UpsertOne(ctx context.Context, filter core.Filter, doc core.Doc) error {
	d := core.CloneDoc(doc)
	delete(d, "_id") // el _id lo decide el documento existente o el setOnInsert
	update := bson.M{
		"$set": bson.M(d),
		// _id string propio para mantener ids uniformes entre backends
		"$setOnInsert": bson.M{"_id": uuid.NewString()},
	}
	_, err := c.col.UpdateOne(ctx, toBSON(filter), update, options.Update().SetUpsert(true))
	return err
}

func (c *collection) DeleteMany(ctx context.Context, filter core.Filter) (int64, error) {
	res, err := c.col.DeleteMany(ctx, toBSON(filter))
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

func (c *collection) Count(ctx context.Context, filter core.Filter) (int64, error) {
	return c.col.CountDocuments(ctx, toBSON(filter))
}

func (c *collection) AddToSet(ctx context.Context, filter core.Filter, field string, value any) error {
	res, err := c.col.UpdateOne(ctx, toBSON(filter), bson.M{"$addToSet": bson.M{field: value}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (c *collection) PullFromSet(ctx context.Context, filter core.Filter, field string, value any) error {
	res, err := c.col.UpdateOne(ctx, toBSON(filter), bson.M{"$pull": bson.M{field: value}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return core.ErrNotFound
	}
	return nil
}
