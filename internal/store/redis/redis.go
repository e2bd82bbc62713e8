// Package redis implementa el document-store sobre Redis.
// Cada colección es un hash: field = _id, value = documento JSON.
// El filtrado se hace en memoria: las colecciones OAuth2 (clients, tokens,
// codes) son chicas y los lookups dominantes van por campo único.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	rdb "github.com/redis/go-redis/v9"

	"github.com/leaonline/oauth2-server/internal/store/core"
)

// DB envuelve un cliente Redis como core.Database.
type DB struct {
	c      *rdb.Client
	prefix string

	// serializa las mutaciones read-modify-write dentro del proceso
	mu sync.Mutex
}

// Connect crea el cliente y verifica con un ping.
func Connect(ctx context.Context, addr string, db int, prefix string) (*DB, error) {
	c := rdb.NewClient(&rdb.Options{Addr: addr, DB: db})
	if err := c.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	if prefix == "" {
		prefix = "oauth2"
	}
	return &DB{c: c, prefix: prefix}, nil
}

func (d *DB) Collection(name string) core.Collection {
	return &collection{db: d, name: name, key: d.prefix + ":" + name}
}

func (d *DB) Ping(ctx context.Context) error  { return d.c.Ping(ctx).Err() }
func (d *DB) Close(ctx context.Context) error { return d.c.Close() }

type collection struct {
	db   *DB
	name string
	key  string
}

func (c *collection) Name() string { return c.name }

// all retorna los documentos decodificados de la colección, keyed por _id.
func (c *collection) all(ctx context.Context) (map[string]map[string]any, error) {
	raw, err := c.db.c.HGetAll(ctx, c.key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: hgetall %s: %w", c.key, err)
	}
	out := make(map[string]map[string]any, len(raw))
	for id, v := range raw {
		var doc map[string]any
		if err := json.Unmarshal([]byte(v), &doc); err != nil {
			continue
		}
		out[id] = doc
	}
	return out, nil
}

func (c *collection) findFirst(ctx context.Context, filter core.Filter) (string, map[string]any, error) {
	docs, err := c.all(ctx)
	if err != nil {
		return "", nil, err
	}
	for id, doc := range docs {
		if core.Matches(doc, filter) {
			return id, doc, nil
		}
	}
	return "", nil, nil
}

func (c *collection) put(ctx context.Context, id string, doc map[string]any) error {
	b, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("redis: encode doc: %w", err)
	}
	return c.db.c.HSet(ctx, c.key, id, string(b)).Err()
}

func (c *collection) FindOne(ctx context.Context, filter core.Filter, out any) error {
	_, doc, err := c.findFirst(ctx, filter)
	if err != nil {
		return err
	}
	if doc == nil {
		return core.ErrNotFound
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}

func (c *collection) InsertOne(ctx context.Context, doc core.Doc) (string, error) {
	d := core.CloneDoc(doc)
	id := core.EnsureID(d)
	b, err := json.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("redis: encode doc: %w", err)
	}
	if err := c.db.c.HSet(ctx, c.key, id, string(b)).Err(); err != nil {
		return "", err
	}
	return id, nil
}

func (c *collection) UpdateOne(ctx context.Context, filter core.Filter, set core.Doc, unset []string) (int64, error) {
	c.db.mu.Lock()
	defer c.db.mu.Unlock()
	id, doc, err := c.findFirst(ctx, filter)
	if err != nil {
		return 0, err
	}
	if doc == nil {
		return 0, nil
	}
	for k, v := range set {
		doc[k] = v
	}
	for _, k := range unset {
		delete(doc, k)
	}
	if err := c.put(ctx, id, doc); err != nil {
		return 0, err
	}
	return 1, nil
}

func (c *collection) UpsertOne(ctx context.Context, filter core.Filter, doc core.Doc) error {
	c.db.mu.Lock()
	defer c.db.mu.Unlock()
	d := core.CloneDoc(doc)
	id, existing, err := c.findFirst(ctx, filter)
	if err != nil {
		return err
	}
	if existing != nil {
		d["_id"] = id
		return c.put(ctx, id, d)
	}
	id = core.EnsureID(d)
	return c.put(ctx, id, d)
}

func (c *collection) DeleteMany(ctx context.Context, filter core.Filter) (int64, error) {
	c.db.mu.Lock()
	defer c.db.mu.Unlock()
	docs, err := c.all(ctx)
	if err != nil {
		return 0, err
	}
	var ids []string
	for id, doc := range docs {
		if core.Matches(doc, filter) {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return 0, nil
	}
	if err := c.db.c.HDel(ctx, c.key, ids...).Err(); err != nil {
		return 0, err
	}
	return int64(len(ids)), nil
}

func (c *collection) Count(ctx context.Context, filter core.Filter) (int64, error) {
	docs, err := c.all(ctx)
	if err != nil {
		return 0, err
	}
	var n int64
	for _, doc := range docs {
		if core.Matches(doc, filter) {
			n++
		}
	}
	return n, nil
}

func (c *collection) AddToSet(ctx context.Context, filter core.Filter, field string, value any) error {
	c.db.mu.Lock()
	defer c.db.mu.Unlock()
	id, doc, err := c.findFirst(ctx, filter)
	if err != nil {
		return err
	}
	if doc == nil {
		return core.ErrNotFound
	}
	arr, _ := doc[field].([]any)
	for _, v := range arr {
		if v == value {
			return nil
		}
	}
	doc[field] = append(arr, value)
	return c.put(ctx, id, doc)
}

func (c *collection) PullFromSet(ctx context.Context, filter core.Filter, field string, value any) error {
	c.db.mu.Lock()
	defer c.db.mu.Unlock()
	id, doc, err := c.findFirst(ctx, filter)
	if err != nil {
		return err
	}
	if doc == nil {
		return core.ErrNotFound
	}
	arr, _ := doc[field].([]any)
	out := make([]any, 0, len(arr))
	for _, v := range arr {
		if v != value {
			out = append(out, v)
		}
	}
	doc[field] = out
	return c.put(ctx, id, doc)
}
