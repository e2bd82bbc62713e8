// Package memory implementa el document-store en memoria (desarrollo y tests).
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	gocache "github.com/patrickmn/go-cache"

	"github.com/leaonline/oauth2-server/internal/store/core"
)

// DB es un document-store in-process.
type DB struct {
	mu   sync.Mutex
	cols map[string]*collection
}

// New crea una base en memoria vacía.
func New() *DB {
	return &DB{cols: make(map[string]*collection)}
}

func (d *DB) Collection(name string) core.Collection {
	d.mu.Lock()
	defer d.mu.Unlock()
	if c, ok := d.cols[name]; ok {
		return c
	}
	c := &collection{
		name: name,
		docs: gocache.New(gocache.NoExpiration, 0),
	}
	d.cols[name] = c
	return c
}

func (d *DB) Ping(ctx context.Context) error  { return nil }
func (d *DB) Close(ctx context.Context) error { return nil }

// collection guarda documentos serializados como JSON, keyed por _id.
// El mutex serializa las mutaciones read-modify-write (upsert, update).
type collection struct {
	name string
	mu   sync.Mutex
	docs *gocache.Cache
}

func (c *collection) Name() string { return c.name }

// findFirst retorna (_id, doc) del primer documento que matchea, o "" si no hay.
func (c *collection) findFirst(filter core.Filter) (string, map[string]any) {
	for id, item := range c.docs.Items() {
		doc := decode(item.Object)
		if doc != nil && core.Matches(doc, filter) {
			return id, doc
		}
	}
	return "", nil
}

func decode(v any) map[string]any {
	b, ok := v.([]byte)
	if !ok {
		return nil
	}
	var doc map[string]any
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil
	}
	return doc
}

func (c *collection) put(id string, doc map[string]any) error {
	b, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("memory: encode doc: %w", err)
	}
	c.docs.Set(id, b, gocache.NoExpiration)
	return nil
}

func (c *collection) FindOne(ctx context.Context, filter core.Filter, out any) error {
	c.mu.Lock()
	_, doc := c.findFirst(filter)
	c.mu.Unlock()
	if doc == nil {
		return core.ErrNotFound
	}
	return remarshal(doc, out)
}

func (c *collection) InsertOne(ctx context.Context, doc core.Doc) (string, error) {
	d := core.CloneDoc(doc)
	id := core.EnsureID(d)
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.put(id, d); err != nil {
		return "", err
	}
	return id, nil
}

func (c *collection) UpdateOne(ctx context.Context, filter core.Filter, set core.Doc, unset []string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, doc := c.findFirst(filter)
	if doc == nil {
		return 0, nil
	}
	for k, v := range set {
		doc[k] = v
	}
	for _, k := range unset {
		delete(doc, k)
	}
	if err := c.put(id, doc); err != nil {
		return 0, err
	}
	return 1, nil
}

func (c *collection) UpsertOne(ctx context.Context, filter core.Filter, doc core.Doc) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	d := core.CloneDoc(doc)
	if id, existing := c.findFirst(filter); existing != nil {
		// reemplazo conservando _id
		d["_id"] = id
		return c.put(id, toMap(d))
	}
	id := core.EnsureID(d)
	return c.put(id, toMap(d))
}

func (c *collection) DeleteMany(ctx context.Context, filter core.Filter) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var removed int64
	for id, item := range c.docs.Items() {
		doc := decode(item.Object)
		if doc != nil && core.Matches(doc, filter) {
			c.docs.Delete(id)
			removed++
		}
	}
	return removed, nil
}

func (c *collection) Count(ctx context.Context, filter core.Filter) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var n int64
	for _, item := range c.docs.Items() {
		doc := decode(item.Object)
		if doc != nil && core.Matches(doc, filter) {
			n++
		}
	}
	return n, nil
}

func (c *collection) AddToSet(ctx context.Context, filter core.Filter, field string, value any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, doc := c.findFirst(filter)
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
	return c.put(id, doc)
}

func (c *collection) PullFromSet(ctx context.Context, filter core.Filter, field string, value any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, doc := c.findFirst(filter)
	if doc == nil {
		return core.ErrNotFound
	}
	arr, _ := doc[field].([]any)
	out := arr[:0]
	for _, v := range arr {
		if v != value {
			out = append(out, v)
		}
	}
	doc[field] = out
	return c.put(id, doc)
}

func toMap(d core.Doc) map[string]any { return map[string]any(d) }

func remarshal(doc map[string]any, out any) error {
	b, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}
