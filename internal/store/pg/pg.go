// Package pg implementa el document-store sobre Postgres (JSONB).
// Una sola tabla guarda todas las colecciones; los filtros de igualdad se
// traducen a containment (@>), que cubre también la pertenencia en arrays.
package pg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/leaonline/oauth2-server/internal/store/core"
)

const migration = `
CREATE TABLE IF NOT EXISTS oauth_documents (
	collection TEXT NOT NULL,
	id         TEXT NOT NULL,
	doc        JSONB NOT NULL,
	PRIMARY KEY (collection, id)
);
CREATE INDEX IF NOT EXISTS oauth_documents_doc_idx ON oauth_documents USING GIN (doc);
`

// DB envuelve un pool pgx como core.Database.
type DB struct {
	pool *pgxpool.Pool
}

// Connect abre el pool, hace ping y aplica el schema.
func Connect(ctx context.Context, dsn string) (*DB, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pg: pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pg: ping: %w", err)
	}
	if _, err := pool.Exec(ctx, migration); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pg: migrate: %w", err)
	}
	return &DB{pool: pool}, nil
}

func (d *DB) Collection(name string) core.Collection {
	return &collection{pool: d.pool, name: name}
}

func (d *DB) Ping(ctx context.Context) error { return d.pool.Ping(ctx) }

func (d *DB) Close(ctx context.Context) error {
	d.pool.Close()
	return nil
}

type collection struct {
	pool *pgxpool.Pool
	name string
}

func (c *collection) Name() string { return c.name }

// whereFilter arma las condiciones de containment para el filtro.
// Por cada campo: (doc @> {"k": v} OR doc @> {"k": [v]}) — la segunda rama
// cubre campos array matcheados por pertenencia.
func whereFilter(filter core.Filter, args *[]any) (string, error) {
	conds := make([]string, 0, len(filter))
	for k, v := range filter {
		scalar, err := json.Marshal(map[string]any{k: v})
		if err != nil {
			return "", fmt.Errorf("pg: encode filter %s: %w", k, err)
		}
		arr, err := json.Marshal(map[string]any{k: []any{v}})
		if err != nil {
			return "", fmt.Errorf("pg: encode filter %s: %w", k, err)
		}
		*args = append(*args, string(scalar))
		n1 := len(*args)
		*args = append(*args, string(arr))
		n2 := len(*args)
		conds = append(conds, fmt.Sprintf("(doc @> $%d::jsonb OR doc @> $%d::jsonb)", n1, n2))
	}
	if len(conds) == 0 {
		return "TRUE", nil
	}
	return strings.Join(conds, " AND "), nil
}

func (c *collection) FindOne(ctx context.Context, filter core.Filter, out any) error {
	args := []any{c.name}
	cond, err := whereFilter(filter, &args)
	if err != nil {
		return err
	}
	q := "SELECT doc FROM oauth_documents WHERE collection = $1 AND " + cond + " LIMIT 1"

	var raw []byte
	err = c.pool.QueryRow(ctx, q, args...).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.ErrNotFound
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func (c *collection) InsertOne(ctx context.Context, doc core.Doc) (string, error) {
	d := core.CloneDoc(doc)
	id := core.EnsureID(d)
	raw, err := json.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("pg: encode doc: %w", err)
	}
	const q = `INSERT INTO oauth_documents (collection, id, doc) VALUES ($1, $2, $3)`
	if _, err := c.pool.Exec(ctx, q, c.name, id, raw); err != nil {
		return "", err
	}
	return id, nil
}

// rmw corre una transacción read-modify-write sobre el primer documento que
// matchea el filtro. fn recibe el doc (nil si no hay match) y retorna el doc
// final (nil = no escribir).
func (c *collection) rmw(ctx context.Context, filter core.Filter, fn func(id string, doc map[string]any) (map[string]any, error)) (bool, error) {
	args := []any{c.name}
	cond, err := whereFilter(filter, &args)
	if err != nil {
		return false, err
	}
	q := "SELECT id, doc FROM oauth_documents WHERE collection = $1 AND " + cond + " LIMIT 1 FOR UPDATE"

	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	var (
		id  string
		raw []byte
		doc map[string]any
	)
	err = tx.QueryRow(ctx, q, args...).Scan(&id, &raw)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		// sin match: fn decide si inserta
	case err != nil:
		return false, err
	default:
		if err := json.Unmarshal(raw, &doc); err != nil {
			return false, err
		}
	}

	out, err := fn(id, doc)
	if err != nil {
		return false, err
	}
	if out == nil {
		return doc != nil, tx.Commit(ctx)
	}

	outRaw, err := json.Marshal(out)
	if err != nil {
		return false, fmt.Errorf("pg: encode doc: %w", err)
	}
	if doc == nil {
		newID, _ := out["_id"].(string)
		const ins = `INSERT INTO oauth_documents (collection, id, doc) VALUES ($1, $2, $3)`
		if _, err := tx.Exec(ctx, ins, c.name, newID, outRaw); err != nil {
			return false, err
		}
	} else {
		const upd = `UPDATE oauth_documents SET doc = $3 WHERE collection = $1 AND id = $2`
		if _, err := tx.Exec(ctx, upd, c.name, id, outRaw); err != nil {
			return false, err
		}
	}
	return true, tx.Commit(ctx)
}

func (c *collection) UpdateOne(ctx context.Context, filter core.Filter, set core.Doc, unset []string) (int64, error) {
	var modified int64
	_, err := c.rmw(ctx, filter, func(id string, doc map[string]any) (map[string]any, error) {
		if doc == nil {
			return nil, nil
		}
		for k, v := range set {
			doc[k] = v
		}
		for _, k := range unset {
			delete(doc, k)
		}
		modified = 1
		return doc, nil
	})
	return modified, err
}

func (c *collection) UpsertOne(ctx context.Context, filter core.Filter, doc core.Doc) error {
	_, err := c.rmw(ctx, filter, func(id string, existing map[string]any) (map[string]any, error) {
		d := core.CloneDoc(doc)
		if existing != nil {
			d["_id"] = id
		} else {
			core.EnsureID(d)
		}
		return d, nil
	})
	return err
}

func (c *collection) DeleteMany(ctx context.Context, filter core.Filter) (int64, error) {
	args := []any{c.name}
	cond, err := whereFilter(filter, &args)
	if err != nil {
		return 0, err
	}
	q := "DELETE FROM oauth_documents WHERE collection = $1 AND " + cond
	tag, err := c.pool.Exec(ctx, q, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (c *collection) Count(ctx context.Context, filter core.Filter) (int64, error) {
	args := []any{c.name}
	cond, err := whereFilter(filter, &args)
	if err != nil {
		return 0, err
	}
	q := "SELECT count(*) FROM oauth_documents WHERE collection = $1 AND " + cond
	var n int64
	if err := c.pool.QueryRow(ctx, q, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (c *collection) AddToSet(ctx context.Context, filter core.Filter, field string, value any) error {
	matched, err := c.rmw(ctx, filter, func(id string, doc map[string]any) (map[string]any, error) {
		if doc == nil {
			return nil, nil
		}
		arr, _ := doc[field].([]any)
		for _, v := range arr {
			if v == value {
				return nil, nil
			}
		}
		doc[field] = append(arr, value)
		return doc, nil
	})
	if err != nil {
		return err
	}
	if !matched {
		return core.ErrNotFound
	}
	return nil
}

func (c *collection) PullFromSet(ctx context.Context, filter core.Filter, field string, value any) error {
	matched, err := c.rmw(ctx, filter, func(id string, doc map[string]any) (map[string]any, error) {
		if doc == nil {
			return nil, nil
		}
		arr, _ := doc[field].([]any)
		out := make([]any, 0, len(arr))
		for _, v := range arr {
			if v != value {
				out = append(out, v)
			}
		}
		doc[field] = out
		return doc, nil
	})
	if err != nil {
		return err
	}
	if !matched {
		return core.ErrNotFound
	}
	return nil
}
