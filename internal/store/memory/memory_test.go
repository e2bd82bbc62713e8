package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/leaonline/oauth2-server/internal/store/core"
)

func TestInsertAndFindOne(t *testing.T) {
	ctx := context.Background()
	col := New().Collection("things")

	id, err := col.InsertOne(ctx, core.Doc{"name": "alpha", "count": 3})
	if err != nil {
		t.Fatal(err)
	}
	if id == "" {
		t.Fatal("expected generated _id")
	}

	var out struct {
		ID    string `json:"_id"`
		Name  string `json:"name"`
		Count int    `json:"count"`
	}
	if err := col.FindOne(ctx, core.Filter{"name": "alpha"}, &out); err != nil {
		t.Fatal(err)
	}
	if out.ID != id || out.Name != "alpha" || out.Count != 3 {
		t.Fatalf("unexpected doc: %+v", out)
	}
}

func TestFindOne_Miss(t *testing.T) {
	ctx := context.Background()
	col := New().Collection("things")
	var out map[string]any
	err := col.FindOne(ctx, core.Filter{"name": "nope"}, &out)
	if !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestArrayMembershipFilter(t *testing.T) {
	ctx := context.Background()
	col := New().Collection("users")

	if _, err := col.InsertOne(ctx, core.Doc{"hashedTokens": []string{"h1", "h2"}}); err != nil {
		t.Fatal(err)
	}

	var out map[string]any
	if err := col.FindOne(ctx, core.Filter{"hashedTokens": "h2"}, &out); err != nil {
		t.Fatalf("expected membership match, got %v", err)
	}
	err := col.FindOne(ctx, core.Filter{"hashedTokens": "h3"}, &out)
	if !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected miss for absent member, got %v", err)
	}
}

func TestUpdateOne_SetAndUnset(t *testing.T) {
	ctx := context.Background()
	col := New().Collection("tokens")

	if _, err := col.InsertOne(ctx, core.Doc{"accessToken": "at", "refreshToken": "rt"}); err != nil {
		t.Fatal(err)
	}

	n, err := col.UpdateOne(ctx, core.Filter{"accessToken": "at"}, core.Doc{"scope": "profile"}, []string{"refreshToken"})
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("expected 1 modified, got %d", n)
	}

	var out map[string]any
	if err := col.FindOne(ctx, core.Filter{"accessToken": "at"}, &out); err != nil {
		t.Fatal(err)
	}
	if out["scope"] != "profile" {
		t.Fatalf("expected scope set, got %v", out["scope"])
	}
	if _, present := out["refreshToken"]; present {
		t.Fatal("expected refreshToken unset")
	}
}

func TestUpsertOne(t *testing.T) {
	ctx := context.Background()
	col := New().Collection("clients")
	filter := core.Filter{"title": "App"}

	if err := col.UpsertOne(ctx, filter, core.Doc{"title": "App", "clientId": "c1"}); err != nil {
		t.Fatal(err)
	}
	count, err := col.Count(ctx, filter)
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Fatalf("expected 1 doc after insert-upsert, got %d", count)
	}

	// segundo upsert con el mismo filtro actualiza, no duplica
	if err := col.UpsertOne(ctx, filter, core.Doc{"title": "App", "clientId": "c2"}); err != nil {
		t.Fatal(err)
	}
	count, _ = col.Count(ctx, filter)
	if count != 1 {
		t.Fatalf("expected 1 doc after update-upsert, got %d", count)
	}
	var out map[string]any
	if err := col.FindOne(ctx, filter, &out); err != nil {
		t.Fatal(err)
	}
	if out["clientId"] != "c2" {
		t.Fatalf("expected updated clientId, got %v", out["clientId"])
	}
}

func TestDeleteManyAndCount(t *testing.T) {
	ctx := context.Background()
	col := New().Collection("codes")

	for i := 0; i < 3; i++ {
		if _, err := col.InsertOne(ctx, core.Doc{"kind": "stale"}); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := col.InsertOne(ctx, core.Doc{"kind": "fresh"}); err != nil {
		t.Fatal(err)
	}

	deleted, err := col.DeleteMany(ctx, core.Filter{"kind": "stale"})
	if err != nil {
		t.Fatal(err)
	}
	if deleted != 3 {
		t.Fatalf("expected 3 deleted, got %d", deleted)
	}
	remaining, _ := col.Count(ctx, core.Filter{})
	if remaining != 1 {
		t.Fatalf("expected 1 remaining, got %d", remaining)
	}
}

func TestAddToSetAndPullFromSet(t *testing.T) {
	ctx := context.Background()
	col := New().Collection("users")

	id, err := col.InsertOne(ctx, core.Doc{"username": "ada"})
	if err != nil {
		t.Fatal(err)
	}
	filter := core.Filter{"_id": id}

	if err := col.AddToSet(ctx, filter, "authorizedClients", "c1"); err != nil {
		t.Fatal(err)
	}
	// idempotente
	if err := col.AddToSet(ctx, filter, "authorizedClients", "c1"); err != nil {
		t.Fatal(err)
	}

	var out struct {
		AuthorizedClients []string `json:"authorizedClients"`
	}
	if err := col.FindOne(ctx, filter, &out); err != nil {
		t.Fatal(err)
	}
	if len(out.AuthorizedClients) != 1 || out.AuthorizedClients[0] != "c1" {
		t.Fatalf("expected single element set, got %v", out.AuthorizedClients)
	}

	if err := col.PullFromSet(ctx, filter, "authorizedClients", "c1"); err != nil {
		t.Fatal(err)
	}
	if err := col.FindOne(ctx, filter, &out); err != nil {
		t.Fatal(err)
	}
	if len(out.AuthorizedClients) != 0 {
		t.Fatalf("expected empty set, got %v", out.AuthorizedClients)
	}

	if err := col.AddToSet(ctx, core.Filter{"_id": "missing"}, "authorizedClients", "x"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for absent doc, got %v", err)
	}
}
