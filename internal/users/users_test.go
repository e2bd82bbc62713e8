package users

import (
	"context"
	"testing"

	"github.com/leaonline/oauth2-server/internal/store/memory"
)

func TestByLoginToken(t *testing.T) {
	ctx := context.Background()
	s := NewStore(memory.New(), "", nil)

	created, loginToken, err := s.CreateWithLoginToken(ctx, "ada")
	if err != nil {
		t.Fatal(err)
	}
	if loginToken == "" {
		t.Fatal("expected a login token")
	}

	got, err := s.ByLoginToken(ctx, loginToken)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.ID != created.ID {
		t.Fatalf("expected user by login token, got %+v", got)
	}

	// el token en claro no debe estar almacenado
	for _, h := range got.HashedTokens {
		if h == loginToken {
			t.Fatal("expected only hashed tokens in storage")
		}
	}

	got, err = s.ByLoginToken(ctx, "wrong-token")
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Fatal("expected nil for unknown token")
	}

	got, err = s.ByLoginToken(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Fatal("expected nil for empty token")
	}
}

func TestSetClientAuthorization(t *testing.T) {
	ctx := context.Background()
	s := NewStore(memory.New(), "", nil)

	created, _, err := s.CreateWithLoginToken(ctx, "ada")
	if err != nil {
		t.Fatal(err)
	}

	if err := s.SetClientAuthorization(ctx, created.ID, "c1", true); err != nil {
		t.Fatal(err)
	}
	// idempotente
	if err := s.SetClientAuthorization(ctx, created.ID, "c1", true); err != nil {
		t.Fatal(err)
	}

	got, err := s.ByID(ctx, created.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.AuthorizedClients) != 1 || got.AuthorizedClients[0] != "c1" {
		t.Fatalf("expected [c1], got %v", got.AuthorizedClients)
	}

	if err := s.SetClientAuthorization(ctx, created.ID, "c1", false); err != nil {
		t.Fatal(err)
	}
	got, _ = s.ByID(ctx, created.ID)
	if len(got.AuthorizedClients) != 0 {
		t.Fatalf("expected empty set after removal, got %v", got.AuthorizedClients)
	}
}
