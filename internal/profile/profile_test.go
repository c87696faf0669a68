package profile

import (
	"context"
	"testing"

	"github.com/globee-labs/globee/internal/blobstore"
)

func TestStoreRoundtrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, err := NewStore(blobstore.NewMemoryStore())
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}

	if _, ok, err := store.Find(ctx, "U001"); err != nil || ok {
		t.Fatalf("Find() before save = ok=%v err=%v, want absent", ok, err)
	}

	p := UserProfile{
		UserID:      "U001",
		Name:        "김지민",
		Gender:      "여성",
		Age:         "23",
		Nationality: "대한민국",
		AlmaMater:   "서울대학교",
	}
	if err := store.Save(ctx, p); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	got, ok, err := store.Find(ctx, "U001")
	if err != nil || !ok {
		t.Fatalf("Find() = ok=%v err=%v", ok, err)
	}
	if got != p {
		t.Fatalf("Find() = %+v, want %+v", got, p)
	}

	p.AlmaMater = "연세대학교"
	if err := store.Save(ctx, p); err != nil {
		t.Fatalf("Save() overwrite error = %v", err)
	}
	got, _, err = store.Find(ctx, "U001")
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	if got.AlmaMater != "연세대학교" {
		t.Fatalf("overwrite did not win: %+v", got)
	}
}

func TestSaveValidation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, err := NewStore(blobstore.NewMemoryStore())
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	if err := store.Save(ctx, UserProfile{Name: "김지민"}); err == nil {
		t.Fatalf("Save() without user id must fail")
	}
	if err := store.Save(ctx, UserProfile{UserID: "U001"}); err == nil {
		t.Fatalf("Save() without name must fail")
	}
}
