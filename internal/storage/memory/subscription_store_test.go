package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"stellar-copy-engine/internal/domain"
	"stellar-copy-engine/internal/storage"
)

func TestSubscriptionStore_UpsertAndGet(t *testing.T) {
	store := NewSubscriptionStore()
	ctx := context.Background()

	sub := &domain.WatchSubscription{
		OwnerID:        "owner1",
		WatchedAddress: "GWALLET",
		Status:         domain.SubscriptionActive,
		Multiplier:     decimal.RequireFromString("0.5"),
		Slippage:       decimal.RequireFromString("0.01"),
	}
	if err := store.Upsert(ctx, sub); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	got, err := store.Get(ctx, "owner1", "GWALLET")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !got.Multiplier.Equal(sub.Multiplier) {
		t.Errorf("multiplier = %s", got.Multiplier)
	}

	// Mutating the returned copy must not affect the store.
	got.Multiplier = decimal.NewFromInt(9)
	again, _ := store.Get(ctx, "owner1", "GWALLET")
	if !again.Multiplier.Equal(sub.Multiplier) {
		t.Error("store leaked a mutable reference")
	}
}

func TestSubscriptionStore_GetMissing(t *testing.T) {
	store := NewSubscriptionStore()
	if _, err := store.Get(context.Background(), "nobody", "GX"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestSubscriptionStore_ListActiveFiltersStatus(t *testing.T) {
	store := NewSubscriptionStore()
	ctx := context.Background()

	for i, status := range []domain.SubscriptionStatus{domain.SubscriptionActive, domain.SubscriptionInactive} {
		sub := &domain.WatchSubscription{
			OwnerID:        "owner1",
			WatchedAddress: string(rune('A' + i)),
			Status:         status,
			Multiplier:     decimal.NewFromInt(1),
		}
		if err := store.Upsert(ctx, sub); err != nil {
			t.Fatal(err)
		}
	}

	active, err := store.ListActive(ctx)
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	if len(active) != 1 || active[0].Status != domain.SubscriptionActive {
		t.Fatalf("active = %d entries", len(active))
	}
}

func TestSubscriptionStore_SetStatus(t *testing.T) {
	store := NewSubscriptionStore()
	ctx := context.Background()

	sub := &domain.WatchSubscription{OwnerID: "o", WatchedAddress: "G", Status: domain.SubscriptionActive, Multiplier: decimal.NewFromInt(1)}
	if err := store.Upsert(ctx, sub); err != nil {
		t.Fatal(err)
	}
	if err := store.SetStatus(ctx, "o", "G", domain.SubscriptionInactive); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	got, _ := store.Get(ctx, "o", "G")
	if got.Status != domain.SubscriptionInactive {
		t.Errorf("status = %s", got.Status)
	}

	if err := store.SetStatus(ctx, "o", "missing", domain.SubscriptionActive); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
