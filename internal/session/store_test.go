package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/spec-kit/intake-pipeline/internal/domain"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	sess := &domain.ConversationSession{
		Identity:    "5511999990000",
		DisplayName: "Maria",
		Step:        domain.StepSectorSelect,
	}
	if err := store.Put(ctx, sess, time.Hour); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := store.Get(ctx, sess.Identity)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.DisplayName != "Maria" || got.Step != domain.StepSectorSelect {
		t.Errorf("got %+v", got)
	}

	// The store hands out copies; mutating the result must not leak back.
	got.Step = domain.StepConfirm
	again, _ := store.Get(ctx, sess.Identity)
	if again.Step != domain.StepSectorSelect {
		t.Error("stored session mutated through a returned copy")
	}
}

func TestMemoryStoreMissingIdentity(t *testing.T) {
	store := NewMemoryStore()
	if _, err := store.Get(context.Background(), "unknown"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get unknown = %v, want ErrNotFound", err)
	}
}

func TestMemoryStoreDelete(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	sess := &domain.ConversationSession{Identity: "5511999990000"}
	if err := store.Put(ctx, sess, time.Hour); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := store.Delete(ctx, sess.Identity); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Get(ctx, sess.Identity); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get after delete = %v, want ErrNotFound", err)
	}
	// Deleting an absent identity is not an error.
	if err := store.Delete(ctx, "unknown"); err != nil {
		t.Fatalf("Delete unknown: %v", err)
	}
}

func TestMemoryStoreExpiry(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	sess := &domain.ConversationSession{Identity: "5511999990000"}
	if err := store.Put(ctx, sess, -time.Second); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, err := store.Get(ctx, sess.Identity); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expired entry still served: %v", err)
	}
}

func TestMemoryStorePutRefreshesTTL(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	sess := &domain.ConversationSession{Identity: "5511999990000"}
	if err := store.Put(ctx, sess, time.Hour); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := store.Put(ctx, sess, 24*time.Hour); err != nil {
		t.Fatalf("second Put: %v", err)
	}
	if ttl := store.TTL(sess.Identity); ttl <= time.Hour {
		t.Errorf("TTL = %v, want refreshed to ~24h", ttl)
	}
}
