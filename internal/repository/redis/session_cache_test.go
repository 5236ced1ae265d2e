package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	red "github.com/redis/go-redis/v9"

	"github.com/arklim/rbac-engine/internal/core/domain"
	"github.com/arklim/rbac-engine/internal/repository"
)

func newTestRedis(t *testing.T) (*red.Client, *miniredis.Miniredis) {
	t.Helper()

	server, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}

	client := red.NewClient(&red.Options{Addr: server.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		server.Close()
	})

	return client, server
}

func testSession() *domain.Session {
	created := time.Date(2024, 6, 10, 10, 0, 0, 0, time.UTC)
	return &domain.Session{
		ID:        "sess-1",
		ContextID: "tenant-1",
		UserID:    "alice",
		State:     domain.SessionStateActive,
		Roles: []domain.UserRole{
			{UserID: "alice", Name: "cashier"},
		},
		CreatedAt: created,
		ExpiresAt: created.Add(30 * time.Minute),
		Warnings: []domain.Warning{
			{Code: domain.ActivationFailedDay, Role: "auditor", Msg: "role activation rejected by temporal constraint"},
		},
	}
}

func TestSessionCachePutGetRoundTrip(t *testing.T) {
	client, _ := newTestRedis(t)
	cache := NewSessionCache(client)
	ctx := context.Background()

	session := testSession()
	if err := cache.Put(ctx, session, 30*time.Minute); err != nil {
		t.Fatalf("Put returned error: %v", err)
	}

	got, err := cache.Get(ctx, "tenant-1", "sess-1")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}

	if got.UserID != session.UserID || got.State != session.State {
		t.Fatalf("got session %+v, want %+v", got, session)
	}
	if len(got.Roles) != 1 || got.Roles[0].Name != "cashier" {
		t.Fatalf("active roles not preserved: %+v", got.Roles)
	}
	if len(got.Warnings) != 1 || got.Warnings[0].Code != domain.ActivationFailedDay {
		t.Fatalf("warnings not preserved: %+v", got.Warnings)
	}
	if !got.ExpiresAt.Equal(session.ExpiresAt) {
		t.Fatalf("ExpiresAt = %v, want %v", got.ExpiresAt, session.ExpiresAt)
	}
}

func TestSessionCacheGetMissing(t *testing.T) {
	client, _ := newTestRedis(t)
	cache := NewSessionCache(client)

	_, err := cache.Get(context.Background(), "tenant-1", "ghost")
	if !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("err = %v, want repository.ErrNotFound", err)
	}
}

func TestSessionCacheExpiry(t *testing.T) {
	client, server := newTestRedis(t)
	cache := NewSessionCache(client)
	ctx := context.Background()

	if err := cache.Put(ctx, testSession(), time.Minute); err != nil {
		t.Fatalf("Put returned error: %v", err)
	}

	server.FastForward(2 * time.Minute)

	_, err := cache.Get(ctx, "tenant-1", "sess-1")
	if !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("err after TTL = %v, want repository.ErrNotFound", err)
	}
}

func TestSessionCacheDelete(t *testing.T) {
	client, _ := newTestRedis(t)
	cache := NewSessionCache(client)
	ctx := context.Background()

	if err := cache.Put(ctx, testSession(), time.Minute); err != nil {
		t.Fatalf("Put returned error: %v", err)
	}
	if err := cache.Delete(ctx, "tenant-1", "sess-1"); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}

	_, err := cache.Get(ctx, "tenant-1", "sess-1")
	if !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("err after delete = %v, want repository.ErrNotFound", err)
	}

	// Deleting an absent key is not an error at this layer.
	if err := cache.Delete(ctx, "tenant-1", "sess-1"); err != nil {
		t.Fatalf("second Delete returned error: %v", err)
	}
}
