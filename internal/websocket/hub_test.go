package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"usdc-vault-custody/internal/events"
	"usdc-vault-custody/internal/models"
	"usdc-vault-custody/internal/store"

	gorilla "github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

type stubProfiles struct {
	store.ProfileStore
	profile *models.Profile
	err     error
}

func (s stubProfiles) GetProfile(ctx context.Context, id string) (*models.Profile, error) {
	return s.profile, s.err
}

func TestHubBroadcastToRegisteredClient(t *testing.T) {
	hub := NewHub()
	client := &Client{send: make(chan []byte, 1)}
	hub.Register("user-1", client)

	hub.BroadcastBalance("user-1", BalanceUpdate{UserId: "user-1", Balance: "10"})

	select {
	case msg := <-client.send:
		var got BalanceUpdate
		if err := json.Unmarshal(msg, &got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if got.Balance != "10" {
			t.Errorf("balance = %s, want 10", got.Balance)
		}
	default:
		t.Fatal("expected a queued message")
	}

	hub.Unregister("user-1", client)
	if hub.ClientCount("user-1") != 0 {
		t.Error("client should be unregistered")
	}
}

func TestHubDropsWhenClientBufferFull(t *testing.T) {
	hub := NewHub()
	client := &Client{send: make(chan []byte, 1)}
	hub.Register("user-1", client)

	hub.BroadcastBalance("user-1", BalanceUpdate{Balance: "1"})
	hub.BroadcastBalance("user-1", BalanceUpdate{Balance: "2"})

	if len(client.send) != 1 {
		t.Fatalf("expected 1 buffered message, got %d", len(client.send))
	}
}

func TestBalanceNotifier(t *testing.T) {
	hub := NewHub()
	client := &Client{send: make(chan []byte, 1)}
	hub.Register("user-1", client)

	profile := &models.Profile{Id: "user-1", Balance: decimal.RequireFromString("42.5"), LockedBalance: decimal.Zero}
	n := NewBalanceNotifier(hub, stubProfiles{profile: profile})

	err := n.Publish(context.Background(), events.Event{Type: events.TypeDepositConfirmed, UserId: "user-1", ReferenceId: "dep-1"})
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	var got BalanceUpdate
	if err := json.Unmarshal(<-client.send, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Balance != "42.5" || got.Event != events.TypeDepositConfirmed || got.ReferenceId != "dep-1" {
		t.Errorf("unexpected update %+v", got)
	}

	failing := NewBalanceNotifier(hub, stubProfiles{err: errors.New("db down")})
	if err := failing.Publish(context.Background(), events.Event{UserId: "user-1"}); err == nil {
		t.Error("expected profile lookup error")
	}

	// nobody listening: no lookup at all
	idle := NewBalanceNotifier(hub, stubProfiles{err: errors.New("should not be called")})
	if err := idle.Publish(context.Background(), events.Event{UserId: "user-2"}); err != nil {
		t.Errorf("expected no-op for a user without sockets, got %v", err)
	}
}

func TestServeWSDeliversBroadcast(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWS(w, r, hub, "user-1")
	}))
	defer srv.Close()

	conn, _, err := gorilla.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount("user-1") == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	hub.BroadcastBalance("user-1", BalanceUpdate{UserId: "user-1", Balance: "7"})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got BalanceUpdate
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Balance != "7" {
		t.Errorf("balance = %s, want 7", got.Balance)
	}
}
