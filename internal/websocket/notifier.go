package websocket

import (
	"context"
	"fmt"

	"usdc-vault-custody/internal/events"
	"usdc-vault-custody/internal/store"
)

var _ events.Sink = (*BalanceNotifier)(nil)

// BalanceNotifier turns settlement events into balance pushes. It reads the
// profile after the fact so the pushed balance is the committed one.
type BalanceNotifier struct {
	hub      *Hub
	profiles store.ProfileStore
}

func NewBalanceNotifier(hub *Hub, profiles store.ProfileStore) *BalanceNotifier {
	return &BalanceNotifier{hub: hub, profiles: profiles}
}

func (n *BalanceNotifier) Publish(ctx context.Context, event events.Event) error {
	if event.UserId == "" || n.hub.ClientCount(event.UserId) == 0 {
		return nil
	}
	profile, err := n.profiles.GetProfile(ctx, event.UserId)
	if err != nil {
		return fmt.Errorf("load profile for balance push: %w", err)
	}
	n.hub.BroadcastBalance(event.UserId, BalanceUpdate{
		UserId:        profile.Id,
		Balance:       profile.Balance.String(),
		LockedBalance: profile.LockedBalance.String(),
		Event:         event.Type,
		ReferenceId:   event.ReferenceId,
	})
	return nil
}
