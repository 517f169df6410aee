// Package presence maintains the online-user set and fans the lobby list
// out whenever it changes. Every recipient gets a personalized full list
// with themselves excluded; full snapshots keep clients consistent even if
// an update is missed. Quadratic in the online count, which is fine at
// lobby scale.
package presence

import (
	"context"

	"go.uber.org/zap"

	"github.com/KiritiVelivela/chess-multiplayer/internal/domain"
	"github.com/KiritiVelivela/chess-multiplayer/internal/proto"
	"github.com/KiritiVelivela/chess-multiplayer/internal/registry"
	"github.com/KiritiVelivela/chess-multiplayer/internal/store"
)

type Broadcaster struct {
	store *store.Store
	reg   *registry.Registry
	log   *zap.Logger
}

func NewBroadcaster(st *store.Store, reg *registry.Registry, log *zap.Logger) *Broadcaster {
	if log == nil {
		log = zap.NewNop()
	}
	return &Broadcaster{store: st, reg: reg, log: log}
}

// Connected marks the user online and re-broadcasts the lobby.
func (b *Broadcaster) Connected(ctx context.Context, user domain.Player) {
	if err := b.store.SetPresence(ctx, user.ID, user.Name, true); err != nil {
		b.log.Error("presence_set_error", zap.String("user_id", user.ID), zap.Error(err))
		return
	}
	b.log.Info("presence_change", zap.String("user_id", user.ID), zap.Bool("online", true))
	b.Broadcast(ctx)
}

// Disconnected marks the user offline and re-broadcasts the lobby.
func (b *Broadcaster) Disconnected(ctx context.Context, userID string) {
	if err := b.store.SetPresence(ctx, userID, "", false); err != nil {
		b.log.Error("presence_set_error", zap.String("user_id", userID), zap.Error(err))
		return
	}
	b.log.Info("presence_change", zap.String("user_id", userID), zap.Bool("online", false))
	b.Broadcast(ctx)
}

// Broadcast sends every online user their personalized available-player
// list.
func (b *Broadcaster) Broadcast(ctx context.Context) {
	online, err := b.store.OnlinePlayers(ctx)
	if err != nil {
		b.log.Error("presence_list_error", zap.Error(err))
		return
	}
	for _, recipient := range online {
		ev := availableFor(online, recipient.UserID)
		b.reg.Send(registry.UserChannel(recipient.UserID), ev)
	}
}

// View builds the available-player list for a single user.
func (b *Broadcaster) View(ctx context.Context, selfID string) (proto.AvailablePlayersEvent, error) {
	online, err := b.store.OnlinePlayers(ctx)
	if err != nil {
		return proto.AvailablePlayersEvent{}, err
	}
	return availableFor(online, selfID), nil
}

func availableFor(online []domain.PresenceEntry, selfID string) proto.AvailablePlayersEvent {
	players := make([]proto.PlayerView, 0, len(online))
	for _, e := range online {
		if e.UserID == selfID {
			continue
		}
		players = append(players, proto.PlayerView{ID: e.UserID, Username: e.Name})
	}
	return proto.AvailablePlayers(players)
}
