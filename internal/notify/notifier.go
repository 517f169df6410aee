// Package notify is the targeted fan-out: it rebuilds a user's challenge,
// history and game-start views from authoritative store state and pushes
// them down the personal channel. Recipients always get full snapshots, so
// a missed delta never leaves a client permanently stale.
package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/KiritiVelivela/chess-multiplayer/internal/domain"
	"github.com/KiritiVelivela/chess-multiplayer/internal/proto"
	"github.com/KiritiVelivela/chess-multiplayer/internal/registry"
	"github.com/KiritiVelivela/chess-multiplayer/internal/store"
)

type Notifier struct {
	store *store.Store
	reg   *registry.Registry
	log   *zap.Logger
}

func New(st *store.Store, reg *registry.Registry, log *zap.Logger) *Notifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &Notifier{store: st, reg: reg, log: log}
}

// ChallengesView builds the pending-challenge snapshot for a user.
func (n *Notifier) ChallengesView(ctx context.Context, userID string) (proto.ChallengesEvent, error) {
	pending, err := n.store.PendingChallenges(ctx, userID)
	if err != nil {
		return proto.ChallengesEvent{}, err
	}
	views := make([]proto.ChallengeView, 0, len(pending))
	for _, ch := range pending {
		views = append(views, proto.ChallengeView{ID: ch.ID, Challenger: ch.ChallengerName})
	}
	return proto.Challenges(views), nil
}

// HistoryView builds the game-history snapshot for a user, most recent
// first.
func (n *Notifier) HistoryView(ctx context.Context, userID string) (proto.GameHistoryEvent, error) {
	games, err := n.store.GamesByUser(ctx, userID)
	if err != nil {
		return proto.GameHistoryEvent{}, err
	}
	rows := make([]proto.HistoryRow, 0, len(games))
	for _, g := range games {
		rows = append(rows, proto.HistoryRow{
			ID:        g.ID,
			Opponent:  g.Opponent(userID).Name,
			Result:    historyResult(g, userID),
			MoveCount: g.MoveCount(),
			Journal:   g.Journal,
		})
	}
	return proto.GameHistory(rows), nil
}

// ChallengesChanged refreshes the pending list on the user's personal
// channel.
func (n *Notifier) ChallengesChanged(ctx context.Context, userID string) {
	ev, err := n.ChallengesView(ctx, userID)
	if err != nil {
		n.log.Error("notify_challenges_error", zap.String("user_id", userID), zap.Error(err))
		return
	}
	n.reg.Send(registry.UserChannel(userID), ev)
}

// HistoryChanged refreshes the history view for each user.
func (n *Notifier) HistoryChanged(ctx context.Context, userIDs ...string) {
	for _, uid := range userIDs {
		ev, err := n.HistoryView(ctx, uid)
		if err != nil {
			n.log.Error("notify_history_error", zap.String("user_id", uid), zap.Error(err))
			continue
		}
		n.reg.Send(registry.UserChannel(uid), ev)
	}
}

// GameStart tells each user their new game is ready to join.
func (n *Notifier) GameStart(gameID string, userIDs ...string) {
	ev := proto.GameStart(gameID)
	for _, uid := range userIDs {
		n.reg.Send(registry.UserChannel(uid), ev)
	}
}

func historyResult(g *domain.GameSession, userID string) string {
	switch {
	case !g.GameOver:
		return "Ongoing"
	case g.WinnerID == "":
		return "Draw"
	case g.WinnerID == userID:
		return "Win"
	}
	return "Loss"
}
