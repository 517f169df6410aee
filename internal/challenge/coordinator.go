// Package challenge manages the invitation handshake: pending until the
// challenged user accepts or rejects, acceptance spawning exactly one game
// with the challenger as white.
package challenge

import (
	"context"

	"go.uber.org/zap"

	"github.com/KiritiVelivela/chess-multiplayer/internal/board"
	"github.com/KiritiVelivela/chess-multiplayer/internal/domain"
	"github.com/KiritiVelivela/chess-multiplayer/internal/locks"
	"github.com/KiritiVelivela/chess-multiplayer/internal/notify"
	"github.com/KiritiVelivela/chess-multiplayer/internal/store"
)

// Decision is the challenged user's answer.
type Decision string

const (
	Accept Decision = "accept"
	Reject Decision = "reject"
)

func ParseDecision(s string) (Decision, bool) {
	switch Decision(s) {
	case Accept:
		return Accept, true
	case Reject:
		return Reject, true
	}
	return "", false
}

type Coordinator struct {
	store    *store.Store
	notifier *notify.Notifier
	locks    *locks.Table
	log      *zap.Logger
}

func NewCoordinator(st *store.Store, notifier *notify.Notifier, log *zap.Logger) *Coordinator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Coordinator{store: st, notifier: notifier, locks: locks.NewTable(), log: log}
}

// Send creates a pending challenge and refreshes the challenged user's
// pending list. Duplicate pending challenges between the same pair are
// allowed deliberately; the challenged side just sees two rows. The
// challenged display name is resolved from presence, falling back to the
// id for users who went offline mid-request.
func (c *Coordinator) Send(ctx context.Context, challenger domain.Player, challengedID string) (*domain.Challenge, error) {
	if challengedID == "" || challengedID == challenger.ID {
		return nil, domain.ErrInvalidRequest
	}
	challengedName, err := c.store.PresenceName(ctx, challengedID)
	if err != nil {
		return nil, err
	}
	if challengedName == "" {
		challengedName = challengedID
	}
	ch, err := c.store.CreateChallenge(ctx, challenger, domain.Player{ID: challengedID, Name: challengedName})
	if err != nil {
		return nil, err
	}
	c.log.Info("challenge_send",
		zap.String("challenge_id", ch.ID),
		zap.String("challenger", ch.ChallengerID),
		zap.String("challenged", ch.ChallengedID),
	)
	c.notifier.ChallengesChanged(ctx, ch.ChallengedID)
	return ch, nil
}

// Respond resolves a pending challenge. Only the challenged user may
// respond, and only once; acceptance creates the game and notifies both
// players, rejection refreshes the challenger's pending view (the caller
// refreshes its own list after the response completes).
func (c *Coordinator) Respond(ctx context.Context, challengeID, actorID string, decision Decision) (*domain.GameSession, error) {
	unlock := c.locks.Lock(challengeID)
	defer unlock()

	ch, err := c.store.GetChallenge(ctx, challengeID)
	if err != nil {
		return nil, err
	}
	if ch == nil {
		return nil, domain.ErrNotFound
	}
	if actorID != ch.ChallengedID {
		return nil, domain.ErrUnauthorized
	}
	if ch.Outcome != domain.ChallengePending {
		return nil, domain.ErrAlreadyResolved
	}

	if decision == Reject {
		ch.Outcome = domain.ChallengeRejected
		if err := c.store.SaveChallenge(ctx, ch); err != nil {
			return nil, err
		}
		c.log.Info("challenge_reject", zap.String("challenge_id", ch.ID), zap.String("challenged", ch.ChallengedID))
		c.notifier.ChallengesChanged(ctx, ch.ChallengerID)
		return nil, nil
	}

	ch.Outcome = domain.ChallengeAccepted
	if err := c.store.SaveChallenge(ctx, ch); err != nil {
		return nil, err
	}
	g, err := c.store.CreateGame(ctx,
		domain.Player{ID: ch.ChallengerID, Name: ch.ChallengerName},
		domain.Player{ID: ch.ChallengedID, Name: ch.ChallengedName},
		board.StartingFEN(),
	)
	if err != nil {
		return nil, err
	}
	c.log.Info("challenge_accept",
		zap.String("challenge_id", ch.ID),
		zap.String("game_id", g.ID),
		zap.String("white", g.WhiteID),
		zap.String("black", g.BlackID),
	)
	c.notifier.GameStart(g.ID, g.WhiteID, g.BlackID)
	c.notifier.HistoryChanged(ctx, g.WhiteID, g.BlackID)
	return g, nil
}

// PendingFor lists unresolved challenges aimed at the user.
func (c *Coordinator) PendingFor(ctx context.Context, userID string) ([]*domain.Challenge, error) {
	return c.store.PendingChallenges(ctx, userID)
}
