// Package game owns the per-game state machine: Open until checkmate, draw
// or resignation, then Over with no way back. Every mutation happens under
// the game's entry in a lock table, so concurrent submissions for the same
// turn serialize and the second one fails validation against the updated
// position.
package game

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/KiritiVelivela/chess-multiplayer/internal/board"
	"github.com/KiritiVelivela/chess-multiplayer/internal/domain"
	"github.com/KiritiVelivela/chess-multiplayer/internal/locks"
	"github.com/KiritiVelivela/chess-multiplayer/internal/notify"
	"github.com/KiritiVelivela/chess-multiplayer/internal/proto"
	"github.com/KiritiVelivela/chess-multiplayer/internal/registry"
	"github.com/KiritiVelivela/chess-multiplayer/internal/store"
)

// Archiver persists concluded games; nil disables archiving.
type Archiver interface {
	SaveResult(ctx context.Context, g *domain.GameSession, method string) error
}

type Coordinator struct {
	store    *store.Store
	reg      *registry.Registry
	notifier *notify.Notifier
	locks    *locks.Table
	archive  Archiver
	log      *zap.Logger
}

func NewCoordinator(st *store.Store, reg *registry.Registry, notifier *notify.Notifier, log *zap.Logger) *Coordinator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Coordinator{
		store:    st,
		reg:      reg,
		notifier: notifier,
		locks:    locks.NewTable(),
		log:      log,
	}
}

// AttachArchive wires the Postgres archive for concluded games.
func (c *Coordinator) AttachArchive(a Archiver) {
	if c != nil {
		c.archive = a
	}
}

// SubmitMove validates and applies one move. Precondition order: game
// exists, game not over, actor to move, notation well-formed, move legal.
// On success the new position is persisted and broadcast to the game
// channel; the actor hears about it the same way the opponent does.
func (c *Coordinator) SubmitMove(ctx context.Context, gameID, actorID, move string) error {
	unlock := c.locks.Lock(gameID)
	defer unlock()

	g, err := c.store.GetGame(ctx, gameID)
	if err != nil {
		return err
	}
	if g == nil {
		return domain.ErrNotFound
	}
	if g.GameOver {
		return domain.ErrGameAlreadyOver
	}

	turn, err := board.SideToMove(g.FEN)
	if err != nil {
		return fmt.Errorf("side to move: %w", err)
	}
	toMove := g.WhiteID
	if turn == domain.Black {
		toMove = g.BlackID
	}
	if actorID != toMove {
		return domain.ErrNotYourTurn
	}

	res, err := board.ApplyUCI(g.FEN, move)
	if err != nil {
		return err
	}

	g.FEN = res.FEN
	g.MovesUCI = append(g.MovesUCI, normalizedUCI(move))
	g.MovesSAN = append(g.MovesSAN, res.SAN)
	g.UpdatedAt = now()
	method := ""
	if res.Over {
		g.GameOver = true
		switch res.Winner {
		case domain.White:
			g.WinnerID = g.WhiteID
			method = "checkmate"
		case domain.Black:
			g.WinnerID = g.BlackID
			method = "checkmate"
		default:
			method = "draw"
		}
	}
	if err := c.store.SaveGame(ctx, g); err != nil {
		return err
	}

	c.log.Info("game_move",
		zap.String("game_id", g.ID),
		zap.String("user_id", actorID),
		zap.String("uci", normalizedUCI(move)),
		zap.String("turn", string(res.Turn)),
		zap.Bool("over", res.Over),
	)
	c.reg.Send(registry.GameChannel(g.ID), proto.GameUpdate(res.FEN, res.Turn))

	if res.Over {
		c.notifier.HistoryChanged(ctx, g.WhiteID, g.BlackID)
		c.archiveResult(ctx, g, method)
	}
	return nil
}

// Resign ends the game in the opponent's favor. A resignation request from
// someone who is not a participant is a no-op: no legitimate third party
// can resign a game.
func (c *Coordinator) Resign(ctx context.Context, gameID, actorID string) error {
	unlock := c.locks.Lock(gameID)
	defer unlock()

	g, err := c.store.GetGame(ctx, gameID)
	if err != nil {
		return err
	}
	if g == nil {
		return domain.ErrNotFound
	}
	if g.GameOver {
		return domain.ErrGameAlreadyOver
	}
	if !g.HasPlayer(actorID) {
		c.log.Debug("game_resign_ignored", zap.String("game_id", gameID), zap.String("user_id", actorID))
		return nil
	}

	winner := g.Opponent(actorID)
	g.WinnerID = winner.ID
	g.Resigned = true
	g.GameOver = true
	g.UpdatedAt = now()
	if err := c.store.SaveGame(ctx, g); err != nil {
		return err
	}

	c.log.Info("game_resign",
		zap.String("game_id", g.ID),
		zap.String("resigner", actorID),
		zap.String("winner", winner.ID),
	)
	c.reg.Send(registry.GameChannel(g.ID), proto.GameResigned(winner))
	c.notifier.HistoryChanged(ctx, g.WhiteID, g.BlackID)
	c.archiveResult(ctx, g, "resignation")
	return nil
}

// Journal returns the game's journal text for editing by a participant.
func (c *Coordinator) Journal(ctx context.Context, gameID, actorID string) (string, error) {
	g, err := c.store.GetGame(ctx, gameID)
	if err != nil {
		return "", err
	}
	if g == nil {
		return "", domain.ErrNotFound
	}
	if !g.HasPlayer(actorID) {
		return "", domain.ErrUnauthorized
	}
	return g.Journal, nil
}

// SaveJournal replaces the journal text and refreshes both histories, since
// the journal is part of the history row.
func (c *Coordinator) SaveJournal(ctx context.Context, gameID, actorID, text string) error {
	unlock := c.locks.Lock(gameID)
	defer unlock()

	g, err := c.store.GetGame(ctx, gameID)
	if err != nil {
		return err
	}
	if g == nil {
		return domain.ErrNotFound
	}
	if !g.HasPlayer(actorID) {
		return domain.ErrUnauthorized
	}
	g.Journal = text
	g.UpdatedAt = now()
	if err := c.store.SaveGame(ctx, g); err != nil {
		return err
	}
	c.log.Info("game_journal_save", zap.String("game_id", g.ID), zap.String("user_id", actorID))
	c.notifier.HistoryChanged(ctx, g.WhiteID, g.BlackID)
	return nil
}

// Delete removes the session and refreshes both histories; the refreshed
// views simply omit the game.
func (c *Coordinator) Delete(ctx context.Context, gameID, actorID string) error {
	unlock := c.locks.Lock(gameID)
	defer unlock()

	g, err := c.store.GetGame(ctx, gameID)
	if err != nil {
		return err
	}
	if g == nil {
		return domain.ErrNotFound
	}
	if !g.HasPlayer(actorID) {
		return domain.ErrUnauthorized
	}
	if err := c.store.DeleteGame(ctx, g); err != nil {
		return err
	}
	c.log.Info("game_delete", zap.String("game_id", g.ID), zap.String("user_id", actorID))
	c.notifier.HistoryChanged(ctx, g.WhiteID, g.BlackID)
	return nil
}

// Lookup returns the session, translating a store miss into NotFound.
func (c *Coordinator) Lookup(ctx context.Context, gameID string) (*domain.GameSession, error) {
	g, err := c.store.GetGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, domain.ErrNotFound
	}
	return g, nil
}

// ActiveGameFor returns the user's unfinished game, nil when none exists.
func (c *Coordinator) ActiveGameFor(ctx context.Context, userID string) (*domain.GameSession, error) {
	return c.store.ActiveGameByUser(ctx, userID)
}

func (c *Coordinator) archiveResult(ctx context.Context, g *domain.GameSession, method string) {
	if c.archive == nil {
		return
	}
	if err := c.archive.SaveResult(ctx, g, method); err != nil {
		c.log.Error("game_archive_error", zap.String("game_id", g.ID), zap.Error(err))
		return
	}
	c.log.Info("game_archive", zap.String("game_id", g.ID), zap.String("method", method))
}
