// Package ws is the websocket transport: it authenticates the upgrade,
// binds connections into the registry, decodes client frames into the
// closed action set and routes them to the coordinators. Every failure
// becomes an error event for the acting connection only; the connection
// itself stays up.
package ws

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/KiritiVelivela/chess-multiplayer/internal/auth"
	"github.com/KiritiVelivela/chess-multiplayer/internal/challenge"
	"github.com/KiritiVelivela/chess-multiplayer/internal/domain"
	"github.com/KiritiVelivela/chess-multiplayer/internal/game"
	"github.com/KiritiVelivela/chess-multiplayer/internal/msgcat"
	"github.com/KiritiVelivela/chess-multiplayer/internal/notify"
	"github.com/KiritiVelivela/chess-multiplayer/internal/presence"
	"github.com/KiritiVelivela/chess-multiplayer/internal/proto"
	"github.com/KiritiVelivela/chess-multiplayer/internal/registry"
)

const writeTimeout = 10 * time.Second

type Deps struct {
	Verifier   *auth.Verifier
	Registry   *registry.Registry
	Games      *game.Coordinator
	Challenges *challenge.Coordinator
	Presence   *presence.Broadcaster
	Notifier   *notify.Notifier
	Catalog    *msgcat.Catalog
	Logger     *zap.Logger

	SendQueueSize int
}

type Server struct {
	deps Deps
	log  *zap.Logger
}

func NewServer(deps Deps) *Server {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{deps: deps, log: log}
}

// Routes mounts the websocket endpoints.
func (s *Server) Routes(r chi.Router) {
	r.Get("/ws/home", s.handleHome)
	r.Get("/ws/game/{gameID}", s.handleGame)
}

// handleHome serves the lobby connection: personal channel, lobby channel,
// presence, and the lobby action vocabulary.
func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	user, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.log.Warn("ws_accept_error", zap.String("endpoint", "home"), zap.Error(err))
		return
	}
	defer conn.Close(websocket.StatusInternalError, "teardown")

	client := registry.NewClient(user, s.deps.SendQueueSize)
	s.deps.Registry.Register(client)
	s.log.Info("ws_accept",
		zap.String("endpoint", "home"),
		zap.String("user_id", user.ID),
		zap.String("conn_id", client.ID),
	)

	ctx := r.Context()
	go s.writeLoop(ctx, conn, client)
	s.deps.Presence.Connected(ctx, user)

	s.readHome(ctx, conn, client)

	// Teardown order matters: leave every channel before the next
	// broadcast computes its recipients, then update presence.
	last := s.deps.Registry.Unregister(client)
	if last {
		s.deps.Presence.Disconnected(context.WithoutCancel(ctx), user.ID)
	} else {
		s.deps.Presence.Broadcast(context.WithoutCancel(ctx))
	}
	s.log.Info("ws_close",
		zap.String("endpoint", "home"),
		zap.String("user_id", user.ID),
		zap.String("conn_id", client.ID),
	)
	conn.Close(websocket.StatusNormalClosure, "bye")
}

// handleGame serves a per-game connection; both players share the game
// channel, and joining is open to any authenticated user for an existing
// game.
func (s *Server) handleGame(w http.ResponseWriter, r *http.Request) {
	user, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	gameID := chi.URLParam(r, "gameID")
	if _, err := s.deps.Games.Lookup(r.Context(), gameID); err != nil {
		http.Error(w, "game not found", http.StatusNotFound)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.log.Warn("ws_accept_error", zap.String("endpoint", "game"), zap.Error(err))
		return
	}
	defer conn.Close(websocket.StatusInternalError, "teardown")

	client := registry.NewClient(user, s.deps.SendQueueSize)
	s.deps.Registry.JoinGame(client, gameID)
	s.log.Info("ws_accept",
		zap.String("endpoint", "game"),
		zap.String("game_id", gameID),
		zap.String("user_id", user.ID),
		zap.String("conn_id", client.ID),
	)

	ctx := r.Context()
	go s.writeLoop(ctx, conn, client)
	s.readGame(ctx, conn, client, gameID)

	s.deps.Registry.LeaveGame(client)
	s.log.Info("ws_close",
		zap.String("endpoint", "game"),
		zap.String("game_id", gameID),
		zap.String("user_id", user.ID),
		zap.String("conn_id", client.ID),
	)
	conn.Close(websocket.StatusNormalClosure, "bye")
}

func (s *Server) readHome(ctx context.Context, conn *websocket.Conn, c *registry.Client) {
	for {
		var msg proto.ClientMessage
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			return
		}
		s.dispatchHome(ctx, c, msg)
	}
}

func (s *Server) readGame(ctx context.Context, conn *websocket.Conn, c *registry.Client, gameID string) {
	for {
		var msg proto.ClientMessage
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			return
		}
		s.dispatchGame(ctx, c, gameID, msg)
	}
}

func (s *Server) dispatchHome(ctx context.Context, c *registry.Client, msg proto.ClientMessage) {
	action, known := proto.ParseAction(msg.Action)
	if !known {
		s.sendError(c, domain.ErrInvalidRequest, false)
		return
	}
	switch action {
	case proto.ActionGetChallenges:
		s.sendChallenges(ctx, c)

	case proto.ActionCheckGameStart:
		g, err := s.deps.Games.ActiveGameFor(ctx, c.User.ID)
		if err != nil {
			s.sendError(c, err, false)
			return
		}
		if g != nil {
			c.Enqueue(proto.GameStart(g.ID))
		}

	case proto.ActionGetAvailablePlayers:
		ev, err := s.deps.Presence.View(ctx, c.User.ID)
		if err != nil {
			s.sendError(c, err, false)
			return
		}
		c.Enqueue(ev)

	case proto.ActionRespondChallenge:
		decision, ok := challenge.ParseDecision(msg.Response)
		if msg.ChallengeID == "" || !ok {
			s.sendError(c, domain.ErrInvalidRequest, true)
			return
		}
		if _, err := s.deps.Challenges.Respond(ctx, msg.ChallengeID, c.User.ID, decision); err != nil {
			s.sendError(c, err, true)
			return
		}
		// The responder refreshes its own pending list inline.
		s.sendChallenges(ctx, c)

	case proto.ActionSendChallenge:
		if msg.PlayerID == "" {
			s.sendError(c, domain.ErrInvalidRequest, true)
			return
		}
		ch, err := s.deps.Challenges.Send(ctx, c.User, msg.PlayerID)
		if err != nil {
			s.sendError(c, err, true)
			return
		}
		text, rerr := s.deps.Catalog.Render("success.challenge_sent", map[string]string{"Name": ch.ChallengedName})
		if rerr != nil {
			text = "Challenge sent!"
		}
		c.Enqueue(proto.Success(text))

	case proto.ActionEditJournal:
		if msg.GameID == "" {
			s.sendError(c, domain.ErrInvalidRequest, false)
			return
		}
		text, err := s.deps.Games.Journal(ctx, msg.GameID, c.User.ID)
		if err != nil {
			s.sendError(c, err, false)
			return
		}
		c.Enqueue(proto.Success(text))

	case proto.ActionSaveJournal:
		if msg.GameID == "" {
			s.sendError(c, domain.ErrInvalidRequest, false)
			return
		}
		if err := s.deps.Games.SaveJournal(ctx, msg.GameID, c.User.ID, msg.Journal); err != nil {
			s.sendError(c, err, false)
			return
		}
		c.Enqueue(proto.Success(s.deps.Catalog.Text("success.journal_saved")))

	case proto.ActionDeleteGame:
		if msg.GameID == "" {
			s.sendError(c, domain.ErrInvalidRequest, false)
			return
		}
		if err := s.deps.Games.Delete(ctx, msg.GameID, c.User.ID); err != nil {
			s.sendError(c, err, false)
			return
		}
		c.Enqueue(proto.Success(s.deps.Catalog.Text("success.game_deleted")))

	case proto.ActionMove, proto.ActionResign:
		// Game actions only make sense on a game connection.
		s.sendError(c, domain.ErrInvalidRequest, false)
	}
}

func (s *Server) dispatchGame(ctx context.Context, c *registry.Client, gameID string, msg proto.ClientMessage) {
	action, known := proto.ParseAction(msg.Action)
	if !known {
		s.sendError(c, domain.ErrInvalidRequest, false)
		return
	}
	switch action {
	case proto.ActionMove:
		if msg.Move == "" {
			s.sendError(c, domain.ErrInvalidRequest, false)
			return
		}
		if err := s.deps.Games.SubmitMove(ctx, gameID, c.User.ID, msg.Move); err != nil {
			s.sendError(c, err, false)
		}
		// No direct reply on success: the game channel broadcast reaches
		// the actor and the opponent in the same order.

	case proto.ActionResign:
		if err := s.deps.Games.Resign(ctx, gameID, c.User.ID); err != nil {
			s.sendError(c, err, false)
		}

	default:
		s.sendError(c, domain.ErrInvalidRequest, false)
	}
}

func (s *Server) sendChallenges(ctx context.Context, c *registry.Client) {
	ev, err := s.deps.Notifier.ChallengesView(ctx, c.User.ID)
	if err != nil {
		s.sendError(c, err, true)
		return
	}
	c.Enqueue(ev)
}

// sendError converts a coordinator failure into an error event for this
// connection only. challengeCtx picks challenge wording for the shared
// sentinels.
func (s *Server) sendError(c *registry.Client, err error, challengeCtx bool) {
	c.Enqueue(proto.Error(s.deps.Catalog.Text(errorKey(err, challengeCtx))))
}

func errorKey(err error, challengeCtx bool) string {
	switch {
	case errors.Is(err, domain.ErrNotFound) && challengeCtx:
		return "errors.challenge_not_found"
	case errors.Is(err, domain.ErrNotFound):
		return "errors.game_not_found"
	case errors.Is(err, domain.ErrUnauthorized) && challengeCtx:
		return "errors.respond_unauthorized"
	case errors.Is(err, domain.ErrUnauthorized):
		return "errors.unauthorized"
	case errors.Is(err, domain.ErrNotYourTurn):
		return "errors.not_your_turn"
	case errors.Is(err, domain.ErrMalformedMove):
		return "errors.malformed_move"
	case errors.Is(err, domain.ErrIllegalMove):
		return "errors.illegal_move"
	case errors.Is(err, domain.ErrGameAlreadyOver):
		return "errors.game_over"
	case errors.Is(err, domain.ErrAlreadyResolved):
		return "errors.already_resolved"
	case errors.Is(err, domain.ErrInvalidRequest):
		return "errors.invalid_request"
	}
	return "errors.internal"
}

// writeLoop drains the client's outbound queue onto the socket. A write
// failure just ends the loop; the read side notices the dead socket and
// runs the teardown.
func (s *Server) writeLoop(ctx context.Context, conn *websocket.Conn, c *registry.Client) {
	for {
		select {
		case <-c.Done():
			return
		case <-ctx.Done():
			return
		case payload := <-c.Outbound():
			wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
			err := wsjson.Write(wctx, conn, payload)
			cancel()
			if err != nil {
				s.log.Debug("ws_write_error",
					zap.String("user_id", c.User.ID),
					zap.String("conn_id", c.ID),
					zap.Error(err),
				)
				return
			}
		}
	}
}

// authenticate resolves the connection's user from a bearer token, either
// an Authorization header or a token query parameter (browsers cannot set
// websocket headers).
func (s *Server) authenticate(w http.ResponseWriter, r *http.Request) (domain.Player, bool) {
	token := r.URL.Query().Get("token")
	if token == "" {
		header := r.Header.Get("Authorization")
		token = strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return domain.Player{}, false
	}
	user, err := s.deps.Verifier.Verify(token)
	if err != nil {
		s.log.Warn("ws_auth_error", zap.Error(err))
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return domain.Player{}, false
	}
	return user, true
}
