package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/KiritiVelivela/chess-multiplayer/internal/auth"
	"github.com/KiritiVelivela/chess-multiplayer/internal/board"
	"github.com/KiritiVelivela/chess-multiplayer/internal/challenge"
	"github.com/KiritiVelivela/chess-multiplayer/internal/domain"
	"github.com/KiritiVelivela/chess-multiplayer/internal/game"
	"github.com/KiritiVelivela/chess-multiplayer/internal/msgcat"
	"github.com/KiritiVelivela/chess-multiplayer/internal/notify"
	"github.com/KiritiVelivela/chess-multiplayer/internal/presence"
	"github.com/KiritiVelivela/chess-multiplayer/internal/proto"
	"github.com/KiritiVelivela/chess-multiplayer/internal/registry"
	"github.com/KiritiVelivela/chess-multiplayer/internal/store"
)

type fixture struct {
	server   *Server
	store    *store.Store
	verifier *auth.Verifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(func() { mr.Close() })
	st := store.New(redis.NewClient(&redis.Options{Addr: mr.Addr()}), 0)
	reg := registry.New(nil)
	notifier := notify.New(st, reg, nil)
	verifier, err := auth.NewVerifier("test-secret")
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	catalog, err := msgcat.New("")
	if err != nil {
		t.Fatalf("msgcat: %v", err)
	}
	server := NewServer(Deps{
		Verifier:   verifier,
		Registry:   reg,
		Games:      game.NewCoordinator(st, reg, notifier, nil),
		Challenges: challenge.NewCoordinator(st, notifier, nil),
		Presence:   presence.NewBroadcaster(st, reg, nil),
		Notifier:   notifier,
		Catalog:    catalog,
	})
	return &fixture{server: server, store: st, verifier: verifier}
}

func drainOne(t *testing.T, c *registry.Client) any {
	t.Helper()
	select {
	case p := <-c.Outbound():
		return p
	default:
		t.Fatalf("no event enqueued")
		return nil
	}
}

func TestAuthenticate(t *testing.T) {
	f := newFixture(t)
	tok, err := f.verifier.GenerateToken(domain.Player{ID: "u1", Name: "Alice"}, time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	cases := []struct {
		name   string
		setup  func(r *http.Request)
		ok     bool
		status int
	}{
		{
			name:  "query param",
			setup: func(r *http.Request) { r.URL.RawQuery = "token=" + tok },
			ok:    true,
		},
		{
			name:  "bearer header",
			setup: func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+tok) },
			ok:    true,
		},
		{
			name:   "missing token",
			setup:  func(r *http.Request) {},
			status: http.StatusUnauthorized,
		},
		{
			name:   "garbage token",
			setup:  func(r *http.Request) { r.URL.RawQuery = "token=garbage" },
			status: http.StatusUnauthorized,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/ws/home", nil)
			tc.setup(r)
			w := httptest.NewRecorder()
			user, ok := f.server.authenticate(w, r)
			if ok != tc.ok {
				t.Fatalf("ok = %v, want %v", ok, tc.ok)
			}
			if tc.ok && user.ID != "u1" {
				t.Fatalf("unexpected user %+v", user)
			}
			if !tc.ok && w.Code != tc.status {
				t.Fatalf("status = %d, want %d", w.Code, tc.status)
			}
		})
	}
}

func TestErrorKeyMapping(t *testing.T) {
	cases := []struct {
		err          error
		challengeCtx bool
		want         string
	}{
		{domain.ErrNotFound, false, "errors.game_not_found"},
		{domain.ErrNotFound, true, "errors.challenge_not_found"},
		{domain.ErrUnauthorized, false, "errors.unauthorized"},
		{domain.ErrUnauthorized, true, "errors.respond_unauthorized"},
		{domain.ErrNotYourTurn, false, "errors.not_your_turn"},
		{domain.ErrMalformedMove, false, "errors.malformed_move"},
		{domain.ErrIllegalMove, false, "errors.illegal_move"},
		{domain.ErrGameAlreadyOver, false, "errors.game_over"},
		{domain.ErrAlreadyResolved, true, "errors.already_resolved"},
		{domain.ErrInvalidRequest, false, "errors.invalid_request"},
		{context.DeadlineExceeded, false, "errors.internal"},
	}
	for _, tc := range cases {
		if got := errorKey(tc.err, tc.challengeCtx); got != tc.want {
			t.Fatalf("errorKey(%v, %v) = %q, want %q", tc.err, tc.challengeCtx, got, tc.want)
		}
	}
}

func TestDispatchHomeRejectsUnknownAction(t *testing.T) {
	f := newFixture(t)
	c := registry.NewClient(domain.Player{ID: "u1", Name: "Alice"}, 8)

	f.server.dispatchHome(context.Background(), c, proto.ClientMessage{Action: "nonsense"})
	ev, ok := drainOne(t, c).(proto.ErrorEvent)
	if !ok || ev.Type != proto.EventError {
		t.Fatalf("unexpected payload %#v", ev)
	}
}

func TestDispatchHomeRejectsGameActions(t *testing.T) {
	f := newFixture(t)
	c := registry.NewClient(domain.Player{ID: "u1", Name: "Alice"}, 8)

	for _, action := range []string{"move", "game_resigned"} {
		f.server.dispatchHome(context.Background(), c, proto.ClientMessage{Action: action, Move: "e2e4"})
		if _, ok := drainOne(t, c).(proto.ErrorEvent); !ok {
			t.Fatalf("%s on a home connection must fail", action)
		}
	}
}

func TestDispatchHomeChallengeFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := registry.NewClient(domain.Player{ID: "u1", Name: "Alice"}, 8)

	if err := f.store.SetPresence(ctx, "u2", "Bob", true); err != nil {
		t.Fatalf("SetPresence: %v", err)
	}
	f.server.dispatchHome(ctx, c, proto.ClientMessage{Action: "send_challenge", PlayerID: "u2"})
	success, ok := drainOne(t, c).(proto.SuccessEvent)
	if !ok {
		t.Fatalf("expected success event")
	}
	if success.Message != "Challenge sent to Bob!" {
		t.Fatalf("unexpected message %q", success.Message)
	}

	f.server.dispatchHome(ctx, c, proto.ClientMessage{Action: "get_challenges"})
	ev, ok := drainOne(t, c).(proto.ChallengesEvent)
	if !ok || len(ev.Challenges) != 0 {
		t.Fatalf("challenger must not see its own outgoing challenge: %#v", ev)
	}
}

func TestDispatchGameMoveBroadcasts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	g, err := f.store.CreateGame(ctx,
		domain.Player{ID: "u1", Name: "Alice"},
		domain.Player{ID: "u2", Name: "Bob"},
		board.StartingFEN(),
	)
	if err != nil {
		t.Fatalf("CreateGame: %v", err)
	}
	c := registry.NewClient(domain.Player{ID: "u1", Name: "Alice"}, 8)
	f.server.deps.Registry.JoinGame(c, g.ID)

	f.server.dispatchGame(ctx, c, g.ID, proto.ClientMessage{Action: "move", Move: "e2e4"})
	ev, ok := drainOne(t, c).(proto.GameUpdateEvent)
	if !ok || ev.Turn != domain.Black {
		t.Fatalf("unexpected payload %#v", ev)
	}

	// Out of turn now: the actor hears an error, nobody else does.
	f.server.dispatchGame(ctx, c, g.ID, proto.ClientMessage{Action: "move", Move: "d2d4"})
	if _, ok := drainOne(t, c).(proto.ErrorEvent); !ok {
		t.Fatalf("expected error event for out-of-turn move")
	}
}

func TestDispatchGameRejectsEmptyMove(t *testing.T) {
	f := newFixture(t)
	c := registry.NewClient(domain.Player{ID: "u1", Name: "Alice"}, 8)
	f.server.dispatchGame(context.Background(), c, "g1", proto.ClientMessage{Action: "move"})
	if _, ok := drainOne(t, c).(proto.ErrorEvent); !ok {
		t.Fatalf("expected error event")
	}
}
