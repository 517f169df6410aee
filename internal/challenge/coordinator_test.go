package challenge

import (
	"context"
	"errors"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/KiritiVelivela/chess-multiplayer/internal/board"
	"github.com/KiritiVelivela/chess-multiplayer/internal/domain"
	"github.com/KiritiVelivela/chess-multiplayer/internal/game"
	"github.com/KiritiVelivela/chess-multiplayer/internal/notify"
	"github.com/KiritiVelivela/chess-multiplayer/internal/proto"
	"github.com/KiritiVelivela/chess-multiplayer/internal/registry"
	"github.com/KiritiVelivela/chess-multiplayer/internal/store"
)

var (
	alice = domain.Player{ID: "u-alice", Name: "Alice"}
	bob   = domain.Player{ID: "u-bob", Name: "Bob"}
)

type fixture struct {
	coord *Coordinator
	store *store.Store
	reg   *registry.Registry
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
	return &fixture{coord: NewCoordinator(st, notifier, nil), store: st, reg: reg}
}

func (f *fixture) connect(t *testing.T, user domain.Player) *registry.Client {
	t.Helper()
	c := registry.NewClient(user, 16)
	f.reg.Register(c)
	if err := f.store.SetPresence(context.Background(), user.ID, user.Name, true); err != nil {
		t.Fatalf("SetPresence: %v", err)
	}
	return c
}

func drain(c *registry.Client) []any {
	var got []any
	for {
		select {
		case p := <-c.Outbound():
			got = append(got, p)
		default:
			return got
		}
	}
}

func TestParseDecision(t *testing.T) {
	for s, want := range map[string]Decision{"accept": Accept, "reject": Reject} {
		got, ok := ParseDecision(s)
		if !ok || got != want {
			t.Fatalf("ParseDecision(%q) = %v, %v", s, got, ok)
		}
	}
	for _, s := range []string{"", "ACCEPT", "maybe"} {
		if _, ok := ParseDecision(s); ok {
			t.Fatalf("ParseDecision(%q) should fail", s)
		}
	}
}

func TestSendNotifiesChallenged(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bobConn := f.connect(t, bob)

	ch, err := f.coord.Send(ctx, alice, bob.ID)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if ch.Outcome != domain.ChallengePending || ch.ChallengedName != "Bob" {
		t.Fatalf("unexpected challenge: %+v", ch)
	}

	got := drain(bobConn)
	if len(got) != 1 {
		t.Fatalf("expected 1 event, got %d", len(got))
	}
	ev, ok := got[0].(proto.ChallengesEvent)
	if !ok || len(ev.Challenges) != 1 || ev.Challenges[0].Challenger != "Alice" {
		t.Fatalf("unexpected event %#v", got[0])
	}
}

func TestSendRejectsSelfAndEmptyTarget(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.coord.Send(ctx, alice, alice.ID); !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("self challenge: %v", err)
	}
	if _, err := f.coord.Send(ctx, alice, ""); !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("empty target: %v", err)
	}
}

func TestSendOfflineTargetFallsBackToID(t *testing.T) {
	f := newFixture(t)
	ch, err := f.coord.Send(context.Background(), alice, "u-ghost")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if ch.ChallengedName != "u-ghost" {
		t.Fatalf("expected id fallback, got %q", ch.ChallengedName)
	}
}

func TestAcceptCreatesGameChallengerAsWhite(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	aliceConn := f.connect(t, alice)
	bobConn := f.connect(t, bob)

	ch, err := f.coord.Send(ctx, alice, bob.ID)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	drain(aliceConn)
	drain(bobConn)

	g, err := f.coord.Respond(ctx, ch.ID, bob.ID, Accept)
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if g == nil || g.WhiteID != alice.ID || g.BlackID != bob.ID {
		t.Fatalf("unexpected game: %+v", g)
	}
	if g.FEN != board.StartingFEN() || g.GameOver {
		t.Fatalf("game not at standard start: %+v", g)
	}

	for _, conn := range []*registry.Client{aliceConn, bobConn} {
		got := drain(conn)
		var starts int
		for _, p := range got {
			if ev, ok := p.(proto.GameStartEvent); ok {
				if ev.GameID != g.ID {
					t.Fatalf("wrong game id in start event: %+v", ev)
				}
				starts++
			}
		}
		if starts != 1 {
			t.Fatalf("%s received %d game_start events", conn.User.ID, starts)
		}
	}

	pending, err := f.coord.PendingFor(ctx, bob.ID)
	if err != nil {
		t.Fatalf("PendingFor: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("accepted challenge still pending: %v", pending)
	}
}

func TestRespondGuards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.coord.Respond(ctx, "missing", bob.ID, Accept); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("missing challenge: %v", err)
	}

	ch, err := f.coord.Send(ctx, alice, bob.ID)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	// Neither the challenger nor a bystander may answer.
	if _, err := f.coord.Respond(ctx, ch.ID, alice.ID, Accept); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("challenger respond: %v", err)
	}
	if _, err := f.coord.Respond(ctx, ch.ID, "stranger", Reject); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("stranger respond: %v", err)
	}

	if _, err := f.coord.Respond(ctx, ch.ID, bob.ID, Accept); err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if _, err := f.coord.Respond(ctx, ch.ID, bob.ID, Reject); !errors.Is(err, domain.ErrAlreadyResolved) {
		t.Fatalf("second response: %v", err)
	}
}

func TestRejectNotifiesChallengerOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	aliceConn := f.connect(t, alice)

	ch, err := f.coord.Send(ctx, alice, bob.ID)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	drain(aliceConn)

	g, err := f.coord.Respond(ctx, ch.ID, bob.ID, Reject)
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if g != nil {
		t.Fatalf("reject must not create a game, got %+v", g)
	}

	got := drain(aliceConn)
	if len(got) != 1 {
		t.Fatalf("expected 1 refresh for the challenger, got %d", len(got))
	}
	if _, ok := got[0].(proto.ChallengesEvent); !ok {
		t.Fatalf("unexpected event %#v", got[0])
	}

	stored, err := f.store.GetChallenge(ctx, ch.ID)
	if err != nil || stored == nil {
		t.Fatalf("GetChallenge: %v", err)
	}
	if stored.Outcome != domain.ChallengeRejected {
		t.Fatalf("expected rejected, got %s", stored.Outcome)
	}
}

// Full lifecycle across both coordinators: challenge, accept, play, resign.
func TestChallengeThroughResignation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.connect(t, alice)
	f.connect(t, bob)

	games := game.NewCoordinator(f.store, f.reg, notify.New(f.store, f.reg, nil), nil)

	ch, err := f.coord.Send(ctx, alice, bob.ID)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	g, err := f.coord.Respond(ctx, ch.ID, bob.ID, Accept)
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if g.WhiteID != alice.ID || g.FEN != board.StartingFEN() {
		t.Fatalf("unexpected game: %+v", g)
	}

	if err := games.SubmitMove(ctx, g.ID, alice.ID, "e2e4"); err != nil {
		t.Fatalf("e2e4: %v", err)
	}
	if err := games.SubmitMove(ctx, g.ID, bob.ID, "d7d5"); err != nil {
		t.Fatalf("d7d5: %v", err)
	}
	if err := games.Resign(ctx, g.ID, alice.ID); err != nil {
		t.Fatalf("Resign: %v", err)
	}

	final, err := f.store.GetGame(ctx, g.ID)
	if err != nil || final == nil {
		t.Fatalf("GetGame: %v", err)
	}
	if !final.GameOver || !final.Resigned || final.WinnerID != bob.ID {
		t.Fatalf("unexpected final state: %+v", final)
	}
	if err := games.SubmitMove(ctx, g.ID, bob.ID, "g1f3"); !errors.Is(err, domain.ErrGameAlreadyOver) {
		t.Fatalf("move after resignation: %v", err)
	}
}
