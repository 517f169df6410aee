// Package store implements the persistence collaborator over Redis: game and
// challenge records as JSON blobs with per-user set indexes, plus the online
// presence hash.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/KiritiVelivela/chess-multiplayer/internal/domain"
)

type Store struct {
	rdb *redis.Client
	ttl time.Duration // 0 keeps records forever
}

func New(rdb *redis.Client, ttl time.Duration) *Store {
	return &Store{rdb: rdb, ttl: ttl}
}

// Dial connects and pings a Redis server given a redis:// URL.
func Dial(ctx context.Context, redisURL string) (*redis.Client, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, fmt.Errorf("REDIS_URL required")
	}
	opts, err := parseRedisURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

func (s *Store) keyGame(id string) string          { return "game:" + strings.TrimSpace(id) }
func (s *Store) keyUserGames(user string) string   { return "games:user:" + strings.TrimSpace(user) }
func (s *Store) keyChallenge(id string) string     { return "challenge:" + strings.TrimSpace(id) }
func (s *Store) keyPending(user string) string     { return "challenges:pending:" + strings.TrimSpace(user) }
func (s *Store) keyPresence() string               { return "presence:online" }

// CreateGame stores a fresh session and indexes both participants.
func (s *Store) CreateGame(ctx context.Context, white, black domain.Player, initialFEN string) (*domain.GameSession, error) {
	if white.ID == "" || black.ID == "" {
		return nil, domain.ErrInvalidRequest
	}
	now := time.Now()
	g := &domain.GameSession{
		ID:        uuid.NewString(),
		WhiteID:   white.ID,
		WhiteName: white.Name,
		BlackID:   black.ID,
		BlackName: black.Name,
		FEN:       initialFEN,
		MovesUCI:  []string{},
		MovesSAN:  []string{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.SaveGame(ctx, g); err != nil {
		return nil, err
	}
	for _, uid := range []string{g.WhiteID, g.BlackID} {
		if err := s.rdb.SAdd(ctx, s.keyUserGames(uid), g.ID).Err(); err != nil {
			return nil, err
		}
		s.refresh(ctx, s.keyUserGames(uid))
	}
	return g, nil
}

// GetGame returns nil, nil when the record does not exist.
func (s *Store) GetGame(ctx context.Context, id string) (*domain.GameSession, error) {
	raw, err := s.rdb.Get(ctx, s.keyGame(id)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var g domain.GameSession
	if err := json.Unmarshal(raw, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

func (s *Store) SaveGame(ctx context.Context, g *domain.GameSession) error {
	raw, err := json.Marshal(g)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, s.keyGame(g.ID), raw, s.ttl).Err()
}

// DeleteGame removes the record and both participants' index entries.
func (s *Store) DeleteGame(ctx context.Context, g *domain.GameSession) error {
	if err := s.rdb.Del(ctx, s.keyGame(g.ID)).Err(); err != nil {
		return err
	}
	for _, uid := range []string{g.WhiteID, g.BlackID} {
		if err := s.rdb.SRem(ctx, s.keyUserGames(uid), g.ID).Err(); err != nil {
			return err
		}
	}
	return nil
}

// GamesByUser returns every session involving the user, most recent first.
// Index entries whose record expired are skipped.
func (s *Store) GamesByUser(ctx context.Context, userID string) ([]*domain.GameSession, error) {
	ids, err := s.rdb.SMembers(ctx, s.keyUserGames(userID)).Result()
	if err != nil {
		return nil, err
	}
	list := make([]*domain.GameSession, 0, len(ids))
	for _, id := range ids {
		g, gerr := s.GetGame(ctx, id)
		if gerr != nil {
			return nil, gerr
		}
		if g != nil {
			list = append(list, g)
		}
	}
	sort.Slice(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.After(list[j].CreatedAt)
		}
		return list[i].ID > list[j].ID
	})
	return list, nil
}

// ActiveGameByUser returns the most recent unfinished session for the user,
// nil when there is none.
func (s *Store) ActiveGameByUser(ctx context.Context, userID string) (*domain.GameSession, error) {
	games, err := s.GamesByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, g := range games {
		if !g.GameOver {
			return g, nil
		}
	}
	return nil, nil
}

// CreateChallenge stores a pending challenge and indexes it for the
// challenged user.
func (s *Store) CreateChallenge(ctx context.Context, challenger, challenged domain.Player) (*domain.Challenge, error) {
	if challenger.ID == "" || challenged.ID == "" {
		return nil, domain.ErrInvalidRequest
	}
	ch := &domain.Challenge{
		ID:             uuid.NewString(),
		ChallengerID:   challenger.ID,
		ChallengerName: challenger.Name,
		ChallengedID:   challenged.ID,
		ChallengedName: challenged.Name,
		Outcome:        domain.ChallengePending,
		CreatedAt:      time.Now(),
	}
	if err := s.saveChallenge(ctx, ch); err != nil {
		return nil, err
	}
	if err := s.rdb.SAdd(ctx, s.keyPending(ch.ChallengedID), ch.ID).Err(); err != nil {
		return nil, err
	}
	s.refresh(ctx, s.keyPending(ch.ChallengedID))
	return ch, nil
}

// GetChallenge returns nil, nil when the record does not exist.
func (s *Store) GetChallenge(ctx context.Context, id string) (*domain.Challenge, error) {
	raw, err := s.rdb.Get(ctx, s.keyChallenge(id)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var ch domain.Challenge
	if err := json.Unmarshal(raw, &ch); err != nil {
		return nil, err
	}
	return &ch, nil
}

// SaveChallenge writes the record back; resolved challenges leave the
// pending index but persist as history.
func (s *Store) SaveChallenge(ctx context.Context, ch *domain.Challenge) error {
	if err := s.saveChallenge(ctx, ch); err != nil {
		return err
	}
	if ch.Outcome != domain.ChallengePending {
		return s.rdb.SRem(ctx, s.keyPending(ch.ChallengedID), ch.ID).Err()
	}
	return nil
}

func (s *Store) saveChallenge(ctx context.Context, ch *domain.Challenge) error {
	raw, err := json.Marshal(ch)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, s.keyChallenge(ch.ID), raw, s.ttl).Err()
}

// PendingChallenges lists unresolved challenges aimed at the user, oldest
// first.
func (s *Store) PendingChallenges(ctx context.Context, challengedID string) ([]*domain.Challenge, error) {
	ids, err := s.rdb.SMembers(ctx, s.keyPending(challengedID)).Result()
	if err != nil {
		return nil, err
	}
	list := make([]*domain.Challenge, 0, len(ids))
	for _, id := range ids {
		ch, cerr := s.GetChallenge(ctx, id)
		if cerr != nil {
			return nil, cerr
		}
		if ch != nil && ch.Outcome == domain.ChallengePending {
			list = append(list, ch)
		}
	}
	sort.Slice(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.Before(list[j].CreatedAt)
		}
		return list[i].ID < list[j].ID
	})
	return list, nil
}

// SetPresence flips the user's entry in the online hash.
func (s *Store) SetPresence(ctx context.Context, userID, name string, online bool) error {
	if strings.TrimSpace(userID) == "" {
		return nil
	}
	if online {
		return s.rdb.HSet(ctx, s.keyPresence(), userID, name).Err()
	}
	return s.rdb.HDel(ctx, s.keyPresence(), userID).Err()
}

// PresenceName returns the display name of an online user, "" when the
// user is offline.
func (s *Store) PresenceName(ctx context.Context, userID string) (string, error) {
	name, err := s.rdb.HGet(ctx, s.keyPresence(), userID).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return name, nil
}

// OnlinePlayers returns the full online set, sorted by name for stable
// client lists.
func (s *Store) OnlinePlayers(ctx context.Context) ([]domain.PresenceEntry, error) {
	fields, err := s.rdb.HGetAll(ctx, s.keyPresence()).Result()
	if err != nil {
		return nil, err
	}
	list := make([]domain.PresenceEntry, 0, len(fields))
	for id, name := range fields {
		list = append(list, domain.PresenceEntry{UserID: id, Name: name})
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].Name != list[j].Name {
			return list[i].Name < list[j].Name
		}
		return list[i].UserID < list[j].UserID
	})
	return list, nil
}

func (s *Store) refresh(ctx context.Context, key string) {
	if s.ttl > 0 {
		_ = s.rdb.Expire(ctx, key, s.ttl).Err()
	}
}

func parseRedisURL(raw string) (*redis.Options, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	db := 0
	if p := strings.TrimPrefix(u.Path, "/"); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			db = n
		}
	}
	pass, _ := u.User.Password()
	return &redis.Options{Addr: u.Host, Password: pass, DB: db}, nil
}
