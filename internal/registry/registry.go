// Package registry tracks which connections belong to which user and game,
// and fans events out to named channels: one per user, one per game, and
// the shared lobby.
package registry

import (
	"sync"

	"go.uber.org/zap"
)

// Lobby is the channel every authenticated home connection joins.
const Lobby = "home"

func UserChannel(userID string) string { return "user_" + userID }
func GameChannel(gameID string) string { return "game_" + gameID }

type Registry struct {
	log *zap.Logger

	mu       sync.RWMutex
	channels map[string]map[*Client]struct{}
	joined   map[*Client]map[string]struct{}
	conns    map[string]int // userID -> live home connections
}

func New(log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{
		log:      log,
		channels: make(map[string]map[*Client]struct{}),
		joined:   make(map[*Client]map[string]struct{}),
		conns:    make(map[string]int),
	}
}

// Register binds a home connection: personal channel plus lobby. Returns
// true when this is the user's first live connection, i.e. a presence
// transition to online.
func (r *Registry) Register(c *Client) (first bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.join(UserChannel(c.User.ID), c)
	r.join(Lobby, c)
	r.conns[c.User.ID]++
	return r.conns[c.User.ID] == 1
}

// Unregister tears a home connection down, removing it from every channel
// it joined. Returns true when the user has no remaining connections.
func (r *Registry) Unregister(c *Client) (last bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drop(c)
	if n, ok := r.conns[c.User.ID]; ok {
		if n <= 1 {
			delete(r.conns, c.User.ID)
			last = true
		} else {
			r.conns[c.User.ID] = n - 1
		}
	}
	c.Close()
	return last
}

// JoinGame adds a connection to a game channel; both players of a game
// share one channel.
func (r *Registry) JoinGame(c *Client, gameID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.join(GameChannel(gameID), c)
}

// LeaveGame removes a game-endpoint connection from every channel it
// joined and closes it.
func (r *Registry) LeaveGame(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drop(c)
	c.Close()
}

// Send delivers payload to every current member of channel. Zero members
// is a no-op; a refused enqueue is logged, never an error for the
// broadcast as a whole.
func (r *Registry) Send(channel string, payload any) int {
	r.mu.RLock()
	members := make([]*Client, 0, len(r.channels[channel]))
	for c := range r.channels[channel] {
		members = append(members, c)
	}
	r.mu.RUnlock()

	delivered := 0
	for _, c := range members {
		if c.Enqueue(payload) {
			delivered++
			continue
		}
		r.log.Warn("fanout_drop",
			zap.String("channel", channel),
			zap.String("user_id", c.User.ID),
			zap.String("conn_id", c.ID),
		)
	}
	return delivered
}

// Members reports the current size of a channel.
func (r *Registry) Members(channel string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.channels[channel])
}

func (r *Registry) join(channel string, c *Client) {
	set, ok := r.channels[channel]
	if !ok {
		set = make(map[*Client]struct{})
		r.channels[channel] = set
	}
	set[c] = struct{}{}

	rev, ok := r.joined[c]
	if !ok {
		rev = make(map[string]struct{})
		r.joined[c] = rev
	}
	rev[channel] = struct{}{}
}

func (r *Registry) drop(c *Client) {
	for channel := range r.joined[c] {
		if set, ok := r.channels[channel]; ok {
			delete(set, c)
			if len(set) == 0 {
				delete(r.channels, channel)
			}
		}
	}
	delete(r.joined, c)
}
