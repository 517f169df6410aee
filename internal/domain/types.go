package domain

import (
	"strconv"
	"strings"
	"time"
)

// Color identifies a chess side.
type Color string

const (
	White Color = "white"
	Black Color = "black"
)

// ChallengeOutcome is the tri-state result of a challenge.
type ChallengeOutcome string

const (
	ChallengePending  ChallengeOutcome = "PENDING"
	ChallengeAccepted ChallengeOutcome = "ACCEPTED"
	ChallengeRejected ChallengeOutcome = "REJECTED"
)

// Player is a reference to an externally owned user identity.
type Player struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// GameSession is the authoritative state of one game.
type GameSession struct {
	ID        string    `json:"id"`
	WhiteID   string    `json:"white_id"`
	WhiteName string    `json:"white_name"`
	BlackID   string    `json:"black_id"`
	BlackName string    `json:"black_name"`
	FEN       string    `json:"fen"`
	MovesUCI  []string  `json:"moves_uci"`
	MovesSAN  []string  `json:"moves_san"`
	GameOver  bool      `json:"game_over"`
	WinnerID  string    `json:"winner_id,omitempty"`
	Resigned  bool      `json:"resigned"`
	Journal   string    `json:"journal,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasPlayer reports whether userID is one of the two participants.
func (g *GameSession) HasPlayer(userID string) bool {
	return userID != "" && (g.WhiteID == userID || g.BlackID == userID)
}

// PlayerColor returns the side userID plays, or "" for non-participants.
func (g *GameSession) PlayerColor(userID string) Color {
	switch {
	case userID != "" && g.WhiteID == userID:
		return White
	case userID != "" && g.BlackID == userID:
		return Black
	}
	return ""
}

// Opponent returns the other participant.
func (g *GameSession) Opponent(userID string) Player {
	if g.WhiteID == userID {
		return Player{ID: g.BlackID, Name: g.BlackName}
	}
	return Player{ID: g.WhiteID, Name: g.WhiteName}
}

// MoveCount extracts the fullmove number from the FEN, 0 when absent.
func (g *GameSession) MoveCount() int {
	parts := strings.Fields(g.FEN)
	if len(parts) < 6 {
		return 0
	}
	n, err := strconv.Atoi(parts[5])
	if err != nil {
		return 0
	}
	return n
}

// Challenge is a pending invitation from challenger to challenged.
type Challenge struct {
	ID             string           `json:"id"`
	ChallengerID   string           `json:"challenger_id"`
	ChallengerName string           `json:"challenger_name"`
	ChallengedID   string           `json:"challenged_id"`
	ChallengedName string           `json:"challenged_name"`
	Outcome        ChallengeOutcome `json:"outcome"`
	CreatedAt      time.Time        `json:"created_at"`
}

// PresenceEntry is one row of the online set.
type PresenceEntry struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
}
