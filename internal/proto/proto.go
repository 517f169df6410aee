// Package proto defines the websocket wire vocabulary: the closed set of
// client actions and the server event payloads. Dispatch over Action is
// exhaustive, so adding an action is a compile-visible change here and in
// the transport switch, never a stray string.
package proto

import "github.com/KiritiVelivela/chess-multiplayer/internal/domain"

// Action is one of the client-initiated operations.
type Action int

const (
	ActionUnknown Action = iota
	ActionGetChallenges
	ActionCheckGameStart
	ActionGetAvailablePlayers
	ActionRespondChallenge
	ActionSendChallenge
	ActionEditJournal
	ActionSaveJournal
	ActionDeleteGame
	ActionMove
	ActionResign
)

// ParseAction maps the wire tag to an Action; ok is false for tags outside
// the vocabulary.
func ParseAction(tag string) (Action, bool) {
	switch tag {
	case "get_challenges":
		return ActionGetChallenges, true
	case "check_game_start":
		return ActionCheckGameStart, true
	case "get_available_players":
		return ActionGetAvailablePlayers, true
	case "respond_challenge":
		return ActionRespondChallenge, true
	case "send_challenge":
		return ActionSendChallenge, true
	case "edit_journal":
		return ActionEditJournal, true
	case "save_journal":
		return ActionSaveJournal, true
	case "delete_game":
		return ActionDeleteGame, true
	case "move":
		return ActionMove, true
	case "game_resigned":
		return ActionResign, true
	}
	return ActionUnknown, false
}

// ClientMessage is the superset frame clients send; which fields are
// required depends on the action.
type ClientMessage struct {
	Action      string `json:"action"`
	ChallengeID string `json:"challenge_id,omitempty"`
	Response    string `json:"response,omitempty"`
	PlayerID    string `json:"player_id,omitempty"`
	GameID      string `json:"game_id,omitempty"`
	Journal     string `json:"journal_entry,omitempty"`
	Move        string `json:"move,omitempty"`
}

// Server event type tags.
const (
	EventChallenges       = "challenges"
	EventAvailablePlayers = "available_players"
	EventGameStart        = "game_start"
	EventGameHistory      = "game_history"
	EventGameUpdate       = "game_update"
	EventGameResigned     = "game_resigned"
	EventError            = "error"
	EventSuccess          = "success"
)

type ChallengeView struct {
	ID         string `json:"id"`
	Challenger string `json:"challenger"`
}

type ChallengesEvent struct {
	Type       string          `json:"type"`
	Challenges []ChallengeView `json:"challenges"`
}

func Challenges(views []ChallengeView) ChallengesEvent {
	if views == nil {
		views = []ChallengeView{}
	}
	return ChallengesEvent{Type: EventChallenges, Challenges: views}
}

type PlayerView struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type AvailablePlayersEvent struct {
	Type    string       `json:"type"`
	Players []PlayerView `json:"players"`
}

func AvailablePlayers(players []PlayerView) AvailablePlayersEvent {
	if players == nil {
		players = []PlayerView{}
	}
	return AvailablePlayersEvent{Type: EventAvailablePlayers, Players: players}
}

type GameStartEvent struct {
	Type   string `json:"type"`
	GameID string `json:"game_id"`
}

func GameStart(gameID string) GameStartEvent {
	return GameStartEvent{Type: EventGameStart, GameID: gameID}
}

type HistoryRow struct {
	ID        string `json:"id"`
	Opponent  string `json:"opponent"`
	Result    string `json:"result"` // Win, Loss, Draw or Ongoing
	MoveCount int    `json:"move_count"`
	Journal   string `json:"journal_entry"`
}

type GameHistoryEvent struct {
	Type  string       `json:"type"`
	Games []HistoryRow `json:"games"`
}

func GameHistory(rows []HistoryRow) GameHistoryEvent {
	if rows == nil {
		rows = []HistoryRow{}
	}
	return GameHistoryEvent{Type: EventGameHistory, Games: rows}
}

type GameUpdateEvent struct {
	Type string       `json:"type"`
	FEN  string       `json:"fen"`
	Turn domain.Color `json:"turn"`
}

func GameUpdate(fen string, turn domain.Color) GameUpdateEvent {
	return GameUpdateEvent{Type: EventGameUpdate, FEN: fen, Turn: turn}
}

type GameResignedEvent struct {
	Type     string `json:"type"`
	Winner   string `json:"winner"`
	WinnerID string `json:"winner_id"`
}

func GameResigned(winner domain.Player) GameResignedEvent {
	return GameResignedEvent{Type: EventGameResigned, Winner: winner.Name, WinnerID: winner.ID}
}

type ErrorEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func Error(message string) ErrorEvent {
	return ErrorEvent{Type: EventError, Message: message}
}

type SuccessEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func Success(message string) SuccessEvent {
	return SuccessEvent{Type: EventSuccess, Message: message}
}
