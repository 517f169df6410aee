// Package board wraps the chess library behind the narrow surface the
// coordinators need: side-to-move, move validation, move application and
// terminal-state detection over FEN strings.
package board

import (
	"fmt"
	"strings"

	chesslib "github.com/corentings/chess/v2"

	"github.com/KiritiVelivela/chess-multiplayer/internal/domain"
)

// StartingFEN is the standard initial position.
func StartingFEN() string { return chesslib.NewGame().FEN() }

// MoveResult is the state derived from applying one legal move.
type MoveResult struct {
	FEN    string
	SAN    string
	Turn   domain.Color // side to move after the move
	Over   bool
	Winner domain.Color // empty on draw or when not over
	Draw   bool
}

// SideToMove parses fen and returns whose turn it is.
func SideToMove(fen string) (domain.Color, error) {
	game, err := gameFromFEN(fen)
	if err != nil {
		return "", err
	}
	return colorFrom(game.Position().Turn()), nil
}

// ApplyUCI validates and applies a UCI move against fen.
// Returns domain.ErrMalformedMove when the notation is not structurally a
// UCI move, domain.ErrIllegalMove when it is but the position forbids it.
func ApplyUCI(fen, move string) (*MoveResult, error) {
	uci := strings.ToLower(strings.TrimSpace(move))
	if !wellFormedUCI(uci) {
		return nil, domain.ErrMalformedMove
	}

	game, err := gameFromFEN(fen)
	if err != nil {
		return nil, err
	}
	pos := game.Position()

	mv, err := chesslib.UCINotation{}.Decode(pos, uci)
	if err != nil {
		return nil, domain.ErrIllegalMove
	}
	san := chesslib.AlgebraicNotation{}.Encode(pos, mv)
	if err := game.Move(mv, nil); err != nil {
		return nil, domain.ErrIllegalMove
	}

	res := &MoveResult{
		FEN:  game.FEN(),
		SAN:  san,
		Turn: colorFrom(game.Position().Turn()),
	}
	switch game.Outcome() {
	case chesslib.WhiteWon:
		res.Over = true
		res.Winner = domain.White
	case chesslib.BlackWon:
		res.Over = true
		res.Winner = domain.Black
	case chesslib.Draw:
		res.Over = true
		res.Draw = true
	}
	return res, nil
}

func gameFromFEN(fen string) (*chesslib.Game, error) {
	if strings.TrimSpace(fen) == "" {
		return chesslib.NewGame(), nil
	}
	option, err := chesslib.FEN(fen)
	if err != nil {
		return nil, fmt.Errorf("parse fen %q: %w", fen, err)
	}
	return chesslib.NewGame(option), nil
}

// wellFormedUCI checks origin+destination squares plus optional promotion.
func wellFormedUCI(s string) bool {
	if len(s) != 4 && len(s) != 5 {
		return false
	}
	if !square(s[0], s[1]) || !square(s[2], s[3]) {
		return false
	}
	if len(s) == 5 && !strings.ContainsRune("qrbn", rune(s[4])) {
		return false
	}
	return true
}

func square(file, rank byte) bool {
	return file >= 'a' && file <= 'h' && rank >= '1' && rank <= '8'
}

func colorFrom(c chesslib.Color) domain.Color {
	if c == chesslib.White {
		return domain.White
	}
	return domain.Black
}
