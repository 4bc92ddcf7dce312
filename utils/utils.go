package utils

import (
	"github.com/cameroncuttingedge/tictactoe_arena/game"
	"github.com/google/uuid"
)

func GenerateUUIDString() string {
	return uuid.NewString()
}

// ConvertBoardToStrings flattens the board into its wire form, "" for an
// empty cell.
func ConvertBoardToStrings(board [game.BoardSize]game.Mark) []string {
	stringBoard := make([]string, len(board))
	for i, cell := range board {
		stringBoard[i] = string(cell)
	}
	return stringBoard
}

// OptionalString maps "" to nil so absent players encode as JSON null.
func OptionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
