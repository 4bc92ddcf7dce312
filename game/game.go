package game

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

// Mark is the content of a single board cell.
type Mark string

const (
	Empty   Mark = ""
	PlayerX Mark = "X" // player1
	PlayerO Mark = "O" // player2
)

// State is the lifecycle state of a game.
type State string

const (
	WaitingForPlayer State = "WAITING_FOR_PLAYER"
	Player1Turn      State = "PLAYER1_TURN"
	Player2Turn      State = "PLAYER2_TURN"
	Player1Won       State = "PLAYER1_WON"
	Player2Won       State = "PLAYER2_WON"
	Draw             State = "DRAW"
)

// Terminal reports whether no further moves are accepted in s.
func (s State) Terminal() bool {
	return s == Player1Won || s == Player2Won || s == Draw
}

// Active reports whether a player is expected to move.
func (s State) Active() bool {
	return s == Player1Turn || s == Player2Turn
}

// BoardSize is the number of cells on the board.
const BoardSize = 9

var (
	ErrGameOver      = errors.New("game is already over")
	ErrNotStarted    = errors.New("game is waiting for another player to join")
	ErrNotYourTurn   = errors.New("it's not your turn")
	ErrIllegalMove   = errors.New("invalid move")
	ErrUnknownPlayer = errors.New("player is not seated in this game")
)

var lines = [8][3]int{
	{0, 1, 2}, {3, 4, 5}, {6, 7, 8},
	{0, 3, 6}, {1, 4, 7}, {2, 5, 8},
	{0, 4, 8}, {2, 4, 6},
}

// Game is one two-player tic-tac-toe session. All access goes through its
// methods, which serialize on the game's own lock so that unrelated games
// never contend.
type Game struct {
	ID string

	mu      sync.Mutex
	player1 string
	player2 string
	board   [BoardSize]Mark
	turn    string
	state   State
	winner  string
}

// Snapshot is an immutable copy of a game at one point in time.
type Snapshot struct {
	ID      string
	Player1 string
	Player2 string
	Board   [BoardSize]Mark
	Turn    string
	State   State
	Winner  string
}

// NewGame initializes a new game with the first player waiting for an opponent.
func NewGame(gameID string, player1 string) *Game {
	return &Game{
		ID:      gameID,
		player1: player1,
		state:   WaitingForPlayer,
	}
}

// Snapshot returns a copy of the current game state.
func (g *Game) Snapshot() Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.snapshot()
}

func (g *Game) snapshot() Snapshot {
	return Snapshot{
		ID:      g.ID,
		Player1: g.player1,
		Player2: g.player2,
		Board:   g.board,
		Turn:    g.turn,
		State:   g.state,
		Winner:  g.winner,
	}
}

// HasPlayer reports whether player occupies either slot.
func (g *Game) HasPlayer(player string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return player != "" && (g.player1 == player || g.player2 == player)
}

// IsOpen reports whether the game is waiting with exactly one seat taken.
func (g *Game) IsOpen() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state == WaitingForPlayer && g.occupants() == 1
}

// IsEmpty reports whether both seats are vacant.
func (g *Game) IsEmpty() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.occupants() == 0
}

func (g *Game) occupants() int {
	n := 0
	if g.player1 != "" {
		n++
	}
	if g.player2 != "" {
		n++
	}
	return n
}

// Seat places player into the empty slot of an open game and starts it.
// The first player always moves first. It returns false if the game is not
// open.
func (g *Game) Seat(player string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state != WaitingForPlayer || g.occupants() != 1 {
		return false
	}
	if g.player1 == "" {
		g.player1 = player
	} else {
		g.player2 = player
	}
	g.state = Player1Turn
	g.turn = g.player1
	log.Info().Str("gameID", g.ID).Str("player1", g.player1).Str("player2", g.player2).Msg("Game started")
	return true
}

// Vacate removes player from the game. If an opponent remains, the opponent
// becomes player1 and the game goes back to waiting with a fresh board.
// It returns the remaining occupant, or "" when the game is now empty.
func (g *Game) Vacate(player string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch {
	case player == "":
		return "", ErrUnknownPlayer
	case player == g.player1:
		if g.player2 == "" {
			g.player1 = ""
			return "", nil
		}
		g.player1 = g.player2
		g.player2 = ""
	case player == g.player2:
		g.player2 = ""
	default:
		return "", ErrUnknownPlayer
	}

	g.reset()
	log.Info().Str("gameID", g.ID).Str("player", player).Str("remaining", g.player1).Msg("Player left, game reset")
	return g.player1, nil
}

func (g *Game) reset() {
	g.board = [BoardSize]Mark{}
	g.turn = ""
	g.winner = ""
	g.state = WaitingForPlayer
}

// Move places player's mark in cell and evaluates the outcome. A rejected
// move leaves the game untouched. The returned snapshot reflects the game
// after the attempt.
func (g *Game) Move(player string, cell int) (Snapshot, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch {
	case g.state.Terminal():
		return g.snapshot(), ErrGameOver
	case g.state == WaitingForPlayer:
		return g.snapshot(), ErrNotStarted
	case player == "" || g.turn != player:
		return g.snapshot(), ErrNotYourTurn
	case cell < 0 || cell >= BoardSize || g.board[cell] != Empty:
		return g.snapshot(), fmt.Errorf("%w: cell %d", ErrIllegalMove, cell)
	}

	mark := g.markOf(player)
	g.board[cell] = mark

	switch {
	case g.completesLine(mark):
		g.winner = player
		g.turn = ""
		if mark == PlayerX {
			g.state = Player1Won
		} else {
			g.state = Player2Won
		}
	case g.boardFull():
		g.turn = ""
		g.state = Draw
	default:
		g.switchTurn()
	}
	return g.snapshot(), nil
}

// HandleDisconnect reacts to player's connection loss. A remaining opponent
// wins by forfeit; a game that already ended keeps its result. When nobody
// is left to claim the game the snapshot has no winner and no players.
func (g *Game) HandleDisconnect(player string) (Snapshot, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	var opponent string
	switch {
	case player == "":
		return g.snapshot(), ErrUnknownPlayer
	case player == g.player1:
		opponent = g.player2
		g.player1 = ""
	case player == g.player2:
		opponent = g.player1
		g.player2 = ""
	default:
		return g.snapshot(), ErrUnknownPlayer
	}

	if g.state.Terminal() {
		return g.snapshot(), nil
	}

	g.turn = ""
	if opponent == "" {
		return g.snapshot(), nil
	}
	g.winner = opponent
	if g.player1 == opponent {
		g.state = Player1Won
	} else {
		g.state = Player2Won
	}
	log.Info().Str("gameID", g.ID).Str("player", player).Str("winner", opponent).Msg("Win by forfeit")
	return g.snapshot(), nil
}

func (g *Game) markOf(player string) Mark {
	if player == g.player1 {
		return PlayerX
	}
	return PlayerO
}

func (g *Game) switchTurn() {
	if g.turn == g.player1 {
		g.turn = g.player2
		g.state = Player2Turn
	} else {
		g.turn = g.player1
		g.state = Player1Turn
	}
}

func (g *Game) completesLine(mark Mark) bool {
	for _, line := range lines {
		if g.board[line[0]] == mark && g.board[line[1]] == mark && g.board[line[2]] == mark {
			return true
		}
	}
	return false
}

func (g *Game) boardFull() bool {
	for _, cell := range g.board {
		if cell == Empty {
			return false
		}
	}
	return true
}

// String returns a text rendering of the game, used in logs.
func (g *Game) String() string {
	return g.Snapshot().String()
}

// String returns a text rendering of the snapshot.
func (s Snapshot) String() string {
	var sb strings.Builder

	sb.WriteString("Current Board:\n")
	for i, cell := range s.Board {
		if cell == Empty {
			sb.WriteString("- ")
		} else {
			sb.WriteString(fmt.Sprintf("%s ", cell))
		}
		if i%3 == 2 {
			sb.WriteString("\n")
		}
	}

	sb.WriteString(fmt.Sprintf("State: %s\n", s.State))
	sb.WriteString(fmt.Sprintf("Player X: %s\n", s.Player1))
	sb.WriteString(fmt.Sprintf("Player O: %s\n", s.Player2))
	if s.State.Active() {
		sb.WriteString(fmt.Sprintf("Turn: %s\n", s.Turn))
	}
	switch s.State {
	case Player1Won, Player2Won:
		sb.WriteString(fmt.Sprintf("Winner: %s\n", s.Winner))
	case Draw:
		sb.WriteString("Winner: None (Draw)\n")
	}
	return sb.String()
}
