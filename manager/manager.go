package manager

import (
	"errors"
	"sync"

	"github.com/cameroncuttingedge/tictactoe_arena/game"
	"github.com/cameroncuttingedge/tictactoe_arena/utils"
	"github.com/rs/zerolog/log"
)

var (
	ErrInvalidPlayer = errors.New("player name is required")
	ErrCapacity      = errors.New("no open game and session limit reached")
)

// Registry owns the live games and assigns players to them.
//
// Lookups read the concurrent maps directly. Join, Leave and Remove run
// under a single lock so that two joiners never race for the same open seat
// and two leavers never both tear down a game.
type Registry struct {
	mu sync.Mutex

	// gameID -> *game.Game
	games sync.Map
	// player -> gameID, for players waiting on an opponent
	waiting sync.Map

	maxSessions int
}

// NewRegistry creates an empty registry. maxSessions caps the number of live
// games; zero means unlimited.
func NewRegistry(maxSessions int) *Registry {
	return &Registry{maxSessions: maxSessions}
}

// Join seats player. A player already seated gets their current game back.
// Otherwise the first open game takes them, or a new game is created.
func (r *Registry) Join(player string) (*game.Game, error) {
	if player == "" {
		return nil, ErrInvalidPlayer
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if g, ok := r.waitingGame(player); ok {
		return g, nil
	}
	if g, ok := r.GetByPlayer(player); ok {
		return g, nil
	}

	var seated *game.Game
	r.games.Range(func(_, value interface{}) bool {
		g := value.(*game.Game)
		if g.IsOpen() && g.Seat(player) {
			seated = g
			return false
		}
		return true
	})
	if seated != nil {
		r.clearWaiting(seated.ID)
		log.Info().Str("gameID", seated.ID).Str("player", player).Msg("Player joined open game")
		return seated, nil
	}

	if r.maxSessions > 0 && r.Len() >= r.maxSessions {
		log.Warn().Str("player", player).Int("maxSessions", r.maxSessions).Msg("Cannot create game")
		return nil, ErrCapacity
	}

	g := game.NewGame(utils.GenerateUUIDString(), player)
	r.games.Store(g.ID, g)
	r.waiting.Store(player, g.ID)
	log.Info().Str("gameID", g.ID).Str("player", player).Msg("Created new game")
	return g, nil
}

// Leave removes player from their game. It returns the surviving game, or
// false when the player was not seated or the game was destroyed because
// nobody is left.
func (r *Registry) Leave(player string) (*game.Game, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	g, ok := r.GetByPlayer(player)
	if !ok {
		return nil, false
	}
	r.waiting.Delete(player)

	remaining, err := g.Vacate(player)
	if err != nil {
		// Dropped by a concurrent disconnect.
		return nil, false
	}
	if remaining == "" {
		r.games.Delete(g.ID)
		log.Info().Str("gameID", g.ID).Str("player", player).Msg("Last player left, game removed")
		return nil, false
	}

	r.waiting.Store(remaining, g.ID)
	return g, true
}

// Get returns the game with the given id.
func (r *Registry) Get(gameID string) (*game.Game, bool) {
	value, ok := r.games.Load(gameID)
	if !ok {
		return nil, false
	}
	return value.(*game.Game), true
}

// GetByPlayer returns the first game that seats player.
func (r *Registry) GetByPlayer(player string) (*game.Game, bool) {
	if player == "" {
		return nil, false
	}
	var found *game.Game
	r.games.Range(func(_, value interface{}) bool {
		g := value.(*game.Game)
		if g.HasPlayer(player) {
			found = g
			return false
		}
		return true
	})
	return found, found != nil
}

// Remove deletes a game unconditionally.
func (r *Registry) Remove(gameID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, loaded := r.games.LoadAndDelete(gameID); loaded {
		r.clearWaiting(gameID)
		log.Info().Str("gameID", gameID).Msg("Game removed")
	}
}

// Len returns the number of live games.
func (r *Registry) Len() int {
	n := 0
	r.games.Range(func(_, _ interface{}) bool {
		n++
		return true
	})
	return n
}

// Games returns a snapshot of every live game.
func (r *Registry) Games() []game.Snapshot {
	var snaps []game.Snapshot
	r.games.Range(func(_, value interface{}) bool {
		snaps = append(snaps, value.(*game.Game).Snapshot())
		return true
	})
	return snaps
}

// Close drops every game. The registry is empty but usable afterwards.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	r.games.Range(func(key, _ interface{}) bool {
		r.games.Delete(key)
		n++
		return true
	})
	r.waiting.Range(func(key, _ interface{}) bool {
		r.waiting.Delete(key)
		return true
	})
	log.Info().Int("games", n).Msg("Registry closed")
}

func (r *Registry) waitingGame(player string) (*game.Game, bool) {
	value, ok := r.waiting.Load(player)
	if !ok {
		return nil, false
	}
	g, ok := r.Get(value.(string))
	if !ok || !g.HasPlayer(player) {
		r.waiting.Delete(player)
		return nil, false
	}
	return g, true
}

func (r *Registry) clearWaiting(gameID string) {
	r.waiting.Range(func(key, value interface{}) bool {
		if value.(string) == gameID {
			r.waiting.Delete(key)
		}
		return true
	})
}
