package api

import (
	"errors"

	"github.com/cameroncuttingedge/tictactoe_arena/events"
	"github.com/cameroncuttingedge/tictactoe_arena/game"
	"github.com/cameroncuttingedge/tictactoe_arena/manager"
	"github.com/rs/zerolog/log"
)

var ErrGameNotFound = errors.New("game not found")

const (
	joinFailedContent   = "Unable to join a game. The server may be full or an internal error occurred."
	gameNotFoundContent = "Game not found or is already over."
	notStartedContent   = "Game is waiting for another player to join."
)

// Dispatcher turns player actions into registry and game calls and publishes
// the resulting broadcasts. It holds no game rules of its own.
type Dispatcher struct {
	registry  *manager.Registry
	publisher events.Publisher
}

func NewDispatcher(registry *manager.Registry, publisher events.Publisher) *Dispatcher {
	return &Dispatcher{registry: registry, publisher: publisher}
}

// Join seats player and announces the game on the shared state topic and on
// the game's own topic.
func (d *Dispatcher) Join(player string) (*game.Game, error) {
	g, err := d.registry.Join(player)
	if err != nil {
		log.Warn().Err(err).Str("player", player).Msg("Join failed")
		d.publish(events.StateTopic, events.NewError("", joinFailedContent))
		return nil, err
	}

	msg := events.NewGameState(events.KindJoined, g.Snapshot())
	d.publish(events.StateTopic, msg)
	d.publish(events.GameTopic(g.ID), msg)
	return g, nil
}

// Leave removes player from their game. The returned game is the one that
// survived; false means the game is gone or the player was not seated.
func (d *Dispatcher) Leave(player string) (*game.Game, bool) {
	g, ok := d.registry.Leave(player)
	if !ok {
		return nil, false
	}
	d.publish(events.GameTopic(g.ID), events.NewGameState(events.KindLeft, g.Snapshot()))
	return g, true
}

// Move applies player's move. Every rejection is reported on the game's
// topic. A move that ends the game is followed by a game over broadcast and
// the game's removal.
func (d *Dispatcher) Move(player, gameID string, cell int) (game.Snapshot, error) {
	topic := events.GameTopic(gameID)

	g, ok := d.registry.Get(gameID)
	if !ok {
		d.publish(topic, events.NewError(gameID, gameNotFoundContent))
		return game.Snapshot{}, ErrGameNotFound
	}

	snap, err := g.Move(player, cell)
	if err != nil {
		log.Info().Err(err).Str("gameID", gameID).Str("player", player).Int("cell", cell).Msg("Move rejected")
		d.publish(topic, events.NewError(gameID, rejectionContent(err)))
		return snap, err
	}

	d.publish(topic, events.NewGameState(events.KindMove, snap))
	if snap.State.Terminal() {
		log.Info().Str("gameID", gameID).Str("state", string(snap.State)).Str("winner", snap.Winner).Msg("Game over")
		d.publish(topic, events.NewGameState(events.KindGameOver, snap))
		d.registry.Remove(gameID)
	}
	return snap, nil
}

// Disconnect handles connection loss of player in gameID: the opponent, if
// any, wins by forfeit and the game is removed. A player who is not seated in
// gameID leaves the game in place with no broadcast. It returns false when
// there was nothing to do.
func (d *Dispatcher) Disconnect(gameID, player string) (game.Snapshot, bool) {
	g, ok := d.registry.Get(gameID)
	if !ok {
		return game.Snapshot{}, false
	}

	snap, err := g.HandleDisconnect(player)
	if err != nil {
		log.Debug().Err(err).Str("gameID", gameID).Str("player", player).Msg("Ignoring disconnect")
		return snap, false
	}

	d.publish(events.GameTopic(gameID), events.NewGameState(events.KindGameOver, snap))
	d.registry.Remove(gameID)
	return snap, true
}

// Reject reports a request for gameID that never reached the game, such as a
// move frame without a cell.
func (d *Dispatcher) Reject(gameID, content string) {
	log.Info().Str("gameID", gameID).Str("content", content).Msg("Request rejected")
	d.publish(events.GameTopic(gameID), events.NewError(gameID, content))
}

func (d *Dispatcher) publish(topic string, msg events.GameState) {
	d.publisher.Publish(events.GameEvent{Topic: topic, Data: msg})
}

func rejectionContent(err error) string {
	switch {
	case errors.Is(err, game.ErrGameOver):
		return gameNotFoundContent
	case errors.Is(err, game.ErrNotStarted):
		return notStartedContent
	default:
		return err.Error()
	}
}
