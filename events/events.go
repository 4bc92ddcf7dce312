package events

import (
	"sync"

	"github.com/cameroncuttingedge/tictactoe_arena/game"
	"github.com/cameroncuttingedge/tictactoe_arena/utils"
	"github.com/rs/zerolog/log"
)

// Kind identifies the purpose of an outbound message.
type Kind string

const (
	KindJoined   Kind = "game.joined"
	KindLeft     Kind = "game.left"
	KindMove     Kind = "game.move"
	KindGameOver Kind = "game.gameOver"
	KindError    Kind = "error"
)

// StateTopic receives every join result.
const StateTopic = "topic/game.state"

// GameTopic is the topic carrying updates for one game.
func GameTopic(gameID string) string {
	return "topic/game." + gameID
}

// GameState is the broadcast payload. Absent players, turn and winner encode
// as null.
type GameState struct {
	Type      Kind       `json:"type"`
	GameID    string     `json:"gameId,omitempty"`
	Player1   *string    `json:"player1"`
	Player2   *string    `json:"player2"`
	Board     []string   `json:"board,omitempty"`
	Turn      *string    `json:"turn"`
	GameState game.State `json:"gameState,omitempty"`
	Winner    *string    `json:"winner"`
	Content   string     `json:"content,omitempty"`
}

// NewGameState builds a message of the given kind from a snapshot.
func NewGameState(kind Kind, snap game.Snapshot) GameState {
	return GameState{
		Type:      kind,
		GameID:    snap.ID,
		Player1:   utils.OptionalString(snap.Player1),
		Player2:   utils.OptionalString(snap.Player2),
		Board:     utils.ConvertBoardToStrings(snap.Board),
		Turn:      utils.OptionalString(snap.Turn),
		GameState: snap.State,
		Winner:    utils.OptionalString(snap.Winner),
	}
}

// NewError builds an error notice.
func NewError(gameID, content string) GameState {
	return GameState{
		Type:    KindError,
		GameID:  gameID,
		Content: content,
	}
}

// GameEvent is a message addressed to a topic.
type GameEvent struct {
	Topic string
	Data  GameState
}

// Publisher delivers events to whoever listens on their topic.
type Publisher interface {
	Publish(GameEvent)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(GameEvent)

func (f PublisherFunc) Publish(e GameEvent) { f(e) }

// Multi fans every event out to all of its publishers in order.
type Multi []Publisher

func (m Multi) Publish(e GameEvent) {
	for _, p := range m {
		p.Publish(e)
	}
}

// Bus is a buffered channel of events drained by a listener goroutine, so
// publishers never wait on network writes.
type Bus struct {
	mu     sync.RWMutex
	ch     chan GameEvent
	closed bool
	done   chan struct{}
}

func NewBus(size int) *Bus {
	return &Bus{
		ch:   make(chan GameEvent, size),
		done: make(chan struct{}),
	}
}

// Publish enqueues e. Events published after Close are dropped.
func (b *Bus) Publish(e GameEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		log.Warn().Str("topic", e.Topic).Msg("Event bus closed, dropping event")
		return
	}
	b.ch <- e
}

// Listen starts the goroutine that hands each event to handler in publish
// order. Call it once.
func (b *Bus) Listen(handler func(GameEvent)) {
	log.Info().Msg("Event listener starting...")
	go func() {
		defer close(b.done)
		for e := range b.ch {
			log.Debug().
				Str("topic", e.Topic).
				Str("type", string(e.Data.Type)).
				Str("gameID", e.Data.GameID).
				Msg("Received game event, broadcasting update")
			handler(e)
		}
		log.Info().Msg("Event listener goroutine exited.")
	}()
}

// Close stops accepting events and waits for the listener to drain the
// queue. It must only be called after Listen.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	close(b.ch)
	b.mu.Unlock()
	<-b.done
}
