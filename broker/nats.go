// Package broker mirrors game broadcasts onto NATS so that other processes
// can follow games without holding a websocket.
package broker

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cameroncuttingedge/tictactoe_arena/events"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// Conn is the part of *nats.Conn the publisher needs.
type Conn interface {
	Publish(subj string, data []byte) error
	Drain() error
}

type NATSPublisher struct {
	conn Conn
}

// Connect dials the NATS server at url.
func Connect(url string) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("tictactoe-arena"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats %s: %w", url, err)
	}
	log.Info().Str("url", nc.ConnectedUrl()).Msg("Connected to NATS")
	return NewNATSPublisher(nc), nil
}

func NewNATSPublisher(conn Conn) *NATSPublisher {
	return &NATSPublisher{conn: conn}
}

// Subject maps a topic such as "topic/game.<id>" to the NATS subject
// "topic.game.<id>".
func Subject(topic string) string {
	return strings.ReplaceAll(topic, "/", ".")
}

func (p *NATSPublisher) Publish(e events.GameEvent) {
	data, err := json.Marshal(e.Data)
	if err != nil {
		log.Error().Err(err).Str("topic", e.Topic).Msg("Failed to marshal event for NATS")
		return
	}
	if err := p.conn.Publish(Subject(e.Topic), data); err != nil {
		log.Error().Err(err).Str("topic", e.Topic).Msg("Failed to publish event to NATS")
	}
}

// Close flushes pending messages and closes the connection.
func (p *NATSPublisher) Close() error {
	return p.conn.Drain()
}
