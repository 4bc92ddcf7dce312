package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/cameroncuttingedge/tictactoe_arena/events"
	"github.com/cameroncuttingedge/tictactoe_arena/game"
	"github.com/cameroncuttingedge/tictactoe_arena/manager"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
)

type Move struct {
	Username string `json:"player"`
	Cell     *int   `json:"move"`
}

type API struct {
	dispatcher *Dispatcher
	registry   *manager.Registry
}

// NewRouter wires the REST endpoints and the websocket endpoint ws.
func NewRouter(dispatcher *Dispatcher, registry *manager.Registry, ws http.Handler) http.Handler {
	a := &API{dispatcher: dispatcher, registry: registry}

	r := mux.NewRouter()
	r.HandleFunc("/game/join", a.joinGameHandler).Methods("POST")
	r.HandleFunc("/game/leave", a.leaveGameHandler).Methods("POST")
	r.HandleFunc("/game/{gameID}/move", a.makeMoveHandler).Methods("POST")
	r.HandleFunc("/game/{gameID}/disconnect", a.disconnectHandler).Methods("POST")
	r.HandleFunc("/game/{gameID}/state", a.GetGameStateHandler).Methods("GET")
	r.HandleFunc("/games", a.listGamesHandler).Methods("GET")
	if ws != nil {
		r.Handle("/ws", ws)
	}

	var h http.Handler = r
	h = handlers.CustomLoggingHandler(io.Discard, h, logRequest)
	h = handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{"GET", "POST", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type"}),
	)(h)
	h = handlers.RecoveryHandler(handlers.RecoveryLogger(recoveryLogger{}))(h)
	return h
}

func (a *API) joinGameHandler(w http.ResponseWriter, r *http.Request) {
	playerID := r.URL.Query().Get("playerID")
	if playerID == "" {
		http.Error(w, "Player ID is required", http.StatusBadRequest)
		return
	}

	g, err := a.dispatcher.Join(playerID)
	switch {
	case errors.Is(err, manager.ErrCapacity):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	case err != nil:
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusOK, events.NewGameState(events.KindJoined, g.Snapshot()))
}

func (a *API) leaveGameHandler(w http.ResponseWriter, r *http.Request) {
	playerID := r.URL.Query().Get("playerID")
	if playerID == "" {
		http.Error(w, "Player ID is required", http.StatusBadRequest)
		return
	}

	g, ok := a.dispatcher.Leave(playerID)
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, events.NewGameState(events.KindLeft, g.Snapshot()))
}

func (a *API) makeMoveHandler(w http.ResponseWriter, r *http.Request) {
	gameID := mux.Vars(r)["gameID"]

	move, err := validateAndExtractMove(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	snap, err := a.dispatcher.Move(move.Username, gameID, *move.Cell)
	if err != nil {
		http.Error(w, err.Error(), moveErrorStatus(err))
		return
	}

	kind := events.KindMove
	if snap.State.Terminal() {
		kind = events.KindGameOver
	}
	writeJSON(w, http.StatusOK, events.NewGameState(kind, snap))
}

func (a *API) disconnectHandler(w http.ResponseWriter, r *http.Request) {
	gameID := mux.Vars(r)["gameID"]
	playerID := r.URL.Query().Get("playerID")
	if playerID == "" {
		http.Error(w, "Player ID is required", http.StatusBadRequest)
		return
	}

	snap, ok := a.dispatcher.Disconnect(gameID, playerID)
	if !ok {
		http.Error(w, "Game not found or player not seated", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, events.NewGameState(events.KindGameOver, snap))
}

func (a *API) GetGameStateHandler(w http.ResponseWriter, r *http.Request) {
	gameID := mux.Vars(r)["gameID"]

	g, exists := a.registry.Get(gameID)
	if !exists {
		http.Error(w, "Game not found", http.StatusNotFound)
		return
	}

	snap := g.Snapshot()
	log.Debug().Str("gameID", gameID).Msg(snap.String())
	writeJSON(w, http.StatusOK, events.NewGameState(events.KindMove, snap))
}

func (a *API) listGamesHandler(w http.ResponseWriter, r *http.Request) {
	snaps := a.registry.Games()
	states := make([]events.GameState, 0, len(snaps))
	for _, snap := range snaps {
		states = append(states, events.NewGameState(events.KindMove, snap))
	}
	writeJSON(w, http.StatusOK, states)
}

func validateAndExtractMove(r *http.Request) (*Move, error) {
	var move Move
	if err := json.NewDecoder(r.Body).Decode(&move); err != nil {
		return nil, fmt.Errorf("error decoding JSON: %v", err)
	}

	if move.Username == "" {
		return nil, fmt.Errorf("no player in JSON")
	}
	if move.Cell == nil {
		return nil, fmt.Errorf("no move in JSON")
	}
	if *move.Cell < 0 || *move.Cell >= game.BoardSize {
		return nil, fmt.Errorf("cell %d is out of bounds", *move.Cell)
	}

	return &move, nil
}

func moveErrorStatus(err error) int {
	switch {
	case errors.Is(err, ErrGameNotFound):
		return http.StatusNotFound
	case errors.Is(err, game.ErrIllegalMove):
		return http.StatusBadRequest
	default:
		return http.StatusConflict
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

func logRequest(_ io.Writer, params handlers.LogFormatterParams) {
	log.Info().
		Str("method", params.Request.Method).
		Str("path", params.URL.Path).
		Int("status", params.StatusCode).
		Int("size", params.Size).
		Msg("HTTP request")
}

type recoveryLogger struct{}

func (recoveryLogger) Println(v ...interface{}) {
	log.Error().Msg(fmt.Sprint(v...))
}
