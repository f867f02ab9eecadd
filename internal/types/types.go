package types

import "github.com/pongmatch/backend/internal/engine"

// ClientMessage is the session-scoped vocabulary a connection may
// send: keydown/keyup with a key name, or exit_waiting with none.
type ClientMessage struct {
	Type string `json:"type"` // "keydown" | "keyup" | "exit_waiting"
	Key  string `json:"key,omitempty"`
}

// ServerMessage carries the authoritative snapshot after every tick,
// tagged with the side this connection plays.
type ServerMessage struct {
	Type  string        `json:"type"` // "gameState" | "error"
	Tick  int           `json:"tick,omitempty"`
	State *engine.State `json:"state,omitempty"`
	Side  int           `json:"side,omitempty"`
	Error string        `json:"error,omitempty"`
}
