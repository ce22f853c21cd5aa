package websocket

import (
	"encoding/json"

	"github.com/pairgrid/tictactoe-backend/internal/entity"
)

// client -> server actions.
const (
	actionSubmitName = "player:name"
	actionMove       = "game:move"
	actionRestart    = "game:restart"
)

// server -> client actions.
const (
	actionWaiting   = "game:waiting"
	actionPaired    = "game:paired"
	actionUpdate    = "game:update"
	actionGameOver  = "game:over"
	actionRestarted = "game:restarted"
)

// Message is the wire envelope for both directions.
type Message struct {
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type NamePayload struct {
	Name string `json:"name"`
}

type MovePayload struct {
	Cell int         `json:"cell"`
	Mark entity.Mark `json:"mark"`
}

type PairedPayload struct {
	OpponentName string      `json:"opponent_name"`
	Mark         entity.Mark `json:"mark"`
	MovesFirst   bool        `json:"moves_first"`
}

type UpdatePayload struct {
	Board    entity.Board `json:"board"`
	YourTurn bool         `json:"your_turn"`
}

// OverPayload - Winner carries the winning mark, or -1 for a draw.
type OverPayload struct {
	Winner int8 `json:"winner"`
}
