package websocket

import (
	"context"
	"encoding/json"
	"fmt"
)

// The handlers only decode and dispatch; all notifications are emitted by
// the game manager inside its serialized section, so frames reach the hub
// in the same order the mutations were applied.

func (that *Server) handleSubmitName(ctx context.Context, connID string, payload json.RawMessage) error {
	var req NamePayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	if _, err := that.game.SubmitName(ctx, connID, req.Name); err != nil {
		return fmt.Errorf("failed to submit name: %w", err)
	}

	return nil
}

func (that *Server) handleMove(ctx context.Context, connID string, payload json.RawMessage) error {
	var req MovePayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	if _, err := that.game.MakeTurn(ctx, connID, req.Cell, req.Mark); err != nil {
		return fmt.Errorf("failed to make turn: %w", err)
	}

	return nil
}

func (that *Server) handleRestart(ctx context.Context, connID string, _ json.RawMessage) error {
	if _, err := that.game.Restart(ctx, connID); err != nil {
		return fmt.Errorf("failed to restart: %w", err)
	}

	return nil
}
