package usecase

import "github.com/pairgrid/tictactoe-backend/internal/entity"

// Notifier delivers game events to connections. The GameManager calls it
// while still holding its mutex, so events for any recipient are queued in
// the same order the mutations were applied. Implementations must not block.
type Notifier interface {
	Waiting(connID string)
	Paired(connID, opponentName string, mark entity.Mark, movesFirst bool)
	BoardUpdate(connID string, board entity.Board, yourTurn bool)
	GameOver(connID string, winner int8)
	Restarted(connID string)
}
