package usecase

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pairgrid/tictactoe-backend/internal/apperror"
	"github.com/pairgrid/tictactoe-backend/internal/entity"
	"github.com/pairgrid/tictactoe-backend/internal/metrics"
	"github.com/pairgrid/tictactoe-backend/internal/repository"
)

// notifierEvent records one delivery in the order the manager emitted it.
type notifierEvent struct {
	kind         string
	connID       string
	opponentName string
	mark         entity.Mark
	movesFirst   bool
	board        entity.Board
	yourTurn     bool
	winner       int8
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notifierEvent
}

func (that *recordingNotifier) record(event notifierEvent) {
	that.mu.Lock()
	defer that.mu.Unlock()
	that.events = append(that.events, event)
}

func (that *recordingNotifier) Waiting(connID string) {
	that.record(notifierEvent{kind: "waiting", connID: connID})
}

func (that *recordingNotifier) Paired(connID, opponentName string, mark entity.Mark, movesFirst bool) {
	that.record(notifierEvent{kind: "paired", connID: connID, opponentName: opponentName, mark: mark, movesFirst: movesFirst})
}

func (that *recordingNotifier) BoardUpdate(connID string, board entity.Board, yourTurn bool) {
	that.record(notifierEvent{kind: "update", connID: connID, board: board, yourTurn: yourTurn})
}

func (that *recordingNotifier) GameOver(connID string, winner int8) {
	that.record(notifierEvent{kind: "over", connID: connID, winner: winner})
}

func (that *recordingNotifier) Restarted(connID string) {
	that.record(notifierEvent{kind: "restarted", connID: connID})
}

// eventsFor returns the recipient's events in emission order.
func (that *recordingNotifier) eventsFor(connID string) []notifierEvent {
	that.mu.Lock()
	defer that.mu.Unlock()

	var out []notifierEvent
	for _, event := range that.events {
		if event.connID == connID {
			out = append(out, event)
		}
	}
	return out
}

type managerFixture struct {
	manager  *GameManager
	players  repository.PlayerRegistry
	sessions repository.SessionRepository
	notifier *recordingNotifier
}

func newManagerFixture() *managerFixture {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	players := repository.NewMemoryPlayerRegistry()
	sessions := repository.NewMemorySessionRepository()
	notifier := &recordingNotifier{}

	return &managerFixture{
		manager:  NewGameManager(logger, metrics.New(prometheus.NewRegistry()), players, sessions, notifier),
		players:  players,
		sessions: sessions,
		notifier: notifier,
	}
}

// pairAliceAndBob submits names for both connections and returns the session key.
func (that *managerFixture) pairAliceAndBob(ctx context.Context, t *testing.T) string {
	t.Helper()

	_, err := that.manager.SubmitName(ctx, "conn-x", "Alice")
	require.NoError(t, err)

	result, err := that.manager.SubmitName(ctx, "conn-y", "Bob")
	require.NoError(t, err)
	require.NotNil(t, result.Opponent)

	return entity.SessionKeyFor("conn-x", "conn-y")
}

func TestGameManager_SubmitName(t *testing.T) {
	ctx := context.Background()

	t.Run("First submitter waits for an opponent", func(t *testing.T) {
		// Given: an empty registry
		fx := newManagerFixture()

		// When: a single connection submits a name
		result, err := fx.manager.SubmitName(ctx, "conn-x", "Alice")

		// Then: the player should be waiting, unpaired
		require.NoError(t, err)
		assert.Nil(t, result.Opponent)
		assert.False(t, result.Player.IsPaired())
	})

	t.Run("Second submitter is paired with the waiting player", func(t *testing.T) {
		// Given: Alice waiting on conn-x
		fx := newManagerFixture()
		_, err := fx.manager.SubmitName(ctx, "conn-x", "Alice")
		require.NoError(t, err)

		// When: Bob submits on conn-y
		result, err := fx.manager.SubmitName(ctx, "conn-y", "Bob")

		// Then: Bob gets O and moves second; Alice gets X and moves first
		require.NoError(t, err)
		require.NotNil(t, result.Opponent)

		assert.Equal(t, entity.MarkO, result.Player.Mark)
		assert.False(t, result.Player.MovesFirst())
		assert.Equal(t, "conn-x", result.Player.PartnerID)

		assert.Equal(t, entity.MarkX, result.Opponent.Mark)
		assert.True(t, result.Opponent.MovesFirst())
		assert.Equal(t, "Alice", result.Opponent.Name)

		// Then: a fresh session exists at the canonical key
		session, err := fx.sessions.GetByKey(ctx, entity.SessionKeyFor("conn-x", "conn-y"))
		require.NoError(t, err)
		assert.Equal(t, entity.NewBoard(), session.Board)
	})

	t.Run("Submission from an already-paired connection is rejected", func(t *testing.T) {
		// Given: a paired game and a third waiting player
		fx := newManagerFixture()
		fx.pairAliceAndBob(ctx, t)
		_, err := fx.manager.SubmitName(ctx, "conn-z", "Carol")
		require.NoError(t, err)

		// When: a paired connection submits again
		_, err = fx.manager.SubmitName(ctx, "conn-x", "Alice")

		// Then: the duplicate should be dropped, not re-paired with Carol
		assert.ErrorIs(t, err, apperror.ErrAlreadyPaired)

		stored, err := fx.players.GetByID(ctx, "conn-x")
		require.NoError(t, err)
		assert.Equal(t, "conn-y", stored.PartnerID)
	})

	t.Run("Unpaired resubmission updates the name and re-enters matchmaking", func(t *testing.T) {
		// Given: a waiting player who resubmits under a new name
		fx := newManagerFixture()
		_, err := fx.manager.SubmitName(ctx, "conn-x", "Alice")
		require.NoError(t, err)

		result, err := fx.manager.SubmitName(ctx, "conn-x", "Alicia")
		require.NoError(t, err)
		assert.Nil(t, result.Opponent)

		// When: a second player submits
		paired, err := fx.manager.SubmitName(ctx, "conn-y", "Bob")

		// Then: they pair and the renamed record is used
		require.NoError(t, err)
		require.NotNil(t, paired.Opponent)
		assert.Equal(t, "Alicia", paired.Opponent.Name)
	})
}

func TestGameManager_MakeTurn(t *testing.T) {
	ctx := context.Background()

	t.Run("Rejects a move from an unknown connection", func(t *testing.T) {
		fx := newManagerFixture()

		_, err := fx.manager.MakeTurn(ctx, "ghost", 0, entity.MarkX)

		assert.ErrorIs(t, err, apperror.ErrUnknownConnection)
	})

	t.Run("Rejects a move from a waiting player", func(t *testing.T) {
		// Given: a player without a partner
		fx := newManagerFixture()
		_, err := fx.manager.SubmitName(ctx, "conn-x", "Alice")
		require.NoError(t, err)

		// When: they try to move anyway
		_, err = fx.manager.MakeTurn(ctx, "conn-x", 0, entity.MarkX)

		// Then: the move is dropped
		assert.ErrorIs(t, err, apperror.ErrNoPartner)
	})

	t.Run("Accepted move changes exactly one cell", func(t *testing.T) {
		// Given: a freshly paired game
		fx := newManagerFixture()
		fx.pairAliceAndBob(ctx, t)

		// When: the first mover takes the center
		result, err := fx.manager.MakeTurn(ctx, "conn-x", 4, entity.MarkX)

		// Then: only the center changed and the game is still open
		require.NoError(t, err)
		assert.Equal(t, entity.OutcomeNone, result.Outcome)

		for i, cell := range result.Board {
			if i == 4 {
				assert.Equal(t, entity.MarkX, cell)
				continue
			}
			assert.Equal(t, entity.EmptyCell, cell)
		}
	})

	t.Run("Move on an occupied cell never changes the board", func(t *testing.T) {
		// Given: a game where the center is taken
		fx := newManagerFixture()
		key := fx.pairAliceAndBob(ctx, t)
		_, err := fx.manager.MakeTurn(ctx, "conn-x", 4, entity.MarkX)
		require.NoError(t, err)

		// When: the opponent clicks the same cell
		_, err = fx.manager.MakeTurn(ctx, "conn-y", 4, entity.MarkO)

		// Then: the move is dropped and the cell keeps its mark
		assert.ErrorIs(t, err, apperror.ErrCellOccupied)

		session, err := fx.sessions.GetByKey(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, entity.MarkX, session.Board[4])
	})

	t.Run("Rejects an out-of-range cell index", func(t *testing.T) {
		fx := newManagerFixture()
		fx.pairAliceAndBob(ctx, t)

		_, err := fx.manager.MakeTurn(ctx, "conn-x", 9, entity.MarkX)
		assert.ErrorIs(t, err, apperror.ErrInvalidCell)

		_, err = fx.manager.MakeTurn(ctx, "conn-x", -1, entity.MarkX)
		assert.ErrorIs(t, err, apperror.ErrInvalidCell)
	})

	t.Run("Applies the registry mark, not the client's claim", func(t *testing.T) {
		// Given: a paired game where conn-y is assigned O
		fx := newManagerFixture()
		key := fx.pairAliceAndBob(ctx, t)

		// When: conn-y claims to be X
		_, err := fx.manager.MakeTurn(ctx, "conn-y", 0, entity.MarkX)

		// Then: the board records O anyway
		require.NoError(t, err)

		session, err := fx.sessions.GetByKey(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, entity.MarkO, session.Board[0])
	})

	t.Run("Winning move finishes the game and deletes the session", func(t *testing.T) {
		// Given: X about to complete the top row
		fx := newManagerFixture()
		key := fx.pairAliceAndBob(ctx, t)

		moves := []struct {
			connID string
			cell   int
			mark   entity.Mark
		}{
			{"conn-x", 0, entity.MarkX},
			{"conn-y", 3, entity.MarkO},
			{"conn-x", 1, entity.MarkX},
			{"conn-y", 4, entity.MarkO},
		}
		for _, move := range moves {
			_, err := fx.manager.MakeTurn(ctx, move.connID, move.cell, move.mark)
			require.NoError(t, err)
		}

		// When: X completes the row
		result, err := fx.manager.MakeTurn(ctx, "conn-x", 2, entity.MarkX)

		// Then: X wins and the session is gone
		require.NoError(t, err)
		assert.Equal(t, entity.OutcomeX, result.Outcome)
		assert.Equal(t, int8(0), result.Outcome.Winner())

		_, err = fx.sessions.GetByKey(ctx, key)
		assert.ErrorIs(t, err, repository.ErrSessionNotFound)

		// Then: a further move is dropped as stale
		_, err = fx.manager.MakeTurn(ctx, "conn-y", 5, entity.MarkO)
		assert.ErrorIs(t, err, apperror.ErrStaleSession)
	})

	t.Run("Full board with no winner is a draw", func(t *testing.T) {
		// Given: a sequence that fills the board without a uniform triple
		fx := newManagerFixture()
		fx.pairAliceAndBob(ctx, t)

		moves := []struct {
			connID string
			cell   int
			mark   entity.Mark
		}{
			{"conn-x", 0, entity.MarkX},
			{"conn-y", 4, entity.MarkO},
			{"conn-x", 8, entity.MarkX},
			{"conn-y", 2, entity.MarkO},
			{"conn-x", 6, entity.MarkX},
			{"conn-y", 3, entity.MarkO},
			{"conn-x", 5, entity.MarkX},
			{"conn-y", 7, entity.MarkO},
		}
		for _, move := range moves {
			result, err := fx.manager.MakeTurn(ctx, move.connID, move.cell, move.mark)
			require.NoError(t, err)
			require.Equal(t, entity.OutcomeNone, result.Outcome)
		}

		// When: the last cell is filled
		result, err := fx.manager.MakeTurn(ctx, "conn-x", 1, entity.MarkX)

		// Then: the outcome is a draw with wire value -1
		require.NoError(t, err)
		assert.Equal(t, entity.OutcomeDraw, result.Outcome)
		assert.Equal(t, int8(-1), result.Outcome.Winner())
	})
}

func TestGameManager_Restart(t *testing.T) {
	ctx := context.Background()

	t.Run("Restart unpairs both players and preserves names", func(t *testing.T) {
		// Given: a paired game with one move made
		fx := newManagerFixture()
		key := fx.pairAliceAndBob(ctx, t)
		_, err := fx.manager.MakeTurn(ctx, "conn-x", 0, entity.MarkX)
		require.NoError(t, err)

		// When: one participant restarts
		result, err := fx.manager.Restart(ctx, "conn-y")

		// Then: the session is gone and both records are unpaired with names intact
		require.NoError(t, err)
		require.NotNil(t, result.Opponent)

		_, err = fx.sessions.GetByKey(ctx, key)
		assert.ErrorIs(t, err, repository.ErrSessionNotFound)

		for _, id := range []string{"conn-x", "conn-y"} {
			stored, err := fx.players.GetByID(ctx, id)
			require.NoError(t, err)
			assert.False(t, stored.IsPaired())
			assert.NotEmpty(t, stored.Name)
			assert.Equal(t, entity.EmptyCell, stored.Mark)
		}
	})

	t.Run("Restart works after the game already finished", func(t *testing.T) {
		// Given: a finished game whose session is already deleted
		fx := newManagerFixture()
		fx.pairAliceAndBob(ctx, t)

		for _, move := range []struct {
			connID string
			cell   int
			mark   entity.Mark
		}{
			{"conn-x", 0, entity.MarkX},
			{"conn-y", 3, entity.MarkO},
			{"conn-x", 1, entity.MarkX},
			{"conn-y", 4, entity.MarkO},
			{"conn-x", 2, entity.MarkX},
		} {
			_, err := fx.manager.MakeTurn(ctx, move.connID, move.cell, move.mark)
			require.NoError(t, err)
		}

		// When: a participant restarts in the terminal state
		result, err := fx.manager.Restart(ctx, "conn-x")

		// Then: both players are unpaired
		require.NoError(t, err)
		require.NotNil(t, result.Opponent)
		assert.False(t, result.Player.IsPaired())
		assert.False(t, result.Opponent.IsPaired())
	})

	t.Run("Restarted players can be paired with each other again", func(t *testing.T) {
		// Given: a restarted pair
		fx := newManagerFixture()
		fx.pairAliceAndBob(ctx, t)
		_, err := fx.manager.Restart(ctx, "conn-x")
		require.NoError(t, err)

		// When: one of them submits a name again
		result, err := fx.manager.SubmitName(ctx, "conn-y", "Bob")

		// Then: matchmaking pairs them with the other leftover record
		require.NoError(t, err)
		require.NotNil(t, result.Opponent)
		assert.Equal(t, "conn-x", result.Opponent.ID)
	})

	t.Run("Restart without a partner is dropped", func(t *testing.T) {
		fx := newManagerFixture()
		_, err := fx.manager.SubmitName(ctx, "conn-x", "Alice")
		require.NoError(t, err)

		_, err = fx.manager.Restart(ctx, "conn-x")

		assert.ErrorIs(t, err, apperror.ErrNoPartner)
	})
}

func TestGameManager_Disconnect(t *testing.T) {
	ctx := context.Background()

	t.Run("Disconnect of a paired player leaves the partner dangling", func(t *testing.T) {
		// Given: a paired game
		fx := newManagerFixture()
		key := fx.pairAliceAndBob(ctx, t)

		// When: conn-x disconnects
		err := fx.manager.Disconnect(ctx, "conn-x")
		require.NoError(t, err)

		// Then: the session and the record are gone
		_, err = fx.sessions.GetByKey(ctx, key)
		assert.ErrorIs(t, err, repository.ErrSessionNotFound)

		_, err = fx.players.GetByID(ctx, "conn-x")
		assert.ErrorIs(t, err, repository.ErrPlayerNotFound)

		// Then: the survivor still points at the gone connection
		survivor, err := fx.players.GetByID(ctx, "conn-y")
		require.NoError(t, err)
		assert.Equal(t, "conn-x", survivor.PartnerID)

		// Then: the survivor's next move is dropped as stale
		_, err = fx.manager.MakeTurn(ctx, "conn-y", 0, entity.MarkO)
		assert.ErrorIs(t, err, apperror.ErrStaleSession)
	})

	t.Run("Disconnect of an unregistered connection is a no-op", func(t *testing.T) {
		fx := newManagerFixture()

		err := fx.manager.Disconnect(ctx, "ghost")

		assert.NoError(t, err)
	})

	t.Run("Disconnect of a waiting player empties the pool", func(t *testing.T) {
		// Given: a waiting player
		fx := newManagerFixture()
		_, err := fx.manager.SubmitName(ctx, "conn-x", "Alice")
		require.NoError(t, err)

		// When: they disconnect before being matched
		require.NoError(t, fx.manager.Disconnect(ctx, "conn-x"))

		// Then: a later submitter waits instead of pairing with the ghost
		result, err := fx.manager.SubmitName(ctx, "conn-y", "Bob")
		require.NoError(t, err)
		assert.Nil(t, result.Opponent)
	})
}

func TestGameManager_Notifications(t *testing.T) {
	ctx := context.Background()

	t.Run("Pairing notifies both sides with their own mark", func(t *testing.T) {
		// Given: Alice waiting, then Bob submitting
		fx := newManagerFixture()
		fx.pairAliceAndBob(ctx, t)

		// Then: Alice was told to wait, then got paired as X moving first
		aliceEvents := fx.notifier.eventsFor("conn-x")
		require.Len(t, aliceEvents, 2)
		assert.Equal(t, "waiting", aliceEvents[0].kind)
		assert.Equal(t, "paired", aliceEvents[1].kind)
		assert.Equal(t, "Bob", aliceEvents[1].opponentName)
		assert.Equal(t, entity.MarkX, aliceEvents[1].mark)
		assert.True(t, aliceEvents[1].movesFirst)

		// Then: Bob got paired as O moving second, with no waiting event
		bobEvents := fx.notifier.eventsFor("conn-y")
		require.Len(t, bobEvents, 1)
		assert.Equal(t, "paired", bobEvents[0].kind)
		assert.Equal(t, "Alice", bobEvents[0].opponentName)
		assert.Equal(t, entity.MarkO, bobEvents[0].mark)
		assert.False(t, bobEvents[0].movesFirst)
	})

	t.Run("A move notifies both sides and hands the turn over", func(t *testing.T) {
		// Given: a paired game
		fx := newManagerFixture()
		fx.pairAliceAndBob(ctx, t)

		// When: X takes the center
		_, err := fx.manager.MakeTurn(ctx, "conn-x", 4, entity.MarkX)
		require.NoError(t, err)

		// Then: the mover sees the board with the turn off, the opponent with it on
		moverEvents := fx.notifier.eventsFor("conn-x")
		moverUpdate := moverEvents[len(moverEvents)-1]
		assert.Equal(t, "update", moverUpdate.kind)
		assert.Equal(t, entity.MarkX, moverUpdate.board[4])
		assert.False(t, moverUpdate.yourTurn)

		opponentEvents := fx.notifier.eventsFor("conn-y")
		opponentUpdate := opponentEvents[len(opponentEvents)-1]
		assert.Equal(t, "update", opponentUpdate.kind)
		assert.Equal(t, entity.MarkX, opponentUpdate.board[4])
		assert.True(t, opponentUpdate.yourTurn)
	})

	t.Run("A winning move notifies both sides with the winner", func(t *testing.T) {
		// Given: X completing the top row
		fx := newManagerFixture()
		fx.pairAliceAndBob(ctx, t)

		for _, move := range []struct {
			connID string
			cell   int
			mark   entity.Mark
		}{
			{"conn-x", 0, entity.MarkX},
			{"conn-y", 3, entity.MarkO},
			{"conn-x", 1, entity.MarkX},
			{"conn-y", 4, entity.MarkO},
			{"conn-x", 2, entity.MarkX},
		} {
			_, err := fx.manager.MakeTurn(ctx, move.connID, move.cell, move.mark)
			require.NoError(t, err)
		}

		// Then: both recipients end on a game-over event naming X
		for _, connID := range []string{"conn-x", "conn-y"} {
			events := fx.notifier.eventsFor(connID)
			last := events[len(events)-1]
			assert.Equal(t, "over", last.kind)
			assert.Equal(t, int8(0), last.winner)
		}
	})

	t.Run("Restart notifies both participants", func(t *testing.T) {
		fx := newManagerFixture()
		fx.pairAliceAndBob(ctx, t)

		_, err := fx.manager.Restart(ctx, "conn-x")
		require.NoError(t, err)

		for _, connID := range []string{"conn-x", "conn-y"} {
			events := fx.notifier.eventsFor(connID)
			assert.Equal(t, "restarted", events[len(events)-1].kind)
		}
	})

	t.Run("Concurrent moves reach each recipient in mutation order", func(t *testing.T) {
		// Given: a paired game and two clients hammering moves at once;
		// neither mark's cells contain a winning triple, so every move lands
		fx := newManagerFixture()
		fx.pairAliceAndBob(ctx, t)

		turns := map[string][]int{
			"conn-x": {0, 8, 6, 5},
			"conn-y": {4, 2, 3, 7},
		}
		marks := map[string]entity.Mark{"conn-x": entity.MarkX, "conn-y": entity.MarkO}

		errCh := make(chan error, len(turns))
		var wg sync.WaitGroup
		for connID, cells := range turns {
			wg.Add(1)
			go func(connID string, cells []int) {
				defer wg.Done()
				for _, cell := range cells {
					if _, err := fx.manager.MakeTurn(ctx, connID, cell, marks[connID]); err != nil {
						errCh <- err
						return
					}
				}
			}(connID, cells)
		}
		wg.Wait()
		close(errCh)
		for err := range errCh {
			require.NoError(t, err)
		}

		// Then: each recipient's board snapshots grow one cell at a time,
		// so no stale board can arrive after a newer one
		for _, connID := range []string{"conn-x", "conn-y"} {
			seen := 0
			filled := 0
			for _, event := range fx.notifier.eventsFor(connID) {
				if event.kind != "update" {
					continue
				}
				seen++

				count := 0
				for _, cell := range event.board {
					if cell != entity.EmptyCell {
						count++
					}
				}
				assert.Greater(t, count, filled, "board for %s went backwards", connID)
				filled = count
			}
			assert.Equal(t, 8, seen)
		}
	})
}
