package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pairgrid/tictactoe-backend/internal/apperror"
	"github.com/pairgrid/tictactoe-backend/internal/entity"
	"github.com/pairgrid/tictactoe-backend/internal/metrics"
	"github.com/pairgrid/tictactoe-backend/internal/repository"
)

type playerRegistry interface {
	CreateOrUpdate(ctx context.Context, player *entity.Player) error
	GetByID(ctx context.Context, id string) (*entity.Player, error)
	FirstWaiting(ctx context.Context, excludeID string) (*entity.Player, error)
	DeleteByID(ctx context.Context, id string) error
}

type sessionRepo interface {
	CreateOrUpdate(ctx context.Context, session *entity.Session) error
	GetByKey(ctx context.Context, key string) (*entity.Session, error)
	DeleteByKey(ctx context.Context, key string) error
}

// GameManager owns the registry and the session store. Every event from
// every connection funnels through one mutex, so a mutation always runs to
// completion before the next one starts.
type GameManager struct {
	logger   *slog.Logger
	metrics  *metrics.Metrics
	notifier Notifier

	mu       sync.Mutex
	players  playerRegistry
	sessions sessionRepo
}

// PairingResult - Opponent is nil while the submitter is waiting.
type PairingResult struct {
	Player   *entity.Player
	Opponent *entity.Player
}

type TurnResult struct {
	Board    entity.Board
	Outcome  entity.Outcome
	Player   *entity.Player
	Opponent *entity.Player
}

// RestartResult - Opponent is nil when the partner record is already gone.
type RestartResult struct {
	Player   *entity.Player
	Opponent *entity.Player
}

func NewGameManager(logger *slog.Logger, m *metrics.Metrics, players playerRegistry, sessions sessionRepo, notifier Notifier) *GameManager {
	return &GameManager{
		logger:   logger,
		metrics:  m,
		notifier: notifier,

		players:  players,
		sessions: sessions,
	}
}

// SubmitName - registers the connection under the given name and pairs it
// with the first waiting player, if any. A submission from an already-paired
// connection is rejected rather than re-scanned into a new pair.
func (that *GameManager) SubmitName(ctx context.Context, connID, name string) (*PairingResult, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	log := that.logger.With("method", "SubmitName", "connID", connID)

	existing, err := that.players.GetByID(ctx, connID)
	if err != nil && !errors.Is(err, repository.ErrPlayerNotFound) {
		return nil, fmt.Errorf("failed to get player: %w", err)
	}

	if existing != nil && existing.IsPaired() {
		return nil, apperror.ErrAlreadyPaired
	}

	wasWaiting := existing != nil

	player := entity.NewPlayer(connID, name)
	if err = that.players.CreateOrUpdate(ctx, player); err != nil {
		return nil, fmt.Errorf("failed to register player: %w", err)
	}

	partner, err := that.players.FirstWaiting(ctx, connID)
	if errors.Is(err, repository.ErrNoWaitingPlayer) {
		if !wasWaiting {
			that.metrics.PlayersWaiting.Inc()
		}

		log.Info("player is waiting for an opponent")
		that.notifier.Waiting(player.ID)

		return &PairingResult{Player: player}, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to find waiting partner: %w", err)
	}

	// the waiting player moves first; the later submitter gets O
	player.PartnerID = partner.ID
	player.Mark = entity.MarkO
	partner.PartnerID = player.ID
	partner.Mark = entity.MarkX

	if err = that.players.CreateOrUpdate(ctx, player); err != nil {
		return nil, fmt.Errorf("failed to update player: %w", err)
	}

	if err = that.players.CreateOrUpdate(ctx, partner); err != nil {
		return nil, fmt.Errorf("failed to update partner: %w", err)
	}

	session := entity.NewSession(entity.SessionKeyFor(player.ID, partner.ID))
	if err = that.sessions.CreateOrUpdate(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	if wasWaiting {
		that.metrics.PlayersWaiting.Dec()
	}
	that.metrics.PlayersWaiting.Dec()
	that.metrics.SessionsActive.Inc()

	log.Info("players paired", "partnerID", partner.ID, "sessionKey", session.Key)

	that.notifier.Paired(player.ID, partner.Name, player.Mark, player.MovesFirst())
	that.notifier.Paired(partner.ID, player.Name, partner.Mark, partner.MovesFirst())

	return &PairingResult{Player: player, Opponent: partner}, nil
}

// MakeTurn - validates a move against the live session, applies it and
// evaluates the outcome. A terminal outcome deletes the session; the
// registry records stay paired until a restart or disconnect.
func (that *GameManager) MakeTurn(ctx context.Context, connID string, cell int, claimedMark entity.Mark) (*TurnResult, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	log := that.logger.With("method", "MakeTurn", "connID", connID)

	player, err := that.players.GetByID(ctx, connID)
	if errors.Is(err, repository.ErrPlayerNotFound) {
		return nil, apperror.ErrUnknownConnection
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get player: %w", err)
	}

	if !player.IsPaired() {
		return nil, apperror.ErrNoPartner
	}

	key := entity.SessionKeyFor(player.ID, player.PartnerID)

	session, err := that.sessions.GetByKey(ctx, key)
	if errors.Is(err, repository.ErrSessionNotFound) {
		return nil, apperror.ErrStaleSession
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	if cell < 0 || cell >= len(session.Board) {
		return nil, fmt.Errorf("%w: cell %d", apperror.ErrInvalidCell, cell)
	}

	if session.Board.IsOccupied(cell) {
		return nil, apperror.ErrCellOccupied
	}

	// the applied mark comes from the registry, not from the client's claim
	if claimedMark != player.Mark {
		log.Warn("client-declared mark disagrees with registry", "claimed", claimedMark, "assigned", player.Mark)
	}

	session.Board[cell] = player.Mark
	outcome := session.Board.Evaluate()

	if outcome.IsTerminal() {
		if err = that.sessions.DeleteByKey(ctx, key); err != nil {
			return nil, fmt.Errorf("failed to delete finished session: %w", err)
		}

		that.metrics.SessionsActive.Dec()
		that.metrics.GameFinished(outcome)

		log.Info("game finished", "sessionKey", key, "winner", outcome.Winner())
	} else if err = that.sessions.CreateOrUpdate(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to update session: %w", err)
	}

	that.metrics.MovesTotal.Inc()

	opponent, err := that.players.GetByID(ctx, player.PartnerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get opponent: %w", err)
	}

	if outcome.IsTerminal() {
		that.notifier.GameOver(player.ID, outcome.Winner())
		that.notifier.GameOver(opponent.ID, outcome.Winner())
	} else {
		that.notifier.BoardUpdate(player.ID, session.Board, false)
		that.notifier.BoardUpdate(opponent.ID, session.Board, true)
	}

	return &TurnResult{
		Board:    session.Board,
		Outcome:  outcome,
		Player:   player,
		Opponent: opponent,
	}, nil
}

// Restart - deletes the pair's session and unpairs both records, preserving
// names. Both players must submit a name again to be matched; they are not
// re-paired automatically.
func (that *GameManager) Restart(ctx context.Context, connID string) (*RestartResult, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	log := that.logger.With("method", "Restart", "connID", connID)

	player, err := that.players.GetByID(ctx, connID)
	if errors.Is(err, repository.ErrPlayerNotFound) {
		return nil, apperror.ErrUnknownConnection
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get player: %w", err)
	}

	if !player.IsPaired() {
		return nil, apperror.ErrNoPartner
	}

	key := entity.SessionKeyFor(player.ID, player.PartnerID)
	if _, err = that.sessions.GetByKey(ctx, key); err == nil {
		if err = that.sessions.DeleteByKey(ctx, key); err != nil {
			return nil, fmt.Errorf("failed to delete session: %w", err)
		}

		that.metrics.SessionsActive.Dec()
	}

	opponent, err := that.players.GetByID(ctx, player.PartnerID)
	if err != nil && !errors.Is(err, repository.ErrPlayerNotFound) {
		return nil, fmt.Errorf("failed to get opponent: %w", err)
	}

	player.Unpair()
	if err = that.players.CreateOrUpdate(ctx, player); err != nil {
		return nil, fmt.Errorf("failed to update player: %w", err)
	}
	that.metrics.PlayersWaiting.Inc()

	if opponent != nil {
		opponent.Unpair()
		if err = that.players.CreateOrUpdate(ctx, opponent); err != nil {
			return nil, fmt.Errorf("failed to update opponent: %w", err)
		}
		that.metrics.PlayersWaiting.Inc()
	}

	log.Info("session restarted", "sessionKey", key)

	that.notifier.Restarted(player.ID)
	if opponent != nil {
		that.notifier.Restarted(opponent.ID)
	}

	return &RestartResult{Player: player, Opponent: opponent}, nil
}

// Disconnect - tears down the pair's session and removes the registry
// record. The partner's record is left pointing at the gone connection on
// purpose: their next move fails the session lookup and is dropped as stale.
func (that *GameManager) Disconnect(ctx context.Context, connID string) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	log := that.logger.With("method", "Disconnect", "connID", connID)

	player, err := that.players.GetByID(ctx, connID)
	if errors.Is(err, repository.ErrPlayerNotFound) {
		// the connection never submitted a name
		return nil
	}

	if err != nil {
		return fmt.Errorf("failed to get player: %w", err)
	}

	if player.IsPaired() {
		key := entity.SessionKeyFor(player.ID, player.PartnerID)
		if _, err = that.sessions.GetByKey(ctx, key); err == nil {
			if err = that.sessions.DeleteByKey(ctx, key); err != nil {
				return fmt.Errorf("failed to delete session: %w", err)
			}

			that.metrics.SessionsActive.Dec()
		}
	} else {
		that.metrics.PlayersWaiting.Dec()
	}

	if err = that.players.DeleteByID(ctx, connID); err != nil {
		return fmt.Errorf("failed to delete player: %w", err)
	}

	log.Info("player removed from registry")

	return nil
}
