package apperror

import "errors"

var (
	ErrUnknownConnection = errors.New("unknown connection")
	ErrNoPartner         = errors.New("player has no partner")
	ErrStaleSession      = errors.New("no live session for this pair")
	ErrInvalidCell       = errors.New("invalid cell index")
	ErrCellOccupied      = errors.New("cell is already occupied")
	ErrAlreadyPaired     = errors.New("player is already paired")
)
