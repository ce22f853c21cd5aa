package entity

// Player is a registry record for one connection. The ID is the opaque
// connection identity assigned by the transport and is the only correlation
// key the server has.
type Player struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	PartnerID string `json:"partner_id,omitempty"`
	Mark      Mark   `json:"mark"`
}

func NewPlayer(id, name string) *Player {
	return &Player{
		ID:   id,
		Name: name,
		Mark: EmptyCell,
	}
}

func (that *Player) IsPaired() bool {
	return that.PartnerID != ""
}

// MovesFirst - reports whether this player opens the game. X always does.
func (that *Player) MovesFirst() bool {
	return that.Mark == MarkX
}

// Unpair - clears the partner link and mark, preserving the name.
func (that *Player) Unpair() {
	that.PartnerID = ""
	that.Mark = EmptyCell
}
