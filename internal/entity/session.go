package entity

// Session holds the board for one paired game. There is exactly one live
// session per pair; it is deleted on a terminal outcome, restart or disconnect.
type Session struct {
	Key   string `json:"key"`
	Board Board  `json:"board"`
}

func NewSession(key string) *Session {
	return &Session{
		Key:   key,
		Board: NewBoard(),
	}
}

// SessionKeyFor - derives the canonical key for a pair of connections.
// The lexicographically greater ID goes first, so both sides compute the
// identical key no matter which of them derives it.
func SessionKeyFor(a, b string) string {
	if a > b {
		return a + "_" + b
	}
	return b + "_" + a
}
