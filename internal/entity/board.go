package entity

// Mark identifies which participant placed a cell. The wire format uses the
// numeric values directly: -1 empty, 0 for X, 1 for O.
type Mark int8

const (
	EmptyCell Mark = -1
	MarkX     Mark = 0
	MarkO     Mark = 1
)

// Board is a 3x3 grid in row-major order.
type Board [9]Mark

type Outcome int8

const (
	OutcomeNone Outcome = iota
	OutcomeX
	OutcomeO
	OutcomeDraw
)

// winCombos enumerates the 8 winning triples: rows, columns, diagonals.
// Evaluate reports the first match in this order.
var winCombos = [][3]int{
	{0, 1, 2},
	{3, 4, 5},
	{6, 7, 8},
	{0, 3, 6},
	{1, 4, 7},
	{2, 5, 8},
	{0, 4, 8},
	{2, 4, 6},
}

func NewBoard() Board {
	return Board{
		EmptyCell, EmptyCell, EmptyCell,
		EmptyCell, EmptyCell, EmptyCell,
		EmptyCell, EmptyCell, EmptyCell,
	}
}

// Evaluate - determines the result of the board: a winner if any triple is
// uniform and non-empty, a draw if the board is full, none otherwise.
func (that Board) Evaluate() Outcome {
	for _, combo := range winCombos {
		a, b, c := that[combo[0]], that[combo[1]], that[combo[2]]
		if a != EmptyCell && a == b && b == c {
			if a == MarkX {
				return OutcomeX
			}
			return OutcomeO
		}
	}

	// the game continues until all the squares are full
	for _, cell := range that {
		if cell == EmptyCell {
			return OutcomeNone
		}
	}

	return OutcomeDraw
}

func (that Board) IsOccupied(cell int) bool {
	return that[cell] != EmptyCell
}

func (that Outcome) IsTerminal() bool {
	return that != OutcomeNone
}

// Winner - maps the outcome to its wire value: the winning mark, or -1 for a draw.
func (that Outcome) Winner() int8 {
	switch that {
	case OutcomeX:
		return int8(MarkX)
	case OutcomeO:
		return int8(MarkO)
	default:
		return -1
	}
}
