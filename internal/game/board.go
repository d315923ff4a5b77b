package game

// The board has 11 cells: two triangular home clusters joined by a diamond
// shaped hub. Blue starts on the left triangle, Red on the right one, and a
// player wins by occupying the opposing triangle with all three pieces.

type Player string

const (
	PlayerBlue Player = "blue"
	PlayerRed  Player = "red"
)

func (p Player) Opponent() Player {
	if p == PlayerBlue {
		return PlayerRed
	}
	return PlayerBlue
}

type Position string

const (
	L1 Position = "L1" // blue home, top
	L2 Position = "L2" // blue home, middle
	L3 Position = "L3" // blue home, bottom
	R1 Position = "R1" // red home, top
	R2 Position = "R2" // red home, middle
	R3 Position = "R3" // red home, bottom
	CL Position = "CL" // hub, left corner
	CT Position = "CT" // hub, top corner
	CC Position = "CC" // hub, center
	CB Position = "CB" // hub, bottom corner
	CR Position = "CR" // hub, right corner
)

var (
	BlueHome = []Position{L1, L2, L3}
	RedHome  = []Position{R1, R2, R3}
)

// adjacency is the fixed board graph. Symmetric, never mutated at runtime.
var adjacency = map[Position][]Position{
	L1: {L2, L3, CT},
	L2: {L1, L3, CL},
	L3: {L1, L2, CB},
	R1: {R2, R3, CT},
	R2: {R1, R3, CR},
	R3: {R1, R2, CB},
	CL: {L2, CT, CB, CC},
	CT: {L1, R1, CL, CR, CC},
	CB: {L3, R3, CL, CR, CC},
	CR: {R2, CT, CB, CC},
	CC: {CL, CT, CB, CR},
}

// Neighbors returns the cells adjacent to pos on the board graph.
func Neighbors(pos Position) []Position {
	return adjacency[pos]
}

// IsValidPosition reports whether pos names a real board cell.
func IsValidPosition(pos Position) bool {
	_, ok := adjacency[pos]
	return ok
}

func homeOf(p Player) []Position {
	if p == PlayerBlue {
		return BlueHome
	}
	return RedHome
}

// targetOf is the cluster a player must fully occupy to win.
func targetOf(p Player) []Position {
	return homeOf(p.Opponent())
}
