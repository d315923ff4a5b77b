package game

import (
	"sort"
	"strings"
)

type Status string

const (
	StatusPlaying     Status = "playing"
	StatusBlueWins    Status = "blue_wins"
	StatusRedWins     Status = "red_wins"
	StatusBlueForfeit Status = "blue_forfeit"
	StatusRedForfeit  Status = "red_forfeit"
)

// Terminal reports whether no further moves are accepted.
func (s Status) Terminal() bool {
	return s != StatusPlaying
}

type Move struct {
	From   Position `json:"from"`
	To     Position `json:"to"`
	Player Player   `json:"player"`
}

// GameState is the complete state of one game. Values are treated as
// immutable: ApplyMove and friends return a fresh copy and never touch the
// input, so callers can detect rejection by the returned ok flag alone.
type GameState struct {
	CurrentPlayer      Player         `json:"current_player"`
	BluePieces         []Position     `json:"blue_pieces"`
	RedPieces          []Position     `json:"red_pieces"`
	Status             Status         `json:"status"`
	MoveHistory        []Move         `json:"move_history"`
	BoardStateHistory  []string       `json:"board_state_history"`
	RepetitionWarnings map[Player]int `json:"repetition_warnings"`
}

// NewGame returns the canonical initial state: both sides at home, Blue to
// move, histories empty. Snapshots are recorded one per applied move, so the
// opening position starts counting toward repetition only once revisited.
func NewGame() *GameState {
	return &GameState{
		CurrentPlayer:      PlayerBlue,
		BluePieces:         []Position{L1, L2, L3},
		RedPieces:          []Position{R1, R2, R3},
		Status:             StatusPlaying,
		MoveHistory:        []Move{},
		BoardStateHistory:  []string{},
		RepetitionWarnings: map[Player]int{PlayerBlue: 0, PlayerRed: 0},
	}
}

// Clone returns a deep copy. Used by every mutating rule function and by the
// repetition simulation path.
func (s *GameState) Clone() *GameState {
	c := &GameState{
		CurrentPlayer:      s.CurrentPlayer,
		BluePieces:         append([]Position(nil), s.BluePieces...),
		RedPieces:          append([]Position(nil), s.RedPieces...),
		Status:             s.Status,
		MoveHistory:        append([]Move(nil), s.MoveHistory...),
		BoardStateHistory:  append([]string(nil), s.BoardStateHistory...),
		RepetitionWarnings: make(map[Player]int, len(s.RepetitionWarnings)),
	}
	for p, n := range s.RepetitionWarnings {
		c.RepetitionWarnings[p] = n
	}
	return c
}

// Serialize renders the board configuration as
// "{currentPlayer}:{sorted blue}|{sorted red}". Piece identity is erased by
// the sort: only occupancy plus whose turn it is matters, so two states are
// the same board state iff their serializations are equal.
func (s *GameState) Serialize() string {
	var b strings.Builder
	b.WriteString(string(s.CurrentPlayer))
	b.WriteByte(':')
	b.WriteString(joinSorted(s.BluePieces))
	b.WriteByte('|')
	b.WriteString(joinSorted(s.RedPieces))
	return b.String()
}

func joinSorted(pieces []Position) string {
	sorted := make([]string, len(pieces))
	for i, p := range pieces {
		sorted[i] = string(p)
	}
	sort.Strings(sorted)
	return strings.Join(sorted, ",")
}

// PieceOwner returns the player owning the piece at pos, if any.
func (s *GameState) PieceOwner(pos Position) (Player, bool) {
	for _, p := range s.BluePieces {
		if p == pos {
			return PlayerBlue, true
		}
	}
	for _, p := range s.RedPieces {
		if p == pos {
			return PlayerRed, true
		}
	}
	return "", false
}

func (s *GameState) occupied(pos Position) bool {
	_, ok := s.PieceOwner(pos)
	return ok
}

func (s *GameState) pieces(p Player) []Position {
	if p == PlayerBlue {
		return s.BluePieces
	}
	return s.RedPieces
}
