package game

// ValidDestinations returns the graph neighbors of pos that are unoccupied.
// There is no capturing and no jumping: any occupied cell, own or enemy, is
// never a valid destination.
func ValidDestinations(pos Position, s *GameState) []Position {
	var out []Position
	for _, n := range Neighbors(pos) {
		if !s.occupied(n) {
			out = append(out, n)
		}
	}
	return out
}

// CanMove reports whether at least one of the player's pieces has a valid
// destination.
func CanMove(p Player, s *GameState) bool {
	for _, piece := range s.pieces(p) {
		if len(ValidDestinations(piece, s)) > 0 {
			return true
		}
	}
	return false
}

// WinStatus evaluates the game result in fixed priority order: completion
// wins (all pieces in the opposing home) are checked before the stalemate
// rule, so a simultaneous "all home" and "no legal moves" position resolves
// as a win by completion. A player with no legal moves loses; there are no
// draws.
func WinStatus(s *GameState) Status {
	if allIn(s.BluePieces, targetOf(PlayerBlue)) {
		return StatusBlueWins
	}
	if allIn(s.RedPieces, targetOf(PlayerRed)) {
		return StatusRedWins
	}
	if !CanMove(s.CurrentPlayer, s) {
		if s.CurrentPlayer == PlayerBlue {
			return StatusRedWins
		}
		return StatusBlueWins
	}
	return StatusPlaying
}

func allIn(pieces []Position, cells []Position) bool {
	for _, p := range pieces {
		found := false
		for _, c := range cells {
			if p == c {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// ApplyMove validates and applies a move for the side to move. On success it
// returns the successor state and true: the piece relocated, the move and the
// new board snapshot appended to the histories, the turn flipped and the
// status re-evaluated. On any validation failure the input state is returned
// unchanged with ok=false.
func ApplyMove(from, to Position, s *GameState) (*GameState, bool) {
	if s.Status.Terminal() {
		return s, false
	}
	owner, ok := s.PieceOwner(from)
	if !ok || owner != s.CurrentPlayer {
		return s, false
	}
	if !destinationValid(from, to, s) {
		return s, false
	}

	next := s.Clone()
	relocate(next.pieces(next.CurrentPlayer), from, to)
	next.MoveHistory = append(next.MoveHistory, Move{From: from, To: to, Player: s.CurrentPlayer})
	next.CurrentPlayer = s.CurrentPlayer.Opponent()
	next.BoardStateHistory = append(next.BoardStateHistory, next.Serialize())
	next.Status = WinStatus(next)
	return next, true
}

// ApplyMoveWithWarning applies the move and, when incrementWarning is set,
// bumps the mover's repetition warning counter in the resulting state. The
// mover is identified before the turn flip.
func ApplyMoveWithWarning(from, to Position, s *GameState, incrementWarning bool) (*GameState, bool) {
	mover := s.CurrentPlayer
	next, ok := ApplyMove(from, to, s)
	if !ok {
		return s, false
	}
	if incrementWarning {
		next.RepetitionWarnings[mover]++
	}
	return next, true
}

// Forfeit ends the game against the forfeiting player. Pieces and histories
// are left untouched.
func Forfeit(s *GameState, p Player) *GameState {
	next := s.Clone()
	if p == PlayerBlue {
		next.Status = StatusBlueForfeit
	} else {
		next.Status = StatusRedForfeit
	}
	return next
}

// EnumerateMoves lists every (from, to) pair the player could legally play.
// This is the move-generation primitive the AI opponent consumes.
func EnumerateMoves(s *GameState, p Player) []Move {
	var out []Move
	for _, piece := range s.pieces(p) {
		for _, dst := range ValidDestinations(piece, s) {
			out = append(out, Move{From: piece, To: dst, Player: p})
		}
	}
	return out
}

func destinationValid(from, to Position, s *GameState) bool {
	for _, d := range ValidDestinations(from, s) {
		if d == to {
			return true
		}
	}
	return false
}

func relocate(pieces []Position, from, to Position) {
	for i, p := range pieces {
		if p == from {
			pieces[i] = to
			return
		}
	}
}
