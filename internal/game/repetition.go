package game

// RuleSet toggles the three repetition policies independently. All three may
// be enabled at once; the gateway applies forfeit > block > warn precedence.
type RuleSet struct {
	Warning bool `json:"warning"`
	Forfeit bool `json:"forfeit"`
	Block   bool `json:"block"`
}

// RepetitionCheck is the outcome of simulating a candidate move against the
// repetition policies.
type RepetitionCheck struct {
	IsPieceBounce        bool
	BoardRepetitionCount int
	ShouldWarn           bool
	ShouldBlock          bool
	ShouldForfeit        bool
}

// HasRepetition reports whether the candidate move repeats at all.
func (c RepetitionCheck) HasRepetition() bool {
	return c.IsPieceBounce || c.BoardRepetitionCount >= 3
}

// DetectPieceBounce reports whether the player's last two recorded moves are
// exact inverses: one piece immediately undoing its own prior move.
func DetectPieceBounce(history []Move, p Player) bool {
	var last, prev *Move
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Player != p {
			continue
		}
		if last == nil {
			last = &history[i]
			continue
		}
		prev = &history[i]
		break
	}
	if last == nil || prev == nil {
		return false
	}
	return last.From == prev.To && last.To == prev.From
}

// DetectBoardRepetition counts how often the most recent snapshot appears in
// the full history. The minimum is 1 since the current entry matches itself.
func DetectBoardRepetition(history []string) int {
	if len(history) == 0 {
		return 0
	}
	latest := history[len(history)-1]
	count := 0
	for _, h := range history {
		if h == latest {
			count++
		}
	}
	return count
}

// CheckRepetition simulates applying the candidate move without mutating the
// real state and gates the resulting flags by the enabled rules. Forfeiture
// requires the mover's warning counter to already be at 2, so it triggers on
// the third repetition event, not the first. An invalid candidate move yields
// the zero check.
func CheckRepetition(from, to Position, s *GameState, rules RuleSet) RepetitionCheck {
	mover := s.CurrentPlayer
	next, ok := ApplyMove(from, to, s)
	if !ok {
		return RepetitionCheck{}
	}

	check := RepetitionCheck{
		IsPieceBounce:        DetectPieceBounce(next.MoveHistory, mover),
		BoardRepetitionCount: DetectBoardRepetition(next.BoardStateHistory),
	}
	if !check.HasRepetition() {
		return check
	}
	check.ShouldWarn = rules.Warning
	check.ShouldBlock = rules.Block
	check.ShouldForfeit = rules.Forfeit && s.RepetitionWarnings[mover] >= 2
	return check
}
