// internal/game/score.go
//
// Scoring for the 4-digit code game. A guess is scored against the
// opponent's secret by counting positions where the digits match exactly;
// there is no wrong-position partial credit.
package game

// CodeLength is the fixed length of every secret and guess.
const CodeLength = 4

// Score returns the number of indices where guess and secret hold the same
// digit. Both arguments must already be exactly CodeLength decimal digits;
// Score itself does not validate (see ValidCode). Deterministic and pure.
// A guess scoring CodeLength wins the game.
func Score(guess, secret string) int {
	correct := 0
	for i := 0; i < CodeLength; i++ {
		if guess[i] == secret[i] {
			correct++
		}
	}
	return correct
}

// ValidCode reports whether s is exactly CodeLength decimal digits. This is
// the gate callers apply before Score or any store call.
func ValidCode(s string) bool {
	if len(s) != CodeLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// NextTurn returns the opposing player number.
func NextTurn(playerNum int) int {
	if playerNum == 1 {
		return 2
	}
	return 1
}
