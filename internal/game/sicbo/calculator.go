// Package sicbo implements the Sic Bo (骰宝) lobby game.
package sicbo

import "telegram-casino-bot/internal/lobby"

// BetType is the family a selection belongs to.
type BetType string

const (
	BetTypeSingle BetType = "single"
	BetTypeBig    BetType = "big"
	BetTypeSmall  BetType = "small"
)

// FixedBetAmount is the stake placed by one keyboard button press.
const FixedBetAmount int64 = 1000

// Big and small both pay 1:1, i.e. twice the stake back.
var evenMoney = lobby.WholeOdds(2)

// IsTriple checks if all three dice show the same value.
func IsTriple(dice [3]int) bool {
	return dice[0] == dice[1] && dice[1] == dice[2]
}

// Total returns the pip sum.
func Total(dice [3]int) int {
	return dice[0] + dice[1] + dice[2]
}

// Matches counts the dice showing number.
func Matches(number int, dice [3]int) int {
	n := 0
	for _, d := range dice {
		if d == number {
			n++
		}
	}
	return n
}

// ValidDice reports whether every die is in 1-6.
func ValidDice(dice [3]int) bool {
	for _, d := range dice {
		if d < 1 || d > 6 {
			return false
		}
	}
	return true
}

// SelectionMultiplier returns the gross multiplier selection earns on dice,
// or zero when the bet loses.
//
//   - single number: k matching dice pay k:1, so k+1 back
//   - big (11-17) and small (4-10): 1:1, triples lose
func SelectionMultiplier(selection int, dice [3]int) lobby.Odds {
	bt, num, ok := SelectionBet(selection)
	if !ok {
		return 0
	}

	switch bt {
	case BetTypeSingle:
		if k := Matches(num, dice); k > 0 {
			return lobby.WholeOdds(int64(k) + 1)
		}
	case BetTypeBig:
		if !IsTriple(dice) && Total(dice) >= 11 {
			return evenMoney
		}
	case BetTypeSmall:
		if !IsTriple(dice) && Total(dice) <= 10 {
			return evenMoney
		}
	}
	return 0
}

// Multipliers returns the gross multiplier of every winning selection.
func Multipliers(dice [3]int) map[int]lobby.Odds {
	out := make(map[int]lobby.Odds)
	for sel := range selectionLabels {
		if m := SelectionMultiplier(sel, dice); m > 0 {
			out[sel] = m
		}
	}
	return out
}
