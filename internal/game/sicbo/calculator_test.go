package sicbo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"

	"telegram-casino-bot/internal/lobby"
)

func drawDice(t *rapid.T) [3]int {
	return [3]int{
		rapid.IntRange(1, 6).Draw(t, "d1"),
		rapid.IntRange(1, 6).Draw(t, "d2"),
		rapid.IntRange(1, 6).Draw(t, "d3"),
	}
}

func TestIsTriple(t *testing.T) {
	tests := []struct {
		name     string
		dice     [3]int
		expected bool
	}{
		{"triple 1s", [3]int{1, 1, 1}, true},
		{"triple 6s", [3]int{6, 6, 6}, true},
		{"first different", [3]int{2, 1, 1}, false},
		{"middle different", [3]int{1, 2, 1}, false},
		{"last different", [3]int{1, 1, 2}, false},
		{"all different", [3]int{1, 2, 3}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsTriple(tt.dice))
		})
	}
}

func TestSelectionMultiplier(t *testing.T) {
	tests := []struct {
		name      string
		selection int
		dice      [3]int
		expected  lobby.Odds
	}{
		{"single no match", 0, [3]int{2, 3, 4}, 0},
		{"single one match", 0, [3]int{1, 2, 3}, lobby.WholeOdds(2)},
		{"single two matches", 0, [3]int{1, 1, 3}, lobby.WholeOdds(3)},
		{"single triple", 0, [3]int{1, 1, 1}, lobby.WholeOdds(4)},
		{"big sum 11", SelectionBig, [3]int{3, 4, 4}, lobby.WholeOdds(2)},
		{"big sum 17", SelectionBig, [3]int{5, 6, 6}, lobby.WholeOdds(2)},
		{"big sum 10", SelectionBig, [3]int{2, 4, 4}, 0},
		{"big triple 6", SelectionBig, [3]int{6, 6, 6}, 0},
		{"small sum 4", SelectionSmall, [3]int{1, 1, 2}, lobby.WholeOdds(2)},
		{"small sum 10", SelectionSmall, [3]int{2, 4, 4}, lobby.WholeOdds(2)},
		{"small sum 11", SelectionSmall, [3]int{3, 4, 4}, 0},
		{"small triple 1", SelectionSmall, [3]int{1, 1, 1}, 0},
		{"unknown selection", 8, [3]int{1, 2, 3}, 0},
		{"negative selection", -1, [3]int{1, 2, 3}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SelectionMultiplier(tt.selection, tt.dice))
		})
	}
}

// TestMultipliersGrossPayoutProperty tests payouts through the lobby odds.
// *For any* dice, stake and selection, the credited amount SHALL be
// stake * (matches + 1) for a matching single number, 2 * stake for a
// winning big/small, and 0 for a losing bet.
func TestMultipliersGrossPayoutProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		dice := drawDice(t)
		stake := rapid.Int64Range(1, 1_000_000).Draw(t, "stake")
		m := Multipliers(dice)

		for sel := range selectionLabels {
			bt, num, ok := SelectionBet(sel)
			if !ok {
				t.Fatalf("selection %d not mapped", sel)
			}

			var want int64
			switch bt {
			case BetTypeSingle:
				if k := Matches(num, dice); k > 0 {
					want = stake * int64(k+1)
				}
			case BetTypeBig:
				if !IsTriple(dice) && Total(dice) >= 11 {
					want = 2 * stake
				}
			case BetTypeSmall:
				if !IsTriple(dice) && Total(dice) <= 10 {
					want = 2 * stake
				}
			}

			if got := m[sel].Apply(stake); got != want {
				t.Fatalf("selection %s on %v with stake %d: got %d, want %d", SelectionLabel(sel), dice, stake, got, want)
			}
			if _, present := m[sel]; present != (want > 0) {
				t.Fatalf("selection %s on %v: present=%v but payout %d", SelectionLabel(sel), dice, present, want)
			}
		}
	})
}

// TestBigSmallMutualExclusionProperty tests the even-money selections.
// *For any* non-triple roll exactly one of big and small SHALL win; on a
// triple both SHALL lose.
func TestBigSmallMutualExclusionProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		dice := drawDice(t)
		m := Multipliers(dice)
		_, big := m[SelectionBig]
		_, small := m[SelectionSmall]

		if IsTriple(dice) {
			if big || small {
				t.Fatalf("triple %v: big=%v small=%v", dice, big, small)
			}
			return
		}
		if big == small {
			t.Fatalf("non-triple %v (sum=%d): big=%v small=%v", dice, Total(dice), big, small)
		}
	})
}

// TestSingleNumbersCoverEveryDieProperty tests single-number winners.
// *For any* roll, the winning single numbers SHALL be exactly the faces
// shown, and their matches SHALL add up to three.
func TestSingleNumbersCoverEveryDieProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		dice := drawDice(t)
		m := Multipliers(dice)

		var matched int64
		for sel := 0; sel < 6; sel++ {
			odds, ok := m[sel]
			if ok != (Matches(sel+1, dice) > 0) {
				t.Fatalf("number %d on %v: winner=%v", sel+1, dice, ok)
			}
			if ok {
				matched += odds.Apply(1) - 1
			}
		}
		if matched != 3 {
			t.Fatalf("matches on %v add up to %d", dice, matched)
		}
	})
}
