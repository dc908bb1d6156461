package sicbo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"telegram-casino-bot/internal/lobby"
)

type diceRandom struct {
	dice [3]int
	pos  int
}

func (r *diceRandom) UniformInt(min, max int) int {
	v := r.dice[r.pos%3]
	r.pos++
	return v
}

func (r *diceRandom) WeightedChoice([]int) int { return 0 }

// TestSimulateDiceInRangeProperty tests that simulated dice are valid and
// big/small winners follow the total.
func TestSimulateDiceInRangeProperty(t *testing.T) {
	g := New(DefaultLobby())
	rapid.Check(t, func(t *rapid.T) {
		rng := &diceRandom{dice: [3]int{
			rapid.IntRange(1, 6).Draw(t, "d1"),
			rapid.IntRange(1, 6).Draw(t, "d2"),
			rapid.IntRange(1, 6).Draw(t, "d3"),
		}}
		out, err := g.Simulate(context.Background(), nil, rng)
		if err != nil {
			t.Fatalf("simulate: %v", err)
		}
		dice := out.Detail["dice"].([3]int)
		if !ValidDice(dice) {
			t.Fatalf("invalid dice %v", dice)
		}
		_, big := out.Multipliers[SelectionBig]
		_, small := out.Multipliers[SelectionSmall]
		if IsTriple(dice) && (big || small) {
			t.Fatalf("triple %v paid big/small", dice)
		}
		if !IsTriple(dice) && big == small {
			t.Fatalf("non-triple %v: big=%v small=%v", dice, big, small)
		}
	})
}

func TestSimulate_TripleSettlement(t *testing.T) {
	g := New(DefaultLobby())
	out, err := g.Simulate(context.Background(), nil, &diceRandom{dice: [3]int{4, 4, 4}})
	require.NoError(t, err)

	stakes := []lobby.Stake{
		{ParticipantID: 1, Amount: 1000, Selection: 3},            // single 4
		{ParticipantID: 2, Amount: 1000, Selection: SelectionBig}, // big loses on triple
		{ParticipantID: 3, Amount: 1000, Selection: 0},            // single 1
	}
	res := lobby.ComputePayouts("sb", stakes, out)

	assert.Equal(t, 3, out.Selection)
	assert.Equal(t, int64(4000), res.Payouts[0].Amount)
	assert.Equal(t, int64(0), res.Payouts[1].Amount)
	assert.Equal(t, int64(0), res.Payouts[2].Amount)
}

func TestSelectionBet(t *testing.T) {
	bt, num, ok := SelectionBet(0)
	assert.True(t, ok)
	assert.Equal(t, BetTypeSingle, bt)
	assert.Equal(t, 1, num)

	bt, _, ok = SelectionBet(SelectionSmall)
	assert.True(t, ok)
	assert.Equal(t, BetTypeSmall, bt)

	_, _, ok = SelectionBet(8)
	assert.False(t, ok)
	assert.Equal(t, "big", SelectionLabel(SelectionBig))
}
