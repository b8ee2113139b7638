package reconcile

import (
	"math/rand"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/realvest/internal/pipeline/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	stageA = snowflake.ID(1)
	stageB = snowflake.ID(2)
	stageC = snowflake.ID(3)
)

func loaded(t *testing.T, a, b []snowflake.ID) *Board {
	t.Helper()
	board := NewBoard(stageA, stageB, stageC)
	var slots []Slot
	for i, d := range a {
		slots = append(slots, Slot{Deal: d, Stage: stageA, Position: i})
	}
	for i, d := range b {
		slots = append(slots, Slot{Deal: d, Stage: stageB, Position: i})
	}
	require.NoError(t, board.Load(slots))
	return board
}

func TestMoveAcrossStages(t *testing.T) {
	board := loaded(t, []snowflake.ID{10, 11, 12}, []snowflake.ID{20, 21})

	steps, err := board.Move(11, stageB, 1)
	require.NoError(t, err)

	assert.Equal(t, []Step{
		{Deal: 11, Stage: stageA, Position: ParkPosition},
		{Deal: 12, Stage: stageA, Position: 1},
		{Deal: 21, Stage: stageB, Position: 2},
		{Deal: 11, Stage: stageB, Position: 1},
	}, steps)
	assert.Equal(t, []snowflake.ID{10, 12}, board.Deals(stageA))
	assert.Equal(t, []snowflake.ID{20, 11, 21}, board.Deals(stageB))
	assert.NoError(t, board.Validate())
}

func TestMoveWithinStage(t *testing.T) {
	board := loaded(t, []snowflake.ID{10, 11, 12, 13}, nil)

	steps, err := board.Move(10, stageA, 2)
	require.NoError(t, err)
	assert.Equal(t, []Step{
		{Deal: 10, Stage: stageA, Position: ParkPosition},
		{Deal: 11, Stage: stageA, Position: 0},
		{Deal: 12, Stage: stageA, Position: 1},
		{Deal: 10, Stage: stageA, Position: 2},
	}, steps)
	assert.Equal(t, []snowflake.ID{11, 12, 10, 13}, board.Deals(stageA))

	steps, err = board.Move(13, stageA, 0)
	require.NoError(t, err)
	assert.Equal(t, []Step{
		{Deal: 13, Stage: stageA, Position: ParkPosition},
		{Deal: 10, Stage: stageA, Position: 3},
		{Deal: 12, Stage: stageA, Position: 2},
		{Deal: 11, Stage: stageA, Position: 1},
		{Deal: 13, Stage: stageA, Position: 0},
	}, steps)
	assert.Equal(t, []snowflake.ID{13, 11, 12, 10}, board.Deals(stageA))
}

func TestMoveOntoOwnSlotIsNoop(t *testing.T) {
	board := loaded(t, []snowflake.ID{10, 11}, nil)
	steps, err := board.Move(11, stageA, 1)
	require.NoError(t, err)
	assert.Empty(t, steps)

	steps, err = board.Move(11, stageA, 99)
	require.NoError(t, err)
	assert.Empty(t, steps)
}

func TestMoveClampsToTail(t *testing.T) {
	board := loaded(t, []snowflake.ID{10}, []snowflake.ID{20, 21})
	_, err := board.Move(10, stageB, 50)
	require.NoError(t, err)
	assert.Equal(t, []snowflake.ID{20, 21, 10}, board.Deals(stageB))
	assert.Empty(t, board.Deals(stageA))

	_, err = board.Move(21, stageC, 3)
	require.NoError(t, err)
	assert.Equal(t, []snowflake.ID{21}, board.Deals(stageC))
}

func TestMoveRejections(t *testing.T) {
	board := loaded(t, []snowflake.ID{10, 11}, nil)

	_, err := board.Move(10, stageB, -1)
	assert.ErrorIs(t, err, domain.ErrInvalidPosition)

	_, err = board.Move(99, stageB, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidReference)

	_, err = board.Move(10, snowflake.ID(404), 0)
	assert.ErrorIs(t, err, domain.ErrInvalidReference)

	assert.Equal(t, []snowflake.ID{10, 11}, board.Deals(stageA))
}

func TestAppendAndRemove(t *testing.T) {
	board := NewBoard(stageA, stageB)
	require.NoError(t, board.Load(nil))

	step, err := board.Append(10, stageA)
	require.NoError(t, err)
	assert.Equal(t, 0, step.Position)
	step, err = board.Append(11, stageA)
	require.NoError(t, err)
	assert.Equal(t, 1, step.Position)
	_, err = board.Append(12, stageA)
	require.NoError(t, err)

	_, err = board.Append(10, stageB)
	assert.ErrorIs(t, err, domain.ErrInvariantViolation)
	_, err = board.Append(13, stageC)
	assert.ErrorIs(t, err, domain.ErrInvalidReference)

	steps, err := board.Remove(10)
	require.NoError(t, err)
	assert.Equal(t, []Step{
		{Deal: 11, Stage: stageA, Position: 0},
		{Deal: 12, Stage: stageA, Position: 1},
	}, steps)
	assert.Equal(t, []snowflake.ID{11, 12}, board.Deals(stageA))

	_, err = board.Remove(10)
	assert.ErrorIs(t, err, domain.ErrInvalidReference)
}

func TestLoadRejectsBrokenBoards(t *testing.T) {
	board := NewBoard(stageA)
	err := board.Load([]Slot{{Deal: 1, Stage: stageA, Position: 0}, {Deal: 2, Stage: stageA, Position: 2}})
	assert.ErrorIs(t, err, domain.ErrInvariantViolation)

	err = board.Load([]Slot{{Deal: 1, Stage: stageA, Position: 0}, {Deal: 2, Stage: stageA, Position: 0}})
	assert.ErrorIs(t, err, domain.ErrInvariantViolation)

	err = board.Load([]Slot{{Deal: 1, Stage: stageB, Position: 0}})
	assert.ErrorIs(t, err, domain.ErrInvalidReference)
}

func TestFailedStepsLeaveBoardUntouched(t *testing.T) {
	board := loaded(t, []snowflake.ID{10, 11, 12}, []snowflake.ID{20})

	err := board.applyAll([]Step{
		{Deal: 10, Stage: stageA, Position: ParkPosition},
		{Deal: 20, Stage: stageA, Position: 1},
	})
	assert.ErrorIs(t, err, domain.ErrInvariantViolation)

	err = board.applyAll([]Step{{Deal: 12, Stage: stageA, Position: 5}}, 11)
	assert.ErrorIs(t, err, domain.ErrInvariantViolation)

	assert.Equal(t, []snowflake.ID{10, 11, 12}, board.Deals(stageA))
	assert.Equal(t, []snowflake.ID{20}, board.Deals(stageB))
	slot, ok := board.Slot(10)
	require.True(t, ok)
	assert.Equal(t, 0, slot.Position)

	err = board.Load([]Slot{{Deal: 1, Stage: stageA, Position: 3}})
	assert.ErrorIs(t, err, domain.ErrInvariantViolation)
	assert.Equal(t, []snowflake.ID{10, 11, 12}, board.Deals(stageA))
}

// replay applies steps to a plain placement map with a uniqueness check, the
// way storage with a unique index would see them.
func replay(t *testing.T, placed map[snowflake.ID]Slot, steps []Step) {
	t.Helper()
	for _, step := range steps {
		for id, s := range placed {
			if id != step.Deal && s.Stage == step.Stage && s.Position == step.Position {
				t.Fatalf("step %+v collides with deal %s", step, id)
			}
		}
		placed[step.Deal] = step
	}
}

func TestRandomSequencesKeepPositionsContiguous(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	stages := []snowflake.ID{stageA, stageB, stageC}
	board := NewBoard(stages...)
	require.NoError(t, board.Load(nil))

	model := map[snowflake.ID][]snowflake.ID{}
	placed := map[snowflake.ID]Slot{}
	next := snowflake.ID(100)
	var live []snowflake.ID

	for i := 0; i < 2000; i++ {
		switch op := rng.Intn(10); {
		case op < 3 || len(live) == 0:
			stage := stages[rng.Intn(len(stages))]
			step, err := board.Append(next, stage)
			require.NoError(t, err)
			replay(t, placed, []Step{step})
			model[stage] = append(model[stage], next)
			live = append(live, next)
			next++
		case op < 9:
			deal := live[rng.Intn(len(live))]
			stage := stages[rng.Intn(len(stages))]
			position := rng.Intn(8)

			from, ok := board.Slot(deal)
			require.True(t, ok)
			steps, err := board.Move(deal, stage, position)
			require.NoError(t, err)
			replay(t, placed, steps)

			model[from.Stage] = without(model[from.Stage], deal)
			if position > len(model[stage]) {
				position = len(model[stage])
			}
			model[stage] = insertAt(model[stage], position, deal)
		default:
			idx := rng.Intn(len(live))
			deal := live[idx]
			from, _ := board.Slot(deal)
			steps, err := board.Remove(deal)
			require.NoError(t, err)
			delete(placed, deal)
			replay(t, placed, steps)

			model[from.Stage] = without(model[from.Stage], deal)
			live = append(live[:idx], live[idx+1:]...)
		}

		require.NoError(t, board.Validate(), "iteration %d", i)
		for _, stage := range stages {
			want := model[stage]
			if len(want) == 0 {
				want = []snowflake.ID{}
			}
			require.Equal(t, want, board.Deals(stage), "iteration %d stage %s", i, stage)
			for pos, deal := range want {
				require.Equal(t, Slot{Deal: deal, Stage: stage, Position: pos}, placed[deal])
			}
		}
	}
}

func without(list []snowflake.ID, id snowflake.ID) []snowflake.ID {
	out := make([]snowflake.ID, 0, len(list))
	for _, v := range list {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

func insertAt(list []snowflake.ID, pos int, id snowflake.ID) []snowflake.ID {
	out := make([]snowflake.ID, 0, len(list)+1)
	out = append(out, list[:pos]...)
	out = append(out, id)
	return append(out, list[pos:]...)
}
