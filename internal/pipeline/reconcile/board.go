// Package reconcile keeps the (stage, position) placement of one owner's
// deals contiguous. It computes the ordered placement writes for each
// mutation and applies them to its own copy of the board, so the same step
// list can be replayed against storage.
package reconcile

import (
	"fmt"
	"maps"
	"sort"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/realvest/internal/pipeline/domain"
)

// ParkPosition is the temporary slot a moved deal occupies while its
// neighbours shift. No two deals are ever parked at once.
const ParkPosition = -1

type Slot struct {
	Deal     snowflake.ID
	Stage    snowflake.ID
	Position int
}

// Step sets the placement of one deal. Steps must be applied in order.
type Step = Slot

type Board struct {
	stages map[snowflake.ID]struct{}
	slots  map[snowflake.ID]Slot
}

// NewBoard returns an empty board over the given stages.
func NewBoard(stages ...snowflake.ID) *Board {
	b := &Board{
		stages: make(map[snowflake.ID]struct{}, len(stages)),
		slots:  map[snowflake.ID]Slot{},
	}
	for _, id := range stages {
		b.stages[id] = struct{}{}
	}
	return b
}

// Load replaces the board contents and validates them. A rejected load
// leaves the previous contents in place.
func (b *Board) Load(slots []Slot) error {
	next := &Board{stages: b.stages, slots: make(map[snowflake.ID]Slot, len(slots))}
	for _, s := range slots {
		if _, ok := b.stages[s.Stage]; !ok {
			return fmt.Errorf("%w: unknown stage %s", domain.ErrInvalidReference, s.Stage)
		}
		if _, dup := next.slots[s.Deal]; dup {
			return fmt.Errorf("%w: deal %s loaded twice", domain.ErrInvariantViolation, s.Deal)
		}
		next.slots[s.Deal] = s
	}
	if err := next.Validate(); err != nil {
		return err
	}
	b.slots = next.slots
	return nil
}

// Validate asserts that every stage holds exactly positions 0..count-1.
func (b *Board) Validate() error {
	byStage := map[snowflake.ID][]int{}
	for _, s := range b.slots {
		byStage[s.Stage] = append(byStage[s.Stage], s.Position)
	}
	for stage, positions := range byStage {
		sort.Ints(positions)
		for i, p := range positions {
			if p != i {
				return fmt.Errorf("%w: stage %s has positions %v", domain.ErrInvariantViolation, stage, positions)
			}
		}
	}
	return nil
}

func (b *Board) Slot(deal snowflake.ID) (Slot, bool) {
	s, ok := b.slots[deal]
	return s, ok
}

// Deals returns the deals of a stage in position order.
func (b *Board) Deals(stage snowflake.ID) []snowflake.ID {
	slots := b.stageSlots(stage)
	out := make([]snowflake.ID, 0, len(slots))
	for _, s := range slots {
		out = append(out, s.Deal)
	}
	return out
}

func (b *Board) Len(stage snowflake.ID) int {
	n := 0
	for _, s := range b.slots {
		if s.Stage == stage && s.Position != ParkPosition {
			n++
		}
	}
	return n
}

// Append places a new deal at the tail of stage.
func (b *Board) Append(deal, stage snowflake.ID) (Step, error) {
	if _, ok := b.stages[stage]; !ok {
		return Step{}, domain.ErrInvalidReference
	}
	if _, exists := b.slots[deal]; exists {
		return Step{}, fmt.Errorf("%w: deal %s already placed", domain.ErrInvariantViolation, deal)
	}
	step := Step{Deal: deal, Stage: stage, Position: b.Len(stage)}
	if err := b.apply(step); err != nil {
		return Step{}, err
	}
	return step, nil
}

// Move relocates deal to (stage, position). The steps park the deal, close
// the gap in the source, open the slot in the target and finally place the
// deal. A position past the end lands on the tail. Moving a deal onto its
// own slot yields no steps.
func (b *Board) Move(deal, stage snowflake.ID, position int) ([]Step, error) {
	if position < 0 {
		return nil, domain.ErrInvalidPosition
	}
	from, ok := b.slots[deal]
	if !ok {
		return nil, domain.ErrInvalidReference
	}
	if _, ok := b.stages[stage]; !ok {
		return nil, domain.ErrInvalidReference
	}

	var steps []Step
	if from.Stage == stage {
		if tail := b.Len(stage) - 1; position > tail {
			position = tail
		}
		if position == from.Position {
			return nil, nil
		}
		steps = append(steps, Step{Deal: deal, Stage: from.Stage, Position: ParkPosition})
		if position > from.Position {
			// (old, target] shift down, ascending.
			for _, s := range b.stageSlots(stage) {
				if s.Position > from.Position && s.Position <= position {
					steps = append(steps, Step{Deal: s.Deal, Stage: stage, Position: s.Position - 1})
				}
			}
		} else {
			// [target, old) shift up, descending.
			slots := b.stageSlots(stage)
			for i := len(slots) - 1; i >= 0; i-- {
				s := slots[i]
				if s.Position >= position && s.Position < from.Position {
					steps = append(steps, Step{Deal: s.Deal, Stage: stage, Position: s.Position + 1})
				}
			}
		}
	} else {
		if tail := b.Len(stage); position > tail {
			position = tail
		}
		steps = append(steps, Step{Deal: deal, Stage: from.Stage, Position: ParkPosition})
		for _, s := range b.stageSlots(from.Stage) {
			if s.Deal != deal && s.Position > from.Position {
				steps = append(steps, Step{Deal: s.Deal, Stage: from.Stage, Position: s.Position - 1})
			}
		}
		target := b.stageSlots(stage)
		for i := len(target) - 1; i >= 0; i-- {
			if s := target[i]; s.Position >= position {
				steps = append(steps, Step{Deal: s.Deal, Stage: stage, Position: s.Position + 1})
			}
		}
	}
	steps = append(steps, Step{Deal: deal, Stage: stage, Position: position})

	if err := b.applyAll(steps); err != nil {
		return nil, err
	}
	return steps, nil
}

// Remove takes deal off the board and returns the compaction steps of its
// former stage in ascending order.
func (b *Board) Remove(deal snowflake.ID) ([]Step, error) {
	from, ok := b.slots[deal]
	if !ok {
		return nil, domain.ErrInvalidReference
	}

	var steps []Step
	for _, s := range b.stageSlots(from.Stage) {
		if s.Position > from.Position {
			steps = append(steps, Step{Deal: s.Deal, Stage: from.Stage, Position: s.Position - 1})
		}
	}
	if err := b.applyAll(steps, deal); err != nil {
		return nil, err
	}
	return steps, nil
}

// stageSlots returns the placed deals of stage sorted by position.
func (b *Board) stageSlots(stage snowflake.ID) []Slot {
	out := make([]Slot, 0)
	for _, s := range b.slots {
		if s.Stage == stage && s.Position != ParkPosition {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out
}

// applyAll takes removed off the board and runs steps against a copy. The
// board only changes when every step lands and the result is contiguous.
func (b *Board) applyAll(steps []Step, removed ...snowflake.ID) error {
	next := &Board{stages: b.stages, slots: maps.Clone(b.slots)}
	for _, deal := range removed {
		delete(next.slots, deal)
	}
	for _, step := range steps {
		if err := next.apply(step); err != nil {
			return err
		}
	}
	if err := next.Validate(); err != nil {
		return err
	}
	b.slots = next.slots
	return nil
}

// apply writes one step, failing when it would collide with another deal the
// way a unique (owner, stage, position) index would.
func (b *Board) apply(step Step) error {
	for _, s := range b.slots {
		if s.Deal != step.Deal && s.Stage == step.Stage && s.Position == step.Position {
			return fmt.Errorf("%w: %s and %s collide at %s/%d",
				domain.ErrInvariantViolation, s.Deal, step.Deal, step.Stage, step.Position)
		}
	}
	b.slots[step.Deal] = step
	return nil
}
