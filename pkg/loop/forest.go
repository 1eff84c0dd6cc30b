package loop

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// inheritInnerLoops attributes the loops detected directly in a popped
// frame to the block its caller is currently executing.
func (s *Session) inheritInnerLoops(popped *Frame) error {
	if len(popped.topLoops) == 0 {
		return nil
	}
	caller := s.stack.top()
	if caller == nil {
		return nil
	}

	last, ok := caller.last()
	if !ok {
		return s.diagnose(DiagOrphanedInnerLoops, popped.ExpectedReturn,
			fmt.Sprintf("inner loops %s have no calling block, discarded", hexList(popped.TopLevelLoops())))
	}

	pending := s.state(last.BlockHead).pendingInner
	for head := range popped.topLoops {
		pending.add(head)
	}
	return nil
}

// Forest is the finished set of loops of one trace, linked by nesting.
type Forest struct {
	loops map[uint64]*LoopInfo
	// cached InstructionOwners result
	owners map[uint64]uint64
}

// Finalize links loops discovered in callees under the loop enclosing
// their call site and returns the resulting forest. It is idempotent; no
// events may be processed afterwards.
func (s *Session) Finalize() (*Forest, error) {
	if s.forest != nil {
		return s.forest, nil
	}

	for _, head := range slices.Sorted(maps.Keys(s.blocks)) {
		b := s.blocks[head]
		if len(b.pendingInner) == 0 || b.AssociatedTopLoop == 0 {
			continue
		}
		parent, ok := s.loops[b.AssociatedTopLoop]
		if !ok {
			return nil, fmt.Errorf("block 0x%x associated with unknown loop 0x%x", head, b.AssociatedTopLoop)
		}
		for _, inner := range b.pendingInner.sorted() {
			if _, ok := s.loops[inner]; !ok {
				continue
			}
			parent.addChild(inner)
		}
	}

	s.forest = &Forest{loops: s.loops}
	return s.forest, nil
}

// Len returns the number of loops.
func (f *Forest) Len() int {
	return len(f.loops)
}

// Heads returns every loop head, ascending.
func (f *Forest) Heads() []uint64 {
	return slices.Sorted(maps.Keys(f.loops))
}

// Loop returns the loop headed at head.
func (f *Forest) Loop(head uint64) (*LoopInfo, bool) {
	l, ok := f.loops[head]
	return l, ok
}

// Loops returns every loop ordered by head.
func (f *Forest) Loops() []*LoopInfo {
	out := make([]*LoopInfo, 0, len(f.loops))
	for _, h := range f.Heads() {
		out = append(out, f.loops[h])
	}
	return out
}

// InstructionOwners maps every instruction address to the head of a loop
// containing it. Loops are visited in ascending head order and a later
// loop overwrites an earlier one, so overlapping bodies resolve to the
// loop with the highest head rather than the innermost.
func (f *Forest) InstructionOwners() map[uint64]uint64 {
	if f.owners != nil {
		return f.owners
	}
	owners := make(map[uint64]uint64)
	for _, l := range f.Loops() {
		for inst := range l.instructions {
			owners[inst] = l.Head
		}
	}
	f.owners = owners
	return owners
}

func hexList(addrs []uint64) string {
	parts := make([]string, len(addrs))
	for i, a := range addrs {
		parts[i] = fmt.Sprintf("0x%x", a)
	}
	return "[" + strings.Join(parts, " ") + "]"
}
