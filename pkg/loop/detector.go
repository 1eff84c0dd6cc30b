package loop

import (
	"fmt"

	"github.com/l3aro/looptrace/internal/log"
	"github.com/l3aro/looptrace/pkg/catalog"
)

// visit records cur as executed in frame, consolidating a loop when addr
// revisits a block already on the frame's path.
func (s *Session) visit(frame *Frame, addr uint64, cur *catalog.Block) error {
	i := s.locate(frame, addr)
	if i < 0 {
		frame.path = append(frame.path, PathEntry{BlockHead: cur.Head})
		return nil
	}
	return s.consolidate(frame, i)
}

// locate returns the index of the most recent path entry that addr
// revisits, either exactly or by landing strictly inside its block, or -1.
func (s *Session) locate(frame *Frame, addr uint64) int {
	for i := len(frame.path) - 1; i >= 0; i-- {
		head := frame.path[i].BlockHead
		if head == addr {
			return i
		}
		if head < addr {
			if b, ok := s.catalog.Block(head); ok && b.Inside(addr) {
				return i
			}
		}
	}
	return -1
}

// consolidate folds the iteration that just closed at frame.path[at] into
// the loop headed there and collapses the path back to the head.
func (s *Session) consolidate(frame *Frame, at int) error {
	if at < 0 || at >= len(frame.path) {
		return fmt.Errorf("%w: index %d of %d", ErrPathDesync, at, len(frame.path))
	}

	head := frame.path[at].BlockHead
	tail := frame.path[len(frame.path)-1].BlockHead

	loop, ok := s.loops[head]
	if !ok {
		loop = newLoopInfo(head)
		s.loops[head] = loop
		s.logger.Debug("new loop", "head", log.Hex(head))
	}

	s.state(tail).loopEdges.add(head)
	loop.sources.add(tail)
	frame.topLoops.add(head)

	loop.IterationCount++
	s.state(head).IterationCount++
	s.stats.BackEdges++

	for i := len(frame.path) - 1; i >= at; i-- {
		bh := frame.path[i].BlockHead
		b, ok := s.catalog.Block(bh)
		if !ok {
			return fmt.Errorf("%w: path entry 0x%x", catalog.ErrUnknownAddress, bh)
		}

		// last writer wins when loop bodies overlap
		s.state(bh).AssociatedTopLoop = head

		if bh != head {
			if _, nested := s.loops[bh]; nested {
				loop.addChild(bh)
			}
		}
		for _, inst := range b.Instructions {
			loop.instructions.add(inst)
		}
	}

	frame.path = frame.path[:at+1]
	return nil
}
