package loop

import (
	"fmt"

	"github.com/l3aro/looptrace/internal/log"
	"github.com/l3aro/looptrace/pkg/catalog"
)

// callStack is the simulated stack plus the call/return latches derived
// from the previously processed block.
type callStack struct {
	frames []*Frame

	called         bool   // previous block ends in a call
	callReturnAddr uint64 // where that call resumes
	returned       bool   // previous block ends in a return
}

func (c *callStack) top() *Frame {
	if len(c.frames) == 0 {
		return nil
	}
	return c.frames[len(c.frames)-1]
}

func (c *callStack) push(f *Frame) {
	c.frames = append(c.frames, f)
}

func (c *callStack) pop() *Frame {
	n := len(c.frames)
	if n == 0 {
		return nil
	}
	f := c.frames[n-1]
	c.frames[n-1] = nil
	c.frames = c.frames[:n-1]
	return f
}

// expects reports whether some open frame resumes at addr.
func (c *callStack) expects(addr uint64) bool {
	for i := len(c.frames) - 1; i >= 0; i-- {
		if c.frames[i].ExpectedReturn == addr {
			return true
		}
	}
	return false
}

// latch derives the call/return latches from the block just processed.
func (c *callStack) latch(b *catalog.Block) {
	c.returned = b.ContainsReturn
	if b.ContainsCall {
		c.called = true
		c.callReturnAddr = b.ReturnAddress
	} else {
		c.called = false
		c.callReturnAddr = 0
	}
}

// adjustCallStack applies the transition implied by the previous block and
// latches the one implied by cur.
func (s *Session) adjustCallStack(cur *catalog.Block) error {
	switch {
	case s.stack.returned:
		if err := s.unwind(cur); err != nil {
			return err
		}
	case s.stack.called:
		if s.stack.callReturnAddr == 0 {
			if err := s.diagnose(DiagInvalidCall, cur.Head, "call latched without a return address"); err != nil {
				return err
			}
			break
		}
		s.stack.push(newFrame(s.stack.callReturnAddr))
		s.stats.FramesPushed++
		if d := len(s.stack.frames); d > s.stats.MaxDepth {
			s.stats.MaxDepth = d
		}
		s.logger.Debug("push frame", "ret", log.Hex(s.stack.callReturnAddr), "depth", len(s.stack.frames))
	}

	s.stack.latch(cur)
	return nil
}

// unwind pops frames until the innermost frame's last block is the call
// that resumes at dest.
func (s *Session) unwind(dest *catalog.Block) error {
	if !s.stack.expects(dest.Head) {
		return s.diagnose(DiagReturnNotOnStack, dest.Head, "return destination not on call stack")
	}

	for {
		frame := s.stack.top()
		if frame == nil {
			return s.diagnose(DiagInvalidReturn, dest.Head, "call stack exhausted while unwinding")
		}
		last, ok := frame.last()
		if !ok {
			return s.diagnose(DiagInvalidReturn, dest.Head, "unwound into a frame with no executed block")
		}

		caller, ok := s.catalog.Block(last.BlockHead)
		if !ok {
			return fmt.Errorf("%w: path entry 0x%x", catalog.ErrUnknownAddress, last.BlockHead)
		}
		if caller.ReturnAddress == dest.Head {
			return nil
		}

		if err := s.popFrame(); err != nil {
			return err
		}
	}
}

// popFrame discards the innermost frame and hands its top-level loops to
// the block the caller is executing.
func (s *Session) popFrame() error {
	frame := s.stack.pop()
	if frame == nil {
		return nil
	}
	s.stats.FramesPopped++
	s.logger.Debug("pop frame", "ret", log.Hex(frame.ExpectedReturn), "depth", len(s.stack.frames))

	return s.inheritInnerLoops(frame)
}
