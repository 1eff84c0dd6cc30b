package loop

import (
	"maps"
	"slices"
)

// DiagnosticKind names a recoverable condition met while simulating the
// call stack.
type DiagnosticKind string

const (
	// DiagInvalidReturn: the return target is on the stack but unwinding
	// ran out of frames or reached a frame with no executed block.
	DiagInvalidReturn DiagnosticKind = "invalid_return"
	// DiagReturnNotOnStack: a return landed on an address no frame expects.
	DiagReturnNotOnStack DiagnosticKind = "return_not_on_stack"
	// DiagInvalidCall: a call was latched without a resumption address.
	DiagInvalidCall DiagnosticKind = "invalid_call"
	// DiagOrphanedInnerLoops: a popped frame's loops had no caller block to
	// attach to and were dropped.
	DiagOrphanedInnerLoops DiagnosticKind = "orphaned_inner_loops"
)

// Diagnostic records one recoverable condition.
type Diagnostic struct {
	Kind   DiagnosticKind `json:"kind" yaml:"kind" msgpack:"kind"`
	Event  uint64         `json:"event" yaml:"event" msgpack:"event"` // 1-based index of the trace event
	Addr   uint64         `json:"addr" yaml:"addr" msgpack:"addr"`
	Detail string         `json:"detail,omitempty" yaml:"detail,omitempty" msgpack:"detail,omitempty"`
}

// Stats counts what a session has seen so far.
type Stats struct {
	Events       uint64 `json:"events" yaml:"events" msgpack:"events"`
	Skipped      uint64 `json:"skipped" yaml:"skipped" msgpack:"skipped"` // events seen with an empty call stack
	FramesPushed uint64 `json:"frames_pushed" yaml:"frames_pushed" msgpack:"frames_pushed"`
	FramesPopped uint64 `json:"frames_popped" yaml:"frames_popped" msgpack:"frames_popped"`
	MaxDepth     int    `json:"max_depth" yaml:"max_depth" msgpack:"max_depth"`
	BackEdges    uint64 `json:"back_edges" yaml:"back_edges" msgpack:"back_edges"`
}

type set map[uint64]struct{}

func (s set) add(v uint64) { s[v] = struct{}{} }

func (s set) sorted() []uint64 {
	return slices.Sorted(maps.Keys(s))
}

// LoopInfo is one loop, identified by the head address back-edges land on.
// Relations to other loops are stored by head address.
type LoopInfo struct {
	Head           uint64
	IterationCount uint64
	// Recursive is set when the loop was reattached below itself, which
	// happens when a function containing it recurses.
	Recursive bool

	instructions set
	children     set
	sources      set
}

func newLoopInfo(head uint64) *LoopInfo {
	return &LoopInfo{
		Head:           head,
		IterationCount: 1,
		instructions:   make(set),
		children:       make(set),
		sources:        make(set),
	}
}

// Instructions returns the addresses of every instruction ever included in
// an iteration of the loop, ascending.
func (l *LoopInfo) Instructions() []uint64 {
	return l.instructions.sorted()
}

// InstructionCount returns len(Instructions()) without sorting.
func (l *LoopInfo) InstructionCount() int {
	return len(l.instructions)
}

// HasInstruction reports whether addr belongs to the loop.
func (l *LoopInfo) HasInstruction(addr uint64) bool {
	_, ok := l.instructions[addr]
	return ok
}

// Children returns the heads of nested loops, ascending.
func (l *LoopInfo) Children() []uint64 {
	return l.children.sorted()
}

// BackEdgeSources returns the heads of blocks observed jumping back to the
// loop head, ascending.
func (l *LoopInfo) BackEdgeSources() []uint64 {
	return l.sources.sorted()
}

func (l *LoopInfo) addChild(head uint64) {
	if head == l.Head {
		l.Recursive = true
		return
	}
	l.children.add(head)
}

// BlockState holds what the analysis learned about one block.
type BlockState struct {
	Head uint64
	// IterationCount counts re-entries of the block as a loop head.
	IterationCount uint64
	// AssociatedTopLoop is the head of the loop that most recently claimed
	// the block; 0 when none did. Later detections overwrite earlier ones.
	AssociatedTopLoop uint64

	loopEdges    set
	pendingInner set
}

func newBlockState(head uint64) *BlockState {
	return &BlockState{
		Head:         head,
		loopEdges:    make(set),
		pendingInner: make(set),
	}
}

// LoopEdges returns the loop heads this block was seen jumping back to.
func (b *BlockState) LoopEdges() []uint64 {
	return b.loopEdges.sorted()
}

// PendingInnerLoops returns loops discovered in callees invoked from this
// block, waiting to be attached to AssociatedTopLoop.
func (b *BlockState) PendingInnerLoops() []uint64 {
	return b.pendingInner.sorted()
}

// PathEntry is one block executed in the current invocation of a frame.
type PathEntry struct {
	BlockHead uint64
}

// Frame is one simulated call activation.
type Frame struct {
	ExpectedReturn uint64

	path     []PathEntry
	topLoops set
}

func newFrame(ret uint64) *Frame {
	return &Frame{
		ExpectedReturn: ret,
		topLoops:       make(set),
	}
}

// Path returns the block heads on the frame's path, oldest first.
func (f *Frame) Path() []uint64 {
	heads := make([]uint64, len(f.path))
	for i, e := range f.path {
		heads[i] = e.BlockHead
	}
	return heads
}

// TopLevelLoops returns heads of loops detected directly in this frame.
func (f *Frame) TopLevelLoops() []uint64 {
	return f.topLoops.sorted()
}

func (f *Frame) last() (PathEntry, bool) {
	if len(f.path) == 0 {
		return PathEntry{}, false
	}
	return f.path[len(f.path)-1], true
}
