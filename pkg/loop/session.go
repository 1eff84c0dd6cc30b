// Package loop reconstructs loop nesting from a dynamic basic block trace.
//
// A Session consumes executed block addresses one at a time. It simulates
// the call stack from the call/return tags of consecutive blocks, treats a
// revisit of a block already on the current invocation's path as a loop
// back-edge, and folds iterations into one LoopInfo per loop head. Loops
// found inside a callee are handed back to the calling block and linked
// under the caller's loop when the session is finalized.
//
// Sessions are single-goroutine. Traces from different threads need one
// Session each; they may share a populated catalog.
package loop

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/l3aro/looptrace/internal/log"
	"github.com/l3aro/looptrace/pkg/catalog"
)

var (
	// ErrPathDesync means loop consolidation could not find the loop head
	// on the path it was located on.
	ErrPathDesync = errors.New("path desynchronized from loop head")

	// ErrRecoverable wraps diagnostics that a strict session refuses to
	// continue past.
	ErrRecoverable = errors.New("recoverable trace inconsistency")

	// ErrFinalized is returned when events are fed after Finalize.
	ErrFinalized = errors.New("session already finalized")
)

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the logger recoverable conditions are reported to.
func WithLogger(l log.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithStrict makes recoverable conditions abort processing with an error
// wrapping ErrRecoverable.
func WithStrict(strict bool) Option {
	return func(s *Session) {
		s.strict = strict
	}
}

// Session is the analysis state for one trace stream.
type Session struct {
	catalog *catalog.Catalog
	logger  log.Logger
	strict  bool

	stack callStack

	loops  map[uint64]*LoopInfo
	blocks map[uint64]*BlockState

	diagnostics []Diagnostic
	stats       Stats
	forest      *Forest
}

// NewSession creates a Session resolving addresses against cat.
func NewSession(cat *catalog.Catalog, opts ...Option) *Session {
	s := &Session{
		catalog: cat,
		logger:  log.Discard(),
		loops:   make(map[uint64]*LoopInfo),
		blocks:  make(map[uint64]*BlockState),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Process handles one executed block address. A returned error is fatal
// for this trace: the session state is no longer meaningful.
func (s *Session) Process(addr uint64) error {
	if s.forest != nil {
		return ErrFinalized
	}
	s.stats.Events++

	cur, err := s.catalog.MustLookup(addr)
	if err != nil {
		return err
	}

	if err := s.adjustCallStack(cur); err != nil {
		return err
	}

	frame := s.stack.top()
	if frame == nil {
		// nothing called into the traced code yet, e.g. the loader running
		s.stats.Skipped++
		return nil
	}

	return s.visit(frame, addr, cur)
}

// Run feeds every event in order and finalizes the session.
func (s *Session) Run(events []uint64) (*Forest, error) {
	for i, addr := range events {
		if err := s.Process(addr); err != nil {
			return nil, fmt.Errorf("event %d (0x%x): %w", i+1, addr, err)
		}
	}
	return s.Finalize()
}

// Depth returns the number of open call frames.
func (s *Session) Depth() int {
	return len(s.stack.frames)
}

// Top returns the innermost frame, or nil when the stack is empty.
func (s *Session) Top() *Frame {
	return s.stack.top()
}

// Frames returns the open frames, outermost first.
func (s *Session) Frames() []*Frame {
	return slices.Clone(s.stack.frames)
}

// Loop returns the loop headed at head.
func (s *Session) Loop(head uint64) (*LoopInfo, bool) {
	l, ok := s.loops[head]
	return l, ok
}

// LoopHeads returns the heads of every detected loop, ascending.
func (s *Session) LoopHeads() []uint64 {
	return slices.Sorted(maps.Keys(s.loops))
}

// BlockState returns the analysis annotations of the block at head.
func (s *Session) BlockState(head uint64) (*BlockState, bool) {
	b, ok := s.blocks[head]
	return b, ok
}

// Diagnostics returns the recoverable conditions met so far, in order.
func (s *Session) Diagnostics() []Diagnostic {
	return slices.Clone(s.diagnostics)
}

// Stats returns a snapshot of the session counters.
func (s *Session) Stats() Stats {
	return s.stats
}

func (s *Session) state(head uint64) *BlockState {
	b, ok := s.blocks[head]
	if !ok {
		b = newBlockState(head)
		s.blocks[head] = b
	}
	return b
}

// diagnose records a recoverable condition. In strict mode it is returned
// as an error instead of being tolerated.
func (s *Session) diagnose(kind DiagnosticKind, addr uint64, detail string) error {
	d := Diagnostic{Kind: kind, Event: s.stats.Events, Addr: addr, Detail: detail}
	s.diagnostics = append(s.diagnostics, d)
	s.logger.Warn(detail, "kind", string(kind), "addr", log.Hex(addr), "event", d.Event)

	if s.strict {
		return fmt.Errorf("%w: %s at 0x%x: %s", ErrRecoverable, kind, addr, detail)
	}
	return nil
}
