// Package report turns a finished analysis session into a loop report and
// renders it as text, JSON, YAML, msgpack or Graphviz DOT.
package report

import (
	"cmp"
	"errors"
	"fmt"
	"slices"

	"github.com/dominikbraun/graph"

	"github.com/l3aro/looptrace/pkg/loop"
)

// Loop is one entry of the report.
type Loop struct {
	Head             uint64   `json:"head" yaml:"head" msgpack:"head"`
	Iterations       uint64   `json:"iterations" yaml:"iterations" msgpack:"iterations"`
	InstructionCount int      `json:"instruction_count" yaml:"instruction_count" msgpack:"instruction_count"`
	Children         []uint64 `json:"children" yaml:"children" msgpack:"children"`
	BackEdges        []uint64 `json:"back_edges" yaml:"back_edges" msgpack:"back_edges"`
	Recursive        bool     `json:"recursive,omitempty" yaml:"recursive,omitempty" msgpack:"recursive,omitempty"`
	Depth            int      `json:"depth" yaml:"depth" msgpack:"depth"`
	Instructions     []uint64 `json:"instructions,omitempty" yaml:"instructions,omitempty" msgpack:"instructions,omitempty"`
}

// Owner maps an instruction address to the loop owning it.
type Owner struct {
	Addr uint64 `json:"addr" yaml:"addr" msgpack:"addr"`
	Loop uint64 `json:"loop" yaml:"loop" msgpack:"loop"`
}

// Report is the result of analyzing one trace.
type Report struct {
	Source      string            `json:"source,omitempty" yaml:"source,omitempty" msgpack:"source,omitempty"`
	Loops       []Loop            `json:"loops" yaml:"loops" msgpack:"loops"`
	Roots       []uint64          `json:"roots" yaml:"roots" msgpack:"roots"`
	Stats       loop.Stats        `json:"stats" yaml:"stats" msgpack:"stats"`
	Diagnostics []loop.Diagnostic `json:"diagnostics" yaml:"diagnostics" msgpack:"diagnostics"`
	Addresses   []Owner           `json:"addresses,omitempty" yaml:"addresses,omitempty" msgpack:"addresses,omitempty"`
}

// BuildOption configures Build.
type BuildOption func(*buildOptions)

type buildOptions struct {
	instructions bool
}

// WithInstructions includes every loop's instruction set and the
// address-to-loop map in the report.
func WithInstructions(enabled bool) BuildOption {
	return func(o *buildOptions) {
		o.instructions = enabled
	}
}

// Build finalizes the session and collects its loops. source names the
// analyzed recording and may be empty.
func Build(source string, s *loop.Session, opts ...BuildOption) (*Report, error) {
	var o buildOptions
	for _, opt := range opts {
		opt(&o)
	}

	forest, err := s.Finalize()
	if err != nil {
		return nil, fmt.Errorf("finalizing loop forest: %w", err)
	}

	r := &Report{
		Source:      source,
		Loops:       make([]Loop, 0, forest.Len()),
		Stats:       s.Stats(),
		Diagnostics: s.Diagnostics(),
	}
	for _, l := range forest.Loops() {
		entry := Loop{
			Head:             l.Head,
			Iterations:       l.IterationCount,
			InstructionCount: l.InstructionCount(),
			Children:         l.Children(),
			BackEdges:        l.BackEdgeSources(),
			Recursive:        l.Recursive,
		}
		if o.instructions {
			entry.Instructions = l.Instructions()
		}
		r.Loops = append(r.Loops, entry)
	}

	if o.instructions {
		owners := forest.InstructionOwners()
		r.Addresses = make([]Owner, 0, len(owners))
		for addr, head := range owners {
			r.Addresses = append(r.Addresses, Owner{Addr: addr, Loop: head})
		}
		slices.SortFunc(r.Addresses, func(a, b Owner) int {
			return cmp.Compare(a.Addr, b.Addr)
		})
	}

	if err := r.computeDepths(); err != nil {
		return nil, err
	}
	return r, nil
}

// Loop returns the entry for head.
func (r *Report) Loop(head uint64) (Loop, bool) {
	i, ok := slices.BinarySearchFunc(r.Loops, head, func(l Loop, h uint64) int {
		return cmp.Compare(l.Head, h)
	})
	if !ok {
		return Loop{}, false
	}
	return r.Loops[i], true
}

func loopHash(head uint64) uint64 { return head }

// Graph returns the loop forest as a directed graph of parent to child
// edges. Vertices carry a DOT label.
func (r *Report) Graph() (graph.Graph[uint64, uint64], error) {
	g := graph.New(loopHash, graph.Directed())
	for _, l := range r.Loops {
		label := fmt.Sprintf("0x%x x%d", l.Head, l.Iterations)
		if err := g.AddVertex(l.Head, graph.VertexAttribute("label", label)); err != nil {
			return nil, fmt.Errorf("adding loop 0x%x: %w", l.Head, err)
		}
	}
	for _, l := range r.Loops {
		for _, child := range l.Children {
			err := g.AddEdge(l.Head, child)
			if err != nil && !errors.Is(err, graph.ErrEdgeAlreadyExists) {
				return nil, fmt.Errorf("adding edge 0x%x -> 0x%x: %w", l.Head, child, err)
			}
		}
	}
	return g, nil
}

// computeDepths fills Roots and every loop's Depth. Roots are loops nobody
// adopted; depth is the breadth-first distance from the nearest root plus
// one. Loops reachable only through a cycle are walked as extra roots.
func (r *Report) computeDepths() error {
	g, err := r.Graph()
	if err != nil {
		return err
	}
	adj, err := g.AdjacencyMap()
	if err != nil {
		return fmt.Errorf("reading loop forest: %w", err)
	}
	preds, err := g.PredecessorMap()
	if err != nil {
		return fmt.Errorf("reading loop forest: %w", err)
	}

	r.Roots = []uint64{}
	depth := make(map[uint64]int, len(r.Loops))
	walk := func(start uint64) {
		depth[start] = 1
		queue := []uint64{start}
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			for _, next := range sortedKeys(adj[cur]) {
				if _, seen := depth[next]; seen {
					continue
				}
				depth[next] = depth[cur] + 1
				queue = append(queue, next)
			}
		}
	}

	for _, l := range r.Loops {
		if len(preds[l.Head]) == 0 {
			r.Roots = append(r.Roots, l.Head)
			walk(l.Head)
		}
	}
	for _, l := range r.Loops {
		if _, seen := depth[l.Head]; !seen {
			walk(l.Head)
		}
	}

	for i := range r.Loops {
		r.Loops[i].Depth = depth[r.Loops[i].Head]
	}
	return nil
}

func sortedKeys[V any](m map[uint64]V) []uint64 {
	keys := make([]uint64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
