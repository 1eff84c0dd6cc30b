package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/dominikbraun/graph/draw"
	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/vmihailenco/msgpack/v5"
	"gopkg.in/yaml.v3"
)

// Format is an output encoding for a report.
type Format string

const (
	FormatText    Format = "text"
	FormatJSON    Format = "json"
	FormatYAML    Format = "yaml"
	FormatMsgpack Format = "msgpack"
	FormatDOT     Format = "dot"
)

// Formats lists every supported output format.
var Formats = []Format{FormatText, FormatJSON, FormatYAML, FormatMsgpack, FormatDOT}

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Formats {
		if f == known {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown output format %q (use text, json, yaml, msgpack or dot)", s)
}

// TextOptions controls the text renderer.
type TextOptions struct {
	Color bool
	// ShowAddresses prints the address-to-loop map when the report has one.
	ShowAddresses bool
}

// Render writes the report in the given format.
func (r *Report) Render(w io.Writer, format Format, opts TextOptions) error {
	switch format {
	case FormatText, "":
		return r.WriteText(w, opts)
	case FormatJSON:
		return r.WriteJSON(w)
	case FormatYAML:
		return r.WriteYAML(w)
	case FormatMsgpack:
		return r.WriteMsgpack(w)
	case FormatDOT:
		return r.WriteDOT(w)
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

// WriteJSON writes the report as indented JSON.
func (r *Report) WriteJSON(w io.Writer) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// WriteYAML writes the report as YAML.
func (r *Report) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("marshaling YAML: %w", err)
	}
	return enc.Close()
}

// WriteMsgpack writes the report as a msgpack document.
func (r *Report) WriteMsgpack(w io.Writer) error {
	if err := msgpack.NewEncoder(w).Encode(r); err != nil {
		return fmt.Errorf("marshaling msgpack: %w", err)
	}
	return nil
}

// WriteDOT writes the loop forest as a Graphviz digraph.
func (r *Report) WriteDOT(w io.Writer) error {
	g, err := r.Graph()
	if err != nil {
		return err
	}
	if err := draw.DOT(g, w, draw.GraphAttribute("label", r.Source)); err != nil {
		return fmt.Errorf("rendering DOT: %w", err)
	}
	return nil
}

type palette struct {
	header *color.Color
	head   *color.Color
	faint  *color.Color
	warn   *color.Color
}

func newPalette(enabled bool) palette {
	p := palette{
		header: color.New(color.FgCyan, color.Bold),
		head:   color.New(color.FgMagenta),
		faint:  color.New(color.FgHiBlack),
		warn:   color.New(color.FgYellow),
	}
	for _, c := range []*color.Color{p.header, p.head, p.faint, p.warn} {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

func hex(addr uint64) string {
	return fmt.Sprintf("0x%x", addr)
}

func hexJoin(addrs []uint64) string {
	if len(addrs) == 0 {
		return "-"
	}
	parts := make([]string, len(addrs))
	for i, a := range addrs {
		parts[i] = hex(a)
	}
	return strings.Join(parts, ",")
}

func count[T ~int | ~uint64](n T) string {
	return humanize.Comma(int64(n))
}

// WriteText writes a human readable report. Loops are printed as a tree
// under their roots.
func (r *Report) WriteText(w io.Writer, opts TextOptions) error {
	p := newPalette(opts.Color)

	title := "=== Loop report ==="
	if r.Source != "" {
		title = fmt.Sprintf("=== Loop report: %s ===", r.Source)
	}
	fmt.Fprintln(w, p.header.Sprint(title))
	s := r.Stats
	fmt.Fprintf(w, "Events: %s (skipped %s)\n", count(s.Events), count(s.Skipped))
	fmt.Fprintf(w, "Frames: %s pushed, %s popped, max depth %d\n", count(s.FramesPushed), count(s.FramesPopped), s.MaxDepth)
	fmt.Fprintf(w, "Back-edges: %s\n", count(s.BackEdges))

	fmt.Fprintf(w, "\n%s\n", p.header.Sprintf("Loops (%d):", len(r.Loops)))
	if len(r.Loops) == 0 {
		fmt.Fprintln(w, p.faint.Sprint("  none"))
	} else {
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "  HEAD\tITERATIONS\tINSTRUCTIONS\tCHILDREN\tBACK-EDGES")
		for _, head := range r.treeOrder() {
			l, _ := r.Loop(head)
			indent := strings.Repeat("  ", max(l.Depth-1, 0))
			name := p.head.Sprint(hex(l.Head))
			if l.Recursive {
				name += p.faint.Sprint(" (recursive)")
			}
			fmt.Fprintf(tw, "  %s%s\t%s\t%s\t%s\t%s\n",
				indent, name, count(l.Iterations), count(l.InstructionCount),
				hexJoin(l.Children), hexJoin(l.BackEdges))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	if opts.ShowAddresses && len(r.Addresses) > 0 {
		fmt.Fprintf(w, "\n%s\n", p.header.Sprintf("Addresses (%d):", len(r.Addresses)))
		for _, o := range r.Addresses {
			fmt.Fprintf(w, "  %s -> %s\n", hex(o.Addr), p.head.Sprint(hex(o.Loop)))
		}
	}

	if len(r.Diagnostics) > 0 {
		fmt.Fprintf(w, "\n%s\n", p.warn.Sprintf("Diagnostics (%d):", len(r.Diagnostics)))
		for _, d := range r.Diagnostics {
			fmt.Fprintf(w, "  event %s at %s: %s: %s\n", count(d.Event), hex(d.Addr), d.Kind, d.Detail)
		}
	}
	return nil
}

// treeOrder lists loop heads depth first from each root, followed by loops
// reachable only through a cycle. Every loop appears once.
func (r *Report) treeOrder() []uint64 {
	order := make([]uint64, 0, len(r.Loops))
	seen := make(map[uint64]bool, len(r.Loops))

	var visit func(head uint64)
	visit = func(head uint64) {
		if seen[head] {
			return
		}
		seen[head] = true
		order = append(order, head)
		l, ok := r.Loop(head)
		if !ok {
			return
		}
		for _, child := range l.Children {
			visit(child)
		}
	}

	for _, root := range r.Roots {
		visit(root)
	}
	for _, l := range r.Loops {
		visit(l.Head)
	}
	return order
}

// RenderAll writes several reports. Structured formats get one document
// holding a list; text and DOT output are concatenated.
func RenderAll(w io.Writer, reports []*Report, format Format, opts TextOptions) error {
	switch format {
	case FormatJSON:
		data, err := json.MarshalIndent(reports, "", "  ")
		if err != nil {
			return fmt.Errorf("marshaling JSON: %w", err)
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(reports); err != nil {
			return fmt.Errorf("marshaling YAML: %w", err)
		}
		return enc.Close()
	case FormatMsgpack:
		if err := msgpack.NewEncoder(w).Encode(reports); err != nil {
			return fmt.Errorf("marshaling msgpack: %w", err)
		}
		return nil
	}

	for i, r := range reports {
		if i > 0 && format != FormatDOT {
			fmt.Fprintln(w)
		}
		if err := r.Render(w, format, opts); err != nil {
			return err
		}
	}
	return nil
}
