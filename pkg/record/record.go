// Package record reads and writes loop detection recordings: the block
// descriptions and the ordered trace of executed blocks produced by an
// instrumentation run.
//
// The text format is line oriented. Every record is a tag line followed by
// one payload line:
//
//	0
//	head,call,ret,retaddr,inst1,inst2,...,
//	1
//	head,
//
// Addresses are hexadecimal, call and ret are 0 or 1, and a trailing comma
// is allowed. Recordings can also be stored as msgpack (see WriteBinary).
package record

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/l3aro/looptrace/pkg/catalog"
)

// ErrMalformedRecord is returned for recordings that cannot be parsed.
var ErrMalformedRecord = errors.New("malformed record")

// maxLineSize bounds a single payload line; blocks carry one field per
// instruction.
const maxLineSize = 4 << 20

// Kind is the tag of a record.
type Kind int

const (
	KindBlock Kind = 0 // block description
	KindEvent Kind = 1 // executed block
)

func (k Kind) String() string {
	switch k {
	case KindBlock:
		return "block"
	case KindEvent:
		return "event"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Record is one parsed record. Block is set for KindBlock, Addr for KindEvent.
type Record struct {
	Kind  Kind
	Block catalog.Block
	Addr  uint64
}

// ParseError locates a malformed record in its input.
type ParseError struct {
	Line int
	Text string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: %v: %q", e.Line, e.Err, e.Text)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Recording is a fully loaded record stream.
type Recording struct {
	Version int             `msgpack:"version"`
	Blocks  []catalog.Block `msgpack:"blocks"`
	Events  []uint64        `msgpack:"events"`
}

// BinaryVersion is the version written by WriteBinary.
const BinaryVersion = 1

// Catalog registers every block of the recording in a new catalog, later
// descriptions of the same head replacing earlier ones.
func (rec *Recording) Catalog(opts ...catalog.Option) *catalog.Catalog {
	c := catalog.New(opts...)
	for _, b := range rec.Blocks {
		c.Register(b)
	}
	return c
}

// Reader parses the text format one record at a time.
type Reader struct {
	sc   *bufio.Scanner
	line int
}

// NewReader creates a Reader on r.
func NewReader(r io.Reader) *Reader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &Reader{sc: sc}
}

// Next returns the next record, or io.EOF after the last one.
func (r *Reader) Next() (Record, error) {
	tag, ok, err := r.nextLine()
	if err != nil {
		return Record{}, err
	}
	if !ok {
		return Record{}, io.EOF
	}
	tagLine := r.line

	var kind Kind
	switch tag {
	case "0":
		kind = KindBlock
	case "1":
		kind = KindEvent
	default:
		return Record{}, &ParseError{Line: tagLine, Text: tag, Err: fmt.Errorf("%w: unknown record tag", ErrMalformedRecord)}
	}

	payload, ok, err := r.nextLine()
	if err != nil {
		return Record{}, err
	}
	if !ok {
		return Record{}, &ParseError{Line: tagLine, Text: tag, Err: fmt.Errorf("%w: missing %s payload", ErrMalformedRecord, kind)}
	}

	switch kind {
	case KindBlock:
		b, err := ParseBlock(payload)
		if err != nil {
			return Record{}, &ParseError{Line: r.line, Text: payload, Err: err}
		}
		return Record{Kind: KindBlock, Block: b}, nil
	default:
		addr, err := ParseEvent(payload)
		if err != nil {
			return Record{}, &ParseError{Line: r.line, Text: payload, Err: err}
		}
		return Record{Kind: KindEvent, Addr: addr}, nil
	}
}

// nextLine returns the next non-blank line, trimmed.
func (r *Reader) nextLine() (string, bool, error) {
	for r.sc.Scan() {
		r.line++
		line := strings.TrimSpace(r.sc.Text())
		if line == "" {
			continue
		}
		return line, true, nil
	}
	if err := r.sc.Err(); err != nil {
		return "", false, fmt.Errorf("reading records: %w", err)
	}
	return "", false, nil
}

// fields splits a payload on commas, dropping one trailing empty field.
func fields(payload string) []string {
	parts := strings.Split(payload, ",")
	if len(parts) > 1 && strings.TrimSpace(parts[len(parts)-1]) == "" {
		parts = parts[:len(parts)-1]
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// ParseHex parses an address with or without a 0x prefix.
func ParseHex(s string) (uint64, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad address %q", ErrMalformedRecord, s)
	}
	return v, nil
}

func parseFlag(s string) (bool, error) {
	switch s {
	case "0":
		return false, nil
	case "1":
		return true, nil
	default:
		return false, fmt.Errorf("%w: bad flag %q", ErrMalformedRecord, s)
	}
}

// ParseBlock parses a block payload line.
func ParseBlock(payload string) (catalog.Block, error) {
	parts := fields(payload)
	if len(parts) < 5 {
		return catalog.Block{}, fmt.Errorf("%w: block needs at least 5 fields, got %d", ErrMalformedRecord, len(parts))
	}

	var (
		b   catalog.Block
		err error
	)
	if b.Head, err = ParseHex(parts[0]); err != nil {
		return catalog.Block{}, err
	}
	if b.ContainsCall, err = parseFlag(parts[1]); err != nil {
		return catalog.Block{}, err
	}
	if b.ContainsReturn, err = parseFlag(parts[2]); err != nil {
		return catalog.Block{}, err
	}
	if b.ReturnAddress, err = ParseHex(parts[3]); err != nil {
		return catalog.Block{}, err
	}

	b.Instructions = make([]uint64, 0, len(parts)-4)
	for _, p := range parts[4:] {
		inst, err := ParseHex(p)
		if err != nil {
			return catalog.Block{}, err
		}
		b.Instructions = append(b.Instructions, inst)
	}

	if err := b.Validate(); err != nil {
		return catalog.Block{}, fmt.Errorf("%w: %w", ErrMalformedRecord, err)
	}
	return b, nil
}

// ParseEvent parses an event payload line.
func ParseEvent(payload string) (uint64, error) {
	parts := fields(payload)
	if len(parts) != 1 {
		return 0, fmt.Errorf("%w: event needs 1 field, got %d", ErrMalformedRecord, len(parts))
	}
	return ParseHex(parts[0])
}

// ReadText loads a whole text recording.
func ReadText(r io.Reader) (*Recording, error) {
	rec := &Recording{Version: BinaryVersion}
	rd := NewReader(r)
	for {
		next, err := rd.Next()
		if errors.Is(err, io.EOF) {
			return rec, nil
		}
		if err != nil {
			return nil, err
		}
		switch next.Kind {
		case KindBlock:
			rec.Blocks = append(rec.Blocks, next.Block)
		case KindEvent:
			rec.Events = append(rec.Events, next.Addr)
		}
	}
}

// Format identifies a recording encoding.
type Format string

const (
	FormatText   Format = "text"
	FormatBinary Format = "binary"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(s)) {
	case FormatText:
		return FormatText, nil
	case FormatBinary, "msgpack":
		return FormatBinary, nil
	default:
		return "", fmt.Errorf("unknown recording format %q (use 'text' or 'binary')", s)
	}
}

// Load reads a recording in either encoding, telling them apart by the
// first byte: text recordings start with a tag digit or whitespace.
func Load(r io.Reader) (*Recording, Format, error) {
	br := bufio.NewReader(r)
	first, err := br.Peek(1)
	if errors.Is(err, io.EOF) {
		return &Recording{Version: BinaryVersion}, FormatText, nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("reading recording: %w", err)
	}

	switch first[0] {
	case '0', '1', ' ', '\t', '\r', '\n':
		rec, err := ReadText(br)
		return rec, FormatText, err
	default:
		rec, err := ReadBinary(br)
		return rec, FormatBinary, err
	}
}

// LoadFile opens path and loads the recording in it.
func LoadFile(path string) (*Recording, Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("opening recording: %w", err)
	}
	defer f.Close()

	rec, format, err := Load(f)
	if err != nil {
		return nil, "", fmt.Errorf("loading %s: %w", path, err)
	}
	return rec, format, nil
}
