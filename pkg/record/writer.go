package record

import (
	"bufio"
	"fmt"
	"io"
	"strconv"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/l3aro/looptrace/pkg/catalog"
)

// Writer emits records in the text format.
type Writer struct {
	w   *bufio.Writer
	buf []byte
}

// NewWriter creates a Writer on w. Call Flush when done.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

func appendFlag(buf []byte, v bool) []byte {
	if v {
		return append(buf, '1', ',')
	}
	return append(buf, '0', ',')
}

func appendHex(buf []byte, v uint64) []byte {
	buf = strconv.AppendUint(buf, v, 16)
	return append(buf, ',')
}

// WriteBlock writes a block description record.
func (w *Writer) WriteBlock(b catalog.Block) error {
	buf := append(w.buf[:0], '0', '\n')
	buf = appendHex(buf, b.Head)
	buf = appendFlag(buf, b.ContainsCall)
	buf = appendFlag(buf, b.ContainsReturn)
	buf = appendHex(buf, b.ReturnAddress)
	for _, inst := range b.Instructions {
		buf = appendHex(buf, inst)
	}
	buf = append(buf, '\n')
	w.buf = buf
	_, err := w.w.Write(buf)
	return err
}

// WriteEvent writes an executed block record.
func (w *Writer) WriteEvent(addr uint64) error {
	buf := append(w.buf[:0], '1', '\n')
	buf = appendHex(buf, addr)
	buf = append(buf, '\n')
	w.buf = buf
	_, err := w.w.Write(buf)
	return err
}

// Flush writes any buffered data to the underlying writer.
func (w *Writer) Flush() error {
	return w.w.Flush()
}

// WriteText writes a whole recording, blocks first.
func WriteText(out io.Writer, rec *Recording) error {
	w := NewWriter(out)
	for _, b := range rec.Blocks {
		if err := w.WriteBlock(b); err != nil {
			return fmt.Errorf("writing block 0x%x: %w", b.Head, err)
		}
	}
	for _, addr := range rec.Events {
		if err := w.WriteEvent(addr); err != nil {
			return fmt.Errorf("writing event: %w", err)
		}
	}
	return w.Flush()
}

// WriteBinary encodes a recording as msgpack.
func WriteBinary(out io.Writer, rec *Recording) error {
	enc := msgpack.NewEncoder(out)
	enc.UseCompactInts(true)
	doc := *rec
	doc.Version = BinaryVersion
	if err := enc.Encode(&doc); err != nil {
		return fmt.Errorf("encoding recording: %w", err)
	}
	return nil
}

// ReadBinary decodes a msgpack recording and validates its blocks.
func ReadBinary(r io.Reader) (*Recording, error) {
	var rec Recording
	if err := msgpack.NewDecoder(r).Decode(&rec); err != nil {
		return nil, fmt.Errorf("%w: decoding binary recording: %v", ErrMalformedRecord, err)
	}
	if rec.Version != BinaryVersion {
		return nil, fmt.Errorf("%w: unsupported binary version %d", ErrMalformedRecord, rec.Version)
	}
	for i := range rec.Blocks {
		if err := rec.Blocks[i].Validate(); err != nil {
			return nil, fmt.Errorf("%w: block %d: %w", ErrMalformedRecord, i, err)
		}
	}
	return &rec, nil
}

// Write encodes a recording in the given format.
func Write(out io.Writer, rec *Recording, format Format) error {
	switch format {
	case FormatBinary:
		return WriteBinary(out, rec)
	case FormatText, "":
		return WriteText(out, rec)
	default:
		return fmt.Errorf("unknown recording format %q", format)
	}
}
