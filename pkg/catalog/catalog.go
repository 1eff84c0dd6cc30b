// Package catalog holds the static per-address basic block metadata that
// trace analysis resolves executed addresses against.
//
// Blocks are immutable once registered. Everything a trace learns about a
// block (loop back-edges, nesting hints) lives in the analysis session,
// so one populated Catalog can be shared read-only by many sessions.
package catalog

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultLookupCacheSize is the number of mid-block resolutions kept by a
// catalog created without options.
const DefaultLookupCacheSize = 4096

// ErrUnknownAddress is returned when an address resolves to no registered block.
var ErrUnknownAddress = errors.New("address not covered by any registered block")

// ErrInvalidBlock is returned by Validate for inconsistent block metadata.
var ErrInvalidBlock = errors.New("invalid block")

// Block is the static description of one basic block.
type Block struct {
	Head           uint64   `json:"head" yaml:"head" msgpack:"head"`
	ContainsCall   bool     `json:"contains_call" yaml:"contains_call" msgpack:"call"`
	ContainsReturn bool     `json:"contains_return" yaml:"contains_return" msgpack:"ret"`
	ReturnAddress  uint64   `json:"return_address,omitempty" yaml:"return_address,omitempty" msgpack:"retaddr"` // only meaningful if ContainsCall
	Instructions   []uint64 `json:"instructions" yaml:"instructions" msgpack:"insts"`
}

// Tail returns the address of the last instruction.
func (b *Block) Tail() uint64 {
	if len(b.Instructions) == 0 {
		return b.Head
	}
	return b.Instructions[len(b.Instructions)-1]
}

// Inside reports whether addr lies strictly between the block's head and tail.
func (b *Block) Inside(addr uint64) bool {
	return b.Head < addr && addr < b.Tail()
}

// Validate checks the instruction list: non-empty, strictly increasing and
// starting at Head.
func (b *Block) Validate() error {
	if len(b.Instructions) == 0 {
		return fmt.Errorf("%w 0x%x: no instructions", ErrInvalidBlock, b.Head)
	}
	if b.Instructions[0] != b.Head {
		return fmt.Errorf("%w 0x%x: first instruction is 0x%x", ErrInvalidBlock, b.Head, b.Instructions[0])
	}
	for i := 1; i < len(b.Instructions); i++ {
		if b.Instructions[i] <= b.Instructions[i-1] {
			return fmt.Errorf("%w 0x%x: instruction 0x%x out of order", ErrInvalidBlock, b.Head, b.Instructions[i])
		}
	}
	return nil
}

// Catalog is a registry of blocks keyed by head address.
type Catalog struct {
	mu     sync.RWMutex
	blocks map[uint64]*Block
	// mid-block address -> owning block, cleared on every Register
	inside *lru.Cache[uint64, *Block]
}

// Option configures a Catalog.
type Option func(*catalogOptions)

type catalogOptions struct {
	cacheSize int
}

// WithLookupCacheSize sets how many mid-block resolutions are cached.
// Zero disables the cache.
func WithLookupCacheSize(n int) Option {
	return func(o *catalogOptions) {
		o.cacheSize = n
	}
}

// New creates an empty Catalog.
func New(opts ...Option) *Catalog {
	o := catalogOptions{cacheSize: DefaultLookupCacheSize}
	for _, opt := range opts {
		opt(&o)
	}

	c := &Catalog{
		blocks: make(map[uint64]*Block),
	}
	if o.cacheSize > 0 {
		// lru.New only fails on a non-positive size
		c.inside, _ = lru.New[uint64, *Block](o.cacheSize)
	}
	return c
}

// Register inserts b, replacing any block previously registered at the
// same head. The catalog keeps its own copy.
func (c *Catalog) Register(b Block) *Block {
	stored := &Block{
		Head:           b.Head,
		ContainsCall:   b.ContainsCall,
		ContainsReturn: b.ContainsReturn,
		ReturnAddress:  b.ReturnAddress,
		Instructions:   append([]uint64(nil), b.Instructions...),
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.blocks[stored.Head] = stored
	if c.inside != nil {
		c.inside.Purge()
	}
	return stored
}

// Lookup resolves addr to a block. An exact head match wins; otherwise the
// block whose instruction range strictly contains addr is returned, lowest
// head first when ranges overlap.
func (c *Catalog) Lookup(addr uint64) (*Block, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if b, ok := c.blocks[addr]; ok {
		return b, true
	}
	if c.inside != nil {
		if b, ok := c.inside.Get(addr); ok {
			return b, true
		}
	}

	var found *Block
	for _, b := range c.blocks {
		if !b.Inside(addr) {
			continue
		}
		if found == nil || b.Head < found.Head {
			found = b
		}
	}
	if found == nil {
		return nil, false
	}
	if c.inside != nil {
		c.inside.Add(addr, found)
	}
	return found, true
}

// MustLookup is Lookup returning ErrUnknownAddress on a miss.
func (c *Catalog) MustLookup(addr uint64) (*Block, error) {
	b, ok := c.Lookup(addr)
	if !ok {
		return nil, fmt.Errorf("%w: 0x%x", ErrUnknownAddress, addr)
	}
	return b, nil
}

// Block returns the block registered exactly at head.
func (c *Catalog) Block(head uint64) (*Block, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	b, ok := c.blocks[head]
	return b, ok
}

// Len returns the number of registered blocks.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.blocks)
}

// Heads returns every registered head in ascending order.
func (c *Catalog) Heads() []uint64 {
	c.mu.RLock()
	heads := make([]uint64, 0, len(c.blocks))
	for h := range c.blocks {
		heads = append(heads, h)
	}
	c.mu.RUnlock()

	slices.Sort(heads)
	return heads
}
