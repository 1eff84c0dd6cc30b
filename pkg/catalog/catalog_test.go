package catalog

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func block(head uint64, insts ...uint64) Block {
	return Block{Head: head, Instructions: append([]uint64{head}, insts...)}
}

func TestCatalog_LookupExact(t *testing.T) {
	c := New()
	c.Register(block(0x100, 0x104))
	c.Register(block(0x200, 0x204, 0x208))

	b, ok := c.Lookup(0x200)
	require.True(t, ok)
	assert.Equal(t, uint64(0x200), b.Head)
	assert.Equal(t, uint64(0x208), b.Tail())

	// repeated lookups hand back the same record
	again, ok := c.Lookup(0x200)
	require.True(t, ok)
	assert.Same(t, b, again)
}

func TestCatalog_LookupMidBlock(t *testing.T) {
	tests := []struct {
		name     string
		addr     uint64
		wantHead uint64
		wantOK   bool
	}{
		{name: "strictly inside", addr: 0x204, wantHead: 0x200, wantOK: true},
		{name: "unaligned inside", addr: 0x203, wantHead: 0x200, wantOK: true},
		{name: "tail is not inside", addr: 0x208, wantOK: false},
		{name: "before every block", addr: 0x10, wantOK: false},
		{name: "gap between blocks", addr: 0x150, wantOK: false},
	}

	c := New()
	c.Register(block(0x100, 0x104))
	c.Register(block(0x200, 0x204, 0x208))

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, ok := c.Lookup(tt.addr)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				require.NotNil(t, b)
				assert.Equal(t, tt.wantHead, b.Head)
			}
		})
	}
}

func TestCatalog_LookupOverlapPrefersLowestHead(t *testing.T) {
	for _, size := range []int{0, 8} {
		c := New(WithLookupCacheSize(size))
		c.Register(block(0x300, 0x320))
		c.Register(block(0x310, 0x318, 0x330))

		b, ok := c.Lookup(0x314)
		require.True(t, ok)
		assert.Equal(t, uint64(0x300), b.Head)
	}
}

func TestCatalog_RegisterReplaces(t *testing.T) {
	c := New()
	c.Register(block(0x100, 0x104))
	// cache the mid-block resolution before the block grows
	_, ok := c.Lookup(0x106)
	assert.False(t, ok)

	c.Register(Block{Head: 0x100, ContainsCall: true, ReturnAddress: 0x10c, Instructions: []uint64{0x100, 0x104, 0x108}})
	assert.Equal(t, 1, c.Len())

	b, ok := c.Lookup(0x100)
	require.True(t, ok)
	assert.True(t, b.ContainsCall)
	assert.Equal(t, uint64(0x10c), b.ReturnAddress)

	b, ok = c.Lookup(0x106)
	require.True(t, ok)
	assert.Equal(t, uint64(0x100), b.Head)
}

func TestCatalog_RegisterCopiesInstructions(t *testing.T) {
	c := New()
	in := block(0x100, 0x104)
	c.Register(in)
	in.Instructions[1] = 0x999

	b, _ := c.Block(0x100)
	assert.Equal(t, []uint64{0x100, 0x104}, b.Instructions)
}

func TestCatalog_MustLookup(t *testing.T) {
	c := New()
	c.Register(block(0x100, 0x104))

	_, err := c.MustLookup(0x500)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownAddress))
	assert.Contains(t, err.Error(), "0x500")
}

func TestCatalog_Heads(t *testing.T) {
	c := New()
	c.Register(block(0x300))
	c.Register(block(0x100))
	c.Register(block(0x200))
	assert.Equal(t, []uint64{0x100, 0x200, 0x300}, c.Heads())
}

func TestBlock_Validate(t *testing.T) {
	tests := []struct {
		name    string
		block   Block
		wantErr bool
	}{
		{name: "single instruction", block: block(0x100)},
		{name: "increasing", block: block(0x100, 0x104, 0x10a)},
		{name: "empty", block: Block{Head: 0x100}, wantErr: true},
		{name: "head mismatch", block: Block{Head: 0x100, Instructions: []uint64{0x104}}, wantErr: true},
		{name: "not increasing", block: block(0x100, 0x104, 0x104), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.block.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidBlock)
				return
			}
			assert.NoError(t, err)
		})
	}
}
