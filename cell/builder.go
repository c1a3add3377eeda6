// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package cell

import (
	"fmt"

	"github.com/cellforge/toncodec/common"
	"github.com/holiman/uint256"
)

// Builder is the mutable accumulation stage of a cell's two-phase
// lifecycle: bits and references are appended until Build freezes them into
// an immutable Cell with its hashes computed. A builder is not safe for
// concurrent use.
//
// Write operations report overruns immediately; the first failure is also
// latched so that a later Build cannot silently succeed when an
// intermediate write error was ignored.
type Builder struct {
	data   []byte
	bitLen int
	refs   []*Cell
	err    error
}

// NewBuilder creates an empty cell builder.
func NewBuilder() *Builder {
	return &Builder{data: make([]byte, 0, 128)}
}

// BitLen returns the number of bits written so far.
func (b *Builder) BitLen() int {
	return b.bitLen
}

// RefCount returns the number of references written so far.
func (b *Builder) RefCount() int {
	return len(b.refs)
}

// reserve checks capacity for n more bits and grows the data buffer.
func (b *Builder) reserve(n int) error {
	if b.err != nil {
		return b.err
	}
	if b.bitLen+n > MaxBits {
		b.err = fmt.Errorf("%w: writing %d bits to a builder holding %d exceeds the %d bit limit",
			ErrBitOverrun, n, b.bitLen, MaxBits)
		return b.err
	}
	for len(b.data) < bitsToBytes(b.bitLen+n) {
		b.data = append(b.data, 0)
	}
	return nil
}

// WriteBit appends a single bit.
func (b *Builder) WriteBit(bit bool) error {
	if err := b.reserve(1); err != nil {
		return err
	}
	if bit {
		setBit(b.data, b.bitLen)
	}
	b.bitLen++
	return nil
}

// WriteBits appends the first n bits of src, MSB-first.
func (b *Builder) WriteBits(src []byte, n int) error {
	if len(src)*8 < n {
		return fmt.Errorf("cannot write %d bits from a %d byte buffer", n, len(src))
	}
	if err := b.reserve(n); err != nil {
		return err
	}
	copyBits(b.data, b.bitLen, src, 0, n)
	b.bitLen += n
	return nil
}

// WriteBytes appends whole bytes.
func (b *Builder) WriteBytes(src []byte) error {
	return b.WriteBits(src, len(src)*8)
}

// WriteUint appends the lowest n bits of the given value, big-endian. The
// value must fit into n bits; a larger value is a programmer error reported
// as an ordinary error result.
func (b *Builder) WriteUint(value uint64, n int) error {
	if n < 0 || n > 64 {
		return fmt.Errorf("invalid bit count %d for a 64-bit value", n)
	}
	if n < 64 && value >= 1<<n {
		return fmt.Errorf("value %d does not fit into %d bits", value, n)
	}
	if err := b.reserve(n); err != nil {
		return err
	}
	for i := n - 1; i >= 0; i-- {
		if value&(1<<i) != 0 {
			setBit(b.data, b.bitLen+n-1-i)
		}
	}
	b.bitLen += n
	return nil
}

// WriteUint256 appends a 256-bit big-endian value.
func (b *Builder) WriteUint256(value *uint256.Int) error {
	bytes := value.Bytes32()
	return b.WriteBytes(bytes[:])
}

// WriteRef appends a child reference. The child is already frozen; an
// unfinished builder cannot be referenced.
func (b *Builder) WriteRef(child *Cell) error {
	if b.err != nil {
		return b.err
	}
	if len(b.refs) >= MaxRefs {
		b.err = fmt.Errorf("%w: a cell holds at most %d references", ErrRefOverrun, MaxRefs)
		return b.err
	}
	b.refs = append(b.refs, child)
	return nil
}

// WriteAddress appends an address in the raw MsgAddress format: addr_none
// for the empty address, addr_std without anycast otherwise.
func (b *Builder) WriteAddress(addr common.Address) error {
	if addr.IsNone() {
		return b.WriteUint(0, 2) // addr_none$00
	}
	if addr.Workchain < -128 || addr.Workchain > 127 {
		return fmt.Errorf("workchain %d does not fit into 8 bits", addr.Workchain)
	}
	if err := b.WriteUint(0b100, 3); err != nil { // addr_std$10, no anycast
		return err
	}
	if err := b.WriteUint(uint64(uint8(addr.Workchain)), 8); err != nil {
		return err
	}
	return b.WriteBytes(addr.ID[:])
}

// WriteCellData appends the payload bits and references of another cell.
func (b *Builder) WriteCellData(c *Cell) error {
	if err := b.WriteBits(c.data, c.bitLen); err != nil {
		return err
	}
	for _, ref := range c.refs {
		if err := b.WriteRef(ref); err != nil {
			return err
		}
	}
	return nil
}

// Build freezes the accumulated content into an ordinary cell.
func (b *Builder) Build() (*Cell, error) {
	if b.err != nil {
		return nil, b.err
	}
	return newCell(b.data, b.bitLen, b.refs, false)
}

// BuildExotic freezes the accumulated content into an exotic cell. The
// payload's leading type tag selects the variant, and the variant's shape
// constraints are validated before the cell is frozen.
func (b *Builder) BuildExotic() (*Cell, error) {
	if b.err != nil {
		return nil, b.err
	}
	return newCell(b.data, b.bitLen, b.refs, true)
}
