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

// Parser is a read cursor over a frozen cell: a position in the payload
// bits and a position in the reference list. Values are read big-endian,
// MSB-first. Every load operation is atomic: it either fully succeeds and
// advances the cursor, or fails and leaves the cursor where it was.
//
// A parser never modifies its cell; any number of parsers may read the same
// cell concurrently, but a single parser is not safe for concurrent use.
type Parser struct {
	cell   *Cell
	bitPos int
	refPos int
}

// RemainingBits returns the number of unread payload bits.
func (p *Parser) RemainingBits() int {
	return p.cell.bitLen - p.bitPos
}

// RemainingRefs returns the number of unread references.
func (p *Parser) RemainingRefs() int {
	return len(p.cell.refs) - p.refPos
}

// ensureBits fails with ErrBitOverrun if fewer than n bits remain.
func (p *Parser) ensureBits(n int) error {
	if remaining := p.RemainingBits(); remaining < n {
		return fmt.Errorf("%w: loading %d bits with %d remaining", ErrBitOverrun, n, remaining)
	}
	return nil
}

// LoadBit reads a single bit.
func (p *Parser) LoadBit() (bool, error) {
	if err := p.ensureBits(1); err != nil {
		return false, err
	}
	bit := getBit(p.cell.data, p.bitPos)
	p.bitPos++
	return bit, nil
}

// LoadBits reads n bits into a fresh byte buffer, aligned to the buffer's
// most significant bit.
func (p *Parser) LoadBits(n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("invalid bit count %d", n)
	}
	if err := p.ensureBits(n); err != nil {
		return nil, err
	}
	out := make([]byte, bitsToBytes(n))
	copyBits(out, 0, p.cell.data, p.bitPos, n)
	p.bitPos += n
	return out, nil
}

// LoadBytes reads n whole bytes.
func (p *Parser) LoadBytes(n int) ([]byte, error) {
	return p.LoadBits(n * 8)
}

// LoadUint reads an unsigned big-endian integer of up to 64 bits.
func (p *Parser) LoadUint(n int) (uint64, error) {
	if n < 0 || n > 64 {
		return 0, fmt.Errorf("invalid bit count %d for a 64-bit value", n)
	}
	if err := p.ensureBits(n); err != nil {
		return 0, err
	}
	var value uint64
	for i := 0; i < n; i++ {
		value <<= 1
		if getBit(p.cell.data, p.bitPos+i) {
			value |= 1
		}
	}
	p.bitPos += n
	return value, nil
}

// LoadU8 reads an unsigned integer of up to 8 bits.
func (p *Parser) LoadU8(n int) (uint8, error) {
	if n > 8 {
		return 0, fmt.Errorf("invalid bit count %d for an 8-bit value", n)
	}
	value, err := p.LoadUint(n)
	return uint8(value), err
}

// LoadU16 reads an unsigned integer of up to 16 bits.
func (p *Parser) LoadU16(n int) (uint16, error) {
	if n > 16 {
		return 0, fmt.Errorf("invalid bit count %d for a 16-bit value", n)
	}
	value, err := p.LoadUint(n)
	return uint16(value), err
}

// LoadU32 reads an unsigned integer of up to 32 bits.
func (p *Parser) LoadU32(n int) (uint32, error) {
	if n > 32 {
		return 0, fmt.Errorf("invalid bit count %d for a 32-bit value", n)
	}
	value, err := p.LoadUint(n)
	return uint32(value), err
}

// LoadU64 reads an unsigned integer of up to 64 bits.
func (p *Parser) LoadU64(n int) (uint64, error) {
	return p.LoadUint(n)
}

// LoadUint256 reads a 256-bit big-endian unsigned integer.
func (p *Parser) LoadUint256() (uint256.Int, error) {
	var value uint256.Int
	raw, err := p.LoadBits(256)
	if err != nil {
		return value, err
	}
	value.SetBytes(raw)
	return value, nil
}

// NextRef reads the next child reference.
func (p *Parser) NextRef() (*Cell, error) {
	if p.RemainingRefs() == 0 {
		return nil, fmt.Errorf("%w: all %d references consumed", ErrRefOverrun, len(p.cell.refs))
	}
	ref := p.cell.refs[p.refPos]
	p.refPos++
	return ref, nil
}

// LoadAddress reads an address in the raw MsgAddress format. Only the
// addr_none and anycast-free addr_std forms are supported; these cover the
// addresses appearing in account and configuration data.
func (p *Parser) LoadAddress() (common.Address, error) {
	save := *p
	addr, err := p.loadAddress()
	if err != nil {
		*p = save
	}
	return addr, err
}

func (p *Parser) loadAddress() (common.Address, error) {
	var addr common.Address
	tag, err := p.LoadUint(2)
	if err != nil {
		return addr, err
	}
	switch tag {
	case 0b00: // addr_none
		return addr, nil
	case 0b10: // addr_std
		anycast, err := p.LoadBit()
		if err != nil {
			return addr, err
		}
		if anycast {
			return addr, fmt.Errorf("anycast addresses are not supported")
		}
		workchain, err := p.LoadUint(8)
		if err != nil {
			return addr, err
		}
		id, err := p.LoadBits(256)
		if err != nil {
			return addr, err
		}
		addr.Workchain = int32(int8(workchain))
		copy(addr.ID[:], id)
		return addr, nil
	}
	return addr, fmt.Errorf("unsupported address tag %#b", tag)
}

// LoadSnakeBytes reads a byte payload continued through a chain of single
// references, the common layout of long byte strings in contract data.
// Every cell in the chain must hold a byte-aligned payload.
func (p *Parser) LoadSnakeBytes() ([]byte, error) {
	save := *p
	data, err := p.loadSnakeBytes()
	if err != nil {
		*p = save
	}
	return data, err
}

func (p *Parser) loadSnakeBytes() ([]byte, error) {
	var out []byte
	for {
		if p.RemainingBits()%8 != 0 {
			return nil, fmt.Errorf("%w: snake data with %d remaining bits is not byte aligned",
				ErrBitOverrun, p.RemainingBits())
		}
		chunk, err := p.LoadBits(p.RemainingBits())
		if err != nil {
			return nil, err
		}
		out = append(out, chunk...)
		if p.RemainingRefs() == 0 {
			return out, nil
		}
		if p.RemainingRefs() > 1 {
			return nil, fmt.Errorf("%w: snake data cell with %d references, wanted at most 1",
				ErrRefOverrun, p.RemainingRefs())
		}
		next, err := p.NextRef()
		if err != nil {
			return nil, err
		}
		*p = Parser{cell: next}
	}
}

// EnsureEmpty fails unless all bits and references have been consumed.
// It is used to detect trailing garbage after a complete structure.
func (p *Parser) EnsureEmpty() error {
	if bits, refs := p.RemainingBits(), p.RemainingRefs(); bits != 0 || refs != 0 {
		return fmt.Errorf("unconsumed content: %d bits, %d references", bits, refs)
	}
	return nil
}
