//
// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE.TXT file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use
// of this software will be governed by the GNU Lesser General Public Licence v3.
//

package cell

import (
	"bytes"
	"errors"
	"testing"
)

func TestParser_ReadsBitsInWriteOrder(t *testing.T) {
	pattern := []bool{true, false, true, true, false, false, true, false, true}
	c := mustBuild(t, func(b *Builder) error {
		for _, bit := range pattern {
			if err := b.WriteBit(bit); err != nil {
				return err
			}
		}
		return nil
	})
	p := c.Parser()
	for i, want := range pattern {
		got, err := p.LoadBit()
		if err != nil {
			t.Fatalf("failed to load bit %d: %v", i, err)
		}
		if got != want {
			t.Errorf("invalid bit %d, got %t, wanted %t", i, got, want)
		}
	}
	if err := p.EnsureEmpty(); err != nil {
		t.Errorf("parser is not empty after loading all bits: %v", err)
	}
}

func TestParser_FailedLoadLeavesCursorUntouched(t *testing.T) {
	c := mustBuild(t, func(b *Builder) error {
		return b.WriteUint(0b1010, 4)
	})
	p := c.Parser()
	if _, err := p.LoadU8(8); !errors.Is(err, ErrBitOverrun) {
		t.Fatalf("loading 8 of 4 bits must fail with %v, got %v", ErrBitOverrun, err)
	}
	// The failed load must not have consumed anything.
	if got, want := p.RemainingBits(), 4; got != want {
		t.Fatalf("cursor moved on a failed load, %d bits remaining, wanted %d", got, want)
	}
	value, err := p.LoadUint(4)
	if err != nil {
		t.Fatalf("failed to load remaining bits: %v", err)
	}
	if got, want := value, uint64(0b1010); got != want {
		t.Errorf("invalid value, got %#b, wanted %#b", got, want)
	}
}

func TestParser_FailedAddressLoadLeavesCursorUntouched(t *testing.T) {
	// A valid addr_std tag followed by a truncated body.
	c := mustBuild(t, func(b *Builder) error {
		return b.WriteUint(0b100, 3)
	})
	p := c.Parser()
	if _, err := p.LoadAddress(); err == nil {
		t.Fatalf("loading a truncated address must fail")
	}
	if got, want := p.RemainingBits(), 3; got != want {
		t.Errorf("cursor moved on a failed address load, %d bits remaining, wanted %d", got, want)
	}
}

func TestParser_AnycastAddressesAreRejected(t *testing.T) {
	c := mustBuild(t, func(b *Builder) error {
		if err := b.WriteUint(0b101, 3); err != nil { // addr_std with anycast
			return err
		}
		return b.WriteBytes(make([]byte, 40))
	})
	if _, err := c.Parser().LoadAddress(); err == nil {
		t.Errorf("loading an anycast address must fail")
	}
}

func TestParser_LoadBitsAlignsToTheBufferStart(t *testing.T) {
	c := mustBuild(t, func(b *Builder) error {
		if err := b.WriteUint(0b101, 3); err != nil {
			return err
		}
		return b.WriteBytes([]byte{0xAB, 0xCD})
	})
	p := c.Parser()
	if _, err := p.LoadBits(3); err != nil {
		t.Fatalf("failed to skip prefix: %v", err)
	}
	got, err := p.LoadBits(16)
	if err != nil {
		t.Fatalf("failed to load bits: %v", err)
	}
	if want := []byte{0xAB, 0xCD}; !bytes.Equal(got, want) {
		t.Errorf("invalid bits, got %x, wanted %x", got, want)
	}
}

func TestParser_SizedLoadsRejectInvalidWidths(t *testing.T) {
	c := mustBuild(t, func(b *Builder) error {
		return b.WriteBytes(make([]byte, 16))
	})
	p := c.Parser()
	if _, err := p.LoadU8(9); err == nil {
		t.Errorf("loading 9 bits into 8 must fail")
	}
	if _, err := p.LoadU16(17); err == nil {
		t.Errorf("loading 17 bits into 16 must fail")
	}
	if _, err := p.LoadU32(33); err == nil {
		t.Errorf("loading 33 bits into 32 must fail")
	}
	if _, err := p.LoadUint(65); err == nil {
		t.Errorf("loading 65 bits into 64 must fail")
	}
	if _, err := p.LoadUint(-1); err == nil {
		t.Errorf("loading a negative bit count must fail")
	}
	if got, want := p.RemainingBits(), 128; got != want {
		t.Errorf("rejected loads moved the cursor, %d bits remaining, wanted %d", got, want)
	}
}

func TestParser_NextRefWalksTheReferenceList(t *testing.T) {
	a := mustBuild(t, func(b *Builder) error { return b.WriteUint(1, 8) })
	c := mustBuild(t, func(b *Builder) error { return b.WriteUint(2, 8) })
	parent := mustBuild(t, func(b *Builder) error {
		if err := b.WriteRef(a); err != nil {
			return err
		}
		return b.WriteRef(c)
	})
	p := parent.Parser()
	for i, want := range []*Cell{a, c} {
		got, err := p.NextRef()
		if err != nil {
			t.Fatalf("failed to load reference %d: %v", i, err)
		}
		if got.Hash() != want.Hash() {
			t.Errorf("invalid reference %d, got %s, wanted %s", i, got.Hash(), want.Hash())
		}
	}
	if _, err := p.NextRef(); !errors.Is(err, ErrRefOverrun) {
		t.Errorf("loading past the last reference must fail with %v, got %v", ErrRefOverrun, err)
	}
}

func TestParser_SnakeBytesFollowTheReferenceChain(t *testing.T) {
	payload := make([]byte, 300)
	for i := range payload {
		payload[i] = byte(i)
	}
	// Chain of three cells holding 127 + 127 + 46 bytes.
	tail := mustBuild(t, func(b *Builder) error {
		return b.WriteBytes(payload[254:])
	})
	middle := mustBuild(t, func(b *Builder) error {
		if err := b.WriteBytes(payload[127:254]); err != nil {
			return err
		}
		return b.WriteRef(tail)
	})
	head := mustBuild(t, func(b *Builder) error {
		if err := b.WriteBytes(payload[:127]); err != nil {
			return err
		}
		return b.WriteRef(middle)
	})
	got, err := head.Parser().LoadSnakeBytes()
	if err != nil {
		t.Fatalf("failed to load snake data: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("invalid snake data, got %d bytes, wanted %d", len(got), len(payload))
	}
}

func TestParser_SnakeBytesRejectUnalignedChunks(t *testing.T) {
	c := mustBuild(t, func(b *Builder) error {
		return b.WriteUint(0, 13)
	})
	if _, err := c.Parser().LoadSnakeBytes(); !errors.Is(err, ErrBitOverrun) {
		t.Errorf("loading unaligned snake data must fail with %v, got %v", ErrBitOverrun, err)
	}
}

func TestParser_SnakeBytesRejectBranchingChains(t *testing.T) {
	leaf := mustBuild(t, func(b *Builder) error { return nil })
	c := mustBuild(t, func(b *Builder) error {
		if err := b.WriteRef(leaf); err != nil {
			return err
		}
		return b.WriteRef(leaf)
	})
	if _, err := c.Parser().LoadSnakeBytes(); !errors.Is(err, ErrRefOverrun) {
		t.Errorf("loading branching snake data must fail with %v, got %v", ErrRefOverrun, err)
	}
}

func TestParser_EnsureEmptyDetectsTrailingContent(t *testing.T) {
	leaf := mustBuild(t, func(b *Builder) error { return nil })
	c := mustBuild(t, func(b *Builder) error {
		if err := b.WriteUint(1, 8); err != nil {
			return err
		}
		return b.WriteRef(leaf)
	})
	p := c.Parser()
	if err := p.EnsureEmpty(); err == nil {
		t.Errorf("an unread cell must not report as empty")
	}
	if _, err := p.LoadU8(8); err != nil {
		t.Fatalf("failed to load bits: %v", err)
	}
	if err := p.EnsureEmpty(); err == nil {
		t.Errorf("a cell with unread references must not report as empty")
	}
	if _, err := p.NextRef(); err != nil {
		t.Fatalf("failed to load reference: %v", err)
	}
	if err := p.EnsureEmpty(); err != nil {
		t.Errorf("a fully consumed cell must report as empty, got %v", err)
	}
}
