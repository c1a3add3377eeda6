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
	"bytes"
	"encoding/binary"
	"fmt"
	"math/bits"

	"github.com/cellforge/toncodec/common"
)

// Exotic cells carry a one-byte type tag at the start of their payload,
// followed by a fixed-shape body. The shapes are closed and enumerable, so
// they are validated exhaustively when a cell is frozen; a malformed exotic
// cell can never enter the DAG.

const (
	tagPrunedBranch byte = 1
	tagLibrary      byte = 2
	tagMerkleProof  byte = 3
	tagMerkleUpdate byte = 4
)

const (
	prunedBranchHeaderBits = 16       // tag + level mask
	libraryCellBits        = 8 + 256  // tag + library hash
	merkleProofBits        = 8 + 256 + 16
	merkleUpdateBits       = 8 + 2*256 + 2*16
)

// resolveExoticType maps the payload tag of an exotic cell to its type.
func resolveExoticType(data []byte, bitLen int) (CellType, error) {
	if bitLen < 8 {
		return 0, fmt.Errorf("%w: exotic cell with %d bits cannot hold a type tag", ErrInvalidExoticShape, bitLen)
	}
	switch data[0] {
	case tagPrunedBranch:
		return PrunedBranchCell, nil
	case tagLibrary:
		return LibraryCell, nil
	case tagMerkleProof:
		return MerkleProofCell, nil
	case tagMerkleUpdate:
		return MerkleUpdateCell, nil
	}
	return 0, fmt.Errorf("%w: unknown exotic cell tag %d", ErrInvalidExoticShape, data[0])
}

// resolveLevelMask derives the cell's level mask from its type and children
// and validates the type-specific payload shape.
func (c *Cell) resolveLevelMask() error {
	switch c.cellType {
	case OrdinaryCell:
		var mask LevelMask
		for _, ref := range c.refs {
			mask |= ref.levelMask
		}
		c.levelMask = mask
		return nil
	case PrunedBranchCell:
		return c.validatePrunedBranch()
	case LibraryCell:
		return c.validateLibrary()
	case MerkleProofCell:
		return c.validateMerkleProof()
	case MerkleUpdateCell:
		return c.validateMerkleUpdate()
	}
	return fmt.Errorf("%w: unsupported cell type %d", ErrInvalidExoticShape, c.cellType)
}

func (c *Cell) validatePrunedBranch() error {
	if len(c.refs) != 0 {
		return fmt.Errorf("%w: pruned branch with %d references, wanted 0", ErrInvalidExoticShape, len(c.refs))
	}
	if c.bitLen < prunedBranchHeaderBits {
		return fmt.Errorf("%w: pruned branch with %d bits cannot hold its header", ErrInvalidExoticShape, c.bitLen)
	}
	mask := LevelMask(c.data[1])
	if mask == 0 || mask.Level() > maxLevel {
		return fmt.Errorf("%w: pruned branch level mask %#x out of range", ErrInvalidExoticShape, byte(mask))
	}
	stored := bits.OnesCount8(uint8(mask))
	if want := prunedBranchHeaderBits + stored*(256+16); c.bitLen != want {
		return fmt.Errorf("%w: pruned branch with %d bits, wanted %d for level mask %#x",
			ErrInvalidExoticShape, c.bitLen, want, byte(mask))
	}
	c.levelMask = mask
	return nil
}

func (c *Cell) validateLibrary() error {
	if len(c.refs) != 0 {
		return fmt.Errorf("%w: library cell with %d references, wanted 0", ErrInvalidExoticShape, len(c.refs))
	}
	if c.bitLen != libraryCellBits {
		return fmt.Errorf("%w: library cell with %d bits, wanted %d", ErrInvalidExoticShape, c.bitLen, libraryCellBits)
	}
	c.levelMask = 0
	return nil
}

func (c *Cell) validateMerkleProof() error {
	if len(c.refs) != 1 {
		return fmt.Errorf("%w: merkle proof with %d references, wanted 1", ErrInvalidExoticShape, len(c.refs))
	}
	if c.bitLen != merkleProofBits {
		return fmt.Errorf("%w: merkle proof with %d bits, wanted %d", ErrInvalidExoticShape, c.bitLen, merkleProofBits)
	}
	ref := c.refs[0]
	if stored, actual := c.data[1:33], ref.HashAtLevel(0); !bytes.Equal(stored, actual[:]) {
		return fmt.Errorf("%w: merkle proof hash %x does not match reference hash %s",
			ErrInvalidExoticShape, stored, actual)
	}
	if stored, actual := binary.BigEndian.Uint16(c.data[33:35]), ref.DepthAtLevel(0); stored != actual {
		return fmt.Errorf("%w: merkle proof depth %d does not match reference depth %d",
			ErrInvalidExoticShape, stored, actual)
	}
	c.levelMask = ref.levelMask >> 1
	return nil
}

func (c *Cell) validateMerkleUpdate() error {
	if len(c.refs) != 2 {
		return fmt.Errorf("%w: merkle update with %d references, wanted 2", ErrInvalidExoticShape, len(c.refs))
	}
	if c.bitLen != merkleUpdateBits {
		return fmt.Errorf("%w: merkle update with %d bits, wanted %d", ErrInvalidExoticShape, c.bitLen, merkleUpdateBits)
	}
	for i, ref := range c.refs {
		if stored, actual := c.data[1+i*32:33+i*32], ref.HashAtLevel(0); !bytes.Equal(stored, actual[:]) {
			return fmt.Errorf("%w: merkle update hash %x of branch %d does not match reference hash %s",
				ErrInvalidExoticShape, stored, i, actual)
		}
		if stored, actual := binary.BigEndian.Uint16(c.data[65+i*2:67+i*2]), ref.DepthAtLevel(0); stored != actual {
			return fmt.Errorf("%w: merkle update depth %d of branch %d does not match reference depth %d",
				ErrInvalidExoticShape, stored, i, actual)
		}
	}
	c.levelMask = (c.refs[0].levelMask | c.refs[1].levelMask) >> 1
	return nil
}

// NewLibraryCell creates a library reference cell naming library code by
// its representation hash.
func NewLibraryCell(code common.Hash) (*Cell, error) {
	b := NewBuilder()
	if err := b.WriteUint(uint64(tagLibrary), 8); err != nil {
		return nil, err
	}
	if err := b.WriteBytes(code[:]); err != nil {
		return nil, err
	}
	return b.BuildExotic()
}

// NewMerkleProof wraps the given cell into a merkle proof cell carrying the
// cell's level-0 hash and depth.
func NewMerkleProof(content *Cell) (*Cell, error) {
	b := NewBuilder()
	hash := content.HashAtLevel(0)
	if err := b.WriteUint(uint64(tagMerkleProof), 8); err != nil {
		return nil, err
	}
	if err := b.WriteBytes(hash[:]); err != nil {
		return nil, err
	}
	if err := b.WriteUint(uint64(content.DepthAtLevel(0)), 16); err != nil {
		return nil, err
	}
	if err := b.WriteRef(content); err != nil {
		return nil, err
	}
	return b.BuildExotic()
}

// NewPrunedBranch creates a level-1 pruned branch standing in for the given
// subtree, carrying its hash and depth.
func NewPrunedBranch(pruned *Cell) (*Cell, error) {
	b := NewBuilder()
	hash := pruned.HashAtLevel(0)
	if err := b.WriteUint(uint64(tagPrunedBranch), 8); err != nil {
		return nil, err
	}
	if err := b.WriteUint(1, 8); err != nil { // level mask 1
		return nil, err
	}
	if err := b.WriteBytes(hash[:]); err != nil {
		return nil, err
	}
	if err := b.WriteUint(uint64(pruned.DepthAtLevel(0)), 16); err != nil {
		return nil, err
	}
	return b.BuildExotic()
}

// prunedHash reads the idx-th pruned subtree hash from the payload.
func (c *Cell) prunedHash(idx int) common.Hash {
	var h common.Hash
	copy(h[:], c.data[2+idx*32:])
	return h
}

// prunedDepth reads the idx-th pruned subtree depth from the payload.
func (c *Cell) prunedDepth(idx int) uint16 {
	stored := bits.OnesCount8(uint8(c.levelMask))
	return binary.BigEndian.Uint16(c.data[2+stored*32+idx*2:])
}
