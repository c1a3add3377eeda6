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
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/cellforge/toncodec/common"
)

const (
	// MaxBits is the maximum number of payload bits a single cell can hold.
	MaxBits = 1023

	// MaxRefs is the maximum number of child references of a single cell.
	MaxRefs = 4

	// maxDepth bounds the height of a cell tree. Deeper structures are
	// rejected during construction so that hostile input cannot grow
	// unbounded reference chains.
	maxDepth = 1024
)

const errDepthLimit = common.ConstError("cell depth limit exceeded")

// CellType distinguishes plain data cells from the exotic variants taking
// part in Merkle proofs and library references.
type CellType byte

const (
	OrdinaryCell CellType = iota
	PrunedBranchCell
	LibraryCell
	MerkleProofCell
	MerkleUpdateCell
)

func (t CellType) String() string {
	switch t {
	case OrdinaryCell:
		return "ordinary"
	case PrunedBranchCell:
		return "pruned-branch"
	case LibraryCell:
		return "library"
	case MerkleProofCell:
		return "merkle-proof"
	case MerkleUpdateCell:
		return "merkle-update"
	}
	return "unknown"
}

// Cell is an immutable node of up to 1023 data bits and up to 4 ordered
// child references. Cells form a DAG: the same child may be shared by any
// number of parents. Instances are created by a Builder or by parsing a
// bag of cells; once frozen, a cell is never mutated and is safe for
// concurrent use.
type Cell struct {
	data      []byte // exactly bitsToBytes(bitLen) bytes, tail bits zero
	bitLen    int
	refs      []*Cell
	cellType  CellType
	levelMask LevelMask

	// Representation hashes and depths, one per significant level, in
	// ascending level order. Computed once when the cell is frozen.
	hashes []common.Hash
	depths []uint16
}

// newCell freezes the given content into a cell. The data slice is copied;
// trailing bits beyond bitLen are cleared. All referenced cells must
// already be frozen, which the public API guarantees by construction.
func newCell(data []byte, bitLen int, refs []*Cell, exotic bool) (*Cell, error) {
	if bitLen < 0 || bitLen > MaxBits {
		return nil, fmt.Errorf("%w: %d bits exceed the %d bit limit", ErrBitOverrun, bitLen, MaxBits)
	}
	if len(refs) > MaxRefs {
		return nil, fmt.Errorf("%w: %d references exceed the %d reference limit", ErrRefOverrun, len(refs), MaxRefs)
	}
	if len(data) < bitsToBytes(bitLen) {
		return nil, fmt.Errorf("%w: %d bits declared but only %d bytes of data", ErrBitOverrun, bitLen, len(data))
	}

	content := make([]byte, bitsToBytes(bitLen))
	copy(content, data)
	maskTail(content, bitLen)

	c := &Cell{
		data:     content,
		bitLen:   bitLen,
		refs:     append([]*Cell(nil), refs...),
		cellType: OrdinaryCell,
	}
	if exotic {
		cellType, err := resolveExoticType(content, bitLen)
		if err != nil {
			return nil, err
		}
		c.cellType = cellType
	}
	if err := c.resolveLevelMask(); err != nil {
		return nil, err
	}
	if err := c.computeHashes(); err != nil {
		return nil, err
	}
	return c, nil
}

// BitLen returns the number of payload bits.
func (c *Cell) BitLen() int {
	return c.bitLen
}

// Data returns a copy of the payload bytes. Bits past BitLen are zero.
func (c *Cell) Data() []byte {
	return append([]byte(nil), c.data...)
}

// RefCount returns the number of child references.
func (c *Cell) RefCount() int {
	return len(c.refs)
}

// Ref returns the i-th child. The index must be in range; an out-of-range
// index is a programmer error and panics.
func (c *Cell) Ref(i int) *Cell {
	return c.refs[i]
}

// Refs returns the ordered child references.
func (c *Cell) Refs() []*Cell {
	return append([]*Cell(nil), c.refs...)
}

// Type returns the cell's type tag.
func (c *Cell) Type() CellType {
	return c.cellType
}

// IsExotic reports whether the cell is of any type other than ordinary.
func (c *Cell) IsExotic() bool {
	return c.cellType != OrdinaryCell
}

// LevelMask returns the cell's Merkle level mask.
func (c *Cell) LevelMask() LevelMask {
	return c.levelMask
}

// Level returns the cell's Merkle level (0..=3).
func (c *Cell) Level() int {
	return c.levelMask.Level()
}

// Hash returns the representation hash of the cell, the content address
// under which it is known everywhere.
func (c *Cell) Hash() common.Hash {
	return c.HashAtLevel(maxLevel)
}

// HashAtLevel returns the representation hash applicable at the given
// Merkle level.
func (c *Cell) HashAtLevel(level int) common.Hash {
	idx := c.levelMask.Apply(clampLevel(level)).HashIndex()
	if c.cellType == PrunedBranchCell {
		if idx != c.levelMask.HashIndex() {
			return c.prunedHash(idx)
		}
		idx = 0
	}
	return c.hashes[idx]
}

// Depth returns the height of the tree rooted at this cell.
func (c *Cell) Depth() uint16 {
	return c.DepthAtLevel(maxLevel)
}

// DepthAtLevel returns the depth applicable at the given Merkle level.
func (c *Cell) DepthAtLevel(level int) uint16 {
	idx := c.levelMask.Apply(clampLevel(level)).HashIndex()
	if c.cellType == PrunedBranchCell {
		if idx != c.levelMask.HashIndex() {
			return c.prunedDepth(idx)
		}
		idx = 0
	}
	return c.depths[idx]
}

// Parser returns a fresh read cursor over the cell's bits and references.
func (c *Cell) Parser() *Parser {
	return &Parser{cell: c}
}

func (c *Cell) String() string {
	return fmt.Sprintf("Cell{%s, %d bits, %d refs, hash %s}", c.cellType, c.bitLen, len(c.refs), c.Hash())
}

// ----------------------------------------------------------------------------
//                          Representation hashing
// ----------------------------------------------------------------------------

// refsDescriptor computes descriptor byte d1 for the given applied mask:
// the reference count, the exotic flag and the level mask.
func (c *Cell) refsDescriptor(mask LevelMask) byte {
	d1 := byte(len(c.refs))
	if c.IsExotic() {
		d1 |= 8
	}
	return d1 | byte(mask)<<5
}

// bitsDescriptor computes descriptor byte d2: the floor and ceiling byte
// counts of the payload added together, making an odd value the marker of a
// non-byte-aligned payload.
func (c *Cell) bitsDescriptor() byte {
	return byte(c.bitLen/8 + bitsToBytes(c.bitLen))
}

// paddedData returns the payload in representation form: a non-aligned tail
// is completed with a single one bit followed by zero bits.
func (c *Cell) paddedData() []byte {
	out := append([]byte(nil), c.data...)
	if c.bitLen%8 != 0 {
		out[len(out)-1] |= 0x80 >> (c.bitLen % 8)
	}
	return out
}

// computeHashes fills in the per-level representation hashes and depths.
// Referenced cells are already frozen, so the computation is flat: each
// level's hash combines the descriptors, the payload (or the next lower
// hash), and the children's depths and hashes at the corresponding level.
func (c *Cell) computeHashes() error {
	totalCount := c.levelMask.HashCount()
	hashCount := totalCount
	if c.cellType == PrunedBranchCell {
		// A pruned branch carries its lower-level hashes verbatim in its
		// payload; only its own top-level hash is computed.
		hashCount = 1
	}
	offset := totalCount - hashCount

	c.hashes = make([]common.Hash, 0, hashCount)
	c.depths = make([]uint16, 0, hashCount)

	hashIdx := 0
	for level := 0; level <= c.levelMask.Level(); level++ {
		if !c.levelMask.IsSignificant(level) {
			continue
		}
		if hashIdx < offset {
			hashIdx++
			continue
		}

		repr := make([]byte, 0, 2+len(c.data)+len(c.refs)*(2+32))
		repr = append(repr, c.refsDescriptor(c.levelMask.Apply(level)), c.bitsDescriptor())
		if hashIdx == offset {
			repr = append(repr, c.paddedData()...)
		} else {
			prev := c.hashes[hashIdx-offset-1]
			repr = append(repr, prev[:]...)
		}

		childLevel := level
		if c.cellType == MerkleProofCell || c.cellType == MerkleUpdateCell {
			// Merkle cells look one level deeper: their children live in
			// the pruned view the proof is about.
			childLevel = level + 1
		}

		depth := uint16(0)
		for _, ref := range c.refs {
			d := ref.DepthAtLevel(childLevel)
			if d >= maxDepth {
				return fmt.Errorf("%w: reference depth %d", errDepthLimit, d)
			}
			if d+1 > depth {
				depth = d + 1
			}
			repr = binary.BigEndian.AppendUint16(repr, d)
		}
		for _, ref := range c.refs {
			h := ref.HashAtLevel(childLevel)
			repr = append(repr, h[:]...)
		}

		c.hashes = append(c.hashes, sha256.Sum256(repr))
		c.depths = append(c.depths, depth)
		hashIdx++
	}
	return nil
}

func clampLevel(level int) int {
	if level < 0 {
		return 0
	}
	if level > maxLevel {
		return maxLevel
	}
	return level
}
