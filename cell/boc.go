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
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"math/bits"

	"github.com/cellforge/toncodec/common"
)

// The bag-of-cells container flattens a cell DAG into an indexed list with
// all references expressed as list indices. The canonical encoder orders
// the list so that every reference points to a strictly higher index, which
// permits single-pass reconstruction from the tail; the decoder rejects any
// stream violating this order.

// bocMagic identifies the generic serialized_boc format variant.
const bocMagic uint32 = 0xB5EE9C72

const (
	flagHasIndex     = 0x80
	flagHasCRC32C    = 0x40
	flagHasCacheBits = 0x20
	flagReservedBits = 0x18
)

var crcTable = crc32.MakeTable(crc32.Castagnoli)

// BagOfCells is the flattened form of a cell DAG plus its entry points. It
// is materialized for the duration of one encode or decode and is immutable
// afterwards.
type BagOfCells struct {
	cells []*Cell // topological order, references point forward
	roots []*Cell
}

// SerializeOptions selects the optional parts of the serialized form.
type SerializeOptions struct {
	// WithIndex adds the per-cell offset table for random access.
	WithIndex bool
	// WithCRC32C appends the CRC-32C trailer.
	WithCRC32C bool
}

// DefaultSerializeOptions matches the canonical encoder: checksum present,
// offset index absent.
var DefaultSerializeOptions = SerializeOptions{WithCRC32C: true}

// FromRoots creates a bag of cells holding the given roots and their
// transitively reachable DAG. Cells shared by several parents are included
// once, identified by their representation hash.
func FromRoots(roots ...*Cell) *BagOfCells {
	return &BagOfCells{
		cells: flattenCells(roots),
		roots: roots,
	}
}

// Roots returns the entry points of the bag.
func (b *BagOfCells) Roots() []*Cell {
	return append([]*Cell(nil), b.roots...)
}

// CellCount returns the number of distinct cells in the bag.
func (b *BagOfCells) CellCount() int {
	return len(b.cells)
}

// SingleRoot returns the bag's only root, or ErrMultipleOrNoRoots when the
// bag does not have exactly one entry point.
func (b *BagOfCells) SingleRoot() (*Cell, error) {
	if len(b.roots) != 1 {
		return nil, fmt.Errorf("%w: got %d roots", ErrMultipleOrNoRoots, len(b.roots))
	}
	return b.roots[0], nil
}

// flattenCells produces a topological order of the DAG reachable from the
// given roots, parents before children, deduplicated by representation
// hash. Reversed depth-first finishing order gives exactly this property.
func flattenCells(roots []*Cell) []*Cell {
	type frame struct {
		cell *Cell
		next int
	}
	visited := make(map[common.Hash]bool)
	var post []*Cell

	for _, root := range roots {
		if visited[root.Hash()] {
			continue
		}
		visited[root.Hash()] = true
		stack := []frame{{cell: root}}
		for len(stack) > 0 {
			f := &stack[len(stack)-1]
			if f.next < len(f.cell.refs) {
				child := f.cell.refs[f.next]
				f.next++
				if h := child.Hash(); !visited[h] {
					visited[h] = true
					stack = append(stack, frame{cell: child})
				}
			} else {
				post = append(post, f.cell)
				stack = stack[:len(stack)-1]
			}
		}
	}

	for i, j := 0, len(post)-1; i < j; i, j = i+1, j-1 {
		post[i], post[j] = post[j], post[i]
	}
	return post
}

// byteWidth returns the minimal number of bytes holding the given value.
func byteWidth(value uint64) int {
	if value == 0 {
		return 1
	}
	return (bits.Len64(value) + 7) / 8
}

func appendUintN(dst []byte, value uint64, n int) []byte {
	for i := n - 1; i >= 0; i-- {
		dst = append(dst, byte(value>>(8*i)))
	}
	return dst
}

// Serialize encodes the bag into the serialized_boc wire format.
func (b *BagOfCells) Serialize(opts SerializeOptions) ([]byte, error) {
	cellCount := len(b.cells)
	refSize := byteWidth(uint64(cellCount))
	if refSize > 4 {
		return nil, fmt.Errorf("%w: %d cells exceed the format limit", ErrInvalidCellCount, cellCount)
	}

	index := make(map[common.Hash]int, cellCount)
	for i, c := range b.cells {
		index[c.Hash()] = i
	}

	totalCellSize := 0
	for _, c := range b.cells {
		totalCellSize += 2 + len(c.paddedData()) + len(c.refs)*refSize
	}
	offSize := byteWidth(uint64(totalCellSize))

	flags := byte(refSize)
	if opts.WithIndex {
		flags |= flagHasIndex
	}
	if opts.WithCRC32C {
		flags |= flagHasCRC32C
	}

	out := make([]byte, 0, 4+2+3*refSize+offSize+len(b.roots)*refSize+cellCount*offSize+totalCellSize+4)
	out = binary.BigEndian.AppendUint32(out, bocMagic)
	out = append(out, flags, byte(offSize))
	out = appendUintN(out, uint64(cellCount), refSize)
	out = appendUintN(out, uint64(len(b.roots)), refSize)
	out = appendUintN(out, 0, refSize) // absent cells
	out = appendUintN(out, uint64(totalCellSize), offSize)
	for _, root := range b.roots {
		out = appendUintN(out, uint64(index[root.Hash()]), refSize)
	}
	if opts.WithIndex {
		offset := 0
		for _, c := range b.cells {
			offset += 2 + len(c.paddedData()) + len(c.refs)*refSize
			out = appendUintN(out, uint64(offset), offSize)
		}
	}
	for i, c := range b.cells {
		out = append(out, c.refsDescriptor(c.levelMask), c.bitsDescriptor())
		out = append(out, c.paddedData()...)
		for _, ref := range c.refs {
			refIdx, exists := index[ref.Hash()]
			if !exists || refIdx <= i {
				// Unreachable for a flattened DAG; kept as a consistency
				// guard for the ordering invariant.
				return nil, fmt.Errorf("%w: cell %d references cell %d", ErrForwardRefViolation, i, refIdx)
			}
			out = appendUintN(out, uint64(refIdx), refSize)
		}
	}
	if opts.WithCRC32C {
		out = binary.LittleEndian.AppendUint32(out, crc32.Checksum(out, crcTable))
	}
	return out, nil
}

// SerializeCell encodes a single-root bag holding the given cell, using the
// default options.
func SerializeCell(c *Cell) ([]byte, error) {
	return FromRoots(c).Serialize(DefaultSerializeOptions)
}

// ----------------------------------------------------------------------------
//                                 Parsing
// ----------------------------------------------------------------------------

// bocReader is a bounds-checked byte cursor over untrusted input.
type bocReader struct {
	data []byte
	pos  int
}

func (r *bocReader) remaining() int {
	return len(r.data) - r.pos
}

func (r *bocReader) readBytes(n int, what string) ([]byte, error) {
	if r.remaining() < n {
		return nil, fmt.Errorf("%w: truncated %s at offset %d, want %d bytes, have %d",
			ErrMalformedHeader, what, r.pos, n, r.remaining())
	}
	out := r.data[r.pos : r.pos+n]
	r.pos += n
	return out, nil
}

func (r *bocReader) readUint(n int, what string) (uint64, error) {
	raw, err := r.readBytes(n, what)
	if err != nil {
		return 0, err
	}
	var value uint64
	for _, b := range raw {
		value = value<<8 | uint64(b)
	}
	return value, nil
}

// rawCell is a scanned but not yet reconstructed cell record.
type rawCell struct {
	exotic  bool
	bitLen  int
	payload []byte
	refs    []int
}

// Parse decodes a serialized bag of cells. The input crosses a trust
// boundary: all structural claims of the stream are validated against the
// actual input size before any dependent allocation, and every violation is
// reported with its position.
func Parse(data []byte) (*BagOfCells, error) {
	r := &bocReader{data: data}

	magic, err := r.readUint(4, "magic")
	if err != nil {
		return nil, err
	}
	if magic != uint64(bocMagic) {
		return nil, fmt.Errorf("%w: unknown magic %#x, wanted %#x", ErrMalformedHeader, magic, bocMagic)
	}

	header, err := r.readBytes(2, "flags")
	if err != nil {
		return nil, err
	}
	flags, offSize := header[0], int(header[1])
	if flags&flagReservedBits != 0 {
		return nil, fmt.Errorf("%w: reserved flag bits %#x set", ErrMalformedHeader, flags&flagReservedBits)
	}
	hasIndex := flags&flagHasIndex != 0
	hasCRC := flags&flagHasCRC32C != 0
	hasCacheBits := flags&flagHasCacheBits != 0
	refSize := int(flags & 0x07)
	if refSize < 1 || refSize > 4 {
		return nil, fmt.Errorf("%w: reference size %d, wanted 1..4", ErrMalformedHeader, refSize)
	}
	if offSize < 1 || offSize > 8 {
		return nil, fmt.Errorf("%w: offset size %d, wanted 1..8", ErrMalformedHeader, offSize)
	}
	if hasCacheBits && !hasIndex {
		return nil, fmt.Errorf("%w: cache bits set without an index", ErrMalformedHeader)
	}

	cellCount, err := r.readUint(refSize, "cell count")
	if err != nil {
		return nil, err
	}
	rootCount, err := r.readUint(refSize, "root count")
	if err != nil {
		return nil, err
	}
	absentCount, err := r.readUint(refSize, "absent count")
	if err != nil {
		return nil, err
	}
	totalCellSize, err := r.readUint(offSize, "total cell size")
	if err != nil {
		return nil, err
	}

	if rootCount == 0 {
		return nil, fmt.Errorf("%w: zero root cells declared", ErrMalformedHeader)
	}
	if absentCount != 0 {
		return nil, fmt.Errorf("%w: %d absent cells declared, absent cells are not supported",
			ErrMalformedHeader, absentCount)
	}
	if rootCount > cellCount {
		return nil, fmt.Errorf("%w: %d roots declared for %d cells", ErrInvalidCellCount, rootCount, cellCount)
	}
	if totalCellSize > uint64(r.remaining()) {
		return nil, fmt.Errorf("%w: %d payload bytes declared, %d remaining in input",
			ErrMalformedHeader, totalCellSize, r.remaining())
	}
	// A serialized cell record is at least two descriptor bytes, which caps
	// the cell count a stream of a given size can legitimately declare.
	if cellCount*2 > totalCellSize {
		return nil, fmt.Errorf("%w: %d cells cannot fit into %d payload bytes",
			ErrInvalidCellCount, cellCount, totalCellSize)
	}

	indexSize := 0
	if hasIndex {
		indexSize = int(cellCount) * offSize
	}
	crcSize := 0
	if hasCRC {
		crcSize = 4
	}
	expected := r.pos + int(rootCount)*refSize + indexSize + int(totalCellSize) + crcSize
	if expected != len(data) {
		return nil, fmt.Errorf("%w: declared sizes add up to %d bytes, input has %d",
			ErrMalformedHeader, expected, len(data))
	}
	if hasCRC {
		payload := data[:len(data)-4]
		want := binary.LittleEndian.Uint32(data[len(data)-4:])
		if got := crc32.Checksum(payload, crcTable); got != want {
			return nil, fmt.Errorf("%w: computed %#08x, stored %#08x", ErrChecksumMismatch, got, want)
		}
	}

	rootIndices := make([]int, rootCount)
	for i := range rootIndices {
		idx, err := r.readUint(refSize, "root index")
		if err != nil {
			return nil, err
		}
		if idx >= cellCount {
			return nil, fmt.Errorf("%w: root %d points to cell %d of %d", ErrInvalidCellCount, i, idx, cellCount)
		}
		rootIndices[i] = int(idx)
	}
	if _, err := r.readBytes(indexSize, "offset index"); err != nil {
		return nil, err
	}

	section, err := r.readBytes(int(totalCellSize), "cell data section")
	if err != nil {
		return nil, err
	}
	raw, err := scanCellRecords(section, int(cellCount), refSize)
	if err != nil {
		return nil, err
	}

	// Reconstruct from the tail: the forward-only reference order makes all
	// children of cell i available once the cells above i are frozen.
	cells := make([]*Cell, cellCount)
	for i := int(cellCount) - 1; i >= 0; i-- {
		refs := make([]*Cell, len(raw[i].refs))
		for j, refIdx := range raw[i].refs {
			refs[j] = cells[refIdx]
		}
		c, err := newCell(raw[i].payload, raw[i].bitLen, refs, raw[i].exotic)
		if err != nil {
			return nil, fmt.Errorf("cell %d: %w", i, err)
		}
		cells[i] = c
	}

	roots := make([]*Cell, rootCount)
	for i, idx := range rootIndices {
		roots[i] = cells[idx]
	}
	return &BagOfCells{cells: cells, roots: roots}, nil
}

// scanCellRecords splits the cell data section into per-cell records,
// enforcing the forward-only reference order.
func scanCellRecords(section []byte, cellCount, refSize int) ([]rawCell, error) {
	r := &bocReader{data: section}
	raw := make([]rawCell, cellCount)
	for i := 0; i < cellCount; i++ {
		descriptors, err := r.readBytes(2, fmt.Sprintf("descriptors of cell %d", i))
		if err != nil {
			return nil, err
		}
		d1, d2 := descriptors[0], descriptors[1]
		if d1 == 0xFF {
			return nil, fmt.Errorf("%w: cell %d is an absent cell, absent cells are not supported",
				ErrMalformedHeader, i)
		}
		refCount := int(d1 & 0x07)
		if refCount > MaxRefs {
			return nil, fmt.Errorf("%w: cell %d declares %d references", ErrRefOverrun, i, refCount)
		}

		payloadLen := (int(d2) + 1) / 2
		payload, err := r.readBytes(payloadLen, fmt.Sprintf("payload of cell %d", i))
		if err != nil {
			return nil, err
		}
		bitLen := 8 * (int(d2) / 2)
		if d2%2 != 0 {
			last := payload[payloadLen-1]
			if last == 0 {
				return nil, fmt.Errorf("%w: cell %d lacks the completion tag of its padded payload",
					ErrMalformedHeader, i)
			}
			bitLen += 7 - bits.TrailingZeros8(last)
		}

		refs := make([]int, refCount)
		for j := range refs {
			refIdx, err := r.readUint(refSize, fmt.Sprintf("reference %d of cell %d", j, i))
			if err != nil {
				return nil, err
			}
			if refIdx >= uint64(cellCount) {
				return nil, fmt.Errorf("%w: cell %d references cell %d of %d",
					ErrInvalidCellCount, i, refIdx, cellCount)
			}
			if int(refIdx) <= i {
				return nil, fmt.Errorf("%w: cell %d references cell %d, wanted a higher index",
					ErrForwardRefViolation, i, refIdx)
			}
			refs[j] = int(refIdx)
		}

		raw[i] = rawCell{
			exotic:  d1&0x08 != 0,
			bitLen:  bitLen,
			payload: payload,
			refs:    refs,
		}
	}
	if r.remaining() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes after the last cell record",
			ErrMalformedHeader, r.remaining())
	}
	return raw, nil
}

// ParseCell decodes a bag of cells expected to hold exactly one root and
// returns that root.
func ParseCell(data []byte) (*Cell, error) {
	bag, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return bag.SingleRoot()
}
