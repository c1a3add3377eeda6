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
	"fmt"
	"math/bits"

	"github.com/holiman/uint256"
	"golang.org/x/exp/slices"
)

// Dictionaries are binary tries stored as nested cells. Every node starts
// with a label carrying the common prefix of the remaining key bits in one
// of three compact encodings; a node whose label does not complete the key
// forks into exactly two references, one per value of the next key bit, and
// a node whose label completes the key is a leaf holding the value.

// maxDictNodes caps the number of trie nodes a single decode visits. A
// hostile DAG can share subtrees to multiply paths without growing the
// input, so the budget is enforced independently of the input size.
const maxDictNodes = 1 << 20

// DictLoader bundles the parameters of a dictionary decode: the fixed key
// bit length of the trie and the extraction of keys and values into their
// typed forms. Keys are handed to the extractor as the accumulated path
// bits, MSB-aligned; values as a parser positioned after the leaf's label.
type DictLoader[K comparable, V any] struct {
	KeyBitLen    int
	ExtractKey   func(key []byte, bitLen int) (K, error)
	ExtractValue func(leaf *Parser) (V, error)
}

// LoadDict decodes the trie rooted at the given cell into a mapping.
// Traversal uses an explicit work stack whose depth is bounded by the key
// bit length, so adversarial input cannot grow the native call stack.
func LoadDict[K comparable, V any](root *Cell, loader DictLoader[K, V]) (map[K]V, error) {
	n := loader.KeyBitLen
	if n <= 0 {
		return nil, fmt.Errorf("invalid dictionary key bit length %d", n)
	}

	type frame struct {
		cell      *Cell
		prefix    []byte
		prefixLen int
	}
	result := make(map[K]V)
	stack := []frame{{cell: root, prefix: make([]byte, bitsToBytes(n))}}
	visited := 0

	for len(stack) > 0 {
		visited++
		if visited > maxDictNodes {
			return nil, fmt.Errorf("%w: more than %d nodes visited", ErrTrieDepthExceeded, maxDictNodes)
		}
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		remaining := n - f.prefixLen
		if remaining < 0 {
			return nil, fmt.Errorf("%w: path of %d bits exceeds the %d bit key", ErrTrieDepthExceeded, f.prefixLen, n)
		}
		p := f.cell.Parser()
		label, labelLen, err := readLabel(p, remaining)
		if err != nil {
			return nil, err
		}
		copyBits(f.prefix, f.prefixLen, label, 0, labelLen)
		pathLen := f.prefixLen + labelLen

		if pathLen == n {
			key, err := loader.ExtractKey(f.prefix, n)
			if err != nil {
				return nil, fmt.Errorf("failed to extract key %x: %w", f.prefix, err)
			}
			value, err := loader.ExtractValue(p)
			if err != nil {
				return nil, fmt.Errorf("failed to extract value of key %x: %w", f.prefix, err)
			}
			result[key] = value
			continue
		}

		left, err := p.NextRef()
		if err != nil {
			return nil, fmt.Errorf("fork node lacks its 0-branch: %w", err)
		}
		right, err := p.NextRef()
		if err != nil {
			return nil, fmt.Errorf("fork node lacks its 1-branch: %w", err)
		}
		rightPrefix := append([]byte(nil), f.prefix...)
		setBit(rightPrefix, pathLen)
		stack = append(stack,
			frame{cell: right, prefix: rightPrefix, prefixLen: pathLen + 1},
			frame{cell: left, prefix: f.prefix, prefixLen: pathLen + 1},
		)
	}
	return result, nil
}

// LoadMaybeDict reads the optional-dictionary form: one presence bit
// followed by a reference to the trie root. An absent dictionary decodes to
// an empty mapping.
func LoadMaybeDict[K comparable, V any](p *Parser, loader DictLoader[K, V]) (map[K]V, error) {
	present, err := p.LoadBit()
	if err != nil {
		return nil, err
	}
	if !present {
		return map[K]V{}, nil
	}
	root, err := p.NextRef()
	if err != nil {
		return nil, err
	}
	return LoadDict(root, loader)
}

// readLabel reads one label, returning its bits MSB-aligned and its length.
// The three encodings are mutually exclusive by their leading bits:
// 0 short (unary length), 10 long (fixed-width length), 11 same (one bit
// repeated). remaining bounds the label length; a longer label cannot be a
// valid prefix of the key and fails with ErrKeyLengthMismatch.
func readLabel(p *Parser, remaining int) ([]byte, int, error) {
	lenWidth := bits.Len(uint(remaining))
	short, err := p.LoadBit()
	if err != nil {
		return nil, 0, err
	}
	if !short {
		length := 0
		for {
			more, err := p.LoadBit()
			if err != nil {
				return nil, 0, err
			}
			if !more {
				break
			}
			length++
			if length > remaining {
				return nil, 0, fmt.Errorf("%w: short label of %d bits, %d key bits remaining",
					ErrKeyLengthMismatch, length, remaining)
			}
		}
		label, err := p.LoadBits(length)
		if err != nil {
			return nil, 0, err
		}
		return label, length, nil
	}

	same, err := p.LoadBit()
	if err != nil {
		return nil, 0, err
	}
	if !same {
		length, err := p.LoadUint(lenWidth)
		if err != nil {
			return nil, 0, err
		}
		if int(length) > remaining {
			return nil, 0, fmt.Errorf("%w: long label of %d bits, %d key bits remaining",
				ErrKeyLengthMismatch, length, remaining)
		}
		label, err := p.LoadBits(int(length))
		if err != nil {
			return nil, 0, err
		}
		return label, int(length), nil
	}

	bit, err := p.LoadBit()
	if err != nil {
		return nil, 0, err
	}
	length, err := p.LoadUint(lenWidth)
	if err != nil {
		return nil, 0, err
	}
	if int(length) > remaining {
		return nil, 0, fmt.Errorf("%w: same-bit label of %d bits, %d key bits remaining",
			ErrKeyLengthMismatch, length, remaining)
	}
	label := make([]byte, bitsToBytes(int(length)))
	if bit {
		for i := range label {
			label[i] = 0xFF
		}
		maskTail(label, int(length))
	}
	return label, int(length), nil
}

// ----------------------------------------------------------------------------
//                             Key / value extractors
// ----------------------------------------------------------------------------

// KeyExtractorUint256 interprets a 256-bit key as a big-endian unsigned
// integer.
func KeyExtractorUint256(key []byte, bitLen int) (uint256.Int, error) {
	var value uint256.Int
	if bitLen != 256 {
		return value, fmt.Errorf("expected a 256-bit key, got %d bits", bitLen)
	}
	value.SetBytes(key[:32])
	return value, nil
}

// KeyExtractorBytes returns a byte-aligned key as its raw bytes.
func KeyExtractorBytes(key []byte, bitLen int) (string, error) {
	if bitLen%8 != 0 {
		return "", fmt.Errorf("key of %d bits is not byte aligned", bitLen)
	}
	return string(key[:bitLen/8]), nil
}

// KeyExtractorUint interprets a key of up to 64 bits as a big-endian
// unsigned integer.
func KeyExtractorUint(key []byte, bitLen int) (uint64, error) {
	if bitLen > 64 {
		return 0, fmt.Errorf("key of %d bits does not fit into 64 bits", bitLen)
	}
	var value uint64
	for i := 0; i < bitLen; i++ {
		value <<= 1
		if getBit(key, i) {
			value |= 1
		}
	}
	return value, nil
}

// ValueExtractorCell rebuilds the leaf's remainder, bits after the label
// plus all references, into a standalone cell.
func ValueExtractorCell(leaf *Parser) (*Cell, error) {
	b := NewBuilder()
	n := leaf.RemainingBits()
	data, err := leaf.LoadBits(n)
	if err != nil {
		return nil, err
	}
	if err := b.WriteBits(data, n); err != nil {
		return nil, err
	}
	for leaf.RemainingRefs() > 0 {
		ref, err := leaf.NextRef()
		if err != nil {
			return nil, err
		}
		if err := b.WriteRef(ref); err != nil {
			return nil, err
		}
	}
	return b.Build()
}

// ValueExtractorCellRef reads the value stored as a single reference, the
// common ^Cell layout of configuration and library dictionaries.
func ValueExtractorCellRef(leaf *Parser) (*Cell, error) {
	return leaf.NextRef()
}

// ValueExtractorUint reads the value as an n-bit big-endian unsigned
// integer.
func ValueExtractorUint(n int) func(*Parser) (uint64, error) {
	return func(leaf *Parser) (uint64, error) {
		return leaf.LoadUint(n)
	}
}

// ----------------------------------------------------------------------------
//                               Encoding
// ----------------------------------------------------------------------------

// DictEntry is one key-value pair to be encoded. The key holds KeyBitLen
// bits, MSB-aligned.
type DictEntry[V any] struct {
	Key   []byte
	Value V
}

// BuildDict encodes the given entries into a dictionary trie and returns
// its root cell. Keys must all be distinct; the output is deterministic
// (entries are sorted) and every label uses the cheapest of the three
// encodings. An empty dictionary has no root cell and is an error; callers
// represent it as an absent reference.
func BuildDict[V any](keyBitLen int, entries []DictEntry[V], storeValue func(*Builder, V) error) (*Cell, error) {
	if keyBitLen <= 0 {
		return nil, fmt.Errorf("invalid dictionary key bit length %d", keyBitLen)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("an empty dictionary has no root cell")
	}

	keyBytes := bitsToBytes(keyBitLen)
	sorted := make([]DictEntry[V], len(entries))
	for i, e := range entries {
		if len(e.Key) != keyBytes {
			return nil, fmt.Errorf("key %x holds %d bytes, wanted %d for %d bits", e.Key, len(e.Key), keyBytes, keyBitLen)
		}
		key := append([]byte(nil), e.Key...)
		maskTail(key, keyBitLen)
		sorted[i] = DictEntry[V]{Key: key, Value: e.Value}
	}
	slices.SortFunc(sorted, func(a, b DictEntry[V]) int {
		return bytes.Compare(a.Key, b.Key)
	})
	for i := 1; i < len(sorted); i++ {
		if bytes.Equal(sorted[i-1].Key, sorted[i].Key) {
			return nil, fmt.Errorf("duplicate dictionary key %x", sorted[i].Key)
		}
	}
	return buildDictNode(keyBitLen, sorted, 0, storeValue)
}

// buildDictNode encodes the subtrie of entries sharing a key prefix of the
// given bit offset. Recursion depth is bounded by the key bit length, and
// the input is caller-controlled, so plain recursion is safe here.
func buildDictNode[V any](keyBitLen int, entries []DictEntry[V], offset int, storeValue func(*Builder, V) error) (*Cell, error) {
	remaining := keyBitLen - offset
	low, high := entries[0].Key, entries[len(entries)-1].Key
	labelLen := 0
	for labelLen < remaining && getBit(low, offset+labelLen) == getBit(high, offset+labelLen) {
		labelLen++
	}

	b := NewBuilder()
	if err := writeLabel(b, low, offset, labelLen, remaining); err != nil {
		return nil, err
	}

	if labelLen == remaining {
		if err := storeValue(b, entries[0].Value); err != nil {
			return nil, err
		}
		return b.Build()
	}

	split := len(entries)
	for i, e := range entries {
		if getBit(e.Key, offset+labelLen) {
			split = i
			break
		}
	}
	left, err := buildDictNode(keyBitLen, entries[:split], offset+labelLen+1, storeValue)
	if err != nil {
		return nil, err
	}
	right, err := buildDictNode(keyBitLen, entries[split:], offset+labelLen+1, storeValue)
	if err != nil {
		return nil, err
	}
	if err := b.WriteRef(left); err != nil {
		return nil, err
	}
	if err := b.WriteRef(right); err != nil {
		return nil, err
	}
	return b.Build()
}

// writeLabel emits the cheapest encoding of the label bits key[offset :
// offset+labelLen]; ties prefer short, then long, then same-bit.
func writeLabel(b *Builder, key []byte, offset, labelLen, remaining int) error {
	lenWidth := bits.Len(uint(remaining))
	allSame := true
	for i := 1; i < labelLen; i++ {
		if getBit(key, offset+i) != getBit(key, offset) {
			allSame = false
			break
		}
	}

	costShort := 2 + 2*labelLen
	costLong := 2 + lenWidth + labelLen
	costSame := 3 + lenWidth
	useSame := allSame && labelLen > 0 && costSame < costShort && costSame < costLong

	label := make([]byte, bitsToBytes(labelLen))
	copyBits(label, 0, key, offset, labelLen)

	switch {
	case useSame:
		if err := b.WriteUint(0b11, 2); err != nil {
			return err
		}
		if err := b.WriteBit(getBit(key, offset)); err != nil {
			return err
		}
		return b.WriteUint(uint64(labelLen), lenWidth)
	case costShort <= costLong:
		if err := b.WriteBit(false); err != nil {
			return err
		}
		for i := 0; i < labelLen; i++ {
			if err := b.WriteBit(true); err != nil {
				return err
			}
		}
		if err := b.WriteBit(false); err != nil {
			return err
		}
		return b.WriteBits(label, labelLen)
	default:
		if err := b.WriteUint(0b10, 2); err != nil {
			return err
		}
		if err := b.WriteUint(uint64(labelLen), lenWidth); err != nil {
			return err
		}
		return b.WriteBits(label, labelLen)
	}
}

// StoreMaybeDict writes the optional-dictionary form: a presence bit and,
// for a non-empty dictionary, the root reference.
func StoreMaybeDict(b *Builder, root *Cell) error {
	if root == nil {
		return b.WriteBit(false)
	}
	if err := b.WriteBit(true); err != nil {
		return err
	}
	return b.WriteRef(root)
}
