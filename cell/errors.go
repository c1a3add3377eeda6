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

import "github.com/cellforge/toncodec/common"

// The error constants below form the full failure taxonomy of the codec.
// All of them are recoverable: input bytes cross a trust boundary, so every
// malformed-input path must surface as an ordinary error result. Individual
// failures wrap one of these constants with positional context, so callers
// can match them with errors.Is.
const (
	// ErrBitOverrun indicates an attempt to read or write past the bit
	// capacity of a cell.
	ErrBitOverrun = common.ConstError("cell bit overrun")

	// ErrRefOverrun indicates an attempt to read or write past the
	// reference capacity of a cell.
	ErrRefOverrun = common.ConstError("cell reference overrun")

	// ErrMalformedHeader indicates a bag-of-cells stream whose header or
	// framing is inconsistent with its own content.
	ErrMalformedHeader = common.ConstError("malformed bag-of-cells header")

	// ErrInvalidCellCount indicates a cell or root index outside the
	// declared cell list of a bag-of-cells stream.
	ErrInvalidCellCount = common.ConstError("invalid cell count or index")

	// ErrForwardRefViolation indicates a serialized cell referencing a cell
	// at the same or a lower index, violating the forward-only ordering of
	// the format.
	ErrForwardRefViolation = common.ConstError("forward reference violation")

	// ErrInvalidExoticShape indicates an exotic cell whose payload or
	// reference list does not match the fixed shape of its type.
	ErrInvalidExoticShape = common.ConstError("invalid exotic cell shape")

	// ErrChecksumMismatch indicates a bag-of-cells stream whose CRC-32C
	// trailer does not match its content.
	ErrChecksumMismatch = common.ConstError("checksum mismatch")

	// ErrKeyLengthMismatch indicates a dictionary label exceeding the
	// remaining key bits of the trie being decoded.
	ErrKeyLengthMismatch = common.ConstError("dictionary key length mismatch")

	// ErrTrieDepthExceeded indicates a dictionary traversal exceeding the
	// depth or node budget derived from the configured key bit length.
	ErrTrieDepthExceeded = common.ConstError("dictionary trie depth exceeded")

	// ErrMultipleOrNoRoots indicates a bag of cells that does not contain
	// exactly one root where a single entry point is required.
	ErrMultipleOrNoRoots = common.ConstError("expected exactly one root cell")
)
