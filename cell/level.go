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

import "math/bits"

// LevelMask tracks which Merkle-proof levels a cell carries hashes for.
// Bit i-1 of the mask marks level i (1..=3) as significant; level 0 is
// always significant. A plain data tree has mask 0 everywhere; non-zero
// masks appear once pruned branches take part in a Merkle proof.
type LevelMask uint8

// maxLevel is the highest Merkle-proof level a cell can participate in.
const maxLevel = 3

// Level returns the highest significant level of the mask (0..=3).
func (m LevelMask) Level() int {
	return bits.Len8(uint8(m))
}

// HashCount returns the number of distinct hashes a cell with this mask
// carries: one per significant level.
func (m LevelMask) HashCount() int {
	return bits.OnesCount8(uint8(m)) + 1
}

// HashIndex returns the index of the hash belonging to the mask's own
// highest level, equal to the number of lower significant levels.
func (m LevelMask) HashIndex() int {
	return bits.OnesCount8(uint8(m))
}

// Apply restricts the mask to levels below the given one.
func (m LevelMask) Apply(level int) LevelMask {
	return m & LevelMask((1<<level)-1)
}

// IsSignificant reports whether the given level contributes its own hash
// for a cell with this mask.
func (m LevelMask) IsSignificant(level int) bool {
	return level == 0 || (m>>(level-1))&1 != 0
}
