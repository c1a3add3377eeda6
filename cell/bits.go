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

// Bit addressing throughout the codec is MSB-first: bit 0 of a buffer is
// the highest bit of its first byte. Cell payloads are at most 1023 bits,
// so the simple per-bit loops below are not performance critical.

// getBit reads the bit at the given position.
func getBit(data []byte, pos int) bool {
	return data[pos/8]&(0x80>>(pos%8)) != 0
}

// setBit sets the bit at the given position to one. Buffers start out
// zeroed, so there is no need to clear bits.
func setBit(data []byte, pos int) {
	data[pos/8] |= 0x80 >> (pos % 8)
}

// copyBits copies n bits from src starting at srcPos into dst starting at
// dstPos.
func copyBits(dst []byte, dstPos int, src []byte, srcPos, n int) {
	for i := 0; i < n; i++ {
		if getBit(src, srcPos+i) {
			setBit(dst, dstPos+i)
		}
	}
}

// bitsToBytes returns the number of bytes required to hold the given number
// of bits.
func bitsToBytes(bits int) int {
	return (bits + 7) / 8
}

// maskTail zeroes all bits of the buffer at and after the given bit length.
// The cell representation requires unused trailing bits to be zero.
func maskTail(data []byte, bitLen int) {
	if bitLen%8 != 0 {
		data[bitLen/8] &= 0xFF << (8 - bitLen%8)
	}
	for i := bitsToBytes(bitLen); i < len(data); i++ {
		data[i] = 0
	}
}
