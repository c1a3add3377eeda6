// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package common

import (
	"encoding/hex"
	"fmt"
)

// Hash is the 32-byte SHA-256 representation hash of a cell. Two frozen
// cells are interchangeable if and only if their representation hashes are
// equal.
type Hash [32]byte

// HashFromBytes copies the given slice into a Hash. The slice must be
// exactly 32 bytes long.
func HashFromBytes(data []byte) (Hash, error) {
	var h Hash
	if len(data) != len(h) {
		return h, fmt.Errorf("invalid hash length, got %d, wanted %d", len(data), len(h))
	}
	copy(h[:], data)
	return h, nil
}

func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// Address identifies an account as a workchain number plus a 256-bit
// account identifier. Only the raw binary form is handled here; user-facing
// text encodings are a concern of higher layers.
type Address struct {
	Workchain int32
	ID        [32]byte
}

// IsNone reports whether the address is the empty (addr_none) address.
func (a Address) IsNone() bool {
	return a == Address{}
}

func (a Address) String() string {
	return fmt.Sprintf("%d:%s", a.Workchain, hex.EncodeToString(a.ID[:]))
}
