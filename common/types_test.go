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

package common

import (
	"strings"
	"testing"
)

func TestHash_FromBytes(t *testing.T) {
	data := make([]byte, 32)
	for i := range data {
		data[i] = byte(i)
	}
	hash, err := HashFromBytes(data)
	if err != nil {
		t.Fatalf("failed to convert bytes to hash: %v", err)
	}
	for i := 0; i < 32; i++ {
		if got, want := hash[i], byte(i); got != want {
			t.Errorf("invalid byte at position %d, got %d, wanted %d", i, got, want)
		}
	}
}

func TestHash_FromBytesInvalidLength(t *testing.T) {
	for _, length := range []int{0, 1, 31, 33, 64} {
		if _, err := HashFromBytes(make([]byte, length)); err == nil {
			t.Errorf("conversion of %d bytes should have failed", length)
		}
	}
}

func TestHash_Print(t *testing.T) {
	var hash Hash
	hash[0] = 0xab
	hash[31] = 0x01
	print := hash.String()
	if got, want := len(print), 64; got != want {
		t.Errorf("invalid print length, got %d, wanted %d", got, want)
	}
	if !strings.HasPrefix(print, "ab00") {
		t.Errorf("invalid print prefix: %s", print)
	}
	if !strings.HasSuffix(print, "01") {
		t.Errorf("invalid print suffix: %s", print)
	}
}

func TestAddress_IsNone(t *testing.T) {
	var addr Address
	if !addr.IsNone() {
		t.Errorf("zero-value address should be none")
	}
	addr.Workchain = -1
	if addr.IsNone() {
		t.Errorf("address with workchain set should not be none")
	}
	addr = Address{}
	addr.ID[12] = 1
	if addr.IsNone() {
		t.Errorf("address with id set should not be none")
	}
}

func TestAddress_Print(t *testing.T) {
	tests := []struct {
		addr  Address
		print string
	}{
		{Address{}, "0:" + strings.Repeat("00", 32)},
		{Address{Workchain: -1}, "-1:" + strings.Repeat("00", 32)},
		{Address{Workchain: 0, ID: [32]byte{0xfe}}, "0:fe" + strings.Repeat("00", 31)},
	}
	for _, test := range tests {
		if got, want := test.addr.String(), test.print; got != want {
			t.Errorf("invalid print, got %s, wanted %s", got, want)
		}
	}
}

func TestConstError_CanBeUsedAsErrorConstant(t *testing.T) {
	const someError = ConstError("something failed")
	var err error = someError
	if got, want := err.Error(), "something failed"; got != want {
		t.Errorf("invalid error message, got %s, wanted %s", got, want)
	}
}
