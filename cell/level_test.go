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

import "testing"

func TestLevelMask_Level(t *testing.T) {
	tests := []struct {
		mask  LevelMask
		level int
	}{
		{0b000, 0},
		{0b001, 1},
		{0b010, 2},
		{0b011, 2},
		{0b100, 3},
		{0b101, 3},
		{0b111, 3},
	}
	for _, test := range tests {
		if got, want := test.mask.Level(), test.level; got != want {
			t.Errorf("invalid level of mask %#b, got %d, wanted %d", test.mask, got, want)
		}
	}
}

func TestLevelMask_HashCount(t *testing.T) {
	tests := []struct {
		mask  LevelMask
		count int
	}{
		{0b000, 1},
		{0b001, 2},
		{0b010, 2},
		{0b011, 3},
		{0b111, 4},
	}
	for _, test := range tests {
		if got, want := test.mask.HashCount(), test.count; got != want {
			t.Errorf("invalid hash count of mask %#b, got %d, wanted %d", test.mask, got, want)
		}
		if got, want := test.mask.HashIndex(), test.count-1; got != want {
			t.Errorf("invalid hash index of mask %#b, got %d, wanted %d", test.mask, got, want)
		}
	}
}

func TestLevelMask_Apply(t *testing.T) {
	tests := []struct {
		mask   LevelMask
		level  int
		result LevelMask
	}{
		{0b000, 0, 0b000},
		{0b101, 0, 0b000},
		{0b101, 1, 0b001},
		{0b101, 2, 0b001},
		{0b101, 3, 0b101},
		{0b111, 2, 0b011},
	}
	for _, test := range tests {
		if got, want := test.mask.Apply(test.level), test.result; got != want {
			t.Errorf("invalid application of mask %#b to level %d, got %#b, wanted %#b",
				test.mask, test.level, got, want)
		}
	}
	// Applying a mask's own level retains the full mask.
	for mask := LevelMask(0); mask <= 0b111; mask++ {
		if got, want := mask.Apply(mask.Level()), mask; got != want {
			t.Errorf("applying the own level of mask %#b lost bits, got %#b", mask, got)
		}
	}
}

func TestLevelMask_IsSignificant(t *testing.T) {
	tests := []struct {
		mask        LevelMask
		significant []bool // levels 0..3
	}{
		{0b000, []bool{true, false, false, false}},
		{0b001, []bool{true, true, false, false}},
		{0b010, []bool{true, false, true, false}},
		{0b101, []bool{true, true, false, true}},
	}
	for _, test := range tests {
		for level, want := range test.significant {
			if got := test.mask.IsSignificant(level); got != want {
				t.Errorf("invalid significance of level %d for mask %#b, got %t, wanted %t",
					level, test.mask, got, want)
			}
		}
	}
}
