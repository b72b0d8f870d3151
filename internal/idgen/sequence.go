// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package idgen

import (
	"fmt"
	"strings"
)

// SequenceGenerator maps a 0-based input line index to the id carried by
// the imported record. Implementations must be monotonic in lineIndex for a
// single loader run, but need not be contiguous.
type SequenceGenerator func(lineIndex int64) int64

// Identity uses the line index itself as the id.
func Identity(lineIndex int64) int64 { return lineIndex }

// Offset shifts every line index by base.
func Offset(base int64) SequenceGenerator {
	return func(lineIndex int64) int64 {
		return base + lineIndex
	}
}

// Flake reserves one sonyflake id as the base of the run and offsets every
// line index from it. Parse tasks never touch the generator, so ids stay
// monotonic in lineIndex however batches are scheduled.
func Flake(gen *SonyFlakeGenerator) (SequenceGenerator, error) {
	base, err := gen.NextID()
	if err != nil {
		return nil, err
	}
	return Offset(base), nil
}

// Mode names accepted by FromMode.
const (
	ModeIndex  = "index"
	ModeOffset = "offset"
	ModeFlake  = "flake"
)

// FromMode builds a SequenceGenerator from a configuration string.
// base is only used by the offset mode and opts only by the flake mode.
func FromMode(mode string, base int64, opts ...FlakeOption) (SequenceGenerator, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", ModeIndex:
		return Identity, nil
	case ModeOffset:
		return Offset(base), nil
	case ModeFlake:
		gen, err := NewFlakeGenerator(opts...)
		if err != nil {
			return nil, fmt.Errorf("create flake generator: %w", err)
		}
		seq, err := Flake(gen)
		if err != nil {
			return nil, fmt.Errorf("reserve flake base: %w", err)
		}
		return seq, nil
	default:
		return nil, fmt.Errorf("unknown id mode %q", mode)
	}
}
