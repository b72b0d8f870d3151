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
	"errors"
	"fmt"
	"time"

	"github.com/sony/sonyflake"
)

// SonyFlakeGenerator hands out roughly time-ordered positive ids.
type SonyFlakeGenerator struct {
	sf *sonyflake.Sonyflake
}

// FlakeEpoch is the zero point of generated ids.
var FlakeEpoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

type FlakeOption func(*sonyflake.Settings)

// WithMachineID pins the 16-bit machine id instead of deriving it from
// the host's private IP address.
func WithMachineID(id uint16) FlakeOption {
	return func(s *sonyflake.Settings) {
		s.MachineID = func() (uint16, error) { return id, nil }
	}
}

func NewFlakeGenerator(opts ...FlakeOption) (*SonyFlakeGenerator, error) {
	settings := sonyflake.Settings{
		StartTime: FlakeEpoch,
	}
	for _, opt := range opts {
		opt(&settings)
	}

	sf, err := sonyflake.New(settings)
	if err != nil {
		return nil, fmt.Errorf("sonyflake: %w", err)
	}
	if sf == nil {
		return nil, errors.New("failed to create Sonyflake instance")
	}
	return &SonyFlakeGenerator{sf: sf}, nil
}

// NextID returns a positive int64 that increases with every call on the
// same generator.
func (sf *SonyFlakeGenerator) NextID() (int64, error) {
	v, err := sf.sf.NextID()
	if err != nil {
		return 0, fmt.Errorf("sonyflake: %w", err)
	}
	return int64(v), nil
}
