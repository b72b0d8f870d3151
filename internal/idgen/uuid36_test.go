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
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUUIDToBase36(t *testing.T) {
	tests := []struct {
		id   string
		want string
	}{
		{"123e4567-e89b-12d3-a456-426614174001", "12vqjrnxk8whv3i8qi6qgrlz5"},
		{"00000000-0000-0000-0000-000000000000", "0000000000000000000000000"},
		{"00000000-0000-0000-0000-000000000100", "0000000000000000000000074"},
		{"ffffffff-ffff-ffff-ffff-ffffffffffff", "f5lxx1zz5pnorynqglhzmsp33"},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			assert.Equal(t, tt.want, UUIDToBase36(uuid.MustParse(tt.id)))
		})
	}
}

func TestParseJobID(t *testing.T) {
	want := uuid.MustParse("123e4567-e89b-12d3-a456-426614174001")

	got, err := ParseJobID("123e4567-e89b-12d3-a456-426614174001")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	got, err = ParseJobID("12vqjrnxk8whv3i8qi6qgrlz5")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	for _, bad := range []string{"", "not a job!", "zzzzzzzzzzzzzzzzzzzzzzzzz"} {
		_, err := ParseJobID(bad)
		assert.Error(t, err, bad)
	}
}

func TestNewJobIDRoundTrip(t *testing.T) {
	for range 50 {
		s := NewJobID()
		assert.Len(t, s, 25)
		id, err := ParseJobID(s)
		require.NoError(t, err)
		assert.Equal(t, s, UUIDToBase36(id))
	}
}
