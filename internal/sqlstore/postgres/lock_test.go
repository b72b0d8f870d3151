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


package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cardinalhq/fhirimport/internal/sqlstore"
)

func TestLockKey(t *testing.T) {
	assert.Equal(t, LockKey("publish-events"), LockKey("publish-events"))
	assert.NotEqual(t, LockKey("publish-events"), LockKey("publish-events-2"))
}

func TestRegistered(t *testing.T) {
	assert.Contains(t, sqlstore.Backends(), "postgres")
}
