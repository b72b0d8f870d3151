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
	"context"
	"fmt"
	"log/slog"

	"github.com/cespare/xxhash/v2"

	"github.com/cardinalhq/fhirimport/internal/logctx"
)

// LockKey maps a lock name to a Postgres advisory lock key.
func LockKey(name string) int64 {
	return int64(xxhash.Sum64String("fhirimport:" + name))
}

// TryLock takes the session advisory lock for name on a dedicated
// connection. When ok is true the caller holds the lock until unlock is
// called or the connection drops.
func (s *Store) TryLock(ctx context.Context, name string) (unlock func(), ok bool, err error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire lock connection: %w", err)
	}

	key := LockKey(name)
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, key).Scan(&ok); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock %s: %w", name, err)
	}
	if !ok {
		conn.Release()
		return nil, false, nil
	}

	unlock = func() {
		if _, err := conn.Exec(context.Background(), `SELECT pg_advisory_unlock($1)`, key); err != nil {
			logctx.FromContext(ctx).Warn("Failed to release advisory lock",
				slog.String("lock", name), slog.Any("error", err))
		}
		conn.Release()
	}
	return unlock, true, nil
}
