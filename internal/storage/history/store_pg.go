// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package history

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"verify-platform/internal/consensus"
	"verify-platform/pkg/retention"
)

const schema = `CREATE TABLE IF NOT EXISTS verifications (
	id               TEXT PRIMARY KEY,
	correlation_id   TEXT,
	claim            TEXT NOT NULL,
	final_verdict    TEXT NOT NULL,
	confidence       DOUBLE PRECISION NOT NULL,
	valid_sources    INTEGER NOT NULL,
	tier             TEXT,
	created_at       TIMESTAMPTZ NOT NULL,
	payload          JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS verifications_created_at_idx ON verifications (created_at DESC);`

// StorePg Postgres 实现；完整结果以 JSONB 保存，常用字段单独成列便于查询
type StorePg struct {
	pool *pgxpool.Pool
}

// NewStorePg 创建连接池并确保表存在
func NewStorePg(ctx context.Context, dsn string) (*StorePg, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, err
	}
	return &StorePg{pool: pool}, nil
}

// Close 关闭连接池
func (s *StorePg) Close() {
	s.pool.Close()
}

func (s *StorePg) Save(ctx context.Context, r *consensus.Result) error {
	if r == nil || r.ID == "" {
		return nil
	}
	payload, err := json.Marshal(r)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO verifications (id, correlation_id, claim, final_verdict, confidence, valid_sources, tier, created_at, payload)
		 VALUES ($1, NULLIF($2,''), $3, $4, $5, $6, NULLIF($7,''), $8, $9)
		 ON CONFLICT (id) DO NOTHING`,
		r.ID, r.CorrelationID, r.Claim, string(r.FinalVerdict), r.Confidence, r.ValidSourceCount, r.Tier, r.Timestamp, payload)
	return err
}

func (s *StorePg) Get(ctx context.Context, id string) (*consensus.Result, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx, `SELECT payload FROM verifications WHERE id = $1`, id).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	var out consensus.Result
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *StorePg) List(ctx context.Context, limit int) ([]*consensus.Result, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `SELECT payload FROM verifications ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*consensus.Result
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var r consensus.Result
		if err := json.Unmarshal(payload, &r); err != nil {
			return nil, err
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

func (s *StorePg) Prune(ctx context.Context, before time.Time, sel retention.Selector) (int, error) {
	var (
		tag pgconn.CommandTag
		err error
	)
	switch {
	case len(sel.Verdicts) == 0 && sel.Exclude:
		return 0, nil
	case len(sel.Verdicts) == 0:
		tag, err = s.pool.Exec(ctx, `DELETE FROM verifications WHERE created_at < $1`, before)
	case sel.Exclude:
		tag, err = s.pool.Exec(ctx, `DELETE FROM verifications WHERE created_at < $1 AND NOT (final_verdict = ANY($2))`, before, sel.Verdicts)
	default:
		tag, err = s.pool.Exec(ctx, `DELETE FROM verifications WHERE created_at < $1 AND final_verdict = ANY($2)`, before, sel.Verdicts)
	}
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
