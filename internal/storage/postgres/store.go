package postgres

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"sslScope/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS pool_ticks (
	chain_id        BIGINT      NOT NULL,
	pool_address    TEXT        NOT NULL,
	tick_idx        INTEGER     NOT NULL,
	liquidity_gross NUMERIC(39) NOT NULL,
	liquidity_net   NUMERIC(39) NOT NULL,
	block_number    BIGINT      NOT NULL,
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (chain_id, pool_address, tick_idx)
)`

// Store mirrors initialized pool ticks in Postgres.
type Store struct {
	pool    *pgxpool.Pool
	chainID uint64
}

func NewStore(ctx context.Context, dsn string, chainID uint64) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool, chainID: chainID}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Migrate creates the tick table if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create pool_ticks: %w", err)
	}
	return nil
}

// SyncWindow replaces the mirrored ticks of a pool within [q.Lower, q.Upper]
// with ticks, in one transaction. Ticks that are no longer initialized drop
// out of the mirror.
func (s *Store) SyncWindow(ctx context.Context, q model.TickQuery, ticks []model.Tick) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			DELETE FROM pool_ticks
			WHERE chain_id = $1 AND pool_address = $2 AND tick_idx BETWEEN $3 AND $4
		`, int64(s.chainID), poolKey(q.Pool), q.Lower, q.Upper); err != nil {
			return fmt.Errorf("clear tick window: %w", err)
		}
		return upsertTicks(ctx, tx, s.chainID, q.Pool, q.BlockNumber, ticks)
	})
}

func upsertTicks(ctx context.Context, tx pgx.Tx, chainID uint64, pool common.Address, blockNumber uint64, ticks []model.Tick) error {
	if len(ticks) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, t := range ticks {
		batch.Queue(`
			INSERT INTO pool_ticks (
				chain_id, pool_address, tick_idx, liquidity_gross, liquidity_net, block_number, updated_at
			) VALUES ($1, $2, $3, $4::numeric, $5::numeric, $6, now())
			ON CONFLICT (chain_id, pool_address, tick_idx)
			DO UPDATE SET
				liquidity_gross = EXCLUDED.liquidity_gross,
				liquidity_net = EXCLUDED.liquidity_net,
				block_number = GREATEST(pool_ticks.block_number, EXCLUDED.block_number),
				updated_at = now()
		`,
			int64(chainID),
			poolKey(pool),
			t.TickIdx,
			bigString(t.LiquidityGross),
			bigString(t.LiquidityNet),
			int64(blockNumber),
		)
	}

	br := tx.SendBatch(ctx, batch)
	defer br.Close()

	for _, t := range ticks {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("upsert tick %d: %w", t.TickIdx, err)
		}
	}
	return nil
}

// InitializedTicks reads the mirrored ticks within the query range. The
// mirror holds the last synced snapshot, so q.BlockNumber is not applied.
func (s *Store) InitializedTicks(ctx context.Context, q model.TickQuery) ([]model.Tick, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT tick_idx, liquidity_gross::text, liquidity_net::text
		FROM pool_ticks
		WHERE chain_id = $1 AND pool_address = $2 AND tick_idx BETWEEN $3 AND $4
		ORDER BY tick_idx
	`, int64(s.chainID), poolKey(q.Pool), q.Lower, q.Upper)
	if err != nil {
		return nil, fmt.Errorf("query ticks: %w", err)
	}
	defer rows.Close()

	var ticks []model.Tick
	for rows.Next() {
		var (
			idx        int32
			gross, net string
		)
		if err := rows.Scan(&idx, &gross, &net); err != nil {
			return nil, fmt.Errorf("scan tick: %w", err)
		}
		tick, err := parseTickRow(idx, gross, net)
		if err != nil {
			return nil, err
		}
		ticks = append(ticks, tick)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read ticks: %w", err)
	}
	return ticks, nil
}

func parseTickRow(idx int32, gross, net string) (model.Tick, error) {
	g, ok := new(big.Int).SetString(gross, 10)
	if !ok {
		return model.Tick{}, fmt.Errorf("tick %d: invalid liquidity gross %q", idx, gross)
	}
	n, ok := new(big.Int).SetString(net, 10)
	if !ok {
		return model.Tick{}, fmt.Errorf("tick %d: invalid liquidity net %q", idx, net)
	}
	return model.Tick{TickIdx: idx, LiquidityGross: g, LiquidityNet: n}, nil
}

func poolKey(pool common.Address) string {
	return strings.ToLower(pool.Hex())
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
