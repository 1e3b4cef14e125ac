package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/esportsarb/internal/domain"
)

// TradeStore implements domain.TradeStore using PostgreSQL.
type TradeStore struct {
	pool *pgxpool.Pool
}

// NewTradeStore creates a new TradeStore backed by the given connection pool.
func NewTradeStore(pool *pgxpool.Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

const tradeSelectCols = `trade_id, position_id, market_id, match_id, game,
	side, token_type, size, entry_price, exit_price,
	gross_pnl, fees, net_pnl, entry_time, exit_time,
	hold_seconds, entry_edge, exit_reason`

func scanTradeRows(rows pgx.Rows) ([]domain.TradeRecord, error) {
	var trades []domain.TradeRecord
	for rows.Next() {
		var t domain.TradeRecord
		var game, side, tokenType, exitReason string

		if err := rows.Scan(
			&t.TradeID, &t.PositionID, &t.MarketID, &t.MatchID, &game,
			&side, &tokenType, &t.Size, &t.EntryPrice, &t.ExitPrice,
			&t.GrossPnl, &t.Fees, &t.NetPnl, &t.EntryTime, &t.ExitTime,
			&t.HoldSeconds, &t.EntryEdge, &exitReason,
		); err != nil {
			return nil, err
		}
		t.Game = domain.Game(game)
		t.Side = domain.OrderSide(side)
		t.TokenType = domain.TokenType(tokenType)
		t.ExitReason = domain.ExitReason(exitReason)
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// Insert persists one closed-trade receipt. Re-inserting the same trade ID
// is a no-op so write-behind retries stay safe.
func (s *TradeStore) Insert(ctx context.Context, t domain.TradeRecord) error {
	const query = `
		INSERT INTO trades (
			trade_id, position_id, market_id, match_id, game,
			side, token_type, size, entry_price, exit_price,
			gross_pnl, fees, net_pnl, entry_time, exit_time,
			hold_seconds, entry_edge, exit_reason
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15,
			$16, $17, $18
		) ON CONFLICT (trade_id) DO NOTHING`

	_, err := s.pool.Exec(ctx, query,
		t.TradeID, t.PositionID, t.MarketID, t.MatchID, string(t.Game),
		string(t.Side), string(t.TokenType), t.Size, t.EntryPrice, t.ExitPrice,
		t.GrossPnl, t.Fees, t.NetPnl, t.EntryTime, t.ExitTime,
		t.HoldSeconds, t.EntryEdge, string(t.ExitReason),
	)
	if err != nil {
		return fmt.Errorf("postgres: insert trade %s: %w", t.TradeID, err)
	}
	return nil
}

// List returns trade receipts with pagination, optional time filtering on
// exit time and an optional game filter.
func (s *TradeStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.TradeRecord, error) {
	query := `SELECT ` + tradeSelectCols + ` FROM trades WHERE 1=1`
	args := []any{}
	argIdx := 1

	if opts.Game != "" {
		query += fmt.Sprintf(" AND game = $%d", argIdx)
		args = append(args, string(opts.Game))
		argIdx++
	}
	if opts.Since != nil {
		query += fmt.Sprintf(" AND exit_time >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND exit_time <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY exit_time DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades: %w", err)
	}
	defer rows.Close()

	trades, err := scanTradeRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan trades: %w", err)
	}
	return trades, nil
}

// Summary aggregates every recorded trade into a performance roll-up.
func (s *TradeStore) Summary(ctx context.Context) (domain.PerformanceSummary, error) {
	const query = `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE net_pnl > 0),
			COUNT(*) FILTER (WHERE net_pnl < 0),
			COALESCE(SUM(net_pnl), 0),
			COALESCE(SUM(size * entry_price), 0)
		FROM trades`

	var sum domain.PerformanceSummary
	err := s.pool.QueryRow(ctx, query).Scan(
		&sum.TotalTrades, &sum.WinningTrades, &sum.LosingTrades,
		&sum.TotalPnl, &sum.TotalVolume,
	)
	if err != nil {
		return domain.PerformanceSummary{}, fmt.Errorf("postgres: trade summary: %w", err)
	}

	if sum.TotalTrades > 0 {
		sum.WinRate = float64(sum.WinningTrades) / float64(sum.TotalTrades)
		sum.AvgPnlPerTrade = sum.TotalPnl / float64(sum.TotalTrades)
	}
	return sum, nil
}

// ListBefore returns all trades that exited strictly before the given time,
// oldest first (for archiving).
func (s *TradeStore) ListBefore(ctx context.Context, before time.Time) ([]domain.TradeRecord, error) {
	query := `SELECT ` + tradeSelectCols + ` FROM trades WHERE exit_time < $1 ORDER BY exit_time ASC`
	rows, err := s.pool.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades before: %w", err)
	}
	defer rows.Close()
	return scanTradeRows(rows)
}

// DeleteBefore deletes all trades that exited before the given time.
// Returns the number deleted.
func (s *TradeStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM trades WHERE exit_time < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete trades before: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Compile-time interface check.
var _ domain.TradeStore = (*TradeStore)(nil)
