package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/esportsarb/internal/domain"
)

// StatStore implements domain.StatStore using PostgreSQL. Each closed trade
// folds into the UTC calendar day of its exit, so a day's row converges to
// the same totals no matter what order trades land in.
type StatStore struct {
	pool *pgxpool.Pool
}

// NewStatStore creates a new StatStore backed by the given connection pool.
func NewStatStore(pool *pgxpool.Pool) *StatStore {
	return &StatStore{pool: pool}
}

const statSelectCols = `date, total_trades, winning_trades, losing_trades,
	gross_pnl, fees, net_pnl, volume, lol_trades, dota_trades,
	total_hold_seconds, updated_at`

func scanDailyStatsRow(row pgx.Row) (domain.DailyStats, error) {
	var d domain.DailyStats
	var totalHoldSeconds float64
	if err := row.Scan(
		&d.Date, &d.TotalTrades, &d.WinningTrades, &d.LosingTrades,
		&d.GrossPnl, &d.Fees, &d.NetPnl, &d.Volume, &d.LolTrades, &d.DotaTrades,
		&totalHoldSeconds, &d.UpdatedAt,
	); err != nil {
		return domain.DailyStats{}, err
	}
	// Hold time is stored as a running sum; the average is derived on read.
	if d.TotalTrades > 0 {
		d.AvgHoldSeconds = totalHoldSeconds / float64(d.TotalTrades)
	}
	return d, nil
}

// ApplyTrade folds one closed trade into its exit day's aggregate row,
// creating the row on first trade of the day.
func (s *StatStore) ApplyTrade(ctx context.Context, trade domain.TradeRecord) error {
	date := trade.ExitTime.UTC().Format("2006-01-02")

	var winInc, lossInc int
	switch {
	case trade.NetPnl > 0:
		winInc = 1
	case trade.NetPnl < 0:
		lossInc = 1
	}

	var lolInc, dotaInc int
	switch trade.Game {
	case domain.GameLoL:
		lolInc = 1
	case domain.GameDota2:
		dotaInc = 1
	}

	const query = `
		INSERT INTO daily_stats (
			date, total_trades, winning_trades, losing_trades,
			gross_pnl, fees, net_pnl, volume,
			lol_trades, dota_trades, total_hold_seconds, updated_at
		) VALUES (
			$1, 1, $2, $3,
			$4, $5, $6, $7,
			$8, $9, $10, NOW()
		)
		ON CONFLICT (date) DO UPDATE SET
			total_trades       = daily_stats.total_trades + 1,
			winning_trades     = daily_stats.winning_trades + EXCLUDED.winning_trades,
			losing_trades      = daily_stats.losing_trades + EXCLUDED.losing_trades,
			gross_pnl          = daily_stats.gross_pnl + EXCLUDED.gross_pnl,
			fees               = daily_stats.fees + EXCLUDED.fees,
			net_pnl            = daily_stats.net_pnl + EXCLUDED.net_pnl,
			volume             = daily_stats.volume + EXCLUDED.volume,
			lol_trades         = daily_stats.lol_trades + EXCLUDED.lol_trades,
			dota_trades        = daily_stats.dota_trades + EXCLUDED.dota_trades,
			total_hold_seconds = daily_stats.total_hold_seconds + EXCLUDED.total_hold_seconds,
			updated_at         = NOW()`

	_, err := s.pool.Exec(ctx, query,
		date, winInc, lossInc,
		trade.GrossPnl, trade.Fees, trade.NetPnl, trade.Size*trade.EntryPrice,
		lolInc, dotaInc, trade.HoldSeconds,
	)
	if err != nil {
		return fmt.Errorf("postgres: apply trade %s to daily stats: %w", trade.TradeID, err)
	}
	return nil
}

// Get returns the aggregate row for one YYYY-MM-DD date.
func (s *StatStore) Get(ctx context.Context, date string) (domain.DailyStats, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+statSelectCols+` FROM daily_stats WHERE date = $1`, date)

	stats, err := scanDailyStatsRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.DailyStats{}, domain.ErrNotFound
		}
		return domain.DailyStats{}, fmt.Errorf("postgres: get daily stats %s: %w", date, err)
	}
	return stats, nil
}

// Range returns aggregate rows for dates in [from, to], ascending. Days
// with no trades have no row and are simply absent.
func (s *StatStore) Range(ctx context.Context, from, to string) ([]domain.DailyStats, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+statSelectCols+` FROM daily_stats
		 WHERE date >= $1 AND date <= $2
		 ORDER BY date`, from, to)
	if err != nil {
		return nil, fmt.Errorf("postgres: range daily stats: %w", err)
	}
	defer rows.Close()

	var out []domain.DailyStats
	for rows.Next() {
		stats, err := scanDailyStatsRow(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan daily stats: %w", err)
		}
		out = append(out, stats)
	}
	return out, rows.Err()
}

// Compile-time interface check.
var _ domain.StatStore = (*StatStore)(nil)
