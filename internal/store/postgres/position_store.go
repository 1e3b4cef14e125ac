package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/esportsarb/internal/domain"
)

// PositionStore implements domain.PositionStore using PostgreSQL. It is a
// write-behind mirror of the tracker's in-memory book: transient fields
// such as the current price and unrealized PnL are not persisted.
type PositionStore struct {
	pool *pgxpool.Pool
}

// NewPositionStore creates a new PositionStore backed by the given connection pool.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

const positionSelectCols = `id, market_id, match_id, game, token_id, token_type,
	side, size, entry_price, stop_loss_price, take_profit_price, entry_edge,
	status, opened_at, closed_at, exit_price, exit_reason`

func scanPositionRows(rows pgx.Rows) ([]domain.Position, error) {
	var positions []domain.Position
	for rows.Next() {
		var p domain.Position
		var game, tokenType, side, status string
		var exitReason *string

		if err := rows.Scan(
			&p.ID, &p.MarketID, &p.MatchID, &game, &p.TokenID, &tokenType,
			&side, &p.Size, &p.EntryPrice, &p.StopLossPrice, &p.TakeProfitPrice, &p.EntryEdge,
			&status, &p.OpenedAt, &p.ClosedAt, &p.ExitPrice, &exitReason,
		); err != nil {
			return nil, err
		}
		p.Game = domain.Game(game)
		p.TokenType = domain.TokenType(tokenType)
		p.Side = domain.OrderSide(side)
		p.Status = domain.PositionStatus(status)
		if exitReason != nil {
			p.ExitReason = domain.ExitReason(*exitReason)
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// Insert mirrors a freshly opened position.
func (s *PositionStore) Insert(ctx context.Context, p domain.Position) error {
	var exitReason *string
	if p.ExitReason != "" {
		r := string(p.ExitReason)
		exitReason = &r
	}

	const query = `
		INSERT INTO positions (
			id, market_id, match_id, game, token_id, token_type,
			side, size, entry_price, stop_loss_price, take_profit_price, entry_edge,
			status, opened_at, closed_at, exit_price, exit_reason, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11, $12,
			$13, $14, $15, $16, $17, NOW()
		)`

	_, err := s.pool.Exec(ctx, query,
		p.ID, p.MarketID, p.MatchID, string(p.Game), p.TokenID, string(p.TokenType),
		string(p.Side), p.Size, p.EntryPrice, p.StopLossPrice, p.TakeProfitPrice, p.EntryEdge,
		string(p.Status), p.OpenedAt, p.ClosedAt, p.ExitPrice, exitReason,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert position %s: %w", p.ID, err)
	}
	return nil
}

// Close marks an open position closed with its exit price, reason and
// terminal status. Closing a position that is not open returns
// domain.ErrNotFound, so replayed exit signals stay harmless.
func (s *PositionStore) Close(ctx context.Context, id string, exitPrice float64, reason domain.ExitReason, status domain.PositionStatus) error {
	const query = `
		UPDATE positions SET
			status      = $2,
			exit_price  = $3,
			exit_reason = $4,
			closed_at   = NOW(),
			updated_at  = NOW()
		WHERE id = $1 AND status = 'open'`

	tag, err := s.pool.Exec(ctx, query, id, string(status), exitPrice, string(reason))
	if err != nil {
		return fmt.Errorf("postgres: close position %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListOpen returns every position still marked open, newest first. Used at
// startup to surface positions that survived a restart.
func (s *PositionStore) ListOpen(ctx context.Context) ([]domain.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionSelectCols+` FROM positions
		 WHERE status = 'open'
		 ORDER BY opened_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list open positions: %w", err)
	}
	defer rows.Close()

	positions, err := scanPositionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan open positions: %w", err)
	}
	return positions, nil
}

// ListHistory returns positions filtered on their open time, newest first.
func (s *PositionStore) ListHistory(ctx context.Context, opts domain.ListOpts) ([]domain.Position, error) {
	query := `SELECT ` + positionSelectCols + ` FROM positions WHERE 1=1`
	args := []any{}
	argIdx := 1

	if opts.Game != "" {
		query += fmt.Sprintf(" AND game = $%d", argIdx)
		args = append(args, string(opts.Game))
		argIdx++
	}
	if opts.Since != nil {
		query += fmt.Sprintf(" AND opened_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND opened_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY opened_at DESC"

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
		return nil, fmt.Errorf("postgres: list position history: %w", err)
	}
	defer rows.Close()

	positions, err := scanPositionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan position history: %w", err)
	}
	return positions, nil
}

// Compile-time interface check.
var _ domain.PositionStore = (*PositionStore)(nil)
