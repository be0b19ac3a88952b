package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/tradesim/internal/domain"
)

// EstimateStore implements domain.EstimateStore using PostgreSQL.
type EstimateStore struct {
	pool *pgxpool.Pool
}

// NewEstimateStore creates a new EstimateStore backed by the given connection pool.
func NewEstimateStore(pool *pgxpool.Pool) *EstimateStore {
	return &EstimateStore{pool: pool}
}

const estimateSelectCols = `id, venue, instrument, book_timestamp,
	quantity_usd, volatility, fee_tier,
	expected_slippage, expected_fees, expected_market_impact, net_cost,
	maker_proportion, maker_taker_ratio, mid_price, flags, latency_ns, computed_at`

func scanEstimate(row pgx.Row) (domain.CostMetrics, error) {
	var (
		m         domain.CostMetrics
		feeTier   string
		flags     int32
		latencyNs int64
	)
	err := row.Scan(
		&m.ID, &m.Venue, &m.Instrument, &m.BookTimestamp,
		&m.Params.QuantityUSD, &m.Params.Volatility, &feeTier,
		&m.ExpectedSlippage, &m.ExpectedFees, &m.ExpectedMarketImpact, &m.NetCost,
		&m.MakerProportion, &m.MakerTakerRatio, &m.MidPrice, &flags, &latencyNs, &m.ComputedAt,
	)
	if err != nil {
		return domain.CostMetrics{}, err
	}
	m.Params.FeeTier = domain.FeeTier(feeTier)
	m.Flags = domain.EstimateFlags(flags)
	m.Latency = time.Duration(latencyNs)
	return m, nil
}

func scanEstimateRows(rows pgx.Rows) ([]domain.CostMetrics, error) {
	defer rows.Close()
	var out []domain.CostMetrics
	for rows.Next() {
		m, err := scanEstimate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Insert stores an estimate. Re-inserting an existing ID is a no-op.
func (s *EstimateStore) Insert(ctx context.Context, m domain.CostMetrics) error {
	const query = `
		INSERT INTO estimates (
			id, venue, instrument, book_timestamp,
			quantity_usd, volatility, fee_tier,
			expected_slippage, expected_fees, expected_market_impact, net_cost,
			maker_proportion, maker_taker_ratio, mid_price, flags, latency_ns, computed_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7,
			$8, $9, $10, $11,
			$12, $13, $14, $15, $16, $17
		) ON CONFLICT (id) DO NOTHING`

	_, err := s.pool.Exec(ctx, query,
		m.ID, m.Venue, m.Instrument, m.BookTimestamp,
		m.Params.QuantityUSD, m.Params.Volatility, string(m.Params.FeeTier),
		m.ExpectedSlippage, m.ExpectedFees, m.ExpectedMarketImpact, m.NetCost,
		m.MakerProportion, m.MakerTakerRatio, m.MidPrice, int32(m.Flags), m.Latency.Nanoseconds(), m.ComputedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert estimate %s: %w", m.ID, err)
	}
	return nil
}

// GetByID returns one estimate, or domain.ErrNotFound.
func (s *EstimateStore) GetByID(ctx context.Context, id string) (domain.CostMetrics, error) {
	query := `SELECT ` + estimateSelectCols + ` FROM estimates WHERE id = $1`
	m, err := scanEstimate(s.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.CostMetrics{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.CostMetrics{}, fmt.Errorf("postgres: get estimate %s: %w", id, err)
	}
	return m, nil
}

// List returns estimates newest first with pagination and optional time
// filtering on computed_at.
func (s *EstimateStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.CostMetrics, error) {
	query := `SELECT ` + estimateSelectCols + ` FROM estimates WHERE 1=1`
	args := []any{}
	argIdx := 1

	if opts.Since != nil {
		query += fmt.Sprintf(" AND computed_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND computed_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY computed_at DESC, id"

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
		return nil, fmt.Errorf("postgres: list estimates: %w", err)
	}
	out, err := scanEstimateRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan estimates: %w", err)
	}
	return out, nil
}

// ListBefore returns up to limit estimates computed before the cutoff,
// oldest first.
func (s *EstimateStore) ListBefore(ctx context.Context, before time.Time, limit int) ([]domain.CostMetrics, error) {
	query := `SELECT ` + estimateSelectCols + `
		FROM estimates WHERE computed_at < $1
		ORDER BY computed_at ASC, id
		LIMIT $2`

	rows, err := s.pool.Query(ctx, query, before, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list estimates before %s: %w", before.Format(time.RFC3339), err)
	}
	out, err := scanEstimateRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan estimates: %w", err)
	}
	return out, nil
}

// DeleteByIDs removes the given estimates and reports how many rows went.
func (s *EstimateStore) DeleteByIDs(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM estimates WHERE id = ANY($1)`, ids)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete %d estimates: %w", len(ids), err)
	}
	return tag.RowsAffected(), nil
}

// Count returns the number of stored estimates.
func (s *EstimateStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM estimates`).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count estimates: %w", err)
	}
	return n, nil
}

// Compile-time interface check.
var _ domain.EstimateStore = (*EstimateStore)(nil)
