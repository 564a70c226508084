package storage

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/wfarrell/condortrack/internal/models"
)

// SQLiteStorage implements Interface on a local SQLite database.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens (and if necessary creates) the warehouse at path.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// InsertTrade persists a trade and its legs in one transaction.
func (s *SQLiteStorage) InsertTrade(ctx context.Context, trade *models.Trade, legs []models.Leg) error {
	if err := trade.Validate(); err != nil {
		return err
	}
	for i := range legs {
		if err := legs[i].Validate(); err != nil {
			return err
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO trades
		(trade_id, symbol, strategy_type, expiration_date, entry_time, entry_price, status, pnl, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		trade.TradeID, trade.Symbol, string(trade.StrategyType), trade.ExpirationDate,
		trade.EntryTime.UTC(), trade.EntryPrice, string(trade.Status), trade.PnL, trade.Notes,
	)
	if err != nil {
		return fmt.Errorf("inserting trade %s: %w", trade.TradeID, err)
	}

	for i := range legs {
		leg := &legs[i]
		_, err = tx.ExecContext(ctx, `
			INSERT INTO trade_legs
			(leg_id, trade_id, strike, option_type, direction, entry_price, status, pnl)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			leg.LegID, leg.TradeID, leg.Strike, string(leg.OptionType),
			string(leg.Direction), leg.EntryPrice, string(leg.Status), leg.PnL,
		)
		if err != nil {
			return fmt.Errorf("inserting leg %s: %w", leg.LegID, err)
		}
	}

	return tx.Commit()
}

// OpenLegs returns all open legs for a symbol with owning-trade metadata.
func (s *SQLiteStorage) OpenLegs(ctx context.Context, symbol string) ([]OpenLeg, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT l.leg_id, l.trade_id, l.strike, l.option_type, l.direction,
		       l.entry_price, l.status, l.pnl,
		       t.symbol, t.strategy_type, t.expiration_date, t.entry_price
		FROM trade_legs l
		JOIN trades t ON t.trade_id = l.trade_id
		WHERE l.status = 'open' AND t.symbol = ?
		ORDER BY t.trade_id, l.leg_id`, symbol)
	if err != nil {
		return nil, fmt.Errorf("querying open legs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var legs []OpenLeg
	for rows.Next() {
		var ol OpenLeg
		if err := rows.Scan(
			&ol.LegID, &ol.TradeID, &ol.Strike, &ol.OptionType, &ol.Direction,
			&ol.EntryPrice, &ol.Status, &ol.PnL,
			&ol.Symbol, &ol.StrategyType, &ol.ExpirationDate, &ol.TradeEntryPrice,
		); err != nil {
			return nil, fmt.Errorf("scanning open leg: %w", err)
		}
		legs = append(legs, ol)
	}
	return legs, rows.Err()
}

// TradeLegs returns every leg of a trade, open or closed.
func (s *SQLiteStorage) TradeLegs(ctx context.Context, tradeID string) ([]models.Leg, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT leg_id, trade_id, strike, option_type, direction, entry_price, status, exit_price, pnl
		FROM trade_legs
		WHERE trade_id = ?
		ORDER BY leg_id`, tradeID)
	if err != nil {
		return nil, fmt.Errorf("querying legs for trade %s: %w", tradeID, err)
	}
	defer func() { _ = rows.Close() }()

	var legs []models.Leg
	for rows.Next() {
		var leg models.Leg
		var exit sql.NullFloat64
		if err := rows.Scan(
			&leg.LegID, &leg.TradeID, &leg.Strike, &leg.OptionType, &leg.Direction,
			&leg.EntryPrice, &leg.Status, &exit, &leg.PnL,
		); err != nil {
			return nil, fmt.Errorf("scanning leg: %w", err)
		}
		if exit.Valid {
			v := exit.Float64
			leg.ExitPrice = &v
		}
		legs = append(legs, leg)
	}
	return legs, rows.Err()
}

// GetTrade returns one trade or ErrTradeNotFound.
func (s *SQLiteStorage) GetTrade(ctx context.Context, tradeID string) (*models.Trade, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT trade_id, symbol, strategy_type, expiration_date, entry_time,
		       entry_price, status, pnl, exit_time, exit_price, notes
		FROM trades WHERE trade_id = ?`, tradeID)
	t, err := scanTrade(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrTradeNotFound, tradeID)
	}
	return t, err
}

// ListTrades returns all trades for a symbol, newest first.
func (s *SQLiteStorage) ListTrades(ctx context.Context, symbol string) ([]models.Trade, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT trade_id, symbol, strategy_type, expiration_date, entry_time,
		       entry_price, status, pnl, exit_time, exit_price, notes
		FROM trades WHERE symbol = ?
		ORDER BY entry_time DESC`, symbol)
	if err != nil {
		return nil, fmt.Errorf("querying trades: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var trades []models.Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		trades = append(trades, *t)
	}
	return trades, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTrade(row rowScanner) (*models.Trade, error) {
	var t models.Trade
	var exitTime sql.NullTime
	var exitPrice sql.NullFloat64
	err := row.Scan(
		&t.TradeID, &t.Symbol, &t.StrategyType, &t.ExpirationDate, &t.EntryTime,
		&t.EntryPrice, &t.Status, &t.PnL, &exitTime, &exitPrice, &t.Notes,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("scanning trade: %w", err)
	}
	if exitTime.Valid {
		v := exitTime.Time
		t.ExitTime = &v
	}
	if exitPrice.Valid {
		v := exitPrice.Float64
		t.ExitPrice = &v
	}
	return &t, nil
}

// InsertSnapshots appends per-leg valuation snapshots in one transaction.
func (s *SQLiteStorage) InsertSnapshots(ctx context.Context, snaps []models.LiveSnapshot) error {
	if len(snaps) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO live_trade_pnl
		(trade_id, leg_id, timestamp, current_price, theoretical_pnl,
		 underlying_price, underlying_symbol, price_type, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing snapshot insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i := range snaps {
		sn := &snaps[i]
		if _, err := stmt.ExecContext(ctx,
			sn.TradeID, sn.LegID, sn.Timestamp.UTC(), sn.CurrentPrice, sn.TheoreticalPnL,
			sn.UnderlyingPrice, sn.UnderlyingSymbol, sn.PriceType, string(sn.Status),
		); err != nil {
			return fmt.Errorf("inserting snapshot for leg %s: %w", sn.LegID, err)
		}
	}
	return tx.Commit()
}

// UpdateLeg applies the cycle's field set to one leg.
func (s *SQLiteStorage) UpdateLeg(ctx context.Context, legID string, upd LegUpdate) error {
	var err error
	if upd.ExitPrice != nil {
		_, err = s.db.ExecContext(ctx, `
			UPDATE trade_legs SET pnl = ?, status = ?, exit_price = ?
			WHERE leg_id = ? AND status != 'closed'`,
			upd.PnL, string(upd.Status), *upd.ExitPrice, legID)
	} else {
		_, err = s.db.ExecContext(ctx, `
			UPDATE trade_legs SET pnl = ?, status = ?
			WHERE leg_id = ? AND status != 'closed'`,
			upd.PnL, string(upd.Status), legID)
	}
	if err != nil {
		return fmt.Errorf("updating leg %s: %w", legID, err)
	}
	return nil
}

// UpdateTrade applies the rollup to one trade. The status guard is part of
// the statement itself: an already-closed trade matches zero rows and is
// left untouched.
func (s *SQLiteStorage) UpdateTrade(ctx context.Context, tradeID string, upd TradeUpdate) error {
	var err error
	if upd.Status == models.TradeClosed {
		var exitTime interface{}
		if upd.ExitTime != nil {
			exitTime = upd.ExitTime.UTC()
		}
		var exitPrice interface{}
		if upd.ExitPrice != nil {
			exitPrice = *upd.ExitPrice
		}
		_, err = s.db.ExecContext(ctx, `
			UPDATE trades SET pnl = ?, status = ?, exit_time = ?, exit_price = ?
			WHERE trade_id = ? AND status != 'closed'`,
			upd.PnL, string(upd.Status), exitTime, exitPrice, tradeID)
	} else {
		_, err = s.db.ExecContext(ctx, `
			UPDATE trades SET pnl = ?, status = ?
			WHERE trade_id = ? AND status != 'closed'`,
			upd.PnL, string(upd.Status), tradeID)
	}
	if err != nil {
		return fmt.Errorf("updating trade %s: %w", tradeID, err)
	}
	return nil
}

// InsertAnalysis appends a derived P/L analysis row. NaN breakevens are
// stored as NULL.
func (s *SQLiteStorage) InsertAnalysis(ctx context.Context, a models.PLAnalysis) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trade_pl_analysis
		(trade_id, timestamp, max_profit, max_loss, breakeven_lower, breakeven_upper,
		 probability_profit, delta, theta, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.TradeID, a.Timestamp.UTC(), a.MaxProfit, a.MaxLoss,
		nanToNull(a.BreakevenLower), nanToNull(a.BreakevenUpper),
		a.ProbabilityProfit, a.Delta, a.Theta, a.Notes,
	)
	if err != nil {
		return fmt.Errorf("inserting analysis for trade %s: %w", a.TradeID, err)
	}
	return nil
}

// LatestAnalysis returns the newest analysis for a trade or ErrNoAnalysis.
func (s *SQLiteStorage) LatestAnalysis(ctx context.Context, tradeID string) (*models.PLAnalysis, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT trade_id, timestamp, max_profit, max_loss, breakeven_lower, breakeven_upper,
		       probability_profit, delta, theta, notes
		FROM trade_pl_analysis
		WHERE trade_id = ?
		ORDER BY timestamp DESC
		LIMIT 1`, tradeID)

	var a models.PLAnalysis
	var beLower, beUpper sql.NullFloat64
	err := row.Scan(&a.TradeID, &a.Timestamp, &a.MaxProfit, &a.MaxLoss,
		&beLower, &beUpper, &a.ProbabilityProfit, &a.Delta, &a.Theta, &a.Notes)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: trade %s", ErrNoAnalysis, tradeID)
	}
	if err != nil {
		return nil, fmt.Errorf("scanning analysis: %w", err)
	}
	a.BreakevenLower = nullToNaN(beLower)
	a.BreakevenUpper = nullToNaN(beUpper)
	return &a, nil
}

// InsertUnderlyingSnapshot appends an underlying quote record.
func (s *SQLiteStorage) InsertUnderlyingSnapshot(ctx context.Context, us UnderlyingSnapshot) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO underlying_snapshots (symbol, timestamp, last, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		us.Symbol, us.Timestamp.UTC(), us.Last, us.Open, us.High, us.Low, us.Close, us.Volume,
	)
	if err != nil {
		return fmt.Errorf("inserting underlying snapshot: %w", err)
	}
	return nil
}

// RecentUnderlyingCloses returns up to limit last prices for a symbol,
// oldest first.
func (s *SQLiteStorage) RecentUnderlyingCloses(ctx context.Context, symbol string, limit int) ([]float64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT last FROM (
			SELECT last, timestamp FROM underlying_snapshots
			WHERE symbol = ?
			ORDER BY timestamp DESC
			LIMIT ?
		) ORDER BY timestamp ASC`, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("querying underlying closes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var closes []float64
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scanning close: %w", err)
		}
		closes = append(closes, v)
	}
	return closes, rows.Err()
}

func nanToNull(v float64) interface{} {
	if math.IsNaN(v) {
		return nil
	}
	return v
}

func nullToNaN(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}
