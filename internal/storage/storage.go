package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"orderflow-engine/internal/coordinator"
	"orderflow-engine/internal/market"
	"orderflow-engine/internal/perrors"
)

// Store wraps a GORM connection, following the teacher's database.Database
// wrapper shape.
type Store struct {
	db  *gorm.DB
	raw *sql.DB // lib/pq-backed connection for the read-only analytics queries below
}

// Connect opens a PostgreSQL connection via dsn and runs AutoMigrate for the
// trades/signals tables. Alongside the GORM connection it opens a second
// database/sql connection through lib/pq, following the teacher's
// database.NewConnection split between an ORM path for writes and a raw
// database/sql path for read-heavy analytics queries.
func Connect(dsn string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("storage: connect: %w", err)
	}
	if err := db.AutoMigrate(&TradeRecord{}, &SignalRecord{}); err != nil {
		return nil, fmt.Errorf("storage: automigrate: %w", err)
	}

	raw, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: raw connect: %w", err)
	}
	raw.SetMaxOpenConns(10)
	raw.SetConnMaxLifetime(5 * time.Minute)

	return &Store{db: db, raw: raw}, nil
}

// Close releases both the GORM and raw connection pools.
func (s *Store) Close() error {
	if err := s.raw.Close(); err != nil {
		return fmt.Errorf("storage: close raw: %w", err)
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("storage: close: %w", err)
	}
	return sqlDB.Close()
}

// SaveTrade persists one trade (spec.md §6 append-only trades table).
func (s *Store) SaveTrade(symbol string, grid market.Grid, t market.Trade) error {
	side := "buy"
	if t.AggressiveSide() == market.SideSell {
		side = "sell"
	}
	rec := TradeRecord{
		TradeID:   t.TradeID,
		EventTime: t.EventTime,
		Symbol:    symbol,
		Price:     grid.FromTicks(t.Price).String(),
		Quantity:  t.Quantity.String(),
		Side:      side,
	}
	if err := s.db.Create(&rec).Error; err != nil {
		return fmt.Errorf("storage: save trade: %w: %w", perrors.ErrInvariant, err)
	}
	return nil
}

// SaveSignal persists one finalized signal (spec.md §6 append-only signals
// table).
func (s *Store) SaveSignal(symbol string, grid market.Grid, sig coordinator.Signal) error {
	metadata, err := json.Marshal(sig.Metadata)
	if err != nil {
		metadata = nil
	}
	rec := SignalRecord{
		ID:         sig.ID,
		Time:       sig.Time,
		Symbol:     symbol,
		Price:      grid.FromTicks(sig.Price).String(),
		Type:       sig.Type,
		Side:       string(sig.Side),
		Confidence: sig.Confidence,
		State:      string(sig.State),
		Metadata:   metadata,
	}
	if err := s.db.Create(&rec).Error; err != nil {
		return fmt.Errorf("storage: save signal: %w: %w", perrors.ErrInvariant, err)
	}
	return nil
}

// BatchSaveTrades flushes a buffered slice in one insert, grounded on the
// teacher's handlers/running_trade.go batch-saver ticker pattern.
func (s *Store) BatchSaveTrades(symbol string, grid market.Grid, trades []market.Trade) error {
	if len(trades) == 0 {
		return nil
	}
	recs := make([]TradeRecord, len(trades))
	for i, t := range trades {
		side := "buy"
		if t.AggressiveSide() == market.SideSell {
			side = "sell"
		}
		recs[i] = TradeRecord{
			TradeID:   t.TradeID,
			EventTime: t.EventTime,
			Symbol:    symbol,
			Price:     grid.FromTicks(t.Price).String(),
			Quantity:  t.Quantity.String(),
			Side:      side,
		}
	}
	if err := s.db.CreateInBatches(recs, 500).Error; err != nil {
		return fmt.Errorf("storage: batch save trades: %w: %w", perrors.ErrInvariant, err)
	}
	return nil
}

// RecentSignals runs a plain database/sql query over the raw lib/pq
// connection rather than through GORM, for the read path the API server
// exercises on every /api/signals/history request.
func (s *Store) RecentSignals(symbol string, limit int) ([]SignalRecord, error) {
	rows, err := s.raw.Query(
		`SELECT id, time, symbol, price, type, side, confidence, state, metadata
		 FROM signals WHERE symbol = $1 ORDER BY time DESC LIMIT $2`,
		symbol, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: recent signals query: %w", err)
	}
	defer rows.Close()

	var out []SignalRecord
	for rows.Next() {
		var rec SignalRecord
		var metadata []byte
		if err := rows.Scan(&rec.ID, &rec.Time, &rec.Symbol, &rec.Price, &rec.Type, &rec.Side, &rec.Confidence, &rec.State, &metadata); err != nil {
			return nil, fmt.Errorf("storage: recent signals scan: %w", err)
		}
		rec.Metadata = json.RawMessage(metadata)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: recent signals rows: %w", err)
	}
	return out, nil
}
