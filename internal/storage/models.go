// Package storage persists trades and finalized signals via GORM +
// PostgreSQL, TimescaleDB-flavored (composite time-partitioned primary
// keys), following the teacher's database/models_pkg layout.
package storage

import (
	"encoding/json"
	"time"
)

// TradeRecord is the append-only trade table (spec.md §6: "trades(tradeId
// pk, eventTime, price, quantity, side)"). TradeID+EventTime form a
// composite primary key so the table can be declared a TimescaleDB
// hypertable partitioned by EventTime without an auto-increment surrogate
// key fighting the partitioning.
type TradeRecord struct {
	TradeID   int64     `gorm:"primaryKey" json:"tradeId"`
	EventTime time.Time `gorm:"primaryKey;index" json:"eventTime"`
	Symbol    string    `gorm:"size:20;index;not null" json:"symbol"`
	Price     string    `gorm:"size:40;not null" json:"price"`
	Quantity  string    `gorm:"size:40;not null" json:"quantity"`
	Side      string    `gorm:"size:8;not null" json:"side"`
}

// TableName specifies the table name for TradeRecord.
func (TradeRecord) TableName() string { return "trades" }

// SignalRecord is the append-only signal table (spec.md §6:
// "signals(id pk, time, price, type, side, confidence, metadata)").
type SignalRecord struct {
	ID         string          `gorm:"primaryKey;size:40" json:"id"`
	Time       time.Time       `gorm:"primaryKey;index" json:"time"`
	Symbol     string          `gorm:"size:20;index;not null" json:"symbol"`
	Price      string          `gorm:"size:40;not null" json:"price"`
	Type       string          `gorm:"size:32;index;not null" json:"type"`
	Side       string          `gorm:"size:8;not null" json:"side"`
	Confidence float64         `gorm:"not null" json:"confidence"`
	State      string          `gorm:"size:16;not null" json:"state"`
	Metadata   json.RawMessage `gorm:"type:jsonb" json:"metadata,omitempty"`
}

// TableName specifies the table name for SignalRecord.
func (SignalRecord) TableName() string { return "signals" }
