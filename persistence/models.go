// Package persistence implements strategy-state snapshotting and the
// monitor tables' gorm models: struct-tag-driven schema with explicit
// TableName overrides and AutoMigrate-driven setup.
package persistence

import "time"

// StrategyState is one versioned snapshot of a running strategy's
// in-memory aggregates. Only the latest row per strategy_name matters
// for Load; older rows are retained for Cleanup's keep-days window and for
// forensics.
type StrategyState struct {
	ID            int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	StrategyName  string    `gorm:"size:100;not null;index:idx_strategy_saved,priority:1" json:"strategy_name"`
	SnapshotJSON  string    `gorm:"type:text;not null" json:"snapshot_json"`
	SchemaVersion int       `gorm:"not null" json:"schema_version"`
	SavedAt       time.Time `gorm:"not null;index:idx_strategy_saved,priority:2" json:"saved_at"`
}

func (StrategyState) TableName() string { return "strategy_state" }

// MonitorSignalSnapshot is the latest-known-state row per (variant,
// instance_id), upserted on every write. A lightweight read model for
// dashboards, independent of strategy_state's full snapshot.
type MonitorSignalSnapshot struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Variant    string    `gorm:"size:100;not null;uniqueIndex:idx_monitor_snapshot_key,priority:1" json:"variant"`
	InstanceID string    `gorm:"size:100;not null;uniqueIndex:idx_monitor_snapshot_key,priority:2" json:"instance_id"`
	PayloadJSON string   `gorm:"type:text;not null" json:"payload_json"`
	UpdatedAt  time.Time `gorm:"not null" json:"updated_at"`
}

func (MonitorSignalSnapshot) TableName() string { return "monitor_signal_snapshot" }

// MonitorSignalEvent is an append-only log of discrete monitor events,
// deduplicated by IdempotencyKey (variant|instance|vt_symbol|bar_dt|extra).
type MonitorSignalEvent struct {
	ID              int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	IdempotencyKey  string    `gorm:"size:300;not null;uniqueIndex" json:"idempotency_key"`
	Variant         string    `gorm:"size:100;not null;index" json:"variant"`
	InstanceID      string    `gorm:"size:100;not null" json:"instance_id"`
	VtSymbol        string    `gorm:"size:50;index" json:"vt_symbol"`
	EventType       string    `gorm:"size:50;not null" json:"event_type"`
	PayloadJSON     string    `gorm:"type:text" json:"payload_json"`
	BarDateTime     time.Time `json:"bar_datetime"`
	CreatedAt       time.Time `gorm:"not null" json:"created_at"`
}

func (MonitorSignalEvent) TableName() string { return "monitor_signal_event" }

// IdempotencyKey builds the (variant, instance, vt_symbol, bar_dt,
// event_type) composite key used for de-duplicating monitor events on
// insert, so at-least-once delivery never double-counts.
func IdempotencyKey(variant, instanceID, vtSymbol string, barDT time.Time, extra string) string {
	return variant + "|" + instanceID + "|" + vtSymbol + "|" + barDT.Format(time.RFC3339) + "|" + extra
}
