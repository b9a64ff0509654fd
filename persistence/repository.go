package persistence

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/haka-quant/optionengine/apperr"
)

// Repository wraps a gorm handle for strategy-state snapshots and the
// monitor tables: InitSchema drives the schema via AutoMigrate, one
// Repository struct per concern.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// InitSchema auto-migrates every table this package owns.
func (r *Repository) InitSchema() error {
	return r.db.AutoMigrate(&StrategyState{}, &MonitorSignalSnapshot{}, &MonitorSignalEvent{})
}

// Save appends a new strategy_state row; it never updates in place.
func (r *Repository) Save(strategyName string, snapshot Snapshot) error {
	snapshot.SchemaVersion = CurrentSchemaVersion
	if snapshot.SavedAt.IsZero() {
		snapshot.SavedAt = time.Now().UTC()
	}
	data, err := snapshot.Encode()
	if err != nil {
		return fmt.Errorf("persistence: encode snapshot: %w", err)
	}
	row := StrategyState{
		StrategyName:  strategyName,
		SnapshotJSON:  string(data),
		SchemaVersion: snapshot.SchemaVersion,
		SavedAt:       snapshot.SavedAt,
	}
	return r.db.Create(&row).Error
}

// Load fetches the most recent snapshot for strategyName, migrating it up
// to CurrentSchemaVersion on the fly. Returns apperr.ArchiveNotFoundError
// when no row exists (not a failure — callers start with empty
// aggregates) and apperr.CorruptionError when the stored JSON cannot be
// parsed or carries no schema_version.
func (r *Repository) Load(strategyName string) (Snapshot, error) {
	var row StrategyState
	err := r.db.Where("strategy_name = ?", strategyName).
		Order("saved_at DESC").
		Limit(1).
		First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return Snapshot{}, apperr.NewArchiveNotFound(strategyName)
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("persistence: load %q: %w", strategyName, err)
	}

	tree, err := Decode([]byte(row.SnapshotJSON))
	if err != nil {
		return Snapshot{}, apperr.NewCorruption(strategyName, err)
	}
	version, ok := tree["schema_version"].(float64)
	if !ok {
		return Snapshot{}, apperr.NewCorruption(strategyName, fmt.Errorf("missing schema_version"))
	}
	migrated, err := Migrate(tree, int(version))
	if err != nil {
		return Snapshot{}, apperr.NewCorruption(strategyName, err)
	}
	snap, err := snapshotFromTree(migrated)
	if err != nil {
		return Snapshot{}, apperr.NewCorruption(strategyName, err)
	}
	return snap, nil
}

// Cleanup deletes strategy_state rows older than keepDays for strategyName.
func (r *Repository) Cleanup(strategyName string, keepDays int) error {
	cutoff := time.Now().UTC().AddDate(0, 0, -keepDays)
	return r.db.Where("strategy_name = ? AND saved_at < ?", strategyName, cutoff).
		Delete(&StrategyState{}).Error
}

// VerifyIntegrity returns true iff the latest snapshot JSON for
// strategyName is parseable and carries a schema_version.
func (r *Repository) VerifyIntegrity(strategyName string) bool {
	var row StrategyState
	err := r.db.Where("strategy_name = ?", strategyName).
		Order("saved_at DESC").
		Limit(1).
		First(&row).Error
	if err != nil {
		return false
	}
	var probe struct {
		SchemaVersion *int `json:"schema_version"`
	}
	if err := json.Unmarshal([]byte(row.SnapshotJSON), &probe); err != nil {
		return false
	}
	return probe.SchemaVersion != nil
}

// UpsertMonitorSnapshot writes the latest-known-state row for (variant,
// instanceID), replacing any prior row for that key.
func (r *Repository) UpsertMonitorSnapshot(variant, instanceID string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("persistence: encode monitor snapshot: %w", err)
	}
	row := MonitorSignalSnapshot{
		Variant:     variant,
		InstanceID:  instanceID,
		PayloadJSON: string(data),
		UpdatedAt:   time.Now().UTC(),
	}
	return r.db.Where("variant = ? AND instance_id = ?", variant, instanceID).
		Assign(map[string]interface{}{"payload_json": row.PayloadJSON, "updated_at": row.UpdatedAt}).
		FirstOrCreate(&row).Error
}

// AppendMonitorEvent inserts a monitor_signal_event row, silently no-oping
// on a duplicate idempotency key so at-least-once delivery never
// double-counts.
func (r *Repository) AppendMonitorEvent(evt MonitorSignalEvent) error {
	if evt.CreatedAt.IsZero() {
		evt.CreatedAt = time.Now().UTC()
	}
	err := r.db.Create(&evt).Error
	if err != nil && isUniqueViolation(err) {
		return nil
	}
	return err
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "UNIQUE constraint") ||
		strings.Contains(msg, "unique constraint")
}
