package persistence

import "time"

// Snapshot is the top-level strategy-state envelope: schema_version,
// saved_at, the two owned aggregates (opaque marker trees — the strategy
// engine builds these from instrument.Aggregate / position.Aggregate via
// its own ToSnapshot methods), and the strategy's notion of "now" at save
// time (current_dt), needed to resume rollover/daily-counter logic
// correctly across a restart.
type Snapshot struct {
	SchemaVersion     int                    `json:"schema_version"`
	SavedAt           time.Time              `json:"-"`
	TargetAggregate   map[string]interface{} `json:"target_aggregate"`
	PositionAggregate map[string]interface{} `json:"position_aggregate"`
	CurrentDT         time.Time              `json:"-"`
}

// toWire flattens SavedAt/CurrentDT through the __datetime__ marker
// so the wire shape matches the rest of the snapshot tree.
func (s Snapshot) toWire() map[string]interface{} {
	return map[string]interface{}{
		"schema_version":     s.SchemaVersion,
		"saved_at":           WrapDatetime(s.SavedAt),
		"target_aggregate":   s.TargetAggregate,
		"position_aggregate": s.PositionAggregate,
		"current_dt":         WrapDatetime(s.CurrentDT),
	}
}

// Encode serializes the snapshot to its JSON wire form.
func (s Snapshot) Encode() ([]byte, error) {
	return Encode(s.toWire())
}

// DecodeSnapshot parses JSON produced by Snapshot.Encode (after any
// required Migrate step) back into a Snapshot.
func DecodeSnapshot(data []byte) (Snapshot, error) {
	tree, err := Decode(data)
	if err != nil {
		return Snapshot{}, err
	}
	return snapshotFromTree(tree)
}

func snapshotFromTree(tree map[string]interface{}) (Snapshot, error) {
	var s Snapshot
	if v, ok := tree["schema_version"].(float64); ok {
		s.SchemaVersion = int(v)
	}
	if t, ok := UnwrapDatetime(tree["saved_at"]); ok {
		s.SavedAt = t
	}
	if t, ok := UnwrapDatetime(tree["current_dt"]); ok {
		s.CurrentDT = t
	}
	if m, ok := tree["target_aggregate"].(map[string]interface{}); ok {
		s.TargetAggregate = m
	}
	if m, ok := tree["position_aggregate"].(map[string]interface{}); ok {
		s.PositionAggregate = m
	}
	return s, nil
}
