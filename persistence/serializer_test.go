package persistence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDatetimeMarker_RoundTrip(t *testing.T) {
	now := time.Date(2026, 7, 29, 9, 30, 0, 0, time.UTC)
	wrapped := WrapDatetime(now)

	data, err := Encode(wrapped)
	require.NoError(t, err)

	tree, err := Decode(data)
	require.NoError(t, err)

	got, ok := UnwrapDatetime(tree)
	require.True(t, ok)
	assert.True(t, now.Equal(got))
}

func TestDateMarker_RoundTrip(t *testing.T) {
	d := time.Date(2026, 7, 29, 0, 0, 0, 0, time.UTC)
	data, err := Encode(WrapDate(d))
	require.NoError(t, err)

	tree, err := Decode(data)
	require.NoError(t, err)

	got, ok := UnwrapDate(tree)
	require.True(t, ok)
	assert.True(t, d.Equal(got))
}

func TestEnumMarker_RoundTrip(t *testing.T) {
	data, err := Encode(WrapEnum("Direction", "LONG"))
	require.NoError(t, err)

	tree, err := Decode(data)
	require.NoError(t, err)

	typeName, value, ok := UnwrapEnum(tree)
	require.True(t, ok)
	assert.Equal(t, "Direction", typeName)
	assert.Equal(t, "LONG", value)
}

func TestSetMarker_RoundTrip(t *testing.T) {
	data, err := Encode(WrapSet([]interface{}{"IF2501", "IF2502"}))
	require.NoError(t, err)

	tree, err := Decode(data)
	require.NoError(t, err)

	values, ok := UnwrapSet(tree)
	require.True(t, ok)
	assert.ElementsMatch(t, []interface{}{"IF2501", "IF2502"}, values)
}

func TestDataFrameMarker_RoundTrip(t *testing.T) {
	records := []map[string]interface{}{
		{"strike": 3500.0, "iv": 0.21},
		{"strike": 3600.0, "iv": 0.19},
	}
	data, err := Encode(WrapDataFrame(records))
	require.NoError(t, err)

	tree, err := Decode(data)
	require.NoError(t, err)

	got, ok := UnwrapDataFrame(tree)
	require.True(t, ok)
	require.Len(t, got, 2)
	assert.Equal(t, 3500.0, got[0]["strike"])
}

func TestDataclassMarker_RoundTrip(t *testing.T) {
	data, err := Encode(WrapDataclass("position.Position", map[string]interface{}{
		"vt_symbol": "IF2501",
		"volume":    2.0,
	}))
	require.NoError(t, err)

	tree, err := Decode(data)
	require.NoError(t, err)

	typeName, fields, ok := UnwrapDataclass(tree)
	require.True(t, ok)
	assert.Equal(t, "position.Position", typeName)
	assert.Equal(t, "IF2501", fields["vt_symbol"])
	assert.NotContains(t, fields, MarkerDataclass)
}

func TestUnknownMarker_PassesThrough(t *testing.T) {
	data, err := Encode(map[string]interface{}{"__future_marker__": "???", "value": 1.0})
	require.NoError(t, err)

	tree, err := Decode(data)
	require.NoError(t, err)

	assert.Equal(t, "???", tree["__future_marker__"])
	assert.Equal(t, 1.0, tree["value"])
}

func TestSnapshot_EncodeDecodeRoundTrip(t *testing.T) {
	saved := time.Date(2026, 7, 29, 14, 50, 0, 0, time.UTC)
	snap := Snapshot{
		SchemaVersion: CurrentSchemaVersion,
		SavedAt:       saved,
		CurrentDT:     saved,
		TargetAggregate: map[string]interface{}{
			"symbols": WrapSet([]interface{}{"IF2501"}),
		},
		PositionAggregate: map[string]interface{}{
			"positions": WrapDataFrame(nil),
		},
	}

	data, err := snap.Encode()
	require.NoError(t, err)

	got, err := DecodeSnapshot(data)
	require.NoError(t, err)

	assert.Equal(t, CurrentSchemaVersion, got.SchemaVersion)
	assert.True(t, saved.Equal(got.SavedAt))
	assert.True(t, saved.Equal(got.CurrentDT))
	assert.NotNil(t, got.TargetAggregate)
	assert.NotNil(t, got.PositionAggregate)
}

func TestMigrate_NoOpAtCurrentVersion(t *testing.T) {
	tree := map[string]interface{}{"schema_version": float64(CurrentSchemaVersion)}
	out, err := Migrate(tree, CurrentSchemaVersion)
	require.NoError(t, err)
	assert.Equal(t, tree, out)
}

func TestMigrate_UnknownOlderVersionErrors(t *testing.T) {
	_, err := Migrate(map[string]interface{}{}, CurrentSchemaVersion+1)
	assert.NoError(t, err) // fromVersion already >= current: no-op, not an error

	_, err = Migrate(map[string]interface{}{}, -1)
	require.Error(t, err)
}

func TestIdempotencyKey_IsStable(t *testing.T) {
	bar := time.Date(2026, 7, 29, 9, 31, 0, 0, time.UTC)
	k1 := IdempotencyKey("td9_futures", "inst-1", "IF2501", bar, "open")
	k2 := IdempotencyKey("td9_futures", "inst-1", "IF2501", bar, "open")
	assert.Equal(t, k1, k2)

	k3 := IdempotencyKey("td9_futures", "inst-1", "IF2501", bar, "close")
	assert.NotEqual(t, k1, k3)
}
