package volsurface

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleQuotes() []Quote {
	return []Quote{
		{Strike: 90, Expiry: 0.1, IV: 0.20},
		{Strike: 100, Expiry: 0.1, IV: 0.18},
		{Strike: 110, Expiry: 0.1, IV: 0.22},
		{Strike: 90, Expiry: 0.3, IV: 0.25},
		{Strike: 100, Expiry: 0.3, IV: 0.21},
		{Strike: 110, Expiry: 0.3, IV: 0.27},
	}
}

func TestBuildRequiresMinimumGrid(t *testing.T) {
	_, err := Build([]Quote{{Strike: 100, Expiry: 0.1, IV: 0.2}})
	require.ErrorIs(t, err, ErrInsufficientData)

	_, err = Build([]Quote{
		{Strike: 100, Expiry: 0.1, IV: 0.2},
		{Strike: 110, Expiry: 0.1, IV: 0.2},
	})
	require.ErrorIs(t, err, ErrInsufficientData, "only one distinct expiry")
}

func TestBuildFiltersNonPositiveIV(t *testing.T) {
	quotes := append(sampleQuotes(), Quote{Strike: 120, Expiry: 0.5, IV: -1})
	surf, err := Build(quotes)
	require.NoError(t, err)
	assert.NotContains(t, surf.Strikes, 120.0)
}

func TestQueryExactGridPoint(t *testing.T) {
	surf, err := Build(sampleQuotes())
	require.NoError(t, err)

	v, err := surf.Query(100, 0.1)
	require.NoError(t, err)
	assert.InDelta(t, 0.18, v, 1e-9)
}

func TestQueryBilinearInterpolation(t *testing.T) {
	surf, err := Build(sampleQuotes())
	require.NoError(t, err)

	// Strike 100 lies on a grid line and expiry 0.2 is midway between rows,
	// so the result is the average of the two expiry rows at strike 100.
	v, err := surf.Query(100, 0.2)
	require.NoError(t, err)
	expected := (0.18 + 0.21) / 2
	assert.InDelta(t, expected, v, 1e-9)
}

func TestQueryOutOfRange(t *testing.T) {
	surf, err := Build(sampleQuotes())
	require.NoError(t, err)

	_, err = surf.Query(200, 0.1)
	require.ErrorIs(t, err, ErrOutOfRange)
	_, err = surf.Query(100, 5.0)
	require.ErrorIs(t, err, ErrOutOfRange)
}

func TestExtractSmileAndTermStructure(t *testing.T) {
	surf, err := Build(sampleQuotes())
	require.NoError(t, err)

	smile, err := surf.ExtractSmile(0.1)
	require.NoError(t, err)
	require.Len(t, smile, 3)
	assert.InDelta(t, 0.18, smile[1], 1e-9)

	term, err := surf.ExtractTermStructure(100)
	require.NoError(t, err)
	require.Len(t, term, 2)
	assert.InDelta(t, 0.18, term[0], 1e-9)
	assert.InDelta(t, 0.21, term[1], 1e-9)
}

func TestToDictFromDictRoundTrip(t *testing.T) {
	surf, err := Build(sampleQuotes())
	require.NoError(t, err)

	d := surf.ToDict()
	// Simulate a JSON round trip where numbers decode as interface{} floats
	// and slices decode as []interface{}.
	jsonish := toInterfaceDict(d)

	rebuilt, err := FromDict(jsonish)
	require.NoError(t, err)
	assert.Equal(t, surf.Strikes, rebuilt.Strikes)
	assert.Equal(t, surf.Expiries, rebuilt.Expiries)
	assert.Equal(t, surf.IV, rebuilt.IV)
}

func toInterfaceDict(d map[string]interface{}) map[string]interface{} {
	out := map[string]interface{}{}
	out["strikes"] = toInterfaceSlice(d["strikes"].([]float64))
	out["expiries"] = toInterfaceSlice(d["expiries"].([]float64))

	rows := d["iv"].([][]float64)
	ivRows := make([]interface{}, len(rows))
	for i, row := range rows {
		ivRows[i] = toInterfaceSlice(row)
	}
	out["iv"] = ivRows
	return out
}

func toInterfaceSlice(f []float64) []interface{} {
	out := make([]interface{}, len(f))
	for i, v := range f {
		out[i] = v
	}
	return out
}
