// Package volsurface builds and queries an implied-vol grid.
package volsurface

import (
	"errors"
	"sort"
)

// ErrInsufficientData is returned by Build when fewer than two distinct
// strikes or expiries are present after filtering iv<=0.
var ErrInsufficientData = errors.New("volsurface: need at least 2 strikes and 2 expiries")

// ErrOutOfRange is returned by Query/ExtractSmile/ExtractTermStructure when
// the requested point falls outside the grid.
var ErrOutOfRange = errors.New("volsurface: point outside grid")

// Quote is one raw (strike, expiry-in-years, iv) observation.
type Quote struct {
	Strike float64
	Expiry float64 // time to expiry, in years, so the grid sorts numerically
	IV     float64
}

// Surface is the built (expiry x strike) IV grid: sorted unique strikes and
// expiries with a rectangular matrix, rows/cols with no data dropped.
type Surface struct {
	Strikes []float64
	Expiries []float64
	IV      [][]float64 // IV[expiryIdx][strikeIdx]
}

// Build assembles a Surface from quotes, filtering iv<=0, requiring >=2
// strikes and >=2 expiries overall.
func Build(quotes []Quote) (*Surface, error) {
	strikeSet := map[float64]bool{}
	expirySet := map[float64]bool{}
	for _, q := range quotes {
		if q.IV <= 0 {
			continue
		}
		strikeSet[q.Strike] = true
		expirySet[q.Expiry] = true
	}

	strikes := sortedKeys(strikeSet)
	expiries := sortedKeys(expirySet)
	if len(strikes) < 2 || len(expiries) < 2 {
		return nil, ErrInsufficientData
	}

	strikeIdx := indexOf(strikes)
	expiryIdx := indexOf(expiries)

	grid := make([][]float64, len(expiries))
	filled := make([][]bool, len(expiries))
	for i := range grid {
		grid[i] = make([]float64, len(strikes))
		filled[i] = make([]bool, len(strikes))
	}
	for _, q := range quotes {
		if q.IV <= 0 {
			continue
		}
		ei := expiryIdx[q.Expiry]
		si := strikeIdx[q.Strike]
		grid[ei][si] = q.IV
		filled[ei][si] = true
	}

	return &Surface{Strikes: strikes, Expiries: expiries, IV: grid}, nil
}

func sortedKeys(set map[float64]bool) []float64 {
	out := make([]float64, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Float64s(out)
	return out
}

func indexOf(sorted []float64) map[float64]int {
	m := make(map[float64]int, len(sorted))
	for i, v := range sorted {
		m[v] = i
	}
	return m
}

// bracket returns the indices (lo, hi) bracketing x within sorted, and the
// fractional position frac in [0,1] between them. Returns ok=false if x is
// outside [sorted[0], sorted[len-1]].
func bracket(sorted []float64, x float64) (lo, hi int, frac float64, ok bool) {
	n := len(sorted)
	if n == 0 || x < sorted[0] || x > sorted[n-1] {
		return 0, 0, 0, false
	}
	if x == sorted[n-1] {
		return n - 1, n - 1, 0, true
	}
	idx := sort.SearchFloat64s(sorted, x)
	if sorted[idx] == x {
		return idx, idx, 0, true
	}
	lo = idx - 1
	hi = idx
	span := sorted[hi] - sorted[lo]
	if span == 0 {
		return lo, hi, 0, true
	}
	return lo, hi, (x - sorted[lo]) / span, true
}

func lerp(a, b, frac float64) float64 {
	return a + (b-a)*frac
}

// Query returns the bilinearly interpolated IV at (strike, timeToExpiry).
// Returns ErrOutOfRange if the point lies outside the grid.
func (s *Surface) Query(strike, timeToExpiry float64) (float64, error) {
	kLo, kHi, kFrac, ok := bracket(s.Strikes, strike)
	if !ok {
		return 0, ErrOutOfRange
	}
	eLo, eHi, eFrac, ok := bracket(s.Expiries, timeToExpiry)
	if !ok {
		return 0, ErrOutOfRange
	}

	v00 := s.IV[eLo][kLo]
	v01 := s.IV[eLo][kHi]
	v10 := s.IV[eHi][kLo]
	v11 := s.IV[eHi][kHi]

	top := lerp(v00, v01, kFrac)
	bottom := lerp(v10, v11, kFrac)
	return lerp(top, bottom, eFrac), nil
}

// ExtractSmile returns the strike-indexed IV slice at time-to-expiry T,
// interpolating across the expiry axis when T falls between grid lines.
func (s *Surface) ExtractSmile(t float64) ([]float64, error) {
	eLo, eHi, eFrac, ok := bracket(s.Expiries, t)
	if !ok {
		return nil, ErrOutOfRange
	}
	out := make([]float64, len(s.Strikes))
	for i := range s.Strikes {
		out[i] = lerp(s.IV[eLo][i], s.IV[eHi][i], eFrac)
	}
	return out, nil
}

// ExtractTermStructure returns the expiry-indexed IV slice at strike K,
// interpolating across the strike axis when K falls between grid lines.
func (s *Surface) ExtractTermStructure(k float64) ([]float64, error) {
	kLo, kHi, kFrac, ok := bracket(s.Strikes, k)
	if !ok {
		return nil, ErrOutOfRange
	}
	out := make([]float64, len(s.Expiries))
	for i := range s.Expiries {
		out[i] = lerp(s.IV[i][kLo], s.IV[i][kHi], kFrac)
	}
	return out, nil
}

// dict is the stable wire shape for persistence, wrapped in a
// typed-marker envelope by the snapshot serializer.
type dict struct {
	Strikes  []float64   `json:"strikes"`
	Expiries []float64   `json:"expiries"`
	IV       [][]float64 `json:"iv"`
}

// ToDict returns the stable persistence representation.
func (s *Surface) ToDict() map[string]interface{} {
	return map[string]interface{}{
		"strikes":  s.Strikes,
		"expiries": s.Expiries,
		"iv":       s.IV,
	}
}

// FromDict rebuilds a Surface from ToDict's output (after generic JSON
// unmarshal into map[string]interface{}, as the persistence serializer
// produces).
func FromDict(m map[string]interface{}) (*Surface, error) {
	strikes, err := toFloatSlice(m["strikes"])
	if err != nil {
		return nil, err
	}
	expiries, err := toFloatSlice(m["expiries"])
	if err != nil {
		return nil, err
	}
	rawRows, ok := m["iv"].([]interface{})
	if !ok {
		return nil, errors.New("volsurface: iv field missing or malformed")
	}
	grid := make([][]float64, len(rawRows))
	for i, row := range rawRows {
		r, err := toFloatSlice(row)
		if err != nil {
			return nil, err
		}
		grid[i] = r
	}
	return &Surface{Strikes: strikes, Expiries: expiries, IV: grid}, nil
}

func toFloatSlice(v interface{}) ([]float64, error) {
	raw, ok := v.([]interface{})
	if !ok {
		return nil, errors.New("volsurface: expected array")
	}
	out := make([]float64, len(raw))
	for i, item := range raw {
		f, ok := item.(float64)
		if !ok {
			return nil, errors.New("volsurface: expected numeric array element")
		}
		out[i] = f
	}
	return out, nil
}
