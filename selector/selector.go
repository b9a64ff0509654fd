// Package selector implements the future selector (the 7-day rollover
// rule) and the option selector (liquidity-gated OTM-N selection) by
// filtering and ranking a symbol's quote chain.
package selector

import (
	"regexp"
	"sort"
	"strconv"
	"time"
)

// FutureCandidate is one tradeable future contract on a product.
type FutureCandidate struct {
	VtSymbol string
	Expiry   time.Time
}

var czceExpirySuffix = regexp.MustCompile(`(\d{3})$`)
var standardExpirySuffix = regexp.MustCompile(`(\d{4})$`)

// parseExpiryFromSymbol extracts the expiry implied by a symbol's trailing
// digits: 3 digits for CZCE-style symbols (e.g. "CF501" -> 2025-01), 4
// digits otherwise (e.g. "rb2505" -> 2025-05). On parse failure ok is false.
func parseExpiryFromSymbol(symbol string, asOf time.Time, czce bool) (time.Time, bool) {
	var digits string
	if czce {
		m := czceExpirySuffix.FindStringSubmatch(symbol)
		if m == nil {
			return time.Time{}, false
		}
		digits = m[1]
	} else {
		m := standardExpirySuffix.FindStringSubmatch(symbol)
		if m == nil {
			return time.Time{}, false
		}
		digits = m[1]
	}

	var year, month int
	if czce {
		// CZCE uses a single decade digit; assume the current decade.
		decadeDigit, err := strconv.Atoi(digits[:1])
		if err != nil {
			return time.Time{}, false
		}
		month, err = strconv.Atoi(digits[1:])
		if err != nil {
			return time.Time{}, false
		}
		decadeBase := (asOf.Year() / 10) * 10
		year = decadeBase + decadeDigit
	} else {
		yy, err := strconv.Atoi(digits[:2])
		if err != nil {
			return time.Time{}, false
		}
		month, err = strconv.Atoi(digits[2:])
		if err != nil {
			return time.Time{}, false
		}
		year = 2000 + yy
	}
	if month < 1 || month > 12 {
		return time.Time{}, false
	}
	return time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC), true
}

// SelectDominantFuture applies the 7-day rule: given candidates sorted by
// expiry ascending, pick the front unless fewer than 8 days remain to its
// expiry, in which case roll to the next contract. Expiry is parsed from
// the symbol when candidate.Expiry is zero; parse failure for the front
// contract falls back to returning the front contract itself (never an
// error — "fall back to front contract" per spec).
func SelectDominantFuture(candidates []FutureCandidate, today time.Time, czce bool) (FutureCandidate, bool) {
	if len(candidates) == 0 {
		return FutureCandidate{}, false
	}

	sorted := make([]FutureCandidate, len(candidates))
	copy(sorted, candidates)
	for i := range sorted {
		if sorted[i].Expiry.IsZero() {
			if exp, ok := parseExpiryFromSymbol(sorted[i].VtSymbol, today, czce); ok {
				sorted[i].Expiry = exp
			}
		}
	}
	if sorted[0].Expiry.IsZero() {
		return sorted[0], true // parse failure for the front contract: fall back to it
	}
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Expiry.IsZero() != sorted[j].Expiry.IsZero() {
			return sorted[j].Expiry.IsZero() // zero (unparsed) expiries sort last
		}
		return sorted[i].Expiry.Before(sorted[j].Expiry)
	})

	front := sorted[0]
	if front.Expiry.IsZero() {
		return front, true // parse failure: fall back to front contract
	}

	daysToExpiry := front.Expiry.Sub(today).Hours() / 24
	if daysToExpiry > 7 {
		return front, true
	}
	if len(sorted) > 1 {
		return sorted[1], true
	}
	return front, true
}

// OptionType discriminates CALL/PUT selection direction.
type OptionType string

const (
	Call OptionType = "CALL"
	Put  OptionType = "PUT"
)

// OptionQuote is one row of an option chain scan.
type OptionQuote struct {
	VtSymbol       string
	Strike         float64
	UnderlyingSpot float64
	OptionType     OptionType
	BidVolume      int
	BidPrice       float64
	AskPrice       float64
	TickSize       float64
	DaysToExpiry   int
}

// LiquidityFilter gates candidate option quotes before ranking.
type LiquidityFilter struct {
	MinBidVolume int
	MaxSpreadTicks float64
}

// CheckLiquidity reports whether q clears the liquidity gate. Reused
// verbatim by the strategy engine's open pre-trade check.
func CheckLiquidity(q OptionQuote, filter LiquidityFilter) bool {
	if q.BidVolume < filter.MinBidVolume {
		return false
	}
	if q.TickSize <= 0 {
		return false
	}
	spreadTicks := (q.AskPrice - q.BidPrice) / q.TickSize
	if spreadTicks < 0 {
		return false
	}
	return spreadTicks <= filter.MaxSpreadTicks
}

// signedMoneyness is positive out-of-the-money for the given option type:
// for calls, strike above spot is OTM (positive); for puts, strike below
// spot is OTM (positive).
func signedMoneyness(q OptionQuote) float64 {
	switch q.OptionType {
	case Call:
		return q.Strike - q.UnderlyingSpot
	case Put:
		return q.UnderlyingSpot - q.Strike
	default:
		return 0
	}
}

// SelectOption filters the chain for liquidity, sorts by moneyness in the
// direction appropriate for optType, and returns the N-th (0-indexed) OTM
// strike within [minDTE, maxDTE]. Returns ok=false if nothing qualifies —
// per spec, callers must not retry with looser parameters.
func SelectOption(chain []OptionQuote, optType OptionType, otmLevel int, filter LiquidityFilter, minDTE, maxDTE int) (OptionQuote, bool) {
	var candidates []OptionQuote
	for _, q := range chain {
		if q.OptionType != optType {
			continue
		}
		if !CheckLiquidity(q, filter) {
			continue
		}
		if q.DaysToExpiry < minDTE || q.DaysToExpiry > maxDTE {
			continue
		}
		candidates = append(candidates, q)
	}
	if len(candidates) == 0 || otmLevel < 0 || otmLevel >= len(candidates) {
		return OptionQuote{}, false
	}

	sort.Slice(candidates, func(i, j int) bool {
		return signedMoneyness(candidates[i]) < signedMoneyness(candidates[j])
	})

	// Only strikes that are actually out-of-the-money (positive signed
	// moneyness) qualify as OTM-N; N indexes into that subset, nearest ATM
	// first.
	var otm []OptionQuote
	for _, c := range candidates {
		if signedMoneyness(c) > 0 {
			otm = append(otm, c)
		}
	}
	if otmLevel >= len(otm) {
		return OptionQuote{}, false
	}
	return otm[otmLevel], true
}
