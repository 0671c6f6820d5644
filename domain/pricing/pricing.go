// Package pricing provides the model rate table and cost arithmetic.
// All amounts are integer microdollars (1 USD = 1,000,000) so that cost
// accounting never touches floating point.
package pricing

import "github.com/llmgate/llmgate/domain/gateway"

// MicrodollarsPerCredit converts between microdollars and gateway credits.
// 1 credit = 100 microdollars = $0.0001.
const MicrodollarsPerCredit = 100

// Rates holds per-million-token prices in microdollars.
type Rates struct {
	Input         int64
	Output        int64
	CacheCreation int64
	CacheRead     int64
}

// makeRates derives cache rates from the input rate: cache creation is
// billed at 1.25x input, cache reads at 0.1x input.
func makeRates(input, output int64) Rates {
	return Rates{
		Input:         input,
		Output:        output,
		CacheCreation: input * 125 / 100,
		CacheRead:     input / 10,
	}
}

// DefaultModel is the rate fallback for unrecognized models.
const DefaultModel = "default"

// table maps model identifiers to rates. Prices are microdollars per
// million tokens, so e.g. 3_000_000 is $3 / MTok.
var table = map[string]Rates{
	"claude-opus-4-5":            makeRates(5_000_000, 25_000_000),
	"claude-sonnet-4-5":          makeRates(3_000_000, 15_000_000),
	"claude-haiku-4-5":           makeRates(1_000_000, 5_000_000),
	"claude-sonnet-4-5-20250514": makeRates(3_000_000, 15_000_000),
	"claude-opus-4-5-20250514":   makeRates(5_000_000, 25_000_000),
	"claude-haiku-4-5-20250514":  makeRates(1_000_000, 5_000_000),
	"claude-opus-4":              makeRates(15_000_000, 75_000_000),
	"claude-sonnet-4":            makeRates(3_000_000, 15_000_000),
	"claude-sonnet-4-20250514":   makeRates(3_000_000, 15_000_000),
	"claude-opus-4-20250514":     makeRates(15_000_000, 75_000_000),
	"claude-3-5-sonnet-20241022": makeRates(3_000_000, 15_000_000),
	"claude-3-5-haiku-20241022":  makeRates(1_000_000, 5_000_000),
	"claude-3-opus-20240229":     makeRates(15_000_000, 75_000_000),
	"claude-3-sonnet-20240229":   makeRates(3_000_000, 15_000_000),
	"claude-3-haiku-20240307":    makeRates(250_000, 1_250_000),
	DefaultModel:                 makeRates(3_000_000, 15_000_000),
}

// Lookup returns the rates for a model. Unknown models fall back to the
// default rates; pricing never rejects a request.
func Lookup(model string) Rates {
	if r, ok := table[model]; ok {
		return r
	}
	return table[DefaultModel]
}

// Cost computes the cost of a request in microdollars, rounded half-up.
func Cost(model string, u gateway.TokenUsage) int64 {
	r := Lookup(model)
	perMillion := u.InputTokens*r.Input +
		u.OutputTokens*r.Output +
		u.CacheCreationTokens*r.CacheCreation +
		u.CacheReadTokens*r.CacheRead
	return (perMillion + 500_000) / 1_000_000
}

// Credits converts microdollars to gateway credits, rounding up so that
// fractional consumption is never given away.
func Credits(microdollars int64) int64 {
	if microdollars <= 0 {
		return 0
	}
	return (microdollars + MicrodollarsPerCredit - 1) / MicrodollarsPerCredit
}

// Cents converts microdollars to display cents, rounding up.
func Cents(microdollars int64) int64 {
	if microdollars <= 0 {
		return 0
	}
	return (microdollars + 9_999) / 10_000
}
