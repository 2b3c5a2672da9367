package bundlecore

import (
	"errors"
	"math"

	"github.com/shopspring/decimal"

	"github.com/ligun0805/asset-rescue/internal/fees"
)

// FundingInjector prepends the transfer that pays for the rest of the bundle.
type FundingInjector struct {
	Model   *fees.Model
	Funding Signer
	// Target is the account whose transactions the funding pays for.
	Target Signer
}

// Inject returns a new bundle with the funding transfer at index 0, sized from the
// observed rate (gwei) and the bundle's total gas, and the fee quote it used.
// The input bundle is not modified; every intent in the result carries the quote's fee fields.
func (f *FundingInjector) Inject(b *Bundle, totalGas uint64, observed decimal.Decimal) (*Bundle, fees.Quote, error) {
	return f.inject(b, totalGas, observed, 0)
}

func (f *FundingInjector) inject(b *Bundle, totalGas uint64, observed decimal.Decimal, attempt int) (*Bundle, fees.Quote, error) {
	if f.Model == nil || f.Funding == nil || f.Target == nil {
		return nil, fees.Quote{}, errors.New("funding injector is not configured")
	}
	if b == nil {
		return nil, fees.Quote{}, errors.New("nil bundle")
	}
	if totalGas > math.MaxInt64 {
		return nil, fees.Quote{}, fees.ErrInvalidGasBudget
	}
	q := f.Model.Quote(observed, attempt)
	value, err := f.Model.ComputeFundingValue(int64(totalGas), q.Padded)
	if err != nil {
		return nil, fees.Quote{}, err
	}

	out := &Bundle{Intents: make([]*TxIntent, 0, b.Len()+1)}
	out.Intents = append(out.Intents, &TxIntent{
		To:       f.Target.Address(),
		GasLimit: FundingGasLimit,
		Value:    fees.EtherToWei(value),
		Signer:   f.Funding,
	})
	for _, in := range b.Intents {
		cp := *in
		out.Intents = append(out.Intents, &cp)
	}
	out.ApplyQuote(q)
	return out, q, nil
}

// ApplyQuote sets fee cap and tip of every intent from q.
func (b *Bundle) ApplyQuote(q fees.Quote) {
	for _, in := range b.Intents {
		in.GasFeeCap = q.MaxFeePerGas
		in.GasTipCap = q.MaxPriorityFeePerGas
	}
}
