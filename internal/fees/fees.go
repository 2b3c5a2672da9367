package fees

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrInvalidGasBudget is returned when a bundle's total gas limit is zero or negative.
var ErrInvalidGasBudget = errors.New("invalid gas budget")

const (
	// DefaultPlaces is the rounding precision for fee rates (gwei) and funding values (ETH).
	DefaultPlaces = 8

	// gwei per ETH and wei per gwei, as decimal exponents
	gweiExp = 9
	weiExp  = 18
)

// DefaultPadding is added to the observed rate, in gwei.
var DefaultPadding = decimal.RequireFromString("1.5")

// Mode selects how the padded rate maps onto EIP-1559 fee fields.
type Mode int

const (
	// ModeSingleRate sets both fee cap and priority fee to the padded rate.
	ModeSingleRate Mode = iota
	// ModeSplitRate keeps the padded rate as fee cap and offers only the padding as tip.
	ModeSplitRate
)

func (m Mode) String() string {
	switch m {
	case ModeSingleRate:
		return "single"
	case ModeSplitRate:
		return "split"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// ParseMode accepts "single" or "split"; empty means single.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "single":
		return ModeSingleRate, nil
	case "split":
		return ModeSplitRate, nil
	}
	return 0, fmt.Errorf("unknown fee mode %q", s)
}

// Model converts an observed network fee rate into padded per-gas fees
// and the native value that covers a bundle's gas budget.
//
// All rates are gwei, values are ETH. Rounding is half away from zero
// (decimal.Decimal.Round) everywhere, so the funding value and the fee
// fields are always derived from the same padded rate.
//
// An observed rate with more than Places decimals (a wei-exact gas price has
// nine) may round down, so the padded rate is observed + padding to within
// half a unit of the last place, not strictly at or above it.
type Model struct {
	Padding decimal.Decimal
	// Escalation is added to Padding once per previous attempt.
	Escalation decimal.Decimal
	Places     int32
	Mode       Mode
}

// NewModel returns a single-rate model with the given padding.
func NewModel(padding decimal.Decimal) *Model {
	return &Model{
		Padding:    padding,
		Escalation: decimal.Zero,
		Places:     DefaultPlaces,
		Mode:       ModeSingleRate,
	}
}

// DeriveFeeRate returns observed + padding rounded to Places.
func (m *Model) DeriveFeeRate(observed decimal.Decimal) decimal.Decimal {
	return m.deriveAt(observed, 0)
}

func (m *Model) padding(attempt int) decimal.Decimal {
	if attempt <= 0 || m.Escalation.IsZero() {
		return m.Padding
	}
	return m.Padding.Add(m.Escalation.Mul(decimal.NewFromInt(int64(attempt))))
}

func (m *Model) deriveAt(observed decimal.Decimal, attempt int) decimal.Decimal {
	return observed.Add(m.padding(attempt)).Round(m.Places)
}

// ComputeFundingValue returns round(padded × totalGas / 1e9, Places) in ETH.
func (m *Model) ComputeFundingValue(totalGas int64, padded decimal.Decimal) (decimal.Decimal, error) {
	if totalGas <= 0 {
		return decimal.Zero, fmt.Errorf("%w: total gas %d", ErrInvalidGasBudget, totalGas)
	}
	// Shift is exact; Div would round at DivisionPrecision first.
	v := padded.Mul(decimal.NewFromInt(totalGas)).Shift(-gweiExp)
	return v.Round(m.Places), nil
}

// Quote is the fee snapshot for one submission attempt.
type Quote struct {
	Observed decimal.Decimal // gwei
	Padded   decimal.Decimal // gwei

	MaxFeePerGas         *big.Int // wei
	MaxPriorityFeePerGas *big.Int // wei
}

// Quote derives fee fields for the given observed rate and zero-based attempt index.
func (m *Model) Quote(observed decimal.Decimal, attempt int) Quote {
	padded := m.deriveAt(observed, attempt)
	q := Quote{
		Observed:     observed,
		Padded:       padded,
		MaxFeePerGas: GweiToWei(padded),
	}
	switch m.Mode {
	case ModeSplitRate:
		tip := GweiToWei(m.padding(attempt).Round(m.Places))
		if tip.Cmp(q.MaxFeePerGas) > 0 {
			tip = new(big.Int).Set(q.MaxFeePerGas)
		}
		q.MaxPriorityFeePerGas = tip
	default:
		q.MaxPriorityFeePerGas = new(big.Int).Set(q.MaxFeePerGas)
	}
	return q
}

// WeiToGwei converts a wei amount into an exact gwei decimal.
func WeiToGwei(wei *big.Int) decimal.Decimal {
	if wei == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(wei, -gweiExp)
}

// GweiToWei converts gwei to wei, truncating anything below one wei.
func GweiToWei(gwei decimal.Decimal) *big.Int {
	return gwei.Shift(gweiExp).BigInt()
}

// EtherToWei converts ETH to wei, truncating anything below one wei.
func EtherToWei(eth decimal.Decimal) *big.Int {
	return eth.Shift(weiExp).BigInt()
}

// WeiToEther converts a wei amount into an exact ETH decimal.
func WeiToEther(wei *big.Int) decimal.Decimal {
	if wei == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(wei, -weiExp)
}
