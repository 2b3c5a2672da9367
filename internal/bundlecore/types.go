package bundlecore

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// FundingGasLimit is the fixed cost of a plain value transfer.
const FundingGasLimit uint64 = 21_000

// AssetKind distinguishes the two token interfaces a transfer can target.
type AssetKind int

const (
	// KindBatchFungible is an ERC-1155 style contract: ids carry quantities and move in one batch call.
	KindBatchFungible AssetKind = iota + 1
	// KindUnique is an ERC-721 style contract: one call per id.
	KindUnique
)

func (k AssetKind) String() string {
	switch k {
	case KindBatchFungible:
		return "erc1155"
	case KindUnique:
		return "erc721"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseAssetKind maps config names onto AssetKind.
func ParseAssetKind(s string) (AssetKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "erc1155", "batch", "batch-fungible":
		return KindBatchFungible, nil
	case "erc721", "unique", "nft":
		return KindUnique, nil
	}
	return 0, fmt.Errorf("unknown asset kind %q", s)
}

// TransferSpec is one configured asset move. Quantities are only meaningful for
// KindBatchFungible and are resolved from live balances at build time.
type TransferSpec struct {
	Label      string
	Kind       AssetKind
	Contract   common.Address
	IDs        []*big.Int
	Quantities []*big.Int
}

func (s *TransferSpec) String() string {
	if s == nil {
		return "funding"
	}
	name := s.Label
	if name == "" {
		name = s.Contract.Hex()
	}
	return fmt.Sprintf("%s(%s, %d ids)", s.Kind, name, len(s.IDs))
}

// Signer produces signatures for one account.
type Signer interface {
	Address() common.Address
	SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error)
}

// TxIntent is a pending, unsigned bundle entry bound to its signer.
type TxIntent struct {
	To       common.Address
	Data     []byte
	GasLimit uint64
	Value    *big.Int
	Signer   Signer

	GasFeeCap *big.Int
	GasTipCap *big.Int

	// Spec is nil for the funding transfer.
	Spec    *TransferSpec
	TokenID *big.Int
}

// Bundle is an ordered list of intents that must land together in one block.
type Bundle struct {
	Intents []*TxIntent
}

// Len returns the number of intents.
func (b *Bundle) Len() int {
	if b == nil {
		return 0
	}
	return len(b.Intents)
}

// Resolution is the relay's verdict for one (bundle, target block) pair.
type Resolution int

const (
	ResolutionNotIncluded Resolution = iota
	ResolutionIncluded
	// ResolutionAccountNonceTooHigh means a signer's nonce moved past the bundle,
	// so it can never land as built for this block.
	ResolutionAccountNonceTooHigh
)

func (r Resolution) String() string {
	switch r {
	case ResolutionIncluded:
		return "included"
	case ResolutionNotIncluded:
		return "not included"
	case ResolutionAccountNonceTooHigh:
		return "account nonce too high"
	}
	return fmt.Sprintf("resolution(%d)", int(r))
}

// SimTxResult is the simulated outcome of one bundle transaction.
type SimTxResult struct {
	TxHash  common.Hash
	GasUsed uint64
	Error   string
	Revert  string
}

// SimulationReport explains how the bundle would execute against current state.
type SimulationReport struct {
	BundleHash   common.Hash
	TotalGasUsed uint64
	Results      []SimTxResult
	RawJSON      string
}

// FirstFailure returns the first failing transaction's reason, or "".
func (r *SimulationReport) FirstFailure() string {
	if r == nil {
		return ""
	}
	for i, res := range r.Results {
		if res.Error != "" {
			return fmt.Sprintf("tx %d: %s", i, res.Error)
		}
		if res.Revert != "" {
			return fmt.Sprintf("tx %d: revert %s", i, res.Revert)
		}
	}
	return ""
}

// ---------- collaborators ----------

// GasEstimator estimates the gas limit of an intent sent by from.
type GasEstimator interface {
	EstimateGas(ctx context.Context, intent *TxIntent, from common.Address) (uint64, error)
}

// ChainReader is what the submission loop needs from a node.
type ChainReader interface {
	GasEstimator
	// CurrentFeeRate returns the observed fee rate in wei per gas.
	CurrentFeeRate(ctx context.Context) (*big.Int, error)
	// SubscribeHeads delivers new head block numbers to ch until unsubscribed.
	SubscribeHeads(ctx context.Context, ch chan<- uint64) (ethereum.Subscription, error)
	NonceSource
}

// AssetQuery reads live token balances.
type AssetQuery interface {
	// BatchBalances returns quantities aligned index-for-index with ids.
	BatchBalances(ctx context.Context, contract common.Address, owners []common.Address, ids []*big.Int) ([]*big.Int, error)
}

// CallEncoder packs call data for the given asset interface.
type CallEncoder interface {
	Encode(kind AssetKind, method string, args ...interface{}) ([]byte, error)
}

// Relay accepts signed bundles for a target block.
type Relay interface {
	Submit(ctx context.Context, txs []*types.Transaction, targetBlock uint64) (PendingBundle, error)
}

// PendingBundle is a submitted bundle awaiting resolution.
type PendingBundle interface {
	Wait(ctx context.Context) (Resolution, error)
	Simulate(ctx context.Context) (*SimulationReport, error)
	// IncludedTxHashes is only meaningful after Wait returned ResolutionIncluded.
	IncludedTxHashes() []common.Hash
}
