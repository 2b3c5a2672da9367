package bundlecore

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/ligun0805/asset-rescue/internal/fees"
)

var (
	contract1155 = common.HexToAddress("0xd07dc4262BCDbf85190C01c996b4C06a461d2430")
	contract721  = common.HexToAddress("0x60F80121C31A0d46B5279700f9DF786054aa5eE5")
)

func ids(xs ...int64) []*big.Int {
	out := make([]*big.Int, len(xs))
	for i, x := range xs {
		out[i] = big.NewInt(x)
	}
	return out
}

func TestBuildScenarioMixedAssets(t *testing.T) {
	source, funding := newTestSigner(t), newTestSigner(t)
	enc := &MockEncoder{}
	var queriedOwners []common.Address
	b := &Builder{
		Estimator: &MockChain{},
		Encoder:   enc,
		Assets: &MockAssets{BalancesFunc: func(c common.Address, owners []common.Address, q []*big.Int) ([]*big.Int, error) {
			require.Equal(t, contract1155, c)
			queriedOwners = owners
			return ids(5, 0), nil
		}},
	}
	specs := []TransferSpec{
		{Kind: KindBatchFungible, Contract: contract1155, IDs: ids(10, 20)},
		{Kind: KindUnique, Contract: contract721, IDs: ids(99)},
	}

	bundle, total, err := b.Build(context.Background(), specs, source, funding)
	require.NoError(t, err)
	require.Equal(t, 2, bundle.Len())
	require.Equal(t, FundingGasLimit+2*50_000, total)
	require.Equal(t, []common.Address{source.Address(), source.Address()}, queriedOwners)

	require.Len(t, enc.Calls, 2)
	batch := enc.Calls[0]
	require.Equal(t, KindBatchFungible, batch.Kind)
	require.Equal(t, "safeBatchTransferFrom", batch.Method)
	require.Equal(t, source.Address(), batch.Args[0])
	require.Equal(t, funding.Address(), batch.Args[1])
	require.Equal(t, ids(10, 20), batch.Args[2])
	require.Equal(t, ids(5, 0), batch.Args[3])
	require.Equal(t, make([]byte, 32), batch.Args[4])

	single := enc.Calls[1]
	require.Equal(t, "transferFrom", single.Method)
	require.Equal(t, big.NewInt(99), single.Args[2])

	for _, in := range bundle.Intents {
		require.Equal(t, source.Address(), in.Signer.Address())
		require.Equal(t, uint64(50_000), in.GasLimit)
	}
	require.Equal(t, contract1155, bundle.Intents[0].To)
	require.Equal(t, contract721, bundle.Intents[1].To)
	// configured spec stays untouched
	require.Nil(t, specs[0].Quantities)

	inj := &FundingInjector{Model: fees.NewModel(fees.DefaultPadding), Funding: funding, Target: source}
	funded, _, err := inj.Inject(bundle, total, decimal.NewFromInt(10))
	require.NoError(t, err)
	require.Equal(t, 3, funded.Len())
	require.Equal(t, funding.Address(), funded.Intents[0].Signer.Address())
	require.Nil(t, funded.Intents[0].Spec)
	require.Contains(t, string(funded.Intents[1].Data), "safeBatchTransferFrom")
	require.Contains(t, string(funded.Intents[2].Data), "transferFrom")
	require.Equal(t, big.NewInt(99), funded.Intents[2].TokenID)
}

func TestBuildPreservesSpecOrder(t *testing.T) {
	source, funding := newTestSigner(t), newTestSigner(t)
	b := &Builder{Estimator: &MockChain{}, Encoder: &MockEncoder{}, Assets: &MockAssets{}}
	specs := []TransferSpec{
		{Label: "a", Kind: KindUnique, Contract: contract721, IDs: ids(3, 1, 2)},
		{Label: "b", Kind: KindBatchFungible, Contract: contract1155, IDs: ids(7)},
		{Label: "c", Kind: KindUnique, Contract: contract721, IDs: ids(5)},
	}

	bundle, total, err := b.Build(context.Background(), specs, source, funding)
	require.NoError(t, err)
	require.Equal(t, FundingGasLimit+5*50_000, total)

	var got []string
	for _, in := range bundle.Intents {
		label := in.Spec.Label
		if in.TokenID != nil {
			label += in.TokenID.String()
		}
		got = append(got, label)
	}
	require.Equal(t, []string{"a3", "a1", "a2", "b", "c5"}, got)
}

func TestBuildEstimationFailureNamesSpec(t *testing.T) {
	source, funding := newTestSigner(t), newTestSigner(t)
	relay := &MockRelay{}
	chain := &MockChain{EstimateFunc: func(in *TxIntent, _ common.Address) (uint64, error) {
		if in.To == contract721 {
			return 0, errors.New("execution reverted: ERC721: caller is not token owner")
		}
		return 60_000, nil
	}}
	b := &Builder{Estimator: chain, Encoder: &MockEncoder{}, Assets: &MockAssets{}}
	specs := []TransferSpec{
		{Label: "first", Kind: KindBatchFungible, Contract: contract1155, IDs: ids(1)},
		{Label: "second", Kind: KindUnique, Contract: contract721, IDs: ids(99)},
	}

	bundle, total, err := b.Build(context.Background(), specs, source, funding)
	require.Nil(t, bundle)
	require.Zero(t, total)
	var ee *EstimationError
	require.ErrorAs(t, err, &ee)
	require.Equal(t, 1, ee.Index)
	require.Equal(t, "second", ee.Spec.Label)
	require.Equal(t, big.NewInt(99), ee.TokenID)
	require.Contains(t, err.Error(), "caller is not token owner")
	require.Zero(t, relay.submitted())
}

func TestBuildZeroEstimateIsAnError(t *testing.T) {
	source, funding := newTestSigner(t), newTestSigner(t)
	chain := &MockChain{EstimateFunc: func(*TxIntent, common.Address) (uint64, error) { return 0, nil }}
	b := &Builder{Estimator: chain, Encoder: &MockEncoder{}, Assets: &MockAssets{}}

	_, _, err := b.Build(context.Background(), []TransferSpec{{Kind: KindUnique, Contract: contract721, IDs: ids(1)}}, source, funding)
	var ee *EstimationError
	require.ErrorAs(t, err, &ee)
	require.Equal(t, 0, ee.Index)
}

func TestBuildRejectsMisalignedBalances(t *testing.T) {
	source, funding := newTestSigner(t), newTestSigner(t)
	b := &Builder{
		Estimator: &MockChain{},
		Encoder:   &MockEncoder{},
		Assets: &MockAssets{BalancesFunc: func(common.Address, []common.Address, []*big.Int) ([]*big.Int, error) {
			return ids(5), nil
		}},
	}
	_, _, err := b.Build(context.Background(), []TransferSpec{{Kind: KindBatchFungible, Contract: contract1155, IDs: ids(1, 2)}}, source, funding)
	require.ErrorContains(t, err, "got 1 values for 2 ids")
}

func TestBuildCustomRecipient(t *testing.T) {
	source, funding := newTestSigner(t), newTestSigner(t)
	vault := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	enc := &MockEncoder{}
	b := &Builder{Estimator: &MockChain{}, Encoder: enc, Assets: &MockAssets{}, Recipient: vault}

	_, _, err := b.Build(context.Background(), []TransferSpec{{Kind: KindUnique, Contract: contract721, IDs: ids(1)}}, source, funding)
	require.NoError(t, err)
	require.Equal(t, vault, enc.Calls[0].Args[1])
}

func TestBuildRequiresTransfers(t *testing.T) {
	b := &Builder{Estimator: &MockChain{}, Encoder: &MockEncoder{}, Assets: &MockAssets{}}
	_, _, err := b.Build(context.Background(), nil, newTestSigner(t), newTestSigner(t))
	require.Error(t, err)

	_, _, err = b.Build(context.Background(), []TransferSpec{{Kind: KindUnique, Contract: contract721}}, newTestSigner(t), newTestSigner(t))
	require.ErrorContains(t, err, "has no ids")
}
