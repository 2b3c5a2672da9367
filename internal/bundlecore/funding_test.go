package bundlecore

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/ligun0805/asset-rescue/internal/fees"
)

func baseBundle(source Signer) *Bundle {
	return &Bundle{Intents: []*TxIntent{
		{To: contract1155, Data: []byte{1}, GasLimit: 40_000, Value: new(big.Int), Signer: source},
		{To: contract721, Data: []byte{2}, GasLimit: 39_000, Value: new(big.Int), Signer: source},
	}}
}

func TestInjectPrependsFunding(t *testing.T) {
	source, funding := newTestSigner(t), newTestSigner(t)
	inj := &FundingInjector{Model: fees.NewModel(fees.DefaultPadding), Funding: funding, Target: source}
	base := baseBundle(source)

	out, q, err := inj.Inject(base, 100_000, decimal.NewFromInt(10))
	require.NoError(t, err)
	require.Equal(t, 3, out.Len())

	fund := out.Intents[0]
	require.Equal(t, source.Address(), fund.To)
	require.Equal(t, funding.Address(), fund.Signer.Address())
	require.Equal(t, FundingGasLimit, fund.GasLimit)
	require.Empty(t, fund.Data)
	require.Equal(t, "1150000000000000", fund.Value.String())
	require.Equal(t, "11.50000000", q.Padded.StringFixed(8))

	for _, in := range out.Intents {
		require.Equal(t, "11500000000", in.GasFeeCap.String())
		require.Equal(t, "11500000000", in.GasTipCap.String())
	}
	for _, in := range base.Intents {
		require.Nil(t, in.GasFeeCap)
	}
	require.Equal(t, 2, base.Len())
}

func TestInjectRejectsZeroGas(t *testing.T) {
	source, funding := newTestSigner(t), newTestSigner(t)
	inj := &FundingInjector{Model: fees.NewModel(fees.DefaultPadding), Funding: funding, Target: source}

	_, _, err := inj.Inject(baseBundle(source), 0, decimal.NewFromInt(10))
	require.ErrorIs(t, err, fees.ErrInvalidGasBudget)
}

func TestInjectRejectsNilBundle(t *testing.T) {
	source, funding := newTestSigner(t), newTestSigner(t)
	inj := &FundingInjector{Model: fees.NewModel(fees.DefaultPadding), Funding: funding, Target: source}

	out, _, err := inj.Inject(nil, 100_000, decimal.NewFromInt(10))
	require.Nil(t, out)
	require.ErrorContains(t, err, "nil bundle")
}

func TestRefreshIsIdempotent(t *testing.T) {
	source, funding := newTestSigner(t), newTestSigner(t)
	s := &Submitter{Injector: &FundingInjector{Model: fees.NewModel(fees.DefaultPadding), Funding: funding, Target: source}}
	base := baseBundle(source)
	rate := big.NewInt(12_345_678_901)

	b1, q1, err := s.Refresh(base, 100_000, rate, 0)
	require.NoError(t, err)
	b2, q2, err := s.Refresh(base, 100_000, rate, 0)
	require.NoError(t, err)

	require.True(t, q1.Padded.Equal(q2.Padded))
	require.Equal(t, q1.MaxFeePerGas, q2.MaxFeePerGas)
	require.Equal(t, b1.Intents[0].Value, b2.Intents[0].Value)
	require.Equal(t, b1.Len(), b2.Len())
	require.NotSame(t, b1.Intents[1], b2.Intents[1])
}

func TestSignBundleAssignsNoncesPerSigner(t *testing.T) {
	source, funding := newTestSigner(t), newTestSigner(t)
	chainID := big.NewInt(1)
	inj := &FundingInjector{Model: fees.NewModel(fees.DefaultPadding), Funding: funding, Target: source}
	b, _, err := inj.Inject(baseBundle(source), 100_000, decimal.NewFromInt(10))
	require.NoError(t, err)

	chain := &MockChain{Nonces: map[common.Address]uint64{funding.Address(): 7, source.Address(): 3}}
	txs, err := SignBundle(context.Background(), b, chainID, chain)
	require.NoError(t, err)
	require.Len(t, txs, 3)

	wantFrom := []common.Address{funding.Address(), source.Address(), source.Address()}
	wantNonce := []uint64{7, 3, 4}
	signer := types.LatestSignerForChainID(chainID)
	for i, tx := range txs {
		from, err := types.Sender(signer, tx)
		require.NoError(t, err)
		require.Equal(t, wantFrom[i], from)
		require.Equal(t, wantNonce[i], tx.Nonce())
		require.Equal(t, uint8(types.DynamicFeeTxType), tx.Type())
		require.Equal(t, "11500000000", tx.GasFeeCap().String())
		require.Equal(t, "11500000000", tx.GasTipCap().String())
	}
	require.Zero(t, b.Intents[0].Value.Cmp(txs[0].Value()))
	require.Equal(t, source.Address(), *txs[0].To())
}

func TestSignBundleReportsSigningError(t *testing.T) {
	source := newTestSigner(t)
	bad := &failingSigner{addr: common.HexToAddress("0x01"), err: errBoom}
	b := &Bundle{Intents: []*TxIntent{
		{To: source.Address(), GasLimit: 21_000, Value: big.NewInt(1), Signer: source, GasFeeCap: big.NewInt(1), GasTipCap: big.NewInt(1)},
		{To: source.Address(), GasLimit: 21_000, Value: big.NewInt(1), Signer: bad, GasFeeCap: big.NewInt(1), GasTipCap: big.NewInt(1)},
	}}

	_, err := SignBundle(context.Background(), b, big.NewInt(1), &MockChain{})
	var se *SigningError
	require.ErrorAs(t, err, &se)
	require.Equal(t, 1, se.Index)
	require.ErrorIs(t, err, errBoom)
}

func TestSignBundleNeedsFees(t *testing.T) {
	source := newTestSigner(t)
	_, err := SignBundle(context.Background(), baseBundle(source), big.NewInt(1), &MockChain{})
	require.ErrorContains(t, err, "no fee fields")
}
